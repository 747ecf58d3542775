package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmanldn/actifix/internal/ticketstore"
)

func TestSendDeliversSanitizedPayload(t *testing.T) {
	var received payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, userAgent, r.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := New([]string{srv.URL}, nil)
	ticket := &ticketstore.Ticket{ID: "ACT-1", Priority: ticketstore.PriorityP1, Message: "boom", CreatedAt: time.Now()}
	sender.Send(context.Background(), EventTicketCreated, ticket)

	require.Equal(t, EventTicketCreated, received.Event)
	require.Equal(t, "ACT-1", received.Ticket.ID)
}

func TestSendIncludesMandatoryPayloadFields(t *testing.T) {
	var received payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	now := time.Now()
	sender := New([]string{srv.URL}, nil)
	ticket := &ticketstore.Ticket{
		ID:            "ACT-4",
		Priority:      ticketstore.PriorityP2,
		RunLabel:      "nightly-run",
		CreatedAt:     now,
		UpdatedAt:     now.Add(time.Minute),
		CorrelationID: "corr-123",
	}
	sender.Send(context.Background(), EventTicketCreated, ticket)

	require.Equal(t, "nightly-run", received.Ticket.RunLabel)
	require.Equal(t, "corr-123", received.Ticket.CorrelationID)
	require.Equal(t, now.Add(time.Minute).Format(time.RFC3339), received.Ticket.UpdatedAt)
}

func TestSendRetriesOnNon2xx(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := New([]string{srv.URL}, nil)
	ticket := &ticketstore.Ticket{ID: "ACT-2", CreatedAt: time.Now()}
	sender.Send(context.Background(), EventTicketCompleted, ticket)

	require.Equal(t, int32(maxRetries+1), atomic.LoadInt32(&attempts))
}

func TestSendWithNoURLsIsNoop(t *testing.T) {
	sender := New(nil, nil)
	ticket := &ticketstore.Ticket{ID: "ACT-3", CreatedAt: time.Now()}
	sender.Send(context.Background(), EventTicketCreated, ticket)
}
