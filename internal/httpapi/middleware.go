package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gmanldn/actifix/internal/ingest"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

// recoverAndReport converts an unhandled panic into an HTTP 500 with a
// sanitised message, per spec 7's propagation policy, and records a P2
// ticket describing it through the ingestion pipeline so it surfaces
// like any other captured error. The duplicate guard (keyed on error
// type + message + first stack line) prevents a misbehaving handler
// from flooding the ticket store on repeated panics.
func (s *Server) recoverAndReport(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := string(debug.Stack())
				s.log.WithField("panic", rec).Error("http handler panic")

				if s.pipeline != nil {
					_, _ = s.pipeline.RecordError(ingest.Request{
						Message:        fmt.Sprintf("unhandled panic in HTTP handler: %v", rec),
						Source:         r.URL.Path,
						ErrorType:      "http_panic",
						Priority:       ticketstore.PriorityP2,
						StackTrace:     stack,
						CaptureContext: false,
						ChangeOrigin:   "raise_af",
					}, time.Now())
				}

				RespondError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
