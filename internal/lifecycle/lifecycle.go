package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gmanldn/actifix/internal/actifixpath"
	"github.com/gmanldn/actifix/internal/eventlog"
	"github.com/gmanldn/actifix/internal/fallbackqueue"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

// Bootstrap is the result of Startup: every opened handle the caller
// needs to wire into the rest of the process.
type Bootstrap struct {
	Paths    actifixpath.Paths
	DB       *ticketstore.DB
	Store    *ticketstore.Store
	Queue    *fallbackqueue.Queue
	Events   *eventlog.Log
	Crash    *CrashRecorder
	Recovered bool
}

// Startup resolves paths, ensures directories, touches core artefacts,
// opens the store, drains the fallback queue opportunistically, and
// records the crash snapshot transition, exactly as spec 4.15 describes.
func Startup(overrides actifixpath.Overrides, queueCfg fallbackqueue.Config) (*Bootstrap, error) {
	paths, err := actifixpath.Resolve(overrides)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: resolve paths: %w", err)
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("lifecycle: ensure dirs: %w", err)
	}
	if err := touchArtifacts(paths.CoreArtifacts()); err != nil {
		return nil, fmt.Errorf("lifecycle: touch artefacts: %w", err)
	}

	db, err := ticketstore.Open(paths.TicketDBPath)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: open store: %w", err)
	}
	store := ticketstore.NewStore(db)

	queue, err := fallbackqueue.Open(paths.FallbackQueuePath, queueCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("lifecycle: open fallback queue: %w", err)
	}

	events := eventlog.New(db.Conn())

	if err := migrateLegacyQueue(paths, queue, events); err != nil {
		db.Close()
		return nil, fmt.Errorf("lifecycle: migrate legacy fallback queue: %w", err)
	}

	crash := NewCrashRecorder(paths.StateDir)
	wasUnclean, _, err := crash.CheckPriorRun()
	if err != nil {
		wasUnclean = false
	}
	if wasUnclean {
		events.Append(eventlog.Event{EventType: "CRASH_DETECTED", Level: eventlog.LevelWarning, Message: "previous run did not shut down cleanly"})
	}
	if err := crash.SetState(RunStateRunning); err != nil {
		events.Append(eventlog.Event{EventType: "CRASH_SNAPSHOT_WRITE_FAILED", Level: eventlog.LevelWarning, Message: err.Error()})
	}

	drainFallbackQueue(queue, store, events)

	events.Append(eventlog.Event{EventType: "BOOTSTRAP_COMPLETE", Level: eventlog.LevelInfo, Message: "actifix bootstrap complete"})

	return &Bootstrap{Paths: paths, DB: db, Store: store, Queue: queue, Events: events, Crash: crash, Recovered: wasUnclean}, nil
}

// Shutdown transitions the crash snapshot to healthy, flushes the async
// event writer, and closes the database connection. Call after the
// module registry has already been drained.
func Shutdown(b *Bootstrap) error {
	if err := b.Crash.SetState(RunStateHealthy); err != nil {
		b.Events.Append(eventlog.Event{EventType: "CRASH_SNAPSHOT_WRITE_FAILED", Level: eventlog.LevelWarning, Message: err.Error()})
	}
	b.Events.Flush()
	return b.DB.Close()
}

func touchArtifacts(paths []string) error {
	for _, path := range paths {
		if filepath.Ext(path) == ".db" {
			continue // the store creates this file itself on open
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}

// migrateLegacyQueue folds a fallback queue file found at the pre-C1
// base-directory location into the canonical state-dir queue, per
// Open Question 1's decision, then removes the legacy file and logs a
// LEGACY_PATH_MIGRATED event when a migration actually occurred.
func migrateLegacyQueue(paths actifixpath.Paths, queue *fallbackqueue.Queue, events *eventlog.Log) error {
	if paths.LegacyFallbackQueuePath == paths.FallbackQueuePath {
		return nil
	}
	if _, err := os.Stat(paths.LegacyFallbackQueuePath); os.IsNotExist(err) {
		return nil
	}

	legacy, err := fallbackqueue.Open(paths.LegacyFallbackQueuePath, fallbackqueue.DefaultConfig())
	if err != nil {
		return err
	}
	merged := legacy.Peek(legacy.Size())
	for _, entry := range merged {
		if _, err := queue.Enqueue(entry.Operation, entry.Key, entry.Content, entry.Metadata); err != nil {
			return err
		}
	}
	if err := os.Remove(paths.LegacyFallbackQueuePath); err != nil {
		return err
	}

	events.Append(eventlog.Event{
		EventType: "LEGACY_PATH_MIGRATED",
		Level:     eventlog.LevelInfo,
		Message:   fmt.Sprintf("migrated %d fallback-queue entries from legacy path %s", len(merged), paths.LegacyFallbackQueuePath),
	})
	return nil
}

// drainFallbackQueue replays any entries left from a prior run,
// attempting to re-persist each as a ticket creation.
func drainFallbackQueue(queue *fallbackqueue.Queue, store *ticketstore.Store, events *eventlog.Log) {
	if queue.Size() == 0 {
		return
	}
	stats, err := queue.Replay(func(entry fallbackqueue.Entry) bool {
		if entry.Operation != fallbackqueue.OpWrite {
			return true
		}
		var ticket ticketstore.NewTicket
		if err := json.Unmarshal([]byte(entry.Content), &ticket); err != nil {
			return false
		}
		_, _, err := store.CreateTicket(time.Now(), ticket)
		return err == nil
	}, 5)
	if err != nil {
		events.Append(eventlog.Event{EventType: "FALLBACK_QUEUE_REPLAY_ERROR", Level: eventlog.LevelError, Message: err.Error()})
		return
	}
	events.Append(eventlog.Event{
		EventType: "FALLBACK_QUEUE_REPLAYED",
		Level:     eventlog.LevelInfo,
		Message:   fmt.Sprintf("replayed fallback queue: %d succeeded, %d failed, %d skipped", stats.Succeeded, stats.Failed, stats.Skipped),
	})
}
