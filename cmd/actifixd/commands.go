package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gmanldn/actifix/internal/eventlog"
	"github.com/gmanldn/actifix/internal/fallbackqueue"
	"github.com/gmanldn/actifix/internal/ingest"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

func cmdInit(a *app) error {
	fmt.Printf("actifixd initialised: data=%s state=%s logs=%s\n",
		a.boot.Paths.DataDir, a.boot.Paths.StateDir, a.boot.Paths.LogsDir)
	return nil
}

func cmdHealth(a *app) error {
	size, _ := a.boot.DB.SizeBytes()
	snap, err := a.checker.GetHealth(time.Now(), size)
	if err != nil {
		return err
	}
	fmt.Printf("overall: %s\n", snap.Status)
	fmt.Printf("db: %s\n", snap.DBStatus)
	fmt.Printf("disk: %s\n", snap.DiskStatus)
	fmt.Printf("open: %d  completed: %d  locked: %d\n", snap.OpenCount, snap.CompletedCount, snap.LockedCount)
	return nil
}

func cmdStatus(a *app) error {
	stats, err := a.boot.Store.GetStats()
	if err != nil {
		return err
	}
	fmt.Printf("total: %d  locked: %d\n", stats.Total, stats.Locked)
	for status, count := range stats.ByStatus {
		fmt.Printf("  %s: %d\n", status, count)
	}
	for priority, count := range stats.ByPriority {
		fmt.Printf("  %s: %d\n", priority, count)
	}
	return nil
}

func cmdMetrics(a *app) error {
	stats, err := a.boot.Store.GetStats()
	if err != nil {
		return err
	}
	fmt.Printf("actifix_tickets_total %d\n", stats.Total)
	fmt.Printf("actifix_tickets_locked %d\n", stats.Locked)
	for status, count := range stats.ByStatus {
		fmt.Printf("actifix_tickets_by_status{status=%q} %d\n", status, count)
	}
	for priority, count := range stats.ByPriority {
		fmt.Printf("actifix_tickets_by_priority{priority=%q} %d\n", priority, count)
	}
	return nil
}

func cmdRecord(a *app, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	priority := fs.String("priority", "", "priority override (P0-P4)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 3 {
		return fmt.Errorf("usage: actifixd record <error_type> <message> <source> [--priority Pn]")
	}

	p, err := parsePriorityArg(*priority)
	if err != nil {
		return err
	}

	req := ingest.Request{
		ErrorType:    rest[0],
		Message:      rest[1],
		Source:       rest[2],
		Priority:     p,
		ChangeOrigin: "raise_af",
	}
	ticket, err := a.pipeline.RecordError(req, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("ticket created: %s (priority %s)\n", ticket.ID, ticket.Priority)
	return nil
}

func cmdProcess(a *app, args []string) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	maxTickets := fs.Int("max-tickets", 10, "maximum tickets to dispatch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	n, err := a.dispatcher.ProcessTickets(context.Background(), *maxTickets, nil)
	if err != nil {
		return err
	}
	fmt.Printf("processed %d ticket(s)\n", n)
	return nil
}

func cmdStats(a *app) error {
	return cmdStatus(a)
}

func cmdQuarantine(a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: actifixd quarantine list")
	}
	switch args[0] {
	case "list":
		entries, err := a.quarantine.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no quarantined entries")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  source=%s  reason=%s  at=%s\n", e.ID, e.OriginalSource, e.Reason, e.QuarantinedAt.Format(time.RFC3339))
		}
		return nil
	default:
		return fmt.Errorf("unknown quarantine subcommand: %s", args[0])
	}
}

func cmdDiagnostics(a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: actifixd diagnostics summary|export")
	}
	switch args[0] {
	case "summary":
		fmt.Println(a.diagnostics.Summary(time.Now()))
		return nil
	case "export":
		fs := flag.NewFlagSet("diagnostics export", flag.ContinueOnError)
		out := fs.String("o", "", "output zip path")
		noLogs := fs.Bool("no-logs", false, "exclude recent logs")
		noTickets := fs.Bool("no-tickets", false, "exclude recent tickets")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		outputPath := *out
		if outputPath == "" {
			outputPath = filepath.Join(a.boot.Paths.DataDir, fmt.Sprintf("diagnostics_%d.zip", time.Now().Unix()))
		}
		path, err := a.diagnostics.Export(time.Now(), outputPath, !*noLogs, !*noTickets)
		if err != nil {
			return err
		}
		fmt.Printf("diagnostics bundle written: %s\n", path)
		return nil
	default:
		return fmt.Errorf("unknown diagnostics subcommand: %s", args[0])
	}
}

func cmdLogs(a *app, args []string) error {
	if len(args) == 0 || args[0] != "tail" {
		return fmt.Errorf("usage: actifixd logs tail [--limit N] [--level L] [--event-type T]")
	}
	fs := flag.NewFlagSet("logs tail", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "max events to show")
	level := fs.String("level", "", "filter by level")
	eventType := fs.String("event-type", "", "filter by event type")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	events, err := a.boot.Events.Get(eventlog.Filter{
		EventType: *eventType,
		Level:     eventlog.Level(*level),
		Limit:     *limit,
	})
	if err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Printf("%s  %-8s  %-28s  %s\n", ev.Timestamp.Format(time.RFC3339), ev.Level, ev.EventType, ev.Message)
	}
	return nil
}

func cmdConfig(a *app, args []string) error {
	if len(args) == 0 || args[0] != "diff" {
		return fmt.Errorf("usage: actifixd config diff")
	}
	return configDiff(a)
}

func cmdQueue(a *app, args []string) error {
	if len(args) == 0 || args[0] != "replay" {
		return fmt.Errorf("usage: actifixd queue replay")
	}

	stats, err := a.boot.Queue.Replay(queueReplayHandler(a), 3)
	if err != nil {
		return err
	}
	fmt.Printf("replay: succeeded=%d failed=%d skipped=%d\n", stats.Succeeded, stats.Failed, stats.Skipped)
	return nil
}

// queueReplayHandler re-applies a fallback entry against the ticket
// store, mirroring the durable-write path RecordError takes when the
// store itself is unavailable.
func queueReplayHandler(a *app) fallbackqueue.Handler {
	return func(entry fallbackqueue.Entry) bool {
		switch entry.Operation {
		case fallbackqueue.OpWrite, fallbackqueue.OpAppend:
			var nt ticketstore.NewTicket
			if err := decodeQueueEntry(entry.Content, &nt); err != nil {
				return false
			}
			if _, _, err := a.boot.Store.CreateTicket(time.Now(), nt); err != nil {
				return false
			}
			return true
		default:
			return true
		}
	}
}

func cmdTickets(a *app, args []string) error {
	if len(args) == 0 || args[0] != "cleanup" {
		return fmt.Errorf("usage: actifixd tickets cleanup [--min-age-hours H] [--execute]")
	}
	fs := flag.NewFlagSet("tickets cleanup", flag.ContinueOnError)
	minAgeHours := fs.Float64("min-age-hours", 24*7, "minimum age in hours before a completed ticket is eligible")
	execute := fs.Bool("execute", false, "actually delete; dry-run otherwise")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cutoff := time.Now().Add(-time.Duration(*minAgeHours * float64(time.Hour)))
	tickets, err := a.boot.Store.GetTickets(ticketstore.Filter{Status: ticketstore.StatusCompleted, CreatedBefore: &cutoff})
	if err != nil {
		return err
	}

	if !*execute {
		fmt.Printf("dry run: %d ticket(s) would be deleted\n", len(tickets))
		return nil
	}
	deleted := 0
	for _, t := range tickets {
		if err := a.boot.Store.DeleteTicket(t.ID); err != nil {
			fmt.Fprintf(os.Stderr, "actifixd: failed to delete %s: %v\n", t.ID, err)
			continue
		}
		deleted++
	}
	fmt.Printf("deleted %d ticket(s)\n", deleted)
	return nil
}

func cmdModules(a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: actifixd modules {list,enable,disable,create,validate,graph} [id]")
	}
	sub := args[0]
	rest := args[1:]

	switch sub {
	case "list":
		st, err := a.modules.Load()
		if err != nil {
			return err
		}
		fmt.Printf("active:   %s\n", strings.Join(st.Active, ", "))
		fmt.Printf("disabled: %s\n", strings.Join(st.Disabled, ", "))
		fmt.Printf("error:    %s\n", strings.Join(st.Error, ", "))
		return nil
	case "enable":
		if len(rest) < 1 {
			return fmt.Errorf("usage: actifixd modules enable <id>")
		}
		return a.modules.Enable(rest[0])
	case "disable":
		if len(rest) < 1 {
			return fmt.Errorf("usage: actifixd modules disable <id>")
		}
		return a.modules.Disable(rest[0])
	case "create":
		if len(rest) < 1 {
			return fmt.Errorf("usage: actifixd modules create <id>")
		}
		return moduleCreate(a, rest[0])
	case "validate":
		if len(rest) < 1 {
			return fmt.Errorf("usage: actifixd modules validate <id>")
		}
		return moduleValidate(a, rest[0])
	case "graph":
		return moduleGraph(a)
	default:
		return fmt.Errorf("unknown modules subcommand: %s", sub)
	}
}

func cmdDoctor(a *app) error {
	size, _ := a.boot.DB.SizeBytes()
	snap, err := a.checker.GetHealth(time.Now(), size)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Printf("database: %s (%d bytes)\n", snap.DBStatus, size)
	fmt.Printf("disk: %s\n", snap.DiskStatus)

	for _, artefact := range snap.Artefacts {
		state := "present"
		if !artefact.Exists {
			state = "MISSING"
		}
		fmt.Printf("artefact %s: %s\n", artefact.Path, state)
	}

	cfg := a.cfg
	if cfg.AIEnabled && cfg.AIAPIKey == "" {
		fmt.Println("warning: AI remediation enabled but no API key configured")
	}
	return nil
}

func cmdRepair(a *app, args []string) error {
	fs := flag.NewFlagSet("repair", flag.ContinueOnError)
	execute := fs.Bool("execute", false, "actually run vacuum/checkpoint; dry-run otherwise")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*execute {
		fmt.Println("dry run: would VACUUM and checkpoint the ticket database")
		return nil
	}
	if err := a.boot.DB.CheckpointFull(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := a.boot.DB.Vacuum(); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	fmt.Println("repair complete: checkpointed and vacuumed")
	return nil
}

func parsePriorityArg(raw string) (ticketstore.Priority, error) {
	if raw == "" {
		return "", nil
	}
	p := ticketstore.Priority(strings.ToUpper(raw))
	switch p {
	case ticketstore.PriorityP0, ticketstore.PriorityP1, ticketstore.PriorityP2, ticketstore.PriorityP3, ticketstore.PriorityP4:
		return p, nil
	default:
		return "", fmt.Errorf("invalid priority %q", raw)
	}
}
