package main

import (
	"context"
	"fmt"
	"os"

	"github.com/monorail-dev/monorail/internal/config"
	"github.com/monorail-dev/monorail/internal/events"
	"github.com/monorail-dev/monorail/internal/events/journal"
)

// flushJournal persists queued bus events when a journal is configured,
// pruning entries past the retention window. Journal problems are
// reported but never fail the command that produced the events.
func flushJournal(ctx context.Context, cfg config.Config, bus *events.Bus) {
	if cfg.Events.JournalPath == "" {
		bus.Process(bus.Pending())
		return
	}
	store, err := journal.Open(cfg.Events.JournalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: open journal: %v\n", err)
		return
	}
	defer store.Close()

	store.Attach(bus)
	bus.Process(bus.Pending())
	if _, err := store.Cleanup(ctx, cfg.Events.JournalRetention); err != nil {
		fmt.Fprintf(os.Stderr, "warning: journal cleanup: %v\n", err)
	}
}
