package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/monorail-dev/monorail/internal/events"
	"github.com/monorail-dev/monorail/internal/events/journal"
	"github.com/monorail-dev/monorail/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the workspace and stream filesystem events",
	Long: `Watch the workspace tree for file changes, attribute each change to
its owning package, and stream the events. When a journal path is
configured the events are also persisted.

Stops on Ctrl-C.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		graph, _ := openGraph(ctx, cfg)

		bus := events.NewBus(cfg.Events.QueueCapacity)
		var store *journal.Store
		if cfg.Events.JournalPath != "" {
			var err error
			store, err = journal.Open(cfg.Events.JournalPath)
			if err != nil {
				fail("open journal: %v", err)
			}
			defer store.Close()
			store.Attach(bus)
		}

		w := watch.New(graph, bus, cfg.Watch.Debounce)
		if err := w.Start(); err != nil {
			fail("%v", err)
		}
		defer w.Stop()

		stream, stopStream := bus.Observe(64)
		defer stopStream()

		color.New(color.Bold).Printf("Watching %s (%d packages)\n", graph.Root, len(graph.Packages))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		// Subscribers (the journal) only fire on Process; drain on a tick.
		tick := time.NewTicker(time.Second)
		defer tick.Stop()

		for {
			select {
			case <-sigCh:
				bus.Process(bus.Pending())
				fmt.Println("\nStopping.")
				return
			case <-tick.C:
				bus.Process(bus.Pending())
			case e := <-stream:
				printFileEvent(e)
			}
		}
	},
}

func printFileEvent(e events.Event) {
	if e.Variant != events.VariantFileSystem {
		return
	}
	d, err := e.FileSystemData()
	if err != nil {
		return
	}
	pkg := d.Package
	if pkg == "" {
		pkg = "-"
	}
	fmt.Printf("%s  %-9s %-25s %s\n",
		e.Timestamp.Format("15:04:05"), d.Operation, pkg, d.Path)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
