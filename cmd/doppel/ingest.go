package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"doppel/internal/usecase"
)

// runIngest indexes recent sent mail into the retrieval store and prints
// a summary.
func runIngest(args []string) error {
	_, configPath, _ := commonFlags("doppel ingest", args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, *configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	ing := usecase.NewIngestor(rt.mail, rt.store, rt.cfg.Ingest, rt.logger)
	stats, err := ing.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("ingestion complete: %s\n", stats)
	return nil
}

// runBrief produces one briefing immediately and exits.
func runBrief(args []string) error {
	_, configPath, _ := commonFlags("doppel brief", args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, *configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	briefer := usecase.NewBriefer(rt.agent, rt.sessions, rt.tools,
		rt.cfg.Proactive.Prompt, rt.cfg.Proactive.Schedule, rt.logger, nil)

	briefing, err := briefer.RunNow(ctx)
	if err != nil {
		return err
	}
	fmt.Println(briefing)
	return nil
}
