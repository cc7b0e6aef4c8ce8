package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"doppel/internal/domain"
	"doppel/internal/usecase"
)

// runChat starts the interactive loop. Replies that end with the
// confirmation sentinel leave a pending action on the session; the next
// line the user types settles it.
func runChat(args []string) error {
	_, configPath, sessionName := commonFlags("doppel", args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, *configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	session := rt.sessions.GetOrCreate(*sessionName)

	var briefer *usecase.Briefer
	if rt.cfg.Proactive.Enabled {
		briefer = usecase.NewBriefer(rt.agent, rt.sessions, rt.tools,
			rt.cfg.Proactive.Prompt, rt.cfg.Proactive.Schedule, rt.logger,
			func(briefing string) {
				fmt.Printf("\n--- briefing ---\n%s\n----------------\n> ", briefing)
			})
		if err := briefer.Start(ctx); err != nil {
			return err
		}
		defer briefer.Stop()
	}

	fmt.Println("doppel ready. Type a message, or /quit to exit.")
	if pending := session.PendingSnapshot(); pending != nil {
		fmt.Println("A confirmation is still pending from last time:")
		fmt.Println(pending.Plan)
		fmt.Println(domain.ConfirmationSentinel)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return saveAndReport(rt, *sessionName)
		}

		turnCtx := ctx
		var cancel context.CancelFunc
		if rt.cfg.Agent.Timeout > 0 {
			turnCtx, cancel = context.WithTimeout(ctx, rt.cfg.Agent.Timeout)
		}
		reply, err := rt.agent.RunTurn(turnCtx, session, line)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Println(reply)

		if err := rt.sessions.Save(*sessionName); err != nil {
			rt.logger.Warn("saving session failed", "error", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return saveAndReport(rt, *sessionName)
}

func saveAndReport(rt *runtime, sessionName string) error {
	if err := rt.sessions.Save(sessionName); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Println("bye.")
	return nil
}
