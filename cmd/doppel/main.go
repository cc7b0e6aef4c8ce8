package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := runChat(os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "ingest":
		if err := runIngest(args); err != nil {
			fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
			os.Exit(1)
		}
	case "brief":
		if err := runBrief(args); err != nil {
			fmt.Fprintf(os.Stderr, "brief: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'doppel --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`doppel - personal assistant that drafts in your voice

USAGE:
    doppel [COMMAND] [FLAGS]

COMMANDS:
    ingest      Index your sent mail into the retrieval store
    brief       Produce a briefing immediately and exit

    (no command) - Start an interactive chat session

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file path (default: ./config.yaml)
    --session NAME   Chat session name (default: cli-default)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: DOPPEL_* variables override config
    Secrets:     DOPPEL_LLM_API_KEY, DOPPEL_EMBEDDING_API_KEY

EXAMPLES:
    doppel ingest                # Index sent mail first
    doppel                       # Chat
    doppel --session work        # Chat in a named session
    doppel brief                 # One-off briefing`)
}
