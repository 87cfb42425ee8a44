package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "track":
		runTrack(os.Args[2:])
	case "purge-logs":
		runPurgeLogs(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  stintflow track --session-id <id> [--drivers <name>]... [--practice] [--agent-name <name>] [--dry-run] [--replay <file>] [--settings <file>]")
	fmt.Fprintln(os.Stderr, "  stintflow purge-logs [--retention-days <n>] [--settings <file>]")
}
