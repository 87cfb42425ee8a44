package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/stintworks/stintflow/internal/logging"
)

func runPurgeLogs(args []string) {
	var settingsPath string
	retention := 0

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--retention-days":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--retention-days requires a value")
				os.Exit(1)
			}
			n, err := strconv.Atoi(args[i])
			if err != nil || n < 1 {
				fmt.Fprintln(os.Stderr, "--retention-days must be a positive integer")
				os.Exit(1)
			}
			retention = n
		case "--settings":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--settings requires a value")
				os.Exit(1)
			}
			settingsPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}

	if retention == 0 {
		cfg, err := loadSettings(settingsPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		retention = cfg.Logging.RetentionDays
	}

	dir, err := logging.DefaultDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	removed, err := logging.Purge(dir, retention, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("removed %d archived logs older than %d days\n", removed, retention)
}
