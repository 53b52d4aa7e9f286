package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"price_tracker/config"
	"price_tracker/storage"
	"price_tracker/tui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ops, err := storage.NewSQLiteStore(cfg.OpsDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", cfg.OpsDBPath, err)
		os.Exit(1)
	}
	defer ops.Close()

	p := tea.NewProgram(tui.New(ops, cfg.LogPath), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
