package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/omerbl/trackd/internal/engine"
	"github.com/omerbl/trackd/internal/identity"
	"github.com/omerbl/trackd/internal/notify"
	"github.com/omerbl/trackd/internal/tui"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the live timer dashboard",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	ids, err := identity.NewManager("")
	if err != nil {
		return err
	}

	owner := ""
	if id := ids.Current(); id != nil {
		owner = id.OwnerID
	}

	// Engine notifications are forwarded to the dashboard status line.
	notices := make(chan notify.Notification, 16)
	notifier := notify.Func(func(n notify.Notification) {
		select {
		case notices <- n:
		default:
		}
	})

	session, err := engine.NewSession(engine.Config{
		OwnerID:  owner,
		Gateway:  newGatewayClient(apiAddr),
		Notifier: notifier,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Load(context.Background()); err != nil {
		return fmt.Errorf("load session (is the daemon running?): %w", err)
	}

	app := tui.New(session, notices)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
