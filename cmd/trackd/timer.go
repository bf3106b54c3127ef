package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/omerbl/trackd/internal/engine"
	"github.com/omerbl/trackd/internal/identity"
	"github.com/omerbl/trackd/internal/notify"
	"github.com/spf13/cobra"
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Control the timer",
}

var timerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start tracking time",
	RunE:  runTimerStart,
}

var timerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running timer",
	RunE:  runTimerStop,
}

var timerSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Stop the running timer and append notes",
	RunE:  runTimerSave,
}

var timerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the running timer without recording time",
	RunE:  runTimerReset,
}

var timerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the timer and today/week totals",
	RunE:  runTimerStatus,
}

var timerTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List today's entries",
	RunE:  runTimerToday,
}

var (
	startProject  string
	startClient   string
	startDesc     string
	startTags     string
	startBillable bool
	saveNotes     string
)

func init() {
	timerCmd.AddCommand(timerStartCmd, timerStopCmd, timerSaveCmd, timerResetCmd, timerStatusCmd, timerTodayCmd)

	timerStartCmd.Flags().StringVar(&startProject, "project", "", "Project ID")
	timerStartCmd.Flags().StringVar(&startClient, "client", "", "Client ID")
	timerStartCmd.Flags().StringVar(&startDesc, "desc", "", "Entry description")
	timerStartCmd.Flags().StringVar(&startTags, "tags", "", "Comma-separated tags")
	timerStartCmd.Flags().BoolVar(&startBillable, "billable", false, "Mark the entry billable")

	timerSaveCmd.Flags().StringVar(&saveNotes, "notes", "", "Notes to append to the description")
	timerSaveCmd.MarkFlagRequired("notes")
}

// newSession builds a loaded session for one-shot CLI commands.
func newSession(ctx context.Context) (*engine.Session, error) {
	ids, err := identity.NewManager("")
	if err != nil {
		return nil, err
	}

	owner := ""
	if id := ids.Current(); id != nil {
		owner = id.OwnerID
	}

	session, err := engine.NewSession(engine.Config{
		OwnerID:  owner,
		Gateway:  newGatewayClient(apiAddr),
		Notifier: notify.Log(),
	})
	if err != nil {
		return nil, err
	}
	if err := session.Load(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

func runTimerStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	var tags []string
	if startTags != "" {
		for _, t := range strings.Split(startTags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	entry, err := session.Start(ctx, engine.StartOptions{
		ProjectID:   startProject,
		ClientID:    startClient,
		Description: startDesc,
		Tags:        tags,
		Billable:    startBillable,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Started entry %s at %s\n", truncateID(entry.ID), entry.StartTime.Local().Format("15:04:05"))
	return nil
}

func runTimerStop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	entry, err := session.Stop(ctx)
	if err != nil {
		return err
	}
	if entry == nil {
		fmt.Println("No timer running")
		return nil
	}

	minutes := int64(0)
	if entry.DurationMinutes != nil {
		minutes = *entry.DurationMinutes
	}
	fmt.Printf("Stopped entry %s: %d min\n", truncateID(entry.ID), minutes)
	return nil
}

func runTimerSave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	entry, err := session.Save(ctx, saveNotes)
	if err != nil {
		return err
	}
	if entry == nil {
		fmt.Println("No timer running")
		return nil
	}

	minutes := int64(0)
	if entry.DurationMinutes != nil {
		minutes = *entry.DurationMinutes
	}
	fmt.Printf("Saved entry %s: %d min\n", truncateID(entry.ID), minutes)
	fmt.Printf("Description: %s\n", entry.Description)
	return nil
}

func runTimerReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	if session.Current() == nil {
		fmt.Println("No timer running")
		return nil
	}
	if err := session.Reset(ctx); err != nil {
		return err
	}

	fmt.Println("Entry discarded, no time recorded")
	return nil
}

func runTimerStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	if current := session.Current(); current != nil {
		fmt.Printf("Status:      running\n")
		fmt.Printf("Elapsed:     %s\n", engine.FormatElapsed(session.Elapsed()))
		fmt.Printf("Started:     %s\n", current.StartTime.Local().Format("15:04:05"))
		if current.Description != "" {
			fmt.Printf("Description: %s\n", current.Description)
		}
		if len(current.Tags) > 0 {
			fmt.Printf("Tags:        %s\n", engine.FormatTags(current.Tags))
		}
	} else {
		fmt.Printf("Status:      idle\n")
	}

	totals := session.Totals()
	fmt.Printf("Today:       %d min\n", totals.TodayMinutes)
	fmt.Printf("This week:   %d min\n", totals.WeekMinutes)
	return nil
}

func runTimerToday(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	entries := session.TodayEntries()
	if len(entries) == 0 {
		fmt.Println("No entries today")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tMIN\tDESCRIPTION")
	for _, e := range entries {
		minutes := "-"
		if e.DurationMinutes != nil {
			minutes = fmt.Sprintf("%d", *e.DurationMinutes)
		} else if e.IsRunning {
			minutes = "live"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncateID(e.ID), e.StartTime.Local().Format("15:04"), minutes, truncate(e.Description, 40))
	}
	w.Flush()
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
