package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/markbook-app/markbook/internal/syncer"
	"github.com/markbook-app/markbook/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync and storage status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Printf("\n%s\n\n", ui.RenderHeader("markbook status"))

		info, err := os.Stat(s.cfg.DatabasePath())
		switch {
		case os.IsNotExist(err):
			fmt.Printf("Local data:  %s\n", ui.RenderMuted("none yet"))
		case err != nil:
			return err
		default:
			fmt.Printf("Local data:  %s (%s, saved %s)\n",
				s.cfg.DatabasePath(), sizeString(info.Size()),
				info.ModTime().Format("2006-01-02 15:04:05"))
		}

		classrooms := s.store.Classrooms()
		students, lessons := 0, 0
		for _, c := range classrooms {
			students += len(c.Students)
			lessons += len(c.Lessons)
		}
		fmt.Printf("Classrooms:  %d (%d students, %d lessons)\n", len(classrooms), students, lessons)

		if !s.cfg.RemoteBacked() {
			fmt.Printf("Mode:        %s\n\n", ui.RenderMuted("local-only (run 'mb login' to sync)"))
			return nil
		}

		fmt.Printf("Remote:      %s\n", s.cfg.RemoteURL)
		st := s.ctrl.Status()
		fmt.Printf("Sync state:  %s\n", renderState(st.State))
		if !st.LastSync.IsZero() {
			fmt.Printf("Last sync:   %s\n", st.LastSync.Format("2006-01-02 15:04:05"))
		}
		if st.Pending > 0 {
			fmt.Printf("Pending:     %s\n", ui.RenderWarn(fmt.Sprintf("%d unsynced changes", st.Pending)))
			for _, p := range s.ctrl.Pending() {
				fmt.Printf("  %s %s (%s)\n", ui.RenderMuted("•"), p.Label, p.At.Format(time.Kitchen))
			}
		}
		fmt.Println()
		return nil
	},
}

func renderState(st syncer.State) string {
	switch st {
	case syncer.StateIdle:
		return ui.RenderPass(string(st))
	case syncer.StateSyncing:
		return ui.RenderAccent(string(st))
	case syncer.StateOffline:
		return ui.RenderWarn(string(st))
	default:
		return ui.RenderErr(string(st))
	}
}

func sizeString(n int64) string {
	switch {
	case n > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	case n > 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
