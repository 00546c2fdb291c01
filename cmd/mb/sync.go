package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/markbook-app/markbook/internal/merge"
	"github.com/markbook-app/markbook/internal/syncer"
	"github.com/markbook-app/markbook/internal/ui"
)

var syncInteractive bool

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Sync with the cloud now",
	Long: `Run one sync cycle: pull the remote snapshot, merge it with local
data, push the result back and persist it.

The merge is last-writer-wins per record and never deletes anything. With
--interactive, classrooms edited on both devices are shown one by one so
you can pick which side to keep instead of trusting the timestamps.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if s.remote == nil {
			return fmt.Errorf("not signed in; run 'mb login' first")
		}
		if syncInteractive {
			s.ctrl = interactiveController(s)
		}

		fmt.Printf("%s Syncing...\n", ui.RenderAccent("🔄"))
		start := time.Now()
		if err := s.ctrl.SyncWithCloud(ctx); err != nil {
			if errors.Is(err, syncer.ErrOffline) {
				fmt.Printf("%s Backend unreachable; changes stay queued\n", ui.RenderWarn("⚠"))
				return nil
			}
			return err
		}

		status := s.ctrl.Status()
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Classrooms: %d\n", len(s.store.Classrooms()))
		if status.Message != "" {
			fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), status.Message)
		}
		return nil
	},
}

func interactiveController(s *session) *syncer.Controller {
	cfg := syncer.DefaultConfig()
	cfg.SyncInterval = s.cfg.SyncInterval
	cfg.Logger = quietLogger()
	cfg.Resolver = promptResolver{}
	if s.cfg.RemoteURL != "" {
		cfg.Probe = syncer.NewDialProbe(s.cfg.RemoteURL)
	}
	return syncer.New(s.store, s.db, s.remote, s.cfg.UserID, cfg)
}

// promptResolver asks the user per conflicting classroom. A failed or
// cancelled prompt keeps the automatic merge.
type promptResolver struct{}

func (promptResolver) Resolve(c merge.Conflict) merge.Resolution {
	choice := merge.KeepMerged
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[merge.Resolution]().
			Title(fmt.Sprintf("%q was edited on two devices", c.Local.Name)).
			Description(fmt.Sprintf("local: %s   cloud: %s",
				c.Local.UpdatedAt.Format("2006-01-02 15:04"),
				c.Cloud.UpdatedAt.Format("2006-01-02 15:04"))).
			Options(
				huh.NewOption("Merge both (newest wins per record)", merge.KeepMerged),
				huh.NewOption("Keep this device's copy", merge.KeepLocal),
				huh.NewOption("Keep the cloud copy", merge.KeepCloud),
			).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		return merge.KeepMerged
	}
	return choice
}

func init() {
	syncCmd.Flags().BoolVarP(&syncInteractive, "interactive", "i", false, "resolve conflicts interactively")
	rootCmd.AddCommand(syncCmd)
}
