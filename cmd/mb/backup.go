package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markbook-app/markbook/internal/localdb"
	"github.com/markbook-app/markbook/internal/merge"
	"github.com/markbook-app/markbook/internal/store"
	"github.com/markbook-app/markbook/internal/ui"
)

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: "data",
	Short:   "Export and import snapshot files",
	Long: `Move gradebook data in and out as JSON snapshot files.

'backup export' writes the full document; 'backup import' merges a file
into the current data using the same never-delete merge as cloud sync.`,
}

var backupExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write the full snapshot to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		data, err := json.MarshalIndent(s.store.Snapshot(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		if err := os.WriteFile(args[0], append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var backupImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Merge a snapshot file into the local data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read backup: %w", err)
		}
		var snap store.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("not a snapshot file: %w", err)
		}

		before := len(s.store.Classrooms())
		merged := merge.Merge(s.store.Snapshot(), &snap)
		s.store.Replace(merged)
		s.commit("backup imported")

		fmt.Printf("%s Imported %s (%d classrooms, %d new)\n", ui.RenderPass("✓"),
			args[0], len(merged.Classrooms), len(merged.Classrooms)-before)
		return nil
	},
	Args: cobra.ExactArgs(1),
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the last-known-good snapshot",
	Long: `Replace the working data with the backup slot written alongside
every save. Use when the primary slot is unreadable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		snap, err := s.db.LoadBackup(ctx)
		if err != nil {
			if errors.Is(err, localdb.ErrNoData) {
				return fmt.Errorf("no backup slot present yet")
			}
			return err
		}
		s.store.Replace(snap)
		s.commit("backup restored")
		fmt.Printf("%s Restored %d classrooms from the backup slot\n",
			ui.RenderPass("✓"), len(snap.Classrooms))
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupExportCmd)
	backupCmd.AddCommand(backupImportCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}
