// Command mb is the markbook CLI: a local-first gradebook with optional
// cloud sync. Data lives in a local SQLite snapshot database; when signed
// in, it is merged with the remote copy and pushed back.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markbook-app/markbook/internal/config"
	"github.com/markbook-app/markbook/internal/localdb"
	"github.com/markbook-app/markbook/internal/remote"
	"github.com/markbook-app/markbook/internal/store"
	"github.com/markbook-app/markbook/internal/syncer"
)

var dataDirFlag string

var rootCmd = &cobra.Command{
	Use:   "mb",
	Short: "markbook - local-first teacher gradebook",
	Long: `markbook manages classrooms, rosters, per-lesson attendance and grade
columns from the terminal.

All data is stored locally first. Sign in with 'mb login' to sync with a
cloud backend; every device merges by last-writer-wins per record and
nothing is ever deleted by a sync.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default ~/.markbook)")
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Gradebook commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if dataDirFlag != "" {
		return config.LoadFrom(dataDirFlag)
	}
	return config.Load()
}

// session bundles everything a one-shot command needs: config, the local
// database, the store loaded from it, and (when signed in) the remote
// adapter plus sync controller.
type session struct {
	cfg    *config.Config
	db     *localdb.DB
	store  *store.Store
	remote *remote.Adapter
	sqldb  *remote.SQLStore
	ctrl   *syncer.Controller
	saver  *syncer.Saver
}

// openSession loads the local snapshot (empty on first run) and, if the
// config is remote-backed, connects the sync side.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := localdb.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	snap, err := db.Load(ctx)
	if err != nil && !errors.Is(err, localdb.ErrNoData) {
		db.Close()
		return nil, fmt.Errorf("failed to load local data: %w", err)
	}

	s := &session{
		cfg:   cfg,
		db:    db,
		store: store.FromSnapshot(snap),
	}

	if cfg.RemoteBacked() {
		sqldb, err := remote.OpenSQL(remoteDSN(cfg))
		if err != nil {
			// Remote trouble must not block local work.
			fmt.Fprintf(os.Stderr, "Warning: remote unavailable: %v\n", err)
		} else {
			s.sqldb = sqldb
			s.remote = remote.NewAdapter(sqldb, quietLogger())
		}
	}

	syncCfg := syncer.DefaultConfig()
	syncCfg.SyncInterval = cfg.SyncInterval
	syncCfg.DebounceInterval = cfg.Debounce
	syncCfg.Logger = quietLogger()
	if cfg.RemoteURL != "" {
		syncCfg.Probe = syncer.NewDialProbe(cfg.RemoteURL)
	}
	var rm syncer.Remote
	if s.remote != nil {
		rm = s.remote
	}
	s.ctrl = syncer.New(s.store, s.db, rm, cfg.UserID, syncCfg)
	s.saver = syncer.NewSaver(s.ctrl)
	return s, nil
}

func (s *session) Close() {
	if s.sqldb != nil {
		s.sqldb.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// commit persists after a mutation. One-shot commands always save
// immediately; the debounced path only matters for the long-running
// server, where edits arrive in bursts.
func (s *session) commit(label string) {
	s.saver.SaveNow(label)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// remoteDSN appends the auth token to the backend URL the way the libsql
// driver expects it.
func remoteDSN(cfg *config.Config) string {
	if cfg.RemoteToken == "" {
		return cfg.RemoteURL
	}
	sep := "?"
	if strings.Contains(cfg.RemoteURL, "?") {
		sep = "&"
	}
	return cfg.RemoteURL + sep + "authToken=" + cfg.RemoteToken
}
