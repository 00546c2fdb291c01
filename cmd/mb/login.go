package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/markbook-app/markbook/internal/remote"
	"github.com/markbook-app/markbook/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "sync",
	Short:   "Sign in to a sync backend",
	Long: `Store the sync backend credentials and provision its schema.

You will be asked for the backend URL (e.g. libsql://markbook-you.turso.io),
your user id, and the auth token. The token is read without echo and kept
in the config file under the data directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		reader := bufio.NewReader(os.Stdin)
		url, err := promptLine(reader, "Backend URL", cfg.RemoteURL)
		if err != nil {
			return err
		}
		userID, err := promptLine(reader, "User id", cfg.UserID)
		if err != nil {
			return err
		}

		fmt.Print("Auth token: ")
		tokenBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token := strings.TrimSpace(string(tokenBytes))

		cfg.Set("remote_url", url)
		cfg.Set("user_id", userID)
		if token != "" {
			cfg.Set("remote_token", token)
		}

		// Verify the credentials and provision tables before persisting.
		dsn := url
		if token != "" {
			dsn += "?authToken=" + token
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sqldb, err := remote.OpenSQL(dsn)
		if err != nil {
			return fmt.Errorf("cannot reach backend: %w", err)
		}
		defer sqldb.Close()
		if err := sqldb.InitSchema(ctx); err != nil {
			return fmt.Errorf("cannot provision schema: %w", err)
		}

		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("%s Signed in as %s\n", ui.RenderPass("✓"), userID)
		fmt.Printf("   Run 'mb sync' to merge this device with the cloud\n")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "sync",
	Short:   "Sign out and return to local-only mode",
	Long: `Remove the stored credentials. Local data stays on disk; a signout
snapshot is written so it can be inspected or restored later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.db.SaveSignout(ctx, s.store.Snapshot()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write signout snapshot: %v\n", err)
		}

		s.cfg.Set("remote_url", "")
		s.cfg.Set("remote_token", "")
		s.cfg.Set("user_id", "")
		if err := s.cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("%s Signed out; data stays local\n", ui.RenderPass("✓"))
		return nil
	},
}

func promptLine(r *bufio.Reader, label, current string) (string, error) {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, current)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return current, nil
	}
	return line, nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
