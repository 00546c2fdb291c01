package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/markbook-app/markbook/internal/export"
	"github.com/markbook-app/markbook/internal/ui"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "data",
	Short:   "Build report payloads",
	Long: `Build the report payload for a lesson or a whole class.

The payload is the exact input the document generators consume: ordered
columns, per-student rows, resolved accent colors and the school logo.
It is written as JSON, to stdout by default.`,
}

var exportLessonCmd = &cobra.Command{
	Use:   "lesson CLASSROOM LESSON",
	Short: "Build a lesson report payload",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		lessonID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("lesson id must be a number: %q", args[1])
		}
		p, err := export.NewBuilder(s.store).Lesson(args[0], lessonID)
		if err != nil {
			return err
		}
		return writePayload(p)
	},
}

var exportClassCmd = &cobra.Command{
	Use:   "class CLASSROOM",
	Short: "Build a class attendance report payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		p, err := export.NewBuilder(s.store).Class(args[0])
		if err != nil {
			return err
		}
		return writePayload(p)
	},
}

func writePayload(p *export.Payload) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	data = append(data, '\n')
	if exportOut == "" || exportOut == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(exportOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", exportOut, err)
	}
	fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), exportOut)
	return nil
}

func init() {
	exportCmd.PersistentFlags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.AddCommand(exportLessonCmd)
	exportCmd.AddCommand(exportClassCmd)
	rootCmd.AddCommand(exportCmd)
}
