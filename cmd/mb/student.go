package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/markbook-app/markbook/internal/store"
	"github.com/markbook-app/markbook/internal/ui"
)

var (
	studentPhone  string
	studentEmail  string
	studentParent string
)

var studentCmd = &cobra.Command{
	Use:     "student",
	GroupID: "data",
	Short:   "Manage class rosters",
}

var studentListCmd = &cobra.Command{
	Use:   "list CLASSROOM",
	Short: "List a classroom's roster with attendance rates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		rows, err := s.store.ClassStats(args[0])
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Printf("%s Roster is empty\n", ui.RenderMuted("–"))
			return nil
		}
		fmt.Printf("\n%s\n\n", ui.RenderHeader("Roster"))
		for _, r := range rows {
			rate := fmt.Sprintf("%3d%%", r.Rate())
			styled := ui.RenderPass(rate)
			if r.Rate() < 75 {
				styled = ui.RenderWarn(rate)
			}
			fmt.Printf("%3d  %-24s %s  %s\n", r.StudentID, r.Name, styled,
				ui.RenderMuted(fmt.Sprintf("present %d, late %d, absent %d of %d",
					r.Present, r.Late, r.Absent, r.Total)))
		}
		fmt.Println()
		return nil
	},
}

var studentAddCmd = &cobra.Command{
	Use:   "add CLASSROOM NAME",
	Short: "Add a student to a classroom",
	Long: `Add a student. Existing lessons keep their roster snapshot, so the
new student only appears on lessons created from now on.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		st, err := s.store.AddStudent(args[0], store.StudentInput{
			Name:       args[1],
			Phone:      studentPhone,
			Email:      studentEmail,
			ParentName: studentParent,
		})
		if err != nil {
			return err
		}
		s.commit("student added")
		fmt.Printf("%s Added %s (#%d)\n", ui.RenderPass("✓"), st.Name, st.ID)
		return nil
	},
}

var studentRmCmd = &cobra.Command{
	Use:   "rm CLASSROOM ID",
	Short: "Remove a student",
	Long: `Remove a student from the roster. Past lessons keep the student's
attendance and grade cells; only the roster entry goes away.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("student id must be a number: %q", args[1])
		}
		if err := s.store.DeleteStudent(args[0], id); err != nil {
			return err
		}
		s.commit("student removed")
		fmt.Printf("%s Removed student #%d\n", ui.RenderPass("✓"), id)
		return nil
	},
}

func init() {
	studentAddCmd.Flags().StringVar(&studentPhone, "phone", "", "phone number")
	studentAddCmd.Flags().StringVar(&studentEmail, "email", "", "email address")
	studentAddCmd.Flags().StringVar(&studentParent, "parent", "", "parent name")
	studentCmd.AddCommand(studentListCmd)
	studentCmd.AddCommand(studentAddCmd)
	studentCmd.AddCommand(studentRmCmd)
	rootCmd.AddCommand(studentCmd)
}
