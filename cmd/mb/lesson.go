package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/markbook-app/markbook/internal/store"
	"github.com/markbook-app/markbook/internal/ui"
)

var (
	lessonDate string
	lessonMode string
)

var lessonCmd = &cobra.Command{
	Use:     "lesson",
	GroupID: "data",
	Short:   "Manage lessons and attendance",
}

var lessonListCmd = &cobra.Command{
	Use:   "list CLASSROOM",
	Short: "List a classroom's lessons",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := s.store.Classroom(args[0])
		if err != nil {
			return err
		}
		if len(c.Lessons) == 0 {
			fmt.Printf("%s No lessons yet\n", ui.RenderMuted("–"))
			return nil
		}
		fmt.Printf("\n%s\n\n", ui.RenderHeader("Lessons"))
		for _, l := range c.Lessons {
			date := l.Date
			if date == "" {
				date = ui.RenderMuted("(no date)")
			}
			mode := ""
			if l.Mode == store.ModeIELTS {
				mode = " " + ui.RenderAccent("[ielts]")
			}
			fmt.Printf("%3d  %s  %s%s  %s\n", l.ID, date, l.Topic, mode,
				ui.RenderMuted(fmt.Sprintf("%d students", len(l.StudentIDs))))
		}
		fmt.Println()
		return nil
	},
}

var lessonAddCmd = &cobra.Command{
	Use:   "add CLASSROOM TOPIC",
	Short: "Create a lesson",
	Long: `Create a lesson with the current roster. Attendance defaults to
present for everyone.

The --date flag takes a calendar date or natural language:

  mb lesson add c17... "Fractions" --date 2024-03-01
  mb lesson add c17... "Fractions" --date "next monday"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		date, err := resolveDate(lessonDate)
		if err != nil {
			return err
		}
		l, err := s.store.AddLesson(args[0], store.LessonInput{
			Topic: args[1],
			Date:  date,
			Mode:  lessonMode,
		})
		if err != nil {
			return err
		}
		s.commit("lesson created")
		fmt.Printf("%s Created lesson %d (%s", ui.RenderPass("✓"), l.ID, l.Topic)
		if l.Date != "" {
			fmt.Printf(", %s", l.Date)
		}
		fmt.Printf(")\n")
		return nil
	},
}

var lessonAttendCmd = &cobra.Command{
	Use:   "attend CLASSROOM LESSON STUDENT STATUS",
	Short: "Record attendance",
	Long:  `Record a student's attendance on a lesson: present, late or absent.`,
	Args:  cobra.ExactArgs(4),
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
		studentID, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("student id must be a number: %q", args[2])
		}
		status := store.Status(args[3])
		if !status.Valid() {
			return fmt.Errorf("status must be present, late or absent: %q", args[3])
		}
		if err := s.store.SetAttendance(args[0], lessonID, studentID, status); err != nil {
			return err
		}
		s.commit("attendance updated")
		fmt.Printf("%s Student #%d marked %s\n", ui.RenderPass("✓"), studentID, status)
		return nil
	},
}

var lessonRmCmd = &cobra.Command{
	Use:   "rm CLASSROOM ID",
	Short: "Delete a lesson",
	Long:  `Delete a lesson and the IELTS columns it created.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("lesson id must be a number: %q", args[1])
		}
		if err := s.store.DeleteLesson(args[0], id); err != nil {
			return err
		}
		s.commit("lesson deleted")
		fmt.Printf("%s Deleted lesson %d\n", ui.RenderPass("✓"), id)
		return nil
	},
}

// resolveDate accepts YYYY-MM-DD directly and falls back to natural
// language ("tomorrow", "next monday").
func resolveDate(input string) (string, error) {
	if input == "" {
		return time.Now().Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", input); err == nil {
		return input, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(input, time.Now())
	if err != nil || r == nil {
		return "", fmt.Errorf("cannot understand date %q; use YYYY-MM-DD or e.g. \"next monday\"", input)
	}
	return r.Time.Format("2006-01-02"), nil
}

func init() {
	lessonAddCmd.Flags().StringVar(&lessonDate, "date", "", "lesson date (default today)")
	lessonAddCmd.Flags().StringVar(&lessonMode, "mode", "", "lesson mode: standard or ielts")
	lessonCmd.AddCommand(lessonListCmd)
	lessonCmd.AddCommand(lessonAddCmd)
	lessonCmd.AddCommand(lessonAttendCmd)
	lessonCmd.AddCommand(lessonRmCmd)
	rootCmd.AddCommand(lessonCmd)
}
