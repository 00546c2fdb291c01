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
	columnIELTS  bool
	columnLesson int
)

var gradeCmd = &cobra.Command{
	Use:     "grade",
	GroupID: "data",
	Short:   "Manage grade columns and grades",
}

var gradeColumnsCmd = &cobra.Command{
	Use:   "columns CLASSROOM",
	Short: "List grade columns",
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
		if len(c.Columns) == 0 {
			fmt.Printf("%s No columns yet\n", ui.RenderMuted("–"))
			return nil
		}
		fmt.Printf("\n%s\n\n", ui.RenderHeader("Columns"))
		for _, col := range c.Columns {
			scope := ui.RenderMuted("classroom-wide")
			if col.IELTS {
				scope = ui.RenderAccent(fmt.Sprintf("ielts, lesson %d", col.LessonID))
			}
			fmt.Printf("%3d  %-24s %s\n", col.ID, col.Name, scope)
		}
		fmt.Println()
		return nil
	},
}

var gradeColumnAddCmd = &cobra.Command{
	Use:   "column-add CLASSROOM NAME",
	Short: "Add a grade column",
	Long: `Add a grade column. Plain columns apply to every lesson; with
--ielts and --lesson the column is scoped to that one lesson.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		col, err := s.store.AddColumn(args[0], store.ColumnInput{
			Name:     args[1],
			IELTS:    columnIELTS,
			LessonID: columnLesson,
		})
		if err != nil {
			return err
		}
		s.commit("column added")
		fmt.Printf("%s Added column %s (#%d)\n", ui.RenderPass("✓"), col.Name, col.ID)
		return nil
	},
}

var gradeSetCmd = &cobra.Command{
	Use:   "set CLASSROOM LESSON COLUMN STUDENT VALUE",
	Short: "Record a grade",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		ids := make([]int, 3)
		for i, arg := range args[1:4] {
			n, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("expected a number, got %q", arg)
			}
			ids[i] = n
		}
		if err := s.store.SetGrade(args[0], ids[0], ids[1], ids[2], args[4]); err != nil {
			return err
		}
		s.commit("grade updated")
		fmt.Printf("%s Recorded %q for student #%d\n", ui.RenderPass("✓"), args[4], ids[2])
		return nil
	},
}

func init() {
	gradeColumnAddCmd.Flags().BoolVar(&columnIELTS, "ielts", false, "IELTS column scoped to one lesson")
	gradeColumnAddCmd.Flags().IntVar(&columnLesson, "lesson", 0, "lesson id for an IELTS column")
	gradeCmd.AddCommand(gradeColumnsCmd)
	gradeCmd.AddCommand(gradeColumnAddCmd)
	gradeCmd.AddCommand(gradeSetCmd)
	rootCmd.AddCommand(gradeCmd)
}
