package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markbook-app/markbook/internal/store"
	"github.com/markbook-app/markbook/internal/ui"
)

var (
	classroomSubject string
	classroomTeacher string
)

var classroomCmd = &cobra.Command{
	Use:     "classroom",
	GroupID: "data",
	Short:   "Manage classrooms",
}

var classroomListCmd = &cobra.Command{
	Use:   "list",
	Short: "List classrooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		classrooms := s.store.Classrooms()
		if len(classrooms) == 0 {
			fmt.Printf("%s No classrooms yet; add one with 'mb classroom add'\n", ui.RenderMuted("–"))
			return nil
		}
		fmt.Printf("\n%s\n\n", ui.RenderHeader("Classrooms"))
		for _, c := range classrooms {
			fmt.Printf("%s %s", ui.RenderAccent(c.ID), c.Name)
			if c.Subject != "" {
				fmt.Printf(" %s", ui.RenderMuted("("+c.Subject+")"))
			}
			fmt.Printf("  %s\n", ui.RenderMuted(fmt.Sprintf("%d students, %d lessons", len(c.Students), len(c.Lessons))))
		}
		fmt.Println()
		return nil
	},
}

var classroomAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a classroom",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := s.store.CreateClassroom(store.ClassroomInput{
			Name:    args[0],
			Subject: classroomSubject,
			Teacher: classroomTeacher,
		})
		if err != nil {
			return err
		}
		s.commit("classroom created")
		fmt.Printf("%s Created classroom %s (%s)\n", ui.RenderPass("✓"), c.Name, c.ID)
		return nil
	},
}

var classroomRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a classroom",
	Long: `Delete a classroom locally and, when signed in, from the cloud.

This is the only operation that removes remote data; syncs themselves
never delete anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.store.DeleteClassroom(args[0]); err != nil {
			return err
		}
		s.commit("classroom deleted")

		if s.remote != nil {
			if err := s.remote.Delete(ctx, s.cfg.UserID, args[0]); err != nil {
				fmt.Printf("%s Local delete done, remote delete failed: %v\n", ui.RenderWarn("⚠"), err)
				s.ctrl.MarkPending("classroom delete not propagated")
				return nil
			}
		}
		fmt.Printf("%s Deleted classroom %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func init() {
	classroomAddCmd.Flags().StringVar(&classroomSubject, "subject", "", "subject taught")
	classroomAddCmd.Flags().StringVar(&classroomTeacher, "teacher", "", "teacher display name")
	classroomCmd.AddCommand(classroomListCmd)
	classroomCmd.AddCommand(classroomAddCmd)
	classroomCmd.AddCommand(classroomRmCmd)
	rootCmd.AddCommand(classroomCmd)
}
