package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sadopc/done/internal/tasks"
)

func newProjectsCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "List and manage projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			c := s.svc.Cache()
			out := cmd.OutOrStdout()
			for _, p := range c.Projects() {
				open, done := 0, 0
				for _, it := range c.ItemsIn(p.ID) {
					if it.Completed() {
						done++
					} else {
						open++
					}
				}
				fmt.Fprintf(out, "%s %-20s %3d open %3d done\n", shortID(p.ID), p.Title, open, done)
			}
			return nil
		},
	}

	var color, icon string
	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := s.svc.AddProject(cmd.Context(), tasks.ProjectInput{Title: args[0], Color: color, Icon: icon})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s\n", shortID(p.ID), p.Title)
			return nil
		},
	}
	add.Flags().StringVar(&color, "color", "", "hex color, e.g. #3b82f6")
	add.Flags().StringVar(&icon, "icon", "", "icon name")

	rename := &cobra.Command{
		Use:   "rename <project> <title>",
		Short: "Rename a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := resolveProject(s.svc.Cache(), args[0])
			if err != nil {
				return err
			}
			p.Title = args[1]
			return s.svc.UpdateProject(cmd.Context(), p)
		},
	}

	rm := &cobra.Command{
		Use:   "rm <project>",
		Short: "Delete a project; its tasks are kept without a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := resolveProject(s.svc.Cache(), args[0])
			if err != nil {
				return err
			}
			if err := s.svc.DeleteProject(cmd.Context(), p.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted", p.Title)
			return nil
		},
	}

	cmd.AddCommand(add, rename, rm)
	return cmd
}
