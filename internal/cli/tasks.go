package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/done/internal/model"
	"github.com/sadopc/done/internal/tasks"
)

func newAddCmd(f *rootFlags) *cobra.Command {
	var (
		project    string
		priority   string
		repeat     string
		threeStep  bool
		noDeadline bool
	)
	cmd := &cobra.Command{
		Use:   "add <text...>",
		Short: "Add a task",
		Long: `Add a task. Deadlines are read from the text, so
"Call mom tomorrow at 5pm" becomes "Call mom" due tomorrow at 17:00.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			in := tasks.ItemInput{
				Title:      strings.Join(args, " "),
				Priority:   model.Priority(priority),
				Recurrence: model.Recurrence(repeat),
			}
			if project != "" {
				p, err := resolveProject(s.svc.Cache(), project)
				if err != nil {
					return err
				}
				in.CategoryID = &p.ID
			}
			if cmd.Flags().Changed("three-step") {
				in.ProcessEnabled = &threeStep
			}

			var it model.Item
			if noDeadline {
				it, err = s.svc.AddItem(cmd.Context(), in)
			} else {
				it, err = quickAdd(cmd, s.svc, in)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s\n", shortID(it.ID), it.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project title or id")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&repeat, "repeat", "", "daily, weekly or monthly")
	cmd.Flags().BoolVar(&threeStep, "three-step", false, "subtasks go pending, in progress, completed")
	cmd.Flags().BoolVar(&noDeadline, "no-deadline", false, "do not read a deadline from the text")
	return cmd
}

// quickAdd reads the deadline from the title, then applies the flags the
// quick path does not take.
func quickAdd(cmd *cobra.Command, svc *tasks.Service, in tasks.ItemInput) (model.Item, error) {
	if in.Priority != "" || in.Recurrence != "" || in.ProcessEnabled != nil {
		it, err := svc.QuickAdd(cmd.Context(), in.Title, in.CategoryID)
		if err != nil {
			return model.Item{}, err
		}
		if in.Priority != "" {
			it.Priority = in.Priority
		}
		if in.Recurrence != "" {
			it.Recurrence = in.Recurrence
		}
		if in.ProcessEnabled != nil {
			it.IsSubtaskProcessEnabled = *in.ProcessEnabled
		}
		return it, svc.UpdateItem(cmd.Context(), it)
	}
	return svc.QuickAdd(cmd.Context(), in.Title, in.CategoryID)
}

func newListCmd(f *rootFlags) *cobra.Command {
	var (
		all     bool
		project string
		flat    bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			c := s.svc.Cache()
			items := c.Items()
			if project != "" {
				p, err := resolveProject(c, project)
				if err != nil {
					return err
				}
				items = c.ItemsIn(p.ID)
			}

			out := cmd.OutOrStdout()
			shown := 0
			for _, it := range items {
				if !all && it.Completed() {
					continue
				}
				shown++
				printItem(out, c, it, time.Now())
				if !flat {
					for _, top := range c.TopLevel(it.ID) {
						printSubtask(out, top, 1)
						for _, child := range c.Children(top.ID) {
							printSubtask(out, child, 2)
						}
					}
				}
			}
			if shown == 0 {
				fmt.Fprintln(out, "Nothing to do.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed tasks")
	cmd.Flags().StringVarP(&project, "project", "p", "", "only tasks in this project")
	cmd.Flags().BoolVar(&flat, "flat", false, "hide subtasks")
	return cmd
}

func printItem(w io.Writer, c *model.Cache, it model.Item, now time.Time) {
	mark := "[ ]"
	if it.Completed() {
		mark = "[x]"
	}
	var meta []string
	if it.CategoryID != nil {
		if p, ok := c.Project(*it.CategoryID); ok {
			meta = append(meta, "#"+p.Title)
		}
	}
	if it.Priority == model.PriorityHigh {
		meta = append(meta, "!")
	}
	if it.Deadline != nil {
		d := it.Deadline.Local().Format("2006-01-02 15:04")
		if !it.Completed() && it.Deadline.Before(now) {
			d = "overdue " + d
		}
		meta = append(meta, d)
	}
	if it.Recurrence != model.RecurrenceNone {
		meta = append(meta, string(it.Recurrence))
	}
	subs := c.SubtasksOf(it.ID)
	if len(subs) > 0 {
		done := 0
		for _, s := range subs {
			if s.Completed {
				done++
			}
		}
		meta = append(meta, fmt.Sprintf("%d/%d", done, len(subs)))
	}
	if n := len(c.CommentsOf(it.ID)); n > 0 {
		meta = append(meta, fmt.Sprintf("%d comments", n))
	}

	line := fmt.Sprintf("%s %s %s", shortID(it.ID), mark, it.Title)
	if len(meta) > 0 {
		line += "  (" + strings.Join(meta, ", ") + ")"
	}
	fmt.Fprintln(w, line)
}

func printSubtask(w io.Writer, sub model.Subtask, depth int) {
	mark := "[ ]"
	switch sub.Status {
	case model.SubtaskCompleted:
		mark = "[x]"
	case model.SubtaskInProgress:
		mark = "[~]"
	}
	fmt.Fprintf(w, "%s%s %s %s\n", strings.Repeat("  ", depth), shortID(sub.ID), mark, sub.Title)
}

func newDoneCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a task or subtask",
		Long:  "Toggle a task or subtask. In three-step tasks a subtask advances pending, in progress, completed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			t, err := resolve(s.svc.Cache(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if t.item != nil {
				it, err := s.svc.ToggleItem(cmd.Context(), t.item.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s\n", it.Title, it.Status)
				return nil
			}
			sub, err := s.svc.ToggleSubtask(cmd.Context(), t.subtask.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s\n", sub.Title, sub.Status)
			return nil
		},
	}
}

func newRmCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task or subtask with everything under it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			t, err := resolve(s.svc.Cache(), args[0])
			if err != nil {
				return err
			}
			if t.item != nil {
				err = s.svc.DeleteItem(cmd.Context(), t.item.ID)
			} else {
				err = s.svc.DeleteSubtask(cmd.Context(), t.subtask.ID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted", shortID(args[0]))
			return nil
		},
	}
}

func newEditCmd(f *rootFlags) *cobra.Command {
	var (
		title     string
		priority  string
		repeat    string
		project   string
		deadline  string
		threeStep bool
		into      string
		promote   bool
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task or subtask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			c := s.svc.Cache()
			out := cmd.OutOrStdout()
			t, err := resolve(c, args[0])
			if err != nil {
				return err
			}

			if t.subtask != nil {
				sub := *t.subtask
				if promote {
					id, err := s.svc.ConvertSubtaskToItem(ctx, sub.ID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Promoted to task %s\n", shortID(id))
					return nil
				}
				if into != "" {
					dst, err := resolveItem(c, into)
					if err != nil {
						return err
					}
					return s.svc.MoveSubtask(ctx, sub.ID, dst.ID)
				}
				if title == "" {
					return nil
				}
				return s.svc.RenameSubtask(ctx, sub.ID, title)
			}

			it := *t.item
			if into != "" {
				dst, err := resolveItem(c, into)
				if err != nil {
					return err
				}
				id, err := s.svc.ConvertItemToSubtask(ctx, it.ID, dst.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Now subtask %s of %s\n", shortID(id), dst.Title)
				return nil
			}
			if title != "" {
				it.Title = title
			}
			if priority != "" {
				it.Priority = model.Priority(priority)
			}
			if cmd.Flags().Changed("repeat") {
				it.Recurrence = model.Recurrence(repeat)
			}
			if cmd.Flags().Changed("three-step") {
				it.IsSubtaskProcessEnabled = threeStep
			}
			if cmd.Flags().Changed("project") {
				it.CategoryID = nil
				if project != "" {
					p, err := resolveProject(c, project)
					if err != nil {
						return err
					}
					it.CategoryID = &p.ID
				}
			}
			if cmd.Flags().Changed("deadline") {
				it.Deadline = nil
				if deadline != "" {
					d, err := time.ParseInLocation("2006-01-02 15:04", deadline, time.Local)
					if err != nil {
						if d, err = time.ParseInLocation("2006-01-02", deadline, time.Local); err != nil {
							return fmt.Errorf("deadline must be YYYY-MM-DD [HH:MM]: %w", err)
						}
					}
					d = d.UTC()
					it.Deadline = &d
				}
			}
			return s.svc.UpdateItem(ctx, it)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&repeat, "repeat", "", "daily, weekly, monthly or empty to stop")
	cmd.Flags().StringVarP(&project, "project", "p", "", "project title or id, empty to clear")
	cmd.Flags().StringVar(&deadline, "deadline", "", "YYYY-MM-DD [HH:MM], empty to clear")
	cmd.Flags().BoolVar(&threeStep, "three-step", false, "subtasks go pending, in progress, completed")
	cmd.Flags().StringVar(&into, "into", "", "move under another task")
	cmd.Flags().BoolVar(&promote, "promote", false, "turn a subtask into a task")
	return cmd
}

func newSubCmd(f *rootFlags) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "sub <task-id> <title...>",
		Short: "Add a subtask",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			c := s.svc.Cache()
			it, err := resolveItem(c, args[0])
			if err != nil {
				return err
			}
			var parentID *string
			if parent != "" {
				t, err := resolve(c, parent)
				if err != nil {
					return err
				}
				if t.subtask == nil {
					return fmt.Errorf("parent %s is not a subtask", parent)
				}
				parentID = &t.subtask.ID
			}
			sub, err := s.svc.AddSubtask(cmd.Context(), it.ID, parentID, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s\n", shortID(sub.ID), sub.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "nest under this subtask")
	return cmd
}

func newCommentCmd(f *rootFlags) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "comment <task-id> [text...]",
		Short: "Comment on a task, or list its comments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			c := s.svc.Cache()
			out := cmd.OutOrStdout()
			if remove {
				for _, it := range c.Items() {
					for _, cm := range c.CommentsOf(it.ID) {
						if strings.HasPrefix(cm.ID, args[0]) && len(args[0]) >= minPrefix {
							return s.svc.DeleteComment(cmd.Context(), cm.ID)
						}
					}
				}
				return model.NotFoundError{Kind: "comment", ID: args[0]}
			}

			it, err := resolveItem(c, args[0])
			if err != nil {
				return err
			}
			if len(args) == 1 {
				for _, cm := range c.CommentsOf(it.ID) {
					fmt.Fprintf(out, "%s %s  %s\n", shortID(cm.ID), cm.CreatedAt.Local().Format("2006-01-02 15:04"), cm.Text)
				}
				return nil
			}
			cm, err := s.svc.AddComment(cmd.Context(), it.ID, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Added comment %s\n", shortID(cm.ID))
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "rm", false, "delete the comment with this id")
	return cmd
}

func newPinCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pin <task-id>",
		Short: "Pin or unpin a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			it, err := resolveItem(s.svc.Cache(), args[0])
			if err != nil {
				return err
			}
			pinned, err := s.svc.Settings().TogglePinned(cmd.Context(), it.ID)
			if err != nil {
				return err
			}
			if pinned {
				fmt.Fprintln(cmd.OutOrStdout(), "Pinned", it.Title)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Unpinned", it.Title)
			}
			return nil
		},
	}
}
