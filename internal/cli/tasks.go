package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/task-cadence/internal/bucket"
	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/priority"
	"github.com/nhle/task-cadence/internal/service"
	"github.com/nhle/task-cadence/internal/theme"
)

func newTasksCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task", "t"},
		Short:   "List and edit tasks",
	}
	cmd.AddCommand(
		newTasksListCommand(a),
		newTasksShowCommand(a),
		newTasksAddCommand(a),
		newTasksSubtaskCommand(a),
		newTasksEditCommand(a),
		newTasksMoveCommand(a),
		newTasksToggleCommand(a),
		newTasksRemoveCommand(a),
	)
	return cmd
}

func newTasksListCommand(a *app) *cobra.Command {
	var (
		pending bool
		flat    bool
		missed  bool
		journal string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show tasks grouped by bucket",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}

			opts := service.ListOptions{PendingOnly: pending, JournalID: journal}
			if missed {
				opts.Bucket.Missed = bucket.MissedBefore(time.Now().UTC())
			}

			var tasks []bucket.BucketedTask
			if flat {
				tasks, err = a.svc.GetUserTasksBucketed(ctx, userID, opts)
			} else {
				tasks, err = a.svc.GetUserTasksBucketedHierarchical(ctx, userID, opts)
			}
			if err != nil {
				return err
			}
			renderTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&pending, "pending", "p", false, "hide completed tasks")
	cmd.Flags().BoolVar(&flat, "flat", false, "sort subtasks by key instead of under their parent")
	cmd.Flags().BoolVar(&missed, "missed", false, "move overdue recurring instances to a missed bucket")
	cmd.Flags().StringVarP(&journal, "journal", "j", "", "only tasks of this journal")
	return cmd
}

func newTasksShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			t, err := a.svc.GetTask(ctx, userID, args[0])
			if err != nil {
				return err
			}
			renderTask(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func newTasksAddCommand(a *app) *cobra.Command {
	var in model.NewTask

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task at the top of the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			in.Title = args[0]
			t, err := a.svc.CreateTask(ctx, userID, in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.JournalID, "journal", "j", "", "journal id (required)")
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "description")
	_ = cmd.MarkFlagRequired("journal")
	return cmd
}

func newTasksSubtaskCommand(a *app) *cobra.Command {
	var in model.NewSubtask

	cmd := &cobra.Command{
		Use:   "subtask <parent-id> <title>",
		Short: "Add a subtask after the parent's existing subtasks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			in.Title = args[1]
			t, err := a.svc.CreateSubtask(ctx, userID, args[0], in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "description")
	return cmd
}

func newTasksEditCommand(a *app) *cobra.Command {
	var title, description string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task's title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}

			var patch model.TaskPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if patch.Title == nil && patch.Description == nil {
				return errors.New("nothing to change: pass --title or --description")
			}

			t, err := a.svc.UpdateTask(ctx, userID, args[0], patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", t.ID, t.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	return cmd
}

func newTasksMoveCommand(a *app) *cobra.Command {
	var (
		above       string
		below       string
		pendingOnly bool
		subtree     bool
		with        []string
	)

	cmd := &cobra.Command{
		Use:   "move <id> (--above <ref> | --below <ref>)",
		Short: "Place a task directly above or below another",
		Long: `Place a task directly above or below another task.

With --subtree the task's subtasks move along with it and stay directly
below it. --with moves only the listed descendants along.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}

			mv := priority.Move{TaskID: args[0]}
			switch {
			case above != "" && below == "":
				mv.ReferenceTaskID, mv.Position = above, priority.Above
			case below != "" && above == "":
				mv.ReferenceTaskID, mv.Position = below, priority.Below
			default:
				return errors.New("pass exactly one of --above or --below")
			}

			var key string
			switch {
			case subtree || len(with) > 0:
				var ids []string
				if !subtree {
					ids = with
				}
				t, err := a.svc.ReorderWithDescendants(ctx, userID, mv, ids)
				if err != nil {
					return err
				}
				key = t.Priority
			case pendingOnly:
				key, err = a.svc.ReorderPendingTask(ctx, userID, mv)
			default:
				key, err = a.svc.ReorderTask(ctx, userID, mv)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s key %s\n", mv.TaskID, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&above, "above", "", "reference task to move above")
	cmd.Flags().StringVar(&below, "below", "", "reference task to move below")
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "ignore completed tasks when finding the neighbour")
	cmd.Flags().BoolVar(&subtree, "subtree", false, "move every subtask along")
	cmd.Flags().StringSliceVar(&with, "with", nil, "descendant ids to move along")
	return cmd
}

func newTasksToggleCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Complete or reopen a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			res, err := a.svc.ToggleCompletion(ctx, userID, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if !res.CanComplete {
				fmt.Fprintln(w, theme.WarnStyle.Render(
					fmt.Sprintf("%s has %d open subtasks:", res.Task.Title, len(res.IncompleteChildren))))
				for _, c := range res.IncompleteChildren {
					fmt.Fprintf(w, "  [ ] %s  %s\n", c.Title, theme.HelpStyle.Render(c.ID))
				}
				return nil
			}

			state := "reopened"
			if res.Task.Completed {
				state = "completed"
			}
			fmt.Fprintf(w, "%s %s\n", res.Task.Title, state)
			for _, id := range res.ReopenedAncestors {
				fmt.Fprintf(w, "  reopened parent %s\n", theme.HelpStyle.Render(id))
			}
			return nil
		},
	}
}

func newTasksRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task and its subtasks",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			if err := a.svc.DeleteTask(ctx, userID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
