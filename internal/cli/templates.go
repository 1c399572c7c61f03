package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/recurrence"
)

// ruleFlags are the recurrence flags shared by templates add and update.
type ruleFlags struct {
	typ         string
	interval    int
	days        []int
	dayOfMonth  int
	weekOfMonth int
	starts      string
	ends        string
}

func (f *ruleFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.typ, "type", "daily", "daily, weekly, monthly, yearly or custom")
	fs.IntVar(&f.interval, "interval", 1, "repeat every N days, weeks, months or years")
	fs.IntSliceVar(&f.days, "days", nil, "weekdays, 0=Sunday through 6=Saturday")
	fs.IntVar(&f.dayOfMonth, "day-of-month", 0, "monthly: day of the month (1-31)")
	fs.IntVar(&f.weekOfMonth, "week-of-month", 0, "monthly: week of the month (1-5), with one --days weekday")
	fs.StringVar(&f.starts, "starts", "today", "first date, YYYY-MM-DD")
	fs.StringVar(&f.ends, "ends", "", "last date, YYYY-MM-DD (open if empty)")
}

// changed reports whether any rule flag was set on the command line.
func (f *ruleFlags) changed(fs *pflag.FlagSet) bool {
	for _, name := range []string{"type", "interval", "days", "day-of-month", "week-of-month", "starts", "ends"} {
		if fs.Changed(name) {
			return true
		}
	}
	return false
}

func (f *ruleFlags) rule(now time.Time) (recurrence.Rule, error) {
	starts, err := parseDay(f.starts, now)
	if err != nil {
		return recurrence.Rule{}, err
	}
	r := recurrence.Rule{
		Type:       recurrence.Type(f.typ),
		Interval:   f.interval,
		DaysOfWeek: f.days,
		StartsOn:   starts,
	}
	if f.dayOfMonth != 0 {
		r.DayOfMonth = &f.dayOfMonth
	}
	if f.weekOfMonth != 0 {
		r.WeekOfMonth = &f.weekOfMonth
	}
	if f.ends != "" {
		ends, err := parseDay(f.ends, now)
		if err != nil {
			return recurrence.Rule{}, err
		}
		r.EndsOn = &ends
	}
	return r, nil
}

func newTemplatesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template", "tpl"},
		Short:   "Manage recurring task templates",
	}
	cmd.AddCommand(
		newTemplatesAddCommand(a),
		newTemplatesListCommand(a),
		newTemplatesShowCommand(a),
		newTemplatesUpdateCommand(a),
		newTemplatesRefreshCommand(a),
	)
	return cmd
}

func newTemplatesAddCommand(a *app) *cobra.Command {
	var (
		in    model.NewReferenceTask
		rules ruleFlags
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a recurring template",
		Example: `  cadence templates add "Stretch" -j <journal> --type daily
  cadence templates add "Review" -j <journal> --type weekly --days 1,5
  cadence templates add "Rent" -j <journal> --type monthly --day-of-month 1
  cadence templates add "Book club" -j <journal> --type monthly --week-of-month 2 --days 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			in.Title = args[0]
			if in.Rule, err = rules.rule(time.Now()); err != nil {
				return err
			}

			rt, err := a.svc.CreateReferenceTask(ctx, userID, in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rt.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.JournalID, "journal", "j", "", "journal id (required)")
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "description")
	rules.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("journal")
	return cmd
}

func newTemplatesListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show templates with their next scheduled date",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			templates, err := a.svc.GetUserReferenceTasks(ctx, userID)
			if err != nil {
				return err
			}
			renderTemplates(cmd.OutOrStdout(), templates)
			return nil
		},
	}
}

func newTemplatesShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			rt, err := a.svc.GetReferenceTask(ctx, userID, args[0])
			if err != nil {
				return err
			}
			renderTemplates(cmd.OutOrStdout(), []model.ReferenceTask{*rt})
			return nil
		},
	}
}

func newTemplatesUpdateCommand(a *app) *cobra.Command {
	var (
		title, description string
		pause, resume      bool
		rules              ruleFlags
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a template",
		Long: `Edit a template's text, pause or resume it, or replace its rule.

Passing any rule flag replaces the whole rule; unset rule flags take their
defaults. The next scheduled date is recomputed from today, so a new rule
never produces instances for past days. New text is copied onto the
template's open instances.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}

			var patch model.ReferenceTaskPatch
			fs := cmd.Flags()
			if fs.Changed("title") {
				patch.Title = &title
			}
			if fs.Changed("description") {
				patch.Description = &description
			}
			switch {
			case pause && resume:
				return errors.New("--pause and --resume are exclusive")
			case pause || resume:
				active := resume
				patch.IsActive = &active
			}
			if rules.changed(fs) {
				r, err := rules.rule(time.Now())
				if err != nil {
					return err
				}
				patch.Rule = &r
			}

			rt, err := a.svc.UpdateReferenceTask(ctx, userID, args[0], patch)
			if err != nil {
				return err
			}
			next := "none"
			if rt.NextScheduledDate != nil {
				next = recurrence.FormatDate(*rt.NextScheduledDate)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s next=%s\n", rt.ID, rt.Title, next)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().BoolVar(&pause, "pause", false, "stop materializing")
	cmd.Flags().BoolVar(&resume, "resume", false, "start materializing again")
	rules.register(cmd.Flags())
	return cmd
}

func newTemplatesRefreshCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <id>",
		Short: "Copy a template's text onto its open instances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			n, err := a.svc.RefreshReferenceTask(ctx, userID, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d instances\n", n)
			return nil
		},
	}
}
