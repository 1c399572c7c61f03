package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/task-cadence/internal/materialize"
	"github.com/nhle/task-cadence/internal/recurrence"
	"github.com/nhle/task-cadence/internal/theme"
)

func newMaterializeCommand(a *app) *cobra.Command {
	var (
		date   string
		userID int64
	)

	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Create the recurring task instances due on a date",
		Long: `Create the recurring task instances due on a date, for one user or all.

Running it twice for the same date is harmless: an instance that already
exists is counted as skipped. Days that were never run are not filled in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			day, err := parseDay(date, time.Now())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if userID != 0 {
				report, err := a.svc.MaterializeForUser(ctx, userID, day)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s: user=%d created=%d skipped=%d templates=%d errors=%d\n",
					recurrence.FormatDate(report.Date), report.UserID, report.Created,
					report.Skipped, report.TemplatesProcessed, len(report.Errors))
				printTemplateErrors(w, report.Errors)
				return nil
			}

			report, err := a.svc.MaterializeForDate(ctx, day)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, report.String())
			printTemplateErrors(w, report.Errors)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "today", "date to materialize, YYYY-MM-DD")
	cmd.Flags().Int64Var(&userID, "user", 0, "only this user (default all users)")
	return cmd
}

func printTemplateErrors(w io.Writer, errs []materialize.TemplateError) {
	for _, e := range errs {
		fmt.Fprintln(w, theme.WarnStyle.Render(e.Error()))
	}
}
