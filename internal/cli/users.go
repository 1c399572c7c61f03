package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/task-cadence/internal/model"
)

func newUsersCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a user and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.store.CreateUser(cmd.Context(), model.User{Name: args[0]})
			if err != nil {
				return err
			}
			a.logger.Info("user created", "user_id", id)
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})
	return cmd
}

func newJournalsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journals",
		Short: "Manage journals",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <title>",
		Short: "Create a journal for the current user and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			id, err := a.store.CreateJournal(ctx, model.Journal{UserID: userID, Title: args[0]})
			if err != nil {
				return err
			}
			a.logger.Info("journal created", "user_id", userID, "journal_id", id)
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})
	return cmd
}
