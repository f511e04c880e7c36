package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/T1murKa41/pixilgnang/internal/state"
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(
		userListCmd,
		userFlagCmd("admin", "Allow a user to moderate", true, (*state.UserStore).SetAdmin),
		userFlagCmd("unadmin", "Revoke moderation rights", false, (*state.UserStore).SetAdmin),
		userFlagCmd("ban", "Ignore everything a user sends", true, (*state.UserStore).SetBanned),
		userFlagCmd("unban", "Lift a ban", false, (*state.UserStore).SetBanned),
	)
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage bot users",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users who have talked to the bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, err := openDB(ctx, loadConfig())
		if err != nil {
			return err
		}
		defer db.Close()

		users, err := state.NewUserStore(db).List(ctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		if len(users) == 0 {
			fmt.Println("No users yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tADMIN\tBANNED\tSINCE")
		for _, u := range users {
			fmt.Fprintf(w, "%d\t%s\t%t\t%t\t%s\n",
				u.ID, u.Name, u.IsAdmin, u.IsBanned, u.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

type flagSetter func(s *state.UserStore, ctx context.Context, id int64, on bool) error

// userFlagCmd builds a command that toggles one user flag. The user must
// have talked to the bot at least once.
func userFlagCmd(use, short string, on bool, set flagSetter) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			ctx := context.Background()
			db, err := openDB(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := set(state.NewUserStore(db), ctx, id, on); err != nil {
				return fmt.Errorf("%s %d: %w", use, id, err)
			}
			fmt.Fprintf(os.Stdout, "User %d: %s done.\n", id, use)
			return nil
		},
	}
}
