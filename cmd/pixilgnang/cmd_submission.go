package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/T1murKa41/pixilgnang/internal/state"
	"github.com/T1murKa41/pixilgnang/internal/types"
)

func init() {
	rootCmd.AddCommand(submissionCmd)
	submissionCmd.AddCommand(submissionListCmd, submissionShowCmd, submissionDropCmd)
}

var submissionCmd = &cobra.Command{
	Use:     "submission",
	Aliases: []string{"sub"},
	Short:   "Inspect the moderation queue",
}

var submissionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending submissions, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, err := openDB(ctx, loadConfig())
		if err != nil {
			return err
		}
		defer db.Close()

		list, err := state.NewSubmissionStore(db).List(ctx)
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No pending submissions.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFROM\tITEMS\tAGE\tCAPTION")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s (%d)\t%d\t%s\t%s\n",
				s.ID,
				s.SubmitterName,
				s.SubmitterID,
				len(s.Items),
				time.Since(s.CreatedAt).Round(time.Minute),
				ellipsize(s.Caption, 40),
			)
		}
		return w.Flush()
	},
}

var submissionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a pending submission as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, err := openDB(ctx, loadConfig())
		if err != nil {
			return err
		}
		defer db.Close()

		sub, err := state.NewSubmissionStore(db).Get(ctx, types.SubmissionID(args[0]))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sub)
	},
}

var submissionDropCmd = &cobra.Command{
	Use:   "drop <id>",
	Short: "Remove a pending submission without notifying anyone",
	Long: `Remove a pending submission without notifying anyone. The buttons in the
moderator chat stay but report "Already handled" when pressed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, err := openDB(ctx, loadConfig())
		if err != nil {
			return err
		}
		defer db.Close()

		store := state.NewSubmissionStore(db)
		id := types.SubmissionID(args[0])
		if _, err := store.Get(ctx, id); err != nil {
			return err
		}
		if err := store.Delete(ctx, id); err != nil {
			return fmt.Errorf("drop submission: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Submission %s dropped.\n", id)
		return nil
	},
}

func ellipsize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
