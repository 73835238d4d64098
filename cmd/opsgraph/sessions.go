package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/statestore"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id]",
	Short: "Resume an interrupted session from its latest checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := env.engine.Resume(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage checkpointed sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpointed sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		limit, _ := cmd.Flags().GetInt("limit")
		prefix, _ := cmd.Flags().GetString("prefix")

		infos, err := env.engine.Sessions(cmd.Context(), statestore.Filter{Prefix: prefix, Limit: limit})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tSEQ\tWRITTEN")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%d\t%s\n", info.SessionID, info.Sequence, info.WrittenAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete a session's checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		existed, err := env.engine.Forget(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !existed {
			fmt.Println("no checkpoint for session", args[0])
			return nil
		}
		fmt.Println("deleted session", args[0])
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().Int("limit", 50, "maximum sessions to list")
	sessionsListCmd.Flags().String("prefix", "", "filter by session ID prefix")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsDeleteCmd)
}
