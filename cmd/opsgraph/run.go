package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opsgraph/opsgraph/pkg/opsgraph"
)

var (
	flagSessionID string
	flagStream    bool
	flagJSON      bool
)

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Execute a workflow for an operations request",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		input := strings.Join(args, " ")

		var opts []opsgraph.RunOption
		if flagSessionID != "" {
			opts = append(opts, opsgraph.WithSessionID(flagSessionID))
		}

		if flagStream {
			events, err := env.engine.Stream(ctx, input, opts...)
			if err != nil {
				return err
			}
			return consumeStream(events)
		}

		result, err := env.engine.Run(ctx, input, opts...)
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&flagSessionID, "session", "", "session ID (resumes if a checkpoint exists)")
	runCmd.Flags().BoolVar(&flagStream, "stream", false, "stream progress events")
	runCmd.Flags().BoolVar(&flagJSON, "json", false, "emit the final result as JSON")
}

func consumeStream(events <-chan opsgraph.StepEvent) error {
	for ev := range events {
		if ev.Err != nil {
			return ev.Err
		}
		if ev.FinalResult != nil {
			fmt.Println()
			return printResult(ev.FinalResult)
		}
		fmt.Printf("[%3d%%] %-14s %s\n", ev.ProgressPercent, ev.Phase, ev.Node)
	}
	return fmt.Errorf("stream ended without a result")
}

func printResult(res *opsgraph.FinalResult) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Println(res.Content)
	fmt.Println()
	fmt.Printf("session: %s  class: %s  type: %s  took: %dms\n",
		res.SessionID, res.Class, res.Type, res.ExecutionTimeMS)
	if len(res.DataSourcesUsed) > 0 {
		fmt.Printf("sources: %v\n", res.DataSourcesUsed)
	}
	if len(res.FailedSources) > 0 {
		fmt.Printf("failed sources: %v\n", res.FailedSources)
	}
	if res.RecoverySuggestion != "" {
		fmt.Printf("suggestion: %s\n", res.RecoverySuggestion)
	}
	return nil
}
