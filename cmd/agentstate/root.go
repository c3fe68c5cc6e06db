package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"agentstate/state"
)

type rootFlags struct {
	redisHost string
	redisPort int
	noRedis   bool
	natsURL   string
	verbose   bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "agentstate",
		Short:         "Shared coordination state for worker agents",
		SilenceUsage:  false,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.redisHost, "redis-host", "localhost", "Redis host")
	root.PersistentFlags().IntVar(&flags.redisPort, "redis-port", 6379, "Redis port")
	root.PersistentFlags().BoolVar(&flags.noRedis, "no-redis", false, "Use the in-process fallback store")
	root.PersistentFlags().StringVar(&flags.natsURL, "nats-url", "", "Route events over NATS at this URL")
	root.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "Verbose logging")

	root.AddCommand(
		newSetCommand(flags),
		newGetCommand(flags),
		newDeleteCommand(flags),
		newAgentsCommand(flags),
		newStatsCommand(flags),
		newTestCoordCommand(flags),
	)
	return root
}

// openManager builds the session manager for one command invocation. Backend
// selection (and any fallback) happens here, once.
func openManager(flags *rootFlags) *state.Manager {
	return state.New(state.Config{
		RedisAddr: fmt.Sprintf("%s:%d", flags.redisHost, flags.redisPort),
		Disabled:  flags.noRedis,
		NATSURL:   flags.natsURL,
	}, newLogger(flags.verbose))
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func newSetCommand(flags *rootFlags) *cobra.Command {
	var ttl int
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a state value (value is JSON)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				return fmt.Errorf("value must be valid JSON: %w", err)
			}
			m := openManager(flags)
			defer m.Close()
			if err := m.Store.Set(cmd.Context(), args[0], value, time.Duration(ttl)*time.Second); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to set %s: %v\n", args[0], err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "set %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&ttl, "ttl", 0, "TTL in seconds")
	return cmd
}

func newGetCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a state value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := openManager(flags)
			defer m.Close()
			var value any
			if _, err := m.Store.Get(cmd.Context(), args[0], &value); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to get %s: %v\n", args[0], err)
				return nil
			}
			return printJSON(cmd, value)
		},
	}
}

func newDeleteCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a state value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := openManager(flags)
			defer m.Close()
			if err := m.Store.Delete(cmd.Context(), args[0]); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to delete %s: %v\n", args[0], err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newAgentsCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List live agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := openManager(flags)
			defer m.Close()
			agents, err := m.Registry.Active(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to list agents: %v\n", err)
				return nil
			}
			return printJSON(cmd, agents)
		},
	}
}

func newStatsCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show coordination statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := openManager(flags)
			defer m.Close()
			stats, err := m.Stats(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to read stats: %v\n", err)
				return nil
			}
			return printJSON(cmd, stats)
		},
	}
}

func newTestCoordCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-coord <agent>",
		Short: "Exercise register, claim, complete and unregister in sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := openManager(flags)
			defer m.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			agent := args[0]

			err := m.Registry.Register(ctx, agent, map[string]string{"test": "true"})
			fmt.Fprintf(out, "register %s: %v\n", agent, err == nil)

			taskID := fmt.Sprintf("test_task_%d", time.Now().Unix())
			claimed, err := m.Tasks.Claim(ctx, taskID, agent, map[string]any{"action": "test"})
			fmt.Fprintf(out, "claim %s: %v\n", taskID, err == nil && claimed)

			if claimed {
				done, err := m.Tasks.Complete(ctx, taskID, map[string]any{"status": "success"})
				fmt.Fprintf(out, "complete %s: %v\n", taskID, err == nil && done)
			}

			stats, err := m.Stats(ctx)
			if err == nil {
				if perr := printJSON(cmd, stats); perr != nil {
					return perr
				}
			}

			err = m.Registry.Unregister(ctx, agent)
			fmt.Fprintf(out, "unregister %s: %v\n", agent, err == nil)
			return nil
		},
	}
}
