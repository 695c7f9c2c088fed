// Command wardeckctl is a thin IPC client for wardeckd, in the style
// of wingthing's wt CLI: a cobra root command plus one subcommand per
// RPC, printing the response payload as formatted JSON.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardeck/wardeck/internal/config"
	"github.com/wardeck/wardeck/internal/ipc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wardeckctl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var socketPath, token string
	defaults := config.DefaultConfig()

	root := &cobra.Command{
		Use:   "wardeckctl",
		Short: "wardeckctl talks to a running wardeckd over its IPC socket",
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", defaults.SocketPath, "wardeckd UDS path")
	root.PersistentFlags().StringVar(&token, "token", "", "auth token (defaults to WA_IPC_TOKEN)")

	client := func() *ipc.Client {
		t := token
		if t == "" {
			t = ipc.TokenFromEnv(defaults.IPCTokenEnvVar)
		}
		return ipc.NewClient(socketPath, t)
	}

	root.AddCommand(
		pingCmd(client),
		statusCmd(client),
		paneStateCmd(client),
		setUserVarCmd(client),
		setPriorityCmd(client),
		clearPriorityCmd(client),
		rpcCmd(client),
	)
	return root
}

func printResponse(resp ipc.Response) error {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	fmt.Println(string(out))
	if !resp.OK {
		return fmt.Errorf("%s: %s", resp.ErrorCode, resp.Error)
	}
	return nil
}

func pingCmd(client func() *ipc.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that wardeckd is alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Ping()
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
}

func statusCmd(client func() *ipc.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and health",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Status()
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
}

func paneStateCmd(client func() *ipc.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "pane-state <pane-id>",
		Short: "Show the registry entry for a pane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().PaneState(args[0])
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
}

func setUserVarCmd(client func() *ipc.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "set-user-var <pane-id> <name> <value>",
		Short: "Set a tmux user variable on a pane",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().SetUserVar(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
}

func setPriorityCmd(client func() *ipc.Client) *cobra.Command {
	var ttlFlag string
	cmd := &cobra.Command{
		Use:   "set-priority <pane-id> <priority>",
		Short: "Set (or override) a pane's scheduling priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid priority %q: %w", args[1], err)
			}
			var ttl *time.Duration
			if ttlFlag != "" {
				d, err := time.ParseDuration(ttlFlag)
				if err != nil {
					return fmt.Errorf("invalid --ttl %q: %w", ttlFlag, err)
				}
				ttl = &d
			}
			resp, err := client().SetPanePriority(args[0], uint32(priority), ttl)
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	cmd.Flags().StringVar(&ttlFlag, "ttl", "", "override expiry, e.g. 5m (default: no expiry)")
	return cmd
}

func clearPriorityCmd(client func() *ipc.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-priority <pane-id>",
		Short: "Clear a pane's priority override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().ClearPanePriority(args[0])
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
}

func rpcCmd(client func() *ipc.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "rpc [args...]",
		Short: "Issue a generic Rpc request",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Rpc(args)
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
}
