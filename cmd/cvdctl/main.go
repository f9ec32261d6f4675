// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	core "github.com/forkbombeu/cvdctl/internal/cvd"
	"github.com/forkbombeu/cvdctl/internal/selector"
)

const (
	exitSuccess  = 0
	exitError    = 1
	exitSelector = 2 // invalid instance selector flags or CUTTLEFISH_INSTANCE
)

func main() {
	ctx := context.Background()
	shutdown, err := setupTracing(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tracing disabled:", err)
	}

	env := core.Detect()
	env.Context = ctx

	root := newRootCmd(env, os.Stdout, os.LookupEnv)
	code := exitSuccess
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		code = exitCode(err)
	}
	if shutdown != nil {
		_ = shutdown(context.Background())
	}
	os.Exit(code)
}

func exitCode(err error) int {
	var selErr *selector.Error
	if errors.As(err, &selErr) {
		return exitSelector
	}
	return exitError
}

func newRootCmd(env core.Env, out io.Writer, lookupEnv func(string) (string, bool)) *cobra.Command {
	root := &cobra.Command{
		Use:           "cvdctl",
		Short:         "Select, address and launch Cuttlefish virtual device instances",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	resolveSet := func(cmd *cobra.Command) (selector.Set, error) {
		return selector.FromFlags(cmd.Flags(), lookupEnv)
	}

	// resolve
	var resolveJSON bool
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the instance numbers selected by the flags and CUTTLEFISH_INSTANCE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := resolveSet(cmd)
			if err != nil {
				return err
			}
			if resolveJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Instances selector.Set `json:"instances"`
					Mode      string       `json:"mode"`
					Requested bool         `json:"requested"`
				}{set, set.Mode().String(), set.Requested()})
			}
			fmt.Fprintln(out, set.String())
			return nil
		},
	}
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "output JSON")
	selector.AddFlags(resolveCmd.Flags())
	root.AddCommand(resolveCmd)

	// status
	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show ports, serials and runtime directories of the selected instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := resolveSet(cmd)
			if err != nil {
				return err
			}
			infos := core.Describe(env, set)
			if statusJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			for _, i := range infos {
				state := "free"
				if i.PortsInUse {
					state = "in-use"
				}
				fmt.Fprintf(out, "%-8s adb=%-15s vnc=%-5d cid=%-4d ports=%s\n  runtime: %s\n  log: %s (%s)\n",
					i.Name, i.ADBSerial, i.VNCPort, i.VsockCID, state, i.RuntimeDir, i.LogPath, units.HumanSize(float64(i.LogSizeBytes)))
			}
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output JSON")
	selector.AddFlags(statusCmd.Flags())
	root.AddCommand(statusCmd)

	// launch (everything after -- goes to launch_cvd)
	launchCmd := &cobra.Command{
		Use:   "launch [-- launch_cvd args...]",
		Short: "Stop running devices, then start launch_cvd for the selected instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := resolveSet(cmd)
			if err != nil {
				return err
			}
			logPath, err := core.Launch(env, set, args...)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Launched %s (log: %s)\n", set, logPath)
			return nil
		},
	}
	selector.AddFlags(launchCmd.Flags())
	root.AddCommand(launchCmd)

	// stop
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop devices started from the host package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := core.Stop(env); err != nil {
				return err
			}
			fmt.Fprintln(out, "Stopped")
			return nil
		},
	}
	root.AddCommand(stopCmd)

	return root
}
