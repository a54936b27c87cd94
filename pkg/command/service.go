// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServiceCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Start, stop, and inspect daemon-managed plugin services",
	}
	cmd.AddCommand(
		newServiceListCmd(d),
		newServiceStartCmd(d),
		newServiceStopCmd(d),
		newServiceRestartCmd(d),
		newServiceLogsCmd(d),
	)
	return cmd
}

func newServiceListCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every service known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext()
			if err := d.daemon.EnsureRunning(ctx); err != nil {
				return err
			}
			list, err := d.daemon.ListServices(ctx)
			if err != nil {
				return err
			}
			for _, s := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tpid=%d\trestarts=%d\n", s.Name, s.State, s.PID, s.Restarts)
			}
			return nil
		},
	}
}

func newServiceStartCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "start <name>",
		Short: "Start a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext()
			if err := d.daemon.EnsureRunning(ctx); err != nil {
				return err
			}
			return d.daemon.StartService(ctx, args[0], nil)
		},
	}
}

func newServiceStopCmd(d *deps) *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext()
			if err := d.daemon.EnsureRunning(ctx); err != nil {
				return err
			}
			return d.daemon.StopService(ctx, args[0], force)
		},
	}
	c.Flags().BoolVar(&force, "force", false, "kill immediately instead of waiting for graceful shutdown")
	return c
}

func newServiceRestartCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Restart a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext()
			if err := d.daemon.EnsureRunning(ctx); err != nil {
				return err
			}
			return d.daemon.RestartService(ctx, args[0])
		},
	}
}

func newServiceLogsCmd(d *deps) *cobra.Command {
	var lines int
	var follow bool
	c := &cobra.Command{
		Use:   "logs <name>",
		Short: "Show a service's recent log output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext()
			if err := d.daemon.EnsureRunning(ctx); err != nil {
				return err
			}
			if follow {
				return d.daemon.StreamServiceLogs(ctx, args[0], lines, func(line string) {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				})
			}
			out, err := d.daemon.ServiceLogs(ctx, args[0], lines)
			if err != nil {
				return err
			}
			for _, line := range out {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	c.Flags().IntVar(&lines, "lines", 100, "number of recent lines to show")
	c.Flags().BoolVar(&follow, "follow", false, "stream new lines as they are written")
	return c
}
