// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/adi-family/adi-cli/pkg/common"
	"github.com/adi-family/adi-cli/pkg/daemonserver"
)

func newDaemonCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the adi background daemon",
	}
	cmd.AddCommand(
		newDaemonRunCmd(),
		newDaemonStatusCmd(d),
		newDaemonStopCmd(d),
	)
	return cmd
}

func newDaemonRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "run",
		Short:  "Run the daemon in the foreground (internal: normally spawned by the daemon client when a command needs a running daemon)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tcpPort, _ := common.DaemonTCPPort()
			srv := daemonserver.New(daemonserver.Config{
				PluginsRoot:   common.PluginsRoot(),
				SocketPath:    common.DaemonSocketPath(),
				PIDPath:       common.DaemonPIDPath(),
				TCPPort:       tcpPort,
				AccessLogPath: common.DaemonLogPath(),
			})
			return srv.Run(cmdContext())
		},
	}
}

func newDaemonStatusCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext()
			if !d.daemon.IsRunning(ctx) {
				fmt.Fprintln(cmd.OutOrStdout(), color.YellowString("daemon is not running"))
				return nil
			}
			pong, err := d.daemon.Ping(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (version %s, uptime %ds)\n", color.GreenString("daemon is running"), pong.Version, pong.UptimeSecs)
			return nil
		},
	}
}

func newDaemonStopCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the daemon to stop every service and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext()
			if !d.daemon.IsRunning(ctx) {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon is not running")
				return nil
			}
			return d.daemon.Shutdown(ctx, true)
		},
	}
}
