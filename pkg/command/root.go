// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package command assembles the adi CLI's cobra command tree: the
// built-in plugin/daemon/service management commands plus one
// dynamically injected command per installed plugin declaring a CLI
// capability.
package command

import (
	"fmt"
	"os"

	"github.com/aunum/log"
	"github.com/spf13/cobra"

	"github.com/adi-family/adi-cli/pkg/commandindex"
	"github.com/adi-family/adi-cli/pkg/common"
	"github.com/adi-family/adi-cli/pkg/daemonclient"
	"github.com/adi-family/adi-cli/pkg/pluginmanager"
	"github.com/adi-family/adi-cli/pkg/registryclient"
	"github.com/adi-family/adi-cli/pkg/runtime"
	"github.com/adi-family/adi-cli/pkg/sigverify"
)

// Version is the CLI's own reported build version.
var Version = "dev"

// deps bundles the services every subcommand needs, constructed once in
// NewRootCmd from process-wide configuration.
type deps struct {
	pluginsRoot string
	registry    *registryclient.Client
	manager     *pluginmanager.Manager
	index       *commandindex.Index
	runtime     *runtime.Runtime
	daemon      *daemonclient.Client
}

func newDeps() *deps {
	pluginsRoot := common.PluginsRoot()
	idx := commandindex.New(pluginsRoot)
	registry := registryclient.New(common.RegistryURL())

	exe, err := os.Executable()
	if err != nil {
		exe = "adi"
	}
	tcpPort, _ := common.DaemonTCPPort()

	return &deps{
		pluginsRoot: pluginsRoot,
		registry:    registry,
		manager:     pluginmanager.New(pluginsRoot, registry, sigverify.TrustedKeys{}),
		index:       idx,
		runtime:     runtime.New(pluginsRoot, idx),
		daemon: daemonclient.New(daemonclient.Config{
			SocketPath: common.DaemonSocketPath(),
			PIDPath:    common.DaemonPIDPath(),
			TCPPort:    tcpPort,
			DaemonBin:  exe,
		}),
	}
}

// NewRootCmd builds the complete adi command tree.
func NewRootCmd() (*cobra.Command, error) {
	d := newDeps()

	root := &cobra.Command{
		Use:           "adi",
		Short:         "adi is a plugin-oriented control plane CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newVersionCmd(),
		newPluginCmd(d),
		newDaemonCmd(d),
		newServiceCmd(d),
	)

	if err := addPluginCommands(root, d); err != nil {
		log.Errorf("failed to load plugin commands: %v", err)
	}

	return root, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the adi version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		},
	}
}

// addPluginCommands discovers every installed plugin's declared CLI
// command (a manifest-only scan, no binaries loaded) and appends one
// cobra command per entry that forwards its raw args to the plugin
// runtime.
func addPluginCommands(root *cobra.Command, d *deps) error {
	entries, err := d.runtime.DiscoverCLICommands()
	if err != nil {
		return err
	}
	if err := d.runtime.LoadAll(); err != nil {
		log.Errorf("failed to load installed plugins: %v", err)
	}

	for _, entry := range entries {
		entry := entry
		cmd := &cobra.Command{
			Use:                entry.Command,
			Short:              entry.Description,
			Aliases:            entry.Aliases,
			DisableFlagParsing: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPluginCommand(d, entry.PluginID, args)
			},
		}
		root.AddCommand(cmd)
	}
	return nil
}

func runPluginCommand(d *deps, pluginID string, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}

	result, err := d.runtime.RunCLICommand(cmdContext(), pluginID, args, cwd, nil)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, result.Stdout)
	fmt.Fprint(os.Stderr, result.Stderr)
	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}
