// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/adi-family/adi-cli/pkg/common"
	"github.com/adi-family/adi-cli/pkg/pluginlayout"
	"github.com/adi-family/adi-cli/pkg/pluginmanager"
	"github.com/adi-family/adi-cli/pkg/registryclient"
)

func newPluginCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Manage installed plugins",
	}
	cmd.AddCommand(
		newPluginListCmd(d),
		newPluginInstallCmd(d),
		newPluginUninstallCmd(d),
		newPluginUpdateCmd(d),
		newPluginSearchCmd(d),
	)
	return cmd
}

func newPluginListCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := pluginlayout.ListInstalledPluginIDs(d.pluginsRoot, common.CommandIndexDirName)
			if err != nil {
				return err
			}
			for _, id := range ids {
				loc, err := pluginlayout.Resolve(d.pluginsRoot, id)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t(unresolvable: %v)\n", id, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, loc.Version)
			}
			return nil
		},
	}
}

func newPluginInstallCmd(d *deps) *cobra.Command {
	var version string
	c := &cobra.Command{
		Use:   "install <plugin-id-or-pattern>",
		Short: "Install a plugin and its dependencies, optionally matching a wildcard pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			progress := cliProgress(cmd)
			results, err := d.manager.InstallMatching(cmdContext(), args[0], version, progress)
			if err != nil {
				return err
			}
			return reportInstallResults(cmd, results)
		},
	}
	c.Flags().StringVar(&version, "version", "", "plugin version to install (default: latest)")
	return c
}

func newPluginUninstallCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <plugin-id>",
		Short: "Uninstall a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.manager.Uninstall(args[0])
		},
	}
}

func newPluginUpdateCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "update [plugin-id]",
		Short: "Update one plugin, or every installed plugin if none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			progress := cliProgress(cmd)
			if len(args) == 1 {
				return d.manager.Update(cmdContext(), args[0], progress)
			}
			results, err := d.manager.UpdateAll(cmdContext(), progress)
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.PluginID, r.Err)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: up to date\n", r.PluginID)
				}
			}
			return nil
		},
	}
}

func newPluginSearchCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the registry for plugins and packages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := d.registry.Search(cmdContext(), args[0])
			if err != nil {
				return err
			}
			for _, p := range result.Plugins {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", p.ID, p.LatestVersion, p.Description)
			}
			return nil
		},
	}
}

func reportInstallResults(cmd *cobra.Command, results []pluginmanager.InstallMatchResult) error {
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintln(cmd.OutOrStdout(), color.RedString(r.String()))
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), color.GreenString(r.String()))
	}
	if failed > 0 {
		return fmt.Errorf("%d plugin(s) failed to install", failed)
	}
	return nil
}

func cliProgress(cmd *cobra.Command) registryclient.ProgressFunc {
	return func(downloaded, total int64) {
		if total <= 0 {
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\rdownloading... %d%%", int(downloaded*100/total))
	}
}
