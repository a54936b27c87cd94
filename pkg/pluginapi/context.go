// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pluginapi

import "strings"

// CliContext is passed into a plugin on invocation.
type CliContext struct {
	Command    string                 `json:"command"`
	Subcommand string                 `json:"subcommand,omitempty"`
	Positional []string               `json:"positional_args"`
	Options    map[string]interface{} `json:"options"`
	Cwd        string                 `json:"cwd"`
	Env        map[string]string      `json:"env"`
}

// CliResult is returned from a plugin's Cli capability invocation.
type CliResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// LogStreamContext parameterizes a LogProvider capability's log_stream
// call.
type LogStreamContext struct {
	Service string `json:"service,omitempty"`
	Level   string `json:"level,omitempty"`
	Tail    int    `json:"tail,omitempty"`
	Follow  bool   `json:"follow"`
}

// LogEntry is one entry of a LogProvider's async log sequence.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// DaemonContext is passed to a DaemonService capability's start call.
type DaemonContext struct {
	PluginID   string `json:"plugin_id"`
	DataDir    string `json:"data_dir"`
	ConfigDir  string `json:"config_dir"`
	SocketPath string `json:"socket_path"`
	PIDFile    string `json:"pid_file"`
}

// ParseArgs splits a raw argument list: any token prefixed "--" is an
// option; if the next token does not start with "--" and is not the
// final token, it is consumed as the option's value, else the option is
// boolean true. A trailing bare token therefore stays positional
// instead of being swallowed as a value, so
// ["install", "--version", "1.2.3", "--force", "foo"] yields
// subcommand "install", options {version: "1.2.3", force: true}, and
// positional ["foo"]. The first positional becomes Subcommand.
func ParseArgs(args []string) (subcommand string, positional []string, options map[string]interface{}) {
	options = make(map[string]interface{})
	all := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		tok := args[i]
		if strings.HasPrefix(tok, "--") {
			name := strings.TrimPrefix(tok, "--")
			if i+1 < len(args)-1 && !strings.HasPrefix(args[i+1], "--") {
				options[name] = args[i+1]
				// Together with the loop's post-increment this steps
				// past the consumed value.
				i++
			} else {
				options[name] = true
			}
			continue
		}
		all = append(all, tok)
	}

	positional = []string{}
	if len(all) > 0 {
		subcommand = all[0]
		positional = all[1:]
	}
	return subcommand, positional, options
}
