// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/aunum/log"

	"github.com/adi-family/adi-cli/pkg/adierrors"
	"github.com/adi-family/adi-cli/pkg/command"
)

func main() {
	root, err := command.NewRootCmd()
	if err != nil {
		log.Fatal(err)
	}

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(adierrors.ExitCode(err))
	}
}
