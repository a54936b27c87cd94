// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package daemonserver

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// accessLog is the daemon's structured per-request log, kept as a
// separate stream from the aunum/log messages the daemon emits about
// its own lifecycle.
type accessLog struct {
	logger *logrus.Logger
}

func newAccessLog(path string) *accessLog {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})

	if path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			l.SetOutput(f)
		}
	}
	return &accessLog{logger: l}
}

// record emits one structured line per dispatched request: a correlation
// id, the request tag, how long dispatch took, and its outcome.
func (a *accessLog) record(tag int, duration time.Duration, err error) {
	entry := a.logger.WithFields(logrus.Fields{
		"request_id":  uuid.NewString(),
		"tag":         tag,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("request dispatch failed")
		return
	}
	entry.Info("request dispatched")
}
