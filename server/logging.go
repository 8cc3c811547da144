/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package server

import (
	"github.com/krotik/rulegraph/graph/graphstorage"
	"github.com/krotik/rulegraph/rules"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

/*
NewLogger creates a new console logger for a given log level (e.g. debug,
info or error).
*/
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	config.Level = lvl
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true

	return config.Build()
}

/*
BindLoggers routes the log output of the rule engine and of the graph
storage to a given logger.
*/
func BindLoggers(logger *zap.Logger) {
	sugar := logger.Named("rules").Sugar()

	rules.LogInfo = sugar.Info
	rules.LogError = sugar.Error
	rules.LogDebug = rules.LogNull

	if logger.Core().Enabled(zapcore.DebugLevel) {
		rules.LogDebug = sugar.Debug
	}

	graphstorage.BadgerLogger = graphstorage.NewZapBadgerLogger(logger)
}
