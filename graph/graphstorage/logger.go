/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graphstorage

import "go.uber.org/zap"

/*
ZapBadgerLogger routes BadgerDB log output to a zap logger.
*/
type ZapBadgerLogger struct {
	log *zap.SugaredLogger
}

/*
NewZapBadgerLogger creates a new BadgerDB logger. BadgerDB messages are
logged one level lower than reported since BadgerDB is verbose.
*/
func NewZapBadgerLogger(log *zap.Logger) *ZapBadgerLogger {
	return &ZapBadgerLogger{log.Named("badger").Sugar()}
}

/*
Errorf logs an error.
*/
func (l *ZapBadgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}

/*
Warningf logs a warning.
*/
func (l *ZapBadgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warnf(format, args...)
}

/*
Infof logs an info message.
*/
func (l *ZapBadgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

/*
Debugf logs a debug message.
*/
func (l *ZapBadgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
