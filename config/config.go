/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package config contains the configuration of a RuleGraph server.
*/
package config

import (
	"fmt"
	"strconv"

	"github.com/krotik/common/errorutil"
	"github.com/krotik/common/fileutil"
)

// Global variables
// ================

/*
ProductVersion is the current version of RuleGraph
*/
const ProductVersion = "1.0.0"

/*
DefaultConfigFile is the default config file which will be used to configure RuleGraph
*/
var DefaultConfigFile = "rulegraph.config.json"

/*
Known configuration options for RuleGraph
*/
const (
	MemoryOnlyStorage = "MemoryOnlyStorage"
	LocationDatastore = "LocationDatastore"
	RulesFile         = "RulesFile"
	LockFile          = "LockFile"
	HTTPHost          = "HTTPHost"
	HTTPPort          = "HTTPPort"
	EnableWebsocket   = "EnableWebsocket"
	EnableMetrics     = "EnableMetrics"
	LogLevel          = "LogLevel"
	MaxCascadeDepth   = "MaxCascadeDepth"
)

/*
DefaultConfig is the defaut configuration
*/
var DefaultConfig = map[string]interface{}{
	MemoryOnlyStorage: false,
	EnableWebsocket:   true,
	EnableMetrics:     true,
	LocationDatastore: "db",
	RulesFile:         "rules.yaml",
	LockFile:          "rulegraph.lck",
	HTTPHost:          "localhost",
	HTTPPort:          "9191",
	LogLevel:          "info",
	MaxCascadeDepth:   32,
}

/*
Config is the actual config which is used
*/
var Config map[string]interface{}

/*
LoadConfigFile loads a given config file. If the config file does not exist it is
created with the default options.
*/
func LoadConfigFile(configfile string) error {
	var err error

	Config, err = fileutil.LoadConfig(configfile, DefaultConfig)

	return err
}

/*
LoadDefaultConfig loads the default configuration.
*/
func LoadDefaultConfig() {
	data := make(map[string]interface{})
	for k, v := range DefaultConfig {
		data[k] = v
	}

	Config = data
}

// Helper functions
// ================

/*
Str reads a config value as a string value.
*/
func Str(key string) string {
	return fmt.Sprint(Config[key])
}

/*
Int reads a config value as an int value. Numbers which were read from a
JSON file are accepted as well.
*/
func Int(key string) int64 {
	val := fmt.Sprint(Config[key])

	if f, ok := Config[key].(float64); ok {
		val = strconv.FormatFloat(f, 'f', -1, 64)
	}

	ret, err := strconv.ParseInt(val, 10, 64)

	errorutil.AssertTrue(err == nil,
		fmt.Sprintf("Could not parse config key %v: %v", key, err))

	return ret
}

/*
Bool reads a config value as a boolean value.
*/
func Bool(key string) bool {
	ret, err := strconv.ParseBool(fmt.Sprint(Config[key]))

	errorutil.AssertTrue(err == nil,
		fmt.Sprintf("Could not parse config key %v: %v", key, err))

	return ret
}

/*
Addr returns the address of the HTTP server.
*/
func Addr() string {
	return fmt.Sprintf("%v:%v", Str(HTTPHost), Str(HTTPPort))
}
