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
Package server contains the code for the RuleGraph server.
*/
package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/krotik/common/fileutil"
	"github.com/krotik/common/httputil"
	"github.com/krotik/common/lockutil"
	"github.com/krotik/rulegraph/api"
	v1 "github.com/krotik/rulegraph/api/v1"
	"github.com/krotik/rulegraph/config"
	"github.com/krotik/rulegraph/graph"
	"github.com/krotik/rulegraph/graph/graphstorage"
	"github.com/krotik/rulegraph/rules"
	"github.com/krotik/rulegraph/rules/ruleset"
)

/*
Using custom consolelogger type so we can test log.Fatal calls with unit tests. Overwrite
these if the server should not call os.Exit on a fatal error.
*/
type consolelogger func(v ...interface{})

var fatal = consolelogger(log.Fatal)
var print = consolelogger(log.Print)

/*
Base path for all file (used by unit tests)
*/
var basepath = ""

/*
StartServer runs the RuleGraph server. The server uses config.Config for all its
configuration parameters.
*/
func StartServer() {
	StartServerWithSingleOp(nil)
}

/*
StartServerWithSingleOp runs the RuleGraph server. If the singleOperation function is
not nil then the server executes the function and exits if the function returns true.
*/
func StartServerWithSingleOp(singleOperation func(*graph.Manager, *rules.Engine) bool) {
	var err error
	var gs graphstorage.Storage

	print(fmt.Sprintf("RuleGraph %v", config.ProductVersion))

	// Ensure we have a configuration - use the default configuration if nothing was set

	if config.Config == nil {
		config.LoadDefaultConfig()
	}

	// Setup logging

	logger, err := NewLogger(config.Str(config.LogLevel))
	if err != nil {
		fatal("Failed to create logger:", err)
		return
	}
	defer logger.Sync()

	BindLoggers(logger)

	// Create graph storage

	if config.Bool(config.MemoryOnlyStorage) {

		print("Starting memory only datastore")

		gs = graphstorage.NewMemoryGraphStorage(config.MemoryOnlyStorage)

	} else {

		loc := filepath.Join(basepath, config.Str(config.LocationDatastore))

		print("Starting datastore in ", loc)

		// Ensure path for database exists

		ensurePath(loc)

		gs, err = graphstorage.NewDiskGraphStorage(loc, false)
		if err != nil {
			fatal(err)
			return
		}
	}

	// Create GraphManager and rule engine

	print("Creating GraphManager instance")

	api.GM = graph.NewGraphManager(gs)
	api.RE = rules.NewEngine(api.GM, rules.NewRuleRegistry())
	api.RE.SetMaxCascadeDepth(int(config.Int(config.MaxCascadeDepth)))

	defer func() {

		print("Closing datastore")

		if err := api.GM.Close(); err != nil {
			fatal(err)
			return
		}

		os.RemoveAll(filepath.Join(basepath, config.Str(config.LockFile)))
	}()

	// Load rule definitions

	if !loadRules(filepath.Join(basepath, config.Str(config.RulesFile))) {
		return
	}

	// Handle single operation - these are operations which work on the GraphManager
	// and the rule engine and then exit.

	if singleOperation != nil && singleOperation(api.GM, api.RE) {
		return
	}

	// Register REST endpoints

	api.APIHost = config.Addr()

	api.RegisterRestEndpoints(api.GeneralEndpointMap)
	api.RegisterRestEndpoints(v1Endpoints())

	// Start HTTP server and enable REST API

	hs := &httputil.HTTPServer{}

	var wg sync.WaitGroup
	wg.Add(1)

	print("Starting server on: ", api.APIHost)

	go hs.RunHTTPServer(config.Addr(), &wg)

	// Wait until the server has started

	wg.Wait()

	// HTTP Server has started

	if hs.LastError != nil {
		fatal(hs.LastError)
		return
	}

	// Create a lockfile so the server can be shut down

	lf := lockutil.NewLockFile(filepath.Join(basepath, config.Str(config.LockFile)),
		time.Duration(2)*time.Second)

	lf.Start()

	go func() {

		// Check if the lockfile watcher is running and
		// call shutdown once it has finished

		for lf.WatcherRunning() {
			time.Sleep(time.Duration(1) * time.Second)
		}

		print("Lockfile was modified")

		hs.Shutdown()
	}()

	// Add to the wait group so we can wait for the shutdown

	wg.Add(1)

	print("Waiting for shutdown")
	wg.Wait()

	print("Shutting down")
}

/*
loadRules loads class and rule declarations from a given rules file. A
missing rules file is not an error.
*/
func loadRules(rulesFile string) bool {

	if ok, _ := fileutil.PathExists(rulesFile); !ok {
		print("No rules file found: ", rulesFile)
		return true
	}

	print("Loading rules from: ", rulesFile)

	rs, err := ruleset.LoadFile(rulesFile)
	if err != nil {
		fatal("Failed to load rules:", err)
		return false
	}

	rds, err := rs.Apply(api.RE)
	if err != nil {
		fatal("Failed to apply rules:", err)
		return false
	}

	print(fmt.Sprintf("Defined %v rules for %v classes", len(rds), len(rs.Classes)))

	return true
}

/*
v1Endpoints returns the version 1 REST endpoints which are enabled in the
configuration.
*/
func v1Endpoints() map[string]api.RestEndpointInst {
	endpoints := make(map[string]api.RestEndpointInst)

	for url, inst := range v1.V1EndpointMap {
		endpoints[url] = inst
	}

	if !config.Bool(config.EnableWebsocket) {
		delete(endpoints, v1.EndpointAggregateSocket)
	}

	if !config.Bool(config.EnableMetrics) {
		delete(endpoints, v1.EndpointMetrics)
	}

	return endpoints
}

/*
ensurePath ensures that a given relative path exists.
*/
func ensurePath(path string) {
	if res, _ := fileutil.PathExists(path); !res {
		if err := os.Mkdir(path, 0770); err != nil {
			fatal("Could not create directory:", err.Error())
			return
		}
	}
}
