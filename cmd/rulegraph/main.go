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
RuleGraph is a graph datastore which maintains rule groups and aggregate
values of nodes incrementally.

The serve command starts the server with its REST API. All other commands
open the datastore, load the rules file, run a single operation and exit.
*/
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/krotik/rulegraph/config"
	"github.com/krotik/rulegraph/graph"
	"github.com/krotik/rulegraph/rules"
	"github.com/krotik/rulegraph/server"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rulegraph",
	Short: "RuleGraph - rule groups and aggregates on a graph datastore",
	Long: `RuleGraph is a graph datastore which groups nodes by rules.

Each rule of a class selects matching nodes into a group and maintains
aggregate values (count, sum) of its members whenever nodes change.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {

		if err := config.LoadConfigFile(configFile); err != nil {
			return fmt.Errorf("failed to load config file %v: %w", configFile, err)
		}

		if logLevel != "" {
			config.Config[config.LogLevel] = logLevel
		}

		return nil
	},
}

// serveCmd runs the server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the RuleGraph server",
	Long: `Starts the datastore and the REST API. The server runs until its
lockfile is modified.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		server.StartServer()
		return nil
	},
}

// showCmd shows classes, rules and aggregate values
var showCmd = &cobra.Command{
	Use:   "show [class] [rule]",
	Short: "Show classes, rules or aggregate values",
	Long: `Shows all classes with their rules. Given a class it shows the rule
definitions of the class. Given a class and a rule it shows the aggregate
values and the member count of the rule group.

Example:
  rulegraph show Person young`,
	Args: cobra.MaximumNArgs(2),
	RunE: runShow,
}

// reevaluateCmd evaluates all rules for a single node
var reevaluateCmd = &cobra.Command{
	Use:   "reevaluate [kind] [key]",
	Short: "Evaluate all rules of a node again",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingleOp(func(gm *graph.Manager, re *rules.Engine) error {

			if err := re.ForceReevaluate(args[1], args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Evaluated rules of %v %v\n", args[0], args[1])

			return nil
		})
	},
}

// reconcileCmd rebuilds all groups of a class
var reconcileCmd = &cobra.Command{
	Use:   "reconcile [class]",
	Short: "Rebuild all rule groups of a class",
	Long: `Tears down all rule groups of a class and evaluates every node of the
class and its subclasses again. Run this after rules were added to a class
which already has nodes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingleOp(func(gm *graph.Manager, re *rules.Engine) error {

			n, err := re.Reconcile(args[0])
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Evaluated %v nodes of class %v\n", n, args[0])
			}

			return err
		})
	},
}

// teardownCmd removes all groups of a class
var teardownCmd = &cobra.Command{
	Use:   "teardown [class]",
	Short: "Remove all rule groups of a class",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingleOp(func(gm *graph.Manager, re *rules.Engine) error {

			n, err := re.TeardownRules(args[0])
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %v memberships of class %v\n", n, args[0])
			}

			return err
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultConfigFile, "Config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, showCmd, reevaluateCmd, reconcileCmd, teardownCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

/*
runSingleOp runs a given operation on the datastore and exits.
*/
func runSingleOp(op func(gm *graph.Manager, re *rules.Engine) error) error {
	var err error

	executed := false

	server.StartServerWithSingleOp(func(gm *graph.Manager, re *rules.Engine) bool {
		executed = true
		err = op(gm, re)
		return true
	})

	if !executed {
		return errors.New("could not open datastore")
	}

	return err
}

/*
runShow prints classes, rules or aggregate values.
*/
func runShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	return runSingleOp(func(gm *graph.Manager, re *rules.Engine) error {
		reg := re.Registry()

		if len(args) == 0 {
			for _, class := range reg.Classes() {
				var names []string

				for _, rd := range reg.RulesFor(class) {
					names = append(names, rd.Name)
				}

				fmt.Fprintf(out, "%v: %v\n", class, strings.Join(names, ", "))
			}

			return nil
		}

		class := args[0]

		if _, ok := reg.Class(class); !ok {
			return &rules.RuleError{Type: rules.ErrUnknownClass, Detail: class}
		}

		if len(args) == 1 {
			for _, rd := range reg.RulesFor(class) {
				fmt.Fprintln(out, rd)
			}

			return nil
		}

		rd, ok := reg.Rule(class, args[1])
		if !ok {
			return &rules.RuleError{Type: rules.ErrUnknownRule, Detail: class + "." + args[1]}
		}

		for _, fn := range rd.Functions {
			val, err := re.AggregateValue(class, rd.Name, fn.Name(), fn.Property())
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%v: %v\n", rules.PropertyName(fn, rd.Name), val)
		}

		members, err := re.GroupMembers(class, rd.Name)
		if err == nil {
			fmt.Fprintf(out, "members: %v\n", len(members))
		}

		return err
	})
}
