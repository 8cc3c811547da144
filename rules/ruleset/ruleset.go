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
Package ruleset reads class and rule declarations from YAML files.

A rule file declares classes with an optional parent and optional declared
properties followed by rules. Rule conditions are ECAL expressions:

	classes:
	  - name: Person
	    properties: [age, name]
	  - name: Student
	    parent: Person
	rules:
	  - class: Person
	    name: young
	    condition: node.age < 5
	    functions:
	      - name: count
	      - name: sum
	        property: age
	    triggers: [owns]

Rules without a condition apply to all nodes of a class.
*/
package ruleset

import (
	"fmt"
	"os"

	"github.com/krotik/common/errorutil"
	"github.com/krotik/rulegraph/rules"
	"gopkg.in/yaml.v3"
)

/*
RuleSet is a set of class and rule declarations.
*/
type RuleSet struct {
	Classes []*ClassDecl `yaml:"classes"`
	Rules   []*RuleDecl  `yaml:"rules"`
}

/*
ClassDecl declares a class.
*/
type ClassDecl struct {
	Name       string   `yaml:"name"`
	Parent     string   `yaml:"parent,omitempty"`
	Properties []string `yaml:"properties,omitempty"`
}

/*
RuleDecl declares a rule.
*/
type RuleDecl struct {
	Class     string          `yaml:"class"`
	Name      string          `yaml:"name"`
	Condition string          `yaml:"condition,omitempty"`
	Functions []*FunctionDecl `yaml:"functions"`
	Triggers  []string        `yaml:"triggers,omitempty"`
}

/*
FunctionDecl declares an aggregate function of a rule.
*/
type FunctionDecl struct {
	Name     string `yaml:"name"`
	Property string `yaml:"property,omitempty"`
}

/*
String returns a string representation of this declaration.
*/
func (rd *RuleDecl) String() string {
	return fmt.Sprintf("%v.%v", rd.Class, rd.Name)
}

/*
Parse parses a rule set. All declared functions and conditions are checked.
*/
func Parse(data []byte) (*RuleSet, error) {
	rs := &RuleSet{}

	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, &rules.RuleError{Type: rules.ErrInvalidDefinition,
			Detail: "Could not parse rule set: " + err.Error(), Cause: err}
	}

	cerr := errorutil.NewCompositeError()

	for _, rd := range rs.Rules {
		if _, _, err := rd.compile(); err != nil {
			cerr.Add(err)
		}
	}

	if cerr.HasErrors() {
		return nil, cerr
	}

	return rs, nil
}

/*
LoadFile reads and parses a rule set from a file.
*/
func LoadFile(filename string) (*RuleSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

/*
compile creates the predicate and the aggregate functions of a rule.
*/
func (rd *RuleDecl) compile() (*rules.Predicate, []rules.AggregateFunction, error) {
	var predicate *rules.Predicate
	var err error

	if rd.Condition != "" {
		if predicate, err = rules.ScriptPredicate(rd.Condition); err != nil {
			return nil, nil, fmt.Errorf("Rule %v: %w", rd, err)
		}
	}

	functions := make([]rules.AggregateFunction, 0, len(rd.Functions))

	for _, fd := range rd.Functions {
		fn, err := rules.NewFunction(fd.Name, fd.Property)
		if err != nil {
			return nil, nil, fmt.Errorf("Rule %v: %w", rd, err)
		}
		functions = append(functions, fn)
	}

	return predicate, functions, nil
}

/*
Apply registers all classes and defines all rules of this rule set with a
given engine. Classes are registered in declaration order so parents must be
declared before their subclasses. Returns the defined rules.
*/
func (rs *RuleSet) Apply(e *rules.Engine) ([]*rules.RuleDefinition, error) {
	var ret []*rules.RuleDefinition

	cerr := errorutil.NewCompositeError()

	for _, cd := range rs.Classes {
		if err := e.RegisterClass(cd.Name, cd.Parent, cd.Properties...); err != nil {
			cerr.Add(err)
		}
	}

	for _, rd := range rs.Rules {
		predicate, functions, err := rd.compile()

		if err == nil {
			var def *rules.RuleDefinition

			if def, err = e.DefineRule(rd.Class, rd.Name, predicate, functions, rd.Triggers); err == nil {
				ret = append(ret, def)
			}
		}

		if err != nil {
			cerr.Add(err)
		}
	}

	if cerr.HasErrors() {
		return ret, cerr
	}

	return ret, nil
}
