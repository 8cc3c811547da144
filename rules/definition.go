/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package rules

import (
	"fmt"
	"strings"

	"github.com/krotik/common/stringutil"
)

/*
RuleDefinition describes a named rule of a class. Definitions are not
modified after they have been created.
*/
type RuleDefinition struct {
	OwnerClass   string              // Declaring class
	Name         string              // Rule name (unique per class)
	Predicate    *Predicate          // Predicate (nil means every node qualifies)
	Triggers     []string            // Edge kinds which cascade membership changes
	Functions    []AggregateFunction // Aggregate functions
	bulkEligible bool                // Flag if the rule can use bulk updates
	origin       string              // Declaring class of an inherited copy
}

/*
NewRuleDefinition creates a new rule definition and checks it for
configuration errors.
*/
func NewRuleDefinition(class string, name string, predicate *Predicate,
	functions []AggregateFunction, triggers []string) (*RuleDefinition, error) {

	invalid := func(detail string) error {
		return &RuleError{Type: ErrInvalidDefinition,
			Detail: fmt.Sprintf("Rule %v of class %v: %v", name, class, detail)}
	}

	if err := checkClassName(class); err != nil {
		return nil, err
	}

	if name == "" || !stringutil.IsAlphaNumeric(name) {
		return nil, invalid("rule name must be alphanumeric")
	}

	seen := make(map[string]bool)

	for _, fn := range functions {
		if fn == nil {
			return nil, invalid("function must not be nil")
		}

		if fn.Name() == "sum" && fn.Property() == "" {
			return nil, invalid("function sum requires a property")
		}

		id := fmt.Sprintf("%v(%v)", fn.Name(), fn.Property())

		if seen[id] {
			return nil, invalid("duplicate function " + id)
		}

		seen[id] = true
	}

	for _, t := range triggers {
		if t == "" || !stringutil.IsAlphaNumeric(t) {
			return nil, invalid("trigger edge kind must be alphanumeric: " + t)
		}
	}

	_, isCount := firstFunction(functions).(*countFunction)

	return &RuleDefinition{
		OwnerClass:   class,
		Name:         name,
		Predicate:    predicate,
		Triggers:     append([]string(nil), triggers...),
		Functions:    append([]AggregateFunction(nil), functions...),
		bulkEligible: predicate.Type() == PredicateNone && len(functions) == 1 && isCount,
	}, nil
}

/*
firstFunction returns the first function of a list or nil.
*/
func firstFunction(functions []AggregateFunction) AggregateFunction {
	if len(functions) == 0 {
		return nil
	}
	return functions[0]
}

/*
BulkEligible returns if this rule has no predicate and a single count
function.
*/
func (rd *RuleDefinition) BulkEligible() bool {
	return rd.bulkEligible
}

/*
Properties returns all node attributes this rule is known to depend on.
*/
func (rd *RuleDefinition) Properties() []string {
	var ret []string

	seen := make(map[string]bool)

	add := func(prop string) {
		if prop != "" && !seen[prop] {
			seen[prop] = true
			ret = append(ret, prop)
		}
	}

	for _, prop := range rd.Predicate.Properties() {
		add(prop)
	}

	for _, fn := range rd.Functions {
		add(fn.Property())
	}

	return ret
}

/*
Function returns a function of this rule by its name and property.
*/
func (rd *RuleDefinition) Function(name string, property string) AggregateFunction {
	for _, fn := range rd.Functions {
		if fn.Name() == name && fn.Property() == property {
			return fn
		}
	}
	return nil
}

/*
copyFor returns a copy of this rule for another class.
*/
func (rd *RuleDefinition) copyFor(class string) *RuleDefinition {
	origin := rd.origin
	if origin == "" {
		origin = rd.OwnerClass
	}

	return &RuleDefinition{
		OwnerClass:   class,
		Name:         rd.Name,
		Predicate:    rd.Predicate,
		Triggers:     rd.Triggers,
		Functions:    rd.Functions,
		bulkEligible: rd.bulkEligible,
		origin:       origin,
	}
}

/*
Inherited returns the class which declared this rule if the rule was
inherited from an ancestor. Returns an empty string for declared rules.
*/
func (rd *RuleDefinition) Inherited() string {
	return rd.origin
}

/*
String returns a string representation of this rule.
*/
func (rd *RuleDefinition) String() string {
	var fns []string

	for _, fn := range rd.Functions {
		fns = append(fns, fmt.Sprintf("%v(%v)", fn.Name(), fn.Property()))
	}

	return fmt.Sprintf("%v.%v predicate:%v functions:[%v] triggers:[%v]",
		rd.OwnerClass, rd.Name, rd.Predicate.Type(), strings.Join(fns, " "),
		strings.Join(rd.Triggers, " "))
}

/*
checkClassName checks if a given class name can be used.
*/
func checkClassName(class string) error {
	if class == "" || !stringutil.IsAlphaNumeric(class) {
		return &RuleError{Type: ErrInvalidDefinition,
			Detail: "Class name must be alphanumeric: " + class}
	}

	if isReservedKind(class) {
		return &RuleError{Type: ErrInvalidDefinition,
			Detail: "Class name is reserved: " + class}
	}

	return nil
}
