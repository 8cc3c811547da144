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
Package rules contains the rule engine which maintains groups and aggregate
values over the nodes of a graph.

Classes of nodes can declare named rules. Each rule has a predicate, an
optional list of aggregate functions and an optional list of trigger edge
kinds. For every (class, rule) pair the engine maintains a group anchor node
in the graph. A membership edge from the anchor to a node exists if and only
if the predicate of the rule is true for the node. Aggregate values are stored
as attributes on the anchor node and are updated incrementally whenever the
membership or a bound attribute of a member changes.

The engine registers itself as a graph rule with the graph manager. All
changes are done inside the transaction of the triggering mutation. If an
evaluation fails the whole transaction is rolled back.
*/
package rules

import (
	"errors"
	"fmt"
	"log"
)

/*
Logger is a function which processes log messages
*/
type Logger func(v ...interface{})

/*
LogInfo is called if an info message is logged in the rule engine code
*/
var LogInfo = Logger(log.Print)

/*
LogError is called if an error message is logged in the rule engine code
*/
var LogError = Logger(log.Print)

/*
LogDebug is called if a debug message is logged in the rule engine code
(by default disabled)
*/
var LogDebug = Logger(LogNull)

/*
LogNull is a discarding logger to be used for disabling loggers
*/
var LogNull = func(v ...interface{}) {
}

// Graph objects of the rule engine
// ================================

/*
RuleClassKind is the node kind of the per-class reference nodes. The key of
a reference node is the class name.
*/
const RuleClassKind = "RuleClass"

/*
RuleGroupKind is the node kind of group anchor nodes.
*/
const RuleGroupKind = "RuleGroup"

/*
Edge roles used by discovery and membership edges
*/
const (
	RoleClass  = "class"
	RoleGroup  = "group"
	RoleMember = "member"
)

/*
Attributes of group anchor nodes
*/
const (
	AttrGroupClass = "group_class"
	AttrGroupRule  = "group_rule"
)

/*
DefaultMaxCascadeDepth is the default maximum depth of trigger cascades.
*/
const DefaultMaxCascadeDepth = 32

/*
EventAggregateChanged is the event which is posted to listeners once a
transaction which changed aggregate values has been committed.
*/
const EventAggregateChanged = "rules.aggregate.changed"

/*
isReservedKind checks if a given node kind is used by the rule engine itself.
*/
func isReservedKind(kind string) bool {
	return kind == RuleClassKind || kind == RuleGroupKind
}

// Errors
// ======

/*
RuleError is a rule engine related error
*/
type RuleError struct {
	Type   error  // Error type (to be used for equal checks)
	Detail string // Details of this error
	Cause  error  // Optional underlying error
}

/*
Error returns a human-readable string representation of this error.
*/
func (re *RuleError) Error() string {
	if re.Detail != "" {
		return fmt.Sprintf("RuleError: %v (%v)", re.Type, re.Detail)
	}

	return fmt.Sprintf("RuleError: %v", re.Type)
}

/*
Unwrap returns the error type and the underlying cause of this error.
*/
func (re *RuleError) Unwrap() []error {
	if re.Cause != nil {
		return []error{re.Type, re.Cause}
	}
	return []error{re.Type}
}

/*
Rule engine related error types
*/
var (
	ErrInvalidDefinition     = errors.New("Invalid rule definition")
	ErrConflictingDefinition = errors.New("Conflicting rule definition")
	ErrUnknownClass          = errors.New("Unknown class")
	ErrUnknownRule           = errors.New("Unknown rule")
	ErrUnknownFunction       = errors.New("Unknown aggregate function")
	ErrUnknownNode           = errors.New("Unknown node")
	ErrInvalidValue          = errors.New("Invalid value")
	ErrEvaluation            = errors.New("Rule evaluation failed")
	ErrCascadeDepth          = errors.New("Maximum cascade depth exceeded")
)

/*
IsRuleError checks if a given error (or any error it wraps) is a RuleError
of a given type.
*/
func IsRuleError(err error, errType error) bool {
	var re *RuleError

	if errors.As(err, &re) {
		return re.Type == errType
	}

	return false
}
