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

	"github.com/krotik/common/errorutil"
	"github.com/krotik/rulegraph/graph"
	"github.com/krotik/rulegraph/graph/data"
	"golang.org/x/sync/singleflight"
)

/*
Engine is the entry point of the rule engine for applications.
*/
type Engine struct {
	gm         *graph.Manager     // Graph manager
	registry   *RuleRegistry      // Registry with all rules
	dispatcher *EventDispatcher   // Event dispatcher which is registered with the graph manager
	metrics    *Metrics           // Metrics of the engine
	reconciles singleflight.Group // Running reconciliations
}

/*
NewEngine creates a new rule engine for a given graph manager and registers
its event dispatcher with the manager.
*/
func NewEngine(gm *graph.Manager, registry *RuleRegistry) *Engine {
	metrics := NewMetrics()
	dispatcher := NewEventDispatcher(registry, metrics)

	gm.SetGraphRule(dispatcher)

	return &Engine{gm: gm, registry: registry, dispatcher: dispatcher, metrics: metrics}
}

/*
Registry returns the rule registry of this engine.
*/
func (e *Engine) Registry() *RuleRegistry {
	return e.registry
}

/*
Metrics returns the metrics of this engine.
*/
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

/*
SetMaxCascadeDepth sets the maximum depth of trigger cascades. The depth can
be changed while transactions are committed.
*/
func (e *Engine) SetMaxCascadeDepth(depth int) {
	e.dispatcher.maxDepth.Store(int32(depth))
}

/*
MaxCascadeDepth returns the maximum depth of trigger cascades.
*/
func (e *Engine) MaxCascadeDepth() int {
	return int(e.dispatcher.maxDepth.Load())
}

/*
AddListener adds a listener for aggregate changes.
*/
func (e *Engine) AddListener(listener func(change *AggregateChange)) {
	e.dispatcher.AddListener(listener)
}

/*
RemoveListeners removes all listeners for aggregate changes.
*/
func (e *Engine) RemoveListeners() {
	e.dispatcher.RemoveListeners()
}

/*
RegisterClass registers a class with an optional parent class and declared
properties.
*/
func (e *Engine) RegisterClass(name string, parent string, properties ...string) error {
	return e.registry.RegisterClass(name, parent, properties...)
}

/*
DefineRule defines a rule for a class. An existing rule with the same name is
replaced. Existing nodes are not evaluated - use Reconcile to build the
groups of a rule for existing data.
*/
func (e *Engine) DefineRule(class string, name string, predicate *Predicate,
	functions []AggregateFunction, triggers []string) (*RuleDefinition, error) {

	rd, err := NewRuleDefinition(class, name, predicate, functions, triggers)

	if err == nil {
		var old *RuleDefinition

		if old, err = e.registry.Define(rd); err == nil {
			if old != nil {
				LogInfo("Replaced rule ", rd)
				e.warnStaleAggregates(old, rd)
			} else {
				LogDebug("Defined rule ", rd)
			}
		}
	}

	if err != nil {
		return nil, err
	}

	return rd, nil
}

/*
warnStaleAggregates logs a warning if a replacing rule adds aggregate functions
to a group which already has members. The new values only include nodes which
are evaluated after the replacement.
*/
func (e *Engine) warnStaleAggregates(old *RuleDefinition, rd *RuleDefinition) {
	known := make(map[string]bool)

	for _, fn := range old.Functions {
		known[fmt.Sprintf("%v(%v)", fn.Name(), fn.Property())] = true
	}

	var added []string

	for _, fn := range rd.Functions {
		if id := fmt.Sprintf("%v(%v)", fn.Name(), fn.Property()); !known[id] {
			added = append(added, id)
		}
	}

	g := e.registry.Group(rd.OwnerClass, rd.Name)

	if len(added) == 0 || g == nil {
		return
	}

	members, err := g.Members(e.gm)

	if err != nil {
		LogError("Could not check members of rule ", rd.OwnerClass, ".", rd.Name, ": ", err)
	} else if len(members) > 0 {
		LogError("Rule ", rd.OwnerClass, ".", rd.Name, " has ", len(members),
			" members which are not included in the new functions ", added,
			" - reconcile class ", rd.OwnerClass, " to rebuild the group")
	}
}

/*
group returns the group object of a rule.
*/
func (e *Engine) group(class string, name string) (*RuleGroupNode, *RuleDefinition, error) {
	rd, ok := e.registry.Rule(class, name)
	g := e.registry.Group(class, name)

	if !ok || g == nil {
		return nil, nil, &RuleError{Type: ErrUnknownRule, Detail: class + "." + name}
	}

	return g, rd, nil
}

/*
GroupMembers returns all members of a rule sorted by key. Groups which were
never used have no members.
*/
func (e *Engine) GroupMembers(class string, name string) ([]data.Node, error) {
	g, _, err := e.group(class, name)
	if err != nil {
		return nil, err
	}

	return g.Members(e.gm)
}

/*
AggregateValue returns the value of an aggregate function of a rule. The
property is only required for functions which are bound to a property.
Groups which were never used return the initial value of the function.
*/
func (e *Engine) AggregateValue(class string, name string, function string, property string) (interface{}, error) {
	g, rd, err := e.group(class, name)
	if err != nil {
		return nil, err
	}

	fn := rd.Function(function, property)
	if fn == nil {
		return nil, &RuleError{Type: ErrUnknownFunction,
			Detail: fmt.Sprintf("Rule %v.%v has no function %v(%v)", class, name, function, property)}
	}

	return g.AggregateValue(e.gm, fn)
}

/*
ForceReevaluate evaluates all rules which apply to a given node.
*/
func (e *Engine) ForceReevaluate(key string, kind string) error {
	return e.gm.RunInTrans(func(gm *graph.Manager, trans graph.Trans) error {

		node, err := gm.FetchNode(key, kind)

		if err == nil && node == nil {
			err = &RuleError{Type: ErrUnknownNode, Detail: kind + " " + key}
		}

		if err == nil {
			ev := e.dispatcher.newContext(gm, trans)
			ev.direct = true

			err = e.dispatcher.TriggerRules(ev, node, nil)
		}

		return err
	})
}

/*
TeardownRules removes all rules of a class together with their groups and
membership edges. Returns the number of removed membership edges.
*/
func (e *Engine) TeardownRules(class string) (int, error) {
	var removed int

	rds := e.registry.RulesFor(class)
	groups := e.registry.Remove(class)

	err := e.gm.RunInTrans(func(gm *graph.Manager, trans graph.Trans) error {
		ev := e.dispatcher.newContext(gm, trans)
		cerr := errorutil.NewCompositeError()

		for _, g := range groups {
			n, err := g.Teardown(ev)

			if err != nil {
				cerr.Add(err)
			}

			removed += n
		}

		if cerr.HasErrors() {
			return cerr
		}

		return nil
	})

	if err != nil {

		// Restore the rules so the registry matches the graph

		for _, rd := range rds {
			_, rerr := e.registry.Define(rd)
			errorutil.AssertOk(rerr)
		}

		LogError("Could not remove rule groups of class ", class, ": ", err)

		return 0, err
	}

	LogInfo("Removed ", len(groups), " rule groups of class ", class)

	return removed, nil
}

/*
Reconcile rebuilds all groups of a class. All groups are torn down and every
node of the class or its descendants is evaluated again. This is required
after rules were added to a class which already has nodes (e.g. when a second
rule is added to a class with a bulk rule). Concurrent calls for the same
class are coalesced. Returns the number of evaluated nodes.
*/
func (e *Engine) Reconcile(class string) (int, error) {
	res, err, _ := e.reconciles.Do(class, func() (interface{}, error) {
		var count int

		rds := e.registry.RulesFor(class)
		if len(rds) == 0 {
			return 0, &RuleError{Type: ErrUnknownRule, Detail: "Class " + class + " has no rules"}
		}

		err := e.gm.RunInTrans(func(gm *graph.Manager, trans graph.Trans) error {
			ev := e.dispatcher.newContext(gm, trans)
			ev.direct = true

			for _, g := range e.registry.Groups(class) {
				if _, err := g.Teardown(ev); err != nil {
					return err
				}
			}

			for _, kind := range gm.NodeKinds() {

				if isReservedKind(kind) {
					continue
				}

				it, err := gm.NodeKeyIterator(kind)
				if err != nil {
					return err
				} else if it == nil {
					continue
				}

				for it.HasNext() {
					node, err := gm.FetchNode(it.Next(), kind)
					if err != nil {
						return err
					}

					if node == nil || !e.registry.IsA(node.Class(), class) {
						continue
					}

					for _, rd := range rds {
						g := e.registry.Group(class, rd.Name)
						if g == nil {
							continue
						}

						if _, err := g.ExecuteRule(ev, rd, node, nil); err != nil {
							return err
						}
					}

					count++
				}
			}

			return nil
		})

		if err == nil {
			LogInfo("Reconciled ", count, " nodes of class ", class)
		}

		return count, err
	})

	if err != nil {
		return 0, err
	}

	return res.(int), nil
}
