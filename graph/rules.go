/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graph

import (
	"errors"
	"sort"
	"sync"

	"github.com/krotik/rulegraph/graph/data"
	"github.com/krotik/rulegraph/graph/util"
)

/*
GraphRulesManager data structure
*/
type graphRulesManager struct {
	gm       *Manager       // GraphManager which provides events
	rules    []Rule         // List of graph rules in the order they were added
	eventMap map[int][]Rule // Map of events to graph rules
	lock     sync.RWMutex   // Lock for the rule tables
}

/*
Rule models a graph rule.
*/
type Rule interface {

	/*
	   Name returns the name of the rule.
	*/
	Name() string

	/*
		Handles returns a list of events which are handled by this rule.
	*/
	Handles() []int

	/*
		Handle handles an event. The function should write all changes to the
		given transaction. The given manager reads the state of the
		transaction in flight.
	*/
	Handle(gm *Manager, trans Trans, event int, data ...interface{}) error
}

/*
graphEvent main event handler which receives all graph related events. The
first error stops the event processing.
*/
func (gr *graphRulesManager) graphEvent(gm *Manager, trans Trans, event int, data ...interface{}) error {
	gr.lock.RLock()
	rules := gr.eventMap[event]
	gr.lock.RUnlock()

	handled := false // Flag to return a special handled error if no other error occured

	for _, rule := range rules {

		err := rule.Handle(gm, trans, event, data...)

		if err == ErrEventHandled {
			handled = true

		} else if err != nil {

			// Avoid wrapping errors which bubble up from nested events

			if util.IsGraphError(err, util.ErrRule) {
				return err
			}

			return &util.GraphError{Type: util.ErrRule,
				Detail: rule.Name() + ": " + err.Error(), Cause: err}
		}
	}

	if handled {
		return ErrEventHandled
	}

	return nil
}

/*
SetGraphRule sets a GraphRule. A rule with the same name is replaced.
*/
func (gr *graphRulesManager) SetGraphRule(rule Rule) {
	gr.lock.Lock()
	defer gr.lock.Unlock()

	replaced := false

	for i, r := range gr.rules {
		if r.Name() == rule.Name() {
			gr.rules[i] = rule
			replaced = true
		}
	}

	if !replaced {
		gr.rules = append(gr.rules, rule)
	}

	// Rebuild event map

	gr.eventMap = make(map[int][]Rule)

	for _, r := range gr.rules {
		for _, handledEvent := range r.Handles() {
			gr.eventMap[handledEvent] = append(gr.eventMap[handledEvent], r)
		}
	}
}

/*
GraphRules returns a list of all available graph rules.
*/
func (gr *graphRulesManager) GraphRules() []string {
	gr.lock.RLock()
	defer gr.lock.RUnlock()

	ret := make([]string, 0, len(gr.rules))

	for _, rule := range gr.rules {
		ret = append(ret, rule.Name())
	}

	sort.StringSlice(ret).Sort()

	return ret
}

// System rule SystemRuleDeleteNodeEdges
// =====================================

/*
SystemRuleDeleteNodeEdges is a system rule to delete all edges when a node is
deleted. Deletes also the other end if the cascading flag is set on the edge.
*/
type SystemRuleDeleteNodeEdges struct {
}

/*
Name returns the name of the rule.
*/
func (r *SystemRuleDeleteNodeEdges) Name() string {
	return "system.deletenodeedges"
}

/*
Handles returns a list of events which are handled by this rule.
*/
func (r *SystemRuleDeleteNodeEdges) Handles() []int {
	return []int{EventNodeDeleted}
}

/*
Handle handles an event.
*/
func (r *SystemRuleDeleteNodeEdges) Handle(gm *Manager, trans Trans, event int, ed ...interface{}) error {
	node := ed[0].(data.Node)

	// Get all connected nodes and relationships

	nnodes, edges, err := gm.TraverseMulti(node.Key(), node.Kind(), ":::", false)
	if err != nil {
		return err
	}

	for i, edge := range edges {

		// Remove the edge in any case

		if err := trans.RemoveEdge(edge.Key(), edge.Kind()); err != nil {
			return err
		}

		// Remove the node on the other side if the edge is cascading on this end

		if edge.End1IsCascading() {
			if err := trans.RemoveNode(nnodes[i].Key(), nnodes[i].Kind()); err != nil {
				return err
			}
		}
	}

	return nil
}

// System rule SystemRuleUpdateNodeStats
// =====================================

/*
SystemRuleUpdateNodeStats is a system rule to update info entries such as
known node or edge kinds in the MainDB.
*/
type SystemRuleUpdateNodeStats struct {
}

/*
Name returns the name of the rule.
*/
func (r *SystemRuleUpdateNodeStats) Name() string {
	return "system.updatenodestats"
}

/*
Handles returns a list of events which are handled by this rule.
*/
func (r *SystemRuleUpdateNodeStats) Handles() []int {
	return []int{EventNodeCreated, EventNodeUpdated, EventEdgeCreated}
}

/*
Handle handles an event.
*/
func (r *SystemRuleUpdateNodeStats) Handle(gm *Manager, trans Trans, event int, ed ...interface{}) error {

	if gm.ctx == nil {
		return errors.New("Node stats can only be updated in a transaction")
	}

	txn := gm.ctx.txn

	updateMainDB := func(entry string, vals ...string) error {
		m, err := getMainDBMap(txn, entry)
		if err != nil {
			return err
		}

		changed := false

		for _, val := range vals {
			if _, ok := m[val]; !ok {
				m[val] = ""
				changed = true
			}
		}

		if changed {
			err = storeMainDBMap(txn, entry, m)
		}

		return err
	}

	if event == EventEdgeCreated {
		edge := ed[0].(data.Edge)

		// Update stored relationships for both ends

		if err := updateMainDB(MainDBNodeEdges+edge.End1Kind(), edge.Spec(edge.End1Key())); err != nil {
			return err
		}

		if err := updateMainDB(MainDBNodeEdges+edge.End2Kind(), edge.Spec(edge.End2Key())); err != nil {
			return err
		}

		return updateMainDB(MainDBEdgeKinds, edge.Kind())
	}

	node := ed[0].(data.Node)

	if event == EventNodeCreated {
		if err := updateMainDB(MainDBNodeKinds, node.Kind()); err != nil {
			return err
		}
	}

	attrs := make([]string, 0, len(node.Data()))
	for attr := range node.Data() {
		attrs = append(attrs, attr)
	}

	return updateMainDB(MainDBNodeAttrs+node.Kind(), attrs...)
}
