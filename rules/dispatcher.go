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
	"sync"
	"sync/atomic"

	"github.com/krotik/common/flowutil"
	"github.com/krotik/rulegraph/graph"
	"github.com/krotik/rulegraph/graph/data"
)

/*
AggregateChange describes the aggregate values of a group after a committed
transaction.
*/
type AggregateChange struct {
	Class    string                 // Owner class of the group
	Rule     string                 // Rule name of the group
	Values   map[string]interface{} // Changed aggregate values by attribute name
	TornDown bool                   // Flag if the group was torn down
}

/*
transState holds the state of the rule engine for a transaction in flight.
*/
type transState struct {
	anchors    map[*RuleGroupNode]string                 // Anchors created in the transaction
	batches    map[*RuleGroupNode]*ClassChangeBatch      // Batches of bulk rules
	batchRules map[*RuleGroupNode]*RuleDefinition        // Rules of batches
	batchOrder []*RuleGroupNode                          // Order of batches
	deleting   map[string]bool                           // Nodes which are being deleted
	pending    map[string][]data.Node                    // Cascades after node deletion
	values     map[*RuleGroupNode]map[string]interface{} // Written aggregate values
	valueOrder []*RuleGroupNode                          // Order of written values
	torn       map[*RuleGroupNode]bool                   // Groups which were torn down
}

/*
newTransState creates a new transaction state.
*/
func newTransState() *transState {
	return &transState{
		anchors:    make(map[*RuleGroupNode]string),
		batches:    make(map[*RuleGroupNode]*ClassChangeBatch),
		batchRules: make(map[*RuleGroupNode]*RuleDefinition),
		deleting:   make(map[string]bool),
		pending:    make(map[string][]data.Node),
		values:     make(map[*RuleGroupNode]map[string]interface{}),
		torn:       make(map[*RuleGroupNode]bool),
	}
}

/*
batch returns the batch of a bulk rule.
*/
func (ts *transState) batch(g *RuleGroupNode, rd *RuleDefinition) *ClassChangeBatch {
	b, ok := ts.batches[g]
	if !ok {
		b = newClassChangeBatch()
		ts.batches[g] = b
		ts.batchRules[g] = rd
		ts.batchOrder = append(ts.batchOrder, g)
	}
	return b
}

/*
dropBatch drops the batch of a group.
*/
func (ts *transState) dropBatch(g *RuleGroupNode) {
	if _, ok := ts.batches[g]; ok {
		delete(ts.batches, g)
		delete(ts.batchRules, g)

		for i, bg := range ts.batchOrder {
			if bg == g {
				ts.batchOrder = append(ts.batchOrder[:i], ts.batchOrder[i+1:]...)
				break
			}
		}
	}
}

/*
recordValue records a written aggregate value.
*/
func (ts *transState) recordValue(g *RuleGroupNode, attr string, value interface{}) {
	vals, ok := ts.values[g]
	if !ok {
		vals = make(map[string]interface{})
		ts.values[g] = vals
		ts.valueOrder = append(ts.valueOrder, g)
	}
	vals[attr] = value
}

/*
recordTeardown records that a group was torn down.
*/
func (ts *transState) recordTeardown(g *RuleGroupNode) {
	if _, ok := ts.values[g]; !ok {
		ts.valueOrder = append(ts.valueOrder, g)
	}
	ts.values[g] = make(map[string]interface{})
	ts.torn[g] = true
}

/*
evalContext is the context of a rule evaluation.
*/
type evalContext struct {
	d      *EventDispatcher // Dispatcher which runs the evaluation
	gm     *graph.Manager   // Manager bound to the transaction in flight
	trans  graph.Trans      // Transaction in flight
	state  *transState      // State of the transaction
	depth  int              // Cascade depth
	direct bool             // Flag to evaluate bulk rules node by node
}

/*
deeper returns a context for the next cascade level.
*/
func (ev *evalContext) deeper() *evalContext {
	next := *ev
	next.depth++
	return &next
}

/*
metrics returns the metrics of the dispatcher.
*/
func (ev *evalContext) metrics() *Metrics {
	return ev.d.metrics
}

/*
groupAnchor returns an anchor object which records all written values.
*/
func (ev *evalContext) groupAnchor(g *RuleGroupNode, anchor data.Node) *GroupAnchor {
	return &GroupAnchor{anchor, ev.trans, func(attr string, value interface{}) {
		ev.state.recordValue(g, attr, value)
	}}
}

/*
cascade re-evaluates the rules of all nodes which are connected to a given
node through incoming trigger edges of a given rule.
*/
func (ev *evalContext) cascade(rd *RuleDefinition, node data.Node) error {

	if len(rd.Triggers) == 0 {
		return nil
	}

	nodes, err := ev.triggerNodes(rd, node)
	if err != nil || len(nodes) == 0 {
		return err
	}

	if ev.depth >= int(ev.d.maxDepth.Load()) {
		return &RuleError{Type: ErrCascadeDepth,
			Detail: fmt.Sprintf("Rule %v.%v on %v %v reached depth %v",
				rd.OwnerClass, rd.Name, node.Kind(), node.Key(), ev.depth)}
	}

	next := ev.deeper()

	for _, n := range nodes {
		ev.metrics().cascade(rd.OwnerClass, rd.Name)

		if err := ev.d.TriggerRules(next, n, nil); err != nil {
			return err
		}
	}

	return nil
}

/*
triggerNodes returns all nodes which are connected to a given node through
incoming trigger edges of a given rule.
*/
func (ev *evalContext) triggerNodes(rd *RuleDefinition, node data.Node) ([]data.Node, error) {
	var ret []data.Node

	seen := make(map[string]bool)

	for _, t := range rd.Triggers {

		nodes, _, err := ev.gm.Relationships(node.Key(), node.Kind(), t, graph.DirectionIncoming)
		if err != nil {
			return nil, err
		}

		for _, n := range nodes {
			id := nodeID(n)

			if seen[id] || isReservedKind(n.Kind()) {
				continue
			}

			seen[id] = true

			if n, err = ev.gm.FetchNode(n.Key(), n.Kind()); err != nil {
				return nil, err
			} else if n != nil {
				ret = append(ret, n)
			}
		}
	}

	return ret, nil
}

/*
EventDispatcher receives the events of the graph manager and runs the
affected rules.
*/
type EventDispatcher struct {
	registry *RuleRegistry          // Registry with all rules
	metrics  *Metrics               // Metrics (may be nil)
	pump     *flowutil.EventPump    // Listeners for aggregate changes
	maxDepth atomic.Int32           // Maximum cascade depth
	states   map[string]*transState // States of transactions in flight
	lock     sync.Mutex             // Lock for transaction states
}

/*
NewEventDispatcher creates a new event dispatcher for a given registry.
*/
func NewEventDispatcher(registry *RuleRegistry, metrics *Metrics) *EventDispatcher {
	d := &EventDispatcher{
		registry: registry,
		metrics:  metrics,
		pump:     flowutil.NewEventPump(),
		states:   make(map[string]*transState),
	}

	d.maxDepth.Store(DefaultMaxCascadeDepth)

	return d
}

/*
Name returns the name of the rule.
*/
func (d *EventDispatcher) Name() string {
	return "rules.dispatcher"
}

/*
Handles returns a list of events which are handled by this rule.
*/
func (d *EventDispatcher) Handles() []int {
	return []int{
		graph.EventNodeCreated,
		graph.EventNodeUpdated,
		graph.EventNodeDelete,
		graph.EventNodeDeleted,
		graph.EventEdgeCreated,
		graph.EventEdgeUpdated,
		graph.EventEdgeDeleted,
		graph.EventTransCommitting,
		graph.EventTransClosed,
	}
}

/*
Handle handles an event.
*/
func (d *EventDispatcher) Handle(gm *graph.Manager, trans graph.Trans, event int, ed ...interface{}) error {

	if event == graph.EventTransClosed {
		d.closeTransaction(trans.ID(), ed[0].(bool))
		return nil
	}

	ev := d.newContext(gm, trans)

	switch event {
	case graph.EventNodeCreated:
		return d.OnPropertyChanged(ev, ed[0].(data.Node), nil)

	case graph.EventNodeUpdated:
		return d.OnPropertyChanged(ev, ed[0].(data.Node), ed[1].(data.Node))

	case graph.EventNodeDelete:
		return d.OnNodeDeleting(ev, ed[0].(data.Node))

	case graph.EventNodeDeleted:
		return d.OnNodeDeleted(ev, ed[0].(data.Node))

	case graph.EventEdgeCreated, graph.EventEdgeDeleted:
		return d.OnRelationshipChanged(ev, ed[0].(data.Edge))

	case graph.EventEdgeUpdated:
		if err := d.OnRelationshipChanged(ev, ed[0].(data.Edge)); err != nil {
			return err
		}
		return d.OnRelationshipChanged(ev, ed[1].(data.Edge))

	case graph.EventTransCommitting:
		return d.applyBatches(ev)
	}

	return nil
}

/*
newContext returns an evaluation context for a given transaction.
*/
func (d *EventDispatcher) newContext(gm *graph.Manager, trans graph.Trans) *evalContext {
	d.lock.Lock()
	defer d.lock.Unlock()

	state, ok := d.states[trans.ID()]
	if !ok {
		state = newTransState()
		d.states[trans.ID()] = state
	}

	return &evalContext{d: d, gm: gm, trans: trans, state: state}
}

/*
OnPropertyChanged is called when a node was created or updated. The rules
of the node are evaluated if its class or one of its ancestors has rules.
The old node is nil for new nodes.
*/
func (d *EventDispatcher) OnPropertyChanged(ev *evalContext, node data.Node, old data.Node) error {

	if isReservedKind(node.Kind()) {
		return nil
	}

	change := &Change{Old: old, Attrs: data.NodeDiff(old, node)}

	if old != nil {

		if len(change.Attrs) == 0 {
			return nil
		}

		// A node which changes its class leaves the groups of its former classes

		if old.Class() != node.Class() {
			keep := make(map[string]bool)
			for _, c := range d.registry.ClassChain(node.Class()) {
				keep[c] = true
			}

			if err := d.leaveGroups(ev, old, keep, false); err != nil {
				return err
			}
		}
	}

	if !d.registry.HasRules(node.Class()) {
		return nil
	}

	return d.TriggerRules(ev, node, change)
}

/*
OnRelationshipChanged is called when an edge was created or deleted. The
rules of both ends are evaluated if their classes have rules.
*/
func (d *EventDispatcher) OnRelationshipChanged(ev *evalContext, edge data.Edge) error {

	if isReservedKind(edge.End1Kind()) || isReservedKind(edge.End2Kind()) {
		return nil
	}

	for _, end := range [][2]string{{edge.End1Key(), edge.End1Kind()}, {edge.End2Key(), edge.End2Kind()}} {

		if ev.state.deleting[end[1]+"#"+end[0]] {
			continue
		}

		node, err := ev.gm.FetchNode(end[0], end[1])
		if err != nil {
			return err
		}

		if node != nil && d.registry.HasRules(node.Class()) {
			if err := d.TriggerRules(ev, node, nil); err != nil {
				return err
			}
		}
	}

	return nil
}

/*
OnNodeDeleting is called before a node is deleted. The node leaves all its
groups. The delete path of all aggregate functions is run with the last
known values. Nodes which are connected through incoming trigger edges are
recorded and re-evaluated once the node is gone.
*/
func (d *EventDispatcher) OnNodeDeleting(ev *evalContext, node data.Node) error {

	if isReservedKind(node.Kind()) {
		return nil
	}

	ev.state.deleting[nodeID(node)] = true

	return d.leaveGroups(ev, node, nil, true)
}

/*
OnNodeDeleted is called after a node was deleted. Recorded nodes are
re-evaluated.
*/
func (d *EventDispatcher) OnNodeDeleted(ev *evalContext, node data.Node) error {
	id := nodeID(node)

	delete(ev.state.deleting, id)

	pending := ev.state.pending[id]
	delete(ev.state.pending, id)

	for _, n := range pending {

		if ev.state.deleting[nodeID(n)] {
			continue
		}

		current, err := ev.gm.FetchNode(n.Key(), n.Kind())

		if err == nil && current != nil {
			err = d.TriggerRules(ev.deeper(), current, nil)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

/*
leaveGroups removes a node from all groups of its class chain except the
groups of the given classes.
*/
func (d *EventDispatcher) leaveGroups(ev *evalContext, node data.Node, keep map[string]bool, deleting bool) error {

	for _, c := range d.registry.ClassChain(node.Class()) {

		if keep[c] {
			continue
		}

		for _, rd := range d.registry.RulesFor(c) {
			var left bool
			var err error

			g := d.registry.Group(c, rd.Name)
			if g == nil {
				continue
			}

			if d.registry.isBulk(rd) {
				var anchor data.Node

				if anchor, err = g.GroupNode(ev, false); err == nil {
					if left, err = g.isMember(ev.gm, anchor, node); err == nil && left {
						err = ev.trans.RemoveEdge(memberEdgeKey(anchor.Key(), node), g.rule)
					}
				}

				if err == nil {
					ev.state.batch(g, rd).Remove(node, left)
				}

			} else {

				left, err = g.leave(ev, rd, node, nil)
			}

			if err != nil {
				d.metrics.failure(c, rd.Name)
				return err
			}

			if !left {
				continue
			}

			if !deleting {
				err = ev.cascade(rd, node)

			} else if len(rd.Triggers) > 0 {
				var nodes []data.Node

				if nodes, err = ev.triggerNodes(rd, node); err == nil {
					ev.state.pending[nodeID(node)] = append(ev.state.pending[nodeID(node)], nodes...)
				}
			}

			if err != nil {
				return err
			}
		}
	}

	return nil
}

/*
TriggerRules evaluates all rules of the class of a given node and then the
rules of all its ancestors. Each ancestor evaluates the node against its own
groups. Bulk rules only record new nodes unless the context evaluates node
by node.
*/
func (d *EventDispatcher) TriggerRules(ev *evalContext, node data.Node, change *Change) error {

	if ev.state.deleting[nodeID(node)] || isReservedKind(node.Kind()) {
		return nil
	}

	for _, c := range d.registry.ClassChain(node.Class()) {

		for _, rd := range d.registry.RulesFor(c) {

			g := d.registry.Group(c, rd.Name)
			if g == nil {
				continue
			}

			if !ev.direct && d.registry.isBulk(rd) {

				// Nodes join bulk groups when they are created or change into the class

				if change != nil && (change.Old == nil || !d.registry.IsA(change.Old.Class(), c)) {
					ev.state.batch(g, rd).Add(node)
				}

				continue
			}

			if _, err := g.ExecuteRule(ev, rd, node, change); err != nil {
				d.metrics.failure(c, rd.Name)
				return err
			}
		}
	}

	return nil
}

/*
applyBatches applies all collected batches of bulk rules.
*/
func (d *EventDispatcher) applyBatches(ev *evalContext) error {

	for len(ev.state.batchOrder) > 0 {
		g := ev.state.batchOrder[0]
		batch := ev.state.batches[g]
		rd := ev.state.batchRules[g]

		ev.state.dropBatch(g)

		// A rule which is no longer eligible is evaluated node by node

		if current, ok := d.registry.Rule(g.class, g.rule); !ok {
			continue
		} else if current != rd || !d.registry.isBulk(current) {

			// Deleted members have already lost their edges

			if err := g.BulkApply(ev, rd, batch.deletedOnly()); err != nil {
				return err
			}

			direct := *ev
			direct.direct = true

			for _, n := range batch.Added() {
				node, err := ev.gm.FetchNode(n.Key(), n.Kind())

				if err == nil && node != nil {
					err = d.TriggerRules(&direct, node, nil)
				}

				if err != nil {
					return err
				}
			}

			continue
		}

		if err := g.BulkApply(ev, rd, batch); err != nil {
			d.metrics.failure(g.class, g.rule)
			return err
		}
	}

	return nil
}

/*
closeTransaction publishes or drops the state of a finished transaction and
notifies listeners about changed aggregate values.
*/
func (d *EventDispatcher) closeTransaction(id string, committed bool) {
	d.lock.Lock()
	state, ok := d.states[id]
	delete(d.states, id)
	d.lock.Unlock()

	if !ok || !committed {
		return
	}

	for g, key := range state.anchors {
		g.publish(key)
	}

	for _, g := range state.valueOrder {
		d.pump.PostEvent(EventAggregateChanged, &AggregateChange{
			Class:    g.class,
			Rule:     g.rule,
			Values:   state.values[g],
			TornDown: state.torn[g],
		})
	}
}

/*
AddListener adds a listener which is notified about changed aggregate values
after a transaction was committed. Listeners are called while the
transaction finishes and must not access the graph.
*/
func (d *EventDispatcher) AddListener(listener func(change *AggregateChange)) {
	d.pump.AddObserver(EventAggregateChanged, nil, func(event string, source interface{}) {
		listener(source.(*AggregateChange))
	})
}

/*
RemoveListeners removes all listeners.
*/
func (d *EventDispatcher) RemoveListeners() {
	d.pump.RemoveObservers("", nil)
}
