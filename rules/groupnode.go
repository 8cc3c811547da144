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

	"github.com/google/uuid"
	"github.com/krotik/common/stringutil"
	"github.com/krotik/rulegraph/graph"
	"github.com/krotik/rulegraph/graph/data"
)

/*
Change describes the change of a node which triggered an evaluation.
*/
type Change struct {
	Old   data.Node // Previous state of the node (nil for new nodes)
	Attrs []string  // Names of changed attributes
}

/*
Has checks if a given attribute has changed.
*/
func (c *Change) Has(attr string) bool {
	if c == nil {
		return false
	}
	for _, a := range c.Attrs {
		if a == attr {
			return true
		}
	}
	return false
}

/*
lastKnown returns the value of an attribute which was last seen by the
aggregate functions.
*/
func (c *Change) lastKnown(node data.Node, attr string) interface{} {
	if c != nil && c.Old != nil && c.Has(attr) {
		return c.Old.Attr(attr)
	}
	return node.Attr(attr)
}

/*
RuleGroupNode materializes the members of a rule of a class. The anchor node
is created lazily and found again through a discovery edge from the
reference node of the class.
*/
type RuleGroupNode struct {
	class     string                 // Owner class
	rule      string                 // Rule name
	lock      *sync.Mutex            // Critical section of the class reference node
	anchorKey atomic.Pointer[string] // Key of the committed anchor node
}

/*
newRuleGroupNode creates a new group object.
*/
func newRuleGroupNode(class string, rule string, lock *sync.Mutex) *RuleGroupNode {
	return &RuleGroupNode{class: class, rule: rule, lock: lock}
}

/*
Class returns the owner class of this group.
*/
func (g *RuleGroupNode) Class() string {
	return g.class
}

/*
Rule returns the rule name of this group.
*/
func (g *RuleGroupNode) Rule() string {
	return g.rule
}

/*
String returns a string representation of this group.
*/
func (g *RuleGroupNode) String() string {
	return fmt.Sprintf("Group %v.%v", g.class, g.rule)
}

/*
cachedKey returns the cached anchor key or an empty string.
*/
func (g *RuleGroupNode) cachedKey() string {
	if k := g.anchorKey.Load(); k != nil {
		return *k
	}
	return ""
}

/*
publish caches the key of a committed anchor.
*/
func (g *RuleGroupNode) publish(key string) {
	g.anchorKey.Store(&key)
}

/*
forget drops the cached anchor key.
*/
func (g *RuleGroupNode) forget() {
	g.anchorKey.Store(nil)
}

/*
discoveryKey returns the key of the discovery edge.
*/
func (g *RuleGroupNode) discoveryKey() string {
	return stringutil.MD5HexString(RuleClassKind + "#" + g.class + "#" + g.rule)
}

/*
memberEdgeKey returns the key of the membership edge between an anchor and
a node. There can only be one such edge.
*/
func memberEdgeKey(anchorKey string, node data.Node) string {
	return stringutil.MD5HexString(anchorKey + "#" + node.Kind() + "#" + node.Key())
}

/*
lookup finds the anchor node through the cache or the discovery edge.
Returns nil if there is no anchor.
*/
func (g *RuleGroupNode) lookup(gm *graph.Manager) (data.Node, bool, error) {

	if key := g.cachedKey(); key != "" {
		anchor, err := gm.FetchNode(key, RuleGroupKind)
		if err != nil || anchor != nil {
			return anchor, true, err
		}
	}

	edge, err := gm.FetchEdge(g.discoveryKey(), g.rule)
	if err != nil || edge == nil {
		return nil, false, err
	}

	anchor, err := gm.FetchNode(edge.End2Key(), RuleGroupKind)

	return anchor, false, err
}

/*
GroupNode returns the anchor node of this group. If the anchor does not exist
and create is set then it is created within the transaction of the given
context. Creation happens inside the critical section of the class reference
node. The key of a new anchor is only cached once the transaction has been
committed.
*/
func (g *RuleGroupNode) GroupNode(ev *evalContext, create bool) (data.Node, error) {

	if key, ok := ev.state.anchors[g]; ok {
		return ev.gm.FetchNode(key, RuleGroupKind)
	}

	anchor, cached, err := g.lookup(ev.gm)

	if err != nil || anchor != nil || !create {
		if anchor != nil && !cached {
			g.publish(anchor.Key())
		}
		return anchor, err
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	// Check again - another transaction might have created the anchor

	if anchor, _, err = g.lookup(ev.gm); err != nil || anchor != nil {
		return anchor, err
	}

	ref := data.NewGraphNode()
	ref.SetAttr(data.NodeKey, g.class)
	ref.SetAttr(data.NodeKind, RuleClassKind)
	ref.SetAttr(data.NodeName, g.class)

	if existing, err := ev.gm.FetchNode(g.class, RuleClassKind); err != nil {
		return nil, err
	} else if existing == nil {
		if err := ev.trans.StoreNode(ref); err != nil {
			return nil, err
		}
	}

	anchor = data.NewGraphNode()
	anchor.SetAttr(data.NodeKey, uuid.New().String())
	anchor.SetAttr(data.NodeKind, RuleGroupKind)
	anchor.SetAttr(data.NodeName, g.class+"."+g.rule)
	anchor.SetAttr(AttrGroupClass, g.class)
	anchor.SetAttr(AttrGroupRule, g.rule)

	if err := ev.trans.StoreNode(anchor); err != nil {
		return nil, err
	}

	if err := ev.trans.StoreEdge(data.NewGraphEdgeBetween(g.discoveryKey(), g.rule,
		ref, RoleClass, anchor, RoleGroup)); err != nil {
		return nil, err
	}

	ev.state.anchors[g] = anchor.Key()

	LogDebug("Created anchor ", anchor.Key(), " for ", g)

	return anchor, nil
}

/*
isMember checks if a node is a member of this group.
*/
func (g *RuleGroupNode) isMember(gm *graph.Manager, anchor data.Node, node data.Node) (bool, error) {
	if anchor == nil {
		return false, nil
	}
	edge, err := gm.FetchEdge(memberEdgeKey(anchor.Key(), node), g.rule)
	return edge != nil, err
}

/*
ExecuteRule evaluates a rule for a given node and adjusts the membership of
the node and the aggregate values of the group. Returns if the membership of
the node has changed. A membership change cascades to all nodes which are
connected to the node through incoming trigger edges.
*/
func (g *RuleGroupNode) ExecuteRule(ev *evalContext, rd *RuleDefinition, node data.Node, change *Change) (bool, error) {

	qualifies, err := rd.Predicate.Evaluate(ev.gm, node)
	ev.metrics().evaluation(g.class, g.rule, qualifies, err)

	if err != nil {
		return false, err
	}

	anchor, err := g.GroupNode(ev, qualifies)
	if err != nil || anchor == nil {
		return false, err
	}

	member, err := g.isMember(ev.gm, anchor, node)
	if err != nil {
		return false, err
	}

	ga := ev.groupAnchor(g, anchor)
	transition := false

	if qualifies && !member {

		if err = g.addMember(ev, rd, ga, node); err != nil {
			return false, err
		}

		transition = true

	} else if qualifies && change != nil && change.Old != nil {

		for _, fn := range rd.Functions {
			if prop := fn.Property(); prop != "" && change.Has(prop) {
				if err = fn.Update(g.rule, ga, change.Old.Attr(prop), node.Attr(prop)); err != nil {
					return false, err
				}
			}
		}

	} else if !qualifies && member {

		if err = g.removeMember(ev, rd, ga, node, change); err != nil {
			return false, err
		}

		transition = true
	}

	if transition {
		err = ev.cascade(rd, node)
	}

	return transition, err
}

/*
addMember creates the membership edge of a node and adds its contribution to
all aggregate functions.
*/
func (g *RuleGroupNode) addMember(ev *evalContext, rd *RuleDefinition, ga *GroupAnchor, node data.Node) error {

	if err := ev.trans.StoreEdge(data.NewGraphEdgeBetween(memberEdgeKey(ga.Key(), node),
		g.rule, ga.node, RoleGroup, node, RoleMember)); err != nil {
		return err
	}

	ev.metrics().membership(g.class, g.rule, "add", 1)

	for _, fn := range rd.Functions {
		if err := fn.Add(g.rule, ga, node.Attr(fn.Property())); err != nil {
			return err
		}
	}

	return nil
}

/*
removeMember removes the membership edge of a node and removes its last known
contribution from all aggregate functions.
*/
func (g *RuleGroupNode) removeMember(ev *evalContext, rd *RuleDefinition, ga *GroupAnchor,
	node data.Node, change *Change) error {

	if err := ev.trans.RemoveEdge(memberEdgeKey(ga.Key(), node), g.rule); err != nil {
		return err
	}

	ev.metrics().membership(g.class, g.rule, "remove", 1)

	for _, fn := range rd.Functions {
		if err := fn.Delete(g.rule, ga, change.lastKnown(node, fn.Property())); err != nil {
			return err
		}
	}

	return nil
}

/*
leave removes a node from this group if it is a member. Returns if the node
was a member.
*/
func (g *RuleGroupNode) leave(ev *evalContext, rd *RuleDefinition, node data.Node, change *Change) (bool, error) {

	anchor, err := g.GroupNode(ev, false)
	if err != nil || anchor == nil {
		return false, err
	}

	member, err := g.isMember(ev.gm, anchor, node)
	if err != nil || !member {
		return false, err
	}

	return true, g.removeMember(ev, rd, ev.groupAnchor(g, anchor), node, change)
}

/*
BulkApply applies the collected changes of a bulk rule. The count is
adjusted once by the number of added nodes minus the number of deleted
members. Membership edges are created for all added nodes which still exist.
*/
func (g *RuleGroupNode) BulkApply(ev *evalContext, rd *RuleDefinition, batch *ClassChangeBatch) error {

	if batch.IsEmpty() {
		return nil
	}

	anchor, err := g.GroupNode(ev, true)
	if err != nil {
		return err
	}

	ga := ev.groupAnchor(g, anchor)
	added := 0

	for _, n := range batch.Added() {
		var node data.Node
		var member bool

		if node, err = ev.gm.FetchNode(n.Key(), n.Kind()); err != nil {
			return err
		} else if node == nil {
			continue
		}

		if member, err = g.isMember(ev.gm, anchor, node); err != nil {
			return err
		} else if member {
			continue
		}

		if err = ev.trans.StoreEdge(data.NewGraphEdgeBetween(memberEdgeKey(anchor.Key(), node),
			g.rule, anchor, RoleGroup, node, RoleMember)); err != nil {
			return err
		}

		added++
	}

	deleted := len(batch.Deleted())

	ev.metrics().membership(g.class, g.rule, "add", added)
	ev.metrics().membership(g.class, g.rule, "remove", deleted)
	ev.metrics().bulk(g.class, g.rule)

	LogDebug(g, " bulk update: added ", added, " deleted ", deleted)

	if added == deleted {
		return nil
	}

	return rd.Functions[0].(*countFunction).adjust(g.rule, ga, int64(added-deleted))
}

/*
Teardown removes all membership edges and the anchor of this group. The next
evaluation creates a new anchor with fresh aggregate values. Returns the
number of removed membership edges.
*/
func (g *RuleGroupNode) Teardown(ev *evalContext) (int, error) {

	anchor, err := g.GroupNode(ev, false)

	g.forget()
	delete(ev.state.anchors, g)
	ev.state.dropBatch(g)

	if err != nil || anchor == nil {
		return 0, err
	}

	_, edges, err := ev.gm.Relationships(anchor.Key(), RuleGroupKind, g.rule, graph.DirectionOutgoing)
	if err != nil {
		return 0, err
	}

	for _, e := range edges {
		if err := ev.trans.RemoveEdge(e.Key(), e.Kind()); err != nil {
			return 0, err
		}
	}

	ev.metrics().membership(g.class, g.rule, "remove", len(edges))

	// Removing the anchor removes also the discovery edge

	if err := ev.trans.RemoveNode(anchor.Key(), RuleGroupKind); err != nil {
		return 0, err
	}

	ev.state.recordTeardown(g)

	LogDebug("Removed ", g, " with ", len(edges), " members")

	return len(edges), nil
}

/*
Members returns all members of this group sorted by key.
*/
func (g *RuleGroupNode) Members(gm *graph.Manager) ([]data.Node, error) {

	anchor, _, err := g.lookup(gm)
	if err != nil || anchor == nil {
		return nil, err
	}

	nodes, _, err := gm.Relationships(anchor.Key(), RuleGroupKind, g.rule, graph.DirectionOutgoing)

	data.NodeSort(nodes)

	return nodes, err
}

/*
AggregateValue returns the current value of an aggregate function. Groups
without an anchor have the initial value of the function.
*/
func (g *RuleGroupNode) AggregateValue(gm *graph.Manager, fn AggregateFunction) (interface{}, error) {

	anchor, _, err := g.lookup(gm)
	if err != nil {
		return nil, err
	} else if anchor == nil {
		anchor = data.NewGraphNode()
	}

	return fn.Value(&GroupAnchor{node: anchor}, g.rule), nil
}

// Class change batch
// ==================

/*
ClassChangeBatch collects the added and deleted nodes of a bulk rule during
a transaction.
*/
type ClassChangeBatch struct {
	added   []data.Node    // Added nodes in order
	deleted []data.Node    // Deleted members in order
	pending map[string]int // Index of added nodes
}

/*
newClassChangeBatch creates a new empty batch.
*/
func newClassChangeBatch() *ClassChangeBatch {
	return &ClassChangeBatch{pending: make(map[string]int)}
}

/*
nodeID returns a unique identifier of a node.
*/
func nodeID(node data.Node) string {
	return node.Kind() + "#" + node.Key()
}

/*
Add records an added node.
*/
func (b *ClassChangeBatch) Add(node data.Node) {
	if _, ok := b.pending[nodeID(node)]; !ok {
		b.pending[nodeID(node)] = len(b.added)
		b.added = append(b.added, node)
	}
}

/*
Remove records a deleted node. A node which was added in the same batch is
dropped. Other nodes are only recorded if they were members.
*/
func (b *ClassChangeBatch) Remove(node data.Node, member bool) {
	id := nodeID(node)

	if i, ok := b.pending[id]; ok {
		b.added[i] = nil
		delete(b.pending, id)
	}

	if member {
		b.deleted = append(b.deleted, node)
	}
}

/*
Added returns all added nodes.
*/
func (b *ClassChangeBatch) Added() []data.Node {
	ret := make([]data.Node, 0, len(b.pending))
	for _, n := range b.added {
		if n != nil {
			ret = append(ret, n)
		}
	}
	return ret
}

/*
Deleted returns all deleted members.
*/
func (b *ClassChangeBatch) Deleted() []data.Node {
	return b.deleted
}

/*
deletedOnly returns a copy of this batch which contains only the deleted
members.
*/
func (b *ClassChangeBatch) deletedOnly() *ClassChangeBatch {
	return &ClassChangeBatch{deleted: b.deleted, pending: make(map[string]int)}
}

/*
IsEmpty checks if this batch contains any changes.
*/
func (b *ClassChangeBatch) IsEmpty() bool {
	return len(b.pending) == 0 && len(b.deleted) == 0
}
