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
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/krotik/rulegraph/graph"
	"github.com/krotik/rulegraph/graph/data"
	"github.com/krotik/rulegraph/graph/graphstorage"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

/*
newTestNode creates a node with a given key, kind and attribute pairs.
*/
func newTestNode(key string, kind string, attrs ...interface{}) data.Node {
	node := data.NewGraphNode()
	node.SetAttr(data.NodeKey, key)
	node.SetAttr(data.NodeKind, kind)

	for i := 0; i+1 < len(attrs); i += 2 {
		node.SetAttr(attrs[i].(string), attrs[i+1])
	}

	return node
}

/*
newTestEngine creates an engine on top of a new memory graph.
*/
func newTestEngine() (*graph.Manager, *Engine) {
	gm := graph.NewGraphManager(graphstorage.NewMemoryGraphStorage("enginetest"))
	return gm, NewEngine(gm, NewRuleRegistry())
}

/*
memberKeys returns the keys of all members of a group.
*/
func memberKeys(e *Engine, class string, rule string) []string {
	var ret []string

	members, err := e.GroupMembers(class, rule)
	if err != nil {
		return []string{err.Error()}
	}

	for _, m := range members {
		ret = append(ret, m.Key())
	}

	return ret
}

/*
checkCount checks the count of a group.
*/
func checkCount(t *testing.T, e *Engine, class string, rule string, expected int64) bool {
	t.Helper()

	res, err := e.AggregateValue(class, rule, "count", "")
	if err != nil || res != expected {
		t.Error("Unexpected count of ", class, ".", rule, ": ", res, err, " expected: ", expected)
		return false
	}

	return true
}

func youngPredicate(t *testing.T) *Predicate {
	p, err := ScriptPredicate("node.age < 5")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestGroupMembership(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	var changes []string

	e.AddListener(func(c *AggregateChange) {
		changes = append(changes, fmt.Sprintf("%v.%v %v %v", c.Class, c.Rule, c.Values, c.TornDown))
	})

	if _, err := e.DefineRule("Reader", "young", youngPredicate(t), []AggregateFunction{Count()}, nil); err != nil {
		t.Error(err)
		return
	}

	// Groups which were never used have no members and initial values

	if res := memberKeys(e, "Reader", "young"); len(res) != 0 || !checkCount(t, e, "Reader", "young", 0) {
		t.Error("Unexpected result:", res)
		return
	}

	gm.StoreNode(newTestNode("r1", "Reader", "age", 3, "name", "Anna"))

	if res := memberKeys(e, "Reader", "young"); !cmp.Equal(res, []string{"r1"}) ||
		!checkCount(t, e, "Reader", "young", 1) {
		t.Error("Unexpected result:", res)
		return
	}

	// Changes of other attributes do not change anything

	gm.UpdateNode(newTestNode("r1", "Reader", "name", "Annabel"))

	if !checkCount(t, e, "Reader", "young", 1) {
		return
	}

	gm.UpdateNode(newTestNode("r1", "Reader", "age", 7))

	if res := memberKeys(e, "Reader", "young"); len(res) != 0 || !checkCount(t, e, "Reader", "young", 0) {
		t.Error("Unexpected result:", res)
		return
	}

	trans := graph.NewGraphTrans(gm)
	trans.StoreNode(newTestNode("r2", "Reader", "age", 2))
	trans.StoreNode(newTestNode("r3", "Reader", "age", 4))
	trans.StoreNode(newTestNode("r4", "Reader", "age", 40))

	if err := trans.Commit(); err != nil {
		t.Error(err)
		return
	}

	if diff := cmp.Diff([]string{"r2", "r3"}, memberKeys(e, "Reader", "young")); diff != "" ||
		!checkCount(t, e, "Reader", "young", 2) {
		t.Error("Unexpected members:", diff)
		return
	}

	if _, err := gm.RemoveNode("r2", "Reader"); err != nil {
		t.Error(err)
		return
	}

	if diff := cmp.Diff([]string{"r3"}, memberKeys(e, "Reader", "young")); diff != "" ||
		!checkCount(t, e, "Reader", "young", 1) {
		t.Error("Unexpected members:", diff)
		return
	}

	// Reevaluation of a member is idempotent

	if err := e.ForceReevaluate("r3", "Reader"); err != nil {
		t.Error(err)
		return
	}

	if !checkCount(t, e, "Reader", "young", 1) {
		return
	}

	if err := e.ForceReevaluate("r99", "Reader"); !IsRuleError(err, ErrUnknownNode) {
		t.Error("Unexpected result:", err)
		return
	}

	// There is a single anchor and a single reference node

	if res := gm.NodeCount(RuleGroupKind); res != 1 {
		t.Error("Unexpected result:", res)
		return
	}

	if res := gm.NodeCount(RuleClassKind); res != 1 {
		t.Error("Unexpected result:", res)
		return
	}

	if diff := cmp.Diff([]string{
		"Reader.young map[count_young:1] false",
		"Reader.young map[count_young:0] false",
		"Reader.young map[count_young:2] false",
		"Reader.young map[count_young:1] false",
	}, changes); diff != "" {
		t.Error("Unexpected listener calls:", diff)
		return
	}

	// Unknown rules and functions

	if _, err := e.GroupMembers("Reader", "old"); !IsRuleError(err, ErrUnknownRule) {
		t.Error("Unexpected result:", err)
		return
	}

	if _, err := e.AggregateValue("Reader", "young", "sum", "age"); !IsRuleError(err, ErrUnknownFunction) ||
		err.Error() != "RuleError: Unknown aggregate function (Rule Reader.young has no function sum(age))" {
		t.Error("Unexpected result:", err)
		return
	}

	// Metrics

	m := e.Metrics()

	if res := testutil.ToFloat64(m.membershipsTotal.WithLabelValues("Reader", "young", "add")); res != 3 {
		t.Error("Unexpected result:", res)
		return
	}

	if res := testutil.ToFloat64(m.membershipsTotal.WithLabelValues("Reader", "young", "remove")); res != 2 {
		t.Error("Unexpected result:", res)
		return
	}

	if res := testutil.ToFloat64(m.evaluationsTotal.WithLabelValues("Reader", "young", "false")); res != 2 {
		t.Error("Unexpected result:", res)
		return
	}

	if res := testutil.CollectAndCount(m.bulkUpdatesTotal); res != 0 {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestSumAggregate(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	if err := e.RegisterClass("Book", "", "price", "title"); err != nil {
		t.Error(err)
		return
	}

	if _, err := e.DefineRule("Book", "all", nil, []AggregateFunction{Count(), Sum("price")}, nil); err != nil {
		t.Error(err)
		return
	}

	if e.Registry().isBulk(e.Registry().RulesFor("Book")[0]) {
		t.Error("Rule with a sum should not use bulk updates")
		return
	}

	checkSum := func(expected interface{}) bool {
		t.Helper()

		res, err := e.AggregateValue("Book", "all", "sum", "price")
		if err != nil || res != expected {
			t.Error("Unexpected sum:", res, err, "expected:", expected)
			return false
		}
		return true
	}

	gm.StoreNode(newTestNode("b1", "Book", "price", 10))
	gm.StoreNode(newTestNode("b2", "Book", "price", 50))

	if !checkSum(int64(60)) || !checkCount(t, e, "Book", "all", 2) {
		return
	}

	gm.UpdateNode(newTestNode("b1", "Book", "price", 15))

	if !checkSum(int64(65)) {
		return
	}

	// Non-numeric values roll back the whole transaction

	err := gm.UpdateNode(newTestNode("b2", "Book", "price", "free"))

	if !IsRuleError(err, ErrInvalidValue) {
		t.Error("Unexpected result:", err)
		return
	}

	if b2, _ := gm.FetchNode("b2", "Book"); b2.Attr("price") != 50 {
		t.Error("Unexpected result:", b2)
		return
	}

	if !checkSum(int64(65)) {
		return
	}

	// Members without the property contribute nothing

	gm.StoreNode(newTestNode("b3", "Book", "title", "Free"))
	gm.StoreNode(newTestNode("b4", "Book", "price", 0.5))

	if !checkSum(65.5) || !checkCount(t, e, "Book", "all", 4) {
		return
	}

	gm.RemoveNode("b1", "Book")
	gm.RemoveNode("b4", "Book")

	if !checkSum(float64(50)) || !checkCount(t, e, "Book", "all", 2) {
		return
	}

	// Undeclared properties cannot be used

	if _, err := e.DefineRule("Book", "cheap", nil, []AggregateFunction{Sum("cost")}, nil); !IsRuleError(err, ErrInvalidDefinition) {
		t.Error("Unexpected result:", err)
		return
	}
}

func TestBulkRule(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	if _, err := e.DefineRule("Event", "all", nil, []AggregateFunction{Count()}, nil); err != nil {
		t.Error(err)
		return
	}

	trans := graph.NewGraphTrans(gm)

	for i := 0; i < 100; i++ {
		trans.StoreNode(newTestNode(fmt.Sprintf("e%03d", i), "Event", "num", i))
	}

	if err := trans.Commit(); err != nil {
		t.Error(err)
		return
	}

	if res := memberKeys(e, "Event", "all"); len(res) != 100 || !checkCount(t, e, "Event", "all", 100) {
		t.Error("Unexpected result:", len(res))
		return
	}

	trans = graph.NewGraphTrans(gm)

	for i := 100; i < 200; i++ {
		trans.StoreNode(newTestNode(fmt.Sprintf("e%03d", i), "Event", "num", i))
	}

	for i := 0; i < 20; i++ {
		trans.RemoveNode(fmt.Sprintf("e%03d", i), "Event")
	}

	// Nodes which come and go in the same transaction are not counted

	trans.StoreNode(newTestNode("tmp", "Event"))
	trans.RemoveNode("tmp", "Event")

	// Updates of existing nodes do not change anything

	trans.UpdateNode(newTestNode("e050", "Event", "num", 5000))

	if err := trans.Commit(); err != nil {
		t.Error(err)
		return
	}

	members := memberKeys(e, "Event", "all")

	if len(members) != 180 || members[0] != "e020" || members[179] != "e199" ||
		!checkCount(t, e, "Event", "all", 180) {
		t.Error("Unexpected result:", len(members))
		return
	}

	// Bulk rules are not evaluated node by node

	m := e.Metrics()

	if res := testutil.CollectAndCount(m.evaluationsTotal); res != 0 {
		t.Error("Unexpected result:", res)
		return
	}

	if res := testutil.ToFloat64(m.bulkUpdatesTotal.WithLabelValues("Event", "all")); res != 2 {
		t.Error("Unexpected result:", res)
		return
	}

	if res := testutil.ToFloat64(m.membershipsTotal.WithLabelValues("Event", "all", "add")); res != 200 {
		t.Error("Unexpected result:", res)
		return
	}

	// Reevaluation of a bulk rule member does not count it twice

	if err := e.ForceReevaluate("e100", "Event"); err != nil {
		t.Error(err)
		return
	}

	if !checkCount(t, e, "Event", "all", 180) {
		return
	}

	// A second rule disables bulk updates for the class. Existing nodes
	// are only evaluated for the new rule after a reconciliation.

	if _, err := e.DefineRule("Event", "even", RawNodePredicate(func(node data.Node) (bool, error) {
		return node.Attr("num").(int)%2 == 0, nil
	}), []AggregateFunction{Count()}, nil); err != nil {
		t.Error(err)
		return
	}

	if e.Registry().isBulk(e.Registry().RulesFor("Event")[0]) {
		t.Error("Rule should no longer use bulk updates")
		return
	}

	if !checkCount(t, e, "Event", "even", 0) {
		return
	}

	count, err := e.Reconcile("Event")
	if err != nil || count != 180 {
		t.Error("Unexpected result:", count, err)
		return
	}

	if !checkCount(t, e, "Event", "all", 180) || !checkCount(t, e, "Event", "even", 90) {
		return
	}

	gm.StoreNode(newTestNode("e200", "Event", "num", 200))
	gm.RemoveNode("e021", "Event")

	if !checkCount(t, e, "Event", "all", 180) || !checkCount(t, e, "Event", "even", 91) {
		return
	}

	if _, err := e.Reconcile("Unknown"); !IsRuleError(err, ErrUnknownRule) {
		t.Error("Unexpected result:", err)
		return
	}
}

func TestBulkRuleDisabledInTransaction(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	e.DefineRule("Event", "all", nil, []AggregateFunction{Count()}, nil)

	gm.StoreNode(newTestNode("e1", "Event", "num", 1))
	gm.StoreNode(newTestNode("e2", "Event", "num", 2))

	// A rule which is defined while a transaction is in flight turns the
	// collected batch into direct evaluations

	err := gm.RunInTrans(func(gm *graph.Manager, trans graph.Trans) error {

		if err := trans.StoreNode(newTestNode("e3", "Event", "num", 3)); err != nil {
			return err
		}

		if err := trans.RemoveNode("e1", "Event"); err != nil {
			return err
		}

		_, err := e.DefineRule("Event", "any", nil, []AggregateFunction{Count()}, nil)

		return err
	})

	if err != nil {
		t.Error(err)
		return
	}

	if diff := cmp.Diff([]string{"e2", "e3"}, memberKeys(e, "Event", "all")); diff != "" ||
		!checkCount(t, e, "Event", "all", 2) {
		t.Error("Unexpected members:", diff)
		return
	}
}

func TestNodeDeletion(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	e.DefineRule("Reader", "young", youngPredicate(t), []AggregateFunction{Count(), Sum("age")}, nil)
	e.DefineRule("Reader", "named", WrappedObjectPredicate(func(obj *Object) (bool, error) {
		return obj.Has("name"), nil
	}), []AggregateFunction{Count()}, nil)

	gm.StoreNode(newTestNode("r1", "Reader", "age", 3, "name", "Anna"))
	gm.StoreNode(newTestNode("r2", "Reader", "age", 4))
	gm.StoreNode(newTestNode("r3", "Reader", "age", 9, "name", "Bob"))

	if !checkCount(t, e, "Reader", "young", 2) || !checkCount(t, e, "Reader", "named", 2) {
		return
	}

	// Deleting a node uses the last known values

	gm.RemoveNode("r1", "Reader")

	if !checkCount(t, e, "Reader", "young", 1) || !checkCount(t, e, "Reader", "named", 1) {
		return
	}

	if res, _ := e.AggregateValue("Reader", "young", "sum", "age"); res != int64(4) {
		t.Error("Unexpected result:", res)
		return
	}

	// Membership edges are gone with the node

	if res := gm.EdgeCount("young"); res != 2 {
		t.Error("Unexpected result:", res)
		return
	}

	// Removing an edge does not remove the node from its groups

	gm.StoreNode(newTestNode("lib", "Library"))
	gm.StoreEdge(data.NewGraphEdgeBetween("e1", "owns", newTestNode("lib", "Library"), "owner",
		newTestNode("r2", "Reader"), "item"))
	gm.RemoveEdge("e1", "owns")

	if !checkCount(t, e, "Reader", "young", 1) {
		return
	}
}

func TestTriggerCascade(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	e.DefineRule("Reader", "young", youngPredicate(t), []AggregateFunction{Count()}, []string{"owns"})
	e.DefineRule("Library", "hasyoung", WrappedObjectPredicate(func(obj *Object) (bool, error) {
		items, err := obj.Outgoing("owns")
		if err != nil {
			return false, err
		}

		for _, item := range items {
			if item.Kind() == "Reader" && item.Int("age") < 5 {
				return true, nil
			}
		}

		return false, nil
	}), []AggregateFunction{Count()}, nil)

	lib := newTestNode("lib1", "Library")
	r1 := newTestNode("r1", "Reader", "age", 3)

	gm.StoreNode(lib)
	gm.StoreNode(r1)

	// No anchor is created for groups without members

	if !checkCount(t, e, "Library", "hasyoung", 0) || gm.NodeCount(RuleGroupKind) != 1 {
		t.Error("Unexpected anchors:", gm.NodeCount(RuleGroupKind))
		return
	}

	gm.StoreEdge(data.NewGraphEdgeBetween("o1", "owns", lib, "owner", r1, "item"))

	if !checkCount(t, e, "Library", "hasyoung", 1) {
		return
	}

	// The library is evaluated again because the reader leaves its group

	gm.UpdateNode(newTestNode("r1", "Reader", "age", 8))

	if !checkCount(t, e, "Reader", "young", 0) || !checkCount(t, e, "Library", "hasyoung", 0) {
		return
	}

	if res := testutil.ToFloat64(e.Metrics().cascadesTotal.WithLabelValues("Reader", "young")); res != 1 {
		t.Error("Unexpected result:", res)
		return
	}

	gm.UpdateNode(newTestNode("r1", "Reader", "age", 2))

	if !checkCount(t, e, "Reader", "young", 1) || !checkCount(t, e, "Library", "hasyoung", 1) {
		return
	}

	// Deleting the reader reevaluates the library once the reader is gone

	gm.RemoveNode("r1", "Reader")

	if !checkCount(t, e, "Reader", "young", 0) || !checkCount(t, e, "Library", "hasyoung", 0) {
		return
	}

	if res, _ := gm.FetchNode("lib1", "Library"); res == nil {
		t.Error("Library should still exist")
		return
	}
}

func TestTriggerCascadeOfCountRule(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	e.DefineRule("Item", "all", nil, []AggregateFunction{Count()}, []string{"watch"})
	e.DefineRule("Watcher", "sees", WrappedObjectPredicate(func(obj *Object) (bool, error) {
		items, err := obj.Outgoing("watch")
		if err != nil {
			return false, err
		}

		for _, item := range items {
			if ok, err := item.HasRelationship("all", graph.DirectionIncoming); ok || err != nil {
				return ok, err
			}
		}

		return false, nil
	}), []AggregateFunction{Count()}, nil)

	if rd, _ := e.Registry().Rule("Item", "all"); !rd.BulkEligible() || e.Registry().isBulk(rd) {
		t.Error("Rule with triggers should not use bulk updates")
		return
	}

	w1 := newTestNode("w1", "Watcher")
	i1 := newTestNode("i1", "Item")

	trans := graph.NewGraphTrans(gm)
	trans.StoreNode(w1)
	trans.StoreNode(i1)
	trans.StoreEdge(data.NewGraphEdgeBetween("wa1", "watch", w1, "watcher", i1, "item"))

	if err := trans.Commit(); err != nil {
		t.Error(err)
		return
	}

	if !checkCount(t, e, "Item", "all", 1) || !checkCount(t, e, "Watcher", "sees", 1) {
		return
	}

	// A watched item which is deleted lets the watcher leave its group

	gm.RemoveNode("i1", "Item")

	if !checkCount(t, e, "Item", "all", 0) || !checkCount(t, e, "Watcher", "sees", 0) {
		return
	}

	if res := testutil.ToFloat64(e.Metrics().bulkUpdatesTotal.WithLabelValues("Item", "all")); res != 0 {
		t.Error("Unexpected bulk updates:", res)
		return
	}
}

func TestCascadeDepth(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	e.SetMaxCascadeDepth(5)

	// A node is in the chain group if it is switched on or points to a
	// member of the group

	e.DefineRule("Link", "chain", WrappedObjectPredicate(func(obj *Object) (bool, error) {
		if obj.Str("switch") == "on" {
			return true, nil
		}

		next, err := obj.Outgoing("next")
		for _, n := range next {
			if ok, _ := n.HasRelationship("chain", graph.DirectionIncoming); ok {
				return true, nil
			}
		}

		return false, err
	}), []AggregateFunction{Count()}, []string{"next"})

	buildChain := func(prefix string, length int) {
		trans := graph.NewGraphTrans(gm)

		for i := 0; i < length; i++ {
			trans.StoreNode(newTestNode(fmt.Sprint(prefix, i), "Link"))
		}

		for i := 1; i < length; i++ {
			trans.StoreEdge(data.NewGraphEdgeBetween(fmt.Sprint(prefix, "next", i), "next",
				newTestNode(fmt.Sprint(prefix, i), "Link"), "from",
				newTestNode(fmt.Sprint(prefix, i-1), "Link"), "to"))
		}

		if err := trans.Commit(); err != nil {
			t.Fatal(err)
		}
	}

	buildChain("a", 4)
	buildChain("b", 8)

	if err := gm.UpdateNode(newTestNode("a0", "Link", "switch", "on")); err != nil {
		t.Error(err)
		return
	}

	if diff := cmp.Diff([]string{"a0", "a1", "a2", "a3"}, memberKeys(e, "Link", "chain")); diff != "" {
		t.Error("Unexpected members:", diff)
		return
	}

	// The second chain is too long - the transaction is rolled back

	err := gm.UpdateNode(newTestNode("b0", "Link", "switch", "on"))

	if !IsRuleError(err, ErrCascadeDepth) {
		t.Error("Unexpected result:", err)
		return
	}

	if !checkCount(t, e, "Link", "chain", 4) {
		return
	}

	if b0, _ := gm.FetchNode("b0", "Link"); b0.Attr("switch") != nil {
		t.Error("Unexpected result:", b0)
		return
	}

	if res := testutil.ToFloat64(e.Metrics().errorsTotal.WithLabelValues("Link", "chain")); res == 0 {
		t.Error("Errors should have been counted")
		return
	}

	// The limit can be changed while transactions are committed

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		for i := 0; i < 100; i++ {
			e.SetMaxCascadeDepth(5 + i%3)
		}
	}()

	for i := 0; i < 10; i++ {
		if err := gm.UpdateNode(newTestNode("a0", "Link", "switch", "on")); err != nil {
			t.Error(err)
		}
	}

	wg.Wait()

	e.SetMaxCascadeDepth(DefaultMaxCascadeDepth)

	if res := e.MaxCascadeDepth(); res != DefaultMaxCascadeDepth {
		t.Error("Unexpected result:", res)
		return
	}

	if err := gm.UpdateNode(newTestNode("b0", "Link", "switch", "on")); err != nil {
		t.Error(err)
		return
	}

	if !checkCount(t, e, "Link", "chain", 12) {
		return
	}
}

func TestRedefinedRuleWarning(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	var logged []string
	var lock sync.Mutex

	oldLogError := LogError
	defer func() {
		LogError = oldLogError
	}()

	LogError = func(v ...interface{}) {
		lock.Lock()
		defer lock.Unlock()
		logged = append(logged, fmt.Sprint(v...))
	}

	e.RegisterClass("Book", "", "price")

	if _, err := e.DefineRule("Book", "all", nil, []AggregateFunction{Count()}, nil); err != nil {
		t.Error(err)
		return
	}

	// Replacing the rule of an empty group is silent

	if _, err := e.DefineRule("Book", "all", nil, []AggregateFunction{Count(), Sum("price")}, nil); err != nil {
		t.Error(err)
		return
	}

	if len(logged) != 0 {
		t.Error("Unexpected log:", logged)
		return
	}

	gm.StoreNode(newTestNode("b1", "Book", "price", 10))
	gm.StoreNode(newTestNode("b2", "Book", "price", 5))

	// Same functions in a different order

	if _, err := e.DefineRule("Book", "all", nil, []AggregateFunction{Sum("price"), Count()}, nil); err != nil {
		t.Error(err)
		return
	}

	if len(logged) != 0 {
		t.Error("Unexpected log:", logged)
		return
	}

	// An additional function only sees nodes which are evaluated afterwards

	e.RegisterClass("Magazine", "")

	if _, err := e.DefineRule("Magazine", "all", nil, []AggregateFunction{Count()}, nil); err != nil {
		t.Error(err)
		return
	}

	gm.StoreNode(newTestNode("m1", "Magazine", "pages", 40))

	if _, err := e.DefineRule("Magazine", "all", nil, []AggregateFunction{Count(), Sum("pages")}, nil); err != nil {
		t.Error(err)
		return
	}

	if len(logged) != 1 || !strings.Contains(logged[0], "Rule Magazine.all has 1 members") ||
		!strings.Contains(logged[0], "[sum(pages)]") || !strings.Contains(logged[0], "reconcile class Magazine") {
		t.Error("Unexpected log:", logged)
		return
	}

	if res, err := e.AggregateValue("Magazine", "all", "sum", "pages"); err != nil || res != int64(0) {
		t.Error("Unexpected result:", res, err)
		return
	}

	if _, err := e.Reconcile("Magazine"); err != nil {
		t.Error(err)
		return
	}

	if res, err := e.AggregateValue("Magazine", "all", "sum", "pages"); err != nil || res != int64(40) {
		t.Error("Unexpected result:", res, err)
		return
	}
}

func TestRollback(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	var changes []string

	e.AddListener(func(c *AggregateChange) {
		changes = append(changes, fmt.Sprint(c.Class, ".", c.Rule, " ", c.Values))
	})

	testErr := errors.New("Test error")

	e.DefineRule("Reader", "young", RawNodePredicate(func(node data.Node) (bool, error) {
		if node.Attr("fail") != nil {
			return false, testErr
		}
		return true, nil
	}), []AggregateFunction{Count()}, nil)

	trans := graph.NewGraphTrans(gm)
	trans.StoreNode(newTestNode("r1", "Reader"))
	trans.StoreNode(newTestNode("r2", "Reader", "fail", true))

	err := trans.Commit()

	if !IsRuleError(err, ErrEvaluation) || !errors.Is(err, testErr) {
		t.Error("Unexpected result:", err)
		return
	}

	// The anchor which was created in the failed transaction is not known

	if g := e.Registry().Group("Reader", "young"); g.cachedKey() != "" {
		t.Error("Unexpected cached anchor:", g.cachedKey())
		return
	}

	if res := gm.NodeCount(RuleGroupKind); res != 0 {
		t.Error("Unexpected result:", res)
		return
	}

	if res, _ := gm.FetchNode("r1", "Reader"); res != nil || !checkCount(t, e, "Reader", "young", 0) {
		t.Error("Unexpected result:", res)
		return
	}

	if len(changes) != 0 {
		t.Error("Unexpected listener calls:", changes)
		return
	}

	gm.StoreNode(newTestNode("r1", "Reader"))

	if !checkCount(t, e, "Reader", "young", 1) || gm.NodeCount(RuleGroupKind) != 1 {
		return
	}

	if g := e.Registry().Group("Reader", "young"); g.cachedKey() == "" {
		t.Error("Anchor should be cached")
		return
	}

	if fmt.Sprint(changes) != "[Reader.young map[count_young:1]]" {
		t.Error("Unexpected listener calls:", changes)
		return
	}

	e.RemoveListeners()

	gm.StoreNode(newTestNode("r2", "Reader"))

	if len(changes) != 1 {
		t.Error("Unexpected listener calls:", changes)
		return
	}
}

func TestInheritance(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	e.RegisterClass("Person", "", "age")

	adult, _ := ScriptPredicate("node.age >= 18")

	if _, err := e.DefineRule("Person", "adult", adult, []AggregateFunction{Count()}, nil); err != nil {
		t.Error(err)
		return
	}

	if err := e.RegisterClass("Student", "Person", "school"); err != nil {
		t.Error(err)
		return
	}

	if rd, ok := e.Registry().Rule("Student", "adult"); !ok || rd.OwnerClass != "Student" {
		t.Error("Rule should have been inherited:", rd)
		return
	}

	s1 := data.NewClassNode("s1", "Person", "Student")
	s1.SetAttr("age", 20)

	gm.StoreNode(s1)
	gm.StoreNode(newTestNode("p1", "Person", "age", 30))
	gm.StoreNode(newTestNode("p2", "Person", "age", 10))

	if diff := cmp.Diff([]string{"p1", "s1"}, memberKeys(e, "Person", "adult")); diff != "" {
		t.Error("Unexpected members:", diff)
		return
	}

	if diff := cmp.Diff([]string{"s1"}, memberKeys(e, "Student", "adult")); diff != "" {
		t.Error("Unexpected members:", diff)
		return
	}

	// A node which changes its class leaves the groups of its former class

	gm.StoreNode(newTestNode("s1", "Person", "age", 21))

	if !checkCount(t, e, "Person", "adult", 2) || !checkCount(t, e, "Student", "adult", 0) {
		return
	}

	// Reconciling a parent class includes descendants

	gm.StoreNode(s1)

	count, err := e.Reconcile("Person")
	if err != nil || count != 3 {
		t.Error("Unexpected result:", count, err)
		return
	}

	if !checkCount(t, e, "Person", "adult", 2) || !checkCount(t, e, "Student", "adult", 1) {
		return
	}
}

func TestTeardownRules(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	var changes []string

	e.DefineRule("Reader", "young", youngPredicate(t), []AggregateFunction{Count()}, nil)

	gm.StoreNode(newTestNode("r1", "Reader", "age", 3))
	gm.StoreNode(newTestNode("r2", "Reader", "age", 2))
	gm.StoreNode(newTestNode("r3", "Reader", "age", 9))

	e.AddListener(func(c *AggregateChange) {
		changes = append(changes, fmt.Sprint(c.Class, ".", c.Rule, " ", c.Values, " ", c.TornDown))
	})

	removed, err := e.TeardownRules("Reader")
	if err != nil || removed != 2 {
		t.Error("Unexpected result:", removed, err)
		return
	}

	if _, err := e.GroupMembers("Reader", "young"); !IsRuleError(err, ErrUnknownRule) {
		t.Error("Unexpected result:", err)
		return
	}

	if res := gm.NodeCount(RuleGroupKind); res != 0 {
		t.Error("Unexpected result:", res)
		return
	}

	if res := gm.EdgeCount("young"); res != 0 {
		t.Error("Unexpected result:", res)
		return
	}

	if fmt.Sprint(changes) != "[Reader.young map[] true]" {
		t.Error("Unexpected listener calls:", changes)
		return
	}

	// Tearing down a class without rules does nothing

	if removed, err := e.TeardownRules("Reader"); err != nil || removed != 0 {
		t.Error("Unexpected result:", removed, err)
		return
	}

	// A redefined rule starts from scratch

	e.DefineRule("Reader", "young", youngPredicate(t), []AggregateFunction{Count()}, nil)

	if res := memberKeys(e, "Reader", "young"); len(res) != 0 || !checkCount(t, e, "Reader", "young", 0) {
		t.Error("Unexpected result:", res)
		return
	}

	if count, err := e.Reconcile("Reader"); err != nil || count != 3 {
		t.Error("Unexpected result:", count, err)
		return
	}

	if diff := cmp.Diff([]string{"r1", "r2"}, memberKeys(e, "Reader", "young")); diff != "" ||
		!checkCount(t, e, "Reader", "young", 2) {
		t.Error("Unexpected members:", diff)
		return
	}
}

func TestAnchorDiscovery(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	e.DefineRule("Reader", "young", youngPredicate(t), []AggregateFunction{Count()}, nil)

	gm.StoreNode(newTestNode("r1", "Reader", "age", 3))
	gm.StoreNode(newTestNode("r2", "Reader", "age", 2))

	g := e.Registry().Group("Reader", "young")
	key := g.cachedKey()

	// The discovery edge points from the reference node to the anchor

	edge, err := gm.FetchEdge(g.discoveryKey(), "young")
	if err != nil || edge == nil || edge.End1Key() != "Reader" || edge.End1Kind() != RuleClassKind ||
		edge.End2Key() != key || edge.End2Kind() != RuleGroupKind {
		t.Error("Unexpected result:", edge, err)
		return
	}

	anchor, _ := gm.FetchNode(key, RuleGroupKind)

	if anchor.Attr(AttrGroupClass) != "Reader" || anchor.Attr(AttrGroupRule) != "young" ||
		anchor.Attr("count_young") != int64(2) {
		t.Error("Unexpected result:", anchor)
		return
	}

	// A new engine finds the existing anchor

	e2 := NewEngine(gm, NewRuleRegistry())

	if _, err := e2.DefineRule("Reader", "young", youngPredicate(t), []AggregateFunction{Count()}, nil); err != nil {
		t.Error(err)
		return
	}

	if !checkCount(t, e2, "Reader", "young", 2) {
		return
	}

	gm.StoreNode(newTestNode("r3", "Reader", "age", 1))

	if !checkCount(t, e2, "Reader", "young", 3) {
		return
	}

	if res := e2.Registry().Group("Reader", "young").cachedKey(); res != key {
		t.Error("Unexpected result:", res)
		return
	}

	if res := gm.NodeCount(RuleGroupKind); res != 1 {
		t.Error("Unexpected result:", res)
		return
	}

	// A stale cache entry is ignored

	g2 := e2.Registry().Group("Reader", "young")
	g2.publish("unknown")

	if !checkCount(t, e2, "Reader", "young", 3) {
		return
	}
}

func TestConcurrentUpdates(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	e.DefineRule("Reader", "young", youngPredicate(t), []AggregateFunction{Count()}, nil)

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			if err := gm.StoreNode(newTestNode(fmt.Sprint("r", i), "Reader", "age", i%5)); err != nil {
				t.Error(err)
			}
		}(i)
	}

	wg.Wait()

	if !checkCount(t, e, "Reader", "young", 20) {
		return
	}

	if res := gm.NodeCount(RuleGroupKind); res != 1 {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestRuleDefinitionErrors(t *testing.T) {
	gm, e := newTestEngine()
	defer gm.Close()

	if _, err := e.DefineRule("Reader", "young", youngPredicate(t), []AggregateFunction{Count()}, nil); err != nil {
		t.Error(err)
		return
	}

	// Redefinition with the same predicate type replaces the rule

	older, _ := ScriptPredicate("node.age < 6")

	if rd, err := e.DefineRule("Reader", "young", older, []AggregateFunction{Count()}, nil); err != nil ||
		rd.Predicate.Code() != "node.age < 6" {
		t.Error("Unexpected result:", rd, err)
		return
	}

	if _, err := e.DefineRule("Reader", "young", RawNodePredicate(func(node data.Node) (bool, error) {
		return true, nil
	}), []AggregateFunction{Count()}, nil); !IsRuleError(err, ErrConflictingDefinition) {
		t.Error("Unexpected result:", err)
		return
	}

	if rd, _ := e.Registry().Rule("Reader", "young"); rd.Predicate.Code() != "node.age < 6" {
		t.Error("Unexpected result:", rd)
		return
	}

	if _, err := e.DefineRule(RuleGroupKind, "young", nil, []AggregateFunction{Count()}, nil); !IsRuleError(err, ErrInvalidDefinition) {
		t.Error("Unexpected result:", err)
		return
	}

	// Predicate errors are reported to the writer and roll back the transaction

	e.DefineRule("Visitor", "adult", RawNodePredicate(func(node data.Node) (bool, error) {
		age, ok := node.Attr("age").(int)
		if !ok {
			return false, errors.New("visitor has no age")
		}
		return age >= 18, nil
	}), []AggregateFunction{Count()}, nil)

	if err := gm.StoreNode(newTestNode("v1", "Visitor", "age", 30)); err != nil {
		t.Error(err)
		return
	}

	err := gm.StoreNode(newTestNode("v2", "Visitor", "name", "Anna"))

	if !IsRuleError(err, ErrEvaluation) || !strings.Contains(err.Error(), "visitor has no age") {
		t.Error("Unexpected result:", err)
		return
	}

	if !checkCount(t, e, "Visitor", "adult", 1) {
		return
	}

	if res, _ := gm.FetchNode("v2", "Visitor"); res != nil || gm.NodeCount("Visitor") != 1 {
		t.Error("Node should not have been stored:", res)
		return
	}

	if res := memberKeys(e, "Visitor", "adult"); fmt.Sprint(res) != "[v1]" {
		t.Error("Unexpected result:", res)
		return
	}

	if res := testutil.ToFloat64(e.Metrics().evaluationsTotal.WithLabelValues("Visitor", "adult", "error")); res != 1 {
		t.Error("Unexpected result:", res)
		return
	}

	// An update which fails leaves the old values in place

	err = gm.UpdateNode(newTestNode("v1", "Visitor", "age", "thirty"))

	if !IsRuleError(err, ErrEvaluation) {
		t.Error("Unexpected result:", err)
		return
	}

	if res, _ := gm.FetchNode("v1", "Visitor"); res == nil || res.Attr("age") != 30 {
		t.Error("Unexpected result:", res)
		return
	}

	if !checkCount(t, e, "Visitor", "adult", 1) {
		return
	}
}
