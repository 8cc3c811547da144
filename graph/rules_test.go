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
	"fmt"
	"testing"

	"github.com/krotik/rulegraph/graph/data"
	"github.com/krotik/rulegraph/graph/graphstorage"
	"github.com/krotik/rulegraph/graph/util"
)

type TestRule struct {
	name        string
	events      []string
	handleError bool
	vetoDelete  bool
}

func (r *TestRule) Name() string {
	return r.name
}

func (r *TestRule) Handles() []int {
	return []int{EventNodeCreated, EventNodeUpdated, EventNodeDeleted,
		EventEdgeCreated, EventEdgeUpdated, EventEdgeDeleted, EventNodeDelete,
		EventTransCommitting, EventTransClosed}
}

func (r *TestRule) Handle(gm *Manager, trans Trans, event int, ed ...interface{}) error {
	if r.handleError && event == EventNodeCreated {
		return &util.GraphError{Type: util.ErrAccessComponent, Detail: "Test error"}
	}

	switch event {
	case EventNodeCreated:
		node := ed[0].(data.Node)
		r.events = append(r.events, "created:"+node.Key())

		// Counting nodes in a different kind

		if node.Kind() == "Reader" {
			c, err := gm.FetchNode("readers", "Counter")
			if err != nil {
				return err
			}

			val := 0
			if c != nil {
				val = c.Attr("val").(int)
			}

			return trans.StoreNode(newTestNode("readers", "Counter", "val", val+1))
		}

	case EventNodeUpdated:
		r.events = append(r.events, "updated:"+ed[0].(data.Node).Key())

	case EventNodeDelete:
		r.events = append(r.events, "delete:"+ed[0].(data.Node).Key())
		if r.vetoDelete {
			return ErrEventHandled
		}

	case EventNodeDeleted:
		r.events = append(r.events, "deleted:"+ed[0].(data.Node).Key())

	case EventEdgeCreated:
		r.events = append(r.events, "edgecreated:"+ed[0].(data.Edge).Key())

	case EventEdgeDeleted:
		r.events = append(r.events, "edgedeleted:"+ed[0].(data.Edge).Key())

	case EventTransCommitting:
		r.events = append(r.events, "committing")

	case EventTransClosed:
		r.events = append(r.events, fmt.Sprint("closed:", ed[0]))
	}

	return nil
}

func TestGraphRules(t *testing.T) {
	mgs := graphstorage.NewMemoryGraphStorage("mystorage")
	gm := NewGraphManager(mgs)
	defer gm.Close()

	rule := &TestRule{name: "testrule"}
	gm.SetGraphRule(rule)

	if res := fmt.Sprint(gm.GraphRules()); res != "[system.deletenodeedges system.updatenodestats testrule]" {
		t.Error("Unexpected result:", res)
		return
	}

	trans := NewGraphTrans(gm)
	trans.StoreNode(newTestNode("lib1", "Library"))
	trans.StoreNode(newTestNode("r1", "Reader"))
	trans.StoreNode(newTestNode("r2", "Reader"))
	trans.StoreEdge(newTestEdge("e1", "member", newTestNode("lib1", "Library"), newTestNode("r1", "Reader"), false))

	if err := trans.Commit(); err != nil {
		t.Error(err)
		return
	}

	if res := fmt.Sprint(rule.events); res != "[created:lib1 created:r1 created:readers "+
		"created:r2 updated:readers edgecreated:e1 committing closed:true]" {
		t.Error("Unexpected result:", res)
		return
	}

	if n, _ := gm.FetchNode("readers", "Counter"); n.Attr("val") != 2 {
		t.Error("Unexpected result:", n)
		return
	}

	// Pre events can prevent an operation

	rule.events = nil
	rule.vetoDelete = true

	gm.RemoveNode("r1", "Reader")

	if n, _ := gm.FetchNode("r1", "Reader"); n == nil {
		t.Error("Node should not have been removed")
		return
	}

	rule.events = nil
	rule.vetoDelete = false

	gm.RemoveNode("r1", "Reader")

	if res := fmt.Sprint(rule.events); res != "[delete:r1 edgedeleted:e1 deleted:r1 committing closed:true]" {
		t.Error("Unexpected result:", res)
		return
	}

	// Rule errors roll back the transaction

	rule.events = nil
	rule.handleError = true

	err := gm.StoreNode(newTestNode("r3", "Reader"))

	if !util.IsGraphError(err, util.ErrRule) || !errors.Is(err, util.ErrAccessComponent) {
		t.Error("Unexpected result:", err)
		return
	}

	if res := fmt.Sprint(rule.events); res != "[closed:false]" {
		t.Error("Unexpected result:", res)
		return
	}

	if n, _ := gm.FetchNode("r3", "Reader"); n != nil {
		t.Error("Node should not exist:", n)
		return
	}

	// Rules can be replaced

	gm.SetGraphRule(&TestRule{name: "testrule"})

	if err := gm.StoreNode(newTestNode("r3", "Reader")); err != nil {
		t.Error(err)
		return
	}

	if len(rule.events) != 1 {
		t.Error("Old rule should not receive events:", rule.events)
		return
	}
}

func TestNoRules(t *testing.T) {
	mgs := graphstorage.NewMemoryGraphStorage("mystorage")
	gm := newGraphManagerNoRules(mgs)
	defer gm.Close()

	gm.StoreNode(newTestNode("r1", "Reader"))

	if len(gm.NodeKinds()) != 0 || len(gm.GraphRules()) != 0 {
		t.Error("No stats should be collected without rules")
		return
	}

	if err := gm.StoreNode(newTestNode("r2", "Reader")); err != nil {
		t.Error(err)
		return
	}

	// Without the system rules edges are left behind

	gm.StoreEdge(newTestEdge("e1", "friend", newTestNode("r1", "Reader"), newTestNode("r2", "Reader"), false))
	gm.RemoveNode("r1", "Reader")

	if e, _ := gm.FetchEdge("e1", "friend"); e == nil {
		t.Error("Edge should still exist")
		return
	}
}
