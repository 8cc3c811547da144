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
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/krotik/common/fileutil"
	"github.com/krotik/rulegraph/graph/data"
	"github.com/krotik/rulegraph/graph/graphstorage"
	"github.com/krotik/rulegraph/graph/util"
)

const GraphManagerTestDBDir1 = "gmtest1"

var DBDIRS = []string{GraphManagerTestDBDir1}

// Main function for all tests in this package

func TestMain(m *testing.M) {
	flag.Parse()

	for _, dbdir := range DBDIRS {
		if res, _ := fileutil.PathExists(dbdir); res {
			if err := os.RemoveAll(dbdir); err != nil {
				fmt.Print("Could not remove test directory:", err.Error())
			}
		}
	}

	// Run the tests

	res := m.Run()

	// Teardown

	for _, dbdir := range DBDIRS {
		if res, _ := fileutil.PathExists(dbdir); res {
			if err := os.RemoveAll(dbdir); err != nil {
				fmt.Print("Could not remove test directory:", err.Error())
			}
		}
	}

	os.Exit(res)
}

/*
newGraphManagerNoRules returns a new GraphManager instance without loading rules.
*/
func newGraphManagerNoRules(gs graphstorage.Storage) *Manager {
	return createGraphManager(gs)
}

func newTestNode(key string, kind string, attrs ...interface{}) data.Node {
	node := data.NewGraphNode()
	node.SetAttr(data.NodeKey, key)
	node.SetAttr(data.NodeKind, kind)

	for i := 0; i < len(attrs); i += 2 {
		node.SetAttr(fmt.Sprint(attrs[i]), attrs[i+1])
	}

	return node
}

func TestNodeOperations(t *testing.T) {
	mgs := graphstorage.NewMemoryGraphStorage("mystorage")
	gm := NewGraphManager(mgs)
	defer gm.Close()

	if gm.Name() != "Graph mystorage" {
		t.Error("Unexpected result:", gm.Name())
		return
	}

	if err := gm.StoreNode(newTestNode("", "Reader")); !util.IsGraphError(err, util.ErrInvalidData) {
		t.Error("Unexpected result:", err)
		return
	}

	if err := gm.StoreNode(newTestNode("1", "Read er")); !util.IsGraphError(err, util.ErrInvalidData) {
		t.Error("Unexpected result:", err)
		return
	}

	if err := gm.StoreNode(newTestNode("1\x00", "Reader")); !util.IsGraphError(err, util.ErrInvalidData) {
		t.Error("Unexpected result:", err)
		return
	}

	if err := gm.StoreNode(newTestNode("1", "Reader", "age", 2, "name", "Anna")); err != nil {
		t.Error(err)
		return
	}

	if err := gm.StoreNode(newTestNode("2", "Reader", "age", 10)); err != nil {
		t.Error(err)
		return
	}

	n, err := gm.FetchNode("1", "Reader")
	if err != nil || n.Attr("age") != 2 || n.Name() != "Anna" {
		t.Error("Unexpected result:", n, err)
		return
	}

	// Update only changes the given attributes

	if err := gm.UpdateNode(newTestNode("1", "Reader", "age", 3)); err != nil {
		t.Error(err)
		return
	}

	if n, _ := gm.FetchNode("1", "Reader"); n.Attr("age") != 3 || n.Name() != "Anna" {
		t.Error("Unexpected result:", n)
		return
	}

	// Store replaces the node

	if err := gm.StoreNode(newTestNode("1", "Reader", "age", 4)); err != nil {
		t.Error(err)
		return
	}

	if n, _ := gm.FetchNode("1", "Reader"); n.Attr("age") != 4 || n.Name() != "" {
		t.Error("Unexpected result:", n)
		return
	}

	if res := gm.NodeCount("Reader"); res != 2 {
		t.Error("Unexpected result:", res)
		return
	}

	if res := fmt.Sprint(gm.NodeKinds()); res != "[Reader]" {
		t.Error("Unexpected result:", res)
		return
	}

	if res := fmt.Sprint(gm.NodeAttrs("Reader")); res != "[age key kind name]" {
		t.Error("Unexpected result:", res)
		return
	}

	it, err := gm.NodeKeyIterator("Reader")
	if err != nil {
		t.Error(err)
		return
	}

	var keys []string
	for it.HasNext() {
		keys = append(keys, it.Next())
	}

	if fmt.Sprint(keys) != "[1 2]" || it.Next() != "" || it.Error() != nil {
		t.Error("Unexpected result:", keys)
		return
	}

	if it, err := gm.NodeKeyIterator("Writer"); it != nil || err != nil {
		t.Error("Unexpected result:", it, err)
		return
	}

	old, err := gm.RemoveNode("1", "Reader")
	if err != nil || old == nil || old.Attr("age") != 4 {
		t.Error("Unexpected result:", old, err)
		return
	}

	if old, err := gm.RemoveNode("1", "Reader"); err != nil || old != nil {
		t.Error("Unexpected result:", old, err)
		return
	}

	if n, err := gm.FetchNode("1", "Reader"); n != nil || err != nil {
		t.Error("Unexpected result:", n, err)
		return
	}

	if res := gm.NodeCount("Reader"); res != 1 {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestDiskStorage(t *testing.T) {
	dgs, err := graphstorage.NewDiskGraphStorage(GraphManagerTestDBDir1, false)
	if err != nil {
		t.Error(err)
		return
	}

	gm := NewGraphManager(dgs)

	if err := gm.StoreNode(newTestNode("1", "Item", "price", 10)); err != nil {
		t.Error(err)
		return
	}

	if err := gm.Close(); err != nil {
		t.Error(err)
		return
	}

	dgs, err = graphstorage.NewDiskGraphStorage(GraphManagerTestDBDir1, false)
	if err != nil {
		t.Error(err)
		return
	}

	gm = NewGraphManager(dgs)
	defer gm.Close()

	if n, err := gm.FetchNode("1", "Item"); err != nil || n.Attr("price") != 10 {
		t.Error("Unexpected result:", n, err)
		return
	}

	if res := gm.NodeCount("Item"); res != 1 {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestReadOnlyStorage(t *testing.T) {
	dgs, err := graphstorage.NewDiskGraphStorage(t.TempDir(), false)
	if err != nil {
		t.Error(err)
		return
	}

	gm := NewGraphManager(dgs)
	gm.StoreNode(newTestNode("1", "Item"))
	gm.Close()

	// Opening the same directory again read-only

	rgs, err := graphstorage.NewDiskGraphStorage(dgs.Name(), true)
	if err != nil {
		t.Error(err)
		return
	}

	gm = NewGraphManager(rgs)
	defer gm.Close()

	if n, _ := gm.FetchNode("1", "Item"); n == nil {
		t.Error("Node should be readable")
		return
	}

	if err := gm.StoreNode(newTestNode("2", "Item")); !util.IsGraphError(err, util.ErrReadOnly) {
		t.Error("Unexpected result:", err)
		return
	}
}
