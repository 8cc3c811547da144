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

	"github.com/krotik/rulegraph/graph/data"
)

/*
transStub is a transaction which only records node updates.
*/
type transStub struct {
	rt *recordingTrans
}

func (ts *transStub) ID() string                   { return "stub" }
func (ts *transStub) String() string               { return "stub" }
func (ts *transStub) Counts() (int, int, int, int) { return 0, 0, 0, 0 }
func (ts *transStub) IsEmpty() bool                { return true }
func (ts *transStub) Commit() error                { return nil }
func (ts *transStub) StoreNode(node data.Node) error {
	return nil
}
func (ts *transStub) UpdateNode(node data.Node) error {
	for k, v := range node.Data() {
		if k != data.NodeKey && k != data.NodeKind {
			ts.rt.updates = append(ts.rt.updates, fmt.Sprintf("%v=%v", k, v))
		}
	}
	return nil
}
func (ts *transStub) RemoveNode(key string, kind string) error { return nil }
func (ts *transStub) StoreEdge(edge data.Edge) error           { return nil }
func (ts *transStub) RemoveEdge(key string, kind string) error { return nil }
