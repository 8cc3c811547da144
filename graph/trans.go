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
	"fmt"
	"sync"

	"github.com/krotik/rulegraph/graph/data"
	"github.com/krotik/rulegraph/graph/graphstorage"
	"github.com/krotik/rulegraph/graph/util"
)

/*
Trans is a transaction object which should be used to group node and edge operations.
*/
type Trans interface {

	/*
	   ID returns a unique transaction ID.
	*/
	ID() string

	/*
	   String returns a string representation of this transatction.
	*/
	String() string

	/*
	   Counts returns the transaction size in terms of objects. Returned values
	   are nodes to store, edges to store, nodes to remove and edges to remove.
	*/
	Counts() (int, int, int, int)

	/*
	   IsEmpty returns if this transaction is empty.
	*/
	IsEmpty() bool

	/*
	   Commit writes the transaction to the graph database. An automatic rollback is done if
	   any error occurs. Failed transactions cannot be committed again.
	*/
	Commit() error

	/*
	   StoreNode stores a single node in the graph. This function will
	   overwrites any existing node.
	*/
	StoreNode(node data.Node) error

	/*
	   UpdateNode updates a single node in the graph. This function will
	   only update the given values of the node.
	*/
	UpdateNode(node data.Node) error

	/*
	   RemoveNode removes a single node from the graph.
	*/
	RemoveNode(nkey string, nkind string) error

	/*
	   StoreEdge stores a single edge in the graph. This function will
	   overwrites any existing edge.
	*/
	StoreEdge(edge data.Edge) error

	/*
	   RemoveEdge removes a single edge from the graph.
	*/
	RemoveEdge(ekey string, ekind string) error
}

/*
NewGraphTrans creates a new graph transaction. This object is not thread safe
and should only be used for non-concurrent use cases; use NewConcurrentGraphTrans
for concurrent use cases. A transaction which is created with a manager
which is bound to a transaction in flight becomes part of it on commit.
*/
func NewGraphTrans(gm *Manager) Trans {
	return &baseTrans{newTransID(), gm, nil}
}

/*
NewConcurrentGraphTrans creates a new thread-safe graph transaction.
*/
func NewConcurrentGraphTrans(gm *Manager) Trans {
	return &concurrentTrans{NewGraphTrans(gm), &sync.RWMutex{}}
}

// Operation types
// ===============

const (
	opStoreNode = iota
	opUpdateNode
	opRemoveNode
	opStoreEdge
	opRemoveEdge
)

/*
transOp is a single buffered operation
*/
type transOp struct {
	op   int       // Operation type
	node data.Node // Node or edge to store
	key  string    // Key of item to remove
	kind string    // Kind of item to remove
}

/*
baseTrans is the main data structure for a graph transaction
*/
type baseTrans struct {
	id  string     // Unique transaction ID
	gm  *Manager   // Graph manager which created this transaction
	ops []*transOp // Ordered list of operations
}

/*
ID returns a unique transaction ID.
*/
func (gt *baseTrans) ID() string {
	return gt.id
}

/*
IsEmpty returns if this transaction is empty.
*/
func (gt *baseTrans) IsEmpty() bool {
	return len(gt.ops) == 0
}

/*
Counts returns the transaction size in terms of objects. Returned values
are nodes to store, edges to store, nodes to remove and edges to remove.
*/
func (gt *baseTrans) Counts() (int, int, int, int) {
	var sn, se, rn, re int

	for _, op := range gt.ops {
		switch op.op {
		case opStoreNode, opUpdateNode:
			sn++
		case opRemoveNode:
			rn++
		case opStoreEdge:
			se++
		case opRemoveEdge:
			re++
		}
	}

	return sn, se, rn, re
}

/*
String returns a string representation of this transatction.
*/
func (gt *baseTrans) String() string {
	sn, se, rn, re := gt.Counts()

	return fmt.Sprintf("Transaction %v - Nodes: I:%v R:%v - Edges: I:%v R:%v",
		gt.id, sn, rn, se, re)
}

/*
Commit writes the transaction to the graph database. An automatic rollback is done if
any error occurs. Failed transactions cannot be committed again.
*/
func (gt *baseTrans) Commit() error {

	// Return if there is nothing to do

	if gt.IsEmpty() {
		return nil
	}

	ops := gt.ops
	gt.ops = nil

	return gt.gm.runCommit(gt.id, func(ctx *commitContext) error {

		for _, op := range ops {
			var err error

			switch op.op {
			case opStoreNode:
				err = ctx.storeNode(op.node, false)
			case opUpdateNode:
				err = ctx.storeNode(op.node, true)
			case opRemoveNode:
				err = ctx.removeNode(op.key, op.kind)
			case opStoreEdge:
				err = ctx.storeEdge(data.NewGraphEdgeFromNode(op.node))
			case opRemoveEdge:
				err = ctx.removeEdge(op.key, op.kind)
			}

			if err != nil {
				return err
			}
		}

		return nil
	})
}

/*
StoreNode stores a single node in the graph. This function will
overwrites any existing node.
*/
func (gt *baseTrans) StoreNode(node data.Node) error {
	if err := checkNode(node); err != nil {
		return err
	}

	gt.ops = append(gt.ops, &transOp{op: opStoreNode, node: node})

	return nil
}

/*
UpdateNode updates a single node in the graph. This function will
only update the given values of the node.
*/
func (gt *baseTrans) UpdateNode(node data.Node) error {
	if err := checkNode(node); err != nil {
		return err
	}

	gt.ops = append(gt.ops, &transOp{op: opUpdateNode, node: node})

	return nil
}

/*
RemoveNode removes a single node from the graph.
*/
func (gt *baseTrans) RemoveNode(nkey string, nkind string) error {
	gt.ops = append(gt.ops, &transOp{op: opRemoveNode, key: nkey, kind: nkind})

	return nil
}

/*
StoreEdge stores a single edge in the graph. This function will
overwrites any existing edge.
*/
func (gt *baseTrans) StoreEdge(edge data.Edge) error {
	if err := checkEdge(edge); err != nil {
		return err
	}

	gt.ops = append(gt.ops, &transOp{op: opStoreEdge, node: edge})

	return nil
}

/*
RemoveEdge removes a single edge from the graph.
*/
func (gt *baseTrans) RemoveEdge(ekey string, ekind string) error {
	gt.ops = append(gt.ops, &transOp{op: opRemoveEdge, key: ekey, kind: ekind})

	return nil
}

// Concurrent transactions
// =======================

/*
concurrentTrans is a thread-safe transaction object.
*/
type concurrentTrans struct {
	Trans
	transLock *sync.RWMutex
}

/*
ID returns a unique transaction ID.
*/
func (gt *concurrentTrans) ID() string {
	gt.transLock.RLock()
	defer gt.transLock.RUnlock()

	return gt.Trans.ID()
}

/*
String returns a string representation of this transatction.
*/
func (gt *concurrentTrans) String() string {
	gt.transLock.RLock()
	defer gt.transLock.RUnlock()

	return gt.Trans.String()
}

/*
Counts returns the transaction size in terms of objects. Returned values
are nodes to store, edges to store, nodes to remove and edges to remove.
*/
func (gt *concurrentTrans) Counts() (int, int, int, int) {
	gt.transLock.RLock()
	defer gt.transLock.RUnlock()

	return gt.Trans.Counts()
}

/*
IsEmpty returns if this transaction is empty.
*/
func (gt *concurrentTrans) IsEmpty() bool {
	gt.transLock.RLock()
	defer gt.transLock.RUnlock()

	return gt.Trans.IsEmpty()
}

/*
Commit writes the transaction to the graph database.
*/
func (gt *concurrentTrans) Commit() error {
	gt.transLock.Lock()
	defer gt.transLock.Unlock()

	return gt.Trans.Commit()
}

/*
StoreNode stores a single node in the graph.
*/
func (gt *concurrentTrans) StoreNode(node data.Node) error {
	gt.transLock.Lock()
	defer gt.transLock.Unlock()

	return gt.Trans.StoreNode(node)
}

/*
UpdateNode updates a single node in the graph.
*/
func (gt *concurrentTrans) UpdateNode(node data.Node) error {
	gt.transLock.Lock()
	defer gt.transLock.Unlock()

	return gt.Trans.UpdateNode(node)
}

/*
RemoveNode removes a single node from the graph.
*/
func (gt *concurrentTrans) RemoveNode(nkey string, nkind string) error {
	gt.transLock.Lock()
	defer gt.transLock.Unlock()

	return gt.Trans.RemoveNode(nkey, nkind)
}

/*
StoreEdge stores a single edge in the graph.
*/
func (gt *concurrentTrans) StoreEdge(edge data.Edge) error {
	gt.transLock.Lock()
	defer gt.transLock.Unlock()

	return gt.Trans.StoreEdge(edge)
}

/*
RemoveEdge removes a single edge from the graph.
*/
func (gt *concurrentTrans) RemoveEdge(ekey string, ekind string) error {
	gt.transLock.Lock()
	defer gt.transLock.Unlock()

	return gt.Trans.RemoveEdge(ekey, ekind)
}

// Transactions in flight
// ======================

/*
commitContext holds the state of a transaction which is being committed.
*/
type commitContext struct {
	id     string           // ID of the committing transaction
	txn    graphstorage.Txn // Storage transaction
	gm     *Manager         // Manager bound to this context
	trans  Trans            // Trans object which applies changes immediately
	closed bool             // Flag if the storage transaction has been finished
}

/*
newCommitContext creates a new commit context with a new storage transaction.
*/
func newCommitContext(id string, root *Manager) *commitContext {
	ctx := &commitContext{id: id, txn: root.gs.Begin(true)}

	ctx.gm = &Manager{root.gs, root.gr, root.mutex, ctx}
	ctx.trans = &boundTrans{ctx}

	return ctx
}

/*
fireEvent fires a graph event. ErrEventHandled is returned to the caller.
*/
func (ctx *commitContext) fireEvent(event int, ed ...interface{}) error {
	return ctx.gm.gr.graphEvent(ctx.gm, ctx.trans, event, ed...)
}

/*
checkOpen returns an error if the storage transaction has been finished.
*/
func (ctx *commitContext) checkOpen() error {
	if ctx.closed {
		return &util.GraphError{Type: util.ErrAccessComponent,
			Detail: "Transaction " + ctx.id + " is closed"}
	}
	return nil
}

/*
boundTrans is a transaction which applies all changes immediately to a
transaction in flight.
*/
type boundTrans struct {
	ctx *commitContext
}

/*
ID returns the ID of the transaction in flight.
*/
func (bt *boundTrans) ID() string {
	return bt.ctx.id
}

/*
String returns a string representation of this transatction.
*/
func (bt *boundTrans) String() string {
	return fmt.Sprintf("Transaction %v (in flight)", bt.ctx.id)
}

/*
Counts always returns zeros since all changes are applied immediately.
*/
func (bt *boundTrans) Counts() (int, int, int, int) {
	return 0, 0, 0, 0
}

/*
IsEmpty always returns true since all changes are applied immediately.
*/
func (bt *boundTrans) IsEmpty() bool {
	return true
}

/*
Commit does nothing. All changes are written with the transaction in flight.
*/
func (bt *boundTrans) Commit() error {
	return nil
}

/*
StoreNode stores a single node in the graph.
*/
func (bt *boundTrans) StoreNode(node data.Node) error {
	if err := checkNode(node); err != nil {
		return err
	}
	return bt.ctx.storeNode(node, false)
}

/*
UpdateNode updates a single node in the graph.
*/
func (bt *boundTrans) UpdateNode(node data.Node) error {
	if err := checkNode(node); err != nil {
		return err
	}
	return bt.ctx.storeNode(node, true)
}

/*
RemoveNode removes a single node from the graph.
*/
func (bt *boundTrans) RemoveNode(nkey string, nkind string) error {
	return bt.ctx.removeNode(nkey, nkind)
}

/*
StoreEdge stores a single edge in the graph.
*/
func (bt *boundTrans) StoreEdge(edge data.Edge) error {
	if err := checkEdge(edge); err != nil {
		return err
	}
	return bt.ctx.storeEdge(edge)
}

/*
RemoveEdge removes a single edge from the graph.
*/
func (bt *boundTrans) RemoveEdge(ekey string, ekind string) error {
	return bt.ctx.removeEdge(ekey, ekind)
}
