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
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/krotik/common/errorutil"
	"github.com/krotik/rulegraph/graph/graphstorage"
	"github.com/krotik/rulegraph/graph/util"
)

/*
ErrEventHandled is a special error which an event handler can return to
signal that an event has been handled. For pre events this prevents the
operation.
*/
var ErrEventHandled = errors.New("Graph event already handled")

/*
Manager data structure
*/
type Manager struct {
	gs    graphstorage.Storage // Graph storage of this graph manager
	gr    *graphRulesManager   // Manager for graph rules
	mutex *sync.RWMutex        // Mutex to protect atomic graph operations
	ctx   *commitContext       // Transaction in flight (only set for rule handlers)
}

/*
NewGraphManager returns a new GraphManager instance.
*/
func NewGraphManager(gs graphstorage.Storage) *Manager {
	gm := createGraphManager(gs)

	gm.SetGraphRule(&SystemRuleDeleteNodeEdges{})
	gm.SetGraphRule(&SystemRuleUpdateNodeStats{})

	return gm
}

/*
createGraphManager creates a new GraphManager instance.
*/
func createGraphManager(gs graphstorage.Storage) *Manager {

	gm := &Manager{gs, &graphRulesManager{eventMap: make(map[int][]Rule)},
		&sync.RWMutex{}, nil}

	gm.gr.gm = gm

	// Check version

	if !gs.ReadOnly() {
		txn := gs.Begin(true)
		defer txn.Discard()

		val, err := txn.Get([]byte(MainDBVersion))
		errorutil.AssertOk(err)

		if v, _ := strconv.Atoi(string(val)); v > VERSION {

			panic(fmt.Sprintf("Cannot open graph storage of version: %v - "+
				"max supported version: %v", string(val), VERSION))

		} else if val == nil || v < VERSION {

			errorutil.AssertOk(txn.Set([]byte(MainDBVersion), []byte(strconv.Itoa(VERSION))))
			errorutil.AssertOk(txn.Commit())
		}
	}

	return gm
}

/*
Name returns the name of this graph manager.
*/
func (gm *Manager) Name() string {
	return fmt.Sprint("Graph ", gm.gs.Name())
}

/*
SetGraphRule sets a GraphRule.
*/
func (gm *Manager) SetGraphRule(rule Rule) {
	gm.gr.SetGraphRule(rule)
}

/*
GraphRules returns a list of all available graph rules.
*/
func (gm *Manager) GraphRules() []string {
	return gm.gr.GraphRules()
}

/*
InTrans returns if this manager is bound to a transaction in flight.
*/
func (gm *Manager) InTrans() bool {
	return gm.ctx != nil
}

/*
RunInTrans runs a given function inside a transaction. The function receives
a Manager which reads the state of the transaction and a Trans object which
applies changes immediately. If this manager is already bound to a transaction
in flight the function becomes part of it. The transaction is rolled back if
the function returns an error.
*/
func (gm *Manager) RunInTrans(f func(gm *Manager, trans Trans) error) error {
	return gm.runCommit(newTransID(), func(ctx *commitContext) error {
		return f(ctx.gm, ctx.trans)
	})
}

/*
Close closes the underlying graph storage.
*/
func (gm *Manager) Close() error {
	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	return gm.gs.Close()
}

/*
NodeKinds returns all possible node kinds.
*/
func (gm *Manager) NodeKinds() []string {
	return gm.mainStringList(MainDBNodeKinds)
}

/*
EdgeKinds returns all possible edge kinds.
*/
func (gm *Manager) EdgeKinds() []string {
	return gm.mainStringList(MainDBEdgeKinds)
}

/*
NodeAttrs returns all possible node attributes for a given node kind.
*/
func (gm *Manager) NodeAttrs(kind string) []string {
	return gm.mainStringList(MainDBNodeAttrs + kind)
}

/*
NodeEdges returns all possible node edge specs for a given node kind.
*/
func (gm *Manager) NodeEdges(kind string) []string {
	return gm.mainStringList(MainDBNodeEdges + kind)
}

/*
NodeCount returns the node count for a given node kind.
*/
func (gm *Manager) NodeCount(kind string) uint64 {
	return gm.mainCount(MainDBNodeCount + kind)
}

/*
EdgeCount returns the edge count for a given edge kind.
*/
func (gm *Manager) EdgeCount(kind string) uint64 {
	return gm.mainCount(MainDBEdgeCount + kind)
}

/*
mainStringList return a list in the MainDB.
*/
func (gm *Manager) mainStringList(name string) []string {
	var ret []string

	gm.view(func(txn graphstorage.Txn) error {
		items, err := getMainDBMap(txn, name)

		for item := range items {
			ret = append(ret, item)
		}

		return err
	})

	sort.StringSlice(ret).Sort()

	return ret
}

/*
mainCount returns a counter in the MainDB.
*/
func (gm *Manager) mainCount(name string) uint64 {
	var ret uint64

	gm.view(func(txn graphstorage.Txn) error {
		val, err := txn.Get([]byte(name))

		if len(val) == 8 {
			ret = binary.LittleEndian.Uint64(val)
		}

		return err
	})

	return ret
}

/*
view runs a read operation. A manager which is bound to a transaction
reads the state of that transaction.
*/
func (gm *Manager) view(f func(txn graphstorage.Txn) error) error {

	if gm.ctx != nil {
		if gm.ctx.closed {
			return &util.GraphError{Type: util.ErrAccessComponent,
				Detail: "Transaction " + gm.ctx.id + " is closed"}
		}
		return f(gm.ctx.txn)
	}

	// Take reader lock

	gm.mutex.RLock()
	defer gm.mutex.RUnlock()

	txn := gm.gs.Begin(false)
	defer txn.Discard()

	return f(txn)
}

/*
runCommit runs a given function inside a storage transaction. Events are
fired after the function has finished. Any error discards all changes.
*/
func (gm *Manager) runCommit(id string, f func(ctx *commitContext) error) error {

	if gm.ctx != nil {

		// Become part of the transaction in flight

		if gm.ctx.closed {
			return &util.GraphError{Type: util.ErrAccessComponent,
				Detail: "Transaction " + gm.ctx.id + " is closed"}
		}

		return f(gm.ctx)
	}

	if gm.gs.ReadOnly() {
		return &util.GraphError{Type: util.ErrReadOnly, Detail: gm.gs.Name()}
	}

	// Take writer lock

	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	ctx := newCommitContext(id, gm)

	err := f(ctx)

	if err == nil {
		err = ctx.fireEvent(EventTransCommitting)
	}

	if err == nil {
		err = ctx.txn.Commit()
	}

	if err != nil {
		ctx.txn.Discard()
	}

	ctx.closed = true

	// Notify rules about the outcome - errors at this point cannot change it

	ctx.fireEvent(EventTransClosed, err == nil)

	return err
}
