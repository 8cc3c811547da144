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
	"github.com/krotik/rulegraph/graph/data"
	"github.com/krotik/rulegraph/graph/graphstorage"
)

/*
NodeKeyIterator iterates node keys of a certain kind.
*/
func (gm *Manager) NodeKeyIterator(kind string) (*NodeKeyIterator, error) {
	var keys []string

	prefix := nodeKindPrefix(kind)

	err := gm.view(func(txn graphstorage.Txn) error {
		kvs, err := txn.Scan(prefix)

		for _, kv := range kvs {
			keys = append(keys, string(kv.Key[len(prefix):]))
		}

		return err
	})

	if err != nil || keys == nil {
		return nil, err
	}

	return &NodeKeyIterator{keys, 0, nil}, nil
}

/*
FetchNode fetches a single node from the graph.
*/
func (gm *Manager) FetchNode(key string, kind string) (data.Node, error) {
	var node data.Node

	err := gm.view(func(txn graphstorage.Txn) error {
		var err error
		node, err = fetchNode(txn, key, kind)
		return err
	})

	return node, err
}

/*
fetchNode reads a node inside a given storage transaction.
*/
func fetchNode(txn graphstorage.Txn, key string, kind string) (data.Node, error) {
	nodeData, err := readNodeData(txn, nodeStorageKey(key, kind))
	if err != nil || nodeData == nil {
		return nil, err
	}

	return data.NewGraphNodeFromMap(nodeData), nil
}

/*
StoreNode stores a single node in the graph. This function will
overwrites any existing node.
*/
func (gm *Manager) StoreNode(node data.Node) error {
	trans := NewGraphTrans(gm)

	if err := trans.StoreNode(node); err != nil {
		return err
	}

	return trans.Commit()
}

/*
UpdateNode updates a single node in the graph. This function will
only update the given values of the node.
*/
func (gm *Manager) UpdateNode(node data.Node) error {
	trans := NewGraphTrans(gm)

	if err := trans.UpdateNode(node); err != nil {
		return err
	}

	return trans.Commit()
}

/*
RemoveNode removes a single node from the graph. Returns the removed node
or nil if the node did not exist.
*/
func (gm *Manager) RemoveNode(key string, kind string) (data.Node, error) {
	var node data.Node

	err := gm.RunInTrans(func(gm *Manager, trans Trans) error {
		var err error

		if node, err = gm.FetchNode(key, kind); err == nil && node != nil {
			err = trans.RemoveNode(key, kind)
		}

		return err
	})

	if err != nil {
		return nil, err
	}

	return node, nil
}

/*
storeNode writes a node to the transaction in flight and fires the relevant
events. If onlyUpdate is set the node is merged with an existing node.
*/
func (ctx *commitContext) storeNode(node data.Node, onlyUpdate bool) error {

	if err := ctx.checkOpen(); err != nil {
		return err
	}

	oldnode, err := fetchNode(ctx.txn, node.Key(), node.Kind())
	if err != nil {
		return err
	}

	if onlyUpdate && oldnode != nil {
		node = data.NodeMerge(oldnode, node)
	}

	// Fire pre event

	if oldnode == nil {
		err = ctx.fireEvent(EventNodeStore, node)
	} else {
		err = ctx.fireEvent(EventNodeUpdate, node, oldnode)
	}

	if err == ErrEventHandled {
		return nil
	} else if err != nil {
		return err
	}

	val, err := encodeValue(node.Data())
	if err != nil {
		return err
	}

	if err := ctx.txn.Set(nodeStorageKey(node.Key(), node.Kind()), val); err != nil {
		return err
	}

	if oldnode == nil {
		if err := addMainDBCount(ctx.txn, MainDBNodeCount+node.Kind(), 1); err != nil {
			return err
		}

		err = ctx.fireEvent(EventNodeCreated, node)

	} else {

		err = ctx.fireEvent(EventNodeUpdated, node, oldnode)
	}

	if err == ErrEventHandled {
		err = nil
	}

	return err
}

/*
removeNode removes a node from the transaction in flight and fires the
relevant events. Removing a non-existing node does nothing.
*/
func (ctx *commitContext) removeNode(key string, kind string) error {

	if err := ctx.checkOpen(); err != nil {
		return err
	}

	oldnode, err := fetchNode(ctx.txn, key, kind)
	if err != nil || oldnode == nil {
		return err
	}

	// Fire pre event - the node and its edges are still available

	if err = ctx.fireEvent(EventNodeDelete, oldnode); err == ErrEventHandled {
		return nil
	} else if err != nil {
		return err
	}

	// A rule might have removed the node already

	if stillThere, err := fetchNode(ctx.txn, key, kind); err != nil || stillThere == nil {
		return err
	}

	if err := ctx.txn.Delete(nodeStorageKey(key, kind)); err != nil {
		return err
	}

	if err := addMainDBCount(ctx.txn, MainDBNodeCount+kind, -1); err != nil {
		return err
	}

	if err = ctx.fireEvent(EventNodeDeleted, oldnode); err == ErrEventHandled {
		err = nil
	}

	return err
}
