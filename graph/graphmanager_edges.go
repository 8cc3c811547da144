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
	"strings"

	"github.com/krotik/rulegraph/graph/data"
	"github.com/krotik/rulegraph/graph/graphstorage"
	"github.com/krotik/rulegraph/graph/util"
)

/*
edgeTargetInfo is an internal structure which stores edge information
*/
type edgeTargetInfo struct {
	CascadeToTarget   bool   // Flag if delete operations should be cascaded to the target
	CascadeFromTarget bool   // Flag if delete operations should be cascaded from the target
	TargetNodeKey     string // Key of the target node
	TargetNodeKind    string // Kind of the target node
	Outgoing          bool   // Flag if the edge points from the source to the target
}

/*
FetchNodeEdgeSpecs returns all possible edge specs for a certain node.
*/
func (gm *Manager) FetchNodeEdgeSpecs(key string, kind string) ([]string, error) {
	var ret []string

	err := gm.view(func(txn graphstorage.Txn) error {
		prefix := nodeEdgePrefix(key, kind, "")

		kvs, err := txn.Scan(prefix)
		if err != nil {
			return err
		}

		seen := make(map[string]bool)

		for _, kv := range kvs {
			spec, _ := splitNodeEdgeKey(prefix, kv.Key)
			if !seen[spec] {
				seen[spec] = true
				ret = append(ret, spec)
			}
		}

		return nil
	})

	return ret, err
}

/*
TraverseMulti traverses from a given node to other nodes following a given
partial edge spec. Since the edge spec can be partial it is possible to
traverse multiple edge kinds. A spec with the value ":::" would follow
all relationships. The last parameter allData specifies if all data
should be retrieved for the connected nodes and edges. If set to false only
the minimal set of attributes will be populated. Returned edges have the
traversed node always as end1.
*/
func (gm *Manager) TraverseMulti(key string, kind string,
	spec string, allData bool) ([]data.Node, []data.Edge, error) {

	sspec := strings.Split(spec, ":")
	if len(sspec) != 4 {
		return nil, nil, &util.GraphError{Type: util.ErrInvalidData, Detail: "Invalid spec: " + spec}
	} else if IsFullSpec(spec) {
		return gm.Traverse(key, kind, spec, allData)
	}

	var nodes []data.Node
	var edges []data.Edge

	err := gm.view(func(txn graphstorage.Txn) error {
		var err error
		nodes, edges, err = traverse(txn, key, kind, "", sspec, DirectionAny, allData, true)
		return err
	})

	return nodes, edges, err
}

/*
Traverse traverses from a given node to other nodes following a given edge spec.
The last parameter allData specifies if all data should be retrieved for
the connected nodes and edges. If set to false only the minimal set of
attributes will be populated. Returned edges have the traversed node always
as end1.
*/
func (gm *Manager) Traverse(key string, kind string,
	spec string, allData bool) ([]data.Node, []data.Edge, error) {

	sspec := strings.Split(spec, ":")
	if len(sspec) != 4 {
		return nil, nil, &util.GraphError{Type: util.ErrInvalidData, Detail: "Invalid spec: " + spec}
	} else if !IsFullSpec(spec) {
		return nil, nil, &util.GraphError{Type: util.ErrInvalidData, Detail: "Invalid spec: " + spec +
			" - spec needs to be fully specified for direct traversal"}
	}

	var nodes []data.Node
	var edges []data.Edge

	err := gm.view(func(txn graphstorage.Txn) error {
		var err error
		nodes, edges, err = traverse(txn, key, kind, spec, sspec, DirectionAny, allData, true)
		return err
	})

	return nodes, edges, err
}

/*
Relationships returns all edges of a given kind which are connected to a
given node in a given direction (DirectionAny, DirectionOutgoing or
DirectionIncoming) together with the nodes on the other end. An empty edge
kind matches all edges. Nodes and edges are fully populated and edges keep
their stored orientation.
*/
func (gm *Manager) Relationships(key string, kind string, edgeKind string,
	direction int) ([]data.Node, []data.Edge, error) {

	var nodes []data.Node
	var edges []data.Edge

	err := gm.view(func(txn graphstorage.Txn) error {
		var err error
		nodes, edges, err = traverse(txn, key, kind, "",
			[]string{"", edgeKind, "", ""}, direction, true, false)
		return err
	})

	return nodes, edges, err
}

/*
HasRelationship checks if a given node has at least one edge of a given kind
in a given direction.
*/
func (gm *Manager) HasRelationship(key string, kind string, edgeKind string,
	direction int) (bool, error) {

	var ret bool

	err := gm.view(func(txn graphstorage.Txn) error {
		_, edges, err := traverse(txn, key, kind, "",
			[]string{"", edgeKind, "", ""}, direction, false, false)
		ret = len(edges) > 0
		return err
	})

	return ret, err
}

/*
traverse collects the edges and connected nodes of a node.
*/
func traverse(txn graphstorage.Txn, key string, kind string, fullSpec string,
	sspec []string, direction int, allData bool, normalize bool) ([]data.Node, []data.Edge, error) {

	var nodes []data.Node
	var edges []data.Edge

	prefix := nodeEdgePrefix(key, kind, "")

	kvs, err := txn.Scan(nodeEdgePrefix(key, kind, fullSpec))
	if err != nil {
		return nil, nil, err
	}

	for _, kv := range kvs {
		var info edgeTargetInfo

		spec, edgeKey := splitNodeEdgeKey(prefix, kv.Key)

		if !matchSpec(sspec, spec) {
			continue
		}

		if err := decodeValue(kv.Value, &info); err != nil {
			return nil, nil, err
		}

		if (direction == DirectionOutgoing && !info.Outgoing) ||
			(direction == DirectionIncoming && info.Outgoing) {
			continue
		}

		mspec := strings.Split(spec, ":")

		var edge data.Edge
		var node data.Node

		if !allData {

			// Populate nodes and edges with the minimal set of attributes
			// no further lookups required

			edge = data.NewGraphEdge()

			edge.SetAttr(data.NodeKey, edgeKey)
			edge.SetAttr(data.NodeKind, mspec[1])

			edge.SetAttr(data.EdgeEnd1Key, key)
			edge.SetAttr(data.EdgeEnd1Kind, kind)
			edge.SetAttr(data.EdgeEnd1Role, mspec[0])
			edge.SetAttr(data.EdgeEnd1Cascading, info.CascadeToTarget)

			edge.SetAttr(data.EdgeEnd2Key, info.TargetNodeKey)
			edge.SetAttr(data.EdgeEnd2Kind, info.TargetNodeKind)
			edge.SetAttr(data.EdgeEnd2Role, mspec[2])
			edge.SetAttr(data.EdgeEnd2Cascading, info.CascadeFromTarget)

			if !normalize && !info.Outgoing {
				swapEdgeEnds(edge)
			}

			node = data.NewGraphNode()

			node.SetAttr(data.NodeKey, info.TargetNodeKey)
			node.SetAttr(data.NodeKind, info.TargetNodeKind)

		} else {

			edgeData, err := readNodeData(txn, edgeStorageKey(edgeKey, mspec[1]))
			if err != nil {
				return nil, nil, err
			} else if edgeData == nil {
				return nil, nil, &util.GraphError{Type: util.ErrReading,
					Detail: fmt.Sprintf("Dangling edge link %v (%v) from %v (%v)", edgeKey, mspec[1], key, kind)}
			}

			edge = data.NewGraphEdgeFromNode(data.NewGraphNodeFromMap(edgeData))

			// Exchange ends if necessary

			if normalize && !info.Outgoing {
				swapEdgeEnds(edge)
			}

			if node, err = fetchNode(txn, info.TargetNodeKey, info.TargetNodeKind); err != nil {
				return nil, nil, err
			} else if node == nil {

				// The node on the other end is currently being removed

				node = data.NewGraphNode()
				node.SetAttr(data.NodeKey, info.TargetNodeKey)
				node.SetAttr(data.NodeKind, info.TargetNodeKind)
			}
		}

		edges = append(edges, edge)
		nodes = append(nodes, node)
	}

	return nodes, edges, nil
}

/*
swapEdgeEnds exchanges the ends of an edge.
*/
func swapEdgeEnds(edge data.Edge) {
	swap := func(attr1 string, attr2 string) {
		tmp := edge.Attr(attr1)
		edge.SetAttr(attr1, edge.Attr(attr2))
		edge.SetAttr(attr2, tmp)
	}

	swap(data.EdgeEnd1Key, data.EdgeEnd2Key)
	swap(data.EdgeEnd1Kind, data.EdgeEnd2Kind)
	swap(data.EdgeEnd1Role, data.EdgeEnd2Role)
	swap(data.EdgeEnd1Cascading, data.EdgeEnd2Cascading)
}

/*
FetchEdge fetches a single edge from the graph.
*/
func (gm *Manager) FetchEdge(key string, kind string) (data.Edge, error) {
	var edge data.Edge

	err := gm.view(func(txn graphstorage.Txn) error {
		var err error
		edge, err = fetchEdge(txn, key, kind)
		return err
	})

	return edge, err
}

/*
fetchEdge reads an edge inside a given storage transaction.
*/
func fetchEdge(txn graphstorage.Txn, key string, kind string) (data.Edge, error) {
	edgeData, err := readNodeData(txn, edgeStorageKey(key, kind))
	if err != nil || edgeData == nil {
		return nil, err
	}

	return data.NewGraphEdgeFromNode(data.NewGraphNodeFromMap(edgeData)), nil
}

/*
StoreEdge stores a single edge in the graph. This function will
overwrites any existing edge.
*/
func (gm *Manager) StoreEdge(edge data.Edge) error {
	trans := NewGraphTrans(gm)

	if err := trans.StoreEdge(edge); err != nil {
		return err
	}

	return trans.Commit()
}

/*
RemoveEdge removes a single edge from the graph. Returns the removed edge
or nil if the edge did not exist.
*/
func (gm *Manager) RemoveEdge(key string, kind string) (data.Edge, error) {
	var edge data.Edge

	err := gm.RunInTrans(func(gm *Manager, trans Trans) error {
		var err error

		if edge, err = gm.FetchEdge(key, kind); err == nil && edge != nil {
			err = trans.RemoveEdge(key, kind)
		}

		return err
	})

	if err != nil {
		return nil, err
	}

	return edge, nil
}

/*
edgeLinks returns the storage keys and values of the links between an edge
and its end nodes.
*/
func edgeLinks(edge data.Edge) ([][]byte, []*edgeTargetInfo) {
	spec1 := fmt.Sprintf("%s:%s:%s:%s", edge.End1Role(), edge.Kind(), edge.End2Role(), edge.End2Kind())
	spec2 := fmt.Sprintf("%s:%s:%s:%s", edge.End2Role(), edge.Kind(), edge.End1Role(), edge.End1Kind())

	return [][]byte{
			nodeEdgeKey(edge.End1Key(), edge.End1Kind(), spec1, edge.Key()),
			nodeEdgeKey(edge.End2Key(), edge.End2Kind(), spec2, edge.Key()),
		}, []*edgeTargetInfo{
			{edge.End1IsCascading(), edge.End2IsCascading(), edge.End2Key(), edge.End2Kind(), true},
			{edge.End2IsCascading(), edge.End1IsCascading(), edge.End1Key(), edge.End1Kind(), false},
		}
}

/*
storeEdge writes an edge to the transaction in flight and fires the relevant
events. Both end nodes must exist.
*/
func (ctx *commitContext) storeEdge(edge data.Edge) error {

	if err := ctx.checkOpen(); err != nil {
		return err
	}

	// Make sure the endpoints exist

	for _, end := range [][2]string{{edge.End1Key(), edge.End1Kind()}, {edge.End2Key(), edge.End2Kind()}} {
		if node, err := fetchNode(ctx.txn, end[0], end[1]); err != nil {
			return err
		} else if node == nil {
			return &util.GraphError{
				Type:   util.ErrInvalidData,
				Detail: fmt.Sprintf("Can't find edge endpoint: %s (%s)", end[0], end[1]),
			}
		}
	}

	oldedge, err := fetchEdge(ctx.txn, edge.Key(), edge.Kind())
	if err != nil {
		return err
	}

	if err = ctx.fireEvent(EventEdgeStore, edge); err == ErrEventHandled {
		return nil
	} else if err != nil {
		return err
	}

	// Remove old links since the ends might have changed

	if oldedge != nil {
		keys, _ := edgeLinks(oldedge)

		for _, k := range keys {
			if err := ctx.txn.Delete(k); err != nil {
				return err
			}
		}
	}

	val, err := encodeValue(edge.Data())
	if err != nil {
		return err
	}

	if err := ctx.txn.Set(edgeStorageKey(edge.Key(), edge.Kind()), val); err != nil {
		return err
	}

	keys, infos := edgeLinks(edge)

	for i, k := range keys {
		val, err := encodeValue(infos[i])
		if err == nil {
			err = ctx.txn.Set(k, val)
		}
		if err != nil {
			return err
		}
	}

	if oldedge == nil {
		if err := addMainDBCount(ctx.txn, MainDBEdgeCount+edge.Kind(), 1); err != nil {
			return err
		}

		err = ctx.fireEvent(EventEdgeCreated, edge)

	} else {

		err = ctx.fireEvent(EventEdgeUpdated, edge, oldedge)
	}

	if err == ErrEventHandled {
		err = nil
	}

	return err
}

/*
removeEdge removes an edge from the transaction in flight and fires the
relevant events. Removing a non-existing edge does nothing.
*/
func (ctx *commitContext) removeEdge(key string, kind string) error {

	if err := ctx.checkOpen(); err != nil {
		return err
	}

	oldedge, err := fetchEdge(ctx.txn, key, kind)
	if err != nil || oldedge == nil {
		return err
	}

	if err = ctx.fireEvent(EventEdgeDelete, oldedge); err == ErrEventHandled {
		return nil
	} else if err != nil {
		return err
	}

	if err := ctx.txn.Delete(edgeStorageKey(key, kind)); err != nil {
		return err
	}

	keys, _ := edgeLinks(oldedge)

	for _, k := range keys {
		if err := ctx.txn.Delete(k); err != nil {
			return err
		}
	}

	if err := addMainDBCount(ctx.txn, MainDBEdgeCount+kind, -1); err != nil {
		return err
	}

	if err = ctx.fireEvent(EventEdgeDeleted, oldedge); err == ErrEventHandled {
		err = nil
	}

	return err
}
