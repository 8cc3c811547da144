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

	"github.com/krotik/rulegraph/graph"
	"github.com/krotik/rulegraph/graph/data"
)

/*
Object is a high-level view of a node. Relationships are read through the
graph manager the object was created with. Inside a rule evaluation this is
the manager of the transaction in flight.
*/
type Object struct {
	gm   *graph.Manager
	node data.Node
}

/*
NewObject wraps a given node.
*/
func NewObject(gm *graph.Manager, node data.Node) *Object {
	return &Object{gm, node}
}

/*
Node returns the raw node.
*/
func (o *Object) Node() data.Node {
	return o.node
}

/*
Key returns the key of the node.
*/
func (o *Object) Key() string {
	return o.node.Key()
}

/*
Kind returns the kind of the node.
*/
func (o *Object) Kind() string {
	return o.node.Kind()
}

/*
Class returns the runtime class of the node.
*/
func (o *Object) Class() string {
	return o.node.Class()
}

/*
Has checks if the node has a given attribute.
*/
func (o *Object) Has(attr string) bool {
	_, ok := o.node.Data()[attr]
	return ok
}

/*
Attr returns an attribute of the node.
*/
func (o *Object) Attr(attr string) interface{} {
	return o.node.Attr(attr)
}

/*
Int returns a numeric attribute as an integer. Missing attributes are 0.
*/
func (o *Object) Int(attr string) int64 {
	num, isFloat, ok := toNumber(o.node.Attr(attr))
	if !ok {
		return 0
	} else if isFloat {
		return int64(num.(float64))
	}
	return num.(int64)
}

/*
Float returns a numeric attribute as a float. Missing attributes are 0.
*/
func (o *Object) Float(attr string) float64 {
	num, _, ok := toNumber(o.node.Attr(attr))
	if !ok {
		return 0
	}
	return toFloat(num)
}

/*
Str returns an attribute as a string. Missing attributes are an empty string.
*/
func (o *Object) Str(attr string) string {
	if val := o.node.Attr(attr); val != nil {
		return fmt.Sprint(val)
	}
	return ""
}

/*
Incoming returns all objects which are connected through incoming edges of
a given kind.
*/
func (o *Object) Incoming(edgeKind string) ([]*Object, error) {
	return o.related(edgeKind, graph.DirectionIncoming)
}

/*
Outgoing returns all objects which are connected through outgoing edges of
a given kind.
*/
func (o *Object) Outgoing(edgeKind string) ([]*Object, error) {
	return o.related(edgeKind, graph.DirectionOutgoing)
}

/*
HasRelationship checks if the node has at least one edge of a given kind in
a given direction.
*/
func (o *Object) HasRelationship(edgeKind string, direction int) (bool, error) {
	return o.gm.HasRelationship(o.node.Key(), o.node.Kind(), edgeKind, direction)
}

/*
related returns the objects on the other side of edges of a given kind.
*/
func (o *Object) related(edgeKind string, direction int) ([]*Object, error) {
	nodes, _, err := o.gm.Relationships(o.node.Key(), o.node.Kind(), edgeKind, direction)
	if err != nil {
		return nil, err
	}

	ret := make([]*Object, 0, len(nodes))
	for _, n := range nodes {
		ret = append(ret, &Object{o.gm, n})
	}

	return ret, nil
}
