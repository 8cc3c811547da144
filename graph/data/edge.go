/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package data

import "fmt"

/*
Edge models edges in the graph store. An edge has two ends which are
described by a key, kind and role. An edge is outgoing for the node at
end1 and incoming for the node at end2.
*/
type Edge interface {
	Node

	/*
		End1Key returns the key of the first end of this edge.
	*/
	End1Key() string

	/*
		End1Kind returns the kind of the first end of this edge.
	*/
	End1Kind() string

	/*
		End1Role returns the role of the first end of this edge.
	*/
	End1Role() string

	/*
		End1IsCascading is a flag to indicate that delete operations from this
		end are cascaded to the other end.
	*/
	End1IsCascading() bool

	/*
		End2Key returns the key of the second end of this edge.
	*/
	End2Key() string

	/*
		End2Kind returns the kind of the second end of this edge.
	*/
	End2Kind() string

	/*
		End2Role returns the role of the second end of this edge.
	*/
	End2Role() string

	/*
		End2IsCascading is a flag to indicate that delete operations from this
		end are cascaded to the other end.
	*/
	End2IsCascading() bool

	/*
		Spec returns the spec for this edge from the view of a specified endpoint.
		A spec is always of the form: <End Role>:<Kind>:<End Role>:<Other node kind>
	*/
	Spec(key string) string

	/*
		OtherEndKey returns the key of the endpoint which is on the other side
		from the given key.
	*/
	OtherEndKey(key string) string

	/*
		OtherEndKind returns the kind of the endpoint which is on the other side
		from the given key.
	*/
	OtherEndKind(key string) string
}

// Edge attributes
// ===============

/*
EdgeEnd1Key is the key of the first end
*/
const EdgeEnd1Key = "end1key"

/*
EdgeEnd1Kind is the kind of the first end
*/
const EdgeEnd1Kind = "end1kind"

/*
EdgeEnd1Role is the role of the first end
*/
const EdgeEnd1Role = "end1role"

/*
EdgeEnd1Cascading is the flag to cascade delete operations from the first end
*/
const EdgeEnd1Cascading = "end1cascading"

/*
EdgeEnd2Key is the key of the second end
*/
const EdgeEnd2Key = "end2key"

/*
EdgeEnd2Kind is the kind of the second end
*/
const EdgeEnd2Kind = "end2kind"

/*
EdgeEnd2Role is the role of the second end
*/
const EdgeEnd2Role = "end2role"

/*
EdgeEnd2Cascading is the flag to cascade delete operations from the second end
*/
const EdgeEnd2Cascading = "end2cascading"

/*
graphEdge data structure.
*/
type graphEdge struct {
	*graphNode
}

/*
NewGraphEdge creates a new Edge instance.
*/
func NewGraphEdge() Edge {
	return &graphEdge{&graphNode{make(map[string]interface{})}}
}

/*
NewGraphEdgeFromNode creates a new Edge instance from a given node.
*/
func NewGraphEdgeFromNode(node Node) Edge {
	if node == nil {
		return nil
	}
	return &graphEdge{&graphNode{node.Data()}}
}

/*
NewGraphEdgeBetween creates a new non-cascading edge which points from node
end1 to node end2.
*/
func NewGraphEdgeBetween(key string, kind string, end1 Node, role1 string,
	end2 Node, role2 string) Edge {

	ge := NewGraphEdge()

	ge.SetAttr(NodeKey, key)
	ge.SetAttr(NodeKind, kind)

	ge.SetAttr(EdgeEnd1Key, end1.Key())
	ge.SetAttr(EdgeEnd1Kind, end1.Kind())
	ge.SetAttr(EdgeEnd1Role, role1)
	ge.SetAttr(EdgeEnd1Cascading, false)

	ge.SetAttr(EdgeEnd2Key, end2.Key())
	ge.SetAttr(EdgeEnd2Kind, end2.Kind())
	ge.SetAttr(EdgeEnd2Role, role2)
	ge.SetAttr(EdgeEnd2Cascading, false)

	return ge
}

/*
End1Key returns the key of the first end of this edge.
*/
func (ge *graphEdge) End1Key() string {
	return ge.stringAttr(EdgeEnd1Key)
}

/*
End1Kind returns the kind of the first end of this edge.
*/
func (ge *graphEdge) End1Kind() string {
	return ge.stringAttr(EdgeEnd1Kind)
}

/*
End1Role returns the role of the first end of this edge.
*/
func (ge *graphEdge) End1Role() string {
	return ge.stringAttr(EdgeEnd1Role)
}

/*
End1IsCascading is a flag to indicate that delete operations from this
end are cascaded to the other end.
*/
func (ge *graphEdge) End1IsCascading() bool {
	b, _ := ge.Attr(EdgeEnd1Cascading).(bool)
	return b
}

/*
End2Key returns the key of the second end of this edge.
*/
func (ge *graphEdge) End2Key() string {
	return ge.stringAttr(EdgeEnd2Key)
}

/*
End2Kind returns the kind of the second end of this edge.
*/
func (ge *graphEdge) End2Kind() string {
	return ge.stringAttr(EdgeEnd2Kind)
}

/*
End2Role returns the role of the second end of this edge.
*/
func (ge *graphEdge) End2Role() string {
	return ge.stringAttr(EdgeEnd2Role)
}

/*
End2IsCascading is a flag to indicate that delete operations from this
end are cascaded to the other end.
*/
func (ge *graphEdge) End2IsCascading() bool {
	b, _ := ge.Attr(EdgeEnd2Cascading).(bool)
	return b
}

/*
Spec returns the spec for this edge from the view of a specified endpoint.
*/
func (ge *graphEdge) Spec(key string) string {
	if key == ge.End1Key() {
		return fmt.Sprintf("%s:%s:%s:%s", ge.End1Role(), ge.Kind(), ge.End2Role(), ge.End2Kind())
	} else if key == ge.End2Key() {
		return fmt.Sprintf("%s:%s:%s:%s", ge.End2Role(), ge.Kind(), ge.End1Role(), ge.End1Kind())
	}
	return ""
}

/*
OtherEndKey returns the key of the endpoint which is on the other side
from the given key.
*/
func (ge *graphEdge) OtherEndKey(key string) string {
	if key == ge.End1Key() {
		return ge.End2Key()
	} else if key == ge.End2Key() {
		return ge.End1Key()
	}
	return ""
}

/*
OtherEndKind returns the kind of the endpoint which is on the other side
from the given key.
*/
func (ge *graphEdge) OtherEndKind(key string) string {
	if key == ge.End1Key() {
		return ge.End2Kind()
	} else if key == ge.End2Key() {
		return ge.End1Kind()
	}
	return ""
}

/*
String returns a string representation of this edge.
*/
func (ge *graphEdge) String() string {
	return dataToString("GraphEdge", ge.graphNode)
}
