/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package graph contains the main API to the graph datastore.

Manager API

The main API is provided by a Manager object which can be created with the
NewGraphManager() constructor function. The manager provides CRUD functionality
for nodes and edges through store, fetch and remove functions. It also provides
the basic traversal functionality which allows the traversal from one node to
other nodes.

Node iterator

All available node keys of a given kind can be iterated by using a
NodeKeyIterator. The manager can produce these with the NodeKeyIterator()
function.

Transactions

A transaction is used to build up multiple store and delete tasks for the
graph database. Nothing is written to the database before calling Commit().
All operations of a transaction are applied in order inside a single storage
transaction. A transaction commit does an automatic rollback if an error occurs.
This includes errors returned by graph rules: all changes done by rules are
part of the same storage transaction.

A trans object can be created with the NewGraphTrans() function. The
RunInTrans() function of the Manager runs arbitrary code inside a
transaction. If it is called while a transaction is already being committed
(e.g. from inside a graph rule) the code runs as part of that transaction.

Rules

Graph rules provide automatic operations which help to keep the graph consistent.
Rules trigger on graph events which are fired synchronously while a transaction
is committed. Rules receive a Manager which reads the state of the transaction
in flight and a Trans object which applies changes immediately. Rules are
called in the order in which they were added. The rules SystemRuleDeleteNodeEdges
and SystemRuleUpdateNodeStats are automatically loaded when a new Manager is
created.

Storage layout

The storage is an ordered key-value store:

	PrefixMainDB + entry -> value
	(meta information such as version, known kinds and counts)

	PrefixNode + node kind + 0x00 + node key -> attributes
	(data of a certain node)

	PrefixEdge + edge kind + 0x00 + edge key -> attributes
	(data of a certain edge)

	PrefixNodeEdge + node kind + 0x00 + node key + 0x00 + spec + 0x00 + edge key -> edgeTargetInfo
	(connection from one node to another via a spec)
*/
package graph

/*
VERSION of the GraphManager
*/
const VERSION = 1

/*
MainDBEntryPrefix is the prefix for entries stored in the main database
*/
const MainDBEntryPrefix = "\x00"

// MainDB entries
// ==============

/*
MainDBVersion is the MainDB entry key for version information
*/
const MainDBVersion = MainDBEntryPrefix + "ver"

/*
MainDBNodeKinds is the MainDB entry key for node kind information
*/
const MainDBNodeKinds = MainDBEntryPrefix + "nodekind"

/*
MainDBEdgeKinds is the MainDB entry key for edge kind information
*/
const MainDBEdgeKinds = MainDBEntryPrefix + "edgekind"

/*
MainDBNodeAttrs is the MainDB entry key for a list of node attributes
*/
const MainDBNodeAttrs = MainDBEntryPrefix + "natt"

/*
MainDBNodeEdges is the MainDB entry key for a list of node relationships
*/
const MainDBNodeEdges = MainDBEntryPrefix + "nrel"

/*
MainDBNodeCount is the MainDB entry key for a node count
*/
const MainDBNodeCount = MainDBEntryPrefix + "ncnt"

/*
MainDBEdgeCount is the MainDB entry key for an edge count
*/
const MainDBEdgeCount = MainDBEntryPrefix + "ecnt"

// Storage prefixes
// ================

/*
PrefixNode is the prefix for storing node data
*/
const PrefixNode = "\x01"

/*
PrefixEdge is the prefix for storing edge data
*/
const PrefixEdge = "\x02"

/*
PrefixNodeEdge is the prefix for storing a link from a node (and a spec) to an edge
*/
const PrefixNodeEdge = "\x03"

/*
keySeparator separates the components of a storage key
*/
const keySeparator = "\x00"

// Traversal directions
// ====================

/*
DirectionAny matches outgoing and incoming edges
*/
const DirectionAny = 0

/*
DirectionOutgoing matches edges where the traversed node is end1
*/
const DirectionOutgoing = 1

/*
DirectionIncoming matches edges where the traversed node is end2
*/
const DirectionIncoming = 2

// Graph events
//=============

/*
EventNodeCreated is thrown when a node gets created.

Parameters: created node
*/
const EventNodeCreated = 0x01

/*
EventNodeUpdated is thrown when a node gets updated.

Parameters: updated node, old node
*/
const EventNodeUpdated = 0x02

/*
EventNodeDeleted is thrown when a node gets deleted.

Parameters: deleted node
*/
const EventNodeDeleted = 0x03

/*
EventEdgeCreated is thrown when an edge gets created.

Parameters: created edge
*/
const EventEdgeCreated = 0x04

/*
EventEdgeUpdated is thrown when an edge gets updated.

Parameters: updated edge, old edge
*/
const EventEdgeUpdated = 0x05

/*
EventEdgeDeleted is thrown when an edge gets deleted.

Parameters: deleted edge
*/
const EventEdgeDeleted = 0x06

/*
EventNodeStore is thrown before a node gets stored. A rule returning
ErrEventHandled prevents the operation.

Parameters: node to store
*/
const EventNodeStore = 0x11

/*
EventNodeUpdate is thrown before a node gets updated. A rule returning
ErrEventHandled prevents the operation.

Parameters: node to update, current node
*/
const EventNodeUpdate = 0x12

/*
EventNodeDelete is thrown before a node gets deleted. The node and all its
edges are still readable. A rule returning ErrEventHandled prevents the
operation.

Parameters: node to delete
*/
const EventNodeDelete = 0x13

/*
EventEdgeStore is thrown before an edge gets stored. A rule returning
ErrEventHandled prevents the operation.

Parameters: edge to store
*/
const EventEdgeStore = 0x14

/*
EventEdgeDelete is thrown before an edge gets deleted. A rule returning
ErrEventHandled prevents the operation.

Parameters: edge to delete
*/
const EventEdgeDelete = 0x15

/*
EventTransCommitting is thrown after all operations of a transaction have
been applied and before the transaction is written. Rules may still
change data.

Parameters: none
*/
const EventTransCommitting = 0x21

/*
EventTransClosed is thrown after a transaction was written or rolled back.
Rules must not change data.

Parameters: flag if the transaction was written
*/
const EventTransClosed = 0x22
