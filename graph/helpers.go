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
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/krotik/common/stringutil"
	"github.com/krotik/rulegraph/graph/data"
	"github.com/krotik/rulegraph/graph/graphstorage"
	"github.com/krotik/rulegraph/graph/util"
)

func init() {

	// It is possible to store nested structures on nodes

	gob.Register(make(map[string]interface{}))
	gob.Register(make([]interface{}, 0))
}

// Helper functions for GraphManager
// =================================

/*
checkNode checks if a given node can be written to the datastore.
*/
func checkNode(node data.Node) error {
	return checkItemGeneral(node, "Node")
}

/*
checkItemGeneral checks the general properties of a given graph item.
*/
func checkItemGeneral(node data.Node, name string) error {
	if node.Key() == "" {
		return &util.GraphError{Type: util.ErrInvalidData, Detail: name + " is missing a key value"}
	}

	if strings.Contains(node.Key(), keySeparator) {
		return &util.GraphError{Type: util.ErrInvalidData, Detail: name + " key contains a null character"}
	}

	if node.Kind() == "" {
		return &util.GraphError{Type: util.ErrInvalidData, Detail: name + " is missing a kind value"}
	}

	if !stringutil.IsAlphaNumeric(node.Kind()) {
		return &util.GraphError{
			Type:   util.ErrInvalidData,
			Detail: fmt.Sprintf("%v kind %v is not alphanumeric - can only contain [a-zA-Z0-9_]", name, node.Kind()),
		}
	}

	for attr := range node.Data() {
		if attr == "" {
			return &util.GraphError{Type: util.ErrInvalidData, Detail: name + " contains empty string attribute name"}
		}
	}

	return nil
}

/*
checkEdge checks if a given edge can be written to the datastore.
*/
func checkEdge(edge data.Edge) error {
	if err := checkItemGeneral(edge, "Edge"); err != nil {
		return err
	}

	checkEnd := func(end string, key string, kind string, role string, cascading string) error {

		if key == "" {
			return &util.GraphError{Type: util.ErrInvalidData, Detail: "Edge is missing a key value for " + end}
		}

		if kind == "" {
			return &util.GraphError{Type: util.ErrInvalidData, Detail: "Edge is missing a kind value for " + end}
		}

		if role == "" {
			return &util.GraphError{Type: util.ErrInvalidData, Detail: "Edge is missing a role value for " + end}
		} else if !stringutil.IsAlphaNumeric(role) {
			return &util.GraphError{
				Type:   util.ErrInvalidData,
				Detail: fmt.Sprintf("Edge role %v is not alphanumeric - can only contain [a-zA-Z0-9_]", role),
			}
		}

		if _, ok := edge.Attr(cascading).(bool); !ok {
			return &util.GraphError{Type: util.ErrInvalidData, Detail: "Edge is missing a cascading value for " + end}
		}

		return nil
	}

	if err := checkEnd("end1", edge.End1Key(), edge.End1Kind(), edge.End1Role(), data.EdgeEnd1Cascading); err != nil {
		return err
	}

	return checkEnd("end2", edge.End2Key(), edge.End2Kind(), edge.End2Role(), data.EdgeEnd2Cascading)
}

// Storage keys
// ============

/*
nodeStorageKey returns the storage key of a node.
*/
func nodeStorageKey(key string, kind string) []byte {
	return []byte(PrefixNode + kind + keySeparator + key)
}

/*
nodeKindPrefix returns the storage key prefix of all nodes of a kind.
*/
func nodeKindPrefix(kind string) []byte {
	return []byte(PrefixNode + kind + keySeparator)
}

/*
edgeStorageKey returns the storage key of an edge.
*/
func edgeStorageKey(key string, kind string) []byte {
	return []byte(PrefixEdge + kind + keySeparator + key)
}

/*
nodeEdgePrefix returns the storage key prefix of all edge links of a node. An
optional spec narrows the prefix down.
*/
func nodeEdgePrefix(key string, kind string, spec string) []byte {
	prefix := PrefixNodeEdge + kind + keySeparator + key + keySeparator

	if spec != "" {
		prefix += spec + keySeparator
	}

	return []byte(prefix)
}

/*
nodeEdgeKey returns the storage key of a single edge link of a node.
*/
func nodeEdgeKey(key string, kind string, spec string, edgeKey string) []byte {
	return []byte(PrefixNodeEdge + kind + keySeparator + key + keySeparator +
		spec + keySeparator + edgeKey)
}

/*
splitNodeEdgeKey splits the spec and edge key from an edge link storage key.
*/
func splitNodeEdgeKey(prefix []byte, key []byte) (string, string) {
	rest := strings.SplitN(string(key[len(prefix):]), keySeparator, 2)

	if len(rest) != 2 {
		return rest[0], ""
	}

	return rest[0], rest[1]
}

// Value encoding
// ==============

/*
encodeValue encodes a given value with gob.
*/
func encodeValue(v interface{}) ([]byte, error) {
	var bb bytes.Buffer

	if err := gob.NewEncoder(&bb).Encode(v); err != nil {
		return nil, &util.GraphError{Type: util.ErrWriting, Detail: err.Error()}
	}

	return bb.Bytes(), nil
}

/*
decodeValue decodes a gob encoded value.
*/
func decodeValue(b []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewBuffer(b)).Decode(v); err != nil {
		return &util.GraphError{Type: util.ErrReading, Detail: err.Error()}
	}
	return nil
}

/*
readNodeData reads the data of a node or edge. Returns nil if the item does
not exist.
*/
func readNodeData(txn graphstorage.Txn, storageKey []byte) (map[string]interface{}, error) {
	var ret map[string]interface{}

	val, err := txn.Get(storageKey)
	if err == nil && val != nil {
		err = decodeValue(val, &ret)
	}

	return ret, err
}

// MainDB helpers
// ==============

/*
getMainDBMap gets a map from the main database.
*/
func getMainDBMap(txn graphstorage.Txn, key string) (map[string]string, error) {
	ret := make(map[string]string)

	val, err := txn.Get([]byte(key))
	if err == nil && val != nil {
		err = decodeValue(val, &ret)
	}

	return ret, err
}

/*
storeMainDBMap stores a map in the main database.
*/
func storeMainDBMap(txn graphstorage.Txn, key string, mapval map[string]string) error {
	val, err := encodeValue(mapval)
	if err == nil {
		err = txn.Set([]byte(key), val)
	}
	return err
}

/*
addMainDBCount adds a given delta to a counter in the main database.
*/
func addMainDBCount(txn graphstorage.Txn, key string, delta int) error {
	var count uint64

	val, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}

	if len(val) == 8 {
		count = binary.LittleEndian.Uint64(val)
	}

	if delta < 0 && uint64(-delta) > count {
		count = 0
	} else {
		count = uint64(int64(count) + int64(delta))
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, count)

	return txn.Set([]byte(key), buf)
}

// Static helper functions
// =======================

/*
idCounter is a simple counter for transaction ids
*/
var idCounter uint64

/*
newTransID returns a new unique transaction ID.
*/
func newTransID() string {
	return fmt.Sprint(atomic.AddUint64(&idCounter, 1))
}

/*
IsFullSpec is a function to determine if a given spec is a fully specified spec
(i.e. all spec components are specified)
*/
func IsFullSpec(spec string) bool {
	sspec := strings.Split(spec, ":")

	if len(sspec) != 4 || sspec[0] == "" || sspec[1] == "" || sspec[2] == "" || sspec[3] == "" {
		return false
	}

	return true
}

/*
matchSpec checks if a full spec matches a given partial spec.
*/
func matchSpec(partial []string, spec string) bool {
	mspec := strings.Split(spec, ":")

	if len(mspec) != 4 {
		return false
	}

	for i, p := range partial {
		if p != "" && mspec[i] != p {
			return false
		}
	}

	return true
}
