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

/*
NodeKeyIterator can be used to iterate node keys of a certain node kind.
The iterator works on a snapshot of the keys which was taken when it
was created.
*/
type NodeKeyIterator struct {
	keys      []string // Snapshot of node keys
	pos       int      // Current position
	LastError error    // Last encountered error
}

/*
Next returns the next node key. Returns an empty string if there is no
next key.
*/
func (it *NodeKeyIterator) Next() string {
	if !it.HasNext() {
		return ""
	}

	k := it.keys[it.pos]
	it.pos++

	return k
}

/*
HasNext returns if there is a next node key.
*/
func (it *NodeKeyIterator) HasNext() bool {
	return it.pos < len(it.keys)
}

/*
Error returns the last encountered error.
*/
func (it *NodeKeyIterator) Error() error {
	return it.LastError
}
