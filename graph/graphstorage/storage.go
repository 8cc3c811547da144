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
Package graphstorage contains classes which model storage objects for graph data.

The storage is an ordered key-value store with transactions. The graph
manager encodes nodes, edges and lookup entries as key-value pairs. There
are two constructors: NewDiskGraphStorage which provides disk storage and
NewMemoryGraphStorage which provides memory-only storage. Both are backed
by BadgerDB.
*/
package graphstorage

/*
Storage interface models the storage backend for a graph manager.
*/
type Storage interface {

	/*
	   Name returns the name of the GraphStorage instance.
	*/
	Name() string

	/*
		ReadOnly returns if the storage only allows read transactions.
	*/
	ReadOnly() bool

	/*
		Begin starts a new transaction. Only update transactions can
		write data.
	*/
	Begin(update bool) Txn

	/*
		Close closes the storage.
	*/
	Close() error
}

/*
Txn models a storage transaction. A transaction sees its own writes.
*/
type Txn interface {

	/*
		Get returns the value of a given key or nil if the key does not exist.
	*/
	Get(key []byte) ([]byte, error)

	/*
		Set writes a value. The given slices must not be modified until the
		transaction has been finished.
	*/
	Set(key []byte, value []byte) error

	/*
		Delete removes a key.
	*/
	Delete(key []byte) error

	/*
		Scan returns all key-value pairs whose key starts with the given
		prefix in key order.
	*/
	Scan(prefix []byte) ([]KV, error)

	/*
		Commit writes all changes of this transaction.
	*/
	Commit() error

	/*
		Discard drops all changes of this transaction. It is safe to call
		Discard after Commit.
	*/
	Discard()
}

/*
KV is a single key-value pair.
*/
type KV struct {
	Key   []byte
	Value []byte
}
