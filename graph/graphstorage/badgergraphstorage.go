/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graphstorage

import (
	"errors"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/krotik/common/errorutil"
	"github.com/krotik/common/fileutil"
	"github.com/krotik/rulegraph/graph/util"
)

/*
BadgerLogger is the logger which receives BadgerDB log output. A nil value
disables BadgerDB logging.
*/
var BadgerLogger badger.Logger

/*
BadgerGraphStorage data structure
*/
type BadgerGraphStorage struct {
	name     string     // Name of the graph storage
	readonly bool       // Flag for readonly mode
	db       *badger.DB // Underlying database
}

/*
NewDiskGraphStorage creates a new BadgerGraphStorage instance which stores its
data in a given directory.
*/
func NewDiskGraphStorage(name string, readonly bool) (Storage, error) {

	if res, _ := fileutil.PathExists(name); !res {
		if readonly {
			return nil, &util.GraphError{Type: util.ErrOpening,
				Detail: "Cannot create readonly storage: " + name}
		}

		if err := os.MkdirAll(name, 0770); err != nil {
			return nil, &util.GraphError{Type: util.ErrOpening, Detail: err.Error()}
		}
	}

	opts := badger.DefaultOptions(name).
		WithReadOnly(readonly).
		WithLogger(BadgerLogger).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &util.GraphError{Type: util.ErrOpening, Detail: err.Error()}
	}

	return &BadgerGraphStorage{name, readonly, db}, nil
}

/*
NewMemoryGraphStorage creates a new BadgerGraphStorage instance which keeps
all data in memory.
*/
func NewMemoryGraphStorage(name string) Storage {

	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(BadgerLogger).
		WithMemTableSize(8 << 20).
		WithNumMemtables(2).
		WithBlockCacheSize(0).
		WithIndexCacheSize(0)

	db, err := badger.Open(opts)
	errorutil.AssertOk(err)

	return &BadgerGraphStorage{name, false, db}
}

/*
Name returns the name of the BadgerGraphStorage instance.
*/
func (bgs *BadgerGraphStorage) Name() string {
	return bgs.name
}

/*
ReadOnly returns if the storage only allows read transactions.
*/
func (bgs *BadgerGraphStorage) ReadOnly() bool {
	return bgs.readonly
}

/*
Begin starts a new transaction.
*/
func (bgs *BadgerGraphStorage) Begin(update bool) Txn {
	return &badgerTxn{bgs.db.NewTransaction(update && !bgs.readonly)}
}

/*
Close closes the storage.
*/
func (bgs *BadgerGraphStorage) Close() error {
	if err := bgs.db.Close(); err != nil {
		return &util.GraphError{Type: util.ErrClosing, Detail: err.Error()}
	}
	return nil
}

/*
badgerTxn wraps a BadgerDB transaction.
*/
type badgerTxn struct {
	txn *badger.Txn
}

/*
Get returns the value of a given key or nil if the key does not exist.
*/
func (bt *badgerTxn) Get(key []byte) ([]byte, error) {
	item, err := bt.txn.Get(key)

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, &util.GraphError{Type: util.ErrReading, Detail: err.Error()}
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, &util.GraphError{Type: util.ErrReading, Detail: err.Error()}
	}

	return val, nil
}

/*
Set writes a value.
*/
func (bt *badgerTxn) Set(key []byte, value []byte) error {
	if err := bt.txn.Set(key, value); err != nil {
		return bt.writeError(err)
	}
	return nil
}

/*
Delete removes a key.
*/
func (bt *badgerTxn) Delete(key []byte) error {
	if err := bt.txn.Delete(key); err != nil {
		return bt.writeError(err)
	}
	return nil
}

/*
Scan returns all key-value pairs whose key starts with the given prefix.
The iterator is closed before returning so callers may write to the same
transaction while processing the result.
*/
func (bt *badgerTxn) Scan(prefix []byte) ([]KV, error) {
	var ret []KV

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := bt.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()

		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, &util.GraphError{Type: util.ErrReading, Detail: err.Error()}
		}

		ret = append(ret, KV{item.KeyCopy(nil), val})
	}

	return ret, nil
}

/*
Commit writes all changes of this transaction.
*/
func (bt *badgerTxn) Commit() error {
	if err := bt.txn.Commit(); err != nil {
		return &util.GraphError{Type: util.ErrTransaction, Detail: err.Error(), Cause: err}
	}
	return nil
}

/*
Discard drops all changes of this transaction.
*/
func (bt *badgerTxn) Discard() {
	bt.txn.Discard()
}

/*
writeError converts a BadgerDB write error into a GraphError.
*/
func (bt *badgerTxn) writeError(err error) error {
	if errors.Is(err, badger.ErrReadOnlyTxn) {
		return &util.GraphError{Type: util.ErrReadOnly, Detail: err.Error()}
	}
	return &util.GraphError{Type: util.ErrWriting, Detail: err.Error(), Cause: err}
}
