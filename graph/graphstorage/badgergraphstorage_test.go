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
	"fmt"
	"path/filepath"
	"testing"

	"github.com/krotik/rulegraph/graph/util"
	"go.uber.org/zap"
)

func TestMemoryGraphStorage(t *testing.T) {
	mgs := NewMemoryGraphStorage("mystorage")
	defer mgs.Close()

	if mgs.Name() != "mystorage" || mgs.ReadOnly() {
		t.Error("Unexpected result:", mgs.Name(), mgs.ReadOnly())
		return
	}

	txn := mgs.Begin(true)

	txn.Set([]byte("\x01a"), []byte("1"))
	txn.Set([]byte("\x01b"), []byte("2"))
	txn.Set([]byte("\x02a"), []byte("3"))

	// Transactions see their own writes

	if res, err := txn.Get([]byte("\x01b")); err != nil || string(res) != "2" {
		t.Error("Unexpected result:", string(res), err)
		return
	}

	if err := txn.Commit(); err != nil {
		t.Error(err)
		return
	}

	txn = mgs.Begin(false)
	defer txn.Discard()

	res, err := txn.Scan([]byte("\x01"))
	if err != nil || len(res) != 2 {
		t.Error("Unexpected result:", res, err)
		return
	}

	if fmt.Sprintf("%q=%s %q=%s", res[0].Key, res[0].Value, res[1].Key, res[1].Value) !=
		`"\x01a"=1 "\x01b"=2` {
		t.Error("Unexpected result:", res)
		return
	}

	if res, err := txn.Get([]byte("\x03")); res != nil || err != nil {
		t.Error("Unexpected result:", res, err)
		return
	}

	if err := txn.Set([]byte("\x03"), []byte("x")); !util.IsGraphError(err, util.ErrReadOnly) {
		t.Error("Unexpected result:", err)
		return
	}
}

func TestStorageRollback(t *testing.T) {
	mgs := NewMemoryGraphStorage("mystorage")
	defer mgs.Close()

	txn := mgs.Begin(true)
	txn.Set([]byte("a"), []byte("1"))
	txn.Commit()

	txn = mgs.Begin(true)
	txn.Delete([]byte("a"))
	txn.Set([]byte("b"), []byte("2"))

	if res, _ := txn.Scan(nil); len(res) != 1 || string(res[0].Key) != "b" {
		t.Error("Unexpected result:", res)
		return
	}

	txn.Discard()

	txn = mgs.Begin(false)
	defer txn.Discard()

	if res, _ := txn.Get([]byte("a")); string(res) != "1" {
		t.Error("Unexpected result:", string(res))
		return
	}

	if res, _ := txn.Get([]byte("b")); res != nil {
		t.Error("Unexpected result:", string(res))
		return
	}
}

func TestDiskGraphStorage(t *testing.T) {
	BadgerLogger = NewZapBadgerLogger(zap.NewNop())
	defer func() {
		BadgerLogger = nil
	}()

	dir := filepath.Join(t.TempDir(), "db")

	if _, err := NewDiskGraphStorage(dir, true); !util.IsGraphError(err, util.ErrOpening) {
		t.Error("Unexpected result:", err)
		return
	}

	dgs, err := NewDiskGraphStorage(dir, false)
	if err != nil {
		t.Error(err)
		return
	}

	txn := dgs.Begin(true)
	txn.Set([]byte("foo"), []byte("bar"))

	if err := txn.Commit(); err != nil {
		t.Error(err)
		return
	}

	if err := dgs.Close(); err != nil {
		t.Error(err)
		return
	}

	dgs, err = NewDiskGraphStorage(dir, false)
	if err != nil {
		t.Error(err)
		return
	}
	defer dgs.Close()

	txn = dgs.Begin(false)
	defer txn.Discard()

	if res, err := txn.Get([]byte("foo")); err != nil || string(res) != "bar" {
		t.Error("Unexpected result:", string(res), err)
		return
	}
}
