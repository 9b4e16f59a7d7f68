// ASSOC: Association Discovery over Clinical Encounters
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

package fpgrowth_test

import (
	"os"
	"path/filepath"
	"testing"

	"assoc/fpgrowth"
	"assoc/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	transactions := randomTransactions(11, 300, 9)
	tree, table := buildTree(t, transactions)
	for _, name := range []string{"tree.gob", "tree.gob.gz"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, fpgrowth.SaveSnapshot(path, tree, table, false))
		loaded, loadedTable, err := fpgrowth.LoadSnapshot(path)
		require.NoError(t, err)
		assert.Equal(t, tree.Nodes, loaded.Nodes)
		assert.Equal(t, tree.Links, loaded.Links)
		assert.Equal(t, tree.Order, loaded.Order)
		assert.Equal(t, table, loadedTable)
		b := fpgrowth.Bounds{MinSupport: 4, MaxSupport: 300, MaxSize: 4}
		assert.Equal(t, mine(t, tree, b, 3), mine(t, loaded, b, 3))
	}
}

func TestSnapshotForce(t *testing.T) {
	tree, table := buildTree(t, fixture)
	path := filepath.Join(t.TempDir(), "tree.gob")
	require.NoError(t, fpgrowth.SaveSnapshot(path, tree, table, false))
	err := fpgrowth.SaveSnapshot(path, tree, table, false)
	assert.ErrorIs(t, err, utils.ErrExists)
	assert.NoError(t, fpgrowth.SaveSnapshot(path, tree, table, true))
}

func TestLoadSnapshotErrors(t *testing.T) {
	_, _, err := fpgrowth.LoadSnapshot(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "garbage.gob")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot"), 0600))
	_, _, err = fpgrowth.LoadSnapshot(path)
	assert.Error(t, err)
}
