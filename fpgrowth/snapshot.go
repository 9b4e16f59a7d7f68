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

package fpgrowth

import (
	"encoding/gob"

	"assoc/utils"

	"github.com/pkg/errors"
)

const snapshotVersion = 1

// ErrEmptySnapshot is returned when a snapshot file holds no tree.
var ErrEmptySnapshot = errors.New("snapshot holds no tree")

type snapshot struct {
	Version int
	Tree    *Tree
	Support *SupportTable
}

// SaveSnapshot stores a tree together with its support table, so that a later run can mine it with other bounds
// without scanning the transactions again. The file only appears once it is completely written.
func SaveSnapshot(path string, tree *Tree, table *SupportTable, force bool) error {
	file, err := utils.CreateAtomic(path, force)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(file).Encode(snapshot{Version: snapshotVersion, Tree: tree, Support: table}); err != nil {
		_ = file.Abort()
		return errors.Wrapf(err, "encode snapshot %s", path)
	}
	return file.Commit()
}

// LoadSnapshot loads a tree and its support table stored with SaveSnapshot.
func LoadSnapshot(path string) (*Tree, *SupportTable, error) {
	file, err := utils.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	var s snapshot
	if err := gob.NewDecoder(file).Decode(&s); err != nil {
		return nil, nil, errors.Wrapf(err, "decode snapshot %s", path)
	}
	if s.Version != snapshotVersion {
		return nil, nil, errors.Errorf("snapshot %s has version %d, expected %d", path, s.Version, snapshotVersion)
	}
	if s.Tree == nil || len(s.Tree.Nodes) == 0 || s.Support == nil {
		return nil, nil, errors.Wrap(ErrEmptySnapshot, path)
	}
	// gob does not transmit empty maps
	if s.Tree.Links == nil {
		s.Tree.Links = map[string][]int32{}
	}
	if s.Support.Counts == nil {
		s.Support.Counts = map[string]int{}
	}
	return s.Tree, s.Support, nil
}
