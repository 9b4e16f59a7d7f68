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

package app

import (
	"context"

	"assoc/fpgrowth"
)

// EventSource yields one row per item occurrence: the encounter (e.g. a hospital admission) and the item (e.g. a
// diagnosis code). Rows of the same encounter are contiguous. A source can be scanned more than once and returns
// the same rows every time.
type EventSource interface {
	Scan(ctx context.Context, fn func(encounter, item string) error) error
}

// Transactions turns an event source into a transaction scanner. Contiguous rows of the same encounter form one
// transaction; duplicate items within an encounter are counted once.
func Transactions(src EventSource) fpgrowth.Scanner {
	return func(ctx context.Context, fn func(items []string) error) error {
		var (
			current string
			items   []string
			seen    = map[string]bool{}
			started bool
		)
		flush := func() error {
			if !started {
				return nil
			}
			transaction := items
			items = nil
			seen = map[string]bool{}
			return fn(transaction)
		}
		err := src.Scan(ctx, func(encounter, item string) error {
			if !started || encounter != current {
				if err := flush(); err != nil {
					return err
				}
				current = encounter
				started = true
			}
			if item != "" && !seen[item] {
				seen[item] = true
				items = append(items, item)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return flush()
	}
}
