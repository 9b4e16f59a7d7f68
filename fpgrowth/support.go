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
	"context"

	"github.com/exascience/pargo/parallel"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Scanner calls fn once for every transaction of a population. A scanner can be run more than once and yields the
// same transactions every time. The items passed to fn are distinct and fn may keep them.
type Scanner func(ctx context.Context, fn func(items []string) error) error

// SupportTable counts for every item the number of transactions that contain it.
type SupportTable struct {
	Population int            //number of transactions
	Counts     map[string]int //item -> nr of transactions containing the item
}

// NewSupportTable returns an empty support table.
func NewSupportTable() *SupportTable {
	return &SupportTable{Counts: map[string]int{}}
}

// countSupport counts a window of transactions in parallel.
func countSupport(window [][]string) map[string]int {
	if len(window) == 0 {
		return map[string]int{}
	}
	result := parallel.RangeReduce(0, len(window), 0, func(low, high int) interface{} {
		counts := map[string]int{}
		for _, items := range window[low:high] {
			for _, item := range items {
				counts[item]++
			}
		}
		return counts
	}, func(result1, result2 interface{}) interface{} {
		c1 := result1.(map[string]int)
		c2 := result2.(map[string]int)
		if len(c1) < len(c2) {
			c1, c2 = c2, c1
		}
		for item, n := range c2 {
			c1[item] += n
		}
		return c1
	})
	return result.(map[string]int)
}

// Add adds a window of transactions to the table.
func (s *SupportTable) Add(window [][]string) {
	for item, n := range countSupport(window) {
		s.Counts[item] += n
	}
	s.Population += len(window)
}

// Ratio returns the support of item as a fraction of the population.
func (s *SupportTable) Ratio(item string) float64 {
	if s.Population == 0 {
		return 0
	}
	return float64(s.Counts[item]) / float64(s.Population)
}

// Items returns the items with a support count within [min, max], by descending support.
func (s *SupportTable) Items(min, max int) []string {
	var items []string
	for item, n := range s.Counts {
		if n >= min && n <= max {
			items = append(items, item)
		}
	}
	sortBySupport(items, s.Counts)
	return items
}

// CountSupport runs the support counting pass over all transactions of scan. Transactions are buffered and counted
// in windows of the given size.
func CountSupport(ctx context.Context, scan Scanner, window int, log *logrus.Entry) (*SupportTable, error) {
	if window <= 0 {
		return nil, errors.Errorf("invalid window size %d", window)
	}
	table := NewSupportTable()
	buffer := make([][]string, 0, window)
	err := scan(ctx, func(items []string) error {
		buffer = append(buffer, items)
		if len(buffer) == window {
			table.Add(buffer)
			buffer = buffer[:0]
			log.WithField("transactions", table.Population).Debug("Counted support window.")
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "support counting pass")
	}
	table.Add(buffer)
	log.WithFields(logrus.Fields{
		"transactions": table.Population,
		"items":        len(table.Counts),
	}).Info("Calculated item support.")
	return table, nil
}

// BuildTree runs the insertion pass. Every transaction is reduced to the items whose support lies within
// [min, max], sorted by descending support and inserted in a new tree. Transactions without any remaining item
// still count towards the root.
func BuildTree(ctx context.Context, scan Scanner, table *SupportTable, min, max int, log *logrus.Entry) (*Tree, error) {
	tree := NewTree(nil)
	keep := func(item string) bool {
		n := table.Counts[item]
		return n >= min && n <= max
	}
	err := scan(ctx, func(items []string) error {
		selected := make([]string, 0, len(items))
		for _, item := range items {
			if keep(item) {
				selected = append(selected, item)
			}
		}
		sortBySupport(selected, table.Counts)
		tree.Insert(selected, 1)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "tree construction pass")
	}
	log.WithFields(logrus.Fields{
		"transactions": tree.Count(),
		"items":        len(tree.Order),
		"nodes":        tree.Size(),
	}).Info("Built FP-tree.")
	return tree, nil
}
