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
	"context"
	"fmt"
	"strings"
	"testing"

	"assoc/fpgrowth"
	"assoc/utils"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
)

var fixture = [][]string{{"a", "b", "c"}, {"b", "c"}, {"a", "c"}, {"c"}}

func quietLog() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func scanner(transactions [][]string) fpgrowth.Scanner {
	return func(ctx context.Context, fn func(items []string) error) error {
		for _, items := range transactions {
			cp := make([]string, len(items))
			copy(cp, items)
			if err := fn(cp); err != nil {
				return err
			}
		}
		return nil
	}
}

func buildTree(t *testing.T, transactions [][]string) (*fpgrowth.Tree, *fpgrowth.SupportTable) {
	scan := scanner(transactions)
	table, err := fpgrowth.CountSupport(context.Background(), scan, 3, quietLog())
	require.NoError(t, err)
	tree, err := fpgrowth.BuildTree(context.Background(), scan, table, 0, len(transactions), quietLog())
	require.NoError(t, err)
	return tree, table
}

func mine(t *testing.T, tree *fpgrowth.Tree, b fpgrowth.Bounds, workers int) map[string]int {
	progress := utils.NewProgress(quietLog(), "pattern")
	patterns, err := fpgrowth.FindPatterns(context.Background(), tree, b, workers, progress, quietLog())
	require.NoError(t, err)
	require.Equal(t, uint64(patterns.Len()), progress.Count())
	return asMap(patterns)
}

func asMap(patterns *fpgrowth.Patterns) map[string]int {
	result := map[string]int{}
	for _, key := range patterns.Keys() {
		n, _ := patterns.Count(key)
		result[strings.Join(key.Items(), ",")] = n
	}
	return result
}

// paths describes a tree as a map from the item path of every node to its count.
func paths(tree *fpgrowth.Tree) map[string]int {
	result := map[string]int{}
	var walk func(idx int32, path string)
	walk = func(idx int32, path string) {
		for item, child := range tree.Nodes[idx].Children {
			p := path + "/" + item
			result[p] = tree.Nodes[child].Count
			walk(child, p)
		}
	}
	walk(0, "")
	return result
}

func depth(tree *fpgrowth.Tree) int {
	max := 0
	for p := range paths(tree) {
		if d := strings.Count(p, "/"); d > max {
			max = d
		}
	}
	return max
}

// randomTransactions generates a reproducible population over nofItems items.
func randomTransactions(seed uint32, n, nofItems int) [][]string {
	var rng fastrand.RNG
	rng.Seed(seed)
	var result [][]string
	for i := 0; i < n; i++ {
		var items []string
		for j := 0; j < nofItems; j++ {
			// lower items are more frequent
			if rng.Uint32n(uint32(nofItems+j)) < uint32(nofItems/2) {
				items = append(items, fmt.Sprintf("I%02d", j))
			}
		}
		result = append(result, items)
	}
	return result
}

// bruteForce counts the support of every non-empty subset of items occurring in the transactions.
func bruteForce(transactions [][]string, nofItems, min int) map[string]int {
	result := map[string]int{}
	for mask := 1; mask < 1<<nofItems; mask++ {
		var items []string
		for j := 0; j < nofItems; j++ {
			if mask&(1<<j) != 0 {
				items = append(items, fmt.Sprintf("I%02d", j))
			}
		}
		support := 0
		for _, tr := range transactions {
			set := map[string]bool{}
			for _, item := range tr {
				set[item] = true
			}
			all := true
			for _, item := range items {
				if !set[item] {
					all = false
					break
				}
			}
			if all {
				support++
			}
		}
		if support > 0 && support >= min {
			result[strings.Join(items, ",")] = support
		}
	}
	return result
}
