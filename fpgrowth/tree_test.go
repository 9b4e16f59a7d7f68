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
	"testing"

	"assoc/fpgrowth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountSupport(t *testing.T) {
	table, err := fpgrowth.CountSupport(context.Background(), scanner(fixture), 3, quietLog())
	require.NoError(t, err)
	assert.Equal(t, 4, table.Population)
	assert.Equal(t, map[string]int{"a": 2, "b": 2, "c": 4}, table.Counts)
	assert.Equal(t, []string{"c", "a", "b"}, table.Items(0, 4))
	assert.Equal(t, []string{"c"}, table.Items(3, 4))
	assert.InDelta(t, 0.5, table.Ratio("a"), 1e-12)

	_, err = fpgrowth.CountSupport(context.Background(), scanner(fixture), 0, quietLog())
	assert.Error(t, err)
}

func TestBuildTreeSharesPrefixes(t *testing.T) {
	tree, _ := buildTree(t, fixture)
	assert.Equal(t, 4, tree.Count())
	assert.Equal(t, 4, tree.Size())
	assert.Equal(t, []string{"c", "a", "b"}, tree.Order)
	assert.Len(t, tree.Links["c"], 1)
	assert.Len(t, tree.Links["a"], 1)
	assert.Len(t, tree.Links["b"], 2)
	assert.Equal(t, map[string]int{"/c": 4, "/c/a": 2, "/c/a/b": 1, "/c/b": 1}, paths(tree))
	assert.Equal(t, 2, tree.Support("b"))
	assert.False(t, tree.IsPath())
}

func TestBuildTreeBounds(t *testing.T) {
	scan := scanner(fixture)
	table, err := fpgrowth.CountSupport(context.Background(), scan, 10, quietLog())
	require.NoError(t, err)
	tree, err := fpgrowth.BuildTree(context.Background(), scan, table, 0, 3, quietLog())
	require.NoError(t, err)
	// c occurs in every transaction and is dropped; the transactions still count
	assert.Equal(t, 4, tree.Count())
	assert.Equal(t, map[string]int{"/a": 2, "/a/b": 1, "/b": 1}, paths(tree))
}

func TestInsertionOrderDoesNotMatter(t *testing.T) {
	transactions := randomTransactions(42, 300, 8)
	tree, _ := buildTree(t, transactions)
	reversed := make([][]string, len(transactions))
	for i, tr := range transactions {
		reversed[len(transactions)-1-i] = tr
	}
	tree2, _ := buildTree(t, reversed)
	assert.Equal(t, paths(tree), paths(tree2))
	assert.Equal(t, tree.Count(), tree2.Count())
	for _, item := range tree.Order {
		assert.Len(t, tree2.Links[item], len(tree.Links[item]), item)
		assert.Equal(t, tree.Support(item), tree2.Support(item), item)
	}
}

func TestIsPath(t *testing.T) {
	tree := fpgrowth.NewTree(nil)
	assert.True(t, tree.IsPath())
	assert.True(t, tree.Empty())
	tree.Insert([]string{"a", "b", "c"}, 2)
	tree.Insert([]string{"a", "b"}, 1)
	assert.True(t, tree.IsPath())
	tree.Insert([]string{"a", "c"}, 1)
	assert.False(t, tree.IsPath())
}

func TestDescendants(t *testing.T) {
	tree, _ := buildTree(t, fixture)
	assert.Equal(t, tree.Size(), tree.Descendants(0))
	assert.Equal(t, 3, tree.Descendants(tree.Links["c"][0]))
	assert.Equal(t, 0, tree.Descendants(tree.Links["b"][0]))
}

func TestConditional(t *testing.T) {
	tree, _ := buildTree(t, fixture)
	cond := tree.Conditional("b", 0, 4)
	assert.Equal(t, []string{"b"}, cond.Prefix)
	assert.Equal(t, 2, cond.Count())
	assert.True(t, cond.IsPath())
	assert.Equal(t, map[string]int{"/c": 2, "/c/a": 1}, paths(cond))

	cond = tree.Conditional("a", 0, 4)
	assert.Equal(t, map[string]int{"/c": 2}, paths(cond))

	// c is at the top of the tree and has nothing above it
	cond = tree.Conditional("c", 0, 4)
	assert.True(t, cond.Empty())
	assert.Equal(t, 4, cond.Count())

	// the parent tree is untouched
	assert.Equal(t, map[string]int{"/c": 4, "/c/a": 2, "/c/a/b": 1, "/c/b": 1}, paths(tree))
}

func TestConditionalBounds(t *testing.T) {
	tree, _ := buildTree(t, fixture)
	assert.Equal(t, map[string]int{"/c": 2}, paths(tree.Conditional("b", 2, 4)))
	assert.Equal(t, map[string]int{"/a": 1}, paths(tree.Conditional("b", 0, 1)))
}

func TestConditionalIsSmaller(t *testing.T) {
	tree, _ := buildTree(t, randomTransactions(7, 200, 9))
	for _, item := range tree.Order {
		cond := tree.Conditional(item, 0, tree.Count())
		assert.LessOrEqual(t, cond.Count(), tree.Support(item), item)
		assert.Less(t, depth(cond), depth(tree), item)
		assert.LessOrEqual(t, cond.Size(), tree.Size(), item)
		assert.Equal(t, []string{item}, cond.Prefix)
		if cond.Empty() {
			continue
		}
		nested := cond.Conditional(cond.Order[len(cond.Order)-1], 0, tree.Count())
		assert.Equal(t, []string{item, cond.Order[len(cond.Order)-1]}, nested.Prefix)
		assert.Less(t, depth(nested), depth(cond), item)
	}
}

func TestRestrict(t *testing.T) {
	tree, _ := buildTree(t, fixture)
	restricted := tree.Restrict(3, 4)
	assert.Equal(t, 4, restricted.Count())
	assert.Equal(t, map[string]int{"/c": 4}, paths(restricted))

	same := tree.Restrict(0, 4)
	assert.Equal(t, paths(tree), paths(same))
	for _, item := range tree.Order {
		assert.Equal(t, tree.Support(item), same.Support(item))
	}
}
