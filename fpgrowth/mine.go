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
	"runtime"
	"sort"

	"assoc/utils"

	"github.com/exascience/pargo/parallel"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/combin"
)

// EmitFunc receives a frequent itemset and its support. The items slice is owned by the receiver.
type EmitFunc func(items []string, support int)

func withPrefix(prefix []string, extra int) []string {
	set := make([]string, len(prefix), len(prefix)+extra)
	copy(set, prefix)
	return set
}

// Mine enumerates the frequent itemsets of a tree and passes them to emit. A tree that is a single path is
// enumerated combinatorially. Otherwise every item is emitted together with the prefix of the tree, and the
// conditional tree of the item is mined recursively. The support bounds prune the items of each conditional tree;
// the size bound stops branching once the prefix is full.
func Mine(ctx context.Context, t *Tree, b Bounds, emit EmitFunc) error {
	if t.IsPath() {
		minePath(t, b, emit)
		return nil
	}
	if b.MaxSize > 0 && len(t.Prefix) >= b.MaxSize {
		return nil
	}
	for _, item := range t.Order {
		set := append(withPrefix(t.Prefix, 1), item)
		emit(set, t.Support(item))
		if b.MaxSize > 0 && len(set) >= b.MaxSize {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := Mine(ctx, t.Conditional(item, b.MinSupport, b.MaxSupport), b, emit); err != nil {
			return err
		}
	}
	return nil
}

// minePath emits every combination of the items of a single path. The support of a combination is the count of
// its deepest node, which is the smallest count along the chain.
func minePath(t *Tree, b Bounds, emit EmitFunc) {
	items, counts := t.chain()
	budget := len(items)
	if b.MaxSize > 0 && b.MaxSize-len(t.Prefix) < budget {
		budget = b.MaxSize - len(t.Prefix)
	}
	for k := 1; k <= budget; k++ {
		gen := combin.NewCombinationGenerator(len(items), k)
		idx := make([]int, k)
		for gen.Next() {
			gen.Combination(idx)
			set := withPrefix(t.Prefix, k)
			support := counts[idx[0]]
			for _, i := range idx {
				set = append(set, items[i])
				if counts[i] < support {
					support = counts[i]
				}
			}
			emit(set, support)
		}
	}
}

// FindPatterns mines all frequent itemsets of a tree using a pool of workers. The items of the tree are emitted on
// the calling goroutine. Their conditional trees are projected in parallel and mined by at most workers goroutines,
// largest tree first. The result does not depend on the number of workers: per-item results are merged in item
// order. Items of the tree whose support falls outside the bounds are dropped before mining.
func FindPatterns(ctx context.Context, t *Tree, b Bounds, workers int, progress *utils.Progress, log *logrus.Entry) (*Patterns, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	patterns := NewPatterns(t.Count(), b)
	for _, item := range t.Order {
		if s := t.Support(item); s < b.MinSupport || s > b.MaxSupport {
			t = t.Restrict(b.MinSupport, b.MaxSupport)
			break
		}
	}
	for _, item := range t.Order {
		patterns.Add(append(withPrefix(t.Prefix, 1), item), t.Support(item))
		progress.Add(1)
	}
	if t.Empty() || b.MaxSize == 1 {
		progress.Done()
		return patterns, nil
	}
	units := make([]*Tree, len(t.Order))
	parallel.Range(0, len(units), 0, func(low, high int) {
		for i := low; i < high; i++ {
			units[i] = t.Conditional(t.Order[i], b.MinSupport, b.MaxSupport)
		}
	})
	schedule := make([]int, len(units))
	for i := range schedule {
		schedule[i] = i
	}
	sort.SliceStable(schedule, func(i, j int) bool {
		return units[schedule[i]].Size() > units[schedule[j]].Size()
	})
	log.WithFields(logrus.Fields{
		"units":   len(units),
		"workers": workers,
		"largest": units[schedule[0]].Size(),
	}).Info("Mining conditional trees.")
	results := make([][]Pattern, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, i := range schedule {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			return Mine(gctx, units[i], b, func(items []string, support int) {
				results[i] = append(results[i], Pattern{Items: items, Support: support})
				progress.Add(1)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, unit := range results {
		for _, p := range unit {
			patterns.Add(p.Items, p.Support)
		}
	}
	progress.Done()
	return patterns, nil
}
