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
	"math"
	"sort"
	"strings"
)

const keySeparator = "\x1f"

// Key is the canonical form of an itemset: its items sorted and joined. Two itemsets with the same members have the
// same key.
type Key string

// NewKey returns the key of an itemset. The argument is not modified.
func NewKey(items []string) Key {
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)
	return Key(strings.Join(sorted, keySeparator))
}

// Items returns the sorted items of the key.
func (k Key) Items() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), keySeparator)
}

// Len returns the number of items of the key.
func (k Key) Len() int {
	if k == "" {
		return 0
	}
	return strings.Count(string(k), keySeparator) + 1
}

// Pattern is a frequent itemset with its support count.
type Pattern struct {
	Items   []string
	Support int
}

// Bounds restricts pattern mining. Supports are absolute transaction counts.
type Bounds struct {
	MinSupport int
	MaxSupport int
	MaxSize    int //maximum nr of items in a pattern, 0 is unbounded
}

// MinCount converts a minimum support ratio to the smallest transaction count that satisfies it.
func MinCount(ratio float64, population int) int {
	return int(math.Ceil(ratio*float64(population) - 1e-9))
}

// MaxCount converts a maximum support ratio to the largest transaction count that satisfies it.
func MaxCount(ratio float64, population int) int {
	return int(math.Floor(ratio*float64(population) + 1e-9))
}

// Patterns maps frequent itemsets to their support. Keys are kept in insertion order so iterating is reproducible.
type Patterns struct {
	Population int    //nr of transactions the supports are relative to
	Bounds     Bounds //bounds the patterns were mined with
	keys       []Key
	support    map[Key]int
}

// NewPatterns returns an empty pattern mapping.
func NewPatterns(population int, bounds Bounds) *Patterns {
	return &Patterns{Population: population, Bounds: bounds, support: map[Key]int{}}
}

// Add records an itemset with its support. Adding an itemset a second time keeps the first support.
func (p *Patterns) Add(items []string, support int) {
	key := NewKey(items)
	if _, ok := p.support[key]; ok {
		return
	}
	p.keys = append(p.keys, key)
	p.support[key] = support
}

// Len returns the number of patterns.
func (p *Patterns) Len() int {
	return len(p.keys)
}

// Keys returns the keys in insertion order. The slice must not be modified.
func (p *Patterns) Keys() []Key {
	return p.keys
}

// Count returns the support count of an itemset.
func (p *Patterns) Count(key Key) (int, bool) {
	n, ok := p.support[key]
	return n, ok
}

// Ratio returns the support of an itemset as a fraction of the population.
func (p *Patterns) Ratio(key Key) (float64, bool) {
	n, ok := p.support[key]
	if !ok || p.Population == 0 {
		return 0, ok
	}
	return float64(n) / float64(p.Population), true
}
