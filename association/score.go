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

package association

import (
	"assoc/fpgrowth"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/combin"
)

// ErrMissingSubset means a pattern was mined without one of its subsets. Scoring cannot continue because the
// metrics of the rule cannot be computed.
var ErrMissingSubset = errors.New("subset of a pattern is missing from the mined patterns")

// Split divides an itemset in an antecedent and a consequent.
type Split struct {
	Antecedent []string
	Consequent []string
}

// Splits returns all 2^k-2 ways to divide an itemset of k items in a non-empty antecedent and consequent. Larger
// antecedents come first. Both sides keep the order of items.
func Splits(items []string) []Split {
	k := len(items)
	if k < 2 {
		return nil
	}
	splits := make([]Split, 0, 1<<k-2)
	member := make([]bool, k)
	for size := k - 1; size >= 1; size-- {
		gen := combin.NewCombinationGenerator(k, size)
		idx := make([]int, size)
		for gen.Next() {
			gen.Combination(idx)
			for i := range member {
				member[i] = false
			}
			for _, i := range idx {
				member[i] = true
			}
			split := Split{Antecedent: make([]string, 0, size), Consequent: make([]string, 0, k-size)}
			for i, item := range items {
				if member[i] {
					split.Antecedent = append(split.Antecedent, item)
				} else {
					split.Consequent = append(split.Consequent, item)
				}
			}
			splits = append(splits, split)
		}
	}
	return splits
}

// Scorer derives the rules of frequent itemsets. It only reads the patterns, so it can be shared by workers.
type Scorer struct {
	patterns *fpgrowth.Patterns
	filters  []RuleFilter
}

// NewScorer returns a scorer for the given patterns and thresholds.
func NewScorer(patterns *fpgrowth.Patterns, th Thresholds) (*Scorer, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{patterns: patterns, filters: th.Filters()}, nil
}

func (s *Scorer) ratio(items []string) (float64, error) {
	r, ok := s.patterns.Ratio(fpgrowth.NewKey(items))
	if !ok {
		return 0, errors.Wrapf(ErrMissingSubset, "%v", items)
	}
	return r, nil
}

// Score evaluates every split of a pattern and returns the rules that pass the thresholds. Sequence numbers are
// left for the caller to assign.
func (s *Scorer) Score(key fpgrowth.Key) ([]Rule, error) {
	if key.Len() < 2 {
		return nil, nil
	}
	items := key.Items()
	sAC, err := s.ratio(items)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	for _, split := range Splits(items) {
		sA, err := s.ratio(split.Antecedent)
		if err != nil {
			return nil, errors.WithMessagef(err, "antecedent of %v", items)
		}
		sC, err := s.ratio(split.Consequent)
		if err != nil {
			return nil, errors.WithMessagef(err, "consequent of %v", items)
		}
		rule := NewRule(split.Antecedent, split.Consequent, sAC, sA, sC)
		if ApplyRuleFilters(s.filters, &rule) {
			rules = append(rules, rule)
		}
	}
	return rules, nil
}
