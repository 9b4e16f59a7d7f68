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

package association_test

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"assoc/association"
	"assoc/fpgrowth"
	"assoc/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

type memorySink struct {
	rules     []association.Rule
	batches   int
	failAfter int //fail on this write, 0 never fails
	committed bool
	aborted   bool
}

func (s *memorySink) Write(rules []association.Rule) error {
	s.batches++
	if s.failAfter > 0 && s.batches >= s.failAfter {
		return errors.New("disk full")
	}
	s.rules = append(s.rules, rules...)
	return nil
}

func (s *memorySink) Commit() error {
	s.committed = true
	return nil
}

func (s *memorySink) Abort() error {
	s.aborted = true
	return nil
}

func ruleSet(rules []association.Rule) map[string]string {
	result := map[string]string{}
	for _, r := range rules {
		key := strings.Join(r.Antecedent, ",") + "=>" + strings.Join(r.Consequent, ",")
		result[key] = fmt.Sprintf("%.9f %.9f %.9f %.9f %.9f %.9f",
			r.Support, r.Confidence, r.Lift, r.Leverage, r.Conviction, r.RPF)
	}
	return result
}

// abPatterns holds sA = 0.5, sB = 0.4 and sAB = 0.2 over a population of 100.
func abPatterns() *fpgrowth.Patterns {
	p := fpgrowth.NewPatterns(100, fpgrowth.Bounds{MaxSupport: 100})
	p.Add([]string{"A"}, 50)
	p.Add([]string{"B"}, 40)
	p.Add([]string{"A", "B"}, 20)
	return p
}

// fullPatterns builds all subsets of nofItems items with a support derived from the subset.
func fullPatterns(nofItems int) *fpgrowth.Patterns {
	population := 1 << nofItems
	p := fpgrowth.NewPatterns(population, fpgrowth.Bounds{MaxSupport: population})
	for mask := 1; mask < 1<<nofItems; mask++ {
		var items []string
		for j := 0; j < nofItems; j++ {
			if mask&(1<<j) != 0 {
				items = append(items, fmt.Sprintf("D%d", j))
			}
		}
		// supports shrink with the number of items, which keeps them consistent with subsets
		p.Add(items, population>>len(items)+mask%3)
	}
	return p
}

func TestMetrics(t *testing.T) {
	r := association.NewRule([]string{"A"}, []string{"B"}, 0.2, 0.5, 0.4)
	assert.InDelta(t, 0.2, r.Support, 1e-12)
	assert.InDelta(t, 0.4, r.Confidence, 1e-12)
	assert.InDelta(t, 1.0, r.Lift, 1e-12)
	assert.InDelta(t, 0.0, r.Leverage, 1e-12)
	assert.InDelta(t, 0.08, r.RPF, 1e-12)
	assert.InDelta(t, 1.0, r.Conviction, 1e-12)
	assert.InDelta(t, 0.4, r.Value(association.Confidence), 1e-12)
	assert.True(t, math.IsNaN(r.Value("zeal")))
}

func TestConvictionInfinity(t *testing.T) {
	r := association.NewRule([]string{"A"}, []string{"B"}, 0.3, 0.3, 0.6)
	assert.True(t, math.IsInf(r.Conviction, 1))
	assert.InDelta(t, 1.0, r.Confidence, 1e-12)
}

func TestSplits(t *testing.T) {
	assert.Empty(t, association.Splits([]string{"a"}))
	for k, expected := range map[int]int{2: 2, 3: 6, 4: 14} {
		var items []string
		for i := 0; i < k; i++ {
			items = append(items, fmt.Sprintf("i%d", i))
		}
		splits := association.Splits(items)
		assert.Len(t, splits, expected)
		seen := map[string]bool{}
		for _, s := range splits {
			assert.NotEmpty(t, s.Antecedent)
			assert.NotEmpty(t, s.Consequent)
			assert.Equal(t, k, len(s.Antecedent)+len(s.Consequent))
			key := strings.Join(s.Antecedent, ",")
			assert.False(t, seen[key], "duplicate split %s", key)
			seen[key] = true
		}
		// largest antecedents first
		assert.Len(t, splits[0].Antecedent, k-1)
		assert.Len(t, splits[len(splits)-1].Antecedent, 1)
	}
}

func TestScore(t *testing.T) {
	scorer, err := association.NewScorer(abPatterns(), association.Thresholds{})
	require.NoError(t, err)
	rules, err := scorer.Score(fpgrowth.NewKey([]string{"A", "B"}))
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, []string{"A"}, rules[0].Antecedent)
	assert.InDelta(t, 0.4, rules[0].Confidence, 1e-12)
	assert.Equal(t, []string{"B"}, rules[1].Antecedent)
	assert.InDelta(t, 0.5, rules[1].Confidence, 1e-12)

	rules, err = scorer.Score(fpgrowth.NewKey([]string{"A"}))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestScoreThresholds(t *testing.T) {
	th := association.Thresholds{Min: map[string]float64{association.Confidence: 0.45}}
	scorer, err := association.NewScorer(abPatterns(), th)
	require.NoError(t, err)
	rules, err := scorer.Score(fpgrowth.NewKey([]string{"A", "B"}))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"B"}, rules[0].Antecedent)

	th = association.Thresholds{
		Min: map[string]float64{association.Confidence: 0.3},
		Max: map[string]float64{association.Confidence: 0.45},
	}
	scorer, err = association.NewScorer(abPatterns(), th)
	require.NoError(t, err)
	rules, err = scorer.Score(fpgrowth.NewKey([]string{"A", "B"}))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"A"}, rules[0].Antecedent)
}

func TestScoreMissingSubset(t *testing.T) {
	p := fpgrowth.NewPatterns(10, fpgrowth.Bounds{MaxSupport: 10})
	p.Add([]string{"A"}, 5)
	p.Add([]string{"A", "B"}, 2)
	scorer, err := association.NewScorer(p, association.Thresholds{})
	require.NoError(t, err)
	_, err = scorer.Score(fpgrowth.NewKey([]string{"A", "B"}))
	assert.ErrorIs(t, err, association.ErrMissingSubset)
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, association.Thresholds{Min: map[string]float64{"lift": 1.2}}.Validate())
	err := association.Thresholds{Min: map[string]float64{"zeal": 1}}.Validate()
	assert.ErrorIs(t, err, association.ErrUnknownMetric)
	err = association.Thresholds{
		Min: map[string]float64{"lift": 2},
		Max: map[string]float64{"lift": 1},
	}.Validate()
	assert.Error(t, err)
	_, err = association.NewScorer(abPatterns(), association.Thresholds{Max: map[string]float64{"zeal": 1}})
	assert.Error(t, err)
}

func TestCheckBounds(t *testing.T) {
	p := fpgrowth.NewPatterns(100, fpgrowth.Bounds{MinSupport: 2, MaxSupport: 80})
	ok := association.Thresholds{
		Min: map[string]float64{association.Support: 0.015},
		Max: map[string]float64{association.Support: 0.8},
	}
	assert.NoError(t, association.CheckBounds(p, ok))
	low := association.Thresholds{Min: map[string]float64{association.Support: 0.01}, Max: ok.Max}
	assert.Error(t, association.CheckBounds(p, low))
	// without a maximum, rules up to full support are expected
	assert.Error(t, association.CheckBounds(p, association.Thresholds{Min: ok.Min}))
}

func TestFindAssociations(t *testing.T) {
	sink := &memorySink{}
	progress := utils.NewProgress(quietLog(), "association")
	n, err := association.FindAssociations(context.Background(), abPatterns(), association.Thresholds{},
		association.Options{Workers: 2}, sink, progress, quietLog())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, sink.committed)
	assert.False(t, sink.aborted)
	assert.Equal(t, uint64(2), progress.Count())
	seqs := map[uint64]bool{}
	for _, r := range sink.rules {
		seqs[r.Seq] = true
	}
	assert.Equal(t, map[uint64]bool{1: true, 2: true}, seqs)
}

func TestFindAssociationsCompleteness(t *testing.T) {
	// every pattern of size k contributes 2^k-2 rules: 4 items give 6*2 + 4*6 + 1*14 = 50 rules
	sink := &memorySink{}
	_, err := association.FindAssociations(context.Background(), fullPatterns(4), association.Thresholds{},
		association.Options{Workers: 3, BatchSize: 7}, sink, utils.NewProgress(quietLog(), "association"), quietLog())
	require.NoError(t, err)
	assert.Len(t, sink.rules, 50)
	assert.Len(t, ruleSet(sink.rules), 50)
	for _, r := range sink.rules {
		assert.NotZero(t, r.Seq)
	}
}

func TestFindAssociationsWorkerInvariance(t *testing.T) {
	patterns := fullPatterns(7)
	th := association.Thresholds{Min: map[string]float64{association.Confidence: 0.3, association.Lift: 1.0}}
	run := func(workers, batch int) map[string]string {
		sink := &memorySink{}
		_, err := association.FindAssociations(context.Background(), patterns, th,
			association.Options{Workers: workers, BatchSize: batch, QueueSize: 2}, sink,
			utils.NewProgress(quietLog(), "association"), quietLog())
		require.NoError(t, err)
		return ruleSet(sink.rules)
	}
	one := run(1, 100000)
	assert.NotEmpty(t, one)
	assert.Equal(t, one, run(8, 100000))
	assert.Equal(t, one, run(8, 3))
}

func TestFindAssociationsSinkFailure(t *testing.T) {
	sink := &memorySink{failAfter: 2}
	_, err := association.FindAssociations(context.Background(), fullPatterns(6), association.Thresholds{},
		association.Options{Workers: 4, BatchSize: 5, QueueSize: 1}, sink,
		utils.NewProgress(quietLog(), "association"), quietLog())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, sink.aborted)
	assert.False(t, sink.committed)
}

func TestFindAssociationsWorkerFailure(t *testing.T) {
	p := fullPatterns(5)
	p.Add([]string{"X", "Y"}, 1) // neither X nor Y was mined
	sink := &memorySink{}
	_, err := association.FindAssociations(context.Background(), p, association.Thresholds{},
		association.Options{Workers: 4}, sink, utils.NewProgress(quietLog(), "association"), quietLog())
	assert.ErrorIs(t, err, association.ErrMissingSubset)
	assert.True(t, sink.aborted)
	assert.False(t, sink.committed)
}

func TestFindAssociationsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &memorySink{}
	_, err := association.FindAssociations(ctx, fullPatterns(5), association.Thresholds{},
		association.Options{Workers: 2}, sink, utils.NewProgress(quietLog(), "association"), quietLog())
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, sink.aborted)
}
