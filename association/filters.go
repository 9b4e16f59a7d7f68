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
	"fmt"
	"strings"

	"assoc/fpgrowth"

	"github.com/pkg/errors"
)

// RuleFilter is a type to define a rule filter function. Such filters take as input a scored rule and return
// whether the rule passes the filter.
type RuleFilter func(r *Rule) bool

// ErrUnknownMetric is returned for thresholds on a metric that does not exist.
var ErrUnknownMetric = errors.New("unknown metric")

// MinFilter keeps rules whose metric is at least threshold.
func MinFilter(metric string, threshold float64) RuleFilter {
	return func(r *Rule) bool {
		return r.Value(metric) >= threshold
	}
}

// MaxFilter keeps rules whose metric is at most threshold.
func MaxFilter(metric string, threshold float64) RuleFilter {
	return func(r *Rule) bool {
		return r.Value(metric) <= threshold
	}
}

// ApplyRuleFilters is true if the rule passes all filters.
func ApplyRuleFilters(filters []RuleFilter, r *Rule) bool {
	for _, filter := range filters {
		if !filter(r) {
			return false
		}
	}
	return true
}

// Thresholds holds the minimum and maximum value per metric a rule needs to be reported.
type Thresholds struct {
	Min map[string]float64 `yaml:"min"`
	Max map[string]float64 `yaml:"max"`
}

// Validate checks that all metrics exist and that no minimum exceeds its maximum.
func (th Thresholds) Validate() error {
	for _, bounds := range []map[string]float64{th.Min, th.Max} {
		for metric := range bounds {
			if _, ok := Metrics[metric]; !ok {
				return errors.Wrapf(ErrUnknownMetric, "%q", metric)
			}
		}
	}
	for metric, min := range th.Min {
		if max, ok := th.Max[metric]; ok && min > max {
			return errors.Errorf("minimum %s %v exceeds maximum %v", metric, min, max)
		}
	}
	return nil
}

// Filters compiles the thresholds into rule filters, in metric column order.
func (th Thresholds) Filters() []RuleFilter {
	var filters []RuleFilter
	for _, metric := range MetricNames {
		if min, ok := th.Min[metric]; ok {
			filters = append(filters, MinFilter(metric, min))
		}
		if max, ok := th.Max[metric]; ok {
			filters = append(filters, MaxFilter(metric, max))
		}
	}
	return filters
}

// String renders the thresholds for logging.
func (th Thresholds) String() string {
	var parts []string
	for _, metric := range MetricNames {
		if v, ok := th.Min[metric]; ok {
			parts = append(parts, fmt.Sprintf("min_%s=%g", metric, v))
		}
		if v, ok := th.Max[metric]; ok {
			parts = append(parts, fmt.Sprintf("max_%s=%g", metric, v))
		}
	}
	return strings.Join(parts, " ")
}

// CheckBounds verifies that patterns mined with the given bounds can answer the thresholds. Rules are derived from
// mined patterns only, so asking for rules with less support than the patterns were mined with would silently
// return an incomplete result.
func CheckBounds(patterns *fpgrowth.Patterns, th Thresholds) error {
	if patterns.Population == 0 {
		return nil
	}
	min := th.Min[Support]
	if fpgrowth.MinCount(min, patterns.Population) < patterns.Bounds.MinSupport {
		return errors.Errorf("minimum support %v is below the support the patterns were mined with (%d of %d)",
			min, patterns.Bounds.MinSupport, patterns.Population)
	}
	max, ok := th.Max[Support]
	if !ok {
		max = 1
	}
	if fpgrowth.MaxCount(max, patterns.Population) > patterns.Bounds.MaxSupport {
		return errors.Errorf("maximum support %v exceeds the support the patterns were mined with (%d of %d)",
			max, patterns.Bounds.MaxSupport, patterns.Population)
	}
	return nil
}
