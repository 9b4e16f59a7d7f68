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

import "math"

// Interest metrics of a rule A => C, computed from the support ratios of A∪C, A and C.

const (
	Support    = "support"
	Confidence = "confidence"
	Lift       = "lift"
	Leverage   = "leverage"
	Conviction = "conviction"
	RPF        = "rpf"
)

// Metric computes an interest measure from sAC, sA and sC.
type Metric func(sAC, sA, sC float64) float64

// MetricNames lists the metrics in output column order.
var MetricNames = []string{Support, Confidence, Lift, Leverage, Conviction, RPF}

// Metrics maps metric names to their definition.
var Metrics = map[string]Metric{
	Support: func(sAC, sA, sC float64) float64 {
		return sAC
	},
	Confidence: func(sAC, sA, sC float64) float64 {
		return sAC / sA
	},
	Lift: func(sAC, sA, sC float64) float64 {
		return sAC / (sA * sC)
	},
	Leverage: func(sAC, sA, sC float64) float64 {
		return sAC - sA*sC
	},
	// infinite when the antecedent always implies the consequent
	Conviction: func(sAC, sA, sC float64) float64 {
		if sAC == sA {
			return math.Inf(1)
		}
		return (1 - sC) / (1 - sAC/sA)
	},
	RPF: func(sAC, sA, sC float64) float64 {
		return sAC * sAC / sA
	},
}

// Rule is an association rule A => C with its metrics.
type Rule struct {
	Seq        uint64   //sequence number in order of discovery
	Antecedent []string //sorted items of A
	Consequent []string //sorted items of C
	Support    float64
	Confidence float64
	Lift       float64
	Leverage   float64
	Conviction float64 //+Inf when undefined
	RPF        float64
}

// NewRule computes all metrics of A => C.
func NewRule(antecedent, consequent []string, sAC, sA, sC float64) Rule {
	return Rule{
		Antecedent: antecedent,
		Consequent: consequent,
		Support:    Metrics[Support](sAC, sA, sC),
		Confidence: Metrics[Confidence](sAC, sA, sC),
		Lift:       Metrics[Lift](sAC, sA, sC),
		Leverage:   Metrics[Leverage](sAC, sA, sC),
		Conviction: Metrics[Conviction](sAC, sA, sC),
		RPF:        Metrics[RPF](sAC, sA, sC),
	}
}

// Value returns a metric of the rule by name.
func (r *Rule) Value(metric string) float64 {
	switch metric {
	case Support:
		return r.Support
	case Confidence:
		return r.Confidence
	case Lift:
		return r.Lift
	case Leverage:
		return r.Leverage
	case Conviction:
		return r.Conviction
	case RPF:
		return r.RPF
	}
	return math.NaN()
}
