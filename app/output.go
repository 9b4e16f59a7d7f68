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
	"encoding/csv"
	"math"
	"strconv"
	"strings"

	"assoc/association"
	"assoc/fpgrowth"
	"assoc/utils"

	"github.com/pkg/errors"
)

// RuleHeader is the header of association files.
var RuleHeader = []string{"antecedent", "consequent", "support", "confidence", "lift", "leverage", "conviction", "rpf"}

// ItemHeader is the header of item support files.
var ItemHeader = []string{"item", "support"}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// formatConviction renders an infinite conviction as an empty field.
func formatConviction(f float64) string {
	if math.IsInf(f, 0) {
		return ""
	}
	return formatFloat(f)
}

// ruleRecord renders a rule as a row of the association file. Items are joined with commas in sorted order.
func ruleRecord(r *association.Rule) []string {
	return []string{
		strings.Join(r.Antecedent, ","),
		strings.Join(r.Consequent, ","),
		formatFloat(r.Support),
		formatFloat(r.Confidence),
		formatFloat(r.Lift),
		formatFloat(r.Leverage),
		formatConviction(r.Conviction),
		formatFloat(r.RPF),
	}
}

// CSVRuleSink writes rules to a CSV file. The file only gets its final name on Commit; an aborted run leaves the
// rules written so far in a file with the .partial suffix.
type CSVRuleSink struct {
	file   *utils.AtomicFile
	writer *csv.Writer
}

// NewCSVRuleSink creates the association file and writes its header.
func NewCSVRuleSink(path string, force bool) (*CSVRuleSink, error) {
	file, err := utils.CreateAtomic(path, force)
	if err != nil {
		return nil, err
	}
	s := &CSVRuleSink{file: file, writer: csv.NewWriter(file)}
	if err := s.writer.Write(RuleHeader); err != nil {
		_ = file.Abort()
		return nil, errors.Wrapf(err, "write header of %s", path)
	}
	return s, nil
}

// Write implements association.Sink.
func (s *CSVRuleSink) Write(rules []association.Rule) error {
	for i := range rules {
		if err := s.writer.Write(ruleRecord(&rules[i])); err != nil {
			return errors.Wrapf(err, "write %s", s.file.Path())
		}
	}
	s.writer.Flush()
	return errors.Wrapf(s.writer.Error(), "write %s", s.file.Path())
}

// Commit implements association.Sink.
func (s *CSVRuleSink) Commit() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		_ = s.file.Abort()
		return errors.Wrapf(err, "write %s", s.file.Path())
	}
	return s.file.Commit()
}

// Abort implements association.Sink.
func (s *CSVRuleSink) Abort() error {
	s.writer.Flush()
	return s.file.Abort()
}

// MultiSink writes every batch to all of its sinks.
type MultiSink []association.Sink

// Write implements association.Sink.
func (m MultiSink) Write(rules []association.Rule) error {
	for _, s := range m {
		if err := s.Write(rules); err != nil {
			return err
		}
	}
	return nil
}

// Commit implements association.Sink. Sinks that were not committed yet are aborted after a failure.
func (m MultiSink) Commit() error {
	for i, s := range m {
		if err := s.Commit(); err != nil {
			_ = MultiSink(m[i+1:]).Abort()
			return err
		}
	}
	return nil
}

// Abort implements association.Sink.
func (m MultiSink) Abort() error {
	var first error
	for _, s := range m {
		if err := s.Abort(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WriteItemsCSV writes the support ratio of the given items to a CSV file.
func WriteItemsCSV(path string, table *fpgrowth.SupportTable, items []string, force bool) error {
	file, err := utils.CreateAtomic(path, force)
	if err != nil {
		return err
	}
	writer := csv.NewWriter(file)
	_ = writer.Write(ItemHeader)
	for _, item := range items {
		_ = writer.Write([]string{item, formatFloat(table.Ratio(item))})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = file.Abort()
		return errors.Wrapf(err, "write %s", path)
	}
	return file.Commit()
}
