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
	"context"
	"encoding/csv"
	"io"
	"strings"

	"assoc/config"
	"assoc/utils"

	"github.com/pkg/errors"
)

// Parsing encounter files.

// CSVSource reads events from a CSV file, optionally gzip compressed. Two layouts are supported:
//
//	long:   a header, then one row per event: encounter_id, item_id
//	matrix: a header encounter_id, item1, item2, ... then one row per encounter with a 0/1 cell per item
//
// Rows of an encounter must be contiguous in the long layout.
type CSVSource struct {
	Path   string
	Format string
	Comma  rune //field delimiter, ',' when zero
}

// checkEvery is the nr of rows between checks for cancellation.
const checkEvery = 4096

// Scan implements EventSource.
func (s *CSVSource) Scan(ctx context.Context, fn func(encounter, item string) error) error {
	file, err := utils.Open(s.Path)
	if err != nil {
		return err
	}
	defer file.Close()
	reader := csv.NewReader(file)
	if s.Comma != 0 {
		reader.Comma = s.Comma
	}
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read header of %s", s.Path)
	}
	switch s.Format {
	case config.FormatMatrix:
		items := make([]string, len(header))
		for i, item := range header {
			items[i] = strings.TrimSpace(item)
		}
		return s.scan(ctx, reader, func(record []string) error {
			return scanMatrixRow(items, record, fn)
		})
	case config.FormatLong, "":
		return s.scan(ctx, reader, func(record []string) error {
			if len(record) < 2 {
				return errors.Errorf("expected encounter and item, got %d fields", len(record))
			}
			return fn(strings.TrimSpace(record[0]), strings.TrimSpace(record[1]))
		})
	}
	return errors.Errorf("unknown csv format %q", s.Format)
}

func (s *CSVSource) scan(ctx context.Context, reader *csv.Reader, row func(record []string) error) error {
	for ctr := 1; ; ctr++ {
		if ctr%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", s.Path)
		}
		if err := row(record); err != nil {
			line, _ := reader.FieldPos(0)
			return errors.Wrapf(err, "%s:%d", s.Path, line)
		}
	}
}

// scanMatrixRow emits the items marked in one row of the dense encounter matrix. An encounter without items is
// still reported with an empty item, so it counts towards the population.
func scanMatrixRow(items, record []string, fn func(encounter, item string) error) error {
	if len(record) != len(items) {
		return errors.Errorf("expected %d fields, got %d", len(items), len(record))
	}
	encounter := strings.TrimSpace(record[0])
	found := false
	for i := 1; i < len(record); i++ {
		switch strings.TrimSpace(record[i]) {
		case "", "0":
			continue
		case "1":
		default:
			return errors.Errorf("cell %s is %q, expected 0 or 1", items[i], record[i])
		}
		found = true
		if err := fn(encounter, items[i]); err != nil {
			return err
		}
	}
	if !found {
		return fn(encounter, "")
	}
	return nil
}
