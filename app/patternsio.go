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
	"io"
	"strconv"

	"assoc/fpgrowth"
	"assoc/utils"

	"github.com/pkg/errors"
)

const boundsTag = "#bounds"

// WritePatterns stores mined patterns so that a later run can score them with other thresholds. The first record
// holds the population and the mining bounds; every other record is a support count followed by the items.
func WritePatterns(path string, patterns *fpgrowth.Patterns, force bool) error {
	file, err := utils.CreateAtomic(path, force)
	if err != nil {
		return err
	}
	writer := csv.NewWriter(file)
	b := patterns.Bounds
	_ = writer.Write([]string{boundsTag, strconv.Itoa(patterns.Population), strconv.Itoa(b.MinSupport),
		strconv.Itoa(b.MaxSupport), strconv.Itoa(b.MaxSize)})
	var record []string
	for _, key := range patterns.Keys() {
		n, _ := patterns.Count(key)
		record = append(record[:0], strconv.Itoa(n))
		record = append(record, key.Items()...)
		_ = writer.Write(record)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = file.Abort()
		return errors.Wrapf(err, "write %s", path)
	}
	return file.Commit()
}

// ReadPatterns loads patterns stored with WritePatterns.
func ReadPatterns(path string) (*fpgrowth.Patterns, error) {
	file, err := utils.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Errorf("%s: empty pattern file", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if len(header) != 5 || header[0] != boundsTag {
		return nil, errors.Errorf("%s: expected a %s record", path, boundsTag)
	}
	var numbers [4]int
	for i := range numbers {
		if numbers[i], err = strconv.Atoi(header[i+1]); err != nil {
			return nil, errors.Wrapf(err, "%s: invalid bounds", path)
		}
	}
	patterns := fpgrowth.NewPatterns(numbers[0], fpgrowth.Bounds{
		MinSupport: numbers[1],
		MaxSupport: numbers[2],
		MaxSize:    numbers[3],
	})
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return patterns, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		if len(record) < 2 {
			line, _ := reader.FieldPos(0)
			return nil, errors.Errorf("%s:%d: a pattern needs a count and at least one item", path, line)
		}
		n, err := strconv.Atoi(record[0])
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, errors.Wrapf(err, "%s:%d: invalid count", path, line)
		}
		items := make([]string, len(record)-1)
		copy(items, record[1:])
		patterns.Add(items, n)
	}
}
