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

	"github.com/valyala/fastrand"
)

// defaultSeed replaces a zero seed, which would make the generator pick a random state.
const defaultSeed = 0x9e3779b9

// SampledSource restricts a source to a random sample of Size encounters. The sample only depends on the seed and
// the encounters of the source, so repeated scans and repeated runs see the same population.
type SampledSource struct {
	Source  EventSource
	Size    int
	Seed    uint32
	members map[string]bool
}

// Scan implements EventSource. The first scan draws the sample.
func (s *SampledSource) Scan(ctx context.Context, fn func(encounter, item string) error) error {
	if s.members == nil {
		members, err := s.draw(ctx)
		if err != nil {
			return err
		}
		s.members = members
	}
	return s.Source.Scan(ctx, func(encounter, item string) error {
		if s.members[encounter] {
			return fn(encounter, item)
		}
		return nil
	})
}

// Members returns the number of sampled encounters, or 0 before the first scan.
func (s *SampledSource) Members() int {
	return len(s.members)
}

// draw selects the encounters with reservoir sampling over one scan of the source.
func (s *SampledSource) draw(ctx context.Context) (map[string]bool, error) {
	var rng fastrand.RNG
	seed := s.Seed
	if seed == 0 {
		seed = defaultSeed
	}
	rng.Seed(seed)
	sample := make([]string, 0, s.Size)
	seen := 0
	current, started := "", false
	err := s.Source.Scan(ctx, func(encounter, item string) error {
		if started && encounter == current {
			return nil
		}
		current, started = encounter, true
		seen++
		if len(sample) < s.Size {
			sample = append(sample, encounter)
		} else if j := int(rng.Uint32n(uint32(seen))); j < s.Size {
			sample[j] = encounter
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	members := make(map[string]bool, len(sample))
	for _, encounter := range sample {
		members[encounter] = true
	}
	return members, nil
}
