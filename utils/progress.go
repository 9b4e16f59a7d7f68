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

package utils

import (
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// Progress is a counter shared by the workers of one computation. Every time the count passes a power of two, a
// message is logged, e.g. "Found pattern 1024.". The counter is handed to each worker explicitly.
type Progress struct {
	count     atomic.Uint64
	milestone atomic.Uint64 // next power of two to announce
	noun      string        // what is being counted, e.g. "pattern"
	log       *logrus.Entry
}

// NewProgress creates a counter that logs milestones for the given noun to log.
func NewProgress(log *logrus.Entry, noun string) *Progress {
	p := &Progress{noun: noun, log: log}
	p.milestone.Store(1)
	return p
}

// Add increments the counter by n and returns the new total. The values total-n+1 .. total are reserved for the
// caller, which makes Add usable for handing out sequence numbers.
func (p *Progress) Add(n uint64) uint64 {
	total := p.count.Add(n)
	for {
		m := p.milestone.Load()
		if total < m {
			return total
		}
		next := m << 1
		for next <= total {
			next <<= 1
		}
		// only the worker that moves the milestone announces it
		if p.milestone.CompareAndSwap(m, next) {
			p.announce(total)
			return total
		}
	}
}

// Count returns the current total.
func (p *Progress) Count() uint64 {
	return p.count.Load()
}

// Done logs the final total.
func (p *Progress) Done() {
	p.announce(p.count.Load())
}

func (p *Progress) announce(n uint64) {
	if p.log == nil {
		return
	}
	p.log.WithField("count", n).Infof("Found %s %s.", p.noun, humanize.Comma(int64(n)))
}
