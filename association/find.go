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
	"context"
	"runtime"

	"assoc/fpgrowth"
	"assoc/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize = 100000
	DefaultQueueSize = 10
)

// Sink stores batches of rules. A sink is only used from one goroutine. Commit makes the output final; Abort
// discards it or marks it as incomplete.
type Sink interface {
	Write(rules []Rule) error
	Commit() error
	Abort() error
}

// Options configure the scoring harness.
type Options struct {
	Workers   int //nr of scoring goroutines, 0 uses GOMAXPROCS
	BatchSize int //nr of rules handed to the writer at once
	QueueSize int //nr of batches that may wait for the writer
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.BatchSize < 1 {
		o.BatchSize = DefaultBatchSize
	}
	if o.QueueSize < 1 {
		o.QueueSize = DefaultQueueSize
	}
	return o
}

// chunkSize leaves about four chunks per worker for load balancing.
func chunkSize(n, workers int) int {
	size := n / (workers * 4)
	if size < 1 {
		return 1
	}
	return size
}

// FindAssociations scores all patterns and writes the qualifying rules to sink. The pattern keys are cut in
// contiguous chunks that are scored by a pool of workers. Workers pass full batches to a single writer through a
// bounded queue, so fast workers block when the writer falls behind. If a worker or the sink fails, or ctx is
// cancelled, the remaining work is abandoned, the writer flushes what it received and the sink is aborted. It
// returns the number of rules written.
func FindAssociations(ctx context.Context, patterns *fpgrowth.Patterns, th Thresholds, opts Options, sink Sink,
	progress *utils.Progress, log *logrus.Entry) (int, error) {
	opts = opts.withDefaults()
	scorer, err := NewScorer(patterns, th)
	if err != nil {
		return 0, err
	}
	keys := patterns.Keys()
	chunk := chunkSize(len(keys), opts.Workers)
	log.WithFields(logrus.Fields{
		"patterns":   len(keys),
		"workers":    opts.Workers,
		"chunk":      chunk,
		"thresholds": th.String(),
	}).Info("Finding associations.")

	queue := make(chan []Rule, opts.QueueSize)
	g, gctx := errgroup.WithContext(ctx)
	written := 0
	g.Go(func() error {
		for batch := range queue {
			if err := sink.Write(batch); err != nil {
				return errors.Wrap(err, "write rules")
			}
			written += len(batch)
		}
		return nil
	})

	workers, wctx := errgroup.WithContext(gctx)
	workers.SetLimit(opts.Workers)
	for low := 0; low < len(keys); low += chunk {
		if wctx.Err() != nil {
			break
		}
		high := low + chunk
		if high > len(keys) {
			high = len(keys)
		}
		part := keys[low:high]
		workers.Go(func() error {
			return scoreChunk(wctx, scorer, part, opts.BatchSize, queue, progress)
		})
	}
	werr := workers.Wait()
	close(queue)
	if err := g.Wait(); err != nil && (werr == nil || errors.Is(werr, context.Canceled)) {
		werr = err
	}
	if werr == nil {
		werr = ctx.Err()
	}
	progress.Done()
	if werr != nil {
		if err := sink.Abort(); err != nil {
			log.WithError(err).Error("Could not abort the association output.")
		}
		return written, werr
	}
	if err := sink.Commit(); err != nil {
		return written, errors.Wrap(err, "commit rules")
	}
	log.WithField("rules", written).Info("Wrote associations.")
	return written, nil
}

// scoreChunk scores a contiguous range of pattern keys and sends the rules in batches.
func scoreChunk(ctx context.Context, scorer *Scorer, keys []fpgrowth.Key, batchSize int, queue chan<- []Rule,
	progress *utils.Progress) error {
	send := func(batch []Rule) error {
		select {
		case queue <- batch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	var batch []Rule
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		rules, err := scorer.Score(key)
		if err != nil {
			return err
		}
		if len(rules) == 0 {
			continue
		}
		last := progress.Add(uint64(len(rules)))
		first := last - uint64(len(rules)) + 1
		for i := range rules {
			rules[i].Seq = first + uint64(i)
			batch = append(batch, rules[i])
			if len(batch) == batchSize {
				if err := send(batch); err != nil {
					return err
				}
				batch = nil
			}
		}
	}
	if len(batch) > 0 {
		return send(batch)
	}
	return nil
}
