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
	"database/sql"
	"os"
	"path/filepath"

	"assoc/association"
	"assoc/config"
	"assoc/fpgrowth"
	"assoc/utils"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Model runs the stages of an association discovery run: counting item support and building the FP-tree, mining
// frequent patterns and scoring association rules. The goal of the configuration decides where the run stops, and
// intermediate results can be saved and loaded so later runs can skip stages.
type Model struct {
	Config *config.Config
	Log    *logrus.Entry
}

// Result summarizes a run.
type Result struct {
	RunID      uuid.UUID
	Population int //nr of transactions
	Items      int //nr of items within the item bounds
	Nodes      int //nr of tree nodes
	Patterns   int
	Rules      int
}

// Run executes the run. The configuration must be valid.
func (m *Model) Run(ctx context.Context) (*Result, error) {
	cfg := m.Config
	result := &Result{RunID: uuid.New()}
	log := m.Log.WithField("run", result.RunID.String())
	log.WithField("goal", cfg.Run.Goal).Info("Starting run.")

	if err := os.MkdirAll(cfg.Run.Output, 0o755); err != nil {
		return nil, errors.Wrap(err, "create output directory")
	}
	var output *sql.DB
	if cfg.NeedsOutputDB() {
		db, err := OpenDB(ctx, cfg.Output.Driver, cfg.Output.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "output database")
		}
		defer db.Close()
		output = db
	}

	var tree *fpgrowth.Tree
	if cfg.NeedsTree() {
		var (
			table *fpgrowth.SupportTable
			err   error
		)
		if cfg.Tree.Load {
			tree, table, err = fpgrowth.LoadSnapshot(cfg.Tree.Path)
			if err != nil {
				return nil, err
			}
			log.WithFields(logrus.Fields{"path": cfg.Tree.Path, "nodes": tree.Size()}).Info("Loaded FP-tree.")
		} else {
			tree, table, err = m.buildTree(ctx, log, output, result)
			if err != nil {
				return nil, err
			}
		}
		if cfg.Tree.Save {
			if err := fpgrowth.SaveSnapshot(cfg.Tree.Path, tree, table, cfg.Run.Force); err != nil {
				return nil, err
			}
			log.WithField("path", cfg.Tree.Path).Info("Saved FP-tree.")
		}
		result.Population = table.Population
		result.Nodes = tree.Size()
	}
	if !cfg.Includes(config.GoalPatterns) {
		return result, nil
	}

	patterns, err := m.patterns(ctx, log, tree)
	if err != nil {
		return nil, err
	}
	result.Population = patterns.Population
	result.Patterns = patterns.Len()
	if !cfg.Includes(config.GoalAssociations) {
		return result, nil
	}

	th := cfg.Associations.Thresholds
	if err := association.CheckBounds(patterns, th); err != nil {
		return nil, err
	}
	sink, err := m.sink(ctx, output)
	if err != nil {
		return nil, err
	}
	alog := log.WithField("component", "associations")
	result.Rules, err = association.FindAssociations(ctx, patterns, th, association.Options{
		Workers:   cfg.Run.Cores,
		BatchSize: cfg.Associations.BatchSize,
		QueueSize: cfg.Associations.QueueSize,
	}, sink, utils.NewProgress(alog, "association"), alog)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// source returns the configured event source and a function that releases it.
func (m *Model) source(ctx context.Context) (EventSource, func(), error) {
	p := m.Config.Population
	var (
		src     EventSource
		release = func() {}
	)
	switch p.Source {
	case config.SourceSQL:
		db, err := OpenDB(ctx, p.SQL.Driver, p.SQL.DSN)
		if err != nil {
			return nil, nil, errors.Wrap(err, "population database")
		}
		src = &SQLSource{DB: db, Queries: p.SQL.Queries, BinSize: m.Config.Run.BinSize}
		release = func() { _ = db.Close() }
	default:
		src = &CSVSource{Path: p.CSV.Path, Format: p.CSV.Format}
	}
	if p.Size > 0 {
		src = &SampledSource{Source: src, Size: p.Size, Seed: p.Seed}
	}
	return src, release, nil
}

// buildTree runs both passes over the population and writes the item table.
func (m *Model) buildTree(ctx context.Context, log *logrus.Entry, output *sql.DB, result *Result) (*fpgrowth.Tree, *fpgrowth.SupportTable, error) {
	cfg := m.Config
	src, release, err := m.source(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer release()
	scan := Transactions(src)
	tlog := log.WithField("component", "tree")
	table, err := fpgrowth.CountSupport(ctx, scan, cfg.Run.BinSize, tlog)
	if err != nil {
		return nil, nil, err
	}
	min, max := cfg.ItemBounds(table.Population)
	items := table.Items(min, max)
	result.Items = len(items)
	if cfg.Items.CSV != "" {
		path := filepath.Join(cfg.Run.Output, cfg.Items.CSV)
		if err := WriteItemsCSV(path, table, items, cfg.Run.Force); err != nil {
			return nil, nil, err
		}
		tlog.WithField("path", path).Info("Wrote item support.")
	}
	if cfg.Items.SQL {
		if err := WriteItemsSQL(ctx, output, cfg.Output.Driver, table, items, cfg.Run.Force); err != nil {
			return nil, nil, err
		}
	}
	tree, err := fpgrowth.BuildTree(ctx, scan, table, min, max, tlog)
	if err != nil {
		return nil, nil, err
	}
	return tree, table, nil
}

// patterns mines the tree or loads the patterns of an earlier run.
func (m *Model) patterns(ctx context.Context, log *logrus.Entry, tree *fpgrowth.Tree) (*fpgrowth.Patterns, error) {
	cfg := m.Config.Patterns
	plog := log.WithField("component", "patterns")
	if cfg.Load {
		patterns, err := ReadPatterns(cfg.Path)
		if err != nil {
			return nil, err
		}
		plog.WithFields(logrus.Fields{"path": cfg.Path, "patterns": patterns.Len()}).Info("Loaded patterns.")
		return patterns, nil
	}
	bounds := m.Config.PatternBounds(tree.Count())
	plog.WithFields(logrus.Fields{
		"min":      bounds.MinSupport,
		"max":      bounds.MaxSupport,
		"max_size": bounds.MaxSize,
	}).Info("Mining frequent patterns.")
	patterns, err := fpgrowth.FindPatterns(ctx, tree, bounds, m.Config.Run.Cores, utils.NewProgress(plog, "pattern"), plog)
	if err != nil {
		return nil, err
	}
	if cfg.Save {
		if err := WritePatterns(cfg.Path, patterns, m.Config.Run.Force); err != nil {
			return nil, err
		}
		plog.WithField("path", cfg.Path).Info("Saved patterns.")
	}
	return patterns, nil
}

// sink opens the configured association outputs.
func (m *Model) sink(ctx context.Context, output *sql.DB) (association.Sink, error) {
	cfg := m.Config
	var sinks MultiSink
	if cfg.Associations.CSV != "" {
		s, err := NewCSVRuleSink(filepath.Join(cfg.Run.Output, cfg.Associations.CSV), cfg.Run.Force)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Associations.SQL {
		s, err := NewSQLRuleSink(ctx, output, cfg.Output.Driver, cfg.Run.Force, cfg.Associations.Index)
		if err != nil {
			_ = sinks.Abort()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}
