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

// Package config holds the settings of an association discovery run. Settings are read from a YAML file; database
// credentials and a few run settings can be overridden from the environment.
package config

import (
	"fmt"
	"os"
	"regexp"

	"assoc/association"
	"assoc/fpgrowth"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Goals of a run. Each goal includes the previous ones.
const (
	GoalTree         = "tree"
	GoalPatterns     = "patterns"
	GoalAssociations = "associations"
)

// Transaction source kinds and CSV layouts.
const (
	SourceCSV    = "csv"
	SourceSQL    = "sql"
	FormatLong   = "long"
	FormatMatrix = "matrix"
)

// EnvPrefix is the prefix of environment overrides, e.g. ASSOC_SOURCE_DSN.
const EnvPrefix = "assoc"

// Config is the configuration of one run.
type Config struct {
	Run          RunConfig          `yaml:"run"`
	Population   PopulationConfig   `yaml:"population"`
	Items        ItemsConfig        `yaml:"items"`
	Tree         TreeConfig         `yaml:"tree"`
	Patterns     PatternsConfig     `yaml:"patterns"`
	Associations AssociationsConfig `yaml:"associations"`
	Output       DatabaseConfig     `yaml:"output"`
	Log          LogConfig          `yaml:"log"`
}

type RunConfig struct {
	Goal    string `yaml:"goal"`
	Cores   int    `yaml:"cores"`    //0 uses all cores
	Force   bool   `yaml:"force"`    //overwrite existing output
	BinSize int    `yaml:"bin_size"` //rows per window when reading the source
	Output  string `yaml:"output"`   //directory for output files
}

type PopulationConfig struct {
	Source string         `yaml:"source"`
	CSV    CSVConfig      `yaml:"csv"`
	SQL    DatabaseConfig `yaml:"sql"`
	Size   int            `yaml:"size"` //nr of encounters to sample, 0 uses all
	Seed   uint32         `yaml:"seed"`
}

type CSVConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes a database connection. Queries are only used for sources; every query returns
// encounter and item columns, and its items get the prefix of the query, e.g. "C-" for conditions.
type DatabaseConfig struct {
	Driver  string        `yaml:"driver"`
	DSN     string        `yaml:"dsn"`
	Queries []QueryConfig `yaml:"queries"`
}

type QueryConfig struct {
	Prefix string `yaml:"prefix"`
	SQL    string `yaml:"sql"`
}

// ItemsConfig bounds the items of the item table and the tree.
type ItemsConfig struct {
	MinSupport float64 `yaml:"min_support"`
	MaxSupport float64 `yaml:"max_support"`
	CSV        string  `yaml:"csv"` //item table file, relative to the output directory
	SQL        bool    `yaml:"sql"` //also write the item table to the output database
}

type TreeConfig struct {
	Load bool   `yaml:"load"`
	Save bool   `yaml:"save"`
	Path string `yaml:"path"`
}

type PatternsConfig struct {
	MinSupport *float64 `yaml:"min_support"`
	MaxSupport *float64 `yaml:"max_support"`
	MaxSize    int      `yaml:"max_size"`
	Load       bool     `yaml:"load"`
	Save       bool     `yaml:"save"`
	Path       string   `yaml:"path"`
}

type AssociationsConfig struct {
	association.Thresholds `yaml:",inline"`
	BatchSize              int    `yaml:"batch_size"`
	QueueSize              int    `yaml:"queue_size"`
	CSV                    string `yaml:"csv"`   //rule file, relative to the output directory, empty disables it
	SQL                    bool   `yaml:"sql"`   //write rules to the output database
	Index                  bool   `yaml:"index"` //create indexes on the rule table
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Error is a configuration error on one field.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Default returns the configuration used for fields missing from a file.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Goal:    GoalAssociations,
			BinSize: 100000,
			Output:  ".",
		},
		Population: PopulationConfig{
			Source: SourceCSV,
			CSV:    CSVConfig{Format: FormatLong},
		},
		Items: ItemsConfig{MaxSupport: 1, CSV: "items.csv"},
		Associations: AssociationsConfig{
			BatchSize: association.DefaultBatchSize,
			QueueSize: association.DefaultQueueSize,
			CSV:       "associations.csv",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Float returns a pointer to v, for required ratio fields.
func Float(v float64) *float64 {
	return &v
}

type environment struct {
	SourceDSN string `envconfig:"SOURCE_DSN"`
	OutputDSN string `envconfig:"OUTPUT_DSN"`
	Cores     int    `envconfig:"CORES" default:"-1"`
	LogLevel  string `envconfig:"LOG_LEVEL"`
}

// Load reads a configuration file on top of the defaults and applies environment overrides. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.ApplyEnvironment(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvironment overrides settings from ASSOC_* environment variables.
func (c *Config) ApplyEnvironment() error {
	var env environment
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return errors.Wrap(err, "environment")
	}
	if env.SourceDSN != "" {
		c.Population.SQL.DSN = env.SourceDSN
	}
	if env.OutputDSN != "" {
		c.Output.DSN = env.OutputDSN
	}
	if env.Cores >= 0 {
		c.Run.Cores = env.Cores
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	return nil
}

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

func checkRatio(field string, v float64) error {
	if v < 0 || v > 1 {
		return invalid(field, "%v is not a ratio in [0,1]", v)
	}
	return nil
}

func checkDriver(field, driver string) error {
	switch driver {
	case "sqlite3", "postgres", "mysql":
		return nil
	}
	return invalid(field, "unsupported driver %q", driver)
}

// Includes is true if the goal of the run includes the given goal.
func (c *Config) Includes(goal string) bool {
	order := map[string]int{GoalTree: 0, GoalPatterns: 1, GoalAssociations: 2}
	return order[c.Run.Goal] >= order[goal]
}

// NeedsTree is true if the run mines patterns from a tree rather than loading them.
func (c *Config) NeedsTree() bool {
	return !(c.Includes(GoalPatterns) && c.Patterns.Load)
}

// NeedsOutputDB is true if the run writes to the output database.
func (c *Config) NeedsOutputDB() bool {
	return c.Items.SQL && c.NeedsSource() || c.Includes(GoalAssociations) && c.Associations.SQL
}

// NeedsSource is true if the run scans transactions.
func (c *Config) NeedsSource() bool {
	return c.NeedsTree() && !c.Tree.Load
}

// Validate checks the configuration before any work starts.
func (c *Config) Validate() error {
	switch c.Run.Goal {
	case GoalTree, GoalPatterns, GoalAssociations:
	default:
		return invalid("run.goal", "unknown goal %q", c.Run.Goal)
	}
	if c.Run.Cores < 0 {
		return invalid("run.cores", "must not be negative")
	}
	if c.Run.BinSize <= 0 {
		return invalid("run.bin_size", "must be positive")
	}
	if c.NeedsSource() {
		if err := c.validatePopulation(); err != nil {
			return err
		}
	}
	if err := checkRatio("items.min_support", c.Items.MinSupport); err != nil {
		return err
	}
	if err := checkRatio("items.max_support", c.Items.MaxSupport); err != nil {
		return err
	}
	if c.Items.MinSupport > c.Items.MaxSupport {
		return invalid("items.min_support", "exceeds items.max_support")
	}
	if c.NeedsTree() {
		if c.Tree.Load && c.Tree.Save {
			return invalid("tree", "cannot both load and save the tree")
		}
		if (c.Tree.Load || c.Tree.Save) && c.Tree.Path == "" {
			return invalid("tree.path", "required to load or save the tree")
		}
	}
	if c.Includes(GoalPatterns) {
		if err := c.validatePatterns(); err != nil {
			return err
		}
	}
	if c.Includes(GoalAssociations) {
		if err := c.validateAssociations(); err != nil {
			return err
		}
	}
	if c.NeedsOutputDB() {
		if err := checkDriver("output.driver", c.Output.Driver); err != nil {
			return err
		}
		if c.Output.DSN == "" {
			return invalid("output.dsn", "required to write to a database")
		}
	}
	return nil
}

func (c *Config) validatePopulation() error {
	p := c.Population
	if p.Size < 0 {
		return invalid("population.size", "must not be negative")
	}
	switch p.Source {
	case SourceCSV:
		if p.CSV.Path == "" {
			return invalid("population.csv.path", "required for a csv source")
		}
		if p.CSV.Format != FormatLong && p.CSV.Format != FormatMatrix {
			return invalid("population.csv.format", "unknown format %q", p.CSV.Format)
		}
	case SourceSQL:
		if err := checkDriver("population.sql.driver", p.SQL.Driver); err != nil {
			return err
		}
		if p.SQL.DSN == "" {
			return invalid("population.sql.dsn", "required for a sql source")
		}
		if len(p.SQL.Queries) == 0 {
			return invalid("population.sql.queries", "at least one query is required")
		}
		for i, q := range p.SQL.Queries {
			if q.SQL == "" {
				return invalid(fmt.Sprintf("population.sql.queries[%d].sql", i), "empty query")
			}
			if !prefixPattern.MatchString(q.Prefix) {
				return invalid(fmt.Sprintf("population.sql.queries[%d].prefix", i), "invalid prefix %q", q.Prefix)
			}
		}
	default:
		return invalid("population.source", "unknown source %q", p.Source)
	}
	return nil
}

func (c *Config) validatePatterns() error {
	p := c.Patterns
	if p.Load && p.Save {
		return invalid("patterns", "cannot both load and save the patterns")
	}
	if (p.Load || p.Save) && p.Path == "" {
		return invalid("patterns.path", "required to load or save the patterns")
	}
	if p.Load {
		if !c.Includes(GoalAssociations) {
			return invalid("patterns.load", "loaded patterns are only used by the associations goal")
		}
		return nil
	}
	if p.MinSupport == nil {
		return invalid("patterns.min_support", "required")
	}
	if p.MaxSupport == nil {
		return invalid("patterns.max_support", "required")
	}
	if err := checkRatio("patterns.min_support", *p.MinSupport); err != nil {
		return err
	}
	if err := checkRatio("patterns.max_support", *p.MaxSupport); err != nil {
		return err
	}
	if *p.MinSupport > *p.MaxSupport {
		return invalid("patterns.min_support", "exceeds patterns.max_support")
	}
	if p.MaxSize < 0 {
		return invalid("patterns.max_size", "must not be negative")
	}
	return nil
}

func (c *Config) validateAssociations() error {
	a := c.Associations
	if _, ok := a.Min[association.Support]; !ok {
		return invalid("associations.min.support", "required")
	}
	if _, ok := a.Min[association.Confidence]; !ok {
		return invalid("associations.min.confidence", "required")
	}
	if err := a.Thresholds.Validate(); err != nil {
		return &Error{Field: "associations", Reason: err.Error()}
	}
	if a.BatchSize <= 0 {
		return invalid("associations.batch_size", "must be positive")
	}
	if a.QueueSize <= 0 {
		return invalid("associations.queue_size", "must be positive")
	}
	if a.CSV == "" && !a.SQL {
		return invalid("associations", "no output: set csv or sql")
	}
	return nil
}

// ItemBounds converts the item support ratios to transaction counts.
func (c *Config) ItemBounds(population int) (int, int) {
	return fpgrowth.MinCount(c.Items.MinSupport, population), fpgrowth.MaxCount(c.Items.MaxSupport, population)
}

// PatternBounds converts the pattern mining settings to absolute bounds. Validate must have succeeded.
func (c *Config) PatternBounds(population int) fpgrowth.Bounds {
	return fpgrowth.Bounds{
		MinSupport: fpgrowth.MinCount(*c.Patterns.MinSupport, population),
		MaxSupport: fpgrowth.MaxCount(*c.Patterns.MaxSupport, population),
		MaxSize:    c.Patterns.MaxSize,
	}
}
