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

package main

import (
	"fmt"
	"os"
	"runtime"

	"assoc/config"

	"github.com/spf13/cobra"
)

/*
Assoc is a tool for association discovery over clinical encounters. It counts how often medical codes occur
together in encounters (e.g. hospital admissions), mines the frequent itemsets with FP-growth and scores association
rules between them.

Usage:
	assoc run --config assoc.yaml [flags]
	assoc validate --config assoc.yaml
	assoc version

Example:
	assoc run --config mimic.yaml --goal patterns --cores 16 --force

A run has three stages, selected with the goal:

tree
	Reads the encounters, counts the support of every item, writes the item table and builds the FP-tree. The tree
	can be saved and loaded by later runs so the encounters need not be read again.
patterns
	Mines all itemsets whose support lies within patterns.min_support and patterns.max_support, with at most
	patterns.max_size items. Patterns can be saved and loaded by later runs.
associations
	Scores every split A => C of every pattern with support, confidence, lift, leverage, conviction and rpf, and
	writes the rules that pass the associations.min and associations.max thresholds to CSV and/or a database.

The flags are:

--config file
	The YAML configuration of the run. Database credentials may be passed through ASSOC_SOURCE_DSN and
	ASSOC_OUTPUT_DSN instead.
--log-level level
	Overrides log.level: debug, info, warn or error.
--goal tree | patterns | associations
	Overrides run.goal.
--cores nr
	Sets the number of cores assoc uses. 0 uses all cores.
--force
	Overwrite existing output files and tables.
*/

const (
	programVersion = 0.1
	programName    = "assoc"
)

func programMessage() string {
	return fmt.Sprint(programName, " version ", programVersion, " compiled with ", runtime.Version())
}

type rootCmdConfig struct {
	configPath string
	logLevel   string
}

func main() {
	if err := cliParser().Execute(); err != nil {
		os.Exit(1)
	}
}

func cliParser() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "assoc discovers associations between medical codes",
		Long:         `A tool to mine frequent itemsets from clinical encounters with FP-growth and score association rules`,
		SilenceUsage: true,
	}
	rootConfig := &rootCmdConfig{}
	rootCmd.PersistentFlags().StringVarP(&(rootConfig.configPath), "config", "c", "", "path to the YAML configuration of the run (required)")
	rootCmd.PersistentFlags().StringVar(&(rootConfig.logLevel), "log-level", "", "overrides log.level")
	rootCmd.AddCommand(versionCmd(), runCmd(rootConfig), validateCmd(rootConfig))
	return rootCmd
}

// load reads and validates the configuration named by the flags.
func (rcc *rootCmdConfig) load() (*config.Config, error) {
	if rcc.configPath == "" {
		return nil, fmt.Errorf("required config flag was not set")
	}
	cfg, err := config.Load(rcc.configPath)
	if err != nil {
		return nil, err
	}
	if rcc.logLevel != "" {
		cfg.Log.Level = rcc.logLevel
	}
	return cfg, nil
}
