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
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"assoc/app"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runCmdConfig struct {
	*rootCmdConfig
	goal  string
	cores int
	force bool
}

func runCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &runCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run association discovery",
		Long:  `Build the FP-tree, mine frequent patterns and score association rules, up to the goal of the run`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("goal") {
				cfg.Run.Goal = config.goal
			}
			if flags.Changed("cores") {
				cfg.Run.Cores = config.cores
			}
			if flags.Changed("force") {
				cfg.Run.Force = config.force
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.Run.Cores > 0 {
				runtime.GOMAXPROCS(cfg.Run.Cores)
			}
			logger, closeLog, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer closeLog()
			log := logrus.NewEntry(logger)
			log.Info(programMessage())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			start := time.Now()
			model := &app.Model{Config: cfg, Log: log}
			result, err := model.Run(ctx)
			if err != nil {
				log.WithError(err).Error("Run failed.")
				return err
			}
			log.WithFields(logrus.Fields{
				"run":         result.RunID.String(),
				"population":  result.Population,
				"items":       result.Items,
				"nodes":       result.Nodes,
				"patterns":    result.Patterns,
				"rules":       result.Rules,
				"elapsed":     time.Since(start).Round(time.Millisecond).String(),
				"max_workers": runtime.GOMAXPROCS(0),
			}).Info("Run complete.")
			return nil
		},
	}
	cmd.Flags().StringVar(&(config.goal), "goal", "", "overrides run.goal: tree, patterns or associations")
	cmd.Flags().IntVar(&(config.cores), "cores", 0, "the number of cores to use, 0 uses all cores")
	cmd.Flags().BoolVar(&(config.force), "force", false, "overwrite existing output")
	return cmd
}
