// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/config"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/logutil"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "loop-sim",
		Short:         "Record and loop simulated audio and video streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCommand(), configCommand())
	return root
}

func runCommand() *cobra.Command {
	var (
		path       string
		tracks     int
		iterations int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the looping simulation",
		Long: "Record one audio loop per track and a video stream concurrently, " +
			"shut them at a fractional loop length and play them back",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			if tracks > 0 {
				cfg.Sim.Tracks = tracks
			}
			if iterations > 0 {
				cfg.Sim.Iterations = iterations
			}
			if err = cfg.Validate(); err != nil {
				return err
			}
			logutil.SetupMOLogger(&cfg.Log)
			defer logutil.LogClose()

			sim := newSimulator(cfg, logutil.GetGlobalLogger())
			defer sim.close()
			return sim.run()
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "TOML configuration file")
	cmd.Flags().IntVar(&tracks, "tracks", 0, "override sim.tracks")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "override sim.iterations")
	return cmd
}

func configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Default().Encode(cmd.OutOrStdout())
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
