/*
Copyright © 2024 Metal toolbox authors <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"
	"os"

	"github.com/metal-toolbox/cfgcollector/internal/log"
	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/spf13/cobra"
)

var (
	args = &model.Args{}
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   model.AppName,
	Short: "cfgcollector collects running configurations from network devices over SSH",
	Run: func(cmd *cobra.Command, _ []string) {
		if err := run(cmd.Context(), args); err != nil {
			os.Exit(1)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVar(&args.DevicesFile, "devices-file", "", "YAML file listing the devices to collect from")

	rootCmd.PersistentFlags().
		StringVar(&args.ConfigFile, "config", "settings.yaml", "configuration file")

	rootCmd.PersistentFlags().
		BoolVar(&args.DryRun, "dry-run", false, "log the intended connections and output files without touching the network")

	rootCmd.PersistentFlags().
		BoolVar(&args.Diagnose, "diagnose", false, "run environment diagnostics instead of collecting")

	rootCmd.PersistentFlags().
		StringVar(&args.LogLevel, "log-level", "info", "set console logging level - trace, debug, info, warn, error")

	rootCmd.PersistentFlags().
		StringVar(&args.LogFile, "log-file", log.DefaultFile, "rotated debug log file, empty to disable")

	rootCmd.PersistentFlags().
		BoolVarP(&args.EnableProfiling, "enable-pprof", "", false, "Enable profiling endpoint at: http://localhost:9091")

	if err := rootCmd.MarkPersistentFlagRequired("devices-file"); err != nil {
		fmt.Fprintln(os.Stderr, "failed to mark required flag:", err)
		os.Exit(1)
	}
}
