// Copyright 2025 Plugrail Team
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

	"github.com/plugrail/plugrail/internal/engine/bootstrap"
	"github.com/plugrail/plugrail/pkg/version"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "plugrail",
	Short: "plugrail is a multi-tenant plugin lifecycle orchestration service",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := bootstrap.NewApp(configFile)
		if err != nil {
			return err
		}
		return bootstrap.Run(app, cleanup)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "conf", "c", "conf.d/config.toml", "config file path")
	rootCmd.AddCommand(version.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
