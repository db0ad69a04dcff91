/*
 * Copyright 2024 The EdgeLink Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cli

import (
	"fmt"
	"io"
	"log"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <flows.json|flows.yaml>",
		Short: "Build a flows document without starting it",
		Long: `Parse the document and construct every standalone node and flow. Unknown
node types, bad node configuration, wires to missing nodes and cycles are
reported. No node is started.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(io.Discard, "", 0)
			if rootOpts.Verbose {
				logger = log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
			}
			e, err := loadEngine(args[0], types.WithLogger(logger))
			if err != nil {
				return err
			}
			if err = e.Build(); err != nil {
				return err
			}
			nodes := 0
			for _, f := range e.Flows() {
				nodes += len(f.Nodes())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d flows, %d nodes\n", args[0], len(e.Flows()), nodes)
			return nil
		},
	}
	return cmd
}
