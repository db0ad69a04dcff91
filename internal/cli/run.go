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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/builtin/aspect"
	"github.com/edgelinkgo/edgelink/engine"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// ShutdownTimeout bounds how long a stop may take once a signal arrived.
var ShutdownTimeout = 10 * time.Second

// RunOptions holds the flags of the run command.
type RunOptions struct {
	EnvFile     string
	MetricsAddr string
	Properties  map[string]string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}
	cmd := &cobra.Command{
		Use:   "run <flows.json|flows.yaml>",
		Short: "Start a flows document and run it until interrupted",
		Long: `Load a flows document, start every standalone node and flow, then wait
for SIGINT or SIGTERM and stop the engine in reverse order.

Variables from the env file are loaded before the document is parsed.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runFlows(ctx, rootOpts, opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.EnvFile, "env", ".env", "env file loaded before start; ignored when missing")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9100")
	cmd.Flags().StringToStringVarP(&opts.Properties, "property", "p", nil, "engine property key=value, repeatable")
	return cmd
}

func loadEnv(file string) error {
	if file == "" {
		return nil
	}
	if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", file, err)
	}
	return nil
}

func runFlows(ctx context.Context, rootOpts *RootOptions, opts *RunOptions, file string, cmd *cobra.Command) error {
	if err := loadEnv(opts.EnvFile); err != nil {
		return err
	}
	logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	options := []types.Option{
		types.WithLogger(logger),
		types.WithProperties(opts.Properties),
	}
	if rootOpts.Verbose {
		options = append(options, types.WithAspects(&aspect.Debug{}))
	}
	var server *http.Server
	if opts.MetricsAddr != "" {
		metrics := aspect.NewMetrics()
		registry := prometheus.NewRegistry()
		registry.MustRegister(metrics)
		options = append(options, types.WithAspects(metrics))
		server = &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	e, err := loadEngine(file, options...)
	if err != nil {
		return err
	}
	if err = e.Start(ctx); err != nil {
		return err
	}
	logger.Printf("engine %s started with %d flows", e.Id(), len(e.Flows()))

	if server != nil {
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server: %v", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Printf("engine %s stopping", e.Id())
	stopCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if server != nil {
		_ = server.Shutdown(stopCtx)
	}
	return e.Stop(stopCtx)
}

// loadEngine reads a flows document and loads it into a new engine, choosing the
// parser from the file extension.
func loadEngine(file string, opts ...types.Option) (*engine.Engine, error) {
	dsl, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	opts = append(opts, types.WithParser(engine.ParserFor(filepath.Ext(file))))
	e := engine.New(engine.NewConfig(opts...))
	if err = e.Load(dsl); err != nil {
		return nil, fmt.Errorf("load %s: %w", file, err)
	}
	return e, nil
}
