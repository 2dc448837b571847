/*
Copyright 2025.

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

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/chazu/zenassets/pkg/assetloader"
)

var setupLog = ctrl.Log.WithName("setup")

// Config holds the command-line configuration
type Config struct {
	LoadPath    string
	ZodSchemas  bool
	Policy      bool
	RuntimeDir  string
	RuntimeRoot string
	ConfigMap   string
	Namespace   string
	Timeout     time.Duration
}

// parseFlags parses command-line flags and returns configuration
func parseFlags() Config {
	cfg := Config{}
	flag.StringVar(&cfg.LoadPath, "load-path", "",
		"Directory holding the generated assets. Overrides the default runtime location.")
	flag.BoolVar(&cfg.ZodSchemas, "zod-schemas", false,
		"Load zod schemas from the default location and fail if they are missing.")
	flag.BoolVar(&cfg.Policy, "policy", true, "Also load the access policy definition.")
	flag.StringVar(&cfg.RuntimeDir, "runtime-dir", "",
		"Directory used as the runtime location. Defaults to the directory of this executable.")
	flag.StringVar(&cfg.RuntimeRoot, "runtime-root", assetloader.DefaultRuntimeRoot,
		"Generated output directory inside the runtime location.")
	flag.StringVar(&cfg.ConfigMap, "configmap", "",
		"Read the runtime location from a ConfigMap (name or namespace/name) instead of the filesystem.")
	flag.StringVar(&cfg.Namespace, "namespace", "default", "Namespace used for -configmap references without one.")
	flag.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "Timeout for reading the ConfigMap.")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	return cfg
}

// newLoaderConfig builds the loader configuration, reading the runtime
// location from a ConfigMap when requested
func newLoaderConfig(cfg Config) (assetloader.Config, error) {
	loaderCfg := assetloader.DefaultConfig()
	loaderCfg.RuntimeRoot = cfg.RuntimeRoot
	loaderCfg.TestMode = assetloader.TestModeFromEnv()

	switch {
	case cfg.ConfigMap != "":
		key, err := assetloader.ParseConfigMapRef(cfg.ConfigMap, cfg.Namespace)
		if err != nil {
			return loaderCfg, err
		}

		restConfig, err := ctrl.GetConfig()
		if err != nil {
			return loaderCfg, fmt.Errorf("failed to get kubeconfig: %w", err)
		}
		k8sClient, err := client.New(restConfig, client.Options{})
		if err != nil {
			return loaderCfg, fmt.Errorf("failed to create client: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()

		fsys, err := assetloader.NewConfigMapFS(ctx, k8sClient, key, cfg.RuntimeRoot)
		if err != nil {
			return loaderCfg, err
		}
		setupLog.Info("Using ConfigMap as runtime location", "configmap", key.String())
		loaderCfg.RuntimeFS = fsys

	case cfg.RuntimeDir != "":
		loaderCfg.RuntimeFS = os.DirFS(cfg.RuntimeDir)
	}

	return loaderCfg, nil
}

// assetSummary is the printed form of a loaded asset
type assetSummary struct {
	Name   string   `json:"name"`
	Source string   `json:"source"`
	Digest string   `json:"digest"`
	Models []string `json:"models,omitempty"`
}

type summary struct {
	ModelMeta  assetSummary  `json:"modelMeta"`
	Policy     *assetSummary `json:"policy,omitempty"`
	ZodSchemas *assetSummary `json:"zodSchemas,omitempty"`
}

func summarize(a assetloader.Asset) assetSummary {
	return assetSummary{Name: a.Name, Source: a.Source, Digest: a.Digest}
}

// run loads the requested assets and writes a JSON summary to out
func run(cfg Config, loader *assetloader.Loader, out io.Writer) error {
	bundle, err := loader.Load(assetloader.LoadOptions{
		LoadPath:          cfg.LoadPath,
		DefaultZodSchemas: cfg.ZodSchemas,
	})
	if err != nil {
		return err
	}

	s := summary{ModelMeta: summarize(bundle.ModelMeta.Asset)}

	if cfg.Policy {
		policy, err := loader.ResolvePolicy(cfg.LoadPath)
		if err != nil {
			return err
		}
		p := summarize(policy.Asset)
		s.Policy = &p
	}

	if bundle.ZodSchemas != nil {
		z := summarize(bundle.ZodSchemas.Asset)
		for model := range bundle.ZodSchemas.Models {
			z.Models = append(z.Models, model)
		}
		sort.Strings(z.Models)
		s.ZodSchemas = &z
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func main() {
	cfg := parseFlags()

	loaderCfg, err := newLoaderConfig(cfg)
	if err != nil {
		setupLog.Error(err, "unable to configure asset loader")
		os.Exit(1)
	}

	if err := run(cfg, assetloader.NewLoaderWithConfig(loaderCfg), os.Stdout); err != nil {
		setupLog.Error(err, "unable to load assets")
		os.Exit(1)
	}
}
