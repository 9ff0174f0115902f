package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/zooexport/internal/backend/cpu"
	"github.com/born-ml/zooexport/internal/loader"
	"github.com/born-ml/zooexport/internal/logger"
	"github.com/born-ml/zooexport/internal/tensor"
	"github.com/born-ml/zooexport/internal/zoo"
)

func weightsCmd() *cli.Command {
	return &cli.Command{
		Name:  "weights",
		Usage: "Manage safetensors weights",
		Commands: []*cli.Command{
			weightsFetchCmd(),
			weightsInitCmd(),
		},
	}
}

func weightsFetchCmd() *cli.Command {
	var (
		spec     string
		cacheDir string
	)
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download weights into the cache and check them against the model",
		ArgsUsage: "<model>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "weights",
				Usage:       "weights source (default: the model's pretrained weights)",
				Value:       "default",
				Destination: &spec,
			},
			cacheDirFlag(&cacheDir),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cfg, err := setup(ctx, c)
			if err != nil {
				return err
			}
			if cfg.CacheDir != "" && !c.IsSet("cache-dir") {
				cacheDir = cfg.CacheDir
			}
			entry, err := zoo.Lookup(modelArg(c))
			if err != nil {
				return err
			}
			src, err := zoo.ParseSource(spec, entry)
			if err != nil {
				return err
			}
			if cacheDir == "" {
				if cacheDir, err = zoo.CacheDir(); err != nil {
					return err
				}
			}
			model, err := zoo.NewResNet[tensor.Backend](entry.Config, tensor.NewRand(0), cpu.New())
			if err != nil {
				return err
			}
			info, err := zoo.Load[tensor.Backend](ctx, &zoo.Fetcher{CacheDir: cacheDir}, model, src)
			if err != nil {
				return err
			}
			if info.Path == "" {
				return cli.Exit("weights source is none; nothing to fetch", 1)
			}
			fmt.Printf("%s\n  sha256 %s, %d tensors\n", info.Path, info.SHA256, info.Tensors)
			return nil
		},
	}
}

func weightsInitCmd() *cli.Command {
	var (
		out  string
		seed int64
	)
	return &cli.Command{
		Name:      "init",
		Usage:     "Write freshly initialized weights for a model",
		ArgsUsage: "<model>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Usage:       "destination .safetensors file",
				Required:    true,
				Destination: &out,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "initialization seed",
				Destination: &seed,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, _, err := setup(ctx, c)
			if err != nil {
				return err
			}
			name := modelArg(c)
			if err := initWeights(name, out, seed); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("wrote weights", "model", name, "path", out, "seed", seed)
			return nil
		},
	}
}

// initWeights writes the initial state dict of the named model, including
// batch norm running statistics.
func initWeights(name, path string, seed int64) error {
	model, err := zoo.Build[tensor.Backend](name, tensor.NewRand(uint64(seed)), cpu.New())
	if err != nil {
		return err
	}
	meta := map[string]string{
		"format":       "pt",
		"architecture": name,
		"seed":         strconv.FormatInt(seed, 10),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create weights directory: %w", err)
	}
	return loader.WriteFile(path, model.StateDict(), meta)
}

func modelArg(c *cli.Command) string {
	if c.Args().Present() {
		return c.Args().First()
	}
	return zoo.DefaultModel
}
