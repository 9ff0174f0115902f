package main

import "github.com/urfave/cli/v3"

var (
	configFile string
	logLevel   string
	logFormat  string
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default: user config dir)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       "text",
			Destination: &logFormat,
		},
	}
}

func exportFlags(o *exportOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "architecture to export (see `zooexport models`)",
			Value:       o.model,
			Destination: &o.model,
		},
		&cli.StringFlag{
			Name:        "weights",
			Aliases:     []string{"w"},
			Usage:       "weights source: default, none, an https URL or a .safetensors path",
			Value:       o.weights,
			Destination: &o.weights,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "destination .onnx file (default: data/<model>.onnx)",
			Destination: &o.output,
		},
		&cli.StringFlag{
			Name:        "input-name",
			Usage:       "graph input name",
			Value:       o.inputName,
			Destination: &o.inputName,
		},
		&cli.StringFlag{
			Name:        "output-name",
			Usage:       "graph output name",
			Value:       o.outputName,
			Destination: &o.outputName,
		},
		&cli.Int64Flag{
			Name:        "opset",
			Usage:       "ONNX opset version",
			Value:       o.opset,
			Destination: &o.opset,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for the random sample input (default: random)",
			Destination: &o.seed,
		},
		&cli.StringFlag{
			Name:        "sample-image",
			Usage:       "trace on a PNG or JPEG instead of random input",
			Destination: &o.sampleImage,
		},
		&cli.BoolFlag{
			Name:        "no-fold-bn",
			Usage:       "keep BatchNormalization nodes after convolutions",
			Destination: &o.noFoldBN,
		},
		&cli.BoolFlag{
			Name:        "manifest",
			Usage:       "write <output>.json next to the model",
			Destination: &o.manifest,
		},
		cacheDirFlag(&o.cacheDir),
	}
}

func cacheDirFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "cache-dir",
		Usage:       "weights cache directory (default: $ZOOEXPORT_CACHE_DIR or user cache dir)",
		Destination: dst,
	}
}
