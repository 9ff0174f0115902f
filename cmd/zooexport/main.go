// Command zooexport exports pretrained image classifiers to ONNX.
//
// Run without arguments it exports ResNet-18 with its default pretrained
// weights to data/resnet18.onnx, input "input.0" and output "output.0".
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/zooexport/internal/exporter"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "zooexport",
		Usage:   "Export pretrained image classifiers to ONNX",
		Version: exporter.Version,
		Flags:   globalFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Present() {
				return cli.Exit(fmt.Sprintf("unknown command %q", c.Args().First()), 1)
			}
			opts := defaultExportOptions()
			return runExport(ctx, c, &opts)
		},
		Commands: []*cli.Command{
			exportCmd(),
			inspectCmd(),
			modelsCmd(),
			weightsCmd(),
		},
	}
}
