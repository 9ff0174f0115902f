package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/zooexport/internal/onnx"
)

func inspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Summarize an exported ONNX file",
		ArgsUsage: "<file.onnx>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return cli.Exit("inspect takes exactly one .onnx file", 1)
			}
			if _, _, err := setup(ctx, c); err != nil {
				return err
			}
			info, err := onnx.GetModelInfo(c.Args().First())
			if err != nil {
				return err
			}
			printInfo(os.Stdout, info)
			return nil
		},
	}
}

func printInfo(w io.Writer, info *onnx.ModelInfo) {
	_, _ = fmt.Fprintf(w, "ir %d, opset %d, producer %s %s\n",
		info.IRVersion, info.OpsetVersion, info.ProducerName, info.ProducerVersion)
	if info.GraphName != "" {
		_, _ = fmt.Fprintf(w, "graph %s\n", info.GraphName)
	}
	for _, in := range info.Inputs {
		_, _ = fmt.Fprintf(w, "  input   %s\n", in)
	}
	for _, out := range info.Outputs {
		_, _ = fmt.Fprintf(w, "  output  %s\n", out)
	}
	_, _ = fmt.Fprintf(w, "nodes %d, initializers %d, params %d\n", info.NodeCount, info.WeightCount, info.ParamCount)

	ops := make([]string, 0, len(info.OpCounts))
	for op := range info.OpCounts {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	for _, op := range ops {
		_, _ = fmt.Fprintf(w, "  %-20s %d\n", op, info.OpCounts[op])
	}
	for _, kv := range info.Metadata {
		_, _ = fmt.Fprintf(w, "meta %s=%s\n", kv.Key, kv.Value)
	}
}
