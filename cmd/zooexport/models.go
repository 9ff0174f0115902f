package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/zooexport/internal/zoo"
)

func modelsCmd() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List the architectures zooexport can export",
		Action: func(ctx context.Context, c *cli.Command) error {
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tINPUT\tCLASSES\tDESCRIPTION")
			for _, e := range zoo.Entries() {
				name := e.Name
				if name == zoo.DefaultModel {
					name += " *"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%dx%d\t%d\t%s\n",
					name, e.Config.InputSize, e.Config.InputSize, e.Config.NumClasses, e.Description)
			}
			return tw.Flush()
		},
	}
}
