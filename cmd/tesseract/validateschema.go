package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateSchemaCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-schema",
		Short: "Load and validate the configured schema file without starting the server",
		RunE: func(c *cobra.Command, args []string) error {
			sch, err := loadSchema(root.cfg.SchemaPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(root.out, "schema %q: %d cube(s) ok\n", sch.Name, len(sch.Cubes))
			return nil
		},
	}
}
