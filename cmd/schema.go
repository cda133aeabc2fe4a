package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/retail-copilot/internal/warehouse"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the warehouse schema seen by the agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		wh, err := warehouse.Open(cfg.Warehouse.Path)
		if err != nil {
			return eris.Wrap(err, "open warehouse")
		}
		defer wh.Close()

		schema, err := wh.Schema(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "introspect schema")
		}
		fmt.Println(schema)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
