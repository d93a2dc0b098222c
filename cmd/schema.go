package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/analytics-copilot/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the analytics database schema as seen by the pipeline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		engine, err := sql.Open("sqlite", cfg.Database.Path)
		if err != nil {
			return eris.Wrap(err, "open analytics database")
		}
		defer engine.Close()

		ctx, cancel := contextWithQueryTimeout(ctx)
		defer cancel()

		info, err := schema.NewCache(engine).Info(ctx)
		if err != nil {
			return err
		}

		fmt.Print(info.Summary())
		return nil
	},
}

func contextWithQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(cfg.Database.QueryTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
