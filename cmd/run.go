package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/analytics-copilot/internal/model"
)

var (
	askID   string
	askHint string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question and print the answer record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		id := askID
		if id == "" {
			id = uuid.New().String()
		}
		q := model.Question{ID: id, Text: args[0], FormatHint: askHint}

		record := e.Orchestrator.Answer(ctx, q)

		if err := persistRun(ctx, e, "cli", []model.AnswerRecord{record}); err != nil {
			// The answer is already computed; a persistence failure should not
			// hide it from the caller.
			zap.L().Warn("run not persisted", zap.Error(err))
		}

		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal answer record")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askID, "id", "", "question id (defaults to a random UUID)")
	askCmd.Flags().StringVar(&askHint, "hint", "", "format hint: int, float, string, list, or object")
	rootCmd.AddCommand(askCmd)
}
