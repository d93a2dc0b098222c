package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/analytics-copilot/internal/model"
)

var (
	batchOutput string
	batchFormat string
)

var batchCmd = &cobra.Command{
	Use:   "batch [questions file]",
	Short: "Answer a question file (.jsonl or .yaml) and write answer records",
	Long:  "Runs every question through the pipeline with bounded concurrency. Per-question failures become confidence-zero records in the output; the command fails only when input cannot be read or output cannot be written.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		questions, err := readQuestions(args[0])
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			return eris.Errorf("no questions in %s", args[0])
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		zap.L().Info("batch started",
			zap.String("source", args[0]),
			zap.Int("questions", len(questions)),
		)

		records := e.Orchestrator.Batch(ctx, questions, cfg.Batch.MaxConcurrentQuestions)

		if err := persistRun(ctx, e, args[0], records); err != nil {
			zap.L().Warn("run not persisted", zap.Error(err))
		}

		if err := writeRecords(records, batchOutput, batchFormat); err != nil {
			return err
		}

		answered := 0
		for _, r := range records {
			if r.Confidence > 0 {
				answered++
			}
		}
		zap.L().Info("batch complete",
			zap.Int("answered", answered),
			zap.Int("unanswered", len(records)-answered),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "output path (default: stdout)")
	batchCmd.Flags().StringVar(&batchFormat, "format", "jsonl", "output format: jsonl or xlsx")
	rootCmd.AddCommand(batchCmd)
}

func writeRecords(records []model.AnswerRecord, path, format string) error {
	switch strings.ToLower(format) {
	case "jsonl", "":
		return writeJSONL(records, path)
	case "xlsx":
		if path == "" {
			return eris.New("xlsx output requires --output")
		}
		return writeXLSX(records, path)
	default:
		return eris.Errorf("unknown output format %q", format)
	}
}

func writeJSONL(records []model.AnswerRecord, path string) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "create output %s", path)
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "marshal record %s", r.ID)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return eris.Wrap(err, "write output")
		}
	}
	return eris.Wrap(w.Flush(), "flush output")
}

func writeXLSX(records []model.AnswerRecord, path string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Answers")
	if err != nil {
		return eris.Wrap(err, "add answers sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"ID", "Final Answer", "SQL", "Confidence", "Explanation", "Citations"} {
		header.AddCell().Value = h
	}

	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().Value = r.ID
		row.AddCell().Value = renderAnswerValue(r.FinalAnswer)
		if r.SQL != nil {
			row.AddCell().Value = *r.SQL
		} else {
			row.AddCell()
		}
		row.AddCell().SetFloat(r.Confidence)
		row.AddCell().Value = r.Explanation
		row.AddCell().Value = renderCitations(r.Citations)
	}

	return eris.Wrapf(file.Save(path), "save %s", path)
}

func renderAnswerValue(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func renderCitations(cites []model.Citation) string {
	parts := make([]string, 0, len(cites))
	for _, c := range cites {
		parts = append(parts, fmt.Sprintf("%s:%s", c.Kind, c.SourceID))
	}
	return strings.Join(parts, "; ")
}
