package main

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/analytics-copilot/internal/model"
)

// questionRecord is the on-disk question format: one JSON object per line in
// a .jsonl file, or a list in a .yaml fixture.
type questionRecord struct {
	ID         string `json:"id" yaml:"id"`
	Question   string `json:"question" yaml:"question"`
	FormatHint string `json:"format_hint" yaml:"format_hint"`
}

// readQuestions loads questions from a .jsonl or .yaml/.yml file.
func readQuestions(path string) ([]model.Question, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return readQuestionsYAML(path)
	default:
		return readQuestionsJSONL(path)
	}
}

func readQuestionsJSONL(path string) ([]model.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open questions %s", path)
	}
	defer f.Close()

	var questions []model.Question
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec questionRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, eris.Wrapf(err, "parse %s line %d", path, line)
		}
		q, err := toQuestion(rec)
		if err != nil {
			return nil, eris.Wrapf(err, "%s line %d", path, line)
		}
		questions = append(questions, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "read questions %s", path)
	}
	return questions, nil
}

func readQuestionsYAML(path string) ([]model.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read questions %s", path)
	}

	var recs []questionRecord
	if err := yaml.Unmarshal(data, &recs); err != nil {
		return nil, eris.Wrapf(err, "parse questions %s", path)
	}

	questions := make([]model.Question, 0, len(recs))
	for i, rec := range recs {
		q, err := toQuestion(rec)
		if err != nil {
			return nil, eris.Wrapf(err, "%s entry %d", path, i)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func toQuestion(rec questionRecord) (model.Question, error) {
	if rec.ID == "" {
		return model.Question{}, eris.New("question id is required")
	}
	if strings.TrimSpace(rec.Question) == "" {
		return model.Question{}, eris.Errorf("question %s has empty text", rec.ID)
	}
	return model.Question{
		ID:         rec.ID,
		Text:       rec.Question,
		FormatHint: rec.FormatHint,
	}, nil
}
