package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/analytics-copilot/internal/executor"
	"github.com/sells-group/analytics-copilot/internal/model"
	"github.com/sells-group/analytics-copilot/internal/oracle"
	"github.com/sells-group/analytics-copilot/internal/pipeline"
	"github.com/sells-group/analytics-copilot/internal/retrieve"
	"github.com/sells-group/analytics-copilot/internal/schema"
	"github.com/sells-group/analytics-copilot/internal/sqlgen"
	"github.com/sells-group/analytics-copilot/internal/store"
)

// env bundles the wired pipeline and its resources for one command
// invocation.
type env struct {
	Orchestrator *pipeline.Orchestrator
	Schema       *schema.Cache
	Store        store.Store

	engine *sql.DB
}

func (e *env) Close() {
	if e.Store != nil {
		e.Store.Close()
	}
	if e.engine != nil {
		e.engine.Close()
	}
}

// persistRun records a completed set of answers as one run. The run is marked
// failed only when the answers could not be saved.
func persistRun(ctx context.Context, e *env, source string, records []model.AnswerRecord) error {
	run, err := e.Store.CreateRun(ctx, source, len(records))
	if err != nil {
		return err
	}
	if err := e.Store.SaveAnswers(ctx, run.ID, records); err != nil {
		if uerr := e.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusFailed); uerr != nil {
			zap.L().Warn("run status not updated", zap.String("run_id", run.ID), zap.Error(uerr))
		}
		return err
	}
	return e.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusComplete)
}

// initEnv wires the full pipeline from config: analytics engine, schema
// cache, retriever index, oracle, generator, and run store.
func initEnv(ctx context.Context) (*env, error) {
	engine, err := sql.Open("sqlite", cfg.Database.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open analytics database")
	}

	cache := schema.NewCache(engine)
	timeout := time.Duration(cfg.Database.QueryTimeout) * time.Second
	exec := executor.New(engine, timeout)

	idx, err := retrieve.NewIndex(cfg.Docs.Dir)
	if err != nil {
		engine.Close()
		return nil, err
	}

	// A nil oracle disables the classification and translation fallbacks;
	// heuristics and templates still run.
	orc := oracle.New(cfg.Oracle)
	if orc == nil {
		zap.L().Info("oracle disabled; running with heuristics and templates only")
	}

	var translator sqlgen.Translator
	var classifier pipeline.Classifier
	if orc != nil {
		translator = orc
		classifier = orc
	}

	gen := sqlgen.New(exec, cache, translator, cfg.Generator.MaxAttempts, 0)
	router := pipeline.NewRouter(classifier)
	o := pipeline.New(router, idx, gen, cfg.Retriever.TopK)

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		engine.Close()
		return nil, err
	}

	return &env{
		Orchestrator: o,
		Schema:       cache,
		Store:        st,
		engine:       engine,
	}, nil
}
