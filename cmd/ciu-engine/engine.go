// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"io"

	"github.com/pdiddy/ciu-engine/internal/dispatch"
	"github.com/pdiddy/ciu-engine/internal/document"
	"github.com/pdiddy/ciu-engine/internal/persist"
	"github.com/pdiddy/ciu-engine/internal/rawfile"
	"github.com/pdiddy/ciu-engine/internal/reduce"
	"github.com/pdiddy/ciu-engine/pkg/types"
)

// engine wires the in-memory document store, the extraction cache and the
// database for one command invocation.
type engine struct {
	docs       *document.Store
	cache      *document.Cache
	db         *persist.Store
	dispatcher *dispatch.Dispatcher
}

// openEngine opens the document database and builds the pipeline around it.
// Status lines go to out, or through the logger when logging as JSON.
func openEngine(out io.Writer, opts ...document.Option) (*engine, error) {
	db, err := persist.NewStore(engineCfg.Store)
	if err != nil {
		return nil, err
	}

	docs := document.NewStore()
	opts = append([]document.Option{document.WithLogger(logger)}, opts...)
	cache := document.NewCache(docs, rawfile.NewReader(), reduce.NewEngine(engineCfg.Reduction, logger), opts...)

	return &engine{
		docs:       docs,
		cache:      cache,
		db:         db,
		dispatcher: dispatch.New(cache, statusSink(out), engineCfg.Dispatch, logger),
	}, nil
}

func statusSink(out io.Writer) dispatch.Sink {
	if engineCfg.Log.Format == "json" {
		return dispatch.NewLogSink(logger)
	}
	return dispatch.NewWriterSink(out)
}

func (e *engine) Close() error {
	return e.db.Close()
}

// load restores a persisted document into the in-memory store.
func (e *engine) load(ctx context.Context, id string) (types.Document, error) {
	doc, records, err := e.db.Load(ctx, id)
	if err != nil {
		return types.Document{}, err
	}
	if err := e.docs.Restore(doc, records); err != nil {
		return types.Document{}, err
	}
	return doc, nil
}

// save writes a document and all of its records back to the database.
func (e *engine) save(ctx context.Context, id string) error {
	doc, err := e.docs.Get(id)
	if err != nil {
		return err
	}
	records, err := e.docs.Records(id)
	if err != nil {
		return err
	}
	return e.db.Save(ctx, doc, records)
}

// run executes task inline, or on a dispatched goroutine when the
// dispatch.background setting is on.
func (e *engine) run(ctx context.Context, task dispatch.Task) error {
	if !engineCfg.Dispatch.Background {
		return e.dispatcher.Run(ctx, task)
	}
	e.dispatcher.Dispatch(ctx, task)
	return e.dispatcher.Wait()
}
