package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/hook"

	"debate-arena/internal/status"
)

// PocketBase adapts a core.App to the Store interface. Documents map onto
// record fields; Subscribe rides the app's record hooks.
type PocketBase struct {
	app    core.App
	nextID atomic.Int64
}

func NewPocketBase(app core.App) *PocketBase {
	return &PocketBase{app: app}
}

func (p *PocketBase) Get(_ context.Context, collection, id string) (Document, error) {
	record, err := p.app.FindRecordById(collection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	return recordToDocument(record), nil
}

func (p *PocketBase) Set(_ context.Context, collection, id string, doc Document) error {
	record, err := p.app.FindRecordById(collection, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find %s/%s: %w", collection, id, err)
		}
		col, err := p.app.FindCollectionByNameOrId(collection)
		if err != nil {
			return fmt.Errorf("find collection %s: %w", collection, err)
		}
		record = core.NewRecord(col)
		record.Set("id", id)
	}

	record.Load(doc)
	if err := p.app.Save(record); err != nil {
		return fmt.Errorf("save %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *PocketBase) Update(_ context.Context, collection, id string, fields Document) error {
	record, err := p.app.FindRecordById(collection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return status.ErrNotFound
		}
		return fmt.Errorf("find %s/%s: %w", collection, id, err)
	}

	record.Load(fields)
	if err := p.app.Save(record); err != nil {
		return fmt.Errorf("save %s/%s: %w", collection, id, err)
	}
	return nil
}

// UpdateIf runs the version check and write inside one transaction so
// concurrent settlers serialize on the row instead of clobbering it.
func (p *PocketBase) UpdateIf(_ context.Context, collection, id string, expectedVersion int64, fields Document) error {
	return p.app.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById(collection, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return status.ErrNotFound
			}
			return fmt.Errorf("find %s/%s: %w", collection, id, err)
		}

		if int64(record.GetInt("version")) != expectedVersion {
			return status.ErrConflict
		}

		record.Load(fields)
		record.Set("version", expectedVersion+1)
		if err := txApp.Save(record); err != nil {
			return fmt.Errorf("save %s/%s: %w", collection, id, err)
		}
		return nil
	})
}

func (p *PocketBase) Delete(_ context.Context, collection, id string) error {
	record, err := p.app.FindRecordById(collection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	if err := p.app.Delete(record); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *PocketBase) Query(_ context.Context, collection string, filters []Filter) ([]QueryResult, error) {
	expr, params := buildFilter(filters)

	records, err := p.app.FindRecordsByFilter(collection, expr, "", 0, 0, params)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	results := make([]QueryResult, 0, len(records))
	for _, record := range records {
		results = append(results, QueryResult{ID: record.Id, Doc: recordToDocument(record)})
	}
	return results, nil
}

func (p *PocketBase) Subscribe(collection, id string, onChange func(Document)) func() {
	handlerID := fmt.Sprintf("store-subscribe-%s-%s-%d", collection, id, p.nextID.Add(1))

	p.app.OnRecordAfterUpdateSuccess(collection).Bind(&hook.Handler[*core.RecordEvent]{
		Id: handlerID,
		Func: func(e *core.RecordEvent) error {
			if e.Record.Id == id {
				go onChange(recordToDocument(e.Record))
			}
			return e.Next()
		},
	})

	return func() {
		p.app.OnRecordAfterUpdateSuccess(collection).Unbind(handlerID)
	}
}

// buildFilter renders the generic filters into PocketBase filter syntax
// with bound params, the same shape FindRecordsByFilter expects.
func buildFilter(filters []Filter) (string, map[string]any) {
	if len(filters) == 0 {
		return "id != ''", nil
	}

	parts := make([]string, 0, len(filters))
	params := make(map[string]any, len(filters))
	for i, f := range filters {
		key := fmt.Sprintf("p%d", i)
		parts = append(parts, fmt.Sprintf("%s %s {:%s}", f.Field, f.Op, key))
		params[key] = f.Value
	}
	return strings.Join(parts, " && "), params
}

func recordToDocument(record *core.Record) Document {
	doc := Document{}
	for key, value := range record.FieldsData() {
		doc[key] = value
	}
	return doc
}
