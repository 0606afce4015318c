package conflict

import (
	"context"
	"strings"
	"sync"

	"github.com/companio/eterna/internal/normalize"
	"github.com/companio/eterna/internal/storage"
	"github.com/companio/eterna/pkg/types"
)

// Resolver detects which semantic field an incoming fact belongs to and finds
// the stored records that contradict it. The field table can be swapped at
// runtime (see FieldsWatcher), so reads go through a mutex.
type Resolver struct {
	mu     sync.RWMutex
	fields []Field
	store  storage.RecordStore
}

// NewResolver creates a resolver over the given store using the built-in
// field table.
func NewResolver(store storage.RecordStore) *Resolver {
	return &Resolver{fields: DefaultFields(), store: store}
}

// SetFields replaces the field table.
func (r *Resolver) SetFields(fields []Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = fields
}

// DetectField returns the name of the semantic field the fact belongs to,
// or "" when the fact belongs to no conflict field. Detection is
// first-match-wins in table order.
func (r *Resolver) DetectField(fact, category string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.fields {
		if f.matches(fact, category) {
			return f.Name
		}
	}
	return ""
}

// FindConflicting returns the active records that contradict a new fact in
// the given semantic field: records in any of the field's categories whose
// text also matches the field's keywords, excluding records that state the
// same fact (equal normalized text — those are reinforcements, not
// contradictions).
func (r *Resolver) FindConflicting(ctx context.Context, userID, fieldName, factNormalized string) ([]types.MemoryRecord, error) {
	r.mu.RLock()
	var field *Field
	for i := range r.fields {
		if r.fields[i].Name == fieldName {
			field = &r.fields[i]
			break
		}
	}
	r.mu.RUnlock()

	if field == nil {
		return nil, nil
	}

	records, err := r.store.ListActiveByCategories(ctx, userID, field.Categories)
	if err != nil {
		return nil, err
	}

	var conflicting []types.MemoryRecord
	for _, rec := range records {
		factLower := strings.ToLower(rec.Fact)
		for _, kw := range field.Keywords {
			if strings.Contains(factLower, kw) {
				if normalize.Text(rec.Fact) != factNormalized {
					conflicting = append(conflicting, rec)
				}
				break
			}
		}
	}
	return conflicting, nil
}
