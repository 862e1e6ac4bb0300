package format

import (
	"log/slog"

	"github.com/askiada/stelp/pkg/pipeline/model"
)

// Reconciler projects structured records onto a stable output schema.
// With explicit keys the schema is fixed up front; otherwise it is
// captured from the first structured record that reaches the sink,
// after key removal. Under a captured schema, extra keys on later
// records are dropped with a warning each time they appear; explicit
// keys drop extras silently. Missing keys render empty.
type Reconciler struct {
	explicit []string
	remove   map[string]struct{}
	schema   []string
	logger   *slog.Logger
}

// NewReconciler builds a reconciler. keys fixes the schema, removeKeys
// strips fields before the schema is captured or applied.
func NewReconciler(keys, removeKeys []string, logger *slog.Logger) *Reconciler {
	r := &Reconciler{logger: logger}
	if logger == nil {
		r.logger = slog.Default()
	}
	if len(keys) > 0 {
		r.explicit = append([]string(nil), keys...)
	}
	if len(removeKeys) > 0 {
		r.remove = make(map[string]struct{}, len(removeKeys))
		for _, key := range removeKeys {
			r.remove[key] = struct{}{}
		}
	}
	return r
}

// Schema returns the active key order, nil before the first structured
// record when no explicit keys were given.
func (r *Reconciler) Schema() []string {
	if r.explicit != nil {
		return r.explicit
	}
	return r.schema
}

// Apply projects the record's fields onto the schema. It returns the
// schema keys and the values aligned to them; a missing key yields a
// nil value at its position.
func (r *Reconciler) Apply(fields *model.Fields) ([]string, []model.Value) {
	for key := range r.remove {
		fields.Delete(key)
	}

	keys := r.explicit
	if keys == nil {
		if r.schema == nil {
			r.schema = fields.Keys()
		}
		keys = r.schema
	}

	known := make(map[string]struct{}, len(keys))
	row := make([]model.Value, len(keys))
	for i, key := range keys {
		known[key] = struct{}{}
		row[i], _ = fields.Get(key)
	}
	// An explicit key list is a deliberate projection: extras drop
	// silently. Only a captured schema warns about them.
	if r.explicit == nil {
		fields.Range(func(key string, _ model.Value) bool {
			if _, ok := known[key]; !ok {
				r.logger.Warn("dropping key outside the output schema", "key", key)
			}
			return true
		})
	}
	return keys, row
}
