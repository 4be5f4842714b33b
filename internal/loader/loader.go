// Package loader turns raw flow payloads into typed flow definitions. It
// accepts the bare Metadata object, a tooling API sobject response or a
// tooling query result, and any mix of singular and plural collection keys.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rendis/flowlens/internal/expressions"
	"github.com/rendis/flowlens/internal/validation"
	"github.com/rendis/flowlens/pkg/schema"
)

// envelopeQuery selects the Metadata object from whatever wraps it.
const envelopeQuery = `(.records[0]? // .) | (.Metadata? // .)`

// Loader decodes flow payloads.
type Loader struct {
	jq        *expressions.GoJQEngine
	validator validation.Validator
}

// New creates a Loader. A nil validator skips structural validation.
func New(v validation.Validator) *Loader {
	return &Loader{
		jq:        expressions.NewGoJQEngine(),
		validator: v,
	}
}

// NewDefault creates a Loader validating against the built-in flow schema.
func NewDefault() (*Loader, error) {
	v, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return New(v), nil
}

// Load unwraps, canonicalizes, validates and decodes one payload. Every
// failure is a MALFORMED_DEFINITION error.
func (l *Loader) Load(ctx context.Context, data []byte) (*schema.FlowDefinition, error) {
	doc, err := l.Unwrap(ctx, data)
	if err != nil {
		return nil, err
	}

	canonical, err := json.Marshal(Canonicalize(doc))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeMalformedDefinition, "failed to re-encode flow metadata").WithCause(err)
	}

	if l.validator != nil {
		if err := l.validator.ValidateDocument(canonical); err != nil {
			return nil, err
		}
	}

	var def schema.FlowDefinition
	if err := json.Unmarshal(canonical, &def); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeMalformedDefinition, "decode flow metadata: %s", err.Error()).WithCause(err)
	}
	return &def, nil
}

// LoadFile reads and loads a payload from disk.
func (l *Loader) LoadFile(ctx context.Context, path string) (*schema.FlowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	return l.Load(ctx, data)
}

// Unwrap parses data and returns the Metadata object it carries, without
// touching its keys.
func (l *Loader) Unwrap(ctx context.Context, data []byte) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, schema.NewError(schema.ErrCodeMalformedDefinition, "flow definition is not valid JSON").WithCause(err)
	}

	out, err := l.jq.Query(ctx, envelopeQuery, raw)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeMalformedDefinition, "unwrap flow envelope").WithCause(err)
	}
	if len(out) != 1 {
		return nil, schema.NewErrorf(schema.ErrCodeMalformedDefinition, "flow envelope yielded %d documents", len(out))
	}
	doc, ok := out[0].(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeMalformedDefinition, "flow metadata must be a JSON object, got %T", out[0])
	}
	return doc, nil
}

// Canonicalize rewrites collection keys to their canonical plural spelling.
// When both spellings are present their items are concatenated, canonical
// key first. A lone object where a collection is expected becomes a
// one-element collection. Unknown keys pass through unchanged.
func Canonicalize(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if _, ok := schema.CanonicalCollectionKey(k); !ok {
			out[k] = v
		}
	}

	for _, c := range schema.Collections {
		var items []any
		present := false
		for _, key := range []string{c.Key, string(c.Kind)} {
			v, ok := doc[key]
			if !ok {
				continue
			}
			present = true
			switch val := v.(type) {
			case []any:
				items = append(items, val...)
			case map[string]any:
				items = append(items, val)
			case nil:
			default:
				// Leave malformed values for the schema to report.
				out[c.Key] = v
			}
		}
		if _, kept := out[c.Key]; kept || !present {
			continue
		}
		if items == nil {
			items = []any{}
		}
		out[c.Key] = items
	}
	return out
}
