package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/gl-core/internal/ledger"
)

// dateKeys are the request fields that accept a plain YYYY-MM-DD date.
var dateKeys = map[string]bool{
	"date":      true,
	"issueDate": true,
	"dueDate":   true,
	"asOf":      true,
	"start":     true,
	"end":       true,
}

// decode converts a request struct into v through its JSON form.
func decode(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("decode request: %v: %w", err, ledger.ErrValidation)
	}
	var m map[string]any
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	if err := d.Decode(&m); err != nil {
		return fmt.Errorf("decode request: %v: %w", err, ledger.ErrValidation)
	}
	if err := normalizeDates(m); err != nil {
		return err
	}
	raw, err = json.Marshal(m)
	if err != nil {
		return fmt.Errorf("decode request: %v: %w", err, ledger.ErrValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode request: %v: %w", err, ledger.ErrValidation)
	}
	return nil
}

// normalizeDates rewrites plain dates to RFC 3339 so they decode into
// time.Time, and drops empty ones.
func normalizeDates(v any) error {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if s, ok := child.(string); ok && dateKeys[k] {
				if s == "" {
					delete(val, k)
					continue
				}
				if len(s) == len(time.DateOnly) {
					t, err := ledger.ParseDate(s)
					if err != nil {
						return fmt.Errorf("%s: %w", k, err)
					}
					val[k] = t.Format(time.RFC3339)
				}
				continue
			}
			if err := normalizeDates(child); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range val {
			if err := normalizeDates(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// encode converts a response value into a struct through its JSON form.
func encode(v any) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if v == nil {
		return out, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	// nil maps and pointers marshal to null
	if bytes.Equal(raw, []byte("null")) {
		return out, nil
	}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}
