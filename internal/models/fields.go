package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// Fields is the flat, top-level view of a JSON object payload.
// Values are kept encoded so that callers can compare them without
// knowing the concrete payload type.
type Fields map[string]json.RawMessage

// ToFields encodes v and splits the resulting JSON object into its top-level fields.
// A nil payload yields an empty set of fields.
func ToFields(v any) (Fields, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	fields := Fields{}
	if bytes.Equal(raw, []byte("null")) {
		return fields, nil
	}

	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}

	return fields, nil
}

// FromFields собирает payload типа T обратно из полей.
func FromFields[T any](fields Fields) (T, error) {
	var out T

	if fields == nil {
		fields = Fields{}
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return out, fmt.Errorf("failed to marshal fields: %w", err)
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal fields: %w", err)
	}

	return out, nil
}

// Patch shallow-merges values onto a copy of f. Every value in values replaces
// the field of the same name, including explicit nils which become JSON null.
func (f Fields) Patch(values map[string]any) (Fields, error) {
	out := make(Fields, len(f)+len(values))
	for name, value := range f {
		out[name] = value
	}

	for name, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %q: %w", name, err)
		}
		out[name] = raw
	}

	return out, nil
}

// Canonical returns the canonical encoding of a raw JSON value: object keys
// sorted, insignificant whitespace removed, numbers normalized so that 1 and
// 1.0 compare equal while distinct integers of any size stay distinct. A nil
// value stays nil so that an absent field remains distinguishable from an
// explicit null.
func Canonical(raw json.RawMessage) (json.RawMessage, error) {
	if raw == nil {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON value: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON value: trailing data")
	}

	normalized, err := normalize(decoded)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode JSON value: %w", err)
	}

	return out, nil
}

func normalize(v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		return canonicalNumber(v)
	case map[string]any:
		for k, item := range v {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			v[k] = n
		}
		return v, nil
	case []any:
		for i, item := range v {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			v[i] = n
		}
		return v, nil
	default:
		return v, nil
	}
}

// canonicalNumber: целые сравниваются точно, дробные - как float64
func canonicalNumber(n json.Number) (json.Number, error) {
	s := n.String()

	if i, ok := new(big.Int).SetString(s, 10); ok {
		return json.Number(i.String()), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", fmt.Errorf("invalid JSON number %q: %w", s, err)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return json.Number(strconv.FormatInt(int64(f), 10)), nil
	}

	return json.Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
}
