package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// errNoData marks a well-formed body without a usable "data" array.
var errNoData = errors.New("response has no data array")

// flattenData decodes {"data":[{...},...]} and flattens every element,
// joining nested object keys with "_". Columns are returned in first-seen
// order. Arrays nested inside an element are kept as their JSON text.
func flattenData(body []byte) ([]string, []map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, nil, err
	}
	var columns []string
	seen := make(map[string]bool)
	var records []map[string]any
	found := false

	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, nil, err
		}
		if key != "data" {
			if err := skipValue(dec); err != nil {
				return nil, nil, err
			}
			continue
		}
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		if tok == nil {
			continue
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return nil, nil, fmt.Errorf("%w: \"data\" is %v", errNoData, tok)
		}
		found = true
		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, nil, err
			}
			raw = bytes.TrimSpace(raw)
			if len(raw) == 0 || raw[0] != '{' {
				// Scalars inside data are not records.
				continue
			}
			rec := make(map[string]any)
			var order []string
			if err := flattenObject(raw, "", rec, &order); err != nil {
				return nil, nil, err
			}
			for _, c := range order {
				if !seen[c] {
					seen[c] = true
					columns = append(columns, c)
				}
			}
			records = append(records, rec)
		}
		if _, err := dec.Token(); err != nil {
			return nil, nil, err
		}
	}
	if !found {
		return nil, nil, errNoData
	}
	return columns, records, nil
}

// flattenObject walks one JSON object preserving key order.
func flattenObject(raw json.RawMessage, prefix string, rec map[string]any, order *[]string) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return err
		}
		name := key
		if prefix != "" {
			name = prefix + "_" + key
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		trimmed := bytes.TrimSpace(value)
		switch {
		case len(trimmed) > 0 && trimmed[0] == '{':
			if err := flattenObject(trimmed, name, rec, order); err != nil {
				return err
			}
			continue
		case len(trimmed) > 0 && trimmed[0] == '[':
			rec[name] = string(trimmed)
		default:
			var v any
			vdec := json.NewDecoder(bytes.NewReader(trimmed))
			vdec.UseNumber()
			if err := vdec.Decode(&v); err != nil {
				return err
			}
			rec[name] = scalar(v)
		}
		*order = append(*order, name)
	}
	return nil
}

// scalar turns json.Number into float64 so inferred columns are numeric.
func scalar(v any) any {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

func skipValue(dec *json.Decoder) error {
	var discard json.RawMessage
	err := dec.Decode(&discard)
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
