package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/vyrodovalexey/clothes-api/internal/model"
)

// Document keys interpreted by the service. Matching follows encoding/json
// and ignores case.
const (
	keyItems  = "items"
	keyLastID = "lastId"
)

var recordKeys = []string{"id", "image", "name", "price", "rating"}

// decodeDocument parses the persisted form and checks the id invariant.
// Keys the service does not interpret are kept on the returned document.
func decodeDocument(data []byte) (model.Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return model.Document{}, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}

	rawItems, ok := takeKey(top, keyItems)
	if !ok {
		return model.Document{}, fmt.Errorf("%w: items is missing", ErrCorruptDocument)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(rawItems, &elems); err != nil {
		return model.Document{}, fmt.Errorf("%w: items: %w", ErrCorruptDocument, err)
	}
	if elems == nil {
		return model.Document{}, fmt.Errorf("%w: items is missing", ErrCorruptDocument)
	}

	var lastID int64
	if rawLast, ok := takeKey(top, keyLastID); ok {
		if err := json.Unmarshal(rawLast, &lastID); err != nil {
			return model.Document{}, fmt.Errorf("%w: lastId: %w", ErrCorruptDocument, err)
		}
	}
	if lastID < 0 {
		return model.Document{}, fmt.Errorf("%w: negative lastId %d", ErrCorruptDocument, lastID)
	}

	doc := model.Document{
		Items:  make([]model.Record, 0, len(elems)),
		LastID: lastID,
	}
	if len(top) > 0 {
		extra, err := compactExtra(top)
		if err != nil {
			return model.Document{}, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
		}
		doc.Extra = extra
	}

	seen := make(map[int64]struct{}, len(elems))
	for i, elem := range elems {
		rec, extra, err := decodeRecord(elem)
		if err != nil {
			return model.Document{}, fmt.Errorf("%w: item %d: %w", ErrCorruptDocument, i, err)
		}

		if _, dup := seen[rec.ID]; dup {
			return model.Document{}, fmt.Errorf("%w: duplicate id %d at index %d", ErrCorruptDocument, rec.ID, i)
		}
		seen[rec.ID] = struct{}{}

		if len(extra) > 0 {
			if doc.ItemExtra == nil {
				doc.ItemExtra = make(map[int64]model.Extra)
			}
			doc.ItemExtra[rec.ID] = extra
		}

		doc.Items = append(doc.Items, rec)
	}

	return doc, nil
}

func decodeRecord(data json.RawMessage) (model.Record, model.Extra, error) {
	var rec model.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.Record{}, nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return model.Record{}, nil, err
	}

	for _, key := range recordKeys {
		takeKey(fields, key)
	}

	extra, err := compactExtra(fields)
	if err != nil {
		return model.Record{}, nil, err
	}

	return rec, extra, nil
}

// compactExtra strips insignificant whitespace from every value so equal
// documents compare equal after a save and reload.
func compactExtra(obj map[string]json.RawMessage) (model.Extra, error) {
	if len(obj) == 0 {
		return nil, nil
	}

	extra := make(model.Extra, len(obj))
	for key, raw := range obj {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		extra[key] = buf.Bytes()
	}

	return extra, nil
}

// takeKey removes every key equal to name under case folding and returns
// the value of the last one, which is the one encoding/json would decode.
func takeKey(obj map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	var (
		value json.RawMessage
		found bool
	)

	for key, raw := range obj {
		if !strings.EqualFold(key, name) {
			continue
		}
		if !found || key == name {
			value = raw
		}
		found = true
		delete(obj, key)
	}

	return value, found
}

// encodeDocument serializes the full document. A nil item slice is written
// as an empty array so the result always decodes. Strings are written
// without HTML escaping, so a file written by hand round-trips unchanged.
func encodeDocument(doc model.Document) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(`{"` + keyItems + `":[`)
	for i, rec := range doc.Items {
		if i > 0 {
			buf.WriteByte(',')
		}

		data, err := marshalJSON(rec)
		if err != nil {
			return nil, fmt.Errorf("encode document: item %d: %w", i, err)
		}

		if extra := doc.ItemExtra[rec.ID]; len(extra) > 0 {
			buf.Write(data[:len(data)-1])
			if err := writeExtra(&buf, extra); err != nil {
				return nil, fmt.Errorf("encode document: item %d: %w", i, err)
			}
			buf.WriteByte('}')
		} else {
			buf.Write(data)
		}
	}
	buf.WriteByte(']')

	if doc.LastID != 0 {
		fmt.Fprintf(&buf, `,"%s":%d`, keyLastID, doc.LastID)
	}

	if err := writeExtra(&buf, doc.Extra); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// writeExtra appends ,"key":value for every entry in key order.
func writeExtra(buf *bytes.Buffer, extra model.Extra) error {
	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		name, err := marshalJSON(key)
		if err != nil {
			return err
		}

		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		if err := json.Compact(buf, extra[key]); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
	}

	return nil
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
