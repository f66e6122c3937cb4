// Package record turns submitted request bodies into schema-less records and
// encodes lists of records as JSON arrays.  A Record keeps the exact member
// order of the submitted body so the stored file reads back the way it was
// posted.
package record

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ErrMalformedBody is returned when a JSON body cannot be parsed or is not an
// object or array.  Handlers translate it into a 400.
var ErrMalformedBody = errors.New("malformed body")

// ErrTooManyParameters is returned for URL-encoded bodies with more than
// 1000 pairs.  Handlers translate it into a 413.
var ErrTooManyParameters = errors.New("too many parameters")

// Record is one submission stored as compact JSON.
type Record json.RawMessage

// Empty is the record stored for bodies that carry nothing usable.
var Empty = Record(`{}`)

// MarshalJSON returns the stored bytes as-is.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON keeps a copy of the raw value.
func (r *Record) UnmarshalJSON(b []byte) error {
	if r == nil {
		return errors.New("record: UnmarshalJSON on nil pointer")
	}
	*r = append((*r)[0:0], b...)
	return nil
}

// String is the compact JSON text of the record.
func (r Record) String() string { return string(r) }

// FromRequest reads and decodes the request body.  The body size is bounded
// by the caller (echo's BodyLimit middleware in the router).
func FromRequest(req *http.Request) (Record, error) {
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "read body")
		}
		body = b
	}
	return Decode(req.Header.Get("Content-Type"), body)
}

// Decode builds a record from a body and its Content-Type.
//
// JSON bodies must be an object or an array.  URL-encoded bodies are decoded
// with bracket nesting (see parseForm).  Empty bodies and any other media
// type give the empty object.
func Decode(contentType string, body []byte) (Record, error) {
	mediaType := ""
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			mediaType = strings.ToLower(mt)
		}
	}
	switch {
	case mediaType == "application/json":
		return decodeJSON(body)
	case mediaType == "application/x-www-form-urlencoded":
		if len(bytes.TrimSpace(body)) == 0 {
			return cloneEmpty(), nil
		}
		form, err := parseForm(string(body))
		if err != nil {
			return nil, err
		}
		b, err := marshalNoEscape(form)
		if err != nil {
			return nil, errors.Wrap(err, "encode form record")
		}
		return Record(b), nil
	default:
		return cloneEmpty(), nil
	}
}

func decodeJSON(body []byte) (Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return cloneEmpty(), nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, errors.Wrap(ErrMalformedBody, "invalid json")
	}
	t := gjson.ParseBytes(trimmed)
	if !t.IsObject() && !t.IsArray() {
		return nil, errors.Wrapf(ErrMalformedBody, "json %s is not an object or array", t.Type)
	}
	var buf bytes.Buffer
	if err := writeCompact(&buf, t); err != nil {
		return nil, errors.Wrap(err, "encode json record")
	}
	return Record(buf.Bytes()), nil
}

// writeCompact writes v without whitespace.  A key repeated within one
// object keeps its first position and its last value.  Scalars are copied
// as written, so number literals are not reformatted.
func writeCompact(buf *bytes.Buffer, v gjson.Result) error {
	switch {
	case v.IsObject():
		var keys []string
		vals := map[string]gjson.Result{}
		v.ForEach(func(k, val gjson.Result) bool {
			if _, seen := vals[k.String()]; !seen {
				keys = append(keys, k.String())
			}
			vals[k.String()] = val
			return true
		})
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalNoEscape(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCompact(buf, vals[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case v.IsArray():
		buf.WriteByte('[')
		i := 0
		var err error
		v.ForEach(func(_, val gjson.Result) bool {
			if i > 0 {
				buf.WriteByte(',')
			}
			i++
			err = writeCompact(buf, val)
			return err == nil
		})
		if err != nil {
			return err
		}
		buf.WriteByte(']')
	default:
		buf.WriteString(v.Raw)
	}
	return nil
}

func cloneEmpty() Record { return append(Record(nil), Empty...) }

// EncodeList encodes records as a JSON array.  With pretty set the output
// uses a two-space indent.  HTML characters are not escaped and there is no
// trailing newline.  A nil slice encodes as [].
func EncodeList(records []Record, pretty bool) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		return nil, errors.Wrap(err, "encode records")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
