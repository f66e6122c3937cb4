package record

import (
	"bytes"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	maxFormDepth  = 5    // child segments per key; deeper brackets stay in the last key
	maxFormParams = 1000 // bodies with more pairs are rejected
	maxFormIndex  = 20   // a[21] and above are object keys, not array slots
)

// object is a JSON object that remembers insertion order.  Values are
// string, []any, *sparse or *object.
type object struct {
	keys []string
	vals map[string]any
}

func newObject() *object { return &object{vals: map[string]any{}} }

func (o *object) set(k string, v any) {
	if _, ok := o.vals[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.vals[k] = v
}

// add stores v under k, turning repeated keys into an array.
func (o *object) add(k string, v any) {
	cur, ok := o.vals[k]
	if !ok {
		o.set(k, v)
		return
	}
	if arr, ok := cur.([]any); ok {
		o.vals[k] = append(arr, v)
		return
	}
	o.vals[k] = []any{cur, v}
}

func (o *object) assign(path []string, val string) {
	k := path[0]
	if len(path) == 1 {
		o.add(k, val)
		return
	}
	switch cur := o.vals[k].(type) {
	case *sparse:
		if path[1] == "" {
			cur.push(leaf(path[2:], val))
			return
		}
		if i, ok := arrayIndex(path[1]); ok {
			cur.assign(i, path[2:], val)
			return
		}
		// a named key turns the array into an object keyed by index
		o.vals[k] = cur.toObject()
	case nil:
		if i, ok := arrayIndex(path[1]); ok {
			arr := newSparse()
			arr.assign(i, path[2:], val)
			o.set(k, arr)
			return
		}
	case string, []any:
		if _, ok := arrayIndex(path[1]); ok {
			o.add(k, leaf(path[2:], val))
			return
		}
	}
	if path[1] == "" {
		item := leaf(path[2:], val)
		if cur, ok := o.vals[k].([]any); ok {
			o.vals[k] = append(cur, item)
			return
		}
		if _, ok := o.vals[k]; !ok {
			o.set(k, []any{item})
			return
		}
		o.add(k, item)
		return
	}
	if child, ok := o.vals[k].(*object); ok {
		child.assign(path[1:], val)
		return
	}
	child := newObject()
	child.assign(path[1:], val)
	o.add(k, child)
}

// leaf builds the value for the remaining key segments of a pair.
func leaf(rest []string, val string) any {
	if len(rest) == 0 {
		return val
	}
	if rest[0] == "" {
		return []any{leaf(rest[1:], val)}
	}
	if i, ok := arrayIndex(rest[0]); ok {
		arr := newSparse()
		arr.set(i, leaf(rest[1:], val))
		return arr
	}
	child := newObject()
	child.assign(rest, val)
	return child
}

// arrayIndex reports whether seg is a canonical decimal no larger than
// maxFormIndex.  "01" and "21" are ordinary keys.
func arrayIndex(seg string) (int, bool) {
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 || n > maxFormIndex || strconv.Itoa(n) != seg {
		return 0, false
	}
	return n, true
}

// sparse is an array addressed by explicit indexes.  Gaps are dropped when
// it is encoded, so a[3]=x&a[10]=y gives ["x","y"].
type sparse struct {
	idx  []int // sorted
	vals map[int]any
}

func newSparse() *sparse { return &sparse{vals: map[int]any{}} }

func (a *sparse) set(i int, v any) {
	if _, ok := a.vals[i]; !ok {
		at := sort.SearchInts(a.idx, i)
		a.idx = append(a.idx, 0)
		copy(a.idx[at+1:], a.idx[at:])
		a.idx[at] = i
	}
	a.vals[i] = v
}

// push appends v after the highest index.
func (a *sparse) push(v any) {
	next := 0
	if n := len(a.idx); n > 0 {
		next = a.idx[n-1] + 1
	}
	a.set(next, v)
}

// assign stores the value for a[i] followed by rest.  Objects at the same
// index are merged; any other repeat is appended.
func (a *sparse) assign(i int, rest []string, val string) {
	cur, ok := a.vals[i]
	if !ok {
		a.set(i, leaf(rest, val))
		return
	}
	if child, isObj := cur.(*object); isObj && len(rest) > 0 && rest[0] != "" {
		child.assign(rest, val)
		return
	}
	a.push(leaf(rest, val))
}

func (a *sparse) toObject() *object {
	o := newObject()
	for _, i := range a.idx {
		o.set(strconv.Itoa(i), a.vals[i])
	}
	return o
}

func (a *sparse) MarshalJSON() ([]byte, error) {
	list := make([]any, 0, len(a.idx))
	for _, i := range a.idx {
		list = append(list, a.vals[i])
	}
	return marshalNoEscape(list)
}

func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalNoEscape(o.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// parseForm decodes an application/x-www-form-urlencoded body the way an
// extended form parser does:
//
//	name=Bob           {"name":"Bob"}
//	tag=a&tag=b        {"tag":["a","b"]}
//	tag[]=a            {"tag":["a"]}
//	tag[1]=b&tag[0]=a  {"tag":["a","b"]}
//	addr[city]=Paris   {"addr":{"city":"Paris"}}
//
// Pairs with an empty key are skipped.  Undecodable escapes are kept verbatim.
// A body with more than maxFormParams pairs fails with ErrTooManyParameters.
func parseForm(body string) (*object, error) {
	if strings.Count(body, "&") >= maxFormParams {
		return nil, ErrTooManyParameters
	}
	root := newObject()
	for _, p := range strings.Split(body, "&") {
		if p == "" {
			continue
		}
		k, v, _ := strings.Cut(p, "=")
		path := splitKey(unescape(k))
		if path[0] == "" {
			continue
		}
		root.assign(path, unescape(v))
	}
	return root, nil
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// splitKey breaks "a[b][]" into ["a", "b", ""].  A key without a well-formed
// bracket suffix is returned whole.  After maxFormDepth segments the rest of
// the key becomes one literal segment.
func splitKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 {
		return []string{key}
	}
	segs := []string{key[:open]}
	rest := key[open:]
	for rest != "" && rest[0] == '[' && len(segs)-1 < maxFormDepth {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		segs = append(segs, rest[1:end])
		rest = rest[end+1:]
	}
	if len(segs) == 1 {
		return []string{key}
	}
	if rest != "" {
		segs = append(segs, rest)
	}
	return segs
}
