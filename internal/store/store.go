// Package store owns the collection of submitted records and mirrors it to
// the backing file.  Every successful Append rewrites the whole file, so the
// file always holds the latest collection.
package store

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/iliyamo/form-store/internal/record"
)

// ErrCorruptBackingFile is returned by Open when the backing file exists but
// does not hold a JSON array.
var ErrCorruptBackingFile = errors.New("backing file is not a JSON array")

// Store is the in-memory collection plus the path it is mirrored to.  Appends
// are serialized with the file write so two submissions never overwrite each
// other on disk.
type Store struct {
	mu      sync.RWMutex
	path    string
	records []record.Record
	version uint64
	gen     string // random per Open; versions from another run never collide
	write   func(path string, data []byte) error
}

// Open loads the collection from path.  A missing, empty or whitespace-only
// file gives an empty collection.
func Open(path string) (*Store, error) {
	s := &Store{path: path, records: []record.Record{}, gen: uuid.NewString(), write: writeFileAtomic}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.Wrapf(err, "read backing file %s", path)
	}
	recs, err := parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "load backing file %s", path)
	}
	s.records = recs
	return s, nil
}

func parse(b []byte) ([]record.Record, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return []record.Record{}, nil
	}
	if !gjson.ValidBytes(b) || !gjson.ParseBytes(b).IsArray() {
		return nil, ErrCorruptBackingFile
	}
	recs := []record.Record{}
	var err error
	gjson.ParseBytes(b).ForEach(func(_, v gjson.Result) bool {
		var buf bytes.Buffer
		if err = json.Compact(&buf, []byte(v.Raw)); err != nil {
			return false
		}
		recs = append(recs, record.Record(buf.Bytes()))
		return true
	})
	if err != nil {
		return nil, errors.Wrap(ErrCorruptBackingFile, err.Error())
	}
	return recs, nil
}

// Path is the backing file location.
func (s *Store) Path() string { return s.path }

// Append adds r at the end of the collection and rewrites the backing file.
// If the write fails the collection is left as it was and the error is
// returned.  It returns the zero-based index of the stored record.
func (s *Store) Append(r record.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	s.records = append(s.records, r)
	data, err := record.EncodeList(s.records, true)
	if err == nil {
		err = errors.Wrapf(s.write(s.path, data), "write backing file %s", s.path)
	}
	if err != nil {
		s.records = s.records[:n]
		return 0, err
	}
	s.version++
	return n, nil
}

// List returns a copy of the collection in insertion order.
func (s *Store) List() []record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]record.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len is the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Version counts successful appends since Open.  It changes exactly when the
// collection does.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Generation identifies this Open of the backing file.  Version restarts at
// zero in every process, so anything keyed on the collection from outside
// the process must include the generation too.
func (s *Store) Generation() string { return s.gen }

// CacheTag names the current state of the collection: the generation plus
// the version.  Two stores, or two runs, never share a tag.
func (s *Store) CacheTag() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen + "." + strconv.FormatUint(s.version, 10)
}
