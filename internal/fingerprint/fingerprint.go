// Package fingerprint computes cheap content hashes of the sync-relevant data
// and serializes it into backup snapshots.
package fingerprint

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"git.home.luguber.info/inful/memobackup/internal/store"
)

// SnapshotVersion is written into every snapshot document.
const SnapshotVersion = 1

// Hash is a 16 hex digit content fingerprint. The zero value means "nothing synced yet".
type Hash string

// Short returns the first 8 characters, for logs and status lines.
func (h Hash) Short() string {
	if len(h) > 8 {
		return string(h[:8])
	}
	return string(h)
}

// Empty is the hash of a selection with no entries.
var Empty = hashEntries(nil, nil)

// Snapshot is a serialized backup document together with the hash of the
// entries it contains.
type Snapshot struct {
	Hash    Hash
	Content []byte
	Entries int
}

// Fingerprinter reads the sync-relevant entries of a store.
type Fingerprinter struct {
	store    store.Store
	selector store.Selector
}

// New creates a Fingerprinter over the keys sel selects in st.
func New(st store.Store, sel store.Selector) *Fingerprinter {
	return &Fingerprinter{store: st, selector: sel}
}

// CurrentHash returns the fingerprint of the current sync-relevant data.
// Identical content always yields an identical hash.
func (f *Fingerprinter) CurrentHash(ctx context.Context) (Hash, error) {
	keys, values, err := f.read(ctx)
	if err != nil {
		return "", err
	}
	return hashEntries(keys, values), nil
}

// Snapshot returns the backup document for the current data. Its hash equals
// what CurrentHash would have returned for the same read.
func (f *Fingerprinter) Snapshot(ctx context.Context) (Snapshot, error) {
	keys, values, err := f.read(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	doc := document{Version: SnapshotVersion, Entries: make(map[string]string, len(keys))}
	for i, k := range keys {
		if utf8.Valid(values[i]) {
			doc.Entries[k] = string(values[i])
			continue
		}
		if doc.Binary == nil {
			doc.Binary = make(map[string][]byte)
		}
		doc.Binary[k] = values[i]
	}
	// encoding/json sorts map keys, so equal content serializes identically.
	content, err := json.Marshal(doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	return Snapshot{Hash: hashEntries(keys, values), Content: content, Entries: len(keys)}, nil
}

// document is the snapshot layout. Values that are not valid UTF-8 go to
// Binary, which encoding/json writes as base64, so no byte is lost.
type document struct {
	Version int               `json:"version"`
	Entries map[string]string `json:"entries"`
	Binary  map[string][]byte `json:"binary,omitempty"`
}

// Decode parses snapshot content back into its key/value entries.
func Decode(content []byte) (map[string][]byte, error) {
	var doc document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	out := make(map[string][]byte, len(doc.Entries)+len(doc.Binary))
	for k, v := range doc.Entries {
		out[k] = []byte(v)
	}
	for k, v := range doc.Binary {
		out[k] = v
	}
	return out, nil
}

// read returns sorted relevant keys and their values. Keys that disappear
// between listing and reading are skipped.
func (f *Fingerprinter) read(ctx context.Context) ([]string, [][]byte, error) {
	listed, err := store.RelevantKeys(ctx, f.store, f.selector)
	if err != nil {
		return nil, nil, fmt.Errorf("list keys: %w", err)
	}
	keys := make([]string, 0, len(listed))
	values := make([][]byte, 0, len(listed))
	for _, k := range listed {
		v, err := f.store.Get(ctx, k)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", k, err)
		}
		if v == nil {
			continue
		}
		keys = append(keys, k)
		values = append(values, v)
	}
	return keys, values, nil
}

// hashEntries length-prefixes every key and value so no value can mimic an
// entry boundary.
func hashEntries(keys []string, values [][]byte) Hash {
	d := xxhash.New()
	var buf []byte
	for i, k := range keys {
		buf = binary.AppendUvarint(buf[:0], uint64(len(k)))
		buf = append(buf, k...)
		buf = binary.AppendUvarint(buf, uint64(len(values[i])))
		_, _ = d.Write(buf)
		_, _ = d.Write(values[i])
	}
	return Hash(fmt.Sprintf("%016x", d.Sum64()))
}
