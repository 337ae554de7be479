// Package store is the per-node persistence layer: an opaque key → CRDT blob
// table plus a materialized view projected from the stored CRDT on read
// (Record.ViewRows; spec §3.2, §4.2).
//
// Storage is backed by a single bbolt.DB file instead of a hand-rolled
// WAL-plus-snapshot pair. bbolt already gives us the durability the teacher's
// WAL was for (every Update transaction is fsynced before it returns) and the
// "many readers OR one writer" rule the spec's save() needs (Update() holds
// the single writer transaction, View() holds a concurrent reader
// transaction) — so a save has nothing left to coordinate by hand, and there
// is no separate sync.RWMutex layered on top.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"shoplist/internal/crdt"
)

var (
	bucketLists = []byte("lists")
	bucketMeta  = []byte("meta")
)

// storedRecord is the on-disk shape of a Record: the CRDT blob kept as raw
// serialized bytes (so storage never needs to know the CRDT's Go shape) plus
// the replication metadata alongside it.
type storedRecord struct {
	Name      string `json:"name"`
	List      []byte `json:"list"`
	Clock     uint64 `json:"clock"`
	IsReplica bool   `json:"is_replica"`
	ReplicaID int    `json:"replica_id"`
	NotSent   bool   `json:"not_sent"`
}

// Storage is the per-node key→CRDT table.
type Storage struct {
	db     *bbolt.DB
	nodeID string
}

// New opens (creating if necessary) the bbolt file at dataDir/shoplist.db.
func New(dataDir, nodeID string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dataDir, "shoplist.db"), 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketLists); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &Storage{db: db, nodeID: nodeID}, nil
}

// Close closes the underlying bbolt file.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Save merges list into whatever is currently stored under list.UUID (an
// empty-list record if this is the first write), writes the merge back, and
// returns the merged result. opts overrides replication metadata fields that
// are non-nil; a nil field keeps the previous value, or the zero value on
// first insert — this is the single merging write path the dispatcher's
// server handlers and the client communicator all go through (spec §4.2).
func (s *Storage) Save(list *crdt.ShoppingList, opts SaveOptions) (*crdt.ShoppingList, error) {
	var merged *crdt.ShoppingList

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLists)

		rec := storedRecord{}
		if raw := b.Get([]byte(list.UUID)); raw != nil {
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("decode existing record %s: %w", list.UUID, err)
			}
		}

		existing := crdt.New(list.UUID)
		if rec.List != nil {
			decoded, err := crdt.Deserialize(rec.List)
			if err != nil {
				return fmt.Errorf("decode existing list %s: %w", list.UUID, err)
			}
			existing = decoded
		}
		existing.Merge(list)
		merged = existing

		data, err := merged.Serialize()
		if err != nil {
			return fmt.Errorf("encode merged list: %w", err)
		}

		rec.List = data
		rec.Clock = merged.Clock
		if opts.Name != nil {
			rec.Name = *opts.Name
		} else if rec.Name == "" {
			rec.Name = merged.Name
		}
		if opts.IsReplica != nil {
			rec.IsReplica = *opts.IsReplica
		}
		if opts.ReplicaID != nil {
			rec.ReplicaID = *opts.ReplicaID
		}
		if opts.NotSent != nil {
			rec.NotSent = *opts.NotSent
		}

		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		return b.Put([]byte(list.UUID), raw)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// Get returns the record stored under uuid, or ok=false if there is none.
func (s *Storage) Get(uuid string) (*Record, bool, error) {
	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketLists).Get([]byte(uuid))
		if raw == nil {
			return nil
		}
		r, err := decodeRecord(uuid, raw)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rec, rec != nil, nil
}

// Delete removes uuid's record from this node only; nothing is propagated.
// The hinted-handoff scanner uses it to drop local copies once their intended
// owner has acknowledged them.
func (s *Storage) Delete(uuid string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLists).Delete([]byte(uuid))
	})
}

// GetAll returns every stored record, replica or not. Used by the hinted
// handoff scanner (spec §4.4.5), which walks the whole table every tick.
func (s *Storage) GetAll() ([]*Record, error) {
	return s.filter(func(*Record) bool { return true })
}

// GetAllNonReplica returns only the lists this node holds as a primary copy
// (IsReplica false).
func (s *Storage) GetAllNonReplica() ([]*Record, error) {
	return s.filter(func(r *Record) bool { return !r.IsReplica })
}

// GetAllReplicas returns only the replica copies (IsReplica true) this node
// is holding for lists whose primary is another server.
func (s *Storage) GetAllReplicas() ([]*Record, error) {
	return s.filter(func(r *Record) bool { return r.IsReplica })
}

// GetAllNotSent returns every record still flagged NotSent, regardless of
// IsReplica: a client queues a write as not_sent when every proxy it tried
// was unreachable (spec §3.2's "not_sent: client-side only" field), and a
// record saved with IsReplica set is returned as well if it carries the
// flag. The client heartbeat loop reads this list.
func (s *Storage) GetAllNotSent() ([]*Record, error) {
	return s.filter(func(r *Record) bool { return r.NotSent })
}

func (s *Storage) filter(keep func(*Record) bool) ([]*Record, error) {
	var out []*Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLists).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(string(k), v)
			if err != nil {
				return err
			}
			if keep(rec) {
				out = append(out, rec)
			}
			return nil
		})
	})
	return out, err
}

func decodeRecord(uuid string, raw []byte) (*Record, error) {
	var rec storedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", uuid, err)
	}
	list, err := crdt.Deserialize(rec.List)
	if err != nil {
		return nil, fmt.Errorf("decode list %s: %w", uuid, err)
	}
	return &Record{
		UUID:         uuid,
		Name:         rec.Name,
		List:         list,
		LogicalClock: rec.Clock,
		IsReplica:    rec.IsReplica,
		ReplicaID:    rec.ReplicaID,
		NotSent:      rec.NotSent,
	}, nil
}
