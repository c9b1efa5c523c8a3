// Package memstore provides an in-memory storage.StorageEngine with
// scriptable fault injection. It exists for exercising the modify path's
// retry and rollback behavior, where driving the real pager/WAL engine into
// a deadlock on a chosen attempt is impractical to arrange.
package memstore

import (
	"errors"
	"strings"
	"sync"

	"github.com/isolovey-robarts/openldap/internal/storage"
)

// ErrNotFound is returned by Get and Delete for a missing DN.
var ErrNotFound = errors.New("memstore: entry not found")

// Store is an in-memory StorageEngine. Writes are staged per transaction
// and applied on Commit, so a Rollback really does discard them. Faults
// queued with FailGets/FailPuts/FailBegins are consumed one per call before
// the real operation runs.
type Store struct {
	mu      sync.Mutex
	entries map[string]*storage.Entry

	getFaults   []error
	putFaults   []error
	beginFaults []error

	gets        int
	puts        int
	commits     int
	rollbacks   int
	checkpoints int

	nextTxID uint64
	staged   map[uint64]map[string]*storage.Entry
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]*storage.Entry),
		staged:  make(map[uint64]map[string]*storage.Entry),
	}
}

// Seed installs an entry directly, bypassing transactions.
func (s *Store) Seed(entry *storage.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[strings.ToLower(entry.DN)] = entry.Clone()
}

// Entry returns a copy of the committed entry for dn, or nil.
func (s *Store) Entry(dn string) *storage.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[strings.ToLower(dn)]
	if !ok {
		return nil
	}
	return e.Clone()
}

// FailGets queues errs to be returned by the next Get calls, in order.
func (s *Store) FailGets(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getFaults = append(s.getFaults, errs...)
}

// FailPuts queues errs to be returned by the next Put calls, in order.
func (s *Store) FailPuts(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putFaults = append(s.putFaults, errs...)
}

// FailBegins queues errs to be returned by the next Begin calls, in order.
func (s *Store) FailBegins(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beginFaults = append(s.beginFaults, errs...)
}

// Counters returns how many Get/Put/Commit/Rollback calls have been made.
func (s *Store) Counters() (gets, puts, commits, rollbacks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.puts, s.commits, s.rollbacks
}

// Checkpoints returns how many Checkpoint calls have been made.
func (s *Store) Checkpoints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints
}

// Begin starts a transaction.
func (s *Store) Begin() (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.beginFaults) > 0 {
		err := s.beginFaults[0]
		s.beginFaults = s.beginFaults[1:]
		if err != nil {
			return nil, err
		}
	}
	s.nextTxID++
	s.staged[s.nextTxID] = make(map[string]*storage.Entry)
	return s.nextTxID, nil
}

// Commit applies the transaction's staged writes.
func (s *Store) Commit(tx interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	id, ok := tx.(uint64)
	if !ok {
		return errors.New("memstore: bad transaction handle")
	}
	for dn, entry := range s.staged[id] {
		if entry == nil {
			delete(s.entries, dn)
		} else {
			s.entries[dn] = entry
		}
	}
	delete(s.staged, id)
	return nil
}

// Rollback discards the transaction's staged writes.
func (s *Store) Rollback(tx interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks++
	if id, ok := tx.(uint64); ok {
		delete(s.staged, id)
	}
	return nil
}

// Get returns the entry for dn, honoring staged writes in this transaction.
func (s *Store) Get(tx interface{}, dn string) (*storage.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if len(s.getFaults) > 0 {
		err := s.getFaults[0]
		s.getFaults = s.getFaults[1:]
		if err != nil {
			return nil, err
		}
	}

	key := strings.ToLower(dn)
	if id, ok := tx.(uint64); ok {
		if entry, staged := s.staged[id][key]; staged {
			if entry == nil {
				return nil, ErrNotFound
			}
			return entry.Clone(), nil
		}
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.Clone(), nil
}

// Put stages an entry write in the transaction.
func (s *Store) Put(tx interface{}, entry *storage.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if len(s.putFaults) > 0 {
		err := s.putFaults[0]
		s.putFaults = s.putFaults[1:]
		if err != nil {
			return err
		}
	}

	id, ok := tx.(uint64)
	if !ok {
		return errors.New("memstore: bad transaction handle")
	}
	s.staged[id][strings.ToLower(entry.DN)] = entry.Clone()
	return nil
}

// Delete stages an entry removal in the transaction.
func (s *Store) Delete(tx interface{}, dn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := tx.(uint64)
	if !ok {
		return errors.New("memstore: bad transaction handle")
	}
	key := strings.ToLower(dn)
	if _, exists := s.entries[key]; !exists {
		if _, staged := s.staged[id][key]; !staged {
			return ErrNotFound
		}
	}
	s.staged[id][key] = nil
	return nil
}

// HasChildren reports whether any committed entry sits under dn.
func (s *Store) HasChildren(tx interface{}, dn string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	suffix := "," + strings.ToLower(dn)
	for key := range s.entries {
		if strings.HasSuffix(key, suffix) {
			return true, nil
		}
	}
	return false, nil
}

// SearchByDN iterates committed entries in scope under baseDN.
func (s *Store) SearchByDN(tx interface{}, baseDN string, scope storage.Scope) storage.Iterator {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := strings.ToLower(baseDN)
	var results []*storage.Entry
	for key, entry := range s.entries {
		switch scope {
		case storage.ScopeBase:
			if key == base {
				results = append(results, entry.Clone())
			}
		default:
			if key == base || strings.HasSuffix(key, ","+base) {
				results = append(results, entry.Clone())
			}
		}
	}
	return &sliceIterator{entries: results, index: -1}
}

// SearchByFilter iterates committed entries under baseDN matching f.
func (s *Store) SearchByFilter(tx interface{}, baseDN string, f interface{}) storage.Iterator {
	matcher, _ := f.(storage.FilterMatcher)
	it := s.SearchByDN(tx, baseDN, storage.ScopeSubtree).(*sliceIterator)
	if matcher == nil {
		return it
	}
	var filtered []*storage.Entry
	for _, entry := range it.entries {
		if matcher.Match(entry) {
			filtered = append(filtered, entry)
		}
	}
	return &sliceIterator{entries: filtered, index: -1}
}

// CreateIndex is a no-op; the store keeps no secondary indexes.
func (s *Store) CreateIndex(attribute string, indexType storage.IndexType) error { return nil }

// DropIndex is a no-op.
func (s *Store) DropIndex(attribute string) error { return nil }

// Checkpoint counts the call and succeeds.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints++
	return nil
}

// Compact is a no-op.
func (s *Store) Compact() error { return nil }

// Stats reports the committed entry count.
func (s *Store) Stats() *storage.EngineStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &storage.EngineStats{EntryCount: uint64(len(s.entries))}
}

// Close drops all state.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*storage.Entry)
	s.staged = make(map[uint64]map[string]*storage.Entry)
	return nil
}

type sliceIterator struct {
	entries []*storage.Entry
	index   int
}

func (it *sliceIterator) Next() bool {
	it.index++
	return it.index < len(it.entries)
}

func (it *sliceIterator) Entry() *storage.Entry {
	if it.index < 0 || it.index >= len(it.entries) {
		return nil
	}
	return it.entries[it.index]
}

func (it *sliceIterator) Error() error { return nil }
func (it *sliceIterator) Close()       {}
