// Package index provides the Index Manager for coordinating multiple B+ Tree indexes
// for different attributes in ObaDB.
package index

import (
	"bytes"
	"strings"

	"github.com/isolovey-robarts/openldap/internal/storage/btree"
)

// IsIndexed reports whether the given attribute carries any index and
// therefore needs index maintenance when its values change.
func (im *IndexManager) IsIndexed(attr string) bool {
	im.mu.RLock()
	defer im.mu.RUnlock()

	if im.closed {
		return false
	}
	_, ok := im.indexes[strings.ToLower(attr)]
	return ok
}

// UpdateAttributeValues applies one attribute's value delta for the entry
// at ref: one delete pass over the old values followed by one add pass over
// the new values. Values present on both sides are left in place rather
// than churned through the tree.
func (im *IndexManager) UpdateAttributeValues(ref btree.EntryRef, attr string, oldValues, newValues [][]byte) error {
	im.mu.Lock()
	defer im.mu.Unlock()

	if im.closed {
		return ErrManagerClosed
	}
	return im.updateAttribute(ref, strings.ToLower(attr), oldValues, newValues)
}

// updateAttribute is the lock-free core of UpdateAttributeValues, shared
// with UpdateIndexes.
func (im *IndexManager) updateAttribute(ref btree.EntryRef, attr string, oldValues, newValues [][]byte) error {
	idx, ok := im.indexes[attr]
	if !ok {
		return nil
	}

	removed := diffValues(oldValues, newValues)
	added := diffValues(newValues, oldValues)

	for _, value := range removed {
		im.removeValueFromIndex(idx, value, ref)
	}
	for _, value := range added {
		if err := im.addValueToIndex(idx, value, ref); err != nil {
			return err
		}
	}

	// Presence entries track attribute existence, not individual values.
	if idx.Type == IndexPresence {
		hadValues := len(nonEmpty(oldValues)) > 0
		hasValues := len(nonEmpty(newValues)) > 0
		switch {
		case hadValues && !hasValues:
			_ = idx.Tree.Delete(PresenceMarker, ref)
		case !hadValues && hasValues:
			return idx.Tree.Insert(PresenceMarker, ref)
		}
	}

	return nil
}

// addValueToIndex inserts a single attribute value into idx for ref.
func (im *IndexManager) addValueToIndex(idx *Index, value []byte, ref btree.EntryRef) error {
	if len(value) == 0 {
		return nil
	}

	switch idx.Type {
	case IndexEquality:
		return idx.Tree.Insert(value, ref)
	case IndexSubstring:
		for _, substr := range generateSubstrings(value) {
			if err := idx.Tree.Insert(substr, ref); err != nil {
				return err
			}
		}
	}
	return nil
}

// removeValueFromIndex deletes a single attribute value from idx for ref.
// Not-found conditions are ignored; the value may never have been indexed.
func (im *IndexManager) removeValueFromIndex(idx *Index, value []byte, ref btree.EntryRef) {
	if len(value) == 0 {
		return
	}

	switch idx.Type {
	case IndexEquality:
		_ = idx.Tree.Delete(value, ref)
	case IndexSubstring:
		for _, substr := range generateSubstrings(value) {
			_ = idx.Tree.Delete(substr, ref)
		}
	}
}

// diffValues returns the values in a that are not in b, byte-exact.
func diffValues(a, b [][]byte) [][]byte {
	out := make([][]byte, 0, len(a))
	for _, av := range a {
		found := false
		for _, bv := range b {
			if bytes.Equal(av, bv) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, av)
		}
	}
	return out
}

// nonEmpty filters zero-length values.
func nonEmpty(values [][]byte) [][]byte {
	out := values[:0:0]
	for _, v := range values {
		if len(v) > 0 {
			out = append(out, v)
		}
	}
	return out
}
