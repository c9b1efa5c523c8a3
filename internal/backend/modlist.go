// Package backend provides the LDAP backend interface that wraps the storage engine
// and provides LDAP-specific operations including authentication, entry validation,
// and coordination with the storage layer.
package backend

import (
	"strconv"
	"strings"

	"github.com/isolovey-robarts/openldap/internal/schema"
)

// valueEngine carries the schema lookup needed to resolve an attribute's
// equality-matching rule and syntax. A nil schema is legal and falls back
// to byte-exact comparison for every attribute.
type valueEngine struct {
	schema *schema.Schema
}

func newValueEngine(s *schema.Schema) *valueEngine {
	return &valueEngine{schema: s}
}

// attrType resolves the schema AttributeType for name, or nil if unknown.
func (ve *valueEngine) attrType(name string) *schema.AttributeType {
	if ve.schema == nil {
		return nil
	}
	return ve.schema.GetAttributeType(name)
}

// normalize returns the comparison form of a value for the given attribute:
// case- and whitespace-folded for caseIgnore/distinguishedName/numericString
// equality rules, unchanged otherwise.
func (ve *valueEngine) normalize(attrName, value string) string {
	at := ve.attrType(attrName)
	if at == nil {
		return value
	}
	eq := strings.ToLower(at.Equality)
	switch {
	case strings.Contains(eq, "caseignore"), strings.Contains(eq, "distinguishedname"),
		strings.Contains(eq, "numericstring"):
		return strings.Join(strings.Fields(strings.ToLower(value)), " ")
	default:
		return value
	}
}

// equal reports whether a and b are the same value of attrName under its
// equality matching rule, falling back to byte-exact comparison when the
// attribute carries no equality rule.
func (ve *valueEngine) equal(attrName, a, b string) bool {
	return ve.normalize(attrName, a) == ve.normalize(attrName, b)
}

// contains reports whether values already contains v under attrName's
// equality rule.
func (ve *valueEngine) contains(values []string, attrName, v string) bool {
	for _, existing := range values {
		if ve.equal(attrName, existing, v) {
			return true
		}
	}
	return false
}

// applyAdd adds values to attr. All-or-nothing: a non-permissive add that
// finds any duplicate leaves the entry completely unchanged.
func (ve *valueEngine) applyAdd(entry *Entry, attr string, values []string, permissive bool) *ModError {
	existing := entry.GetAttribute(attr)
	toAdd := make([]string, 0, len(values))

	for _, v := range values {
		dup := ve.contains(existing, attr, v) || ve.contains(toAdd, attr, v)
		if dup {
			if permissive {
				continue
			}
			return NewModError(ModTypeOrValueExists, attr, "value already exists")
		}
		toAdd = append(toAdd, v)
	}

	for _, v := range toAdd {
		entry.AddAttributeValue(attr, v)
	}
	return nil
}

// applyDelete removes the whole attribute when values is empty, otherwise
// removes exactly the supplied values. Removing the last value removes the
// attribute. Missing attributes or values are an error unless permissive.
func (ve *valueEngine) applyDelete(entry *Entry, attr string, values []string, permissive bool) *ModError {
	if len(values) == 0 {
		if !entry.HasAttribute(attr) {
			if permissive {
				return nil
			}
			return NewModError(ModNoSuchAttribute, attr, "attribute does not exist")
		}
		entry.DeleteAttribute(attr)
		return nil
	}

	existing := entry.GetAttribute(attr)
	remaining := make([]string, 0, len(existing))
	removed := make(map[int]bool, len(values))

	for _, ev := range existing {
		match := false
		for i, dv := range values {
			if removed[i] {
				continue
			}
			if ve.equal(attr, ev, dv) {
				match = true
				removed[i] = true
				break
			}
		}
		if !match {
			remaining = append(remaining, ev)
		}
	}

	for i, dv := range values {
		if !removed[i] {
			if permissive {
				continue
			}
			return NewModError(ModNoSuchAttribute, attr, "value does not exist: "+dv)
		}
	}

	if len(remaining) == 0 {
		entry.DeleteAttribute(attr)
	} else {
		entry.SetAttribute(attr, remaining...)
	}
	return nil
}

// applyReplace is an atomic delete-all-of-attr followed by add(values).
// An empty value list removes the attribute; duplicates among the supplied
// values are a constraint violation unless permissive.
func (ve *valueEngine) applyReplace(entry *Entry, attr string, values []string, permissive bool) *ModError {
	if len(values) == 0 {
		entry.DeleteAttribute(attr)
		return nil
	}

	deduped := make([]string, 0, len(values))
	for _, v := range values {
		if ve.contains(deduped, attr, v) {
			if permissive {
				continue
			}
			return NewModError(ModConstraintViolation, attr, "duplicate value in replace")
		}
		deduped = append(deduped, v)
	}

	entry.SetAttribute(attr, deduped...)
	return nil
}

// applyIncrement adds an integer delta to a single-valued INTEGER-syntax
// attribute. Anything else (absent attribute, multi-valued, non-integer
// syntax, unparseable value) is a constraint violation.
func (ve *valueEngine) applyIncrement(entry *Entry, attr string, values []string, _ bool) *ModError {
	if len(values) != 1 {
		return NewModError(ModConstraintViolation, attr, "increment requires exactly one delta value")
	}

	at := ve.attrType(attr)
	if at == nil || !at.SingleValue || at.Syntax != schema.SyntaxInteger {
		return NewModError(ModConstraintViolation, attr, "increment requires single-valued INTEGER syntax")
	}

	delta, err := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64)
	if err != nil {
		return NewModError(ModConstraintViolation, attr, "increment delta is not an integer")
	}

	existing := entry.GetAttribute(attr)
	if len(existing) != 1 {
		return NewModError(ModConstraintViolation, attr, "attribute absent or not single-valued")
	}

	current, err := strconv.ParseInt(strings.TrimSpace(existing[0]), 10, 64)
	if err != nil {
		return NewModError(ModConstraintViolation, attr, "existing value is not an integer")
	}

	entry.SetAttribute(attr, strconv.FormatInt(current+delta, 10))
	return nil
}

// applySoftAdd is an ordinary all-or-nothing add whose duplicate-value
// failure is reported as success: when any supplied value already exists
// the entry is left unchanged, exactly as a failed add leaves it, and the
// error is swallowed. It is its own code path rather than a temporary
// rewrite of the modification type, so the Modification passed in is
// never mutated.
func (ve *valueEngine) applySoftAdd(entry *Entry, attr string, values []string, permissive bool) *ModError {
	err := ve.applyAdd(entry, attr, values, permissive)
	if err != nil && err.Code == ModTypeOrValueExists {
		return nil
	}
	return err
}

// apply dispatches a single Modification to the matching operation.
func (ve *valueEngine) apply(entry *Entry, mod Modification, permissive bool) *ModError {
	attr := strings.ToLower(mod.Attribute)
	switch mod.Type {
	case ModAdd:
		return ve.applyAdd(entry, attr, mod.Values, permissive)
	case ModDelete:
		return ve.applyDelete(entry, attr, mod.Values, permissive)
	case ModReplace:
		return ve.applyReplace(entry, attr, mod.Values, permissive)
	case ModIncrement:
		return ve.applyIncrement(entry, attr, mod.Values, permissive)
	case ModSoftAdd:
		return ve.applySoftAdd(entry, attr, mod.Values, permissive)
	default:
		return NewModError(ModOther, attr, "unknown modification operation")
	}
}
