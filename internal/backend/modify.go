// Package backend provides the LDAP backend interface that wraps the storage engine
// and provides LDAP-specific operations including authentication, entry validation,
// and coordination with the storage layer.
package backend

import (
	"strings"

	"github.com/isolovey-robarts/openldap/internal/schema"
	"github.com/isolovey-robarts/openldap/internal/server"
)

// IndexUpdater maintains the secondary value indexes for entries touched by
// a modify: it reports whether an attribute is indexed at all, and applies
// the pre-image delete / post-image add passes the engine computes for each
// touched attribute.
type IndexUpdater interface {
	// IsIndexed reports whether values of attr are mirrored into a
	// secondary index and therefore need index maintenance on change.
	IsIndexed(attr string) bool
	// ApplyDelete removes values from attr's index entries for the entry
	// identified by dn (the pre-image pass).
	ApplyDelete(dn, attr string, values []string) error
	// ApplyAdd inserts values into attr's index entries for the entry
	// identified by dn (the post-image pass).
	ApplyAdd(dn, attr string, values []string) error
}

// glueObjectClass is the objectClass value marking a subtree-placeholder
// entry that exists only to hold children together.
const glueObjectClass = "glue"

// operationalAttrNames lists the attributes a glue promotion keeps, along
// with objectClass/structuralObjectClass which it keeps explicitly.
var operationalAttrNames = map[string]bool{
	"modifytimestamp": true,
	"modifiersname":   true,
	"createtimestamp": true,
	"creatorsname":    true,
	"entryuuid":       true,
	"entrydn":         true,
}

// ModifyEngine applies an ordered modification list to a working Entry:
// glue promotion, per-modification value application with save/restore on
// failure, schema validation after all modifications, and index maintenance
// for every touched indexed attribute.
type ModifyEngine struct {
	ve        *valueEngine
	validator *schema.Validator
	index     IndexUpdater
}

// NewModifyEngine builds a Modify Engine over the given schema (for value
// matching and post-apply validation) and index updater (may be nil).
func NewModifyEngine(s *schema.Schema, index IndexUpdater) *ModifyEngine {
	var validator *schema.Validator
	if s != nil {
		validator = schema.NewValidator(s)
	}
	return &ModifyEngine{
		ve:        newValueEngine(s),
		validator: validator,
		index:     index,
	}
}

// ApplyResult carries the outcome of a successful ModifyEngine.Apply.
type ApplyResult struct {
	// NoOp is true when the request was flagged no-op: validation ran and
	// passed, the entry was left untouched, and the caller should abort
	// its transaction while still replying success.
	NoOp bool
}

// Apply runs mods against entry in list order. entry is mutated in place on
// success; on any failure entry is restored to its original attribute set
// and the failure is returned.
func (eng *ModifyEngine) Apply(entry *Entry, mods []Modification, permissive, noOp bool) (*ApplyResult, *ModError) {
	if entry == nil {
		return nil, NewModError(ModOther, "", "nil entry")
	}

	saved := cloneAttrs(entry.Attributes)
	isGluePromotion := glueDelete(mods)
	touched := make(map[string]bool, len(mods))

	if isGluePromotion {
		stripNonOperational(entry)
	}

	for _, mod := range mods {
		if isGluePromotion && mod.Type == ModDelete {
			// The promotion already stripped everything a DELETE could
			// target; treat it as applied.
			continue
		}

		if err := eng.ve.apply(entry, mod, permissive); err != nil {
			restoreAttrs(entry, saved)
			return nil, err
		}

		attr := strings.ToLower(mod.Attribute)
		if attr == "objectclass" || attr == "structuralobjectclass" {
			entry.invalidateObjectClassCache()
		}
		if eng.index != nil && eng.index.IsIndexed(attr) {
			touched[attr] = true
		}
	}

	if err := eng.validate(entry); err != nil {
		restoreAttrs(entry, saved)
		return nil, wrapModError(ModOther, "", err)
	}

	if noOp {
		restoreAttrs(entry, saved)
		return &ApplyResult{NoOp: true}, nil
	}

	// Each touched indexed attribute gets exactly one pre-image delete
	// pass and one post-image add pass.
	if eng.index != nil {
		for attr := range touched {
			if err := eng.index.ApplyDelete(entry.DN, attr, saved[attr]); err != nil {
				restoreAttrs(entry, saved)
				return nil, wrapModError(ModOther, attr, err)
			}
			if err := eng.index.ApplyAdd(entry.DN, attr, entry.Attributes[attr]); err != nil {
				restoreAttrs(entry, saved)
				return nil, wrapModError(ModOther, attr, err)
			}
		}
	}

	return &ApplyResult{}, nil
}

// validate converts entry to the schema package's validation Entry type and
// runs ValidateEntry against it.
func (eng *ModifyEngine) validate(entry *Entry) error {
	if eng.validator == nil {
		return nil
	}
	se := &schema.Entry{DN: entry.DN, Attributes: make(map[string][][]byte, len(entry.Attributes))}
	for name, values := range entry.Attributes {
		bv := make([][]byte, len(values))
		for i, v := range values {
			bv[i] = []byte(v)
		}
		se.Attributes[name] = bv
	}
	return eng.validator.ValidateEntry(se)
}

// glueDelete reports whether mods promotes a glue entry to a real one: any
// ADD or REPLACE of structuralObjectClass whose first value is not the
// literal "glue".
func glueDelete(mods []Modification) bool {
	for _, mod := range mods {
		if strings.ToLower(mod.Attribute) != "structuralobjectclass" {
			continue
		}
		if mod.Type != ModAdd && mod.Type != ModReplace {
			continue
		}
		if len(mod.Values) == 0 || strings.EqualFold(mod.Values[0], glueObjectClass) {
			return false
		}
		return true
	}
	return false
}

// stripNonOperational drops every attribute from entry except operational
// ones and the objectClass pair, which a glue promotion keeps.
func stripNonOperational(entry *Entry) {
	for name := range entry.Attributes {
		lower := strings.ToLower(name)
		if lower == "objectclass" || lower == "structuralobjectclass" || operationalAttrNames[lower] {
			continue
		}
		delete(entry.Attributes, name)
	}
	entry.invalidateObjectClassCache()
}

// restoreAttrs swaps the saved attribute set back into entry and drops the
// memoized objectClass state computed against the discarded working set.
func restoreAttrs(entry *Entry, saved map[string][]string) {
	entry.Attributes = saved
	entry.invalidateObjectClassCache()
}

// cloneAttrs makes a value-copying clone of an attribute map: new map and
// slices over the same underlying string data, so restoring the saved set
// is a single map swap and the discarded side's containers are left to the
// garbage collector.
func cloneAttrs(attrs map[string][]string) map[string][]string {
	out := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// ModifyEntry keeps the server.ModifyBackend contract server/modify.go has
// always depended on, but now builds a modification list and drives it
// through the transaction driver instead of mutating the entry inline with
// no validation or retry.
func (b *ObaBackend) ModifyEntry(dn string, changes []server.Modification) error {
	return b.ModifyEntryWithOptions(dn, changes, ModifyOptions{})
}

// ModifyEntryWithOptions is ModifyEntry plus the permissive/no-op/bind-DN
// knobs the transaction driver supports but the narrower ModifyBackend
// interface has no room for.
func (b *ObaBackend) ModifyEntryWithOptions(dn string, changes []server.Modification, opts ModifyOptions) error {
	if dn == "" {
		return ErrInvalidDN
	}
	if len(changes) == 0 {
		return nil
	}

	mods := make([]Modification, len(changes))
	for i, c := range changes {
		mods[i] = Modification{Type: modTypeFromServer(c.Type), Attribute: c.Attribute, Values: c.Values}
	}

	opts.DN = dn
	opts.Mods = mods

	result, err := b.getModifyDriver().Modify(opts)
	if err != nil {
		return err
	}
	return result.BackendError()
}

func modTypeFromServer(t server.ModificationType) ModificationType {
	switch t {
	case server.ModifyAdd:
		return ModAdd
	case server.ModifyDelete:
		return ModDelete
	default:
		return ModReplace
	}
}
