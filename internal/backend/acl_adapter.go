// Package backend provides the LDAP backend interface that wraps the storage engine
// and provides LDAP-specific operations including authentication, entry validation,
// and coordination with the storage layer.
package backend

import (
	"strings"

	"github.com/isolovey-robarts/openldap/internal/acl"
)

// evaluatorACL adapts *acl.Evaluator to the ACLChecker contract the modify
// driver consumes: one write-access check covering every attribute the
// modification list touches.
type evaluatorACL struct {
	ev *acl.Evaluator
}

// ACLCheckerFromEvaluator wraps an ACL evaluator as an ACLChecker.
// Returns nil for a nil evaluator so callers can pass the result through
// unconditionally.
func ACLCheckerFromEvaluator(ev *acl.Evaluator) ACLChecker {
	if ev == nil {
		return nil
	}
	return evaluatorACL{ev: ev}
}

// CheckModList reports whether bindDN holds write access to every attribute
// mods touches on targetDN.
func (a evaluatorACL) CheckModList(bindDN, targetDN string, mods []Modification) bool {
	attrs := make([]string, 0, len(mods))
	seen := make(map[string]bool, len(mods))
	for _, mod := range mods {
		name := strings.ToLower(mod.Attribute)
		if !seen[name] {
			attrs = append(attrs, name)
			seen[name] = true
		}
	}

	ctx := acl.NewAccessContext(bindDN, targetDN, acl.Write).WithAttributes(attrs...)
	return a.ev.CheckAccess(ctx)
}
