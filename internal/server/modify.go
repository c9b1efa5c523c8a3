// Package server provides the LDAP server implementation.
package server

import (
	"strings"

	"github.com/isolovey-robarts/openldap/internal/acl"
	"github.com/isolovey-robarts/openldap/internal/ldap"
)

// ModificationType represents the type of modification operation.
type ModificationType int

const (
	// ModifyAdd adds values to an attribute.
	ModifyAdd ModificationType = iota
	// ModifyDelete removes values from an attribute.
	ModifyDelete
	// ModifyReplace replaces all values of an attribute.
	ModifyReplace
)

// Modification represents a single modification to an entry.
type Modification struct {
	// Type is the type of modification (add, delete, replace).
	Type ModificationType
	// Attribute is the name of the attribute to modify.
	Attribute string
	// Values are the values to add, delete, or replace.
	Values []string
}

// ModifyBackend defines the interface for the directory backend used by modify operations.
// It extends the basic Backend interface with modify-specific methods.
type ModifyBackend interface {
	Backend
	// ModifyEntry modifies an entry by its DN with the given changes.
	// Returns an error if the entry does not exist or modifications are invalid.
	ModifyEntry(dn string, changes []Modification) error
}

// ModifyConfig holds configuration for the modify handler.
type ModifyConfig struct {
	// Backend is the directory backend for entry operations when no
	// Router is configured.
	Backend ModifyBackend
	// Router, when set, selects the backend per request by longest-suffix
	// match over its registered naming contexts.
	Router *BackendRouter
	// ACLEvaluator is the ACL evaluator for access control checks.
	// If nil, no ACL checks are performed.
	ACLEvaluator *acl.Evaluator
	// Replog, when set, receives a record for every successful modify.
	Replog ReplogWriter
	// DefaultReferral is handed back when no registered backend owns the
	// target name.
	DefaultReferral []string
}

// NewModifyConfig creates a new ModifyConfig with default settings.
func NewModifyConfig() *ModifyConfig {
	return &ModifyConfig{}
}

// ModifyHandlerImpl implements the modify operation handler.
type ModifyHandlerImpl struct {
	config *ModifyConfig
}

// NewModifyHandler creates a new modify handler with the given configuration.
func NewModifyHandler(config *ModifyConfig) *ModifyHandlerImpl {
	if config == nil {
		config = NewModifyConfig()
	}
	return &ModifyHandlerImpl{
		config: config,
	}
}

// Handle processes a modify request and returns the result.
// It implements the ModifyHandler function signature.
func (h *ModifyHandlerImpl) Handle(conn *Connection, req *ldap.ModifyRequest) *OperationResult {
	// Step 1: Validate the request envelope
	if err := req.Validate(); err != nil {
		return &OperationResult{
			ResultCode:        ldap.ResultProtocolError,
			DiagnosticMessage: err.Error(),
		}
	}

	// Step 2: Validate the change list shape. Only add/delete/replace are
	// legal from the wire, and an empty value list is only meaningful for
	// delete (meaning "remove the attribute entirely").
	if msg := validateChangeList(req.Changes); msg != "" {
		return &OperationResult{
			ResultCode:        ldap.ResultProtocolError,
			DiagnosticMessage: msg,
		}
	}

	// Step 3: Normalize the DN and select a backend
	dn := normalizeDNForModify(req.Object)

	backend, routeResult := h.selectBackend(conn, dn)
	if routeResult != nil {
		return routeResult
	}
	if backend == nil {
		return &OperationResult{
			ResultCode:        ldap.ResultOperationsError,
			DiagnosticMessage: "backend not configured",
		}
	}

	// Step 4: Check ACL write permission
	if h.config.ACLEvaluator != nil {
		bindDN := ""
		if conn != nil {
			bindDN = conn.BindDN()
		}

		// Get the list of attributes being modified
		modifiedAttrs := getModifiedAttributes(req.Changes)

		// Create access context with attributes
		ctx := acl.NewAccessContext(bindDN, dn, acl.Write).WithAttributes(modifiedAttrs...)

		if !h.config.ACLEvaluator.CheckAccess(ctx) {
			return &OperationResult{
				ResultCode:        ldap.ResultInsufficientAccessRights,
				DiagnosticMessage: "insufficient access rights",
			}
		}
	}

	// Step 5: Check if entry exists
	entry, err := backend.GetEntry(dn)
	if err != nil {
		return &OperationResult{
			ResultCode:        ldap.ResultOperationsError,
			DiagnosticMessage: "internal error during modify",
		}
	}

	if entry == nil {
		return &OperationResult{
			ResultCode:        ldap.ResultNoSuchObject,
			MatchedDN:         findMatchedDNForModify(dn),
			DiagnosticMessage: "entry does not exist",
		}
	}

	// Step 6: Convert LDAP modifications to backend modifications
	backendChanges := convertToBackendModifications(req.Changes)

	// Step 7: Apply the modifications
	if err := backend.ModifyEntry(dn, backendChanges); err != nil {
		return h.mapError(err, dn)
	}

	// Step 8: Record the change for replication consumers
	if h.config.Replog != nil {
		_ = h.config.Replog.AppendModify(req.Object, backendChanges)
	}

	return &OperationResult{
		ResultCode: ldap.ResultSuccess,
	}
}

// selectBackend resolves the backend for dn. A non-nil OperationResult is
// a terminal reply (unowned name, replica refusal, missing modify entry
// point) the caller returns as-is.
func (h *ModifyHandlerImpl) selectBackend(conn *Connection, dn string) (ModifyBackend, *OperationResult) {
	if h.config.Router == nil {
		return h.config.Backend, nil
	}

	routed := h.config.Router.Route(dn)
	if routed == nil {
		return nil, &OperationResult{
			ResultCode:        ldap.ResultPartialResults,
			Referral:          h.config.DefaultReferral,
			DiagnosticMessage: "no backend holds the target name",
		}
	}

	if routed.Backend == nil {
		return nil, &OperationResult{
			ResultCode:        ldap.ResultUnwillingToPerform,
			DiagnosticMessage: "backend does not support modify",
		}
	}

	if routed.IsReplica() {
		bindDN := ""
		if conn != nil {
			bindDN = conn.BindDN()
		}
		if !strings.EqualFold(normalizeDNForModify(bindDN), normalizeDNForModify(routed.UpdateDN)) {
			referral := routed.Referral
			if len(referral) == 0 {
				referral = h.config.DefaultReferral
			}
			return nil, &OperationResult{
				ResultCode:        ldap.ResultPartialResults,
				Referral:          referral,
				DiagnosticMessage: "shadow context; refer to the master",
			}
		}
	}

	return routed.Backend, nil
}

// validateChangeList rejects change lists a well-formed client can never
// produce. Returns a diagnostic message, or "" when the list is legal.
func validateChangeList(changes []ldap.Modification) string {
	for _, change := range changes {
		switch change.Operation {
		case ldap.ModifyOperationAdd:
			if len(change.Attribute.Values) == 0 {
				return "add modification requires at least one value"
			}
		case ldap.ModifyOperationDelete, ldap.ModifyOperationReplace:
			// Empty values mean "remove the attribute".
		default:
			return "unknown modification operation"
		}
	}
	return ""
}

// getModifiedAttributes extracts the list of attribute names being modified.
func getModifiedAttributes(changes []ldap.Modification) []string {
	attrs := make([]string, 0, len(changes))
	seen := make(map[string]bool)

	for _, change := range changes {
		attrName := strings.ToLower(change.Attribute.Type)
		if !seen[attrName] {
			attrs = append(attrs, attrName)
			seen[attrName] = true
		}
	}

	return attrs
}

// mapError maps backend errors to LDAP result codes. The backend reports
// structured failures with a stable status-name prefix in the text, so the
// mapping keys on those names first and falls back to the older substring
// heuristics.
func (h *ModifyHandlerImpl) mapError(err error, dn string) *OperationResult {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "TYPE_OR_VALUE_EXISTS"):
		return &OperationResult{
			ResultCode:        ldap.ResultAttributeOrValueExists,
			DiagnosticMessage: errStr,
		}
	case strings.Contains(errStr, "NO_SUCH_ATTRIBUTE"):
		return &OperationResult{
			ResultCode:        ldap.ResultNoSuchAttribute,
			DiagnosticMessage: errStr,
		}
	case strings.Contains(errStr, "CONSTRAINT_VIOLATION"):
		return &OperationResult{
			ResultCode:        ldap.ResultConstraintViolation,
			DiagnosticMessage: errStr,
		}
	case strings.Contains(errStr, "INVALID_SYNTAX"):
		return &OperationResult{
			ResultCode:        ldap.ResultInvalidAttributeSyntax,
			DiagnosticMessage: errStr,
		}
	case strings.Contains(errStr, "INSUFFICIENT_ACCESS"):
		return &OperationResult{
			ResultCode:        ldap.ResultInsufficientAccessRights,
			DiagnosticMessage: "insufficient access rights",
		}
	case strings.Contains(errStr, "ASSERTION_FAILED"):
		return &OperationResult{
			ResultCode:        ldap.ResultAssertionFailed,
			DiagnosticMessage: "assertion failed",
		}
	case strings.Contains(errStr, "referral"):
		return &OperationResult{
			ResultCode:        ldap.ResultReferral,
			Referral:          h.config.DefaultReferral,
			DiagnosticMessage: "entry is a referral",
		}
	}

	if strings.Contains(errStr, "not found") {
		return &OperationResult{
			ResultCode:        ldap.ResultNoSuchObject,
			MatchedDN:         findMatchedDNForModify(dn),
			DiagnosticMessage: "entry does not exist",
		}
	}

	if strings.Contains(errStr, "invalid") {
		return &OperationResult{
			ResultCode:        ldap.ResultConstraintViolation,
			DiagnosticMessage: "modification violates constraints: " + errStr,
		}
	}

	if strings.Contains(errStr, "schema") || strings.Contains(errStr, "objectclass") {
		return &OperationResult{
			ResultCode:        ldap.ResultObjectClassViolation,
			DiagnosticMessage: "schema violation: " + errStr,
		}
	}

	if strings.Contains(errStr, "attribute") && strings.Contains(errStr, "required") {
		return &OperationResult{
			ResultCode:        ldap.ResultObjectClassViolation,
			DiagnosticMessage: "required attribute missing: " + errStr,
		}
	}

	return &OperationResult{
		ResultCode:        ldap.ResultOperationsError,
		DiagnosticMessage: "failed to modify entry: " + errStr,
	}
}

// convertToBackendModifications converts LDAP modifications to server modifications.
func convertToBackendModifications(changes []ldap.Modification) []Modification {
	result := make([]Modification, len(changes))

	for i, change := range changes {
		// Convert values from [][]byte to []string
		values := make([]string, len(change.Attribute.Values))
		for j, v := range change.Attribute.Values {
			values[j] = string(v)
		}

		// Map LDAP operation to modification type
		var modType ModificationType
		switch change.Operation {
		case ldap.ModifyOperationAdd:
			modType = ModifyAdd
		case ldap.ModifyOperationDelete:
			modType = ModifyDelete
		case ldap.ModifyOperationReplace:
			modType = ModifyReplace
		}

		result[i] = Modification{
			Type:      modType,
			Attribute: change.Attribute.Type,
			Values:    values,
		}
	}

	return result
}

// normalizeDNForModify normalizes a DN for consistent comparison.
// It converts to lowercase and trims whitespace.
func normalizeDNForModify(dn string) string {
	return strings.ToLower(strings.TrimSpace(dn))
}

// findMatchedDNForModify finds the longest existing parent DN for error reporting.
// For now, returns empty string as we don't have access to the full tree.
func findMatchedDNForModify(dn string) string {
	// In a full implementation, this would traverse up the DN tree
	// to find the closest existing ancestor.
	// For now, return empty string.
	return ""
}

// CreateModifyHandler creates a ModifyHandler function from a ModifyHandlerImpl.
// This allows the ModifyHandlerImpl to be used with the Handler's SetModifyHandler method.
func CreateModifyHandler(impl *ModifyHandlerImpl) ModifyHandler {
	return func(conn *Connection, req *ldap.ModifyRequest) *OperationResult {
		return impl.Handle(conn, req)
	}
}
