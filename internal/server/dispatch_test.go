// Package server provides the LDAP server implementation.
package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isolovey-robarts/openldap/internal/ldap"
	"github.com/isolovey-robarts/openldap/internal/storage"
)

func dispatchEntry(dn string) *storage.Entry {
	entry := storage.NewEntry(dn)
	entry.SetStringAttribute("objectclass", "person")
	entry.SetStringAttribute("cn", "Alice")
	entry.SetStringAttribute("sn", "Smith")
	return entry
}

func replaceChange(attr string, values ...string) ldap.Modification {
	byteValues := make([][]byte, len(values))
	for i, v := range values {
		byteValues[i] = []byte(v)
	}
	return ldap.Modification{
		Operation: ldap.ModifyOperationReplace,
		Attribute: ldap.Attribute{Type: attr, Values: byteValues},
	}
}

func TestDispatchRejectsUnknownOperation(t *testing.T) {
	backend := newMockModifyBackend()
	backend.addEntry(dispatchEntry("uid=alice,dc=example,dc=com"))
	handler := NewModifyHandler(&ModifyConfig{Backend: backend})

	req := &ldap.ModifyRequest{
		Object: "uid=alice,dc=example,dc=com",
		Changes: []ldap.Modification{
			{Operation: ldap.ModifyOperation(7), Attribute: ldap.Attribute{Type: "cn", Values: [][]byte{[]byte("x")}}},
		},
	}

	result := handler.Handle(nil, req)
	assert.Equal(t, ldap.ResultProtocolError, result.ResultCode)
}

func TestDispatchRejectsEmptyAddValues(t *testing.T) {
	backend := newMockModifyBackend()
	backend.addEntry(dispatchEntry("uid=alice,dc=example,dc=com"))
	handler := NewModifyHandler(&ModifyConfig{Backend: backend})

	req := &ldap.ModifyRequest{
		Object: "uid=alice,dc=example,dc=com",
		Changes: []ldap.Modification{
			{Operation: ldap.ModifyOperationAdd, Attribute: ldap.Attribute{Type: "mail"}},
		},
	}

	result := handler.Handle(nil, req)
	assert.Equal(t, ldap.ResultProtocolError, result.ResultCode)
}

func TestDispatchAllowsEmptyDeleteAndReplace(t *testing.T) {
	backend := newMockModifyBackend()
	entry := dispatchEntry("uid=alice,dc=example,dc=com")
	entry.SetStringAttribute("mail", "a@x.com", "b@x.com")
	entry.SetStringAttribute("description", "temp")
	backend.addEntry(entry)
	handler := NewModifyHandler(&ModifyConfig{Backend: backend})

	req := &ldap.ModifyRequest{
		Object: "uid=alice,dc=example,dc=com",
		Changes: []ldap.Modification{
			{Operation: ldap.ModifyOperationReplace, Attribute: ldap.Attribute{Type: "mail"}},
			{Operation: ldap.ModifyOperationDelete, Attribute: ldap.Attribute{Type: "description"}},
		},
	}

	result := handler.Handle(nil, req)
	require.Equal(t, ldap.ResultSuccess, result.ResultCode)
	assert.Empty(t, getStringAttribute(entry, "mail"))
	assert.Empty(t, getStringAttribute(entry, "description"))
}

func TestDispatchRoutesLongestSuffix(t *testing.T) {
	wide := newMockModifyBackend()
	wide.addEntry(dispatchEntry("uid=bob,dc=example,dc=com"))
	narrow := newMockModifyBackend()
	narrow.addEntry(dispatchEntry("uid=alice,ou=users,dc=example,dc=com"))

	router := NewBackendRouter()
	router.Register("dc=example,dc=com", wide)
	router.Register("ou=users,dc=example,dc=com", narrow)

	handler := NewModifyHandler(&ModifyConfig{Router: router})

	req := &ldap.ModifyRequest{
		Object:  "uid=alice,ou=users,dc=example,dc=com",
		Changes: []ldap.Modification{replaceChange("cn", "Alicia")},
	}

	result := handler.Handle(nil, req)
	require.Equal(t, ldap.ResultSuccess, result.ResultCode)

	// The narrower naming context won.
	narrowEntry, _ := narrow.GetEntry("uid=alice,ou=users,dc=example,dc=com")
	require.NotNil(t, narrowEntry)
	assert.Equal(t, []string{"Alicia"}, getStringAttribute(narrowEntry, "cn"))
}

func TestDispatchUnownedNameReferral(t *testing.T) {
	router := NewBackendRouter()
	router.Register("dc=example,dc=com", newMockModifyBackend())

	handler := NewModifyHandler(&ModifyConfig{
		Router:          router,
		DefaultReferral: []string{"ldap://root.example.net"},
	})

	req := &ldap.ModifyRequest{
		Object:  "uid=alice,dc=elsewhere,dc=net",
		Changes: []ldap.Modification{replaceChange("cn", "x")},
	}

	result := handler.Handle(nil, req)
	assert.Equal(t, ldap.ResultPartialResults, result.ResultCode)
	assert.Equal(t, []string{"ldap://root.example.net"}, result.Referral)
}

func TestDispatchSuffixWithoutModifySupport(t *testing.T) {
	router := NewBackendRouter()
	router.Register("dc=example,dc=com", nil)

	handler := NewModifyHandler(&ModifyConfig{Router: router})

	req := &ldap.ModifyRequest{
		Object:  "uid=alice,dc=example,dc=com",
		Changes: []ldap.Modification{replaceChange("cn", "x")},
	}

	result := handler.Handle(nil, req)
	assert.Equal(t, ldap.ResultUnwillingToPerform, result.ResultCode)
}

func TestDispatchReplicaRefersForeignWriter(t *testing.T) {
	replica := newMockModifyBackend()
	replica.addEntry(dispatchEntry("uid=alice,dc=example,dc=com"))

	router := NewBackendRouter()
	router.RegisterReplica("dc=example,dc=com", replica,
		"cn=replicator,dc=example,dc=com", "ldap://master.example.com")

	handler := NewModifyHandler(&ModifyConfig{Router: router})

	req := &ldap.ModifyRequest{
		Object:  "uid=alice,dc=example,dc=com",
		Changes: []ldap.Modification{replaceChange("cn", "x")},
	}

	// A nil connection has no bind DN, which never matches the update DN.
	result := handler.Handle(nil, req)
	assert.Equal(t, ldap.ResultPartialResults, result.ResultCode)
	assert.Equal(t, []string{"ldap://master.example.com"}, result.Referral)

	// The replica's entry was not touched.
	entry, _ := replica.GetEntry("uid=alice,dc=example,dc=com")
	assert.Equal(t, []string{"Alice"}, getStringAttribute(entry, "cn"))
}

func TestDispatchAppendsReplogOnSuccess(t *testing.T) {
	backend := newMockModifyBackend()
	backend.addEntry(dispatchEntry("uid=alice,dc=example,dc=com"))
	replog := NewMemoryReplog()
	handler := NewModifyHandler(&ModifyConfig{Backend: backend, Replog: replog})

	req := &ldap.ModifyRequest{
		Object:  "uid=alice,dc=example,dc=com",
		Changes: []ldap.Modification{replaceChange("cn", "Alicia")},
	}

	result := handler.Handle(nil, req)
	require.Equal(t, ldap.ResultSuccess, result.ResultCode)

	records := replog.Records()
	require.Len(t, records, 1)
	assert.Equal(t, ReplogModify, records[0].Op)
	assert.Equal(t, "uid=alice,dc=example,dc=com", records[0].DN)
	require.Len(t, records[0].Changes, 1)
	assert.Equal(t, "cn", records[0].Changes[0].Attribute)
}

func TestDispatchSkipsReplogOnFailure(t *testing.T) {
	backend := newMockModifyBackend()
	replog := NewMemoryReplog()
	handler := NewModifyHandler(&ModifyConfig{Backend: backend, Replog: replog})

	req := &ldap.ModifyRequest{
		Object:  "uid=ghost,dc=example,dc=com",
		Changes: []ldap.Modification{replaceChange("cn", "x")},
	}

	result := handler.Handle(nil, req)
	assert.Equal(t, ldap.ResultNoSuchObject, result.ResultCode)
	assert.Empty(t, replog.Records())
}

func TestDispatchMapsEngineErrors(t *testing.T) {
	tests := []struct {
		name    string
		errText string
		want    ldap.ResultCode
	}{
		{"duplicate value", "TYPE_OR_VALUE_EXISTS: value already exists (cn)", ldap.ResultAttributeOrValueExists},
		{"missing attribute", "NO_SUCH_ATTRIBUTE: attribute does not exist (sn)", ldap.ResultNoSuchAttribute},
		{"constraint", "CONSTRAINT_VIOLATION: increment requires single-valued INTEGER syntax (cn)", ldap.ResultConstraintViolation},
		{"syntax", "INVALID_SYNTAX: not an integer (uidNumber)", ldap.ResultInvalidAttributeSyntax},
		{"access", "INSUFFICIENT_ACCESS: insufficient access", ldap.ResultInsufficientAccessRights},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newMockModifyBackend()
			backend.addEntry(dispatchEntry("uid=alice,dc=example,dc=com"))
			backend.modifyErr = errorString(tt.errText)
			handler := NewModifyHandler(&ModifyConfig{Backend: backend})

			req := &ldap.ModifyRequest{
				Object:  "uid=alice,dc=example,dc=com",
				Changes: []ldap.Modification{replaceChange("cn", "x")},
			}

			result := handler.Handle(nil, req)
			assert.Equal(t, tt.want, result.ResultCode)
		})
	}
}

func TestBackendRouterSuffixMatch(t *testing.T) {
	router := NewBackendRouter()
	wide := router.Register("dc=example,dc=com", newMockModifyBackend())
	narrow := router.Register("ou=users,dc=example,dc=com", newMockModifyBackend())

	assert.Equal(t, narrow, router.Route("uid=a,ou=users,dc=example,dc=com"))
	assert.Equal(t, wide, router.Route("uid=a,ou=groups,dc=example,dc=com"))
	assert.Equal(t, wide, router.Route("dc=example,dc=com"))
	assert.Nil(t, router.Route("dc=elsewhere,dc=net"))
	// A bare substring match is not containment.
	assert.Nil(t, router.Route("uid=a,dc=badexample,dc=net"))
}

// errorString is a trivial error implementation for table tests.
type errorString string

func (e errorString) Error() string { return string(e) }
