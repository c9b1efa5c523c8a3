// Package backend provides the LDAP backend interface that wraps the storage engine
// and provides LDAP-specific operations including authentication, entry validation,
// and coordination with the storage layer.
package backend

import (
	"github.com/google/uuid"
)

// GenerateUUID generates an RFC 4122 version 4 UUID for use as an entryUUID value.
// The UUID is formatted as a standard UUID string: xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
func GenerateUUID() string {
	return uuid.New().String()
}
