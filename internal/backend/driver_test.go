// Package backend provides the LDAP backend interface tests.
package backend

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isolovey-robarts/openldap/internal/backend/memstore"
	"github.com/isolovey-robarts/openldap/internal/storage"
)

// fakeClock always reports the same instant.
type fakeClock struct {
	t time.Time
}

func (c fakeClock) Now() time.Time { return c.t }

// denyACL refuses every modification list.
type denyACL struct{}

func (denyACL) CheckModList(bindDN, targetDN string, mods []Modification) bool { return false }

var testInstant = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func seedPerson(store *memstore.Store, dn string) {
	entry := storage.NewEntry(dn)
	entry.SetStringAttribute("objectclass", "person")
	entry.SetStringAttribute("cn", "Alice")
	entry.SetStringAttribute("sn", "Smith")
	entry.SetStringAttribute("mail", "a@x.com")
	store.Seed(entry)
}

func testDriver(t *testing.T, store *memstore.Store, cfg ModifyConfig) *ModifyDriver {
	t.Helper()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 4
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Millisecond
		cfg.MaxBackoff = 2 * time.Millisecond
	}
	return NewModifyDriver(ModifyDriverConfig{
		Engine:       store,
		Schema:       engineSchema(t),
		Clock:        fakeClock{t: testInstant},
		ModifyConfig: cfg,
	})
}

const aliceDN = "uid=alice,ou=users,dc=example,dc=com"

func TestDriverModifySuccess(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	driver := testDriver(t, store, ModifyConfig{})

	result, err := driver.Modify(ModifyOptions{
		DN:     aliceDN,
		BindDN: "cn=admin,dc=example,dc=com",
		Mods:   []Modification{{Type: ModReplace, Attribute: "mail", Values: []string{"new@x.com"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, ModOK, result.Code)
	assert.Zero(t, result.Retries)

	committed := store.Entry(aliceDN)
	require.NotNil(t, committed)
	assert.Equal(t, [][]byte{[]byte("new@x.com")}, committed.GetAttribute("mail"))
}

func TestDriverStampsOperationalAttributes(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	driver := testDriver(t, store, ModifyConfig{})

	// The client-supplied modifiersName must be dropped and replaced by
	// the server-generated value.
	result, err := driver.Modify(ModifyOptions{
		DN:     aliceDN,
		BindDN: "cn=admin,dc=example,dc=com",
		Mods: []Modification{
			{Type: ModReplace, Attribute: "cn", Values: []string{"Bob"}},
			{Type: ModReplace, Attribute: "modifiersName", Values: []string{"cn=evil"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, ModOK, result.Code)

	committed := store.Entry(aliceDN)
	require.NotNil(t, committed)
	assert.Equal(t, [][]byte{[]byte("cn=admin,dc=example,dc=com")}, committed.GetAttribute("modifiersname"))
	assert.Equal(t, [][]byte{[]byte(FormatTimestamp(testInstant))}, committed.GetAttribute("modifytimestamp"))
}

func TestDriverStampsNullDNForAnonymous(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	driver := testDriver(t, store, ModifyConfig{})

	_, err := driver.Modify(ModifyOptions{
		DN:   aliceDN,
		Mods: []Modification{{Type: ModReplace, Attribute: "cn", Values: []string{"Bob"}}},
	})
	require.NoError(t, err)

	committed := store.Entry(aliceDN)
	assert.Equal(t, [][]byte{[]byte(NullDN)}, committed.GetAttribute("modifiersname"))
}

func TestDriverRetriesTransientLookup(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	store.FailGets(
		NewTransientError(TransientDeadlock, errors.New("deadlock victim")),
		NewTransientError(TransientNotGranted, errors.New("lock timeout")),
	)
	driver := testDriver(t, store, ModifyConfig{})

	result, err := driver.Modify(ModifyOptions{
		DN:   aliceDN,
		Mods: []Modification{{Type: ModReplace, Attribute: "mail", Values: []string{"new@x.com"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, ModOK, result.Code)
	assert.Equal(t, 2, result.Retries)

	// Attempts one and two were rolled back before the third committed.
	_, _, commits, rollbacks := store.Counters()
	assert.Equal(t, 1, commits)
	assert.GreaterOrEqual(t, rollbacks, 2)

	committed := store.Entry(aliceDN)
	assert.Equal(t, [][]byte{[]byte("new@x.com")}, committed.GetAttribute("mail"))
}

func TestDriverRetriesTransientPersist(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	store.FailPuts(NewTransientError(TransientDeadlock, errors.New("deadlock victim")))
	driver := testDriver(t, store, ModifyConfig{})

	result, err := driver.Modify(ModifyOptions{
		DN:   aliceDN,
		Mods: []Modification{{Type: ModReplace, Attribute: "mail", Values: []string{"new@x.com"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, ModOK, result.Code)
	assert.Equal(t, 1, result.Retries)
}

func TestDriverRetryLimitExceeded(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	faults := make([]error, 0, 8)
	for i := 0; i < 8; i++ {
		faults = append(faults, NewTransientError(TransientDeadlock, errors.New("deadlock victim")))
	}
	store.FailGets(faults...)
	driver := testDriver(t, store, ModifyConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	_, err := driver.Modify(ModifyOptions{
		DN:   aliceDN,
		Mods: []Modification{{Type: ModReplace, Attribute: "mail", Values: []string{"new@x.com"}}},
	})
	require.Error(t, err)

	// Nothing was committed.
	_, _, commits, _ := store.Counters()
	assert.Zero(t, commits)
}

func TestDriverAbandonAtRetryBoundary(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	store.FailGets(NewTransientError(TransientDeadlock, errors.New("deadlock victim")))
	driver := testDriver(t, store, ModifyConfig{})

	abandon := int32(1)
	result, err := driver.Modify(ModifyOptions{
		DN:      aliceDN,
		Mods:    []Modification{{Type: ModReplace, Attribute: "mail", Values: []string{"new@x.com"}}},
		Abandon: &abandon,
	})
	require.NoError(t, err)
	assert.True(t, result.Abandoned)

	// The abandoned operation performed no storage I/O past the failed
	// lookup and never committed.
	gets, puts, commits, _ := store.Counters()
	assert.Equal(t, 1, gets)
	assert.Zero(t, puts)
	assert.Zero(t, commits)
}

func TestDriverNoOp(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	driver := testDriver(t, store, ModifyConfig{})

	result, err := driver.Modify(ModifyOptions{
		DN:   aliceDN,
		Mods: []Modification{{Type: ModReplace, Attribute: "mail", Values: []string{"new@x.com"}}},
		NoOp: true,
	})
	require.NoError(t, err)
	assert.Equal(t, ModNoOperation, result.Code)
	assert.True(t, result.NoOp)

	// Validation ran but nothing was persisted.
	committed := store.Entry(aliceDN)
	assert.Equal(t, [][]byte{[]byte("a@x.com")}, committed.GetAttribute("mail"))
	_, _, commits, rollbacks := store.Counters()
	assert.Zero(t, commits)
	assert.Equal(t, 1, rollbacks)
}

func TestDriverNoSuchObject(t *testing.T) {
	store := memstore.New()
	driver := testDriver(t, store, ModifyConfig{})

	result, err := driver.Modify(ModifyOptions{
		DN:   "uid=ghost,dc=example,dc=com",
		Mods: []Modification{{Type: ModReplace, Attribute: "cn", Values: []string{"x"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, ModNoSuchObject, result.Code)
}

func TestDriverSemanticErrorRollsBack(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	driver := testDriver(t, store, ModifyConfig{})

	result, err := driver.Modify(ModifyOptions{
		DN:   aliceDN,
		Mods: []Modification{{Type: ModAdd, Attribute: "cn", Values: []string{"Alice"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, ModTypeOrValueExists, result.Code)
	require.Error(t, result.Err())

	committed := store.Entry(aliceDN)
	assert.Equal(t, [][]byte{[]byte("Alice")}, committed.GetAttribute("cn"))
	_, _, commits, _ := store.Counters()
	assert.Zero(t, commits)
}

func TestDriverGlueEntryReferral(t *testing.T) {
	store := memstore.New()
	glue := storage.NewEntry("ou=pending,dc=example,dc=com")
	glue.SetStringAttribute("objectclass", "glue")
	glue.SetStringAttribute("structuralobjectclass", "glue")
	store.Seed(glue)
	driver := testDriver(t, store, ModifyConfig{})

	result, err := driver.Modify(ModifyOptions{
		DN:   "ou=pending,dc=example,dc=com",
		Mods: []Modification{{Type: ModReplace, Attribute: "description", Values: []string{"x"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, ModReferral, result.Code)
}

func TestDriverReferralEntry(t *testing.T) {
	store := memstore.New()
	ref := storage.NewEntry("ou=remote,dc=example,dc=com")
	ref.SetStringAttribute("objectclass", "referral")
	ref.SetStringAttribute("ref", "ldap://other.example.com/ou=remote,dc=example,dc=com")
	store.Seed(ref)
	driver := testDriver(t, store, ModifyConfig{})

	result, err := driver.Modify(ModifyOptions{
		DN:   "ou=remote,dc=example,dc=com",
		Mods: []Modification{{Type: ModReplace, Attribute: "description", Values: []string{"x"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, ModReferral, result.Code)
	assert.Equal(t, []string{"ldap://other.example.com/ou=remote,dc=example,dc=com"}, result.Referral)
}

func TestDriverGluePromotionWithManageDSAIt(t *testing.T) {
	store := memstore.New()
	glue := storage.NewEntry("ou=pending,dc=example,dc=com")
	glue.SetStringAttribute("objectclass", "glue")
	glue.SetStringAttribute("structuralobjectclass", "glue")
	glue.SetStringAttribute("description", "placeholder")
	store.Seed(glue)
	driver := testDriver(t, store, ModifyConfig{})

	result, err := driver.Modify(ModifyOptions{
		DN:          "ou=pending,dc=example,dc=com",
		ManageDSAIt: true,
		Mods: []Modification{
			{Type: ModReplace, Attribute: "structuralObjectClass", Values: []string{"person"}},
			{Type: ModReplace, Attribute: "objectClass", Values: []string{"person"}},
			{Type: ModReplace, Attribute: "cn", Values: []string{"Pending"}},
			{Type: ModReplace, Attribute: "sn", Values: []string{"Node"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, ModOK, result.Code)

	committed := store.Entry("ou=pending,dc=example,dc=com")
	require.NotNil(t, committed)
	assert.Equal(t, [][]byte{[]byte("person")}, committed.GetAttribute("objectclass"))
	assert.Nil(t, committed.GetAttribute("description"))
}

func TestDriverReplicaRefusesForeignWriter(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	driver := testDriver(t, store, ModifyConfig{
		ReadOnlyReplica: true,
		UpdateDN:        "cn=replicator,dc=example,dc=com",
		ReplicaReferral: []string{"ldap://master.example.com"},
		MaxRetries:      4,
		InitialBackoff:  time.Millisecond,
	})

	result, err := driver.Modify(ModifyOptions{
		DN:     aliceDN,
		BindDN: "cn=admin,dc=example,dc=com",
		Mods:   []Modification{{Type: ModReplace, Attribute: "cn", Values: []string{"x"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, ModReferral, result.Code)
	assert.Equal(t, []string{"ldap://master.example.com"}, result.Referral)

	// Nothing reached the store.
	gets, _, _, _ := store.Counters()
	assert.Zero(t, gets)
}

func TestDriverReplicaAcceptsUpdateDN(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	driver := testDriver(t, store, ModifyConfig{
		ReadOnlyReplica: true,
		UpdateDN:        "cn=replicator,dc=example,dc=com",
		MaxRetries:      4,
		InitialBackoff:  time.Millisecond,
	})

	result, err := driver.Modify(ModifyOptions{
		DN:     aliceDN,
		BindDN: "cn=replicator,dc=example,dc=com",
		Mods:   []Modification{{Type: ModReplace, Attribute: "mail", Values: []string{"r@x.com"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, ModOK, result.Code)

	// A replica never stamps; the list is applied as received.
	committed := store.Entry(aliceDN)
	assert.Nil(t, committed.GetAttribute("modifiersname"))
}

func TestDriverACLRefusal(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	driver := NewModifyDriver(ModifyDriverConfig{
		Engine:       store,
		Schema:       engineSchema(t),
		ACL:          denyACL{},
		Clock:        fakeClock{t: testInstant},
		ModifyConfig: DefaultModifyConfig(),
	})

	result, err := driver.Modify(ModifyOptions{
		DN:   aliceDN,
		Mods: []Modification{{Type: ModReplace, Attribute: "cn", Values: []string{"x"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, ModInsufficientAccess, result.Code)

	gets, _, _, _ := store.Counters()
	assert.Zero(t, gets)
}

func TestDriverCheckpointAfterCommit(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	driver := testDriver(t, store, ModifyConfig{
		MaxRetries:     4,
		InitialBackoff: time.Millisecond,
		CheckpointKB:   512,
		CheckpointMin:  5,
	})

	_, err := driver.Modify(ModifyOptions{
		DN:   aliceDN,
		Mods: []Modification{{Type: ModReplace, Attribute: "mail", Values: []string{"new@x.com"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Checkpoints())
}

func TestDriverFakeRootPromotion(t *testing.T) {
	store := memstore.New()
	driver := NewModifyDriver(ModifyDriverConfig{
		Engine:       store,
		Schema:       engineSchema(t),
		Clock:        fakeClock{t: testInstant},
		ModifyConfig: DefaultModifyConfig(),
		RootDN:       "dc=example,dc=com",
	})

	// The suffix entry does not exist yet; a promotion through the
	// synthesized placeholder creates it.
	result, err := driver.Modify(ModifyOptions{
		DN:          "dc=example,dc=com",
		ManageDSAIt: true,
		Mods: []Modification{
			{Type: ModReplace, Attribute: "structuralObjectClass", Values: []string{"person"}},
			{Type: ModReplace, Attribute: "objectClass", Values: []string{"person"}},
			{Type: ModReplace, Attribute: "cn", Values: []string{"Example"}},
			{Type: ModReplace, Attribute: "sn", Values: []string{"Root"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, ModOK, result.Code)

	committed := store.Entry("dc=example,dc=com")
	require.NotNil(t, committed)
	assert.Equal(t, [][]byte{[]byte("Example")}, committed.GetAttribute("cn"))
}

func TestDriverAssertionControl(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	driver := testDriver(t, store, ModifyConfig{})

	result, err := driver.Modify(ModifyOptions{
		DN:   aliceDN,
		Mods: []Modification{{Type: ModReplace, Attribute: "mail", Values: []string{"new@x.com"}}},
		Assert: func(e *Entry) bool {
			return e.GetFirstAttribute("cn") == "Somebody Else"
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ModAssertionFailed, result.Code)

	// The failed assertion applied nothing.
	committed := store.Entry(aliceDN)
	assert.Equal(t, [][]byte{[]byte("a@x.com")}, committed.GetAttribute("mail"))

	result, err = driver.Modify(ModifyOptions{
		DN:   aliceDN,
		Mods: []Modification{{Type: ModReplace, Attribute: "mail", Values: []string{"new@x.com"}}},
		Assert: func(e *Entry) bool {
			return e.GetFirstAttribute("cn") == "Alice"
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ModOK, result.Code)
}

func TestDriverPreAndPostRead(t *testing.T) {
	store := memstore.New()
	seedPerson(store, aliceDN)
	driver := testDriver(t, store, ModifyConfig{})

	result, err := driver.Modify(ModifyOptions{
		DN:       aliceDN,
		Mods:     []Modification{{Type: ModReplace, Attribute: "mail", Values: []string{"new@x.com"}}},
		PreRead:  true,
		PostRead: true,
	})
	require.NoError(t, err)
	require.Equal(t, ModOK, result.Code)

	require.NotNil(t, result.PreImage)
	assert.Equal(t, []string{"a@x.com"}, result.PreImage.GetAttribute("mail"))
	require.NotNil(t, result.PostImage)
	assert.Equal(t, []string{"new@x.com"}, result.PostImage.GetAttribute("mail"))
}
