// Package backend provides the LDAP backend interface that wraps the storage engine
// and provides LDAP-specific operations including authentication, entry validation,
// and coordination with the storage layer.
package backend

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/xerrors"

	"github.com/isolovey-robarts/openldap/internal/schema"
	"github.com/isolovey-robarts/openldap/internal/storage"
)

// Clock is the current-time source for operational-attribute stamping.
// Injectable so tests control timestamps deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// ModifyConfig is the per-backend retry/stamping/checkpoint policy the
// modify driver reads.
type ModifyConfig struct {
	// ReadOnlyReplica marks this backend as a consumer-only replica: the
	// stamper does not run and writes from any identity other than
	// UpdateDN are refused with a referral.
	ReadOnlyReplica bool
	// UpdateDN is the principal a replica accepts writes from.
	UpdateDN string
	// ReplicaReferral is the URL list handed back to writers a replica
	// turns away.
	ReplicaReferral []string
	// LastModDisabled turns off operational-attribute stamping even on an
	// authoritative backend.
	LastModDisabled bool
	// MaxRetries caps the number of deadlock/not-granted restarts before
	// the transient condition is surfaced as an internal error.
	MaxRetries int
	// InitialBackoff and MaxBackoff bound the exponential retry schedule.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// CheckpointKB and CheckpointMin, when either is non-zero, enable a
	// best-effort storage checkpoint after a successful commit.
	CheckpointKB  int
	CheckpointMin int
}

// DefaultModifyConfig returns the policy used when a backend never calls
// SetModifyConfig.
func DefaultModifyConfig() ModifyConfig {
	return ModifyConfig{
		MaxRetries:     8,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// ModifyOptions is a single modify request as the driver sees it: the
// target name, the modification list, and the per-request flags.
type ModifyOptions struct {
	DN          string
	Mods        []Modification
	BindDN      string
	Permissive  bool
	NoOp        bool
	ManageDSAIt bool
	// Assert, when non-nil, is evaluated against the pre-modification
	// entry; a false result fails the request without applying anything.
	Assert func(*Entry) bool
	// PreRead and PostRead request copies of the entry before and after
	// the modification on the result.
	PreRead  bool
	PostRead bool
	// Abandon, when non-nil and set non-zero by a concurrent abandon
	// request, stops the driver at the next retry boundary.
	Abandon *int32
}

// ModifyResult is the driver's reply to the dispatch layer: a ModCode
// classifying the outcome plus enough detail to build the LDAP reply.
type ModifyResult struct {
	Code      ModCode
	Referral  []string
	Retries   int
	NoOp      bool
	Abandoned bool
	// Entry is the committed post-image on success, for change streams and
	// post-read controls.
	Entry *Entry
	// PreImage and PostImage are filled when the request asked for
	// pre-read / post-read copies.
	PreImage  *Entry
	PostImage *Entry
	modErr    *ModError
}

// Err returns the underlying ModError, or nil on success/no-op/abandon.
func (r *ModifyResult) Err() error {
	if r == nil || r.modErr == nil {
		return nil
	}
	return r.modErr
}

// BackendError maps the result onto the backend package's sentinel errors
// for callers that only speak error.
func (r *ModifyResult) BackendError() error {
	if r == nil {
		return ErrStorageError
	}
	switch r.Code {
	case ModOK, ModNoOperation:
		return nil
	case ModNoSuchObject:
		return ErrEntryNotFound
	case ModReferral:
		return ErrReferral
	default:
		if r.modErr != nil {
			return r.modErr
		}
		return ErrStorageError
	}
}

// driverState names the steps of the modify driver's retry state machine.
type driverState int

const (
	statePrepare driverState = iota
	stateOpenOuter
	stateLookup
	stateOpenNested
	stateApply
	statePersist
	stateCommitNested
	stateCommitOuter
	stateRetry
	stateDone
)

// ModifyDriverConfig bundles the driver's collaborators.
type ModifyDriverConfig struct {
	Engine       storage.StorageEngine
	Schema       *schema.Schema
	ACL          ACLChecker
	Index        IndexUpdater
	Clock        Clock
	ModifyConfig ModifyConfig
	// RootDN, when set, is the name whose absence is papered over with an
	// in-memory glue entry so the suffix entry can be created by promotion.
	RootDN string
}

// ACLChecker answers whether the bound identity may apply the given
// modification list to the target entry.
type ACLChecker interface {
	CheckModList(bindDN, targetDN string, mods []Modification) bool
}

// ModifyDriver coordinates one modify operation end to end: it opens a
// transaction, looks up and locks the target entry, runs the modification
// engine, persists the result, and commits — restarting the whole attempt
// from a clean state when the storage engine reports a deadlock or an
// ungranted lock.
type ModifyDriver struct {
	engine storage.StorageEngine
	acl    ACLChecker
	clock  Clock
	cfg    ModifyConfig
	rootDN string
	modEng *ModifyEngine
}

// NewModifyDriver assembles a modify driver from its collaborators. Any of
// Schema/ACL/Index/Clock may be nil; Engine must not be.
func NewModifyDriver(cfg ModifyDriverConfig) *ModifyDriver {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	mc := cfg.ModifyConfig
	if mc.MaxRetries == 0 && mc.InitialBackoff == 0 {
		mc = DefaultModifyConfig()
	}
	return &ModifyDriver{
		engine: cfg.Engine,
		acl:    cfg.ACL,
		clock:  clock,
		cfg:    mc,
		rootDN: normalizeDN(cfg.RootDN),
		modEng: NewModifyEngine(cfg.Schema, cfg.Index),
	}
}

// Modify runs the full state machine for one modify request.
func (d *ModifyDriver) Modify(opts ModifyOptions) (*ModifyResult, error) {
	if opts.DN == "" {
		return nil, ErrInvalidDN
	}

	mods := opts.Mods
	if !d.cfg.ReadOnlyReplica && !d.cfg.LastModDisabled {
		mods = StampModList(mods, opts.BindDN, d.clock)
	}

	if d.cfg.ReadOnlyReplica && !strings.EqualFold(opts.BindDN, d.cfg.UpdateDN) {
		return &ModifyResult{Code: ModReferral, Referral: d.cfg.ReplicaReferral}, nil
	}

	if d.acl != nil && !d.acl.CheckModList(opts.BindDN, opts.DN, mods) {
		return &ModifyResult{Code: ModInsufficientAccess,
			modErr: NewModError(ModInsufficientAccess, "", "insufficient access")}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.InitialBackoff
	bo.MaxInterval = d.cfg.MaxBackoff
	bo.MaxElapsedTime = 0 // the driver caps attempts itself, not elapsed wall time

	normalizedDN := normalizeDN(opts.DN)
	state := statePrepare
	retries := 0
	fakeroot := false

	var txn interface{}
	var entry *Entry
	var preImage *Entry
	var result *ModifyResult

	for {
		switch state {
		case statePrepare:
			state = stateOpenOuter

		case stateOpenOuter:
			var err error
			txn, err = d.engine.Begin()
			if err != nil {
				return nil, wrapFatalStorageError("begin", err)
			}
			state = stateLookup

		case stateLookup:
			storageEntry, err := d.engine.Get(txn, normalizedDN)
			switch {
			case err == nil:
				entry = convertFromStorageEntry(storageEntry)
				fakeroot = false
			case isTransient(err):
				state = stateRetry
				continue
			case d.rootDN != "" && normalizedDN == d.rootDN:
				// Missing suffix entry: work against an in-memory glue
				// placeholder so a promotion can create the real root.
				entry = NewEntry(opts.DN)
				entry.SetAttribute("objectclass", glueObjectClass)
				entry.SetAttribute("structuralobjectclass", glueObjectClass)
				fakeroot = true
			default:
				d.engine.Rollback(txn)
				return &ModifyResult{Code: ModNoSuchObject, Retries: retries,
					modErr: NewModError(ModNoSuchObject, "", "entry does not exist")}, nil
			}

			if !opts.ManageDSAIt {
				if entry.HasObjectClass("referral") {
					refs := append([]string(nil), entry.GetAttribute("ref")...)
					d.engine.Rollback(txn)
					return &ModifyResult{Code: ModReferral, Referral: refs, Retries: retries}, nil
				}
				if !fakeroot && entry.HasObjectClass(glueObjectClass) {
					d.engine.Rollback(txn)
					return &ModifyResult{Code: ModReferral, Retries: retries}, nil
				}
			}

			if opts.Assert != nil && !opts.Assert(entry) {
				d.engine.Rollback(txn)
				return &ModifyResult{Code: ModAssertionFailed, Retries: retries,
					modErr: NewModError(ModAssertionFailed, "", "assertion failed")}, nil
			}
			if opts.PreRead {
				preImage = entry.Clone()
			}
			state = stateOpenNested

		case stateOpenNested:
			// The storage engine flattens nesting into the outer
			// transaction; an engine with true nested transactions would
			// begin one here.
			state = stateApply

		case stateApply:
			applyResult, modErr := d.modEng.Apply(entry, mods, opts.Permissive, opts.NoOp)
			if modErr != nil {
				if isTransient(modErr) {
					state = stateRetry
					continue
				}
				d.engine.Rollback(txn)
				return &ModifyResult{Code: modErr.Code, Retries: retries, modErr: modErr}, nil
			}
			if applyResult.NoOp {
				d.engine.Rollback(txn)
				return &ModifyResult{Code: ModNoOperation, NoOp: true, Retries: retries}, nil
			}
			state = statePersist

		case statePersist:
			if fakeroot && entry.HasObjectClass(glueObjectClass) {
				// The placeholder root was never promoted to a real
				// entry; nothing to write back.
				state = stateCommitNested
				continue
			}
			if err := d.engine.Put(txn, convertToStorageEntry(entry)); err != nil {
				if isTransient(err) {
					state = stateRetry
					continue
				}
				d.engine.Rollback(txn)
				return nil, wrapFatalStorageError("persist", err)
			}
			state = stateCommitNested

		case stateCommitNested:
			state = stateCommitOuter

		case stateCommitOuter:
			if err := d.engine.Commit(txn); err != nil {
				return nil, wrapFatalStorageError("commit", err)
			}
			d.maybeCheckpoint()
			result = &ModifyResult{Code: ModOK, Retries: retries, Entry: entry, PreImage: preImage}
			if opts.PostRead {
				result.PostImage = entry.Clone()
			}
			state = stateDone

		case stateRetry:
			d.engine.Rollback(txn)
			entry = nil
			preImage = nil

			if opts.Abandon != nil && atomic.LoadInt32(opts.Abandon) != 0 {
				return &ModifyResult{Code: ModOther, Abandoned: true, Retries: retries}, nil
			}

			retries++
			if retries > d.cfg.MaxRetries {
				return nil, wrapFatalStorageError("modify", xerrors.New("retry limit exceeded"))
			}

			time.Sleep(bo.NextBackOff())
			state = stateOpenOuter

		case stateDone:
			return result, nil
		}
	}
}

// maybeCheckpoint runs the storage engine's checkpoint hook when a
// checkpoint policy is configured. Best-effort: a checkpoint failure never
// affects the already-committed modify.
func (d *ModifyDriver) maybeCheckpoint() {
	if d.cfg.CheckpointKB <= 0 && d.cfg.CheckpointMin <= 0 {
		return
	}
	_ = d.engine.Checkpoint()
}

// isTransient reports whether err is a deadlock/not-granted condition the
// driver should retry.
func isTransient(err error) bool {
	var te *TransientError
	return xerrors.As(err, &te)
}
