// Package server provides the LDAP server implementation.
package server

import (
	"strings"
	"sync"
)

// RoutedBackend is one naming-context registration in a BackendRouter: the
// backend owning a suffix plus the replication policy the dispatch layer
// enforces before invoking it.
type RoutedBackend struct {
	// Suffix is the normalized naming context this backend owns.
	Suffix string
	// Backend serves operations under Suffix. May be nil for a suffix the
	// server knows about but cannot write (advertised via referral).
	Backend ModifyBackend
	// UpdateDN, when non-empty, marks the backend as a replica: only this
	// identity may write; everyone else is referred to the master.
	UpdateDN string
	// Referral is the URI list handed to writers a replica turns away.
	Referral []string
}

// IsReplica reports whether this registration only accepts writes from its
// update identity.
func (rb *RoutedBackend) IsReplica() bool {
	return rb.UpdateDN != ""
}

// BackendRouter selects a backend for a normalized DN by longest-suffix
// match over the registered naming contexts.
type BackendRouter struct {
	mu       sync.RWMutex
	backends []*RoutedBackend
}

// NewBackendRouter creates an empty router.
func NewBackendRouter() *BackendRouter {
	return &BackendRouter{}
}

// Register adds a backend for the given suffix. The suffix is normalized
// the same way lookup DNs are.
func (r *BackendRouter) Register(suffix string, backend ModifyBackend) *RoutedBackend {
	return r.register(&RoutedBackend{Suffix: normalizeDNForModify(suffix), Backend: backend})
}

// RegisterReplica adds a replica backend for the given suffix: writes are
// accepted only from updateDN, and every other writer receives referral.
func (r *BackendRouter) RegisterReplica(suffix string, backend ModifyBackend, updateDN string, referral ...string) *RoutedBackend {
	return r.register(&RoutedBackend{
		Suffix:   normalizeDNForModify(suffix),
		Backend:  backend,
		UpdateDN: updateDN,
		Referral: referral,
	})
}

func (r *BackendRouter) register(rb *RoutedBackend) *RoutedBackend {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, rb)
	return rb
}

// Route returns the registration whose suffix is the longest match for the
// normalized DN, or nil when no registered naming context contains it.
func (r *BackendRouter) Route(ndn string) *RoutedBackend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *RoutedBackend
	for _, rb := range r.backends {
		if !dnWithinSuffix(ndn, rb.Suffix) {
			continue
		}
		if best == nil || len(rb.Suffix) > len(best.Suffix) {
			best = rb
		}
	}
	return best
}

// dnWithinSuffix reports whether ndn equals suffix or sits underneath it.
// An empty suffix owns everything.
func dnWithinSuffix(ndn, suffix string) bool {
	if suffix == "" {
		return true
	}
	if ndn == suffix {
		return true
	}
	return strings.HasSuffix(ndn, ","+suffix)
}
