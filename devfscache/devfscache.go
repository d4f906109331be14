// Package devfscache implements a content-addressed cache of devfs(8)
// rulesets, grounded on xc::res::devfs::DevfsRulesetStore: identical rule
// sets (hashed by their exact line content) reuse the same ruleset id
// instead of installing a duplicate, within a bounded id window.
package devfscache

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"sync"
)

var ErrLimitExhausted = errors.New("devfscache: ruleset id space exhausted")

// Installer is the host-side effect a Store drives to actually (re)install
// a ruleset, satisfied by *freebsd.Host's InstallRuleset/ClearRuleset pair.
type Installer interface {
	InstallRuleset(ctx context.Context, id int, rules []string) error
	ClearRuleset(ctx context.Context, id int) error
}

// Store hands out devfs ruleset ids for rule sets, deduplicating by
// content so two containers that need identical devfs rules (the common
// case) share one ruleset rather than each consuming a slot in the
// bounded id window.
type Store struct {
	mu sync.Mutex

	minID, maxID int
	lastID       *int
	rules        map[[32]byte]int

	host Installer
}

// New creates a Store allocating ids in [minID, minID+capacity).
func New(host Installer, minID, capacity int) *Store {
	return &Store{
		host:  host,
		minID: minID,
		maxID: minID + capacity,
		rules: map[[32]byte]int{},
	}
}

func digestOf(rules []string) [32]byte {
	h := sha256.New()
	for _, r := range rules {
		h.Write([]byte(r))
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// GetRulesetID returns the ruleset id for rules, installing it on the
// host the first time this exact rule content is seen. Rules are hashed
// in the order given: a reordering of the same lines is a cache miss,
// matching the original's line-by-line Sha256 accumulation.
func (s *Store) GetRulesetID(ctx context.Context, rules []string) (int, error) {
	digest := digestOf(rules)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.rules[digest]; ok {
		return id, nil
	}

	if s.lastID != nil {
		if *s.lastID == 65535 || *s.lastID+1 >= s.maxID {
			return 0, ErrLimitExhausted
		}
	}
	if s.minID == s.maxID {
		return 0, ErrLimitExhausted
	}

	next := s.minID
	if s.lastID != nil {
		next = *s.lastID + 1
	}

	// Best-effort clear: a leftover ruleset at this id from a prior,
	// uncleanly-terminated run must not merge into the new one.
	_ = s.host.ClearRuleset(ctx, next)

	if err := s.host.InstallRuleset(ctx, next, rules); err != nil {
		return 0, err
	}

	s.lastID = &next
	s.rules[digest] = next
	return next, nil
}

// Format joins rules the way they are handed to devfs(8): one directive
// per line.
func Format(rules []string) string {
	return strings.Join(rules, "\n")
}
