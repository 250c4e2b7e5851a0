package shardsync

import (
	"cmp"
	"slices"

	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

// Key identifies a sync session.
type Key struct {
	ItemID interfaces.ItemID
	Kind   interfaces.PayloadKind
}

// Session is an open hand-off: the cluster it was addressed to when opened,
// and the operators whose enclaves acknowledged so far, in arrival order.
type Session struct {
	ItemID    interfaces.ItemID      `json:"item_id"`
	Kind      interfaces.PayloadKind `json:"kind"`
	ClusterID interfaces.ClusterID   `json:"cluster_id"`
	AckedBy   []interfaces.AccountID `json:"acked_by"`
}

func (s *Session) key() Key { return Key{ItemID: s.ItemID, Kind: s.Kind} }

func (s *Session) ackSet() map[interfaces.AccountID]struct{} {
	set := make(map[interfaces.AccountID]struct{}, len(s.AckedBy))
	for _, op := range s.AckedBy {
		set[op] = struct{}{}
	}
	return set
}

func (s Session) clone() Session {
	s.AckedBy = slices.Clone(s.AckedBy)
	return s
}

// Coordinator tracks open hand-offs and decides when they complete. It does
// not touch items; the caller clears the item's syncing phase when
// Acknowledge reports completion. Callers serialize access.
type Coordinator struct {
	view     ClusterView
	assigner ClusterAssigner
	quorum   QuorumPolicy
	sessions map[Key]*Session
}

type Option func(*Coordinator)

func WithAssigner(a ClusterAssigner) Option {
	return func(c *Coordinator) { c.assigner = a }
}

func WithQuorum(q QuorumPolicy) Option {
	return func(c *Coordinator) { c.quorum = q }
}

func New(view ClusterView, opts ...Option) *Coordinator {
	c := &Coordinator{
		view:     view,
		assigner: ModuloAssigner{},
		quorum:   FullMembership{},
		sessions: make(map[Key]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Quorum() QuorumPolicy { return c.quorum }

// Plan picks the cluster a new session for item would be addressed to,
// without opening it.
func (c *Coordinator) Plan(item interfaces.ItemID) (interfaces.ClusterID, error) {
	return c.assigner.Assign(item, c.view)
}

// Open starts a session, replacing any session of the same key.
func (c *Coordinator) Open(item interfaces.ItemID, kind interfaces.PayloadKind, cluster interfaces.ClusterID) {
	s := &Session{ItemID: item, Kind: kind, ClusterID: cluster}
	c.sessions[s.key()] = s
}

// ResolveEnclave returns the operator of an assigned enclave.
func (c *Coordinator) ResolveEnclave(enclave interfaces.AccountID) (interfaces.AccountID, error) {
	operator, _, err := c.view.EnsureEnclave(enclave)
	return operator, err
}

// Acknowledge records that enclave received the payload of the open session
// (item, kind). It reports whether the session completed, in which case the
// session is gone. A rejected acknowledgment leaves the session unchanged.
func (c *Coordinator) Acknowledge(item interfaces.ItemID, kind interfaces.PayloadKind, enclave interfaces.AccountID) (bool, error) {
	operator, _, err := c.view.EnsureEnclave(enclave)
	if err != nil {
		return false, err
	}
	s, ok := c.sessions[Key{ItemID: item, Kind: kind}]
	if !ok {
		return false, interfaces.ErrItemAlreadySynced
	}
	members, ok := c.view.ClusterMembers(s.ClusterID)
	if !ok || !slices.Contains(members, operator) {
		return false, interfaces.ErrShardNotFromValidCluster
	}
	if slices.Contains(s.AckedBy, operator) {
		return false, interfaces.ErrEnclaveAlreadyAddedShard
	}

	s.AckedBy = append(s.AckedBy, operator)
	if c.quorum.Reached(s.ackSet(), members) {
		delete(c.sessions, s.key())
		return true, nil
	}
	return false, nil
}

// Reconcile completes every open session whose quorum is reached under the
// current cluster membership, e.g. after an enclave left its cluster. The
// completed keys are returned in item order.
func (c *Coordinator) Reconcile() []Key {
	var done []Key
	for key, s := range c.sessions {
		members, ok := c.view.ClusterMembers(s.ClusterID)
		if ok && c.quorum.Reached(s.ackSet(), members) {
			done = append(done, key)
		}
	}
	slices.SortFunc(done, compareKeys)
	for _, key := range done {
		delete(c.sessions, key)
	}
	return done
}

// Close drops every session of item.
func (c *Coordinator) Close(item interfaces.ItemID) {
	delete(c.sessions, Key{ItemID: item, Kind: interfaces.SecretPayload})
	delete(c.sessions, Key{ItemID: item, Kind: interfaces.CapsulePayload})
}

func (c *Coordinator) Session(item interfaces.ItemID, kind interfaces.PayloadKind) (Session, bool) {
	s, ok := c.sessions[Key{ItemID: item, Kind: kind}]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Sessions returns all open sessions ordered by item and kind.
func (c *Coordinator) Sessions() []Session {
	out := make([]Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.clone())
	}
	slices.SortFunc(out, func(a, b Session) int { return compareKeys(a.key(), b.key()) })
	return out
}

// Load replaces the open sessions, e.g. from a snapshot.
func (c *Coordinator) Load(sessions []Session) {
	c.sessions = make(map[Key]*Session, len(sessions))
	for _, s := range sessions {
		s := s.clone()
		c.sessions[s.key()] = &s
	}
}

func compareKeys(a, b Key) int {
	if n := cmp.Compare(a.ItemID, b.ItemID); n != 0 {
		return n
	}
	return cmp.Compare(a.Kind, b.Kind)
}
