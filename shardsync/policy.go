package shardsync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

// ClusterView is the read side of the enclave registry the coordinator needs.
type ClusterView interface {
	// EnsureEnclave resolves an assigned enclave address to its operator and cluster.
	EnsureEnclave(enclave interfaces.AccountID) (interfaces.AccountID, interfaces.ClusterID, error)
	// ClusterMembers lists the operators currently assigned to a cluster.
	ClusterMembers(id interfaces.ClusterID) ([]interfaces.AccountID, bool)
	// ClusterIDs lists every cluster in ascending order.
	ClusterIDs() []interfaces.ClusterID
}

// ClusterAssigner chooses the cluster a new hand-off is addressed to.
type ClusterAssigner interface {
	Assign(item interfaces.ItemID, view ClusterView) (interfaces.ClusterID, error)
}

// ModuloAssigner spreads items over the clusters that have at least one
// assigned enclave, by item id modulo the number of such clusters.
type ModuloAssigner struct{}

func (ModuloAssigner) Assign(item interfaces.ItemID, view ClusterView) (interfaces.ClusterID, error) {
	var candidates []interfaces.ClusterID
	for _, id := range view.ClusterIDs() {
		if members, ok := view.ClusterMembers(id); ok && len(members) > 0 {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return 0, interfaces.ErrNoClusterAvailable
	}
	return candidates[int(item)%len(candidates)], nil
}

// QuorumPolicy decides whether the acknowledgments collected so far complete
// a session, given the live membership of the session's cluster.
type QuorumPolicy interface {
	Reached(acked map[interfaces.AccountID]struct{}, members []interfaces.AccountID) bool
	String() string
}

// FullMembership completes once every live member has acknowledged.
type FullMembership struct{}

func (FullMembership) Reached(acked map[interfaces.AccountID]struct{}, members []interfaces.AccountID) bool {
	if len(members) == 0 {
		return false
	}
	for _, m := range members {
		if _, ok := acked[m]; !ok {
			return false
		}
	}
	return true
}

func (FullMembership) String() string { return "full" }

// Threshold completes once N live members have acknowledged. A cluster that
// shrank below N completes with all of its remaining members.
type Threshold struct {
	N int
}

func (t Threshold) Reached(acked map[interfaces.AccountID]struct{}, members []interfaces.AccountID) bool {
	if len(members) == 0 {
		return false
	}
	need := min(t.N, len(members))
	count := 0
	for _, m := range members {
		if _, ok := acked[m]; ok {
			count++
		}
	}
	return count >= need
}

func (t Threshold) String() string { return fmt.Sprintf("threshold:%d", t.N) }

// ParseQuorum reads "full" or "threshold:N".
func ParseQuorum(s string) (QuorumPolicy, error) {
	if s == "" || s == "full" {
		return FullMembership{}, nil
	}
	raw, ok := strings.CutPrefix(s, "threshold:")
	if !ok {
		return nil, fmt.Errorf("invalid quorum policy %q", s)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid quorum threshold %q", raw)
	}
	return Threshold{N: n}, nil
}
