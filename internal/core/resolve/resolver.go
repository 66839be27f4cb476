// Package resolve contains the pure conflict resolution logic. Resolution
// is a function of the two candidate versions only, so identical inputs
// always produce identical outcomes on every branch and on the cloud.
package resolve

import "time"

// Side identifies which candidate won a resolution.
type Side string

// Resolution sides
const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// Candidate is one side of a conflict: the fields the resolver needs from
// a change record or stored entity state.
type Candidate struct {
	Branch    string
	Version   int64
	Timestamp time.Time
	Deleted   bool
}

// Decision is the resolver's outcome. The caller applies the winner's
// field set and records the loser in the audit trail.
type Decision struct {
	Winner Side
	Reason string

	// KeepBoth is set for append-only entity types: neither side is
	// overwritten, the remote candidate is audited and stored separately.
	KeepBoth bool
}

// Resolve decides between a local and a remote candidate touching the same
// entity. Rules, in precedence order:
//
//  1. A deletion beats a concurrent update regardless of version.
//     Deletions are terminal.
//  2. Higher version wins (versions are branch-monotonic; the cloud
//     assigns merge order on receipt).
//  3. On an exact version tie across branches, the lexically smaller
//     origin branch wins, then the later local timestamp. Deterministic
//     but arbitrary; determinism matters more than fairness.
func Resolve(local, remote Candidate) Decision {
	// Rule 1: deletions are terminal.
	if local.Deleted != remote.Deleted {
		if remote.Deleted {
			return Decision{Winner: SideRemote, Reason: "delete wins"}
		}
		return Decision{Winner: SideLocal, Reason: "delete wins"}
	}

	// Rule 2: version comparison.
	if remote.Version != local.Version {
		if remote.Version > local.Version {
			return Decision{Winner: SideRemote, Reason: "higher version"}
		}
		return Decision{Winner: SideLocal, Reason: "higher version"}
	}

	// Rule 3a: branch lexical tie-break.
	if local.Branch != remote.Branch {
		if remote.Branch < local.Branch {
			return Decision{Winner: SideRemote, Reason: "branch tie-break"}
		}
		return Decision{Winner: SideLocal, Reason: "branch tie-break"}
	}

	// Rule 3b: timestamp tie-break, later commit wins.
	if remote.Timestamp.After(local.Timestamp) {
		return Decision{Winner: SideRemote, Reason: "timestamp tie-break"}
	}
	if local.Timestamp.After(remote.Timestamp) {
		return Decision{Winner: SideLocal, Reason: "timestamp tie-break"}
	}

	// Same branch, same version, same timestamp: the remote record is an
	// echo of the local one. Applying it is a no-op either way.
	return Decision{Winner: SideLocal, Reason: "identical change"}
}

// ResolveAppendOnly decides for append-only entity types (payments, cash
// collections): stored rows are never overwritten, so the local candidate
// stands and the remote one is kept alongside it in the audit trail.
func ResolveAppendOnly(local, remote Candidate) Decision {
	return Decision{
		Winner:   SideLocal,
		Reason:   "append-only entity preserved",
		KeepBoth: true,
	}
}
