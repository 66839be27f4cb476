package resolve

import (
	"testing"
	"time"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestResolve_HigherVersionWins(t *testing.T) {
	local := Candidate{Branch: "branch-a", Version: 4, Timestamp: baseTime}
	remote := Candidate{Branch: "branch-b", Version: 5, Timestamp: baseTime.Add(-time.Hour)}

	d := Resolve(local, remote)
	if d.Winner != SideRemote {
		t.Errorf("expected remote to win on higher version, got %s", d.Winner)
	}
	if d.Reason != "higher version" {
		t.Errorf("unexpected reason %q", d.Reason)
	}

	// Mirrored inputs mirror the outcome.
	d = Resolve(remote, local)
	if d.Winner != SideLocal {
		t.Errorf("expected local to win with mirrored inputs, got %s", d.Winner)
	}
}

func TestResolve_DeleteBeatsUpdate(t *testing.T) {
	// The update carries a higher version, but the deletion is terminal.
	local := Candidate{Branch: "branch-a", Version: 7, Timestamp: baseTime}
	remote := Candidate{Branch: "branch-b", Version: 5, Timestamp: baseTime, Deleted: true}

	d := Resolve(local, remote)
	if d.Winner != SideRemote {
		t.Errorf("expected deletion to win, got %s", d.Winner)
	}
	if d.Reason != "delete wins" {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestResolve_LocalDeleteBeatsRemoteUpdate(t *testing.T) {
	local := Candidate{Branch: "branch-a", Version: 3, Timestamp: baseTime, Deleted: true}
	remote := Candidate{Branch: "branch-b", Version: 9, Timestamp: baseTime}

	d := Resolve(local, remote)
	if d.Winner != SideLocal {
		t.Errorf("expected local deletion to win, got %s", d.Winner)
	}
}

func TestResolve_BranchTieBreak(t *testing.T) {
	// Branch A updates Product X to version 5; branch B, still at 4,
	// independently produces its own version 5. Lexically smaller branch
	// wins the tie.
	local := Candidate{Branch: "branch-b", Version: 5, Timestamp: baseTime}
	remote := Candidate{Branch: "branch-a", Version: 5, Timestamp: baseTime.Add(time.Minute)}

	d := Resolve(local, remote)
	if d.Winner != SideRemote {
		t.Errorf("expected lexically smaller branch to win, got %s", d.Winner)
	}
	if d.Reason != "branch tie-break" {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestResolve_TimestampTieBreak(t *testing.T) {
	local := Candidate{Branch: "branch-a", Version: 5, Timestamp: baseTime}
	remote := Candidate{Branch: "branch-a", Version: 5, Timestamp: baseTime.Add(time.Second)}

	d := Resolve(local, remote)
	if d.Winner != SideRemote {
		t.Errorf("expected later timestamp to win, got %s", d.Winner)
	}
	if d.Reason != "timestamp tie-break" {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestResolve_IdenticalChange(t *testing.T) {
	c := Candidate{Branch: "branch-a", Version: 5, Timestamp: baseTime}

	d := Resolve(c, c)
	if d.Winner != SideLocal {
		t.Errorf("expected local to stand for identical change, got %s", d.Winner)
	}
	if d.Reason != "identical change" {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	local := Candidate{Branch: "branch-b", Version: 5, Timestamp: baseTime}
	remote := Candidate{Branch: "branch-a", Version: 5, Timestamp: baseTime}

	first := Resolve(local, remote)
	for i := 0; i < 100; i++ {
		if got := Resolve(local, remote); got != first {
			t.Fatalf("resolution not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestResolve_BothDeleted(t *testing.T) {
	local := Candidate{Branch: "branch-a", Version: 4, Timestamp: baseTime, Deleted: true}
	remote := Candidate{Branch: "branch-b", Version: 6, Timestamp: baseTime, Deleted: true}

	d := Resolve(local, remote)
	if d.Winner != SideRemote {
		t.Errorf("expected version rule for two deletions, got %s", d.Winner)
	}
	if d.Reason != "higher version" {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestResolveAppendOnly_KeepsBoth(t *testing.T) {
	local := Candidate{Branch: "branch-a", Version: 1, Timestamp: baseTime}
	remote := Candidate{Branch: "branch-b", Version: 2, Timestamp: baseTime}

	d := ResolveAppendOnly(local, remote)
	if d.Winner != SideLocal {
		t.Errorf("expected local row preserved, got %s", d.Winner)
	}
	if !d.KeepBoth {
		t.Error("expected KeepBoth for append-only entities")
	}
}
