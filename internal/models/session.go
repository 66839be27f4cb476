package models

import "time"

// ActiveSession is the terminal's current operating session. Change capture
// reads it to stamp origin metadata; it takes no part in conflict
// resolution.
type ActiveSession struct {
	ID       string
	Branch   string
	Cashier  string
	ShiftRef string

	// Offline is an operator-set hint; the worker detects real
	// reachability itself.
	Offline bool

	OpenedAt time.Time
	ClosedAt time.Time
}

// Open reports whether the session is still open.
func (s *ActiveSession) Open() bool {
	return s.ClosedAt.IsZero()
}
