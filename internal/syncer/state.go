// Package syncer runs the two independently-paced polling loops against
// the gateway: a fast realtime loop and a coarse trend loop. Each loop
// owns its state; a failure in one never touches the other.
package syncer

import "time"

// State is one loop's bookkeeping. Copied out under lock; safe to hand to
// callers.
type State struct {
	Interval            time.Duration `json:"interval"`
	LastSuccess         time.Time     `json:"last_success"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Degraded            bool          `json:"degraded"`
	ReauthRequired      bool          `json:"reauth_required"`
	Running             bool          `json:"running"`
}

type pollOutcome int

const (
	pollSuccess pollOutcome = iota
	pollTransient
	pollPartial
	pollTerminal
	pollDiscarded
)
