package domain

import (
	"errors"
	"fmt"
)

var ErrMalformedNotice = errors.New("malformed call notice")

type CallID string

type CallStatus string

const (
	StatusCalling CallStatus = "calling"
	StatusEnded   CallStatus = "ended"
)

type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Other returns the opposite leg.
func (r Role) Other() Role {
	if r == RoleCaller {
		return RoleCallee
	}
	return RoleCaller
}

// CallNotice is one call lifecycle record. From is the caller, Target the callee.
type CallNotice struct {
	CallID CallID     `json:"callId"`
	Status CallStatus `json:"status"`
	From   UserID     `json:"fromUserId"`
	Target UserID     `json:"targetUserId"`
}

// Validate checks the fields required by the notice status. Ended notices only need a call id.
func (n CallNotice) Validate() error {
	if n.CallID == "" {
		return fmt.Errorf("%w: call id empty", ErrMalformedNotice)
	}
	switch n.Status {
	case StatusEnded:
		return nil
	case StatusCalling:
		if n.From == "" || n.Target == "" {
			return fmt.Errorf("%w: participants missing", ErrMalformedNotice)
		}
		if n.From == n.Target {
			return fmt.Errorf("%w: caller equals callee", ErrMalformedNotice)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrMalformedNotice, n.Status)
	}
}
