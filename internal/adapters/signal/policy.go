package signal

import "github.com/dkeye/CallGuard/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a participant whose send queue is full.
type Policy interface {
	OnBackpressure(uid domain.UserID) BackpressureAction
}

type DropPolicy struct{}

func (DropPolicy) OnBackpressure(domain.UserID) BackpressureAction { return DropFrame }

type KickPolicy struct{}

func (KickPolicy) OnBackpressure(domain.UserID) BackpressureAction { return KickMember }
