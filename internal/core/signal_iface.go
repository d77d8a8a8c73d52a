package core

import (
	"context"

	"github.com/dkeye/CallGuard/internal/domain"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . SignalSender,AlertPublisher,Analyzer

// Inbox accepts decoded inbound records. Implementations must not block on session work.
type Inbox interface {
	SubmitCall(ctx context.Context, n domain.CallNotice) error
	SubmitSignal(ctx context.Context, ev domain.SignalingEvent) error
}

// SignalSender writes an outbound signaling record (offers) to the transport.
type SignalSender interface {
	SendSignal(ctx context.Context, ev domain.SignalingEvent) error
}

// AlertPublisher writes the per-call alert side-channel record.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert domain.Alert) error
}

// Transport is a bidirectional signaling relay between participants and this server.
// Run feeds inbound records to inbox until ctx is done.
type Transport interface {
	SignalSender
	AlertPublisher
	Run(ctx context.Context, inbox Inbox) error
}
