package pgstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dkeye/CallGuard/internal/domain"
)

// callNotification is the trigger payload published on every calls insert or status update.
type callNotification struct {
	Op           string `json:"op"`
	CallID       string `json:"callId"`
	Status       string `json:"status"`
	FromUserID   string `json:"fromUserId"`
	TargetUserID string `json:"targetUserId"`
}

// signalPayload is the JSONB body of a signaling row.
type signalPayload struct {
	Offer     *domain.SessionDescription `json:"offer,omitempty"`
	Answer    *domain.SessionDescription `json:"answer,omitempty"`
	Candidate *domain.Candidate          `json:"candidate,omitempty"`
}

// decodeCallNotification maps a trigger payload to a notice.
// Only inserts in calling state and updates to ended are relevant; everything else reports ok=false.
func decodeCallNotification(payload string) (domain.CallNotice, bool, error) {
	var n callNotification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return domain.CallNotice{}, false, fmt.Errorf("%w: %v", domain.ErrMalformedNotice, err)
	}
	status := domain.CallStatus(n.Status)
	switch {
	case n.Op == "INSERT" && status == domain.StatusCalling:
	case n.Op == "UPDATE" && status == domain.StatusEnded:
	default:
		return domain.CallNotice{}, false, nil
	}
	notice := domain.CallNotice{
		CallID: domain.CallID(n.CallID),
		Status: status,
		From:   domain.UserID(n.FromUserID),
		Target: domain.UserID(n.TargetUserID),
	}
	if err := notice.Validate(); err != nil {
		return domain.CallNotice{}, false, err
	}
	return notice, true, nil
}

// callRow is a calls row read back after a reconnect.
type callRow struct {
	ID       string
	Status   string
	CallerID string
	CalleeID string
}

// replayNotices turns rows whose status changed while the listener was down into notices,
// in order. Rows that would not pass live validation are dropped.
func replayNotices(rows []callRow) []domain.CallNotice {
	out := make([]domain.CallNotice, 0, len(rows))
	for _, r := range rows {
		n := domain.CallNotice{
			CallID: domain.CallID(r.ID),
			Status: domain.CallStatus(r.Status),
			From:   domain.UserID(r.CallerID),
			Target: domain.UserID(r.CalleeID),
		}
		if n.Validate() != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func parseSignalID(payload string) (int64, error) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: signal id %q", domain.ErrMalformedSignal, payload)
	}
	return id, nil
}

// decodeSignalRow rebuilds the wire envelope from a signaling row and validates it.
func decodeSignalRow(typ, from, target string, payload []byte) (domain.SignalingEvent, error) {
	var body signalPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &body); err != nil {
			return domain.SignalingEvent{}, fmt.Errorf("%w: %v", domain.ErrMalformedSignal, err)
		}
	}
	env := domain.Envelope{
		Type:         typ,
		FromUserID:   from,
		TargetUserID: target,
		Offer:        body.Offer,
		Answer:       body.Answer,
		Candidate:    body.Candidate,
	}
	return env.Event()
}
