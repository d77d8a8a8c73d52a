package domain

import "time"

// AnalysisResult is the verdict for one audio window.
type AnalysisResult struct {
	Synthetic  bool
	Scam       bool
	Confidence float64
}

func (r AnalysisResult) Threat() bool { return r.Synthetic || r.Scam }

// Alert is the per-call side-channel record read by viewers.
type Alert struct {
	CallID      CallID    `json:"-"`
	IsSynthetic bool      `json:"isSynthetic"`
	IsScam      bool      `json:"isScam"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewAlert(id CallID, r AnalysisResult, at time.Time) Alert {
	return Alert{CallID: id, IsSynthetic: r.Synthetic, IsScam: r.Scam, Timestamp: at}
}
