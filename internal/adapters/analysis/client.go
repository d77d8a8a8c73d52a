// Package analysis is the HTTP client for the external detection API.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/dkeye/CallGuard/internal/domain"
)

const maxErrorBody = 512

type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

type aiDetection struct {
	Decision   string  `json:"decision"`
	IsDeepfake *bool   `json:"is_deepfake,omitempty"`
	Confidence float64 `json:"confidence"`
}

type scamDetection struct {
	IsScam     *bool   `json:"is_scam,omitempty"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	RiskLevel  string  `json:"risk_level"`
}

type response struct {
	AIDetection   *aiDetection   `json:"ai_detection"`
	ScamDetection *scamDetection `json:"scam_detection"`
}

func (r response) result() domain.AnalysisResult {
	var res domain.AnalysisResult
	if ai := r.AIDetection; ai != nil {
		res.Synthetic = ai.Decision == "spoof" || (ai.IsDeepfake != nil && *ai.IsDeepfake)
		res.Confidence = ai.Confidence
	}
	if sc := r.ScamDetection; sc != nil {
		res.Scam = (sc.IsScam != nil && *sc.IsScam) || sc.Label == "scam"
		if sc.Confidence > res.Confidence {
			res.Confidence = sc.Confidence
		}
	}
	return res
}

// Analyze posts wav as multipart field "file" and decodes the verdict.
func (c *Client) Analyze(ctx context.Context, wav []byte) (domain.AnalysisResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	h.Set("Content-Type", "audio/wav")
	part, err := mw.CreatePart(h)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	if _, err := part.Write(wav); err != nil {
		return domain.AnalysisResult{}, err
	}
	if err := mw.Close(); err != nil {
		return domain.AnalysisResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("analysis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.AnalysisResult{}, fmt.Errorf("analysis service returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("decode analysis response: %w", err)
	}
	return out.result(), nil
}
