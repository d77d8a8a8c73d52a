package analysis

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Analyze(t *testing.T) {
	cases := map[string]struct {
		body      string
		synthetic bool
		scam      bool
	}{
		"spoof decision":   {`{"ai_detection":{"decision":"spoof","confidence":0.91},"scam_detection":{"is_scam":false,"confidence":0.2}}`, true, false},
		"deepfake flag":    {`{"ai_detection":{"decision":"bonafide","is_deepfake":true,"confidence":0.7}}`, true, false},
		"scam label":       {`{"ai_detection":{"decision":"bonafide","confidence":0.1},"scam_detection":{"label":"scam","confidence":0.8,"risk_level":"high"}}`, false, true},
		"scam flag":        {`{"scam_detection":{"is_scam":true,"confidence":0.6}}`, false, true},
		"clean":            {`{"ai_detection":{"decision":"bonafide","confidence":0.95},"scam_detection":{"is_scam":false,"label":"normal"}}`, false, false},
		"missing sections": {`{}`, false, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				file, hdr, err := r.FormFile("file")
				require.NoError(t, err)
				assert.Equal(t, "audio.wav", hdr.Filename)
				data, _ := io.ReadAll(file)
				assert.Equal(t, []byte("RIFF"), data)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			res, err := NewClient(srv.URL, time.Second).Analyze(context.Background(), []byte("RIFF"))
			require.NoError(t, err)
			assert.Equal(t, tc.synthetic, res.Synthetic)
			assert.Equal(t, tc.scam, res.Scam)
		})
	}
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Analyze(context.Background(), []byte("RIFF"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond).Analyze(context.Background(), []byte("RIFF"))
	assert.Error(t, err)
}
