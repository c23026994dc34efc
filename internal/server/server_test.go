package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/truthlens/internal/models"
	"github.com/bdougie/truthlens/internal/session"
)

type fakeSampler struct {
	mu      sync.Mutex
	calls   int
	path    string
	content []byte
}

func (f *fakeSampler) Sample(_ context.Context, path string, count int) ([]models.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.path = path
	f.content, _ = os.ReadFile(path)

	frames := make([]models.Frame, count)
	for i := range frames {
		frames[i] = models.Frame{Timestamp: 1.8 * float64(i+1), Data: []byte{0xFF, 0xD8, byte(i)}}
	}
	return frames, nil
}

func (f *fakeSampler) snapshot() (int, string, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.path, f.content
}

type fakeAnalyzer struct {
	block chan struct{}
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ []models.Frame) (*models.Report, error) {
	if f.block != nil {
		<-f.block
	}
	return &models.Report{
		OverallScore: 87,
		Confidence:   0.93,
		Detections: models.Detections{
			Eyes:     models.FeatureAnalysis{Score: 80, Status: models.StatusManipulated, Observation: "no blink"},
			Mouth:    models.FeatureAnalysis{Score: 61, Status: models.StatusSuspicious, Observation: "drift"},
			Skin:     models.FeatureAnalysis{Score: 74, Status: models.StatusManipulated, Observation: "smoothing"},
			Lighting: models.FeatureAnalysis{Score: 35, Status: models.StatusSuspicious, Observation: "rim light"},
		},
		Anomalies:      []models.Anomaly{},
		Summary:        "Generative artifacts around the face.",
		Recommendation: "Do not trust.",
	}, nil
}

type harness struct {
	srv      *Server
	ts       *httptest.Server
	sessions *Registry
	sampler  *fakeSampler
	analyzer *fakeAnalyzer
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		sessions: NewRegistry(time.Hour),
		sampler:  &fakeSampler{},
		analyzer: &fakeAnalyzer{},
	}
	if opts.UploadDir == "" {
		opts.UploadDir = t.TempDir()
	}
	if opts.AdvertisedMB == 0 {
		opts.AdvertisedMB = 50
	}
	factory := func(id string) *session.Session {
		return session.New(id, h.sampler, h.analyzer, nil, session.Config{
			TickInterval: time.Millisecond,
			SettleDelay:  time.Millisecond,
		}, logger)
	}
	h.srv = New(context.Background(), opts, h.sessions, factory, logger)
	h.ts = httptest.NewServer(h.srv.Handler())
	t.Cleanup(func() {
		h.ts.Close()
		h.srv.Wait()
	})
	return h
}

// noRedirect keeps 303 responses visible to the test
func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func uploadRequest(t *testing.T, url, filename, contentType string, body []byte, accept string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="video"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/sessions", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return req
}

func (h *harness) create(t *testing.T, filename, contentType string, body []byte) string {
	t.Helper()
	resp, err := http.DefaultClient.Do(uploadRequest(t, h.ts.URL, filename, contentType, body, "application/json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out["id"])
	assert.Equal(t, "/sessions/"+out["id"]+"/state", out["state"])
	return out["id"]
}

func (h *harness) state(t *testing.T, id string) map[string]any {
	t.Helper()
	resp, err := http.Get(h.ts.URL + "/sessions/" + id + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (h *harness) waitPhase(t *testing.T, id, phase string) map[string]any {
	t.Helper()
	var st map[string]any
	require.Eventually(t, func() bool {
		st = h.state(t, id)
		return st["phase"] == phase
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestIndex(t *testing.T) {
	h := newHarness(t, Options{})
	status, body := getBody(t, h.ts.URL+"/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `name="video"`)
	assert.Contains(t, body, "Max 50MB")
}

func TestCreate_VideoRunsPipeline(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.create(t, "clip.mp4", "video/mp4", []byte("fake mp4 bytes"))

	st := h.waitPhase(t, id, "RESULT")
	assert.Equal(t, id, st["id"])
	assert.Equal(t, "AI_GENERATED", st["verdict"])
	assert.Equal(t, "clip.mp4", st["videoName"])
	assert.EqualValues(t, 100, st["progress"])
	report := st["report"].(map[string]any)
	assert.EqualValues(t, 87, report["overallScore"])
	assert.True(t, strings.HasPrefix(st["reportId"].(string), "TLR-"))

	calls, path, content := h.sampler.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, []byte("fake mp4 bytes"), content)
	assert.NoFileExists(t, path, "upload removed after sampling")

	status, body := getBody(t, h.ts.URL+"/sessions/"+id)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "AI_GENERATED")
	assert.Contains(t, body, "87%")
	assert.Contains(t, body, "FRAME_TS: 1.80s")
	assert.Contains(t, body, "No significant pixel-level anomalies flagged.")
}

func TestCreate_NonVideoGoesToError(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.create(t, "notes.pdf", "application/pdf", []byte("%PDF-1.7"))

	st := h.waitPhase(t, id, "ERROR")
	assert.Equal(t, session.InvalidUploadMessage, st["error"])
	assert.Nil(t, st["report"])

	calls, _, _ := h.sampler.snapshot()
	assert.Equal(t, 0, calls)

	status, body := getBody(t, h.ts.URL+"/sessions/"+id)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, session.InvalidUploadMessage)
	assert.Contains(t, body, "/sessions/"+id+"/reset")
}

func TestCreate_BrowserRedirect(t *testing.T) {
	h := newHarness(t, Options{})
	resp, err := noRedirect().Do(uploadRequest(t, h.ts.URL, "clip.webm", "video/webm", []byte("webm"), ""))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/sessions/"))
}

func TestCreate_MissingField(t *testing.T) {
	h := newHarness(t, Options{})
	resp, err := http.Post(h.ts.URL+"/sessions", "application/x-www-form-urlencoded", strings.NewReader("a=b"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, h.sessions.Len())
}

func TestCreate_RateLimited(t *testing.T) {
	h := newHarness(t, Options{AnalysesPerMinute: 1})
	h.create(t, "a.mp4", "video/mp4", []byte("a"))

	resp, err := http.DefaultClient.Do(uploadRequest(t, h.ts.URL, "b.mp4", "video/mp4", []byte("b"), "application/json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, 1, h.sessions.Len())
}

func TestCreate_TooLarge(t *testing.T) {
	h := newHarness(t, Options{MaxUploadBytes: 128})
	resp, err := http.DefaultClient.Do(uploadRequest(t, h.ts.URL, "big.mp4", "video/mp4", bytes.Repeat([]byte("x"), 4096), "application/json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, 0, h.sessions.Len())
}

func TestShow_ProgressPageWhileBusy(t *testing.T) {
	h := newHarness(t, Options{})
	h.analyzer.block = make(chan struct{})
	id := h.create(t, "clip.mp4", "video/mp4", []byte("v"))
	h.waitPhase(t, id, "ANALYZING")

	status, body := getBody(t, h.ts.URL+"/sessions/"+id)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `http-equiv="refresh"`)
	assert.Contains(t, body, "ANALYZING")

	// Reset is refused while the pipeline runs
	req, err := http.NewRequest(http.MethodPost, h.ts.URL+"/sessions/"+id+"/reset", nil)
	require.NoError(t, err)
	resp, err := noRedirect().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(h.analyzer.block)
	h.waitPhase(t, id, "RESULT")
}

func TestReset(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.create(t, "clip.mp4", "video/mp4", []byte("v"))
	h.waitPhase(t, id, "RESULT")

	req, err := http.NewRequest(http.MethodPost, h.ts.URL+"/sessions/"+id+"/reset", nil)
	require.NoError(t, err)
	resp, err := noRedirect().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	status, _ := getBody(t, h.ts.URL+"/sessions/"+id+"/state")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUnknownSession(t *testing.T) {
	h := newHarness(t, Options{})
	status, _ := getBody(t, h.ts.URL+"/sessions/does-not-exist")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthzAndMetrics(t *testing.T) {
	h := newHarness(t, Options{})
	status, body := getBody(t, h.ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)

	status, body = getBody(t, h.ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "truthlens_active_sessions")
}
