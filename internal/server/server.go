package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"

	"github.com/bdougie/truthlens/internal/dashboard"
	"github.com/bdougie/truthlens/internal/metrics"
	"github.com/bdougie/truthlens/internal/session"
)

// uploadField is the multipart field carrying the video
const uploadField = "video"

// Options configures the HTTP front end
type Options struct {
	// MaxUploadBytes rejects larger request bodies with 413; zero disables the check
	MaxUploadBytes int64
	// AdvertisedMB is the limit shown on the upload form
	AdvertisedMB      int
	AnalysesPerMinute int
	AllowedOrigins    []string
	UploadDir         string
	// Refresh is how often busy pages reload, in seconds
	Refresh int
}

// SessionFactory builds a fresh idle session for id
type SessionFactory func(id string) *session.Session

// Server serves the upload form, session pages and JSON state
type Server struct {
	opts     Options
	sessions *Registry
	newSess  SessionFactory
	limiter  *rate.Limiter
	logger   *slog.Logger

	// ctx outlives individual requests; pipelines run on it
	ctx context.Context
	wg  sync.WaitGroup
}

// New creates a server. Pipelines started by uploads run on ctx.
func New(ctx context.Context, opts Options, sessions *Registry, factory SessionFactory, logger *slog.Logger) *Server {
	if opts.Refresh <= 0 {
		opts.Refresh = 1
	}
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}
	s := &Server{
		opts:     opts,
		sessions: sessions,
		newSess:  factory,
		logger:   logger,
		ctx:      ctx,
	}
	if opts.AnalysesPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.AnalysesPerMinute)), opts.AnalysesPerMinute)
	}
	return s
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", metrics.Healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleShow)
			r.Get("/state", s.handleState)
			r.Post("/reset", s.handleReset)
		})
	})

	return r
}

// Wait blocks until every pipeline started by this server has finished
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.page(w, func(out io.Writer) error {
		return dashboard.RenderUpload(out, dashboard.UploadPage{MaxUploadMB: s.opts.AdvertisedMB})
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.fail(w, r, http.StatusTooManyRequests, "too many analyses, try again shortly")
		return
	}

	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		s.fail(w, r, http.StatusBadRequest, "missing video field")
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll() //nolint:errcheck
	}

	up := session.Upload{
		Name:        filepath.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	if isVideo(up.ContentType) {
		path, err := s.spool(file, up.Name)
		if err != nil {
			s.logger.Error("failed to spool upload", tint.Err(err))
			s.fail(w, r, http.StatusInternalServerError, "could not store upload")
			return
		}
		up.Path = path
		up.Release = func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to remove upload", "path", path, tint.Err(err))
			}
		}
	}

	id := uuid.NewString()
	sess := s.newSess(id)
	s.sessions.Add(sess)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := sess.Submit(s.ctx, up); err != nil {
			s.logger.Warn("session ended in error", "session", id, tint.Err(err))
		}
	}()

	if wantsJSON(r) {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":    id,
			"state": "/sessions/" + id + "/state",
		})
		return
	}
	http.Redirect(w, r, "/sessions/"+id, http.StatusSeeOther)
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	st := sess.Snapshot()

	switch st.Phase {
	case session.PhaseResult:
		view := dashboard.Build(st.Report, st.Frames, dashboard.Meta{
			ReportID:    st.ReportID,
			GeneratedAt: st.FinishedAt,
		})
		s.page(w, func(out io.Writer) error {
			return dashboard.RenderHTML(out, sess.ID, view)
		})
	case session.PhaseError:
		s.page(w, func(out io.Writer) error {
			return dashboard.RenderError(out, dashboard.ErrorPage{
				Page:      dashboard.Page{Title: "Error"},
				SessionID: sess.ID,
				Message:   st.ErrMessage,
			})
		})
	default:
		s.page(w, func(out io.Writer) error {
			return dashboard.RenderProgress(out, dashboard.ProgressPage{
				Page:      dashboard.Page{Title: st.Phase.String(), Refresh: s.opts.Refresh},
				SessionID: sess.ID,
				VideoName: st.VideoName,
				Phase:     st.Phase.String(),
				StepLabel: st.StepLabel,
				Progress:  int(st.Progress),
			})
		})
	}
}

// stateResponse is the JSON view of a session
type stateResponse struct {
	ID string `json:"id"`
	session.State
	Verdict dashboard.Verdict `json:"verdict,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	st := sess.Snapshot()
	resp := stateResponse{ID: sess.ID, State: st}
	if st.Report != nil {
		resp.Verdict = dashboard.Classify(st.Report.OverallScore)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.Reset(); err != nil {
		if errors.Is(err, session.ErrBusy) {
			s.fail(w, r, http.StatusConflict, "analysis still running")
			return
		}
		s.fail(w, r, http.StatusConflict, "nothing to reset")
		return
	}
	s.sessions.Delete(sess.ID)

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]string{"phase": session.PhaseIdle.String()})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		s.fail(w, r, http.StatusNotFound, "session not found")
	}
	return sess, ok
}

// spool copies the upload to a temp file the sampler can seek in
func (s *Server) spool(src io.Reader, name string) (string, error) {
	f, err := os.CreateTemp(s.opts.UploadDir, "truthlens-*"+filepath.Ext(name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// page renders into a buffer so a template error never leaves a half-written page
func (s *Server) page(w http.ResponseWriter, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		s.logger.Error("failed to render page", tint.Err(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes()) //nolint:errcheck
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if wantsJSON(r) {
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}
	http.Error(w, msg, status)
}

func isVideo(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "video/")
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
