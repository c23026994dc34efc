package dashboard

import (
	"embed"
	"html/template"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// NoAnomaliesMessage is shown when the report flags nothing
const NoAnomaliesMessage = "No significant pixel-level anomalies flagged."

//go:embed templates/*.tmpl
var templateFS embed.FS

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	// Frame images are data URLs built from sampler output, never from user input
	"safeURL": func(s string) template.URL {
		if !strings.HasPrefix(s, "data:image/jpeg;base64,") {
			return ""
		}
		return template.URL(s)
	},
}).ParseFS(templateFS, "templates/*.tmpl"))

// Page holds the fields shared by every page
type Page struct {
	Title   string
	Refresh int
}

// UploadPage is the landing form
type UploadPage struct {
	Page
	MaxUploadMB int
}

// ProgressPage is shown while a session is extracting or analyzing
type ProgressPage struct {
	Page
	SessionID string
	VideoName string
	Phase     string
	StepLabel string
	Progress  int
}

// ErrorPage shows the user-facing failure message
type ErrorPage struct {
	Page
	SessionID string
	Message   string
}

// ResultPage wraps the dashboard view
type ResultPage struct {
	Page
	SessionID      string
	View           View
	EmptyAnomalies string
}

// RenderUpload writes the upload form
func RenderUpload(w io.Writer, p UploadPage) error {
	return render(w, "upload", p)
}

// RenderProgress writes the in-flight page
func RenderProgress(w io.Writer, p ProgressPage) error {
	return render(w, "progress", p)
}

// RenderError writes the failure page
func RenderError(w io.Writer, p ErrorPage) error {
	return render(w, "error", p)
}

// RenderHTML writes the full dashboard for a finished session
func RenderHTML(w io.Writer, sessionID string, v View) error {
	return render(w, "result", ResultPage{
		Page:           Page{Title: string(v.Verdict)},
		SessionID:      sessionID,
		View:           v,
		EmptyAnomalies: NoAnomaliesMessage,
	})
}

func render(w io.Writer, name string, data any) error {
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		return eris.Wrapf(err, "failed to render %s page", name)
	}
	return nil
}
