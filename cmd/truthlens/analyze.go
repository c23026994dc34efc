package main

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bdougie/truthlens/internal/dashboard"
	"github.com/bdougie/truthlens/internal/extractor"
	"github.com/bdougie/truthlens/internal/session"
)

var (
	analyzeVideo  string
	analyzeFrames int
	analyzeJSON   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a local video file and print the forensic dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFrameFlag(cmd.Flags().Changed("frames"), analyzeFrames); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := newPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer p.Close()
		if analyzeFrames > 0 {
			p.session.FrameCount = analyzeFrames
		}

		up, err := localUpload(analyzeVideo)
		if err != nil {
			return err
		}

		bar := progressbar.NewOptions(100,
			progressbar.OptionSetDescription(session.ExtractingLabel),
			progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)

		sess := p.newSession(uuid.NewString())
		sess.Observe(func(st session.State) {
			if st.StepLabel != "" {
				bar.Describe(st.StepLabel)
			}
			bar.Set(int(st.Progress)) //nolint:errcheck
		})

		submitErr := sess.Submit(ctx, up)
		bar.Finish() //nolint:errcheck

		st := sess.Snapshot()
		if st.Phase != session.PhaseResult {
			cmd.PrintErrln(st.ErrMessage)
			if submitErr == nil {
				submitErr = eris.New(st.ErrMessage)
			}
			return eris.Wrap(submitErr, "analysis failed")
		}

		view := dashboard.Build(st.Report, st.Frames, dashboard.Meta{
			ReportID:    st.ReportID,
			GeneratedAt: st.FinishedAt,
		})
		if analyzeJSON {
			return writeReportJSON(cmd.OutOrStdout(), st, view.Verdict)
		}
		return dashboard.RenderText(cmd.OutOrStdout(), view)
	},
}

func writeReportJSON(w io.Writer, st session.State, verdict dashboard.Verdict) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		ReportID  string            `json:"reportId"`
		VideoName string            `json:"videoName"`
		Verdict   dashboard.Verdict `json:"verdict"`
		Report    any               `json:"report"`
	}{st.ReportID, st.VideoName, verdict, st.Report})
}

// localUpload describes a file on disk the way the web form would
func localUpload(path string) (session.Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return session.Upload{}, eris.Wrapf(err, "open %s", path)
	}
	contentType, err := detectContentType(path)
	if err != nil {
		return session.Upload{}, err
	}
	return session.Upload{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Path:        path,
		Size:        info.Size(),
	}, nil
}

// detectContentType trusts the extension first and falls back to sniffing
// checkFrameFlag rejects an explicit --frames below 1 instead of letting it
// fall back to the configured count
func checkFrameFlag(changed bool, n int) error {
	if changed && n < 1 {
		return eris.Wrapf(extractor.ErrInvalidCount, "--frames %d", n)
	}
	return nil
}

func detectContentType(path string) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", eris.Wrapf(err, "read %s", path)
	}
	return http.DetectContentType(head[:n]), nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeVideo, "video", "", "path to the video file")
	analyzeCmd.Flags().IntVar(&analyzeFrames, "frames", 0, "number of frames to sample, at least 1 (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the report as JSON instead of the dashboard")
	_ = analyzeCmd.MarkFlagRequired("video")
	rootCmd.AddCommand(analyzeCmd)
}
