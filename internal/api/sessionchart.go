package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// showSessionChart renders an HTML chart of a session's revolution
// timeline using go-echarts. This is a debugging-only endpoint (no auth)
// for eyeballing a run without a frontend.
// Query params:
//   - session (required): session ID
func (s *Server) showSessionChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "Persistence not configured")
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'session' parameter")
		return
	}

	session, err := s.db.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Session not found: %v", err))
		return
	}
	events, err := s.db.SessionEvents(r.Context(), sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load events: %v", err))
		return
	}
	if len(events) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "Session has no revolution events")
		return
	}

	// Revolution count over elapsed seconds, with per-event quality on a
	// second axis.
	countData := make([]opts.LineData, 0, len(events))
	qualityData := make([]opts.LineData, 0, len(events))
	labels := make([]string, 0, len(events))
	for _, e := range events {
		elapsed := time.Duration(e.UnixNs - session.StartedUnixNs).Seconds()
		labels = append(labels, fmt.Sprintf("%.1fs", elapsed))
		countData = append(countData, opts.LineData{Value: e.Revolution})
		qualityData = append(qualityData, opts.LineData{Value: e.Quality})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Revolution Timeline",
			Theme:     "dark",
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Revolution Timeline",
			Subtitle: fmt.Sprintf("session=%s algorithm=%s revolutions=%d", sessionID, session.Algorithm, session.Revolutions),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "elapsed"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "revolutions"}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "quality", Min: 0, Max: 1})

	line.SetXAxis(labels).
		AddSeries("revolutions", countData).
		AddSeries("quality", qualityData, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
