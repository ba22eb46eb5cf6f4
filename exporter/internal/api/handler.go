package api

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/prometheus/common/expfmt"

	"github.com/aasm-exporter/aasm/exporter/internal/outcome"
	"github.com/aasm-exporter/aasm/exporter/internal/scraper"
)

// Handler serves the landing, status and metrics endpoints.
type Handler struct {
	scraper scraper.Scraper
	tracker *outcome.Tracker
	mux     *http.ServeMux
}

// New creates a Handler for s and registers all routes behind request
// logging and panic recovery.
func New(s scraper.Scraper, t *outcome.Tracker) http.Handler {
	h := &Handler{scraper: s, tracker: t, mux: http.NewServeMux()}

	h.mux.HandleFunc("/", h.index)
	h.mux.HandleFunc("/status", h.status)
	h.mux.HandleFunc("/metrics", h.metrics)

	return instrument(slog.Default(), h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := html.EscapeString(h.scraper.Name())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html>
<head><title>%[1]s Exporter</title></head>
<body>
<h1>%[1]s Exporter</h1>
<p><a href="/status">Status</a></p>
<p><a href="/metrics">Metrics</a></p>
</body>
</html>
`, name)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	msg, err := h.scraper.Ready(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, msg)
}

// metrics scrapes on a context detached from the client so a dropped
// connection does not abort the upstream calls.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	g := h.tracker.Scrape(context.WithoutCancel(r.Context()), h.scraper)

	mfs, err := g.Gather()
	if err != nil {
		slog.Error("gather metrics", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			slog.Error("encode metrics", "family", mf.GetName(), "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	w.Header().Set("Content-Type", string(format))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprintln(w, msg)
}
