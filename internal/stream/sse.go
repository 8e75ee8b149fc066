// Package stream implements Server-Sent Events (SSE) streaming of marker
// positions. Clients connect via GET /api/v1/stream/positions and receive the
// render-space position of every visible marker after each session frame.
//
// SSE message format:
//
//	data: {"type":"positions","t":"2024-04-09T12:00:00Z","frame":"render","sat":[...]}\n\n
//
// The first message is always metadata, and it is repeated whenever the
// catalog changes:
//
//	data: {"type":"metadata","catalog_fetched_at":"...","catalog_age_seconds":1800,...}\n\n
//
// Selection changes are announced with a "selection" message. Keep-alive
// comments (:\n\n) are sent every KeepaliveInterval of silence.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/httputil"
	"github.com/star/orbitview/internal/session"
)

const (
	defaultInterval = time.Second
	minInterval     = 250 * time.Millisecond
	maxInterval     = 10 * time.Second
)

// Source is the session state a stream reads. *session.Session implements it.
type Source interface {
	Status(ctx context.Context) (session.Status, error)
	Objects(ctx context.Context) ([]session.ObjectView, error)
}

// MetricsRecorder counts open streams. *metrics.Collector implements it.
type MetricsRecorder interface {
	StreamClientConnected()
	StreamClientDisconnected()
}

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Take the client IP from proxy headers.
}

// Handler manages SSE streaming connections.
type Handler struct {
	source  Source
	config  Config
	limiter *streamLimiter
	metrics MetricsRecorder
	now     func() time.Time
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler. metrics may be nil.
func NewHandler(source Source, config Config, metrics MetricsRecorder, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		source:  source,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		metrics: metrics,
		now:     time.Now,
		logger:  logger,
	}
}

// Active returns the number of open streams.
func (h *Handler) Active() int { return h.limiter.active() }

// streamParams are the per-connection query options.
type streamParams struct {
	interval time.Duration
	category classify.Category
	filter   bool
}

func parseParams(r *http.Request) (streamParams, string) {
	p := streamParams{interval: defaultInterval}
	q := r.URL.Query()
	if v := q.Get("interval_ms"); v != "" {
		n, err := strconv.Atoi(v)
		d := time.Duration(n) * time.Millisecond
		if err != nil || d < minInterval || d > maxInterval {
			return p, "invalid interval_ms parameter, must be 250-10000"
		}
		p.interval = d
	}
	if v := q.Get("category"); v != "" {
		c, ok := classify.ParseCategory(v)
		if !ok {
			return p, "unknown category " + strconv.Quote(v)
		}
		p.category, p.filter = c, true
	}
	return p, ""
}

// HandlePositions serves the SSE position stream.
// GET /api/v1/stream/positions?interval_ms=1000&category=starlink
func (h *Handler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	params, msg := parseParams(r)
	if msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	status, err := h.source.Status(ctx)
	if err != nil {
		h.logger.Warn("stream source unavailable", "error", err)
		httputil.WriteError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}

	// Enforce the concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.limiter.release(ip)
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	if h.metrics != nil {
		h.metrics.StreamClientConnected()
	}
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"interval_ms", params.interval.Milliseconds(),
	)

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
		ip:      ip,
		logger:  h.logger,
	}

	defer func() {
		h.limiter.release(ip)
		if h.metrics != nil {
			h.metrics.StreamClientDisconnected()
		}
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages", c.messagesSent,
			"bytes", c.bytesSent,
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's WriteTimeout; each write sets its own deadline.
	if err := c.rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	// Jittered retry (3-7s) spreads reconnects after a restart.
	if err := c.sendRetry(time.Duration(3000+rand.IntN(4000)) * time.Millisecond); err != nil {
		return
	}

	s := &streamState{}
	if err := h.sendUpdates(ctx, c, s, status, params); err != nil {
		h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(params.interval)
	defer ticker.Stop()

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			status, err := h.source.Status(ctx)
			if err != nil {
				if errors.Is(err, session.ErrClosed) {
					return
				}
				continue
			}
			sent := c.messagesSent
			if err := h.sendUpdates(ctx, c, s, status, params); err != nil {
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			if c.messagesSent != sent {
				keepalive.Reset(h.config.KeepaliveInterval)
			}

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// streamState remembers what a connection has already been told.
type streamState struct {
	metaSent  bool
	catalogAt time.Time
	lastFrame time.Time
	selection session.SelectionView
}

// sendUpdates emits metadata, selection and position messages that differ
// from what the client last saw.
func (h *Handler) sendUpdates(ctx context.Context, c *client, s *streamState, st session.Status, p streamParams) error {
	if !s.metaSent || !st.CatalogFetchedAt.Equal(s.catalogAt) {
		if err := c.sendJSON(buildMetadataMessage(st, h.now())); err != nil {
			return err
		}
		s.metaSent = true
		s.catalogAt = st.CatalogFetchedAt
	}

	var sel session.SelectionView
	if st.Selection != nil {
		sel = *st.Selection
	}
	if sel != s.selection {
		if err := c.sendJSON(selectionMessage{
			Type:    "selection",
			Name:    sel.Name,
			NORADID: sel.NORADID,
			Points:  sel.Points,
		}); err != nil {
			return err
		}
		s.selection = sel
	}

	if st.LastFrame.IsZero() || st.LastFrame.Equal(s.lastFrame) {
		return nil
	}
	objects, err := h.source.Objects(ctx)
	if err != nil {
		return nil
	}
	if err := c.sendJSON(buildPositionsMessage(st.LastFrame, objects, p)); err != nil {
		return err
	}
	s.lastFrame = st.LastFrame
	return nil
}

func buildMetadataMessage(st session.Status, now time.Time) metadataMessage {
	m := metadataMessage{
		Type:     "metadata",
		Source:   st.CatalogSource,
		Objects:  st.Objects,
		Tracking: st.Tracking,
		AgeSec:   -1,
	}
	if !st.CatalogFetchedAt.IsZero() {
		m.CatalogAt = st.CatalogFetchedAt.UTC().Format(time.RFC3339)
		m.AgeSec = int(now.Sub(st.CatalogFetchedAt).Seconds())
	}
	return m
}

// buildPositionsMessage keeps only placed, visible markers that pass the
// category filter.
func buildPositionsMessage(t time.Time, objects []session.ObjectView, p streamParams) positionsMessage {
	sats := make([]satPayload, 0, len(objects))
	for _, o := range objects {
		if !o.Placed || !o.Visible {
			continue
		}
		if p.filter && o.Category != p.category {
			continue
		}
		sats = append(sats, satPayload{ID: o.NORADID, C: o.Category, P: o.Position.Array()})
	}
	return positionsMessage{
		Type:  "positions",
		T:     t.UTC().Format(time.RFC3339Nano),
		Frame: "render",
		Sat:   sats,
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type      string `json:"type"`
	CatalogAt string `json:"catalog_fetched_at,omitempty"`
	AgeSec    int    `json:"catalog_age_seconds"`
	Source    string `json:"catalog_source,omitempty"`
	Objects   int    `json:"objects"`
	Tracking  bool   `json:"tracking"`
}

type selectionMessage struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	NORADID int    `json:"norad_id"`
	Points  int    `json:"points"`
}

type positionsMessage struct {
	Type  string       `json:"type"`
	T     string       `json:"t"`
	Frame string       `json:"frame"`
	Sat   []satPayload `json:"sat"`
}

type satPayload struct {
	ID int               `json:"id"`
	C  classify.Category `json:"c"`
	P  [3]float64        `json:"p"`
}
