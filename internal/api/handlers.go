package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/httputil"
	"github.com/star/orbitview/internal/session"
	"github.com/star/orbitview/internal/trajectory"
	"github.com/star/orbitview/internal/transform"
)

// maxTrajectoryPoints bounds the CPU one trajectory request may spend.
const maxTrajectoryPoints = 5000

const maxBodyBytes = 4 << 10

// writeSessionError maps session errors onto HTTP statuses.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrClosed):
		httputil.WriteError(w, http.StatusServiceUnavailable, "session unavailable")
	case errors.Is(err, trajectory.ErrInvalidWindow):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Warn("request failed", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

type catalogMetadataResponse struct {
	Loaded          bool   `json:"loaded"`
	Source          string `json:"source"`
	FetchedAt       string `json:"fetched_at,omitempty"`
	AgeSeconds      int    `json:"age_seconds"`
	Lines           int    `json:"lines"`
	Fresh           bool   `json:"fresh"`
	IntervalSeconds int    `json:"interval_seconds"`
}

// handleCatalogMetadata reports the cache state. It never triggers a fetch.
func (s *Server) handleCatalogMetadata(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	resp := catalogMetadataResponse{
		AgeSeconds:      -1,
		IntervalSeconds: int(s.deps.Catalog.Interval().Seconds()),
	}
	if cat, ok := s.deps.Catalog.Peek(); ok {
		resp.Loaded = true
		resp.Source = cat.Source
		resp.Lines = len(cat.Lines)
		if !cat.FetchedAt.IsZero() {
			resp.FetchedAt = cat.FetchedAt.UTC().Format(time.RFC3339)
			resp.AgeSeconds = int(now.Sub(cat.FetchedAt).Seconds())
		}
		resp.Fresh = s.deps.Catalog.Fresh(now)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleCatalogReload forces a refetch and repopulates the registry when the
// catalog changed.
func (s *Server) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Viewer.Reload(r.Context()); err != nil {
		if errors.Is(err, session.ErrClosed) {
			s.writeSessionError(w, err)
			return
		}
		s.logger.Warn("catalog reload failed", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusBadGateway, "catalog reload failed: "+err.Error())
		return
	}
	s.handleStatus(w, r)
}

type selectionPayload struct {
	Name    string `json:"name"`
	NORADID int    `json:"norad_id"`
	Points  int    `json:"points"`
}

type statusResponse struct {
	Tracking         bool              `json:"tracking"`
	Pending          bool              `json:"pending"`
	Objects          int               `json:"objects"`
	Visible          int               `json:"visible"`
	CatalogFetchedAt string            `json:"catalog_fetched_at,omitempty"`
	CatalogSource    string            `json:"catalog_source,omitempty"`
	ViewTime         string            `json:"view_time"`
	LastFrame        string            `json:"last_frame,omitempty"`
	Selection        *selectionPayload `json:"selection,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Viewer.Status(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	resp := statusResponse{
		Tracking:      st.Tracking,
		Pending:       st.Pending,
		Objects:       st.Objects,
		Visible:       st.Visible,
		CatalogSource: st.CatalogSource,
		ViewTime:      s.deps.Clock.Now().UTC().Format(time.RFC3339Nano),
	}
	if !st.CatalogFetchedAt.IsZero() {
		resp.CatalogFetchedAt = st.CatalogFetchedAt.UTC().Format(time.RFC3339)
	}
	if !st.LastFrame.IsZero() {
		resp.LastFrame = st.LastFrame.UTC().Format(time.RFC3339Nano)
	}
	if st.Selection != nil {
		resp.Selection = &selectionPayload{
			Name:    st.Selection.Name,
			NORADID: st.Selection.NORADID,
			Points:  st.Selection.Points,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type trackingRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleSetTracking toggles marker display. Enabling waits for the first
// catalog population.
func (s *Server) handleSetTracking(w http.ResponseWriter, r *http.Request) {
	var req trackingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Enabled == nil {
		httputil.WriteError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}
	if err := s.deps.Viewer.SetTracking(r.Context(), *req.Enabled); err != nil {
		if errors.Is(err, session.ErrClosed) {
			s.writeSessionError(w, err)
			return
		}
		httputil.WriteError(w, http.StatusBadGateway, "tracking unavailable: "+err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"tracking": *req.Enabled})
}

type objectPayload struct {
	NORADID  int               `json:"norad_id"`
	Name     string            `json:"name"`
	Category classify.Category `json:"category"`
	Color    string            `json:"color"`
	Epoch    string            `json:"epoch,omitempty"`
	Visible  bool              `json:"visible"`
	Placed   bool              `json:"placed"`
	Position *[3]float64       `json:"position,omitempty"`
	Lat      *float64          `json:"lat,omitempty"`
	Lon      *float64          `json:"lon,omitempty"`
}

type objectsResponse struct {
	Count   int             `json:"count"`
	Objects []objectPayload `json:"objects"`
}

// handleObjects lists tracked objects with their current marker state.
// GET /api/v1/objects?visible=true&category=starlink
// Responds with msgpack when the client sends Accept: application/msgpack.
func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	onlyVisible := false
	if v := q.Get("visible"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid visible parameter")
			return
		}
		onlyVisible = b
	}
	var category classify.Category
	filterCategory := false
	if v := q.Get("category"); v != "" {
		c, ok := classify.ParseCategory(v)
		if !ok {
			httputil.WriteError(w, http.StatusBadRequest, "unknown category "+strconv.Quote(v))
			return
		}
		category, filterCategory = c, true
	}

	views, err := s.deps.Viewer.Objects(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	resp := objectsResponse{Objects: make([]objectPayload, 0, len(views))}
	for _, v := range views {
		if onlyVisible && !v.Visible {
			continue
		}
		if filterCategory && v.Category != category {
			continue
		}
		resp.Objects = append(resp.Objects, newObjectPayload(v))
	}
	resp.Count = len(resp.Objects)
	httputil.Write(w, r, http.StatusOK, resp)
}

func newObjectPayload(v session.ObjectView) objectPayload {
	p := objectPayload{
		NORADID:  v.NORADID,
		Name:     v.Name,
		Category: v.Category,
		Color:    v.Category.Color(),
		Epoch:    formatEpoch(v.Epoch),
		Visible:  v.Visible,
		Placed:   v.Placed,
	}
	if v.Placed {
		pos := v.Position.Array()
		lat, lon := v.LatDeg, v.LonDeg
		p.Position, p.Lat, p.Lon = &pos, &lat, &lon
	}
	return p
}

type selectRequest struct {
	Name    string `json:"name"`
	NORADID int    `json:"norad_id"`
}

type trajectoryPoint struct {
	T   string     `json:"t"`
	P   [3]float64 `json:"p"`
	Lat float64    `json:"lat"`
	Lon float64    `json:"lon"`
}

type trajectoryResponse struct {
	Name              string            `json:"name"`
	NORADID           int               `json:"norad_id"`
	Category          classify.Category `json:"category"`
	Epoch             string            `json:"epoch,omitempty"`
	Center            string            `json:"center"`
	HalfWindowSeconds int               `json:"half_window_seconds"`
	StepSeconds       int               `json:"step_seconds"`
	Frame             string            `json:"frame"`
	Points            []trajectoryPoint `json:"points"`
}

func newTrajectoryResponse(name string, noradID int, category classify.Category, epoch time.Time, track trajectory.Track) trajectoryResponse {
	resp := trajectoryResponse{
		Name:              name,
		NORADID:           noradID,
		Category:          category,
		Epoch:             formatEpoch(epoch),
		Center:            track.Center.UTC().Format(time.RFC3339),
		HalfWindowSeconds: int(track.HalfWindow.Seconds()),
		StepSeconds:       int(track.Step.Seconds()),
		Frame:             "render",
		Points:            make([]trajectoryPoint, len(track.Points)),
	}
	for i, pt := range track.Points {
		lat, lon := transform.CartesianToGeodetic(pt.Pos)
		resp.Points[i] = trajectoryPoint{
			T:   pt.T.UTC().Format(time.RFC3339),
			P:   pt.Pos.Array(),
			Lat: lat,
			Lon: lon,
		}
	}
	return resp
}

// handleSelect selects an object by name or NORAD id and returns the
// trajectory now on display.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.NORADID < 0 || (req.NORADID == 0 && req.Name == "") {
		httputil.WriteError(w, http.StatusBadRequest, "name or norad_id is required")
		return
	}

	sel, err := s.deps.Viewer.Select(r.Context(), session.Query{Name: req.Name, NORADID: req.NORADID})
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	var epoch time.Time
	if sel.Elements != nil {
		epoch = sel.Elements.Epoch()
	}
	httputil.Write(w, r, http.StatusOK, newTrajectoryResponse(sel.Name, sel.NORADID, sel.Category, epoch, sel.Track))
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Viewer.ClearSelection(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTrajectory samples an object's trajectory without touching the
// displayed selection.
// GET /api/v1/trajectory/{norad_id}?center=RFC3339&half_window=43200&step=60
func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	noradID, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || noradID <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid norad_id")
		return
	}

	q := r.URL.Query()
	center := s.deps.Clock.Now()
	if v := q.Get("center"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid center parameter, must be RFC3339")
			return
		}
		center = t
	}

	halfWindow, ok := secondsParam(q.Get("half_window"), trajectory.DefaultHalfWindow, 0, 7*24*3600)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "invalid half_window parameter, must be 0-604800")
		return
	}
	step, ok := secondsParam(q.Get("step"), trajectory.DefaultStep, 1, 24*3600)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "invalid step parameter, must be 1-86400")
		return
	}

	n, err := trajectory.PointCount(halfWindow, step)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if n > maxTrajectoryPoints {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":      fmt.Sprintf("request would produce %d points", n),
			"max_points": maxTrajectoryPoints,
		})
		return
	}

	obj, err := s.deps.Viewer.Lookup(r.Context(), session.Query{NORADID: noradID})
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	entry := obj.Entry
	track, err := s.deps.Sampler.Sample(r.Context(), entry.Elements, center, halfWindow, step)
	if err != nil {
		if errors.Is(err, trajectory.ErrInvalidWindow) {
			s.writeSessionError(w, err)
			return
		}
		s.logger.Warn("trajectory sampling failed", "component", "api", "norad_id", noradID, "error", err)
		httputil.WriteError(w, http.StatusUnprocessableEntity, "trajectory unavailable: "+err.Error())
		return
	}
	httputil.Write(w, r, http.StatusOK, newTrajectoryResponse(entry.Name, entry.NORADID, obj.Category, entry.Epoch, track))
}

// formatEpoch renders an element epoch; an unreadable epoch is left out.
func formatEpoch(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// secondsParam parses an integer count of seconds within [lo, hi].
func secondsParam(v string, def time.Duration, lo, hi int) (time.Duration, bool) {
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
