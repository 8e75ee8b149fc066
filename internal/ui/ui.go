// Package ui provides the terminal viewer using Bubble Tea. The globe is
// drawn as an equirectangular map of marker sub-points, with the selected
// object's trajectory traced underneath.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/clock"
	"github.com/star/orbitview/internal/session"
	"github.com/star/orbitview/internal/transform"
)

// Controller is the session surface the viewer drives. *session.Session
// implements it.
type Controller interface {
	Status(ctx context.Context) (session.Status, error)
	Objects(ctx context.Context) ([]session.ObjectView, error)
	Select(ctx context.Context, q session.Query) (session.Selected, error)
	ClearSelection(ctx context.Context) error
	SetTracking(ctx context.Context, enabled bool) error
	Reload(ctx context.Context) error
}

// TimeControl adjusts the view clock. *clock.Controller implements it.
type TimeControl interface {
	clock.Clock
	Rate() float64
	SetRate(rate float64)
	Reset()
}

// Msg types for Bubble Tea
type (
	// frameMsg triggers a redraw from fresh session state.
	frameMsg time.Time

	// snapshotMsg carries session state read off the UI goroutine.
	snapshotMsg struct {
		status  session.Status
		objects []session.ObjectView
		err     error
	}

	// eventMsg forwards one session event.
	eventMsg struct {
		event session.Event
	}

	// resultMsg reports the outcome of a user action.
	resultMsg struct {
		text string
		err  error
	}
)

// selection is the trajectory currently traced on the map.
type selection struct {
	name     string
	noradID  int
	category classify.Category
	path     []transform.GeodeticPoint
}

// Model is the root Bubble Tea model.
type Model struct {
	// Dependencies
	ctx    context.Context
	ctl    Controller
	clock  TimeControl
	events <-chan session.Event
	frame  time.Duration

	// UI state
	width     int
	height    int
	ready     bool
	searching bool
	query     string
	statusMsg string
	filter    int // index into filters

	// Data snapshot (updated on snapshotMsg)
	status    session.Status
	objects   []session.ObjectView
	selection *selection
}

// filters are cycled with tab; nil shows every category.
var filters = append([]*classify.Category{nil}, categoryPtrs()...)

func categoryPtrs() []*classify.Category {
	out := make([]*classify.Category, len(classify.Categories))
	for i := range classify.Categories {
		out[i] = &classify.Categories[i]
	}
	return out
}

// New creates the root model. events may be nil; frame is the redraw
// interval.
func New(ctx context.Context, ctl Controller, tc TimeControl, events <-chan session.Event, frame time.Duration) Model {
	if frame <= 0 {
		frame = 250 * time.Millisecond
	}
	return Model{
		ctx:    ctx,
		ctl:    ctl,
		clock:  tc,
		events: events,
		frame:  frame,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.frameCmd(), m.refreshCmd()}
	if m.events != nil {
		cmds = append(cmds, waitForEvent(m.events))
	}
	return tea.Batch(cmds...)
}

func (m Model) frameCmd() tea.Cmd {
	return tea.Tick(m.frame, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		st, err := m.ctl.Status(m.ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		objs, err := m.ctl.Objects(m.ctx)
		return snapshotMsg{status: st, objects: objs, err: err}
	}
}

func waitForEvent(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{event: ev}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case frameMsg:
		return m, tea.Batch(m.frameCmd(), m.refreshCmd())

	case snapshotMsg:
		if msg.err != nil {
			m.statusMsg = "session: " + msg.err.Error()
			return m, nil
		}
		m.status = msg.status
		m.objects = msg.objects

	case eventMsg:
		m = m.applyEvent(msg.event)
		return m, waitForEvent(m.events)

	case resultMsg:
		if msg.err != nil {
			m.statusMsg = "error: " + msg.err.Error()
		} else if msg.text != "" {
			m.statusMsg = msg.text
		}
	}
	return m, nil
}

func (m Model) applyEvent(ev session.Event) Model {
	switch ev := ev.(type) {
	case session.Selected:
		path := make([]transform.GeodeticPoint, len(ev.Track.Points))
		for i, p := range ev.Track.Points {
			lat, lon := transform.CartesianToGeodetic(p.Pos)
			path[i] = transform.GeodeticPoint{LatDeg: lat, LonDeg: lon}
		}
		m.selection = &selection{name: ev.Name, noradID: ev.NORADID, category: ev.Category, path: path}
	case session.SelectionCleared:
		m.selection = nil
	case session.TrackingChanged:
		m.status.Tracking = ev.Enabled
	case session.CatalogLoaded:
		m.statusMsg = fmt.Sprintf("catalog loaded: %d objects", ev.Objects)
	case session.CatalogFailed:
		m.statusMsg = "catalog fetch failed: " + ev.Err.Error()
	}
	return m
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "t":
		enable := !m.status.Tracking
		if enable {
			m.statusMsg = "loading catalog..."
		}
		return m, m.trackingCmd(enable)

	case "/", "s":
		m.searching = true
		m.query = ""

	case "c", "esc":
		return m, func() tea.Msg {
			return resultMsg{err: m.ctl.ClearSelection(m.ctx)}
		}

	case "r":
		m.statusMsg = "reloading catalog..."
		return m, func() tea.Msg {
			if err := m.ctl.Reload(m.ctx); err != nil {
				return resultMsg{err: err}
			}
			return resultMsg{text: "catalog reloaded"}
		}

	case "+", "=":
		m.clock.SetRate(faster(m.clock.Rate()))
		m.statusMsg = fmt.Sprintf("time rate x%g", m.clock.Rate())
	case "-", "_":
		m.clock.SetRate(slower(m.clock.Rate()))
		m.statusMsg = fmt.Sprintf("time rate x%g", m.clock.Rate())
	case "0":
		m.clock.Reset()
		m.statusMsg = "time reset to now"

	case "tab":
		m.filter = (m.filter + 1) % len(filters)
	}
	return m, nil
}

// faster and slower step the rate along ... -4, -2, -1, 1, 2, 4 ... so the
// clock never stalls at zero.
func faster(rate float64) float64 {
	switch {
	case rate >= 1:
		return min(rate*2, clock.MaxRate)
	case rate >= -1:
		return 1
	default:
		return rate / 2
	}
}

func slower(rate float64) float64 {
	switch {
	case rate > 1:
		return rate / 2
	case rate > -1:
		return -1
	default:
		return max(rate*2, -clock.MaxRate)
	}
}

func (m Model) trackingCmd(enable bool) tea.Cmd {
	return func() tea.Msg {
		if err := m.ctl.SetTracking(m.ctx, enable); err != nil {
			return resultMsg{err: err}
		}
		if enable {
			return resultMsg{text: "tracking on"}
		}
		return resultMsg{text: "tracking off"}
	}
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.searching = false
		m.query = ""
	case tea.KeyEnter:
		m.searching = false
		q := parseQuery(m.query)
		m.query = ""
		if q.Name == "" && q.NORADID == 0 {
			return m, nil
		}
		m.statusMsg = "selecting " + q.String() + "..."
		return m, func() tea.Msg {
			sel, err := m.ctl.Select(m.ctx, q)
			if err != nil {
				return resultMsg{err: err}
			}
			return resultMsg{text: fmt.Sprintf("selected %s (%d), %d trajectory points", sel.Name, sel.NORADID, len(sel.Track.Points))}
		}
	case tea.KeyBackspace:
		if r := []rune(m.query); len(r) > 0 {
			m.query = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.query += " "
	case tea.KeyRunes:
		m.query += string(msg.Runes)
	case tea.KeyCtrlC:
		return m, tea.Quit
	}
	return m, nil
}

// parseQuery treats an all-digit input as a NORAD id and anything else as a
// name.
func parseQuery(s string) session.Query {
	s = strings.TrimSpace(s)
	if id, err := strconv.Atoi(s); err == nil && id > 0 {
		return session.Query{NORADID: id}
	}
	return session.Query{Name: s}
}
