package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/session"
)

const (
	glyphMarker   = '•'
	glyphSelected = '◉'
	glyphPath     = '·'
	glyphGrid     = '┼'
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("117"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("60"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	frameStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60"))
)

// cell is one character of the map canvas.
type cell struct {
	r     rune
	color string
}

// project maps a geodetic point onto a w x h equirectangular grid.
func project(latDeg, lonDeg float64, w, h int) (x, y int) {
	x = int((lonDeg + 180) / 360 * float64(w))
	y = int((90 - latDeg) / 180 * float64(h))
	return min(max(x, 0), w-1), min(max(y, 0), h-1)
}

// plotMap draws grid, trajectory and markers, in that order, onto a w x h
// canvas. Only placed, visible markers that pass filter are drawn.
func plotMap(objects []session.ObjectView, sel *selection, filter *classify.Category, w, h int) [][]cell {
	canvas := make([][]cell, h)
	for y := range canvas {
		canvas[y] = make([]cell, w)
		for x := range canvas[y] {
			canvas[y][x] = cell{r: ' '}
		}
	}

	// Equator and prime meridian.
	_, eq := project(0, 0, w, h)
	pm, _ := project(0, 0, w, h)
	for x := 0; x < w; x++ {
		canvas[eq][x] = cell{r: '─', color: "237"}
	}
	for y := 0; y < h; y++ {
		canvas[y][pm] = cell{r: '│', color: "237"}
	}
	canvas[eq][pm] = cell{r: glyphGrid, color: "237"}

	if sel != nil {
		for _, p := range sel.path {
			x, y := project(p.LatDeg, p.LonDeg, w, h)
			canvas[y][x] = cell{r: glyphPath, color: sel.category.Color()}
		}
	}

	for _, o := range objects {
		if !o.Placed || !o.Visible {
			continue
		}
		if filter != nil && o.Category != *filter {
			continue
		}
		x, y := project(o.LatDeg, o.LonDeg, w, h)
		canvas[y][x] = cell{r: glyphMarker, color: o.Category.Color()}
	}

	// The selected object is drawn last so it is never hidden.
	if sel != nil {
		for _, o := range objects {
			if o.NORADID == sel.noradID && o.Placed {
				x, y := project(o.LatDeg, o.LonDeg, w, h)
				canvas[y][x] = cell{r: glyphSelected, color: "15"}
				break
			}
		}
	}
	return canvas
}

func renderCanvas(canvas [][]cell) string {
	var b strings.Builder
	for y, row := range canvas {
		if y > 0 {
			b.WriteByte('\n')
		}
		for _, c := range row {
			if c.color == "" {
				b.WriteRune(c.r)
				continue
			}
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(c.color)).Render(string(c.r)))
		}
	}
	return b.String()
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	w := max(m.width-2, 20)
	h := max(m.height-8, 8)
	canvas := plotMap(m.objects, m.selection, filters[m.filter], w, h)

	return m.renderHeader() + "\n" +
		frameStyle.Render(renderCanvas(canvas)) + "\n" +
		m.renderLegend() + "\n" +
		m.renderStatus()
}

func (m Model) renderHeader() string {
	tracking := dimStyle.Render("tracking off")
	if m.status.Tracking {
		tracking = accentStyle.Render("tracking on")
	}
	catalog := "no catalog"
	if !m.status.CatalogFetchedAt.IsZero() {
		catalog = "catalog " + m.status.CatalogFetchedAt.UTC().Format("2006-01-02 15:04Z")
	}
	if m.status.Pending {
		catalog += " (loading)"
	}
	return fmt.Sprintf("%s  %s  %s  %s  %s",
		titleStyle.Render("orbitview"),
		accentStyle.Render(m.clock.Now().UTC().Format(time.DateTime)+"Z"),
		dimStyle.Render(fmt.Sprintf("x%g", m.clock.Rate())),
		tracking,
		dimStyle.Render(fmt.Sprintf("%s · %d objects · %d visible", catalog, m.status.Objects, m.status.Visible)),
	)
}

func (m Model) renderLegend() string {
	counts := make(map[classify.Category]int)
	for _, o := range m.objects {
		if o.Visible && o.Placed {
			counts[o.Category]++
		}
	}
	parts := make([]string, 0, len(classify.Categories)+1)
	for _, c := range classify.Categories {
		label := fmt.Sprintf("%c %s %d", glyphMarker, c, counts[c])
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(c.Color()))
		if f := filters[m.filter]; f != nil && *f != c {
			style = dimStyle
		}
		parts = append(parts, style.Render(label))
	}
	if m.selection != nil {
		parts = append(parts, accentStyle.Render(fmt.Sprintf("%c %s (%d)", glyphSelected, m.selection.name, m.selection.noradID)))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderStatus() string {
	if m.searching {
		return accentStyle.Render("select: ") + m.query + "█" + dimStyle.Render("  [enter] select  [esc] cancel")
	}
	help := dimStyle.Render("[t]rack  [/]select  [c]lear  [r]eload  [+/-]rate  [0]now  [tab]filter  [q]uit")
	if m.statusMsg == "" {
		return help
	}
	style := dimStyle
	if strings.HasPrefix(m.statusMsg, "error") || strings.Contains(m.statusMsg, "failed") {
		style = errorStyle
	}
	return style.Render(m.statusMsg) + "  " + help
}
