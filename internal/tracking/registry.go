// Package tracking holds the live set of tracked objects and keeps their
// rendered positions current.
package tracking

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/tle"
)

// Object is one tracked catalog entry and its marker.
type Object struct {
	ID       int
	Entry    tle.Entry
	Category classify.Category
	Handle   Handle
	Visible  bool
}

// Registry owns the tracked objects for one session. It is not safe for
// concurrent use; the session loop is its only caller.
type Registry struct {
	policy   *classify.Policy
	renderer Renderer
	logger   *slog.Logger

	objects   []*Object
	byNORAD   map[int]*Object
	populated bool
	fetchedAt time.Time
	source    string
	lines     []string
}

// NewRegistry creates an empty registry. A nil policy selects
// classify.DefaultPolicy.
func NewRegistry(policy *classify.Policy, renderer Renderer, logger *slog.Logger) *Registry {
	if policy == nil {
		policy = classify.DefaultPolicy()
	}
	return &Registry{
		policy:   policy,
		renderer: renderer,
		logger:   logger,
		byNORAD:  make(map[int]*Object),
	}
}

// Populate classifies entries and creates exactly one marker per entry with
// create. Once populated, further calls return the existing objects without
// creating anything until Reset is called. New objects start hidden.
func (r *Registry) Populate(cat tle.Catalog, entries []tle.Entry, create func(classify.Category) Handle) []*Object {
	if r.populated {
		if !cat.FetchedAt.Equal(r.fetchedAt) {
			r.logger.Debug("registry already populated, ignoring newer catalog",
				"populated_at", r.fetchedAt, "offered_at", cat.FetchedAt)
		}
		return r.Objects()
	}

	r.objects = make([]*Object, 0, len(entries))
	for i, e := range entries {
		category := r.policy.Classify(e.Name)
		obj := &Object{
			ID:       i,
			Entry:    e,
			Category: category,
			Handle:   create(category),
		}
		r.objects = append(r.objects, obj)
		if _, dup := r.byNORAD[e.NORADID]; !dup {
			r.byNORAD[e.NORADID] = obj
		}
	}
	r.populated = true
	r.fetchedAt = cat.FetchedAt
	r.source = cat.Source
	r.lines = cat.Lines

	r.logger.Info("registry populated",
		"objects", len(r.objects),
		"catalog_fetched_at", cat.FetchedAt.UTC().Format(time.RFC3339),
	)
	return r.Objects()
}

// Populated reports whether Populate has run since the last Reset.
func (r *Registry) Populated() bool { return r.populated }

// CatalogFetchedAt identifies the catalog the registry was populated from.
func (r *Registry) CatalogFetchedAt() time.Time { return r.fetchedAt }

// SameContent reports whether cat carries exactly the lines the registry was
// populated from.
func (r *Registry) SameContent(cat tle.Catalog) bool {
	return r.populated && slices.Equal(r.lines, cat.Lines)
}

// Revalidate records that cat, whose content matches the registry, is the
// latest fetch. Objects and markers are untouched.
func (r *Registry) Revalidate(cat tle.Catalog) {
	if !r.SameContent(cat) {
		return
	}
	r.fetchedAt = cat.FetchedAt
	r.source = cat.Source
}

// Len returns the number of tracked objects.
func (r *Registry) Len() int { return len(r.objects) }

// Objects returns the tracked objects in catalog order. The slice is a copy;
// the objects are shared.
func (r *Registry) Objects() []*Object {
	return append([]*Object(nil), r.objects...)
}

// SetVisible shows or hides one object's marker. The marker is never
// destroyed.
func (r *Registry) SetVisible(obj *Object, visible bool) {
	if obj == nil || obj.Visible == visible {
		return
	}
	obj.Visible = visible
	r.renderer.SetVisible(obj.Handle, visible)
}

// SetAllVisible shows or hides every marker.
func (r *Registry) SetAllVisible(visible bool) {
	for _, obj := range r.objects {
		r.SetVisible(obj, visible)
	}
}

// Reset removes every marker through remove and empties the registry so the
// next Populate starts over.
func (r *Registry) Reset(remove func(Handle)) {
	for _, obj := range r.objects {
		remove(obj.Handle)
	}
	r.objects = nil
	r.byNORAD = make(map[int]*Object)
	r.populated = false
	r.fetchedAt = time.Time{}
	r.source = ""
	r.lines = nil
}

// ByID returns the object with the given registry id.
func (r *Registry) ByID(id int) (*Object, bool) {
	if id < 0 || id >= len(r.objects) {
		return nil, false
	}
	return r.objects[id], true
}

// FindByNORAD returns the first object with the given catalog number.
func (r *Registry) FindByNORAD(id int) (*Object, bool) {
	obj, ok := r.byNORAD[id]
	return obj, ok
}

// FindByName returns the object whose name matches exactly, ignoring case.
// Failing that, the first object whose name contains the query is returned.
func (r *Registry) FindByName(name string) (*Object, bool) {
	query := strings.TrimSpace(name)
	if query == "" {
		return nil, false
	}
	for _, obj := range r.objects {
		if strings.EqualFold(obj.Entry.Name, query) {
			return obj, true
		}
	}
	upper := strings.ToUpper(query)
	for _, obj := range r.objects {
		if strings.Contains(strings.ToUpper(obj.Entry.Name), upper) {
			return obj, true
		}
	}
	return nil, false
}

// CategoryCounts returns the number of objects per category name.
func (r *Registry) CategoryCounts() map[string]int {
	counts := make(map[string]int, len(classify.Categories))
	for _, obj := range r.objects {
		counts[obj.Category.String()]++
	}
	return counts
}
