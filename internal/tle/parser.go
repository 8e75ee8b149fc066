package tle

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/star/orbitview/internal/propagation"
)

// Entry is one catalog object: a display name and the element set the
// propagation port built from its two element lines. Immutable once parsed.
type Entry struct {
	Name     string
	NORADID  int
	Epoch    time.Time
	Elements propagation.ElementSet
}

// Parse groups lines into fixed triples (name, line 1, line 2) starting at
// index 0 and asks port to build an element set for each. Groups the port
// rejects are logged and skipped without resynchronizing; a trailing partial
// group is ignored. Entries keep catalog order.
func Parse(lines []string, port propagation.Propagator, logger *slog.Logger) []Entry {
	entries := make([]Entry, 0, len(lines)/3)
	var skipped int

	for i := 0; i+2 < len(lines); i += 3 {
		name := strings.TrimSpace(lines[i])
		line1 := lines[i+1]
		line2 := lines[i+2]

		es, err := port.ParseElementSet(line1, line2)
		if err != nil {
			skipped++
			logger.Debug("skipping TLE entry", "line_index", i, "name", name, "error", err)
			continue
		}

		entries = append(entries, Entry{
			Name:     name,
			NORADID:  es.CatalogNumber(),
			Epoch:    es.Epoch(),
			Elements: es,
		})
	}

	if rem := len(lines) % 3; rem != 0 {
		logger.Debug("ignoring trailing partial TLE group", "lines", rem)
	}
	if skipped > 0 {
		logger.Warn("skipped malformed TLE entries", "skipped", skipped, "parsed", len(entries))
	}

	return entries
}

// ParseText reads catalog text from r and parses it.
func ParseText(r io.Reader, port propagation.Propagator, logger *slog.Logger) ([]Entry, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, maxBodyBytes+1)); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}
	if buf.Len() > maxBodyBytes {
		return nil, fmt.Errorf("TLE data exceeds %d byte limit", maxBodyBytes)
	}
	return Parse(SplitLines(buf.Bytes()), port, logger), nil
}
