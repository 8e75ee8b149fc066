package tle

import (
	"io"
	"log/slog"
	"strings"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// Real orbital elements, epoch 2024-04-09 12:00 UTC.
const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9009"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    01"

	starlinkName  = "STARLINK-1007"
	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9998"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    07"
)

func catalogText(triples ...[3]string) string {
	var b strings.Builder
	for _, t := range triples {
		b.WriteString(t[0] + "\n" + t[1] + "\n" + t[2] + "\n")
	}
	return b.String()
}

var (
	issTriple      = [3]string{issName, issLine1, issLine2}
	starlinkTriple = [3]string{starlinkName, starlinkLine1, starlinkLine2}
)
