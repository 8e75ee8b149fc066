// Command orbitdiag parses an element set catalog offline and prints what the
// viewer would show: category counts, sub-satellite points and trajectory
// sizes. It reads a file, or the configured URL when -file is empty.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/logging"
	"github.com/star/orbitview/internal/propagation"
	"github.com/star/orbitview/internal/tle"
	"github.com/star/orbitview/internal/trajectory"
)

func main() {
	file := flag.String("file", "", "catalog file; - reads stdin")
	url := flag.String("url", tle.DefaultSourceURL, "catalog URL used when -file is empty")
	at := flag.String("at", "", "view time, RFC3339 (default now)")
	limit := flag.Int("n", 5, "objects to print")
	norad := flag.Int("norad", 0, "print only this NORAD id")
	flag.Parse()

	logger := logging.NewWithWriter(os.Stderr, slog.LevelWarn)

	t := time.Now().UTC()
	if *at != "" {
		parsed, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Println("ERROR parsing -at:", err)
			os.Exit(1)
		}
		t = parsed
	}

	r, err := open(*file, *url, logger)
	if err != nil {
		fmt.Println("ERROR reading catalog:", err)
		os.Exit(1)
	}
	entries, err := tle.ParseText(r, propagation.SGP4{}, logger)
	if err != nil {
		fmt.Println("ERROR parsing catalog:", err)
		os.Exit(1)
	}
	report(os.Stdout, entries, reportOptions{At: t, Limit: *limit, NORADID: *norad}, logger)
}

type reportOptions struct {
	At      time.Time
	Limit   int // objects to print when NORADID is zero
	NORADID int
}

// report prints category counts, then position and trajectory size for the
// selected entries.
func report(w io.Writer, entries []tle.Entry, opts reportOptions, logger *slog.Logger) {
	fmt.Fprintf(w, "Loaded %d catalog entries\n", len(entries))

	policy := classify.DefaultPolicy()
	counts := make(map[classify.Category]int)
	for _, e := range entries {
		counts[policy.Classify(e.Name)]++
	}
	for _, c := range classify.Categories {
		fmt.Fprintf(w, "  %-15s %6d  %s\n", c, counts[c], c.Color())
	}

	conv := propagation.NewConverter(propagation.SGP4{})
	sampler := trajectory.NewSampler(conv, 0, nil, logger)
	fmt.Fprintf(w, "\nPositions at %s\n", opts.At.Format(time.RFC3339))

	printed := 0
	for _, e := range entries {
		if opts.NORADID != 0 && e.NORADID != opts.NORADID {
			continue
		}
		if opts.NORADID == 0 && printed >= opts.Limit {
			break
		}
		printed++

		gp, err := conv.Geodetic(e.Elements, opts.At)
		if err != nil {
			fmt.Fprintf(w, "  NORAD %d %s: ERROR %v\n", e.NORADID, e.Name, err)
			continue
		}
		pos, _ := conv.Position(e.Elements, opts.At)
		age := "unknown"
		if !e.Epoch.IsZero() {
			age = opts.At.Sub(e.Epoch).Round(time.Minute).String()
		}
		fmt.Fprintf(w, "  NORAD %d %-24s %-14s lat=%7.2f° lon=%8.2f° alt=%8.1fkm render=(%.2f, %.2f, %.2f) epoch_age=%s\n",
			e.NORADID, e.Name, policy.Classify(e.Name), gp.LatDeg, gp.LonDeg, gp.AltKm,
			pos.X, pos.Y, pos.Z, age)

		track, err := sampler.Sample(context.Background(), e.Elements, opts.At, trajectory.DefaultHalfWindow, trajectory.DefaultStep)
		if err != nil {
			fmt.Fprintf(w, "    trajectory: ERROR %v\n", err)
			continue
		}
		fmt.Fprintf(w, "    trajectory: %d points\n", len(track.Points))
	}
	if opts.NORADID != 0 && printed == 0 {
		fmt.Fprintf(w, "  NORAD %d not found\n", opts.NORADID)
	}
}

func open(file, url string, logger *slog.Logger) (io.Reader, error) {
	switch file {
	case "-":
		return os.Stdin, nil
	case "":
		data, err := tle.NewFetcher(url, logger).Fetch(context.Background())
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	default:
		return os.Open(file)
	}
}
