package propagation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/orbitview/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Propagate() takes Satellite by value so SGP4 error codes are not visible
// to the caller. Failures are detected by checking the output for NaN/Inf
// and implausible position magnitudes.

// errEpochRange marks an epoch column that is numeric but names no real day.
var errEpochRange = errors.New("epoch day out of range")

// SGP4 implements Propagator with the go-satellite SGP4/SDP4 model and WGS-84
// gravity constants. The zero value is ready to use.
type SGP4 struct{}

// sgp4Elements is the ElementSet produced by SGP4.
type sgp4Elements struct {
	sat     satellite.Satellite
	noradID int
	epoch   time.Time
}

func (e *sgp4Elements) CatalogNumber() int { return e.noradID }
func (e *sgp4Elements) Epoch() time.Time   { return e.epoch }

// ParseElementSet validates and initializes an SGP4 record from a TLE line
// pair. Lines are validated before they reach go-satellite, which calls
// log.Fatal on malformed columns.
func (SGP4) ParseElementSet(line1, line2 string) (ElementSet, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if err := ValidateLines(line1, line2); err != nil {
		return nil, err
	}

	noradID, err := CatalogNumber(line1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTLE, err)
	}
	// go-satellite needs numeric epoch columns; a day outside the year only
	// costs the display epoch, which is left zero.
	epoch, err := ParseEpoch(line1)
	if err != nil && !errors.Is(err, errEpochRange) {
		return nil, fmt.Errorf("%w: NORAD %d: %v", ErrInvalidTLE, noradID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: sgp4 init failed for NORAD %d: code=%d %s", ErrInvalidTLE, noradID, sat.Error, sat.ErrorStr)
	}

	return &sgp4Elements{sat: sat, noradID: noradID, epoch: epoch}, nil
}

// Propagate computes the TEME position of es at t.
func (SGP4) Propagate(es ElementSet, t time.Time) (State, error) {
	el, ok := es.(*sgp4Elements)
	if !ok || el == nil {
		return State{}, fmt.Errorf("%w: element set %T was not built by SGP4", ErrPropagation, es)
	}

	t = t.UTC()
	pos, _ := satellite.Propagate(el.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	eci := transform.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}

	if !transform.PlausibleOrbitKm(eci) {
		return State{}, fmt.Errorf("%w: NORAD %d at %s: implausible position magnitude %.1f km",
			ErrPropagation, el.noradID, t.Format(time.RFC3339), eci.Norm())
	}

	return State{PositionECI: eci, SiderealTime: transform.GMST(t)}, nil
}

// ValidateLines performs the format checks go-satellite does not: exact
// length, line numbers, matching catalog numbers and the modulo-10 checksum.
func ValidateLines(line1, line2 string) error {
	if len(line1) != 69 {
		return fmt.Errorf("%w: line1 length %d, expected 69", ErrInvalidTLE, len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("%w: line2 length %d, expected 69", ErrInvalidTLE, len(line2))
	}
	if !strings.HasPrefix(line1, "1 ") {
		return fmt.Errorf("%w: line1 must start with '1 '", ErrInvalidTLE)
	}
	if !strings.HasPrefix(line2, "2 ") {
		return fmt.Errorf("%w: line2 must start with '2 '", ErrInvalidTLE)
	}
	if strings.TrimSpace(line1[2:7]) != strings.TrimSpace(line2[2:7]) {
		return fmt.Errorf("%w: catalog numbers differ (%q vs %q)", ErrInvalidTLE, line1[2:7], line2[2:7])
	}
	for i, line := range []string{line1, line2} {
		if want, got := checksum(line), line[68]; got != want {
			return fmt.Errorf("%w: line%d checksum %c, computed %c", ErrInvalidTLE, i+1, got, want)
		}
	}
	return nil
}

// checksum returns the expected final digit of a TLE line: the sum of all
// digits in columns 1-68, with '-' counting as 1, modulo 10.
func checksum(line string) byte {
	sum := 0
	for i := 0; i < 68; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return byte('0' + sum%10)
}

// CatalogNumber reads the NORAD catalog number from columns 3-7 of line 1.
func CatalogNumber(line1 string) (int, error) {
	if len(line1) < 7 {
		return 0, fmt.Errorf("line1 too short for catalog number")
	}
	n, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return 0, fmt.Errorf("catalog number %q: %w", line1[2:7], err)
	}
	return n, nil
}

// ParseEpoch reads the element epoch from columns 19-32 of line 1: a
// two-digit year (57-99 are 1900s) followed by a fractional day of year.
func ParseEpoch(line1 string) (time.Time, error) {
	if len(line1) < 32 {
		return time.Time{}, fmt.Errorf("line1 too short for epoch")
	}
	yy, err := strconv.Atoi(strings.TrimSpace(line1[18:20]))
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch year %q: %w", line1[18:20], err)
	}
	day, err := strconv.ParseFloat(strings.TrimSpace(line1[20:32]), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch day %q: %w", line1[20:32], err)
	}
	if day < 1 || day >= 367 {
		return time.Time{}, fmt.Errorf("%w: %v", errEpochRange, day)
	}

	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	offset := time.Duration(math.Round((day - 1) * 24 * float64(time.Hour)))
	return start.Add(offset), nil
}
