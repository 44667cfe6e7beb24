// Package timeline turns user edits on a source timeline (explicit ranges,
// split markers, removed ranges) into the segment ranges to extract.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// ErrInvalidRange reports a range outside 0 <= start < end <= duration.
var ErrInvalidRange = errors.New("invalid segment range")

// Range is a half-open [Start, End) interval in seconds.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start.
func (r Range) Duration() float64 {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", formatSeconds(r.Start), formatSeconds(r.End))
}

// RangeError names the offending range by its position in the request.
type RangeError struct {
	Index  int
	Range  Range
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range %d (%s): %s", e.Index+1, e.Range, e.Reason)
}

// Unwrap lets callers match ErrInvalidRange.
func (e *RangeError) Unwrap() error {
	return ErrInvalidRange
}

// Check validates one range. A non-positive duration skips the upper bound.
func (r Range) Check(duration float64) string {
	switch {
	case math.IsNaN(r.Start) || math.IsNaN(r.End):
		return "timestamp is not a number"
	case math.IsInf(r.Start, 0) || math.IsInf(r.End, 0):
		return "timestamp is not finite"
	case r.Start < 0:
		return "start is negative"
	case r.Start >= r.End:
		return "start must be before end"
	case duration > 0 && r.End > duration:
		return fmt.Sprintf("end exceeds source duration %s", formatSeconds(duration))
	default:
		return ""
	}
}

// Validate checks every range and returns the first violation as *RangeError.
func Validate(ranges []Range, duration float64) error {
	for i, r := range ranges {
		if reason := r.Check(duration); reason != "" {
			return &RangeError{Index: i, Range: r, Reason: reason}
		}
	}
	return nil
}

// SplitAt cuts [0, duration) at the given markers. Markers outside the open
// interval (0, duration) and duplicates are ignored.
func SplitAt(points []float64, duration float64) ([]Range, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidRange)
	}

	cuts := lo.Uniq(lo.Filter(points, func(p float64, _ int) bool {
		return p > 0 && p < duration
	}))
	sort.Float64s(cuts)

	bounds := append(append([]float64{0}, cuts...), duration)
	out := make([]Range, 0, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		out = append(out, Range{Start: bounds[i], End: bounds[i+1]})
	}
	return out, nil
}

// Remove returns the parts of [0, duration) not covered by removed. Overlapping
// and adjacent removals are merged first.
func Remove(removed []Range, duration float64) ([]Range, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidRange)
	}
	if err := Validate(removed, duration); err != nil {
		return nil, err
	}

	merged := Merge(removed)
	out := make([]Range, 0, len(merged)+1)
	cursor := 0.0
	for _, r := range merged {
		if r.Start > cursor {
			out = append(out, Range{Start: cursor, End: r.Start})
		}
		cursor = math.Max(cursor, r.End)
	}
	if cursor < duration {
		out = append(out, Range{Start: cursor, End: duration})
	}
	return out, nil
}

// Merge sorts ranges by start and joins overlapping or touching ones.
func Merge(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			last.End = math.Max(last.End, r.End)
			continue
		}
		out = append(out, r)
	}
	return out
}

// ParseRange reads "START:END" where each side is seconds ("12.5") or a
// clock value ("1:02:03.5", "02:03").
func ParseRange(raw string) (Range, error) {
	raw = strings.TrimSpace(raw)
	sep := strings.LastIndex(raw, "-")
	if sep <= 0 {
		// "12.5:30" is the short form; clock values need the dash form.
		parts := strings.Split(raw, ":")
		if len(parts) != 2 {
			return Range{}, fmt.Errorf("%w: %q, want START:END or START-END", ErrInvalidRange, raw)
		}
		return parsePair(raw, parts[0], parts[1])
	}
	return parsePair(raw, raw[:sep], raw[sep+1:])
}

// ParseRanges parses every entry, keeping order.
func ParseRanges(raw []string) ([]Range, error) {
	out := make([]Range, 0, len(raw))
	for _, entry := range raw {
		r, err := ParseRange(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ParseTimestamp reads seconds or [[HH:]MM:]SS(.fff).
func ParseTimestamp(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty timestamp")
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", raw)
	}
	total := 0.0
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("invalid timestamp %q", raw)
		}
		total = total*60 + v
	}
	return total, nil
}

func parsePair(raw, start, end string) (Range, error) {
	s, err := ParseTimestamp(start)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q: %v", ErrInvalidRange, raw, err)
	}
	e, err := ParseTimestamp(end)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q: %v", ErrInvalidRange, raw, err)
	}
	return Range{Start: s, End: e}, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
