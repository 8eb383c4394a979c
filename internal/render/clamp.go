package render

import "github.com/MimeLyc/clipwave/internal/jobs"

// Candidate is a requested range after clamping to the source.
type Candidate struct {
	Start float64
	End   float64
}

func (c Candidate) Duration() float64 {
	return c.End - c.Start
}

// Clamp bounds each range to [0, duration] and drops ranges that end at or
// before they start. When the duration is unknown only the lower bound is
// applied. Input order is preserved.
func Clamp(ranges []jobs.TimeRange, duration float64, known bool) []Candidate {
	candidates := make([]Candidate, 0, len(ranges))
	for _, r := range ranges {
		start := max(0, r.Start)
		end := r.End
		if known {
			end = min(end, duration)
		}
		if end <= start {
			continue
		}
		candidates = append(candidates, Candidate{Start: start, End: end})
	}
	return candidates
}
