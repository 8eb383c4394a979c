package selector

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/MimeLyc/clipwave/internal/jobs"
)

// rangeListPattern finds the first bracketed list of objects in a reply,
// tolerating prose or code fences around it.
var rangeListPattern = regexp.MustCompile(`(?s)\[\s*\{.*?\}\s*\]`)

// ParseRanges extracts [{start, end}, ...] from model output. Python-style
// single-quoted keys are accepted. Ranges are returned exactly as given.
func ParseRanges(text string) ([]jobs.TimeRange, error) {
	match := rangeListPattern.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("no time range list in response")
	}

	var raw []struct {
		Start *float64 `json:"start"`
		End   *float64 `json:"end"`
	}
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		// apostrophes in valid JSON strings survive; only Python-style lists get rewritten
		if err := json.Unmarshal([]byte(strings.ReplaceAll(match, "'", `"`)), &raw); err != nil {
			return nil, fmt.Errorf("parse time range list: %w", err)
		}
	}

	ranges := make([]jobs.TimeRange, 0, len(raw))
	for i, r := range raw {
		if r.Start == nil || r.End == nil {
			return nil, fmt.Errorf("range %d is missing start or end", i+1)
		}
		ranges = append(ranges, jobs.TimeRange{Start: *r.Start, End: *r.End})
	}
	return ranges, nil
}
