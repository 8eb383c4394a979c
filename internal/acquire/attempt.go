package acquire

import "strings"

type Kind int

const (
	KindCredentialed Kind = iota
	KindClient
	KindExtractorHint
	KindMinimal
)

func (k Kind) String() string {
	switch k {
	case KindCredentialed:
		return "credentialed"
	case KindClient:
		return "client"
	case KindExtractorHint:
		return "extractor-hint"
	case KindMinimal:
		return "minimal"
	default:
		return "unknown"
	}
}

// Attempt is one way of asking the origin for the media. Empty fields are
// simply not passed to the fetcher.
type Attempt struct {
	Kind          Kind
	CookieFile    string
	UserAgent     string
	Format        string
	ExtractorArgs string
}

// String is a short label used in logs and failure summaries.
func (a Attempt) String() string {
	parts := []string{a.Kind.String()}
	if a.UserAgent != "" {
		parts = append(parts, "ua="+shortAgent(a.UserAgent))
	}
	if a.Format != "" {
		parts = append(parts, "format="+a.Format)
	}
	if a.ExtractorArgs != "" {
		parts = append(parts, "extractor="+a.ExtractorArgs)
	}
	return strings.Join(parts, " ")
}

type AttemptConfig struct {
	CookieFile     string
	UserAgents     []string
	Formats        []string
	ExtractorHints []string
}

// BuildAttempts lays out the full attempt order: credentialed attempts over
// every format, then each user agent over every format from highest to lowest
// quality, then each extractor hint, then a single bare attempt.
func BuildAttempts(cfg AttemptConfig) []Attempt {
	formats := nonBlank(cfg.Formats)
	agents := nonBlank(cfg.UserAgents)
	attempts := make([]Attempt, 0, len(formats)*(len(agents)+1)+len(cfg.ExtractorHints)+1)

	if cfg.CookieFile != "" {
		var agent string
		if len(agents) > 0 {
			agent = agents[0]
		}
		for _, format := range formats {
			attempts = append(attempts, Attempt{
				Kind:       KindCredentialed,
				CookieFile: cfg.CookieFile,
				UserAgent:  agent,
				Format:     format,
			})
		}
	}

	for _, agent := range agents {
		for _, format := range formats {
			attempts = append(attempts, Attempt{
				Kind:      KindClient,
				UserAgent: agent,
				Format:    format,
			})
		}
	}

	var fallbackFormat string
	if len(formats) > 0 {
		fallbackFormat = formats[len(formats)-1]
	}
	for _, hint := range nonBlank(cfg.ExtractorHints) {
		attempts = append(attempts, Attempt{
			Kind:          KindExtractorHint,
			Format:        fallbackFormat,
			ExtractorArgs: hint,
		})
	}

	return append(attempts, Attempt{Kind: KindMinimal})
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func shortAgent(ua string) string {
	if len(ua) <= 24 {
		return ua
	}
	return ua[:24] + "..."
}
