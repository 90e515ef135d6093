package readiness

import (
	"regexp"
	"strconv"
)

// Banner phrasings differ per engine and locale, so the matcher carries a
// set of patterns and reports the first hit. Each pattern must capture the
// port as its first submatch.
var defaultBannerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)local:\s+https?://[^:\s]+:(\d{2,5})`),
	regexp.MustCompile(`(?i)server running at\s+https?://[^:\s]+:(\d{2,5})`),
	regexp.MustCompile(`(?i)listening (?:on|at)\s+(?:https?://)?[^:\s]*:(\d{2,5})`),
	regexp.MustCompile(`(?i)listening on port\s+(\d{2,5})`),
	regexp.MustCompile(`(?i)started server on\s+[^:\s]+:(\d{2,5})`),
	regexp.MustCompile(`(?i)project is running at\s+(?:https?://)?[^:\s]+:(\d{2,5})`),
	regexp.MustCompile(`(?i)ready on\s+(?:https?://)?[^:\s]+:(\d{2,5})`),
	regexp.MustCompile(`(?i)available on:?\s+(?:https?://)?[^:\s]+:(\d{2,5})`),
	regexp.MustCompile(`https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1?\]):(\d{2,5})`),
}

// BannerMatcher scans cleaned output lines for a readiness banner.
type BannerMatcher struct {
	patterns []*regexp.Regexp
}

// NewBannerMatcher returns a matcher loaded with the known phrasings.
func NewBannerMatcher() *BannerMatcher {
	return &BannerMatcher{patterns: defaultBannerPatterns}
}

// NewBannerMatcherWith builds a matcher from custom patterns; each must
// capture the port as its first submatch.
func NewBannerMatcherWith(patterns ...*regexp.Regexp) *BannerMatcher {
	return &BannerMatcher{patterns: patterns}
}

// Match reports the declared port when line looks like a readiness banner.
func (m *BannerMatcher) Match(line string) (int, bool) {
	for _, re := range m.patterns {
		sub := re.FindStringSubmatch(line)
		if len(sub) < 2 {
			continue
		}
		port, err := strconv.Atoi(sub[1])
		if err != nil || port <= 0 || port > 65535 {
			continue
		}
		return port, true
	}
	return 0, false
}

func (m *BannerMatcher) Describe() string { return "banner" }
