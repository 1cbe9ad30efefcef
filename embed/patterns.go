package embed

import (
	"regexp"
	"sort"
)

// Patterns for supported video URLs. Only shapes that carry playable
// content match: a bare profile link has no status/reel segment and is
// skipped.
var urlPatterns = []*regexp.Regexp{
	// X: https://x.com/user/status/123
	regexp.MustCompile(`https?://(?:www\.)?x\.com/\w+/status/\d+`),
	// Twitter: https://twitter.com/user/status/123
	regexp.MustCompile(`https?://(?:www\.)?twitter\.com/\w+/status/\d+`),
	// Instagram Reels: https://www.instagram.com/reel/ABC123/
	regexp.MustCompile(`https?://(?:www\.)?instagram\.com/reel/[\w-]+`),
}

// FindVideoURLs returns all supported video URLs in text, in order of
// appearance.
func FindVideoURLs(text string) []string {
	type match struct {
		start int
		url   string
	}
	var matches []match
	for _, pattern := range urlPatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			matches = append(matches, match{start: loc[0], url: text[loc[0]:loc[1]]})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, m.url)
	}
	return urls
}
