// Package parser extracts embedded asset references from Markdown content.
package parser

import (
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"
)

// AssetsDir is the sibling directory that holds a document's embedded files.
const AssetsDir = "assets"

var (
	assetRe = regexp.MustCompile(`!\[.*?\]\(` + AssetsDir + `/([^)]+)\)`)
	titleRe = regexp.MustCompile(`\s+("[^"]*"|'[^']*')$`)
)

// Assets returns the deduplicated file names referenced as
// ![alt](assets/<name>) in data, in order of first appearance.
func Assets(data []byte) []string {
	matches := assetRe.FindAllSubmatch(data, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		name := normalise(string(m[1]))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// normalise strips an optional quoted link title (![a](assets/x.png "t")),
// decodes percent escapes and rejects names that would leave the assets
// directory. Unquoted spaces are part of the name.
func normalise(raw string) string {
	raw = strings.TrimSpace(titleRe.ReplaceAllString(strings.TrimSpace(raw), ""))
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	if raw == "" || path.IsAbs(raw) || slices.Contains(segments(raw), "..") {
		return ""
	}
	return raw
}

func segments(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' })
}
