// Package parser extracts the title and inline #tags from plain-text note content.
package parser

import (
	"regexp"
	"strings"
)

var (
	// First line with non-whitespace is the title.
	titleRe = regexp.MustCompile(`^\s*(.*)\n?`)
	tagRe   = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Result holds the output of parsing note content.
type Result struct {
	Title string
	Body  string
	Tags  []string
}

// Parse splits content into title and body and collects inline #tags.
// extra are server-managed tags merged ahead of the inline ones.
func Parse(content string, extra ...string) *Result {
	title, body := splitTitle(content)
	return &Result{
		Title: title,
		Body:  body,
		Tags:  extractTags(content, extra),
	}
}

// Title returns the first non-blank line of content.
func Title(content string) string {
	title, _ := splitTitle(content)
	return title
}

func splitTitle(content string) (string, string) {
	loc := titleRe.FindStringSubmatchIndex(content)
	if loc == nil {
		return "", content
	}
	title := strings.TrimRight(content[loc[2]:loc[3]], " \t\r")
	return title, content[loc[1]:]
}

// extractTags returns extra followed by inline #tags, deduplicated in order.
func extractTags(content string, extra []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range extra {
		add(t)
	}
	for _, m := range tagRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	return out
}
