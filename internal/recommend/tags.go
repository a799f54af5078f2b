// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package recommend

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// maxTagLength is the longest token kept by the extractor.
const maxTagLength = 30

// punctReplacer maps the fixed punctuation class to spaces. The class is
// tuned to user-generated video titles (hashtags, separators, CJK brackets).
var punctReplacer = strings.NewReplacer(
	",", " ", "|", " ", "#", " ", "@", " ", "~", " ",
	"'", " ", `"`, " ", `\`, " ", "/", " ", "_", " ",
	"-", " ", "[", " ", "]", " ", "+", " ", "*", " ",
	"{", " ", "}", " ", ";", " ", ":", " ", "`", " ",
	"=", " ", "【", " ", "】", " ", "(", " ", ")", " ",
	".", " ", "’", " ", "?", " ",
)

// isEmoji reports whether r falls in the stripped emoji ranges.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1F64F:
		return true
	case r >= 0x1F680 && r <= 0x1F6FF:
		return true
	case r >= 0x2600 && r <= 0x2B55:
		return true
	default:
		return false
	}
}

// ExtractTags turns a video document into its normalized tag set, sorted
// for determinism. The pipeline: concatenate tags and title, lowercase,
// strip emoji, map punctuation to spaces, split on whitespace, then drop
// single-rune tokens, tokens longer than 30 runes, and stop words.
//
// A nil document yields an empty set; callers treat that the same as a
// video without tags.
func ExtractTags(doc *VideoDocument) []string {
	if doc == nil {
		return nil
	}

	var b strings.Builder
	for _, tag := range doc.Tags {
		b.WriteString(tag)
		b.WriteByte(' ')
	}
	b.WriteString(doc.Title)

	sentence := strings.ToLower(b.String())
	sentence = strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return ' '
		}
		return r
	}, sentence)
	sentence = punctReplacer.Replace(sentence)

	seen := make(map[string]struct{})
	for _, word := range strings.Fields(sentence) {
		n := utf8.RuneCountInString(word)
		if n == 1 || n > maxTagLength {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		seen[word] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
