// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package recommend

import "strings"

// stopWordList holds tokens excluded from tag extraction: common English
// function words plus boilerplate that appears in nearly every video title
// and carries no similarity signal.
var stopWordList = []string{
	"about", "above", "after", "again", "against", "all", "am", "an",
	"and", "any", "are", "as", "at", "be", "because", "been", "before",
	"being", "below", "between", "both", "but", "by", "can", "did", "do",
	"does", "doing", "down", "during", "each", "few", "for", "from",
	"further", "had", "has", "have", "having", "he", "her", "here",
	"hers", "him", "his", "how", "if", "in", "into", "is", "it", "its",
	"just", "me", "more", "most", "my", "no", "nor", "not", "now", "of",
	"off", "on", "once", "only", "or", "other", "our", "out", "over",
	"own", "same", "she", "should", "so", "some", "such", "than", "that",
	"the", "their", "them", "then", "there", "these", "they", "this",
	"those", "through", "to", "too", "under", "until", "up", "very",
	"was", "we", "were", "what", "when", "where", "which", "while",
	"who", "whom", "why", "will", "with", "you", "your",

	// title boilerplate
	"feat", "ft", "full", "hd", "official", "video", "videos",
}

var stopWords = func() map[string]struct{} {
	set := make(map[string]struct{}, len(stopWordList))
	for _, w := range stopWordList {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}()
