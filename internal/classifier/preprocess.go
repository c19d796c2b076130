// Package classifier loads versioned model artifacts and scores article text
// against a fixed category set.
package classifier

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	urlRe     = regexp.MustCompile(`https?://\S+|www\.\S+`)
	nonWordRe = regexp.MustCompile(`[^a-z0-9\s'\-]`)
)

// Preprocess normalizes article text the same way the training pipeline
// does: NFC normalization, lowercasing, URL removal, punctuation stripping
// and whitespace collapsing. Headline and description are joined with a
// single space.
func Preprocess(headline, description string) string {
	text := headline
	if description != "" {
		text = text + " " + description
	}

	text = norm.NFC.String(text)
	text = strings.ToLower(text)
	text = urlRe.ReplaceAllString(text, "")
	text = nonWordRe.ReplaceAllString(text, " ")

	return strings.Join(strings.Fields(text), " ")
}

// Tokenize splits preprocessed text into model features.
func Tokenize(text string) []string {
	return strings.Fields(text)
}
