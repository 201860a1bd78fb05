package agent

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// sttCorrections fixes common misrecognitions of hotline numbers and terms.
var sttCorrections = strings.NewReplacer(
	"일삼이", "132",
	"일팔일일", "1811",
	"보이스비싱", "보이스피싱",
	"명의 도용", "명의도용",
)

// Preprocess normalizes an utterance before classification: NFC (STT
// engines may emit decomposed Hangul), known misrecognitions, and collapsed
// whitespace. It returns "" for blank input.
func Preprocess(utterance string) string {
	text := norm.NFC.String(utterance)
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	return sttCorrections.Replace(text)
}
