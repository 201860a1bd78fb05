package checklist

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	affirmative = []string{"네", "예", "응", "맞", "했", "그래", "있", "yes"}
	negative    = []string{"아니", "안", "못", "없", "싫", "no"}
	// negators turn a later affirmative in the same word, or one opening
	// the next word, into a non-match ("안 했어요", "못했네요").
	negators = []string{"안", "못"}
)

type unit struct {
	marker string
	scale  int64
}

// Longer markers come first so "천만" wins over "만".
var amountUnits = []unit{
	{"억", 100_000_000},
	{"천만", 10_000_000},
	{"백만", 1_000_000},
	{"만", 10_000},
	{"천", 1_000},
}

type recency struct {
	phrases []string
	score   int
}

var recencyScores = []recency{
	{[]string{"방금", "지금", "조금 전", "좀 전"}, 3},
	{[]string{"분 전", "분전", "시간 전", "시간전", "오늘", "아까"}, 2},
	{[]string{"어제", "그저께"}, 1},
}

// Normalize classifies raw according to kind.
func Normalize(kind Kind, raw string) Answer {
	text := strings.TrimSpace(raw)
	ans := Answer{Raw: text}
	switch kind {
	case KindYesNo:
		ans.Value = yesNo(text)
	case KindAmount:
		if v, ok := parseAmount(text); ok {
			ans.Value = Amount
			ans.Amount = v
		} else {
			ans.Value = Unclear
		}
	case KindTime:
		ans.Value = Time
		ans.TimeUrgency = recencyScore(text)
	default:
		ans.Value = Text
	}
	return ans
}

// yesNo prefers affirmative when both sets match.
func yesNo(text string) Value {
	lower := strings.ToLower(text)
	if hasAffirmative(lower) {
		return Yes
	}
	if hasWord(lower, negative) {
		return No
	}
	return Unclear
}

func hasAffirmative(text string) bool {
	words := strings.Fields(text)
	for _, kw := range affirmative {
		if isLatin(kw) {
			if hasToken(text, kw) {
				return true
			}
			continue
		}
		prev := ""
		for _, w := range words {
			for start := 0; ; {
				i := strings.Index(w[start:], kw)
				if i < 0 {
					break
				}
				at := start + i
				if !negated(w[:at], prev) {
					return true
				}
				start = at + len(kw)
			}
			prev = w
		}
	}
	return false
}

// negated reports whether a negator comes earlier in the same word
// ("안했네요") or ends the previous word ("안 했네요").
func negated(head, prev string) bool {
	for _, n := range negators {
		if strings.Contains(head, n) {
			return true
		}
		if head == "" && strings.HasSuffix(prev, n) {
			return true
		}
	}
	return false
}

func hasWord(text string, words []string) bool {
	for _, w := range words {
		if isLatin(w) {
			if hasToken(text, w) {
				return true
			}
			continue
		}
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func hasToken(text, tok string) bool {
	for _, f := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if f == tok {
			return true
		}
	}
	return false
}

func isLatin(s string) bool {
	for _, r := range s {
		if r >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// maxAmountDigits keeps the digit run and its unit well inside int64.
const maxAmountDigits = 15

// parseAmount reads the first digit run (commas allowed) and applies the
// unit marker that directly follows it. Runs that would overflow are
// rejected.
func parseAmount(text string) (int64, bool) {
	start := strings.IndexFunc(text, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return 0, false
	}
	var v int64
	digits := 0
	end := start
	for end < len(text) {
		ch := text[end]
		if ch == ',' {
			end++
			continue
		}
		if ch < '0' || ch > '9' {
			break
		}
		digits++
		if digits > maxAmountDigits {
			return 0, false
		}
		v = v*10 + int64(ch-'0')
		end++
	}
	rest := strings.TrimLeft(text[end:], " ")
	for _, u := range amountUnits {
		if strings.HasPrefix(rest, u.marker) {
			if v > math.MaxInt64/u.scale {
				return 0, false
			}
			return v * u.scale, true
		}
	}
	return v, true
}

func recencyScore(text string) int {
	for _, r := range recencyScores {
		if matchesAny(text, r.phrases) {
			return r.score
		}
	}
	return 0
}
