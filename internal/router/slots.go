package router

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// topicLeadIns are request framings stripped before a topic title is
// built. Matching is longest-prefix with a word boundary, so "learn"
// never eats the front of "learning rust".
var topicLeadIns = []string{
	"i want to learn about", "i want to learn", "i want to study",
	"to learn about", "to learn", "to study",
	"please teach me about", "please teach me", "please teach",
	"teach me about", "teach me",
	"learn about", "learn", "study",
	"start lesson on", "start lesson",
	"create a learning path for", "create learning path for",
	"create a new learning path for", "create a new learning path",
	"add a new learning path for", "add a new learning path",
	"new learning path for", "new learning path",
	"a new learning path for", "a learning path for",
	"create a plan for", "create plan for", "create a plan", "create plan",
	"add a plan for", "add plan for", "add a plan",
	"make a plan for", "make a plan", "make me a plan for", "make me a plan",
	"give me a plan for", "give me a plan",
	"build a plan for", "build a plan", "build me a plan for", "build me a plan",
	"new plan for", "new plan", "a new plan for", "a new plan",
	"a plan for", "another plan", "the plan", "a plan", "plan",
	"switch to", "change topic to", "change to", "start over with",
	"what is", "what are", "how does", "how do",
	"quiz me on", "quiz on", "quiz me",
	"assess me on", "assess me", "test me on", "test me",
	"give me a quiz on",
	"tell me about", "explain",
}

// Connector words left dangling after a lead-in strip ("please teach
// me about fractions" loses its lead-in but keeps "about").
var topicConnectors = []string{"about ", "on ", "of "}

// frontFillers are agreement, politeness and request-opener phrases
// stripped off the front before lead-in matching, so "yes, teach me
// fractions", "could you teach me fractions" and a bare "yes" all
// sanitize cleanly (the last to "").
var frontFillers = []string{
	"yes", "yeah", "yep", "sure", "ok", "okay", "please", "ready",
	"alright", "great", "cool", "let's", "lets",
	"i'd like", "i would like", "i want", "i need", "i wanna",
	"can you", "could you", "can we", "could we",
}

// SanitizeTopic turns a conversational request into a topic title:
// "i want to learn about machine learning" becomes "Machine Learning".
// Returns "" when nothing topic-like remains so callers can fall back.
func SanitizeTopic(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	for {
		p := longestPrefix(s, frontFillers, " ,!.")
		if p == "" {
			break
		}
		s = strings.TrimLeft(s[len(p):], " ,!.")
	}
	if p := longestPrefix(s, topicLeadIns, " "); p != "" {
		s = strings.TrimSpace(s[len(p):])
	}
	s = strings.Trim(s, ` -:,.!?"'`)
	for _, conn := range topicConnectors {
		if strings.HasPrefix(s, conn) {
			s = strings.TrimSpace(s[len(conn):])
			break
		}
	}
	if s == "" {
		return ""
	}
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

// titleWord capitalizes a topic word. Short alphabetic words with no
// vowel (sql, css) and two-letter words (ai, ml) read as acronyms and
// go fully upper.
func titleWord(w string) string {
	if isAlpha(w) && utf8.RuneCountInString(w) <= 3 {
		if utf8.RuneCountInString(w) <= 2 || !strings.ContainsAny(w, "aeiou") {
			return strings.ToUpper(w)
		}
	}
	r := []rune(w)
	out := string(unicode.ToUpper(r[0]))
	if len(r) > 1 {
		out += strings.ToLower(string(r[1:]))
	}
	return out
}

func isAlpha(w string) bool {
	for _, r := range w {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return w != ""
}

// longestPrefix returns the longest phrase that prefixes lower and is
// followed by a boundary rune or the end of the string.
func longestPrefix(lower string, phrases []string, boundaries string) string {
	best := ""
	for _, p := range phrases {
		if len(p) <= len(best) || !strings.HasPrefix(lower, p) {
			continue
		}
		if len(lower) == len(p) || strings.ContainsRune(boundaries, rune(lower[len(p)])) {
			best = p
		}
	}
	return best
}

var weekNumberPattern = regexp.MustCompile(`week\s*(\d+)`)

// ParseWeek extracts an explicit week number ("jump to week 3"),
// returning 0 when the utterance names none.
func ParseWeek(s string) int {
	m := weekNumberPattern.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// answerPrefixes announce a submission explicitly. A matched prefix is
// a strong enough signal that the remainder is graded even when the
// count does not line up with the quiz.
var answerPrefixes = []string{
	"here are my answers", "my answers are", "my answer is",
	"the answers are", "the answer is", "answers are", "answer is",
	"my answers", "my answer", "answers", "answer", "ans",
}

// numberedMarker splits "1. A 2) B 3: C" style submissions.
var numberedMarker = regexp.MustCompile(`(?:^|\s)\(?(\d+)[.):]\s*`)

// ExtractAnswers parses an utterance into ordered quiz answers. ok is
// true only when the input is structurally answer-shaped: a numbered
// list, a separated list matching the item count, a compact option-
// letter run ("abc"), a lone option letter or number for a single-item
// quiz, or anything behind an explicit answer prefix. Plain prose
// returns ok=false so intent keywords still get a chance.
func ExtractAnswers(raw string, items int) ([]string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, false
	}
	s, hadPrefix := stripAnswerPrefix(s)
	if s == "" {
		return nil, false
	}

	if parts, ok := splitNumbered(s); ok {
		if len(parts) == items || (items <= 1 && len(parts) == 1) {
			return parts, true
		}
		// A numbered list with the wrong count is a malformed submission,
		// not prose. Refusing here keeps the markers out of the looser
		// splitters below; grading reports the count mismatch.
		return nil, false
	}

	if items <= 1 {
		if hadPrefix || isOptionToken(s) {
			return []string{s}, true
		}
		return nil, false
	}

	parts := splitSeparated(s)
	if len(parts) == items {
		return parts, true
	}
	// "a and b" reads as two answers only once the plain split failed,
	// so answers containing "and" survive when the count already fits.
	if joined := splitSeparated(strings.ReplaceAll(s, " and ", ",")); len(joined) == items {
		return joined, true
	}
	if fields := strings.Fields(s); len(fields) == items && allOptionTokens(fields) {
		return fields, true
	}
	if run, ok := letterRun(s, items); ok {
		return run, true
	}
	if hadPrefix && len(parts) > 0 {
		return parts, true
	}
	return nil, false
}

func stripAnswerPrefix(s string) (string, bool) {
	lower := strings.ToLower(s)
	p := longestPrefix(lower, answerPrefixes, " :,-")
	if p == "" {
		return s, false
	}
	rest := strings.TrimLeft(s[len(p):], " :,-")
	return strings.TrimSpace(rest), true
}

func splitNumbered(s string) ([]string, bool) {
	locs := numberedMarker.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return nil, false
	}
	var parts []string
	for i, loc := range locs {
		start := loc[1]
		end := len(s)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if part := strings.Trim(s[start:end], " \t.,;"); part != "" {
			parts = append(parts, part)
		}
	}
	return parts, len(parts) > 0
}

func splitSeparated(s string) []string {
	raw := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	var parts []string
	for _, p := range raw {
		if p = strings.Trim(p, " ."); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// letterRun splits a compact option-letter string: "abc" is three
// answers when three items are pending.
func letterRun(s string, items int) ([]string, bool) {
	compact := strings.ReplaceAll(s, " ", "")
	if utf8.RuneCountInString(compact) != items {
		return nil, false
	}
	var out []string
	for _, r := range compact {
		if lr := unicode.ToLower(r); lr < 'a' || lr > 'e' {
			return nil, false
		}
		out = append(out, string(r))
	}
	return out, true
}

// isOptionToken reports whether s looks like a single quiz answer on
// its own: an option letter a-e or a number.
func isOptionToken(s string) bool {
	if utf8.RuneCountInString(s) == 1 {
		if c := unicode.ToLower(rune(s[0])); c >= 'a' && c <= 'e' {
			return true
		}
	}
	if _, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64); err == nil {
		return true
	}
	return false
}

func allOptionTokens(fields []string) bool {
	for _, f := range fields {
		if !isOptionToken(f) {
			return false
		}
	}
	return true
}
