// Package search provides a best-effort keyword lookup over an embedded
// curriculum-standards reference set. Agents use it to anchor plans and
// quizzes to named standards; a miss returns no results, never an error.
package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Standard is one curriculum reference entry.
type Standard struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Match pairs a standard with its relevance to a query.
type Match struct {
	Standard
	Score float64 `json:"score"`
}

// Index is the in-memory standards index. The zero value is empty;
// NewIndex loads the embedded reference set.
type Index struct {
	standards []Standard
}

// NewIndex returns an index over the embedded standards set.
func NewIndex() *Index {
	return &Index{standards: embeddedStandards}
}

// NewIndexWith builds an index over a custom standards set.
func NewIndexWith(standards []Standard) *Index {
	return &Index{standards: standards}
}

// Lookup scores every standard against the query and returns matches in
// descending score order, at most limit (0 = all). An exact ID match
// short-circuits with the single result.
func (ix *Index) Lookup(query string, limit int) []Match {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	for _, s := range ix.standards {
		if q == strings.ToLower(s.ID) {
			return []Match{{Standard: s, Score: 1}}
		}
	}

	tokens := strings.Fields(q)
	var out []Match
	for _, s := range ix.standards {
		if score := scoreStandard(s, tokens); score > 0 {
			out = append(out, Match{Standard: s, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// scoreStandard rates one standard against query tokens: substring hits
// count double, fuzzy word hits (typo tolerance) count single, and the
// total is normalized by the token count.
func scoreStandard(s Standard, tokens []string) float64 {
	text := strings.ToLower(s.Text)
	words := strings.Fields(text)

	var hits float64
	for _, tok := range tokens {
		switch {
		case strings.Contains(text, tok):
			hits += 2
		case len(tok) > 3 && fuzzyWordHit(tok, words):
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return hits / float64(2*len(tokens))
}

// fuzzyWordHit tolerates typos two ways: dropped letters via subsequence
// matching, transpositions via edit distance on words of similar length.
func fuzzyWordHit(tok string, words []string) bool {
	if len(fuzzy.Find(tok, words)) > 0 {
		return true
	}
	for _, w := range words {
		if len(w) < 4 {
			continue
		}
		d := fuzzy.LevenshteinDistance(tok, w)
		longest := max(len(tok), len(w))
		if 1-float64(d)/float64(longest) >= 0.75 {
			return true
		}
	}
	return false
}

// embeddedStandards is a compact reference set spanning the topics the
// coach most commonly plans for. IDs follow the source curricula.
var embeddedStandards = []Standard{
	{ID: "CCSS.5.NF.A.1", Text: "Add and subtract fractions with unlike denominators"},
	{ID: "CCSS.4.NF.A.1", Text: "Understand a fraction 1/b as the quantity formed by 1 part when a whole is partitioned into b equal parts"},
	{ID: "MATH.FRACTIONS.1", Text: "Simplify fractions"},
	{ID: "CCSS.6.RP.A.3", Text: "Use ratio and rate reasoning to solve real-world problems"},
	{ID: "CCSS.6.EE.B.7", Text: "Solve real-world problems by writing and solving one-variable equations"},
	{ID: "CCSS.7.NS.A.2", Text: "Multiply and divide rational numbers including negative fractions"},
	{ID: "CCSS.8.EE.C.8", Text: "Analyze and solve pairs of simultaneous linear equations"},
	{ID: "CCSS.8.F.A.3", Text: "Interpret the equation y = mx + b as defining a linear function"},
	{ID: "CCSS.HSA.APR.B.3", Text: "Identify zeros of polynomials and use them to construct a rough graph"},
	{ID: "CCSS.HSF.TF.A.2", Text: "Explain how the unit circle extends trigonometric functions to all real numbers"},
	{ID: "CCSS.HSS.ID.B.6", Text: "Represent data on two quantitative variables and describe how the variables are related"},
	{ID: "MATH.ALGEBRA.1", Text: "Solve linear equations and inequalities in one variable"},
	{ID: "MATH.ALGEBRA.2", Text: "Factor quadratic expressions and solve quadratic equations"},
	{ID: "MATH.GEOMETRY.1", Text: "Apply the Pythagorean theorem to find side lengths in right triangles"},
	{ID: "MATH.CALCULUS.1", Text: "Compute derivatives of polynomial and rational functions using differentiation rules"},
	{ID: "MATH.CALCULUS.2", Text: "Evaluate definite integrals and relate them to the area under a curve"},
	{ID: "MATH.STATS.1", Text: "Summarize data with measures of center and spread"},
	{ID: "MATH.STATS.2", Text: "Compute probabilities of compound events using the addition and multiplication rules"},
	{ID: "CS.PROG.1", Text: "Decompose problems into functions and express solutions as algorithms"},
	{ID: "CS.PROG.2", Text: "Select and use appropriate data structures such as lists, maps and trees"},
	{ID: "LANG.GRAMMAR.1", Text: "Apply conventions of grammar and usage when writing and speaking"},
	{ID: "SCI.PHYS.1", Text: "Use Newton's laws of motion to predict the behavior of objects"},
}
