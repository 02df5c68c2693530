package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {}, "all": {},
	"any": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {}, "our": {}, "out": {},
	"has": {}, "have": {}, "from": {}, "with": {}, "this": {}, "that": {}, "they": {}, "them": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "how": {}, "into": {},
	"its": {}, "their": {}, "there": {}, "these": {}, "those": {}, "will": {}, "would": {},
	"could": {}, "should": {}, "must": {}, "may": {}, "might": {}, "about": {}, "does": {},
	"did": {}, "been": {}, "being": {}, "were": {}, "than": {}, "then": {}, "also": {}, "such": {},
	"each": {}, "other": {}, "some": {}, "more": {}, "most": {}, "very": {}, "over": {},
	"under": {}, "between": {}, "only": {}, "same": {}, "both": {}, "your": {}, "his": {},
	"she": {}, "him": {}, "per": {}, "via": {}, "is_not": {}, "must_not": {}, "should_not": {},
	"cannot": {}, "do_not": {}, "always": {}, "never": {},
}

// negations collapses multi-word negated modals into single tokens so that
// "must" and "must not" compare as different terms.
var negations = []struct {
	re *regexp.Regexp
	to string
}{
	{regexp.MustCompile(`\bmust\s+not\b|\bmustn't\b`), "must_not"},
	{regexp.MustCompile(`\bshould\s+not\b|\bshouldn't\b`), "should_not"},
	{regexp.MustCompile(`\bcan\s+not\b|\bcan't\b`), "cannot"},
	{regexp.MustCompile(`\bdo\s+not\b|\bdon't\b`), "do_not"},
	{regexp.MustCompile(`\bis\s+not\b|\bisn't\b`), "is_not"},
	{regexp.MustCompile(`\bnon-compliant\b`), "noncompliant"},
}

// antonyms are the paired keywords used to detect contradictory beliefs.
var antonyms = [][2]string{
	{"must", "should_not"},
	{"must", "must_not"},
	{"should", "should_not"},
	{"required", "optional"},
	{"always", "never"},
	{"allowed", "prohibited"},
	{"allowed", "forbidden"},
	{"permitted", "prohibited"},
	{"can", "cannot"},
	{"increase", "decrease"},
	{"safe", "unsafe"},
	{"compliant", "noncompliant"},
	{"valid", "invalid"},
	{"true", "false"},
	{"approve", "reject"},
}

// Tokens lowercases s, collapses negations and splits on anything that is not
// a letter, digit or underscore.
func Tokens(s string) []string {
	s = strings.ToLower(s)
	for _, n := range negations {
		s = n.re.ReplaceAllString(s, n.to)
	}
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// Keywords returns distinct content tokens of s in first-seen order.
func Keywords(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range Tokens(s) {
		if len(t) < 3 {
			continue
		}
		if _, stop := stopwords[t]; stop {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Jaccard similarity of two keyword sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, y := range b {
		if _, dup := seen[y]; dup {
			continue
		}
		seen[y] = struct{}{}
		if _, ok := set[y]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// ContentOverlap is the Jaccard similarity of the keywords of a and b.
func ContentOverlap(a, b string) float64 {
	return Jaccard(Keywords(a), Keywords(b))
}

// SharesTopic reports whether a and b have at least one keyword in common.
func SharesTopic(a, b string) bool {
	kb := make(map[string]struct{})
	for _, k := range Keywords(b) {
		kb[k] = struct{}{}
	}
	for _, k := range Keywords(a) {
		if _, ok := kb[k]; ok {
			return true
		}
	}
	return false
}

// Contradicts reports whether a and b talk about the same topic using an
// antonym pair, e.g. "must" against "should not".
func Contradicts(a, b string) bool {
	if !SharesTopic(a, b) {
		return false
	}
	ta := tokenSet(a)
	tb := tokenSet(b)
	for _, p := range antonyms {
		_, a0 := ta[p[0]]
		_, a1 := ta[p[1]]
		_, b0 := tb[p[0]]
		_, b1 := tb[p[1]]
		if (a0 && !a1 && b1 && !b0) || (a1 && !a0 && b0 && !b1) {
			return true
		}
	}
	return false
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokens(s) {
		set[t] = struct{}{}
	}
	return set
}

// AnchorKey is the stable content hash used as a memory anchor.
func AnchorKey(kind, content string) string {
	norm := strings.Join(Keywords(content), " ")
	sum := sha256.Sum256([]byte(kind + ":" + norm))
	return hex.EncodeToString(sum[:16])
}

// Fingerprint is a hashed bag-of-words vector of length dims, L2-normalized.
// It lets anchors be compared by content without an embedding model.
func Fingerprint(content string, dims int) []float32 {
	if dims <= 0 {
		dims = 64
	}
	vec := make([]float64, dims)
	for _, k := range Keywords(content) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(k))
		sum := h.Sum32()
		idx := int(sum % uint32(dims))
		sign := 1.0
		if sum&(1<<31) != 0 {
			sign = -1.0
		}
		vec[idx] += sign
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, dims)
	for i, v := range vec {
		if norm > 0 {
			out[i] = float32(v / norm)
		}
	}
	return out
}
