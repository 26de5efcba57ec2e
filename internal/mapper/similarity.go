package mapper

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// similarity blends four signals over normalized names. The weights favor
// edit distance, which behaves best on the short tokens headers tend to be;
// the n-gram term catches reordered compound names like datum_faktura vs
// faktura_datum.
func similarity(source, target string) float64 {
	if source == "" || target == "" {
		return 0
	}
	if source == target {
		return 1
	}

	lev := levenshteinSimilarity(source, target)
	jaro := jaroWinkler(source, target)
	substr := substringScore(source, target)
	ngram := bigramDice(source, target)

	score := 0.35*lev + 0.25*jaro + 0.20*substr + 0.20*ngram

	// Subsequence matches (fuzzy in the editor-completion sense) nudge the
	// score up but never decide on their own.
	if fuzzy.Match(target, source) || fuzzy.Match(source, target) {
		score += 0.05
	}

	// Very short tokens produce unstable ratios; demand near-exactness.
	if len(source) < 4 || len(target) < 4 {
		score *= 0.8
	}

	if score > 1 {
		score = 1
	}
	return score
}

func levenshteinSimilarity(a, b string) float64 {
	distance := levenshtein.ComputeDistance(a, b)
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(distance)/float64(longest)
}

func substringScore(a, b string) float64 {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(longer, shorter) {
		return float64(len(shorter)) / float64(len(longer))
	}
	return 0
}

func bigramDice(a, b string) float64 {
	aGrams := bigrams(a)
	bGrams := bigrams(b)
	if len(aGrams) == 0 || len(bGrams) == 0 {
		return 0
	}
	shared := 0
	for gram := range aGrams {
		if _, ok := bGrams[gram]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(aGrams)+len(bGrams))
}

func bigrams(s string) map[string]struct{} {
	runes := []rune(s)
	grams := make(map[string]struct{})
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])] = struct{}{}
	}
	return grams
}

func jaroWinkler(a, b string) float64 {
	j := jaro(a, b)
	if j == 0 {
		return 0
	}
	prefix := 0
	for i := 0; i < len(a) && i < len(b) && i < 4; i++ {
		if a[i] != b[i] {
			break
		}
		prefix++
	}
	return j + float64(prefix)*0.1*(1-j)
}

func jaro(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 || lb == 0 {
		return 0
	}

	window := la
	if lb > window {
		window = lb
	}
	window = window/2 - 1
	if window < 0 {
		window = 0
	}

	aMatched := make([]bool, la)
	bMatched := make([]bool, lb)
	matches := 0
	for i := 0; i < la; i++ {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window + 1
		if hi > lb {
			hi = lb
		}
		for j := lo; j < hi; j++ {
			if bMatched[j] || ra[i] != rb[j] {
				continue
			}
			aMatched[i] = true
			bMatched[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	j := 0
	for i := 0; i < la; i++ {
		if !aMatched[i] {
			continue
		}
		for !bMatched[j] {
			j++
		}
		if ra[i] != rb[j] {
			transpositions++
		}
		j++
	}

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions)/2)/m) / 3
}
