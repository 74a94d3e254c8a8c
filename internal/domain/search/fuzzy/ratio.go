package fuzzy

import (
	"math"
	"slices"
	"strings"
)

const (
	unbaseScale         = 0.95
	partialScale        = 0.90
	longPartialScale    = 0.60
	partialMinLenRatio  = 1.5
	longPartialLenRatio = 8.0
)

// Ratio returns the normalised insert/delete edit-distance similarity of a and b.
// Inputs are expected to be pre-processed (see Process).
func Ratio(a, b string) int {
	return intr(100 * ratio([]rune(a), []rune(b)))
}

// PartialRatio scores the best alignment of the shorter string against every
// equally long window of the longer one.
func PartialRatio(a, b string) int {
	return intr(100 * partialRatio([]rune(a), []rune(b)))
}

// TokenSortRatio compares a and b after sorting their whitespace-separated tokens.
func TokenSortRatio(a, b string) int {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

// PartialTokenSortRatio is TokenSortRatio with partial alignment.
func PartialTokenSortRatio(a, b string) int {
	return PartialRatio(sortedTokens(a), sortedTokens(b))
}

// TokenSetRatio compares the shared token set against each side's remainder,
// so extra words on one side cost little.
func TokenSetRatio(a, b string) int {
	return tokenSet(a, b, Ratio)
}

// PartialTokenSetRatio is TokenSetRatio with partial alignment.
func PartialTokenSetRatio(a, b string) int {
	return tokenSet(a, b, PartialRatio)
}

// WRatio is the weighted combination used for ranking. Partial variants only
// apply when one string is at least 1.5x longer than the other.
func WRatio(a, b string) int {
	la, lb := runeLen(a), runeLen(b)
	if la == 0 || lb == 0 {
		return 0
	}

	base := float64(Ratio(a, b))
	lenRatio := float64(max(la, lb)) / float64(min(la, lb))

	if lenRatio < partialMinLenRatio {
		tsor := float64(TokenSortRatio(a, b)) * unbaseScale
		tser := float64(TokenSetRatio(a, b)) * unbaseScale
		return intr(max(base, tsor, tser))
	}

	scale := partialScale
	if lenRatio > longPartialLenRatio {
		scale = longPartialScale
	}
	partial := float64(PartialRatio(a, b)) * scale
	ptsor := float64(PartialTokenSortRatio(a, b)) * unbaseScale * scale
	ptser := float64(PartialTokenSetRatio(a, b)) * unbaseScale * scale
	return intr(max(base, partial, ptsor, ptser))
}

// Score processes both strings and returns their WRatio.
func Score(query, choice string) int {
	return WRatio(Process(query), Process(choice))
}

func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return float64(total-indelDistance(a, b)) / float64(total)
}

func partialRatio(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	best := 0.0
	for start := 0; start+len(shorter) <= len(longer); start++ {
		r := ratio(shorter, longer[start:start+len(shorter)])
		if r > 0.995 {
			return 1
		}
		if r > best {
			best = r
		}
	}
	return best
}

// indelDistance is the Levenshtein distance with substitutions costing 2
// (one delete plus one insert), computed with two rolling rows.
func indelDistance(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			curr[j] = 1 + min(prev[j], curr[j-1], prev[j-1]+1)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func tokenSet(a, b string, score func(string, string) int) int {
	ta, tb := tokenSetOf(a), tokenSetOf(b)

	var inter, diffAB, diffBA []string
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter = append(inter, t)
		} else {
			diffAB = append(diffAB, t)
		}
	}
	for t := range tb {
		if _, ok := ta[t]; !ok {
			diffBA = append(diffBA, t)
		}
	}
	slices.Sort(inter)
	slices.Sort(diffAB)
	slices.Sort(diffBA)

	sect := strings.Join(inter, " ")
	combinedAB := strings.TrimSpace(sect + " " + strings.Join(diffAB, " "))
	combinedBA := strings.TrimSpace(sect + " " + strings.Join(diffBA, " "))

	return max(
		score(sect, combinedAB),
		score(sect, combinedBA),
		score(combinedAB, combinedBA),
	)
}

func tokenSetOf(s string) map[string]struct{} {
	fields := strings.Fields(s)
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

func sortedTokens(s string) string {
	fields := strings.Fields(s)
	slices.Sort(fields)
	return strings.Join(fields, " ")
}

func runeLen(s string) int {
	return len([]rune(s))
}

// intr rounds half to even, matching the reference scorer.
func intr(x float64) int {
	return int(math.RoundToEven(x))
}
