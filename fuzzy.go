package zonalstats

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// TokenSortRatio scores the similarity of a and b from 0 to 100. Both are
// lower-cased, split into alphanumeric tokens and the tokens sorted, so
// word order does not matter. The sorted renderings are compared by
// 2*M/T, where M is the length of their longest common subsequence and T
// their combined length; ties round half to even.
func TokenSortRatio(a, b string) int {
	sa, sb := []rune(sortedTokens(a)), []rune(sortedTokens(b))
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	m := commonSubsequence(sa, sb)
	return int(math.RoundToEven(200 * float64(m) / float64(len(sa)+len(sb))))
}

// commonSubsequence returns the length of the longest common subsequence
// of a and b.
func commonSubsequence(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for _, x := range a {
		for j, y := range b {
			switch {
			case x == y:
				cur[j+1] = prev[j] + 1
			case prev[j+1] >= cur[j]:
				cur[j+1] = prev[j+1]
			default:
				cur[j+1] = cur[j]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func sortedTokens(s string) string {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
