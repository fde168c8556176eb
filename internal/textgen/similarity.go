package textgen

// similarityThreshold is the ratio above which two captions count as
// duplicates of each other.
const similarityThreshold = 0.8

// Similarity scores how alike two strings are as the length of their longest
// common subsequence over the length of the shorter string. Trivial
// punctuation variants of the same caption score 1.0.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		if a == b {
			return 1
		}
		return 0
	}

	shorter := len(a)
	if len(b) < shorter {
		shorter = len(b)
	}
	return float64(lcsLength(a, b)) / float64(shorter)
}

// lcsLength computes longest common subsequence length over bytes with a
// two-row table.
func lcsLength(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// dedupeCaptions drops captions too similar to an earlier survivor. Order is
// preserved and earlier captions always win.
func dedupeCaptions(captions []string) []string {
	var kept []string
	for _, c := range captions {
		dup := false
		for _, k := range kept {
			if Similarity(c, k) >= similarityThreshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	return kept
}
