package batch

import "strings"

// Assemble joins results in segment order. Batched output terminates every
// result with a newline; a single unbatched result is returned verbatim.
func Assemble(results []string, batched bool) string {
	if !batched {
		return strings.Join(results, "")
	}
	var b strings.Builder
	for _, r := range results {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	return b.String()
}
