package failure

import (
	"fmt"
	"strings"
)

// hashPlaceholder stands in for any canonical field the context did not
// supply, so partial contexts still hash deterministically.
const hashPlaceholder = "-"

// errMessagePrefixLen bounds how much of the error message participates in
// the hash. Long messages often embed timestamps or ids that would defeat
// deduplication.
const errMessagePrefixLen = 100

// ScenarioHash computes the stable dedup digest over the canonical failure
// fields. Retries of the same broken step collapse to one hash; collisions
// across genuinely distinct failures are an accepted tradeoff of the small
// field set.
func ScenarioHash(ctx *FailureContext) string {
	fields := []string{
		orPlaceholder(string(ctx.FailureType)),
		orPlaceholder(formatID(ctx.SiteID)),
		orPlaceholder(truncate(ctx.ErrorMessage, errMessagePrefixLen)),
		orPlaceholder(ctx.FailedSelector),
		orPlaceholder(ctx.FailedAction),
		orPlaceholder(stripQuery(ctx.PageURL)),
		orPlaceholder(formatStep(ctx.StepNumber)),
	}
	input := strings.Join(fields, "|")
	var h uint64 = 14695981039346656037
	for i := 0; i < len(input); i++ {
		h ^= uint64(input[i])
		h *= 1099511628211
	}
	return fmt.Sprintf("%016x", h)
}

func orPlaceholder(s string) string {
	if s == "" {
		return hashPlaceholder
	}
	return s
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return fmt.Sprintf("%d", id)
}

func formatStep(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// stripQuery removes the query string and fragment so pagination tokens and
// tracking params do not split one scenario into many.
func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}
