// Package detect scans agent output for the completion and abort sentinels.
package detect

import (
	"regexp"
	"strings"
)

// PromiseOpen and PromiseClose are the fixed delimiters the agent must wrap
// its completion promise in. Unwrapped mentions of the promise never count:
// the agent talking about the promise is not the agent making it.
const (
	PromiseOpen  = "<promise>"
	PromiseClose = "</promise>"
)

// BlockedToken is the fixed abort sentinel. Wrapped in the promise delimiters
// it terminates the loop immediately, without review, regardless of the
// configured promise. Not configurable.
const BlockedToken = "LOOP STUCK"

// Result is the outcome of scanning one turn's output.
type Result int

const (
	// None means no sentinel found; the loop keeps iterating.
	None Result = iota
	// Complete means the configured promise was emitted.
	Complete
	// Blocked means the agent signaled it is stuck and wants out.
	Blocked
)

// String implements fmt.Stringer for logging.
func (r Result) String() string {
	switch r {
	case Complete:
		return "complete"
	case Blocked:
		return "blocked"
	default:
		return "none"
	}
}

// promisePattern captures the token between the delimiters, tolerating
// surrounding whitespace and any casing of the delimiters themselves.
var promisePattern = regexp.MustCompile(`(?is)` + regexp.QuoteMeta(PromiseOpen) + `\s*(.*?)\s*` + regexp.QuoteMeta(PromiseClose))

// Scan inspects text for the delimiter-wrapped sentinels. The promise match
// is case-insensitive and whitespace-tolerant. Blocked takes priority over
// Complete if both somehow appear. Empty text yields None.
func Scan(text, promise string) Result {
	if text == "" {
		return None
	}

	matches := promisePattern.FindAllStringSubmatch(text, -1)
	if matches == nil {
		return None
	}

	result := None
	for _, m := range matches {
		token := strings.TrimSpace(m[1])
		if strings.EqualFold(token, BlockedToken) {
			return Blocked
		}
		if promise != "" && strings.EqualFold(token, strings.TrimSpace(promise)) {
			result = Complete
		}
	}
	return result
}
