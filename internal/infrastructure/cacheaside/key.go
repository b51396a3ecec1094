package cacheaside

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// KeySeparator defines the delimiter used between cache key segments.
	KeySeparator = ":"
	// maxSegmentLen caps a single key segment; longer ones are replaced by a digest.
	maxSegmentLen = 64
)

var segmentEscaper = strings.NewReplacer("%", "%25", KeySeparator, "%3A", ",", "%2C")

// Query identifies one logical read: a category plus its identifying
// arguments in the category's canonical order.
type Query struct {
	Category Category `json:"category" validate:"required"`
	Args     []string `json:"args"`
}

// Key returns the deterministic cache key for q.
func (q Query) Key() string {
	return BuildKey(q.Category, q.Args...)
}

// BuildKey concatenates category and args in the given order. Segments are
// escaped so that separators inside an argument cannot collide with another
// split. Segments longer than 64 bytes are replaced by their xxhash digest.
func BuildKey(category Category, args ...string) string {
	var b strings.Builder
	b.WriteString(string(category))
	for _, a := range args {
		b.WriteString(KeySeparator)
		b.WriteString(canonicalSegment(a))
	}
	return b.String()
}

func canonicalSegment(s string) string {
	if len(s) > maxSegmentLen {
		return "h" + strconv.FormatUint(xxhash.Sum64String(s), 16)
	}
	return segmentEscaper.Replace(s)
}

// SetArg renders a collection of identifiers as a single argument. The set is
// de-duplicated and sorted so permutations map to the same key.
func SetArg(ids []string) string {
	cp := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		cp = append(cp, segmentEscaper.Replace(id))
	}
	sort.Strings(cp)
	return strings.Join(cp, ",")
}

// ParseSetArg reverses SetArg.
func ParseSetArg(arg string) []string {
	if arg == "" {
		return nil
	}
	parts := strings.Split(arg, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, unescapeSegment(p))
	}
	return out
}

// TextArg normalizes free text (case and whitespace) so equivalent search
// phrases share a key.
func TextArg(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// IntArg renders an integer argument.
func IntArg(n int) string { return strconv.Itoa(n) }

func unescapeSegment(s string) string {
	return strings.NewReplacer("%2C", ",", "%3A", KeySeparator, "%25", "%").Replace(s)
}
