package kafkax

import "strings"

// SplitBrokers turns a comma-separated broker list into a slice,
// dropping empty entries.
func SplitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
