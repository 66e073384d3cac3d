package bastion

import "strings"

// shellQuote quotes a path for safe use in remote shell commands. Paths
// starting with ~/ preserve tilde expansion while quoting the rest.
func shellQuote(path string) string {
	if strings.HasPrefix(path, "~/") {
		return "~/" + singleQuote(path[2:])
	}
	return singleQuote(path)
}

// singleQuote wraps a string in single quotes, escaping any embedded
// single quotes.
func singleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}
