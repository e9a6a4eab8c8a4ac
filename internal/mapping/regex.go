package mapping

import "regexp"

// compileRegex compiles pattern case-insensitively, matching the Python
// parser's re.IGNORECASE. An empty pattern compiles to nil, matching the
// "row pattern omitted" fallback-only case.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile("(?i)" + pattern)
}
