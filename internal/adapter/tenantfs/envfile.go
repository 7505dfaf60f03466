package tenantfs

import (
	"bufio"
	"io"
	"strings"
)

// line is one line of a tenant file. Key is empty for blank lines, comments
// and anything that is not a KEY=value assignment.
type line struct {
	raw   string
	key   string
	value string
}

// readLines splits a tenant file into lines, recognising KEY=value pairs.
// Values are taken literally apart from surrounding whitespace and one pair of
// matching single or double quotes; no variable expansion is performed, so
// passwords containing '$' survive intact.
func readLines(r io.Reader) ([]line, error) {
	var out []line
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		raw := sc.Text()
		l := line{raw: raw}
		l.key, l.value = parseAssignment(raw)
		out = append(out, l)
	}
	return out, sc.Err()
}

func parseAssignment(raw string) (key, value string) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "#") {
		return "", ""
	}
	s = strings.TrimPrefix(s, "export ")

	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return "", ""
	}
	k = strings.TrimSpace(k)
	if k == "" || strings.ContainsAny(k, " \t") {
		return "", ""
	}
	return k, unquote(strings.TrimSpace(v))
}

func unquote(v string) string {
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if first == last && (first == '"' || first == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// values folds lines into a key/value map; later assignments win.
func values(lines []line) map[string]string {
	out := make(map[string]string, len(lines))
	for _, l := range lines {
		if l.key != "" {
			out[l.key] = l.value
		}
	}
	return out
}

// firstOf returns the first non-empty value among keys, in order.
func firstOf(vals map[string]string, keys ...string) (string, bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(vals[k]); v != "" {
			return v, true
		}
	}
	return "", false
}
