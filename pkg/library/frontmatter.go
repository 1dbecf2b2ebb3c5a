package library

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// parsedFrontmatter is the result of splitting a document into its
// frontmatter map and body text.
type parsedFrontmatter struct {
	Fields map[string]interface{}
	Body   string
}

// parseFrontmatter extracts the `---`-delimited frontmatter block from
// raw, a document in its original (pre-normalisation) bytes. Line endings
// are normalised to LF only for the parse pass; the body returned is a
// slice of the original raw text (CRLF preserved) so downstream consumers
// see exact bytes.
//
// It first tries a YAML parse of the frontmatter block; if that fails it
// falls back to a line-scanner supporting `key: value` pairs and block
// scalars (|, >, |-, >-).
func parseFrontmatter(raw string) parsedFrontmatter {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")

	if !strings.HasPrefix(normalized, "---\n") && normalized != "---" {
		return parsedFrontmatter{Fields: map[string]interface{}{}, Body: raw}
	}

	rest := normalized[len("---"):]
	rest = strings.TrimPrefix(rest, "\n")
	closeIdx := findFrontmatterClose(rest)
	if closeIdx < 0 {
		return parsedFrontmatter{Fields: map[string]interface{}{}, Body: raw}
	}

	block := rest[:closeIdx]
	normalizedBodyStart := len("---\n") + closeIdx + len("---")
	// Skip a single newline after the closing marker, in the normalized
	// text, then map that offset back onto raw by byte-counting from the
	// start (CRLF only ever adds bytes, never removes them, so counting
	// consumed normalized runes against raw's "\r\n"-aware cursor is
	// exact for the ASCII delimiters we scan over).
	body := bodyAfterOffset(raw, normalizedBodyStart)

	fields, ok := parseYAMLBlock(block)
	if !ok {
		fields = parseLineScanner(block)
	}
	return parsedFrontmatter{Fields: fields, Body: body}
}

// findFrontmatterClose returns the index, within rest, of the first
// "\n---" (or leading "---") that closes the frontmatter block, or -1.
func findFrontmatterClose(rest string) int {
	if strings.HasPrefix(rest, "---") {
		return 0
	}
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return -1
	}
	return idx + 1
}

// bodyAfterOffset maps a byte offset computed against the CRLF-normalized
// text back onto the original raw text, by walking raw and counting one
// normalized byte per raw byte except for the "\r" half of any "\r\n"
// pair, which collapses away during normalization.
func bodyAfterOffset(raw string, normalizedOffset int) string {
	normCount := 0
	i := 0
	for i < len(raw) && normCount < normalizedOffset {
		if raw[i] == '\r' && i+1 < len(raw) && raw[i+1] == '\n' {
			i++
			continue
		}
		i++
		normCount++
	}
	body := raw[i:]
	body = strings.TrimPrefix(body, "\r\n")
	return strings.TrimPrefix(body, "\n")
}

func parseYAMLBlock(block string) (map[string]interface{}, bool) {
	var out map[string]interface{}
	if err := yaml.Unmarshal([]byte(block), &out); err != nil {
		return nil, false
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, true
}

// parseLineScanner is the fallback frontmatter parser: it handles plain
// `key: value` lines and block scalars (|, >, |-, >-) by indentation,
// without requiring the block to be valid YAML.
func parseLineScanner(block string) map[string]interface{} {
	out := map[string]interface{}{}
	lines := strings.Split(block, "\n")

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}
		key := strings.TrimSpace(line[:colon])
		rawValue := strings.TrimSpace(line[colon+1:])

		if rawValue == "|" || rawValue == ">" || rawValue == "|-" || rawValue == ">-" {
			fold := strings.HasPrefix(rawValue, ">")
			chomp := strings.HasSuffix(rawValue, "-")
			var scalarLines []string
			baseIndent := -1
			j := i + 1
			for ; j < len(lines); j++ {
				l := lines[j]
				if strings.TrimSpace(l) == "" {
					scalarLines = append(scalarLines, "")
					continue
				}
				indent := len(l) - len(strings.TrimLeft(l, " "))
				if baseIndent == -1 {
					baseIndent = indent
				}
				if indent < baseIndent {
					break
				}
				scalarLines = append(scalarLines, l[baseIndent:])
			}
			i = j - 1

			for len(scalarLines) > 0 && scalarLines[len(scalarLines)-1] == "" {
				if chomp {
					scalarLines = scalarLines[:len(scalarLines)-1]
					continue
				}
				break
			}

			sep := "\n"
			if fold {
				sep = " "
			}
			out[key] = strings.Join(scalarLines, sep)
			continue
		}

		out[key] = unquoteScalar(rawValue)
	}

	return out
}

func unquoteScalar(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return strings.ReplaceAll(v[1:len(v)-1], `\"`, `"`)
	}
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return v[1 : len(v)-1]
	}
	return v
}

func stringField(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
