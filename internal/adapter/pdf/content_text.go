package pdf

import (
	"strings"
	"unicode"
)

// decodeContentText recovers readable text from a raw PDF content stream by
// collecting the string literals fed to the text-showing operators. It is a
// heuristic: PDFs using custom encodings or CID fonts may decode poorly,
// which degrades to a page with little or no text, not an error.
func decodeContentText(content string) string {
	var out strings.Builder
	var literal strings.Builder
	depth := 0
	escaped := false

	flush := func() {
		text := literal.String()
		literal.Reset()
		if strings.TrimSpace(text) == "" {
			return
		}
		if out.Len() > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(text)
	}

	for i := 0; i < len(content); i++ {
		c := content[i]
		if depth == 0 {
			if c == '(' {
				depth = 1
			}
			continue
		}

		if escaped {
			switch c {
			case 'n':
				literal.WriteByte('\n')
			case 't':
				literal.WriteByte('\t')
			case 'r', 'f', 'b':
				literal.WriteByte(' ')
			case '(', ')', '\\':
				literal.WriteByte(c)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				// Octal escape, up to three digits.
				val := int(c - '0')
				for n := 0; n < 2 && i+1 < len(content); n++ {
					next := content[i+1]
					if next < '0' || next > '7' {
						break
					}
					val = val*8 + int(next-'0')
					i++
				}
				if val >= 32 && val < 127 {
					literal.WriteByte(byte(val))
				} else {
					literal.WriteByte(' ')
				}
			}
			escaped = false
			continue
		}

		switch c {
		case '\\':
			escaped = true
		case '(':
			depth++
			literal.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				flush()
			} else {
				literal.WriteByte(c)
			}
		default:
			literal.WriteByte(c)
		}
	}

	return normalizeSpace(out.String())
}

func normalizeSpace(s string) string {
	var out strings.Builder
	lastSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace && out.Len() > 0 {
				out.WriteByte(' ')
			}
			lastSpace = true
			continue
		}
		out.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(out.String())
}
