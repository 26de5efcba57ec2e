package parser

import (
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeReader wraps the file reader with a decoder for the encoding the
// analyzer detected, so everything downstream sees UTF-8.
func decodeReader(r io.Reader, encoding string) io.Reader {
	switch encoding {
	case "UTF-16":
		return transform.NewReader(r, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder())
	case "Windows-1252", "ISO-8859-1":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder())
	}
	return transform.NewReader(r, unicode.UTF8BOM.NewDecoder())
}

// cleanValue performs the lossless textual cleanup applied to every cell:
// BOM strip, line-ending normalization, trim, whitespace collapse. The raw
// value is preserved separately and never touched.
func cleanValue(value string) string {
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ReplaceAll(value, "\r\n", "\n")
	value = strings.ReplaceAll(value, "\r", "\n")
	value = strings.TrimSpace(value)
	return collapseWhitespace(value)
}

func collapseWhitespace(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	lastSpace := false
	for _, r := range value {
		if r == ' ' || r == '\t' {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func cleanRow(record []string) []string {
	out := make([]string, len(record))
	for i, cell := range record {
		out[i] = cleanValue(cell)
	}
	return out
}
