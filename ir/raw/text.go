package raw

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// DecodeTextString converts a PDF text string (UTF-16BE with BOM, UTF-8 with
// BOM, or PDFDocEncoding) to a Go string. PDFDocEncoding is approximated by
// Latin-1, which matches it for printable characters.
func DecodeTextString(b []byte) string {
	switch {
	case len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF:
		b = b[2:]
		u := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	case len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF:
		return string(b[3:])
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// TextString encodes s as a PDF text string, using UTF-16BE only when s
// contains characters outside Latin-1.
func TextString(s string) StringObj {
	latin := true
	for _, r := range s {
		if r > 0xFF {
			latin = false
			break
		}
	}
	if latin {
		b := make([]byte, 0, len(s))
		for _, r := range s {
			b = append(b, byte(r))
		}
		return StringObj{Bytes: b}
	}
	u := utf16.Encode([]rune(s))
	b := make([]byte, 2, 2+2*len(u))
	b[0], b[1] = 0xFE, 0xFF
	for _, c := range u {
		b = append(b, byte(c>>8), byte(c))
	}
	return StringObj{Bytes: b, Hex: true}
}

// FormatDate renders t in the PDF date format D:YYYYMMDDHHmmSSOHH'mm'.
func FormatDate(t time.Time) string {
	_, offset := t.Zone()
	if offset == 0 {
		return t.Format("D:20060102150405") + "Z"
	}
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%s%c%02d'%02d'", t.Format("D:20060102150405"), sign, offset/3600, (offset%3600)/60)
}

// ParseDate parses a PDF date. Missing trailing fields default to their
// minimum value, as the format allows.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	if len(s) < 4 {
		return time.Time{}, false
	}
	fields := []int{0, 1, 1, 0, 0, 0}
	widths := []int{4, 2, 2, 2, 2, 2}
	pos := 0
	for i, w := range widths {
		if pos+w > len(s) || !isDigits(s[pos:pos+w]) {
			break
		}
		fields[i], _ = strconv.Atoi(s[pos : pos+w])
		pos += w
	}
	loc := time.UTC
	if pos < len(s) && (s[pos] == '+' || s[pos] == '-') {
		rest := strings.NewReplacer("'", "").Replace(s[pos+1:])
		hh, mm := 0, 0
		if len(rest) >= 2 {
			hh, _ = strconv.Atoi(rest[:2])
		}
		if len(rest) >= 4 {
			mm, _ = strconv.Atoi(rest[2:4])
		}
		off := hh*3600 + mm*60
		if s[pos] == '-' {
			off = -off
		}
		loc = time.FixedZone("", off)
	}
	return time.Date(fields[0], time.Month(fields[1]), fields[2], fields[3], fields[4], fields[5], 0, loc), true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
