package extractor

import (
	"bufio"
	"bytes"
	"sort"
	"strings"
	"unicode/utf16"
)

// toUnicodeMap maps character codes of varying length to Unicode text.
type toUnicodeMap struct {
	entries map[string]string
	lengths []int // code lengths, longest first
}

const maxBFRange = 0x10000

func parseToUnicodeCMap(data []byte) *toUnicodeMap {
	lines := bufio.NewScanner(bytes.NewReader(data))
	lines.Buffer(make([]byte, 64*1024), 1<<20)
	m := &toUnicodeMap{entries: make(map[string]string)}
	lengthSet := make(map[int]bool)
	state := ""
	for lines.Scan() {
		line := strings.TrimSpace(lines.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		switch {
		case strings.HasSuffix(line, "begincodespacerange"):
			state = "codespace"
			continue
		case strings.HasSuffix(line, "beginbfchar"):
			state = "bfchar"
			continue
		case strings.HasSuffix(line, "beginbfrange"):
			state = "bfrange"
			continue
		case strings.HasPrefix(line, "end"):
			state = ""
			continue
		}
		hexes := hexTokens(line)
		switch state {
		case "codespace":
			if len(hexes) >= 1 {
				if b := hexToBytes(hexes[0]); len(b) > 0 {
					lengthSet[len(b)] = true
				}
			}
		case "bfchar":
			for i := 0; i+1 < len(hexes); i += 2 {
				if src := hexToBytes(hexes[i]); len(src) > 0 {
					m.entries[string(src)] = decodeUTF16BE(hexToBytes(hexes[i+1]))
				}
			}
		case "bfrange":
			if strings.Contains(line, "[") && !strings.Contains(line, "]") {
				for lines.Scan() {
					next := strings.TrimSpace(lines.Text())
					line += " " + next
					if strings.Contains(next, "]") {
						break
					}
				}
				hexes = hexTokens(line)
			}
			if len(hexes) < 3 {
				continue
			}
			lo, hi := hexToBytes(hexes[0]), hexToBytes(hexes[1])
			start, end := bytesToInt(lo), bytesToInt(hi)
			if end < start || end-start > maxBFRange {
				continue
			}
			if strings.Contains(line, "[") {
				for i := 0; i <= end-start && 2+i < len(hexes); i++ {
					m.entries[string(intToBytes(start+i, len(lo)))] = decodeUTF16BE(hexToBytes(hexes[2+i]))
				}
				continue
			}
			dst := hexToBytes(hexes[2])
			base := bytesToInt(dst)
			for i := 0; i <= end-start; i++ {
				m.entries[string(intToBytes(start+i, len(lo)))] = decodeUTF16BE(intToBytes(base+i, len(dst)))
			}
		}
	}
	if len(lengthSet) == 0 {
		for k := range m.entries {
			lengthSet[len(k)] = true
		}
	}
	for l := range lengthSet {
		m.lengths = append(m.lengths, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(m.lengths)))
	return m
}

// lookup consumes the longest mapped code at the start of data.
func (m *toUnicodeMap) lookup(data []byte) (string, int, bool) {
	for _, l := range m.lengths {
		if len(data) < l {
			continue
		}
		if val, ok := m.entries[string(data[:l])]; ok {
			return val, l, true
		}
	}
	return "", 0, false
}

func hexTokens(line string) []string {
	var tokens []string
	for {
		start := strings.IndexByte(line, '<')
		if start == -1 {
			return tokens
		}
		end := strings.IndexByte(line[start+1:], '>')
		if end == -1 {
			return tokens
		}
		tokens = append(tokens, strings.ReplaceAll(line[start+1:start+1+end], " ", ""))
		line = line[start+end+2:]
	}
}

func hexToBytes(hex string) []byte {
	if len(hex)%2 == 1 {
		hex += "0"
	}
	out := make([]byte, len(hex)/2)
	for i := 0; i < len(hex); i += 2 {
		out[i/2] = fromHexChar(hex[i])<<4 | fromHexChar(hex[i+1])
	}
	return out
}

func fromHexChar(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}

func bytesToInt(b []byte) int {
	val := 0
	for _, by := range b {
		val = val<<8 | int(by)
	}
	return val
}

func intToBytes(value, length int) []byte {
	buf := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		buf[i] = byte(value)
		value >>= 8
	}
	return buf
}

func decodeUTF16BE(data []byte) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	buf := make([]uint16, len(data)/2)
	for i := range buf {
		buf[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return string(utf16.Decode(buf))
}
