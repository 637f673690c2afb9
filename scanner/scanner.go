package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // stream body between 'stream' and 'endstream'
	TokenInlineImage                  // inline image data following ID ... EI (content stream only)
	TokenKeyword                      // other keywords (obj, endobj, >>, ], operators)
)

// Token is a single lexical element. Value holds:
//   - string for names and keywords
//   - []byte for strings, streams and inline image data
//   - int64 or float64 for numbers
//   - bool for booleans
//   - [2]int64{num, gen} for references
type Token struct {
	Type  TokenType
	Value interface{}
	Pos   int64
	Hex   bool
}

// Str returns the token value as a string, or "" when it is not one.
func (t Token) Str() string {
	s, _ := t.Value.(string)
	return s
}

// IsKeyword reports whether t is the keyword kw.
func (t Token) IsKeyword(kw string) bool {
	return t.Type == TokenKeyword && t.Str() == kw
}

// Int returns the integer value of a numeric token.
func (t Token) Int() (int64, bool) {
	i, ok := t.Value.(int64)
	return i, ok
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	Seek(offset int64) error
	// SetNextStreamLength supplies the /Length of the stream whose
	// 'stream' keyword is scanned next. A negative value forces a search
	// for 'endstream'.
	SetNextStreamLength(n int64)
}

type Config struct {
	// ContentStream enables inline image scanning and disables reference
	// detection, which is only meaningful in file bodies.
	ContentStream   bool
	MaxStringLength int64
}

var (
	ErrUnterminatedString = errors.New("scanner: unterminated string")
	ErrUnterminatedStream = errors.New("scanner: missing endstream")
)

type pdfScanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
}

// New returns a scanner over data.
func New(data []byte, cfg Config) Scanner {
	return &pdfScanner{data: data, cfg: cfg, nextStreamLen: -1}
}

func (s *pdfScanner) Position() int64 { return s.pos }

func (s *pdfScanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	return nil
}

func (s *pdfScanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

func (s *pdfScanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Value: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Value: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Value: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Value: "[", Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenKeyword, Value: "]", Pos: start}, nil
	case '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Value: string(c), Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case ')':
		s.pos++
		return Token{Type: TokenKeyword, Value: ")", Pos: start}, nil
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	return s.scanKeyword()
}

func (s *pdfScanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *pdfScanner) peekAhead(n int64) byte {
	if s.pos+n < int64(len(s.data)) {
		return s.data[s.pos+n]
	}
	return 0
}

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var buf []byte
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			buf = append(buf, fromHex(s.data[s.pos+1])<<4|fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		buf = append(buf, c)
		s.pos++
	}
	return Token{Type: TokenName, Value: string(buf), Pos: start}, nil
}

func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	depth := 1
	var buf []byte
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		switch c {
		case '\\':
			s.pos++
			if s.pos >= int64(len(s.data)) {
				return Token{}, ErrUnterminatedString
			}
			e := s.data[s.pos]
			switch {
			case e >= '0' && e <= '7':
				v := 0
				for i := 0; i < 3 && s.pos < int64(len(s.data)); i++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					v = v*8 + int(d-'0')
					s.pos++
				}
				buf = append(buf, byte(v))
				continue
			case e == '\r':
				s.pos++
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
				continue
			case e == '\n':
				s.pos++
				continue
			default:
				buf = append(buf, translateEscape(e))
			}
		case '(':
			depth++
			buf = append(buf, c)
		case ')':
			depth--
			if depth == 0 {
				s.pos++
				return Token{Type: TokenString, Value: buf, Pos: start}, nil
			}
			buf = append(buf, c)
		default:
			buf = append(buf, c)
		}
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(len(buf)) > s.cfg.MaxStringLength {
			return Token{}, errors.New("scanner: string exceeds limit")
		}
	}
	return Token{}, ErrUnterminatedString
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var buf []byte
	var hi byte
	half := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if half {
				buf = append(buf, hi<<4)
			}
			return Token{Type: TokenString, Value: buf, Pos: start, Hex: true}, nil
		}
		if !isHex(c) {
			continue
		}
		if half {
			buf = append(buf, hi<<4|fromHex(c))
			half = false
		} else {
			hi = fromHex(c)
			half = true
		}
	}
	return Token{}, ErrUnterminatedString
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		s.pos++
	}
	if s.pos == start {
		// lone delimiter we do not otherwise recognize
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true":
		return Token{Type: TokenBoolean, Value: true, Pos: start}, nil
	case "false":
		return Token{Type: TokenBoolean, Value: false, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		if !s.cfg.ContentStream {
			return s.scanStream(start)
		}
	case "ID":
		if s.cfg.ContentStream {
			return s.scanInlineImage(start)
		}
	}
	return Token{Type: TokenKeyword, Value: kw, Pos: start}, nil
}

var endstream = []byte("endstream")

func (s *pdfScanner) scanStream(start int64) (Token, error) {
	// 'stream' is followed by CRLF or LF; tolerate a lone CR.
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	dataStart := s.pos
	length := s.nextStreamLen
	s.nextStreamLen = -1

	if length >= 0 && dataStart+length <= int64(len(s.data)) {
		end := dataStart + length
		rest := s.data[end:]
		trimmed := bytes.TrimLeft(rest, " \t\r\n\f\x00")
		if bytes.HasPrefix(trimmed, endstream) {
			s.pos = end + int64(len(rest)-len(trimmed)) + int64(len(endstream))
			return Token{Type: TokenStream, Value: s.data[dataStart:end], Pos: start}, nil
		}
	}

	idx := bytes.Index(s.data[dataStart:], endstream)
	if idx < 0 {
		return Token{}, ErrUnterminatedStream
	}
	end := dataStart + int64(idx)
	s.pos = end + int64(len(endstream))
	// drop the EOL that precedes endstream
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	return Token{Type: TokenStream, Value: s.data[dataStart:end], Pos: start}, nil
}

func (s *pdfScanner) scanInlineImage(start int64) (Token, error) {
	// single whitespace byte separates ID from the data
	if s.pos < int64(len(s.data)) && isWhitespace(s.data[s.pos]) {
		s.pos++
	}
	dataStart := s.pos
	for i := dataStart; i+2 <= int64(len(s.data)); i++ {
		if s.data[i] != 'E' || s.data[i+1] != 'I' {
			continue
		}
		before := i == dataStart || isWhitespace(s.data[i-1])
		after := i+2 == int64(len(s.data)) || isWhitespace(s.data[i+2]) || isDelimiter(s.data[i+2])
		if before && after {
			end := i
			if end > dataStart && isWhitespace(s.data[end-1]) {
				end--
			}
			s.pos = i + 2
			return Token{Type: TokenInlineImage, Value: s.data[dataStart:end], Pos: start}, nil
		}
	}
	return Token{}, errors.New("scanner: unterminated inline image")
}

func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num, isInt := s.scanNumber()
	if num == nil {
		return s.scanKeyword()
	}
	if isInt && !s.cfg.ContentStream {
		if gen, ok := s.tryRefTail(); ok {
			return Token{Type: TokenRef, Value: [2]int64{num.(int64), gen}, Pos: start}, nil
		}
	}
	return Token{Type: TokenNumber, Value: num, Pos: start}, nil
}

// tryRefTail checks for "<gen> R" after an integer and consumes it when
// present.
func (s *pdfScanner) tryRefTail() (int64, bool) {
	save := s.pos
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) || s.data[s.pos] < '0' || s.data[s.pos] > '9' {
		s.pos = save
		return 0, false
	}
	genStart := s.pos
	for s.pos < int64(len(s.data)) && s.data[s.pos] >= '0' && s.data[s.pos] <= '9' {
		s.pos++
	}
	gen, err := strconv.ParseInt(string(s.data[genStart:s.pos]), 10, 64)
	if err != nil {
		s.pos = save
		return 0, false
	}
	s.skipWSAndComments()
	if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
		(s.pos+1 == int64(len(s.data)) || isWhitespace(s.data[s.pos+1]) || isDelimiter(s.data[s.pos+1])) {
		s.pos++
		return gen, true
	}
	s.pos = save
	return 0, false
}

func (s *pdfScanner) scanNumber() (interface{}, bool) {
	start := s.pos
	if c := s.data[s.pos]; c == '+' || c == '-' {
		s.pos++
	}
	sawDot := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c == '.' && !sawDot {
			sawDot = true
			s.pos++
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		s.pos++
	}
	text := string(s.data[start:s.pos])
	if !sawDot {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i, true
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// "-" or "." alone: treat as zero, as most readers do
		if text == "-" || text == "+" || text == "." || text == "-." {
			return float64(0), false
		}
		s.pos = start
		return nil, false
	}
	return f, false
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}
