package scanner

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, data string, cfg Config) []Token {
	t.Helper()
	s := New([]byte(data), cfg)
	var out []Token
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, tok)
	}
}

func TestScanner_BasicTokens(t *testing.T) {
	toks := collect(t, "%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2.5 -3] /Flag true /Null null /R 4 0 R >>\nendobj", Config{})

	want := []TokenType{
		TokenNumber, TokenNumber, TokenKeyword,
		TokenDict, TokenName, TokenName, TokenName, TokenArray, TokenNumber, TokenNumber, TokenNumber, TokenKeyword,
		TokenName, TokenBoolean, TokenName, TokenNull, TokenName, TokenRef, TokenKeyword, TokenKeyword,
	}
	require.Len(t, toks, len(want))
	for i, tt := range want {
		assert.Equal(t, tt, toks[i].Type, "token %d", i)
	}
	assert.Equal(t, int64(1), toks[0].Value)
	assert.True(t, toks[2].IsKeyword("obj"))
	assert.Equal(t, 2.5, toks[9].Value)
	assert.Equal(t, int64(-3), toks[10].Value)
	assert.Equal(t, [2]int64{4, 0}, toks[17].Value)
	assert.True(t, toks[19].IsKeyword("endobj"))
}

func TestScanner_Strings(t *testing.T) {
	toks := collect(t, `(a\(b\)c\n\101) (nested (paren) ok) <48 65 6C6C 6F> <7>`, Config{})
	require.Len(t, toks, 4)
	assert.Equal(t, []byte("a(b)c\nA"), toks[0].Value)
	assert.Equal(t, []byte("nested (paren) ok"), toks[1].Value)
	assert.Equal(t, []byte("Hello"), toks[2].Value)
	assert.True(t, toks[2].Hex)
	assert.Equal(t, []byte{0x70}, toks[3].Value)
}

func TestScanner_NameEscapes(t *testing.T) {
	toks := collect(t, "/A#20B /Lime#47reen", Config{})
	require.Len(t, toks, 2)
	assert.Equal(t, "A B", toks[0].Str())
	assert.Equal(t, "LimeGreen", toks[1].Str())
}

func TestScanner_StreamUsesLengthHint(t *testing.T) {
	s := New([]byte("stream\r\nab endstream inside\nendstream\nendobj"), Config{})
	s.SetNextStreamLength(19)
	tok, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, TokenStream, tok.Type)
	assert.Equal(t, "ab endstream inside", string(tok.Value.([]byte)))

	tok, err = s.Next()
	require.NoError(t, err)
	assert.True(t, tok.IsKeyword("endobj"))
}

func TestScanner_StreamFallsBackToEndstreamSearch(t *testing.T) {
	s := New([]byte("stream\nhello\nendstream endobj"), Config{})
	s.SetNextStreamLength(999)
	tok, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(tok.Value.([]byte)))
}

func TestScanner_ContentStreamInlineImage(t *testing.T) {
	toks := collect(t, "q BI /W 2 /H 1 /CS /G /BPC 8 ID \x00\xff EI Q 1 0 0 1 5 5 cm", Config{ContentStream: true})
	var inline *Token
	for i := range toks {
		if toks[i].Type == TokenInlineImage {
			inline = &toks[i]
		}
	}
	require.NotNil(t, inline)
	assert.Equal(t, []byte{0x00, 0xff}, inline.Value)
	// references are not recognized in content streams
	for _, tok := range toks {
		assert.NotEqual(t, TokenRef, tok.Type)
	}
}

func TestScanner_UnterminatedString(t *testing.T) {
	s := New([]byte("(never closed"), Config{})
	_, err := s.Next()
	assert.ErrorIs(t, err, ErrUnterminatedString)
}
