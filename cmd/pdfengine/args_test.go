package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/ops"
)

func TestParseNumbers(t *testing.T) {
	got, err := parseNumbers(" 1, 3 ,7")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 7}, got)

	got, err = parseNumbers("")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{"0", "a", "1,,2", "-3"} {
		_, err := parseNumbers(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePagesIsZeroBased(t *testing.T) {
	got, err := parsePages("1,2,10")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 9}, got)

	order, err := parseOrder("2,1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, order)

	_, err = parseOrder("x")
	assert.ErrorContains(t, err, "invalid order")
}

func TestParseRanges(t *testing.T) {
	got, err := parseRanges("1-3, 5,8-9,")
	require.NoError(t, err)
	assert.Equal(t, []ops.PageRange{{Start: 1, End: 3}, {Start: 5, End: 5}, {Start: 8, End: 9}}, got)

	for _, bad := range []string{"", ",", "a-2", "1-b"} {
		_, err := parseRanges(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseColor(t *testing.T) {
	c, err := parseColor("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, &document.Color{R: 1, G: 128.0 / 255, B: 0}, c)

	c, err = parseColor("")
	require.NoError(t, err)
	assert.Nil(t, c)

	for _, bad := range []string{"#fff", "zzzzzz", "#1234567"} {
		_, err := parseColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePageSize(t *testing.T) {
	size, err := parsePageSize("A4")
	require.NoError(t, err)
	assert.Equal(t, document.A4, size)

	size, err = parsePageSize("letter")
	require.NoError(t, err)
	assert.Equal(t, document.Letter, size)

	_, err = parsePageSize("tabloid")
	assert.ErrorContains(t, err, "unknown page size")
}
