package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/ops"
)

// parseNumbers reads a list of positive numbers such as "1,3,7". An empty
// list yields nil.
func parseNumbers(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid page number %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

// parsePages reads a 1-based page list into 0-based indices.
func parsePages(s string) ([]int, error) {
	nums, err := parseNumbers(s)
	for i := range nums {
		nums[i]--
	}
	return nums, err
}

// parseRanges reads "1-3,5,8-9" into 1-based inclusive ranges.
func parseRanges(s string) ([]ops.PageRange, error) {
	var out []ops.PageRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, found := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid range %q", part)
		}
		end := start
		if found {
			if end, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid range %q", part)
			}
		}
		out = append(out, ops.PageRange{Start: start, End: end})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no ranges given")
	}
	return out, nil
}

// parseOrder reads a 1-based file order such as "2,1,3" into 0-based
// indices.
func parseOrder(s string) ([]int, error) {
	order, err := parsePages(s)
	if err != nil {
		return nil, fmt.Errorf("invalid order: %w", err)
	}
	return order, nil
}

// parseColor reads "#rrggbb" or "rrggbb".
func parseColor(s string) (*document.Color, error) {
	if s == "" {
		return nil, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return nil, fmt.Errorf("invalid color %q, want #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q, want #rrggbb", s)
	}
	return &document.Color{
		R: float64(v>>16&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v&0xff) / 255,
	}, nil
}

var pageSizes = map[string][2]float64{
	"a4":     document.A4,
	"letter": document.Letter,
}

func parsePageSize(s string) ([2]float64, error) {
	size, ok := pageSizes[strings.ToLower(s)]
	if !ok {
		return [2]float64{}, fmt.Errorf("unknown page size %q, want a4 or letter", s)
	}
	return size, nil
}
