package xref

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/scanner"
)

var objHeader = regexp.MustCompile(`(?m)(?:^|[\r\n\s])(\d{1,10})[ \t\r\n]+(\d{1,5})[ \t\r\n]+obj\b`)

// repair scans the entire file to reconstruct the xref table.
// It looks for "<num> <gen> obj" patterns and the last "trailer" dictionary.
// Later definitions win, matching incremental update semantics.
func repair(ctx context.Context, data []byte) (Table, error) {
	entries := make(map[int]Entry)
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		entries[num] = Entry{Kind: EntryInUse, Offset: int64(m[2]), Gen: gen}
	}
	if len(entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	trailer := raw.Dict()
	// merge every trailer, newest keys winning
	for off := bytes.Index(data, []byte("trailer")); off >= 0; {
		s := scanner.New(data, scanner.Config{})
		_ = s.Seek(int64(off + len("trailer")))
		if obj, err := raw.NewObjectReader(s).ReadObject(); err == nil {
			if d, ok := obj.(*raw.DictObj); ok {
				for _, k := range d.Keys() {
					trailer.Set(k, d.KV[k])
				}
			}
		}
		next := bytes.Index(data[off+1:], []byte("trailer"))
		if next < 0 {
			break
		}
		off += next + 1
	}
	trailer.Delete("Prev", "XRefStm")
	if _, ok := trailer.Get("Size"); !ok {
		max := 0
		for n := range entries {
			if n > max {
				max = n
			}
		}
		trailer.Set("Size", raw.NumberInt(int64(max+1)))
	}
	return &table{entries: entries, trailer: trailer, kind: "repaired"}, nil
}
