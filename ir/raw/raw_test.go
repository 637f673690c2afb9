package raw

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfengine/scanner"
)

func readIndirect(t *testing.T, src string, length func(ObjectRef) (int64, bool)) (ObjectRef, Object) {
	t.Helper()
	r := NewObjectReader(scanner.New([]byte(src), scanner.Config{}))
	r.StreamLength = length
	ref, obj, err := r.ReadIndirect()
	require.NoError(t, err)
	return ref, obj
}

func TestReadIndirectDictionary(t *testing.T) {
	ref, obj := readIndirect(t, "7 0 obj\n<< /Type /Catalog /Pages 2 0 R /Kids [1 2.5 (x)] /Gone null >>\nendobj", nil)
	assert.Equal(t, ObjectRef{Num: 7}, ref)

	dict, ok := obj.(*DictObj)
	require.True(t, ok)
	name, _ := dict.Name("Type")
	assert.Equal(t, "Catalog", name)
	assert.Equal(t, Ref(2, 0), dict.KV["Pages"])
	_, hasNull := dict.Get("Gone")
	assert.False(t, hasNull)
	assert.Equal(t, []string{"Kids", "Pages", "Type"}, dict.Keys())
}

func TestReadIndirectStreamWithIndirectLength(t *testing.T) {
	src := "2 0 obj\n<< /Length 9 0 R >>\nstream\nhello\nendstream\nendobj"
	_, obj := readIndirect(t, src, func(ref ObjectRef) (int64, bool) {
		assert.Equal(t, 9, ref.Num)
		return 5, true
	})
	stream, ok := obj.(*StreamObj)
	require.True(t, ok)
	assert.Equal(t, "hello", string(stream.Data))
}

func TestReadIndirectRejectsGarbage(t *testing.T) {
	r := NewObjectReader(scanner.New([]byte("trailer << >>"), scanner.Config{}))
	_, _, err := r.ReadIndirect()
	assert.ErrorIs(t, err, ErrNotIndirect)
}

func TestDocumentAddAndResolve(t *testing.T) {
	doc := NewDocument()
	doc.Objects[ObjectRef{Num: 3}] = NumberInt(42)
	ref := doc.Add(Ref(3, 0))
	assert.Equal(t, 4, ref.R.Num)

	n, ok := doc.ResolveNumber(ref)
	require.True(t, ok)
	assert.Equal(t, 42.0, n)

	assert.Equal(t, NullObj{}, doc.Resolve(Ref(99, 0)))
	assert.Equal(t, 5, doc.Add(NullObj{}).R.Num)
}

func TestCloneIsDeep(t *testing.T) {
	inner := NewArray(NumberInt(1))
	d := Dict()
	d.Set("A", inner)
	d.Set("S", Str([]byte("abc")))

	c := CloneDict(d)
	inner.Append(NumberInt(2))
	d.KV["S"].(StringObj).Bytes[0] = 'z'

	assert.Equal(t, 1, c.KV["A"].(*ArrayObj).Len())
	assert.Equal(t, "abc", string(c.KV["S"].(StringObj).Bytes))
}

func TestTextStringRoundTrip(t *testing.T) {
	for _, s := range []string{"Plain title", "Café", "日本語"} {
		assert.Equal(t, s, DecodeTextString(TextString(s).Bytes))
	}
	assert.False(t, TextString("Café").Hex)
	assert.True(t, TextString("日本語").Hex)
}

func TestParseDate(t *testing.T) {
	ts, ok := ParseDate("D:20240131120000+02'00'")
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())
	_, off := ts.Zone()
	assert.Equal(t, 7200, off)

	ts, ok = ParseDate("D:2023")
	require.True(t, ok)
	assert.Equal(t, time.January, ts.Month())

	back, ok := ParseDate(FormatDate(time.Date(2021, 5, 6, 7, 8, 9, 0, time.UTC)))
	require.True(t, ok)
	assert.True(t, back.Equal(time.Date(2021, 5, 6, 7, 8, 9, 0, time.UTC)))
}
