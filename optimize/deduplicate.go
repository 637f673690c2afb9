package optimize

import (
	"context"
	"sort"

	"github.com/wudi/pdfengine/ir/raw"
)

const maxCombineRounds = 8

// structural objects whose identity matters even when their content repeats
var uncombinable = map[string]bool{"Catalog": true, "Pages": true, "Page": true}

// combineIdenticalObjects points every reference at the lowest-numbered
// object of each group of identical indirect objects. Repeats until stable,
// since merging children can make parents identical.
func combineIdenticalObjects(ctx context.Context, doc *raw.Document) (int, error) {
	total := 0
	for round := 0; round < maxCombineRounds; round++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		refs := sortedRefs(doc)
		seen := make(map[digest]raw.ObjectRef, len(refs))
		replacements := make(map[raw.ObjectRef]raw.ObjectRef)
		for _, ref := range refs {
			obj := doc.Objects[ref]
			if d, ok := obj.(*raw.DictObj); ok {
				if typ, _ := d.Name("Type"); uncombinable[typ] {
					continue
				}
			}
			h := hashObject(obj)
			if original, ok := seen[h]; ok {
				replacements[ref] = original
				continue
			}
			seen[h] = ref
		}
		if len(replacements) == 0 {
			break
		}
		applyReplacements(doc, replacements)
		for dup := range replacements {
			delete(doc.Objects, dup)
		}
		total += len(replacements)
	}
	return total, nil
}

func sortedRefs(doc *raw.Document) []raw.ObjectRef {
	refs := make([]raw.ObjectRef, 0, len(doc.Objects))
	for ref := range doc.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}

func applyReplacements(doc *raw.Document, replacements map[raw.ObjectRef]raw.ObjectRef) {
	for ref, obj := range doc.Objects {
		doc.Objects[ref] = replaceRefs(obj, replacements)
	}
	if doc.Trailer != nil {
		replaceRefs(doc.Trailer, replacements)
	}
}

func replaceRefs(obj raw.Object, replacements map[raw.ObjectRef]raw.ObjectRef) raw.Object {
	switch t := obj.(type) {
	case raw.RefObj:
		if to, ok := replacements[t.R]; ok {
			return raw.RefObj{R: to}
		}
	case *raw.ArrayObj:
		for i, val := range t.Items {
			t.Items[i] = replaceRefs(val, replacements)
		}
	case *raw.DictObj:
		for key, val := range t.KV {
			t.KV[key] = replaceRefs(val, replacements)
		}
	case *raw.StreamObj:
		replaceRefs(t.Dict, replacements)
	}
	return obj
}
