package optimize

import "github.com/wudi/pdfengine/ir/raw"

// pruneUnreachable deletes objects not reachable from the trailer.
func pruneUnreachable(doc *raw.Document) int {
	reachable := make(map[raw.ObjectRef]bool, len(doc.Objects))
	stack := []raw.Object{doc.Trailer}
	for len(stack) > 0 {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch t := obj.(type) {
		case raw.RefObj:
			if reachable[t.R] {
				continue
			}
			if target, ok := doc.Objects[t.R]; ok {
				reachable[t.R] = true
				stack = append(stack, target)
			}
		case *raw.ArrayObj:
			stack = append(stack, t.Items...)
		case *raw.DictObj:
			for _, v := range t.KV {
				stack = append(stack, v)
			}
		case *raw.StreamObj:
			stack = append(stack, t.Dict)
		}
	}
	pruned := 0
	for ref := range doc.Objects {
		if !reachable[ref] {
			delete(doc.Objects, ref)
			pruned++
		}
	}
	return pruned
}
