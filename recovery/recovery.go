package recovery

import "context"

// Strategy decides how the parser reacts to a malformed structure.
type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string // "xref", "object", "objstm", "pages"
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	}
	return "fail"
}
