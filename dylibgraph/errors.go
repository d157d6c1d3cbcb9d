package dylibgraph

import "fmt"

// Kind discriminates the fatal/warning conditions the core can raise,
// matching the taxonomy the freeze tool's driver is expected to switch on.
type Kind int

const (
	// KindNotMachO is informational: a presented file isn't Mach-O at all.
	KindNotMachO Kind = iota
	// KindParseError means the load-command stream could not be read.
	KindParseError
	// KindCollidingReferences means two outgoing edges of one node
	// resolved to the same path.
	KindCollidingReferences
	// KindCopySlotConflict means two distinct sources were copied to the
	// same bundle path; the first source wins.
	KindCopySlotConflict
	// KindUnresolvedRpathStrict means an @rpath reference could not be
	// resolved while strict mode was on.
	KindUnresolvedRpathStrict
	// KindUnresolvedAfterFinalize means finalize() found no candidate for
	// an edge left unresolved after the primary pass.
	KindUnresolvedAfterFinalize
	// KindRewriteFailed means a load reference could not be rewritten:
	// the binary could not be reinspected, or install_name_tool failed.
	KindRewriteFailed
	// KindSignFailed means ad-hoc signing failed even after the retry.
	KindSignFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotMachO:
		return "NotMachO"
	case KindParseError:
		return "ParseError"
	case KindCollidingReferences:
		return "CollidingReferences"
	case KindCopySlotConflict:
		return "CopySlotConflict"
	case KindUnresolvedRpathStrict:
		return "UnresolvedRpathStrict"
	case KindUnresolvedAfterFinalize:
		return "UnresolvedAfterFinalize"
	case KindRewriteFailed:
		return "RewriteFailed"
	case KindSignFailed:
		return "SignFailed"
	default:
		return "Unknown"
	}
}

// Error is the error type the core raises. Drivers can recover the kind
// with errors.As to decide exit semantics.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Path != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Path, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newErr(kind Kind, path, message string, err error) *Error {
	return &Error{Kind: kind, Path: path, Message: message, Err: err}
}
