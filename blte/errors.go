package blte

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies BLTE format errors.
type Kind int

const (
	kindAny Kind = iota
	BadMagic
	BadChunkTableMarker
	HeaderSizeMismatch
	ChunkCountMismatch
	SizeMismatch
	UnsupportedMode
	ChecksumMismatch
	Truncated
	Corrupt
)

func (k Kind) String() string {
	switch k {
	case BadMagic:
		return "bad magic"
	case BadChunkTableMarker:
		return "bad chunk table marker"
	case HeaderSizeMismatch:
		return "header size mismatch"
	case ChunkCountMismatch:
		return "chunk count mismatch"
	case SizeMismatch:
		return "size mismatch"
	case UnsupportedMode:
		return "unsupported compression mode"
	case ChecksumMismatch:
		return "checksum mismatch"
	case Truncated:
		return "truncated data"
	case Corrupt:
		return "corrupt payload"
	default:
		return "invalid format"
	}
}

// Error is returned for every malformed BLTE container. errors.Is matches
// an *Error against the sentinel of the same Kind and against ErrFormat.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "blte: " + e.Kind.String()
	}
	return "blte: " + e.Kind.String() + ": " + e.Detail
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == kindAny || t.Kind == e.Kind
}

var (
	ErrFormat              = &Error{Kind: kindAny}
	ErrBadMagic            = &Error{Kind: BadMagic}
	ErrBadChunkTableMarker = &Error{Kind: BadChunkTableMarker}
	ErrHeaderSize          = &Error{Kind: HeaderSizeMismatch}
	ErrChunkCountMismatch  = &Error{Kind: ChunkCountMismatch}
	ErrSizeMismatch        = &Error{Kind: SizeMismatch}
	ErrUnsupportedMode     = &Error{Kind: UnsupportedMode}
	ErrChecksumMismatch    = &Error{Kind: ChecksumMismatch}
	ErrTruncated           = &Error{Kind: Truncated}
	ErrCorrupt             = &Error{Kind: Corrupt}
)

func errorf(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{Kind: kind, Detail: fmt.Sprintf(format, args...)})
}
