package casc

import (
	"fmt"

	"github.com/brecky/casc/blte"
	"github.com/brecky/casc/common"
	"github.com/pkg/errors"
)

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("not found")

// ErrInvalidHash is returned for lookups of the reserved hashes 0 and
// common.EmptyHash.
var ErrInvalidHash = errors.New("invalid filename hash")

// ErrIntegrity is returned when the blocks of a file do not add up to the
// size its encoding entry declares.
var ErrIntegrity = errors.New("integrity check failed")

// Stage names the link of the lookup chain that failed.
type Stage int

const (
	StageRoot Stage = iota
	StageEncoding
	StageIndex
	StageArchive
)

func (s Stage) String() string {
	switch s {
	case StageRoot:
		return "root"
	case StageEncoding:
		return "encoding"
	case StageIndex:
		return "index"
	case StageArchive:
		return "archive"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// NotFoundError reports which stage of the chain had no entry for Key.
type NotFoundError struct {
	Stage Stage
	Key   string
	Err   error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %s not found", e.Stage, e.Key)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

func notFound(stage Stage, key fmt.Stringer, cause error) error {
	return errors.WithStack(&NotFoundError{Stage: stage, Key: key.String(), Err: cause})
}

type hashKey uint64

func (h hashKey) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// IsFormatError reports whether err was caused by malformed data rather
// than by a missing entry or an I/O failure.
func IsFormatError(err error) bool {
	return errors.Is(err, blte.ErrFormat) ||
		errors.Is(err, common.ErrFormat) ||
		errors.Is(err, common.ErrInvalidKeyLength) ||
		errors.Is(err, ErrIntegrity)
}
