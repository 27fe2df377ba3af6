package fat16

import (
	"errors"
)

var (
	// ErrMalformedBootSector indicates that the BPB describes a geometry that
	// can not be interpreted. Nothing on the volume can be read.
	ErrMalformedBootSector = errors.New("malformed boot sector")

	// ErrImageTooSmall indicates a short read: something addressed by the
	// geometry lies beyond the end of the image.
	ErrImageTooSmall = errors.New("image too small")

	// ErrCorruptChain indicates that a FAT chain points somewhere an
	// allocated chain never should (free, reserved, bad, out-of-range,
	// already-owned) or loops back onto itself.
	ErrCorruptChain = errors.New("corrupt cluster chain")

	// ErrTruncatedFile indicates that the chain ended before the declared
	// size of the file was satisfied.
	ErrTruncatedFile = errors.New("truncated file")
)
