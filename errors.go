package gradtape

import "errors"

var (
	// ErrInvalidMagic is returned when a snapshot stream does not start with
	// the gradtape magic number.
	ErrInvalidMagic = errors.New("invalid magic number")

	// ErrInvalidVersion is returned for unsupported snapshot format versions.
	ErrInvalidVersion = errors.New("unsupported snapshot version")

	// ErrChecksum is returned when a snapshot fails checksum verification.
	ErrChecksum = errors.New("snapshot checksum mismatch")

	// ErrPolicyMismatch is returned when a snapshot was recorded under a
	// different index policy than the loading tape.
	ErrPolicyMismatch = errors.New("snapshot index policy mismatch")

	// ErrCorrupted is returned when snapshot sections are inconsistent.
	ErrCorrupted = errors.New("snapshot corrupted")

	// ErrUnknownCompression is returned for an unrecognized compression codec.
	ErrUnknownCompression = errors.New("unknown snapshot compression codec")
)
