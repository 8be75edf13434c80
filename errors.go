package ckpt

import "errors"

var (
	// Not found errors.
	ErrCheckpointNotFound = errors.New("ckpt: checkpoint not found")

	// Conflict errors.
	ErrCheckpointExists = errors.New("ckpt: checkpoint id already exists in lineage")

	// Validation errors.
	ErrInvalidCheckpoint = errors.New("ckpt: invalid checkpoint")
	ErrInvalidAddressing = errors.New("ckpt: invalid addressing")

	// Coordination errors.
	ErrLockTimeout = errors.New("ckpt: lineage lock not acquired")

	// Codec errors.
	ErrSerialization = errors.New("ckpt: serialization failure")
)
