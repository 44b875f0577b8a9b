package btree

import "github.com/pkg/errors"

var (
	ErrEmptyKey    = errors.New("btree: empty key")
	ErrKeyTooLarge = errors.New("btree: key too large")
	ErrCorrupted   = errors.New("btree: corrupted node")
	ErrClosed      = errors.New("btree: iterator closed")
)
