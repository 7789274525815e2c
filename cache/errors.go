package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrNilKey is returned when a nil pointer/interface/channel key is used.
	ErrNilKey = errors.New("cache: nil key")

	// ErrOutOfRange is the parent of every argument-range error below.
	ErrOutOfRange = errors.New("cache: argument out of range")

	// ErrNegativeSize is returned for an entry size below zero.
	ErrNegativeSize = fmt.Errorf("%w: size must be non-negative", ErrOutOfRange)
	// ErrNonPositiveDuration is returned for a relative or sliding expiration <= 0.
	ErrNonPositiveDuration = fmt.Errorf("%w: duration must be positive", ErrOutOfRange)
	// ErrInvalidCompactionPercentage is returned for a percentage outside [0, 1].
	ErrInvalidCompactionPercentage = fmt.Errorf("%w: compaction percentage must be within [0, 1]", ErrOutOfRange)
	// ErrInvalidSizeLimit is returned for a negative SizeLimit.
	ErrInvalidSizeLimit = fmt.Errorf("%w: size limit must be positive", ErrOutOfRange)
	// ErrInvalidScanFrequency is returned for a negative scan frequency other than ScanOnAccess.
	ErrInvalidScanFrequency = fmt.Errorf("%w: expiration scan frequency must not be negative", ErrOutOfRange)

	// ErrSizeRequired is returned on commit when the cache has a SizeLimit
	// and the entry has neither an explicit size nor an Options.Sizer.
	ErrSizeRequired = errors.New("cache: entry size is required when a size limit is set")

	// ErrNilToken is returned by AddExpirationToken(nil).
	ErrNilToken = errors.New("cache: nil expiration token")
	// ErrNilCallback is returned by RegisterPostEvictionCallback(nil, ...).
	ErrNilCallback = errors.New("cache: nil post-eviction callback")
	// ErrValueNotSet is returned by Commit when SetValue was never called.
	ErrValueNotSet = errors.New("cache: entry value was not set")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache: closed")
)
