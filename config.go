package ckpt

import "time"

// Config holds the coordination settings shared by checkpoint backends.
type Config struct {
	// LockWait is the maximum time a distributed backend waits for a
	// lineage lock before giving up.
	LockWait time.Duration

	// LockTTL is the lease on a distributed lineage lock. A holder that
	// crashes loses the lock after this long.
	LockTTL time.Duration

	// PollInterval is the delay between attempts while spinning on a
	// lineage lock, or the first delay for the exponential strategies.
	PollInterval time.Duration

	// PollStrategy names the poll schedule: "constant", "exponential" or
	// "jitter" (exponential with full jitter).
	PollStrategy string

	// PollMax caps the delay of the exponential strategies.
	PollMax time.Duration

	// KeyNamespace is prepended to every remote key. Empty keeps the
	// bare "checkpoint-content:" / "checkpoint-lock:" layout.
	KeyNamespace string

	// Codec names the state payload encoding ("msgpack" or "json").
	Codec string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LockWait:     500 * time.Millisecond,
		LockTTL:      30 * time.Second,
		PollInterval: 1 * time.Millisecond,
		PollStrategy: "constant",
		PollMax:      50 * time.Millisecond,
		Codec:        "msgpack",
	}
}
