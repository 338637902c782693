package batch

import (
	"os"
	"strconv"
	"time"
)

// Options holds the debounce timing knobs. All values are positive durations;
// TypingTimeout <= TypingFallback and MinWait < MaxWait are assumed but not
// enforced.
type Options struct {
	// TypingTimeout is the silence window after the last message (or after a
	// typing-stop signal) before a batch is finalized.
	TypingTimeout time.Duration
	// MaxWait is the hard upper bound on how long a batch may accumulate,
	// measured from its first message.
	MaxWait time.Duration
	// MinWait is the minimum age a batch must reach before processing starts.
	MinWait time.Duration
	// InitialDelay is how long after a message arrives the composing
	// indicator is sent back to the remote party.
	InitialDelay time.Duration
	// TypingFallback bounds accumulation when a typing-stop signal never
	// arrives from the platform.
	TypingFallback time.Duration

	// GroupSuffix marks multi-party chat ids (WhatsApp convention by default).
	GroupSuffix string

	// Fixed internals, overridden only by tests.
	flushFloor  time.Duration // lower bound on the flush delay
	graceWindow time.Duration // post-processing-mark collection window
	dispatchGap time.Duration // pacing between per-message dispatches
}

// Env variable names recognized as millisecond overrides.
const (
	envTypingTimeout  = "TYPING_TIMEOUT"
	envMaxWaitTime    = "MAX_WAIT_TIME"
	envMinWaitTime    = "MIN_WAIT_TIME"
	envInitialDelay   = "INITIAL_DELAY"
	envTypingFallback = "TYPING_FALLBACK"
)

const DefaultGroupSuffix = "@g.us"

func DefaultOptions() Options {
	return Options{
		TypingTimeout:  3000 * time.Millisecond,
		MaxWait:        8000 * time.Millisecond,
		MinWait:        1500 * time.Millisecond,
		InitialDelay:   800 * time.Millisecond,
		TypingFallback: 9000 * time.Millisecond,
		GroupSuffix:    DefaultGroupSuffix,
		flushFloor:     1000 * time.Millisecond,
		graceWindow:    500 * time.Millisecond,
		dispatchGap:    200 * time.Millisecond,
	}
}

// ApplyEnv overlays millisecond values from the environment onto o.
// Unset or malformed variables leave the current value in place.
func (o *Options) ApplyEnv() {
	overrideMS(&o.TypingTimeout, envTypingTimeout)
	overrideMS(&o.MaxWait, envMaxWaitTime)
	overrideMS(&o.MinWait, envMinWaitTime)
	overrideMS(&o.InitialDelay, envInitialDelay)
	overrideMS(&o.TypingFallback, envTypingFallback)
}

func overrideMS(d *time.Duration, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return
	}
	*d = time.Duration(ms) * time.Millisecond
}

// flushDelay is the debounce window used when the remote party is not typing.
func (o Options) flushDelay() time.Duration {
	if o.TypingTimeout < o.flushFloor {
		return o.flushFloor
	}
	return o.TypingTimeout
}

// staleAfter is how old a typing signal may be before it is ignored.
func (o Options) staleAfter() time.Duration {
	return 2 * o.TypingTimeout
}
