package domain

import "errors"

// Error taxonomy for the voice pipeline. Only ErrEmptyInput and
// SynthesisError reach the HTTP caller as failures; every other kind is
// absorbed with a safe fallback so the learner always gets a response.
var (
	// ErrEmptyInput means no usable transcript or text was provided.
	ErrEmptyInput = errors.New("empty input: no usable transcript or text")

	// ErrRateLimited means the limiter denied admission.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrRateLimitTimeout means a blocking admission wait expired.
	ErrRateLimitTimeout = errors.New("timed out waiting for rate limit admission")

	// ErrCacheMiss is returned by cache stores when a key is absent.
	ErrCacheMiss = errors.New("cache entry not found")
)

// GenerationError wraps an answer generator failure. Always recovered
// locally with the fallback utterance.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string {
	return "answer generation failed: " + e.Cause.Error()
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// SynthesisError wraps a speech synthesis failure after retries. Fatal for
// the request: no meaningful response exists without audio.
type SynthesisError struct {
	Provider string
	Cause    error
}

func (e *SynthesisError) Error() string {
	return "speech synthesis failed (" + e.Provider + "): " + e.Cause.Error()
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

// AlignmentError wraps a forced-alignment failure or invalid cue output.
// The pipeline degrades to a silence-only timeline instead of failing.
type AlignmentError struct {
	Cause error
}

func (e *AlignmentError) Error() string {
	return "lip-sync alignment failed: " + e.Cause.Error()
}

func (e *AlignmentError) Unwrap() error { return e.Cause }

// CacheError wraps a cache store read/write failure. Always absorbed and
// logged; the pipeline proceeds as if the cache were empty.
type CacheError struct {
	Op    string
	Cause error
}

func (e *CacheError) Error() string {
	return "cache " + e.Op + " failed: " + e.Cause.Error()
}

func (e *CacheError) Unwrap() error { return e.Cause }
