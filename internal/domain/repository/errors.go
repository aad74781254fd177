package repository

import "errors"

var (
	// ErrResolution is returned when the upstream metadata lookup fails.
	ErrResolution = errors.New("item resolution failed")

	// ErrVariantNotFound is returned when the requested variant tag is absent from the resolved item.
	ErrVariantNotFound = errors.New("variant not found")

	// ErrUpstreamUnavailable is returned when the variant's byte stream cannot be fetched.
	// Callers may retry; the failed entry is invalidated so the retry resolves afresh.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrEntryNotFound is returned by a MetadataStore when no entry exists for an id.
	ErrEntryNotFound = errors.New("cache entry not found")

	// ErrCorruptEntry is returned by a MetadataStore when a persisted entry cannot be decoded.
	ErrCorruptEntry = errors.New("cache entry corrupt")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
)
