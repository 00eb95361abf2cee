package reader

import "errors"

// Sentinel errors returned by the ingestion layer.
var (
	// ErrUnsupportedFormat is returned for file extensions other than
	// txt, epub and pdf.
	ErrUnsupportedFormat = errors.New("reader: unsupported book format")

	// ErrInvalidEPUB indicates a missing or unparsable container or
	// package document.
	ErrInvalidEPUB = errors.New("reader: invalid epub")

	// ErrNoContent is returned when a parse yields zero paragraphs.
	ErrNoContent = errors.New("reader: no readable content")

	// ErrEntryNotFound indicates a path that is not present in the archive.
	ErrEntryNotFound = errors.New("reader: archive entry not found")
)
