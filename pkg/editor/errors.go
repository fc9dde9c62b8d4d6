package editor

import "errors"

var (
	// ErrGeometryUnavailable means the natural image size is unknown or
	// invalid. Editing is blocked until a retry supplies a usable size.
	ErrGeometryUnavailable = errors.New("natural image size unavailable")

	// ErrDragActive is returned when a mutation is attempted while a cut
	// line drag holds the session.
	ErrDragActive = errors.New("cut line drag in progress")

	// ErrDragReleased is returned by drag handle operations after Release.
	ErrDragReleased = errors.New("drag already released")

	// ErrDegenerateCrops marks a batch that stayed mostly thin after the
	// single corrective regeneration. It is surfaced as a warning, never
	// retried again.
	ErrDegenerateCrops = errors.New("crops remain degenerate after regeneration")

	// ErrSessionClosed is returned by operations on a torn-down session.
	ErrSessionClosed = errors.New("editor session closed")

	// ErrNoSections is returned when crop generation is requested with
	// nothing to crop.
	ErrNoSections = errors.New("no sections to crop")
)
