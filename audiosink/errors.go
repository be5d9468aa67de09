package audiosink

import "errors"

// ErrNotNegotiated is returned from Render/Preroll when the ring buffer has
// not been acquired yet. The pipeline should surface this as a stream
// format error.
var ErrNotNegotiated = errors.New("audiosink: not negotiated")

// ErrWrongSize is returned when a buffer's size is not a multiple of the
// frame size.
var ErrWrongSize = errors.New("audiosink: buffer size is not a multiple of the frame size")

// ErrStopping is returned when a render call was unblocked by a flush or a
// state change while waiting for free ring buffer segments or preroll. It
// is a normal flow result, not a failure, and should not be logged as an
// error.
var ErrStopping = errors.New("audiosink: stopping")

// ErrOpenFailed is returned when the ring buffer's device fails to open; the
// device's own error is not included. The subclass supplying the ring
// buffer factory is responsible for the user-visible error message; this is
// a fatal state-change failure.
var ErrOpenFailed = errors.New("audiosink: open failed")
