package recorder

import "errors"

var (
	// ErrPermissionDenied means the capture device refused access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means no usable capture device could be opened.
	ErrDeviceUnavailable = errors.New("audio capture device unavailable")

	ErrAlreadyRecording = errors.New("recorder is already recording")
	ErrNotRecording     = errors.New("recorder is not recording")
)
