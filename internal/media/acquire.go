package media

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMicrophoneUnavailable = errors.New("media: microphone unavailable")
	ErrCameraUnavailable     = errors.New("media: camera unavailable")
)

// Source opens capture devices. Each call returns a fresh track the caller owns.
type Source interface {
	OpenMicrophone(ctx context.Context) (Track, error)
	OpenCamera(ctx context.Context) (Track, error)
}

// Result is the outcome of Acquire.
type Result struct {
	Handle *Handle

	// CameraUnavailable is set when video was requested but the camera
	// could not be opened; the handle is audio-only.
	CameraUnavailable bool
	CameraErr         error
}

// Acquire opens the microphone and, when videoRequested, the camera.
// A microphone failure is fatal. A camera failure degrades to audio-only.
func Acquire(ctx context.Context, src Source, videoRequested bool) (Result, error) {
	if src == nil {
		return Result{}, fmt.Errorf("%w: no media source configured", ErrMicrophoneUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	mic, err := src.OpenMicrophone(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMicrophoneUnavailable, err)
	}
	if !videoRequested {
		return Result{Handle: NewHandle(mic)}, nil
	}

	cam, err := src.OpenCamera(ctx)
	if err != nil {
		return Result{
			Handle:            NewHandle(mic),
			CameraUnavailable: true,
			CameraErr:         fmt.Errorf("%w: %w", ErrCameraUnavailable, err),
		}, nil
	}
	return Result{Handle: NewHandle(mic, cam)}, nil
}
