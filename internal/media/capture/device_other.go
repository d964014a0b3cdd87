//go:build !linux || !cgo

package capture

import (
	"context"
	"log/slog"

	"telehealth-platform/internal/media"

	"github.com/pion/webrtc/v4"
)

// DeviceSource is unavailable off linux; every open fails.
type DeviceSource struct{}

func NewDeviceSource(_ *slog.Logger) (*DeviceSource, error) { return nil, ErrUnsupported }

func (s *DeviceSource) PopulateMediaEngine(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (s *DeviceSource) OpenMicrophone(context.Context) (media.Track, error) {
	return nil, ErrUnsupported
}

func (s *DeviceSource) OpenCamera(context.Context) (media.Track, error) {
	return nil, ErrUnsupported
}
