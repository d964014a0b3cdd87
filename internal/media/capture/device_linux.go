//go:build linux && cgo

package capture

import (
	"context"
	"fmt"
	"log/slog"

	"telehealth-platform/internal/media"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// DeviceSource captures from local devices through pion/mediadevices.
type DeviceSource struct {
	selector *mediadevices.CodecSelector
	log      *slog.Logger
}

func NewDeviceSource(log *slog.Logger) (*DeviceSource, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_000_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.Default()
	}
	for _, d := range mediadevices.EnumerateDevices() {
		log.Debug("media device", "kind", d.Kind, "label", d.Label)
	}

	return &DeviceSource{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		log: log,
	}, nil
}

// PopulateMediaEngine registers the encoder codecs with a pion MediaEngine.
func (s *DeviceSource) PopulateMediaEngine(m *webrtc.MediaEngine) error {
	s.selector.Populate(m)
	return nil
}

func (s *DeviceSource) OpenMicrophone(ctx context.Context) (media.Track, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: s.selector,
	})
	if err != nil {
		return nil, err
	}
	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("capture: no audio track")
	}
	closeExtra(tracks[1:])
	return media.NewLocalTrack(media.KindAudio, tracks[0], tracks[0].Close), nil
}

func (s *DeviceSource) OpenCamera(ctx context.Context) (media.Track, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			// MJPEG nodes on some webcams emit frames the VP8 encoder rejects.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		},
		Codec: s.selector,
	})
	if err != nil {
		return nil, err
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("capture: no video track")
	}
	closeExtra(tracks[1:])
	return media.NewLocalTrack(media.KindVideo, tracks[0], tracks[0].Close), nil
}

func closeExtra(tracks []mediadevices.Track) {
	for _, t := range tracks {
		_ = t.Close()
	}
}
