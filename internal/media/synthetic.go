package media

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// opusSilence is a single 20ms Opus silence frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const silenceFrame = 20 * time.Millisecond

// SyntheticSource produces pion sample tracks without touching capture devices.
// It backs server-side participants and tests.
type SyntheticSource struct {
	// StreamID groups the produced tracks; a random id is used when empty.
	StreamID string
	// NoCamera makes OpenCamera fail, as on a host without a camera.
	NoCamera bool
	// Silence writes Opus silence on the audio track while it is enabled.
	Silence bool
}

func (s SyntheticSource) streamID() string {
	if s.StreamID != "" {
		return s.StreamID
	}
	return "synthetic-" + uuid.NewString()
}

func (s SyntheticSource) OpenMicrophone(ctx context.Context) (Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio-"+uuid.NewString(),
		s.streamID(),
	)
	if err != nil {
		return nil, err
	}
	if !s.Silence {
		return NewLocalTrack(KindAudio, local, nil), nil
	}

	p := &silencePump{done: make(chan struct{})}
	t := NewLocalTrack(KindAudio, local, p.stop)
	p.wg.Add(1)
	go p.run(local, t)
	return t, nil
}

func (s SyntheticSource) OpenCamera(ctx context.Context) (Track, error) {
	if s.NoCamera {
		return nil, ErrCameraUnavailable
	}
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video-"+uuid.NewString(),
		s.streamID(),
	)
	if err != nil {
		return nil, err
	}
	return NewLocalTrack(KindVideo, local, nil), nil
}

// PopulateMediaEngine registers the codecs the synthetic tracks use.
func (s SyntheticSource) PopulateMediaEngine(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

type silencePump struct {
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (p *silencePump) run(local *webrtc.TrackLocalStaticSample, t Track) {
	defer p.wg.Done()
	ticker := time.NewTicker(silenceFrame)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			// Unbound tracks drop samples; the error is not interesting here.
			_ = local.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: silenceFrame})
		}
	}
}

func (p *silencePump) stop() error {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
	return nil
}
