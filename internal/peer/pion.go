package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"telehealth-platform/internal/media"
	"telehealth-platform/pkg/logger"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// DefaultICEServers are public STUN servers used for discovery only.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// CodecRegistrar registers the codecs the local media source produces.
type CodecRegistrar interface {
	PopulateMediaEngine(m *webrtc.MediaEngine) error
}

type Config struct {
	ICEServers []string

	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration

	// Codecs defaults to pion's default codec set.
	Codecs CodecRegistrar
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	out := c
	if out.ICEServers == nil {
		out.ICEServers = DefaultICEServers
	}
	if out.DisconnectedTimeout <= 0 {
		out.DisconnectedTimeout = 10 * time.Second
	}
	if out.FailedTimeout <= 0 {
		out.FailedTimeout = 30 * time.Second
	}
	if out.KeepAliveInterval <= 0 {
		out.KeepAliveInterval = 2 * time.Second
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// PionFactory builds pion peer connections sharing one configured API.
type PionFactory struct {
	api *webrtc.API
	cfg Config
}

func NewPionFactory(cfg Config) (*PionFactory, error) {
	cfg = cfg.withDefaults()

	m := &webrtc.MediaEngine{}
	if cfg.Codecs != nil {
		if err := cfg.Codecs.PopulateMediaEngine(m); err != nil {
			return nil, fmt.Errorf("peer: register codecs: %w", err)
		}
	} else if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("peer: register codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("peer: register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: logger.NewPionFactory(cfg.Logger)}
	se.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, cfg.KeepAliveInterval)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)
	return &PionFactory{api: api, cfg: cfg}, nil
}

func (f *PionFactory) Create(ctx context.Context) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	servers := make([]webrtc.ICEServer, 0, len(f.cfg.ICEServers))
	for _, u := range f.cfg.ICEServers {
		if u = strings.TrimSpace(u); u != "" {
			servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
		}
	}
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("peer: new connection: %w", err)
	}
	c := &pionConnection{
		pc:      pc,
		log:     f.cfg.Logger,
		senders: map[media.TrackKind]*webrtc.RTPSender{},
		locals:  map[media.TrackKind]webrtc.TrackLocal{},
	}
	c.install()
	return c, nil
}

type pionConnection struct {
	pc  *webrtc.PeerConnection
	log *slog.Logger

	mu             sync.Mutex
	senders        map[media.TrackKind]*webrtc.RTPSender
	locals         map[media.TrackKind]webrtc.TrackLocal
	onCandidate    func(webrtc.ICECandidateInit)
	onTrack        func(media.RemoteTrack)
	onConnectivity func(Connectivity)
	closed         bool
}

func (c *pionConnection) install() {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onCandidate
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		rt := media.RemoteTrack{
			ID:       tr.ID(),
			StreamID: tr.StreamID(),
			Kind:     remoteKind(tr.Kind()),
			Codec:    tr.Codec().MimeType,
		}
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(rt)
		}
		// Drain so the interceptors keep running; ends when the connection closes.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := tr.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.mu.Lock()
		fn := c.onConnectivity
		c.mu.Unlock()
		if fn != nil {
			fn(FromPion(s))
		}
	})
}

func remoteKind(k webrtc.RTPCodecType) media.TrackKind {
	if k == webrtc.RTPCodecTypeVideo {
		return media.KindVideo
	}
	return media.KindAudio
}

func (c *pionConnection) AddLocalTracks(h *media.Handle) error {
	if h == nil {
		return errors.New("peer: nil media handle")
	}
	for _, t := range h.Tracks() {
		sender, err := c.pc.AddTrack(t.Local())
		if err != nil {
			return fmt.Errorf("peer: add %s track: %w", t.Kind(), err)
		}
		c.mu.Lock()
		c.senders[t.Kind()] = sender
		c.locals[t.Kind()] = t.Local()
		c.mu.Unlock()

		// RTCP must be read for NACK/PLI interceptors to work.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (c *pionConnection) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("peer: create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("peer: set local offer: %w", err)
	}
	return offer, nil
}

func (c *pionConnection) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("peer: create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("peer: set local answer: %w", err)
	}
	return answer, nil
}

func (c *pionConnection) SetRemoteDescription(ctx context.Context, sd webrtc.SessionDescription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("peer: set remote %s: %w", sd.Type, err)
	}
	return nil
}

func (c *pionConnection) AddICECandidate(cand webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(cand)
}

func (c *pionConnection) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = fn
}

func (c *pionConnection) OnRemoteTrack(fn func(media.RemoteTrack)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *pionConnection) OnConnectivityChange(fn func(Connectivity)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectivity = fn
}

func (c *pionConnection) SetSending(kind media.TrackKind, enabled bool) error {
	c.mu.Lock()
	sender, ok := c.senders[kind]
	local := c.locals[kind]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if enabled {
		return sender.ReplaceTrack(local)
	}
	return sender.ReplaceTrack(nil)
}

func (c *pionConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.onCandidate = nil
	c.onTrack = nil
	c.onConnectivity = nil
	c.mu.Unlock()
	return c.pc.Close()
}
