package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
)

// Defaults for the robot camera stream.
const (
	DefaultProducer     = "reachymini"
	DefaultDecodeEvery  = 200 * time.Millisecond
	DefaultTrackTimeout = 15 * time.Second
)

// ErrProducerNotFound is returned when the signalling server lists no
// producer with the requested name.
var ErrProducerNotFound = errors.New("source: producer not found")

// signalMsg is a GStreamer webrtcsink signalling message.
type signalMsg struct {
	Type      string      `json:"type"`
	PeerID    string      `json:"peerId,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	Producers []producer  `json:"producers,omitempty"`
	SDP       *sdpPayload `json:"sdp,omitempty"`
	ICE       *icePayload `json:"ice,omitempty"`
}

type producer struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type icePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// WebRTC receives the robot camera's H264 track and keeps the most
// recently decoded picture.
type WebRTC struct {
	signallingURL string
	producerName  string
	decodeEvery   time.Duration
	trackTimeout  time.Duration
	dialer        *websocket.Dialer
	decoder       *h264Decoder
	logger        *slog.Logger

	wsMu sync.Mutex
	ws   *websocket.Conn
	pc   *webrtc.PeerConnection

	peerID     string
	producerID string

	sessionMu sync.RWMutex
	sessionID string

	frameMu sync.RWMutex
	frame   image.Image

	trackReady chan struct{}
	decoding   atomic.Bool
	closed     atomic.Bool
	cancel     context.CancelFunc
}

// WebRTCOption configures a WebRTC source.
type WebRTCOption func(*WebRTC)

// WithWebRTCLogger sets the structured logger.
func WithWebRTCLogger(l *slog.Logger) WebRTCOption {
	return func(w *WebRTC) { w.logger = l }
}

// WithDecodeEvery sets how often the buffered stream is decoded.
func WithDecodeEvery(d time.Duration) WebRTCOption {
	return func(w *WebRTC) { w.decodeEvery = d }
}

// WithTrackTimeout bounds how long Open waits for the video track.
func WithTrackTimeout(d time.Duration) WebRTCOption {
	return func(w *WebRTC) { w.trackTimeout = d }
}

// NewWebRTC creates a source for the producer named producerName on the
// signalling server at signallingURL.
func NewWebRTC(signallingURL, producerName string, opts ...WebRTCOption) *WebRTC {
	if producerName == "" {
		producerName = DefaultProducer
	}
	w := &WebRTC{
		signallingURL: signallingURL,
		producerName:  producerName,
		decodeEvery:   DefaultDecodeEvery,
		trackTimeout:  DefaultTrackTimeout,
		dialer:        &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		decoder:       newH264Decoder(),
		logger:        slog.Default(),
		trackReady:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open negotiates the session and waits for the video track.
func (w *WebRTC) Open(ctx context.Context) error {
	ws, _, err := w.dialer.DialContext(ctx, w.signallingURL, nil)
	if err != nil {
		return fmt.Errorf("source: signalling connect: %w", err)
	}
	w.ws = ws

	if err := w.handshake(); err != nil {
		ws.Close()
		return err
	}
	w.logger.Info("producer found", "peer", short(w.peerID), "producer", short(w.producerID))

	if err := w.createPeerConnection(); err != nil {
		ws.Close()
		return fmt.Errorf("source: peer connection: %w", err)
	}

	if err := w.send(signalMsg{Type: "startSession", PeerID: w.producerID}); err != nil {
		w.Close()
		return fmt.Errorf("source: start session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.readSignalling(runCtx)

	timer := time.NewTimer(w.trackTimeout)
	defer timer.Stop()
	select {
	case <-w.trackReady:
		w.logger.Info("video track connected")
		return nil
	case <-timer.C:
		w.Close()
		return fmt.Errorf("source: timeout waiting for video track")
	case <-ctx.Done():
		w.Close()
		return ctx.Err()
	}
}

// handshake reads the welcome and finds the producer.
func (w *WebRTC) handshake() error {
	welcome, err := w.read(10 * time.Second)
	if err != nil {
		return fmt.Errorf("source: welcome: %w", err)
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("source: expected welcome, got %q", welcome.Type)
	}
	w.peerID = welcome.PeerID

	if err := w.send(signalMsg{Type: "list"}); err != nil {
		return fmt.Errorf("source: list producers: %w", err)
	}
	list, err := w.read(5 * time.Second)
	if err != nil {
		return fmt.Errorf("source: list producers: %w", err)
	}
	for _, p := range list.Producers {
		if p.Meta["name"] == w.producerName {
			w.producerID = p.ID
			return nil
		}
	}
	return fmt.Errorf("%w: %q among %d producers", ErrProducerNotFound, w.producerName, len(list.Producers))
}

func (w *WebRTC) read(timeout time.Duration) (signalMsg, error) {
	var msg signalMsg
	w.ws.SetReadDeadline(time.Now().Add(timeout))
	defer w.ws.SetReadDeadline(time.Time{})
	_, data, err := w.ws.ReadMessage()
	if err != nil {
		return msg, err
	}
	err = json.Unmarshal(data, &msg)
	return msg, err
}

func (w *WebRTC) send(msg signalMsg) error {
	w.wsMu.Lock()
	defer w.wsMu.Unlock()
	return w.ws.WriteJSON(msg)
}

func (w *WebRTC) createPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	w.pc = pc

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		w.logger.Info("track received", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go w.readTrack(track)
		}
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		w.sessionMu.RLock()
		session := w.sessionID
		w.sessionMu.RUnlock()
		if session == "" {
			return
		}
		init := c.ToJSON()
		w.send(signalMsg{
			Type:      "peer",
			SessionID: session,
			ICE: &icePayload{
				Candidate:     init.Candidate,
				SDPMid:        init.SDPMid,
				SDPMLineIndex: init.SDPMLineIndex,
			},
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		w.logger.Debug("peer connection state", "state", state.String())
	})
	return nil
}

func (w *WebRTC) readSignalling(ctx context.Context) {
	for ctx.Err() == nil {
		_, data, err := w.ws.ReadMessage()
		if err != nil {
			if !w.closed.Load() {
				w.logger.Warn("signalling read failed", "error", err)
			}
			return
		}

		var msg signalMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logger.Debug("bad signalling message", "error", err)
			continue
		}

		switch msg.Type {
		case "sessionStarted":
			w.sessionMu.Lock()
			w.sessionID = msg.SessionID
			w.sessionMu.Unlock()
		case "peer":
			w.handlePeer(msg)
		case "endSession":
			w.logger.Info("session ended by producer")
			return
		}
	}
}

func (w *WebRTC) handlePeer(msg signalMsg) {
	if msg.SDP != nil && msg.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP.SDP}
		if err := w.pc.SetRemoteDescription(offer); err != nil {
			w.logger.Warn("set remote description failed", "error", err)
			return
		}
		answer, err := w.pc.CreateAnswer(nil)
		if err != nil {
			w.logger.Warn("create answer failed", "error", err)
			return
		}
		if err := w.pc.SetLocalDescription(answer); err != nil {
			w.logger.Warn("set local description failed", "error", err)
			return
		}
		w.send(signalMsg{
			Type:      "peer",
			SessionID: msg.SessionID,
			SDP:       &sdpPayload{Type: answer.Type.String(), SDP: answer.SDP},
		})
	}

	if msg.ICE != nil {
		if err := w.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     msg.ICE.Candidate,
			SDPMid:        msg.ICE.SDPMid,
			SDPMLineIndex: msg.ICE.SDPMLineIndex,
		}); err != nil {
			w.logger.Debug("add ICE candidate failed", "error", err)
		}
	}
}

func (w *WebRTC) readTrack(track *webrtc.TrackRemote) {
	select {
	case w.trackReady <- struct{}{}:
	default:
	}

	var asm assembler
	lastDecode := time.Time{}
	for !w.closed.Load() {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		gop, ok := asm.push(pkt)
		if !ok || time.Since(lastDecode) < w.decodeEvery {
			continue
		}
		if !w.decoding.CompareAndSwap(false, true) {
			continue
		}
		lastDecode = time.Now()
		go w.decode(gop)
	}
}

func (w *WebRTC) decode(gop []byte) {
	defer w.decoding.Store(false)
	img, err := w.decoder.Decode(context.Background(), gop)
	if err != nil {
		if !errors.Is(err, ErrNoFrame) {
			w.logger.Debug("decode failed", "error", err)
		}
		return
	}
	w.frameMu.Lock()
	w.frame = img
	w.frameMu.Unlock()
}

// Frame returns the latest decoded picture.
func (w *WebRTC) Frame() (image.Image, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	w.frameMu.RLock()
	defer w.frameMu.RUnlock()
	if w.frame == nil {
		return nil, ErrNoFrame
	}
	return w.frame, nil
}

// Dimensions returns the size of the latest picture.
func (w *WebRTC) Dimensions() (int, int) {
	w.frameMu.RLock()
	defer w.frameMu.RUnlock()
	if w.frame == nil {
		return 0, 0
	}
	b := w.frame.Bounds()
	return b.Dx(), b.Dy()
}

// Kind implements Source.
func (w *WebRTC) Kind() string { return KindWebRTC }

// Close tears down the session.
func (w *WebRTC) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	if w.cancel != nil {
		w.cancel()
	}
	var errs []error
	if w.pc != nil {
		errs = append(errs, w.pc.Close())
	}
	if w.ws != nil {
		errs = append(errs, w.ws.Close())
	}
	return errors.Join(errs...)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
