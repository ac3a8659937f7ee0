package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var _ WakeSource = (*StreamSource)(nil)

// streamFrame is one message of a streaming classifier: either a full
// score table or a single detected wake word.
type streamFrame struct {
	Type       string             `json:"type"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	WakeWord   string             `json:"wake_word,omitempty"`
	Confidence float64            `json:"confidence,omitempty"`
}

func (f streamFrame) classification() (Classification, bool) {
	switch f.Type {
	case "classification":
		if len(f.Scores) == 0 {
			return nil, false
		}
		return Classification(f.Scores), true
	case "wake_word":
		if f.WakeWord == "" {
			return nil, false
		}
		return Classification{f.WakeWord: f.Confidence}, true
	}
	return nil, false
}

type streamConn struct {
	conn   *websocket.Conn
	frames chan streamFrame
	quit   chan struct{}
	done   chan struct{}
}

// StreamSource reads wake words from a classifier served over websocket.
// Closing the connection releases the remote microphone.
type StreamSource struct {
	endpoint    string
	dialer      websocket.Dialer
	maxRestarts int
	retryDelay  time.Duration
	log         zerolog.Logger

	mu  sync.Mutex
	cur *streamConn
}

func NewStreamSource(endpoint string, cfg RunnerConfig, log zerolog.Logger) *StreamSource {
	delay := cfg.PollInterval
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &StreamSource{
		endpoint:    endpoint,
		dialer:      websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		maxRestarts: cfg.MaxRestarts,
		retryDelay:  delay,
		log:         log,
	}
}

func (s *StreamSource) Start(ctx context.Context) error {
	_, err := s.connect(ctx)
	return err
}

func (s *StreamSource) connect(ctx context.Context) (*streamConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		select {
		case <-s.cur.done:
			s.cur.conn.Close()
			s.cur = nil
		default:
			return s.cur, nil
		}
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	sc := &streamConn{
		conn:   conn,
		frames: make(chan streamFrame, 32),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.read(sc)
	s.cur = sc

	s.log.Info().Str("endpoint", s.endpoint).Msg("classifier stream connected")
	return sc, nil
}

func (s *StreamSource) read(sc *streamConn) {
	defer close(sc.done)
	for {
		_, msg, err := sc.conn.ReadMessage()
		if err != nil {
			select {
			case <-sc.quit:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Warn().Err(err).Msg("classifier stream read failed")
				}
			}
			return
		}

		var f streamFrame
		if err := json.Unmarshal(msg, &f); err != nil {
			s.log.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}

		select {
		case sc.frames <- f:
		case <-sc.quit:
			return
		}
	}
}

// Next waits for a frame whose top label is in vocab. A dropped connection
// is redialed until the restart budget is spent.
func (s *StreamSource) Next(ctx context.Context, vocab Vocabulary) (WakeEvent, error) {
	attempts := 0
	var lastErr error

	for {
		sc, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return WakeEvent{}, ctx.Err()
			}
			attempts++
			lastErr = err
			if attempts > s.maxRestarts {
				return WakeEvent{}, fmt.Errorf("%w: %d dial attempts failed: %v", ErrClassifierUnavailable, attempts, lastErr)
			}
			s.log.Warn().Err(err).Int("attempt", attempts).Msg("classifier stream unavailable, retrying")
			select {
			case <-ctx.Done():
				return WakeEvent{}, ctx.Err()
			case <-time.After(s.retryDelay):
			}
			continue
		}

		ev, err := s.await(ctx, sc, vocab, &attempts)
		if err != nil {
			return WakeEvent{}, err
		}
		if ev != nil {
			return *ev, nil
		}

		attempts++
		lastErr = fmt.Errorf("connection closed")
		if attempts > s.maxRestarts {
			return WakeEvent{}, fmt.Errorf("%w: stream closed %d times: %v", ErrClassifierUnavailable, attempts, lastErr)
		}
	}
}

// await consumes frames until a match, the end of the connection, or ctx.
func (s *StreamSource) await(ctx context.Context, sc *streamConn, vocab Vocabulary, attempts *int) (*WakeEvent, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-sc.done:
			// Frames may still be buffered behind the closed connection.
			select {
			case f := <-sc.frames:
				if ev := s.accept(f, vocab, sc, attempts); ev != nil {
					return ev, nil
				}
				continue
			default:
			}
			return nil, nil
		case f := <-sc.frames:
			if ev := s.accept(f, vocab, sc, attempts); ev != nil {
				return ev, nil
			}
		}
	}
}

func (s *StreamSource) accept(f streamFrame, vocab Vocabulary, sc *streamConn, attempts *int) *WakeEvent {
	c, ok := f.classification()
	if !ok {
		return nil
	}
	*attempts = 0

	ev, hit := vocab.Accept(c)
	if !hit {
		label, score := c.Top()
		s.log.Debug().Str("label", label).Float64("confidence", score).Str("vocabulary", vocab.Name).Msg("ignoring classification")
		return nil
	}

	// Frames queued before the match describe audio that is already handled.
	for drained := false; !drained; {
		select {
		case <-sc.frames:
		default:
			drained = true
		}
	}

	s.log.Info().Str("label", ev.Label).Float64("confidence", ev.Confidence).Msg("wake word detected")
	return &ev
}

// Stop closes the stream. It is safe to call when not connected.
func (s *StreamSource) Stop() error {
	s.mu.Lock()
	sc := s.cur
	s.cur = nil
	s.mu.Unlock()

	if sc == nil {
		return nil
	}

	close(sc.quit)
	_ = sc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := sc.conn.Close()
	<-sc.done
	if err != nil {
		return fmt.Errorf("close classifier stream: %w", err)
	}
	return nil
}
