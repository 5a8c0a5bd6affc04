package rtc

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	errConnClosed   = errors.New("connection closed")
)

// Signaling message types.
const (
	msgJoin         = "join"
	msgMute         = "mute"
	msgOffer        = "offer"
	msgAnswer       = "answer"
	msgCandidate    = "candidate"
	msgRoomState    = "room_state"
	msgMemberJoined = "member_joined"
	msgMemberLeft   = "member_left"
	msgSpeaking     = "speaking"
	msgError        = "error"
	msgKicked       = "kicked"
	msgPing         = "ping"
	msgPong         = "pong"
)

// Member is a roster entry as the voice server describes it. Metadata is an
// opaque JSON string set by the member's own credential.
type Member struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Metadata string    `json:"metadata,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// Message is the signaling envelope in both directions.
type Message struct {
	Type string `json:"type"`

	Room    string   `json:"room,omitempty"`
	Self    string   `json:"self,omitempty"`
	Members []Member `json:"members,omitempty"`
	Member  *Member  `json:"member,omitempty"`
	ID      string   `json:"id,omitempty"`

	Speaking *bool `json:"speaking,omitempty"`
	Muted    *bool `json:"muted,omitempty"`

	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`

	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func candidateMessage(ci webrtc.ICECandidateInit) Message {
	return Message{
		Type:          msgCandidate,
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	}
}

func (m Message) candidate() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     m.Candidate,
		SDPMid:        m.SDPMid,
		SDPMLineIndex: m.SDPMLineIndex,
	}
}

// wsConn is one signaling websocket with a buffered, non-blocking send side.
type wsConn struct {
	conn      *websocket.Conn
	send      chan []byte
	writeWait time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func newWSConn(conn *websocket.Conn, writeWait time.Duration) *wsConn {
	return &wsConn{
		conn:      conn,
		send:      make(chan []byte, 32),
		writeWait: writeWait,
		done:      make(chan struct{}),
	}
}

func (c *wsConn) trySend(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

// close is idempotent. A final close frame is attempted before the socket drops.
func (c *wsConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeWait))
	_ = c.conn.Close()
}

func (c *wsConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *wsConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				log.Error().Err(err).Str("module", "rtc.signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !c.isClosed() {
					log.Error().Err(err).Str("module", "rtc.signal").Msg("writePump write error")
				}
				return
			}
		}
	}
}

// readPump decodes messages until the socket fails, then reports the error
// once through onClose. Messages that do not parse are skipped.
func (c *wsConn) readPump(handle func(Message), onClose func(error)) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			onClose(err)
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "rtc.signal").Msg("bad json")
			continue
		}
		handle(msg)
	}
}
