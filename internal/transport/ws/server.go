package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"orcasim.ai/internal/protocol"
	"orcasim.ai/internal/sim/glyph"
	"orcasim.ai/internal/sim/world"
)

type Options struct {
	// MaxClients caps concurrent sessions; 0 means unlimited.
	MaxClients int
	// QueueSize is the default per-session frame queue when HELLO does not ask for one.
	QueueSize int
}

type Server struct {
	world *world.World
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader
	clients  atomic.Int64
}

func NewServer(w *world.World, logger *log.Logger, opts Options) *Server {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 8
	}
	s := &Server{
		world: w,
		log:   logger,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// Clients returns the number of connected sessions.
func (s *Server) Clients() int { return int(s.clients.Load()) }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := s.clients.Add(1)
		defer s.clients.Add(-1)
		if s.opts.MaxClients > 0 && int(n) > s.opts.MaxClients {
			_ = writeJSON(conn, protocol.NewError(protocol.ErrWorldBusy, "too many sessions"))
			return
		}

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// ERROR replies from the reader go through the writer goroutine; gorilla allows one writer.
		replies := make(chan []byte, 8)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-replies:
					if err := writeRaw(conn, b); err != nil {
						cancel()
						return
					}
				case b, ok := <-out:
					if !ok {
						cancel()
						_ = conn.Close()
						return
					}
					if err := writeRaw(conn, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		reply := func(code, msg string) {
			b, _ := json.Marshal(protocol.NewError(code, msg))
			select {
			case replies <- b:
			default:
			}
		}

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				reply(protocol.ErrProtoBadRequest, "malformed json")
				continue
			}
			if base.Type != protocol.TypeEdit {
				reply(protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
				continue
			}
			if err := protocol.Validate(protocol.TypeEdit, msg); err != nil {
				reply(protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			var edit protocol.EditMsg
			if err := json.Unmarshal(msg, &edit); err != nil {
				reply(protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			if edit.ProtocolVersion != protocol.Version {
				reply(protocol.ErrProtoVersion, "unsupported protocol_version "+edit.ProtocolVersion)
				continue
			}
			e, code, why := s.toEdit(sessionID, edit)
			if code != "" {
				reply(code, why)
				continue
			}
			select {
			case s.world.Edits() <- e:
			default:
				reply(protocol.ErrWorldBusy, "edit queue full")
			}
		}

		// Cleanup.
		select {
		case s.world.ObserverLeave() <- sessionID:
		case <-time.After(time.Second):
			s.log.Printf("ws: leave for %s dropped", sessionID)
		}
	}
}

// toEdit checks an EDIT against the grid shape and the alphabet.
func (s *Server) toEdit(sessionID string, m protocol.EditMsg) (world.Edit, string, string) {
	cfg := s.world.Config()
	if m.Y < 0 || m.Y >= cfg.Height || m.X < 0 || m.X >= cfg.Width {
		return world.Edit{}, protocol.ErrInvalidTarget, "cell outside the grid"
	}
	if len(m.Glyph) != 1 || !glyph.Valid(m.Glyph[0]) {
		return world.Edit{}, protocol.ErrInvalidGlyph, "glyph not in alphabet"
	}
	return world.Edit{Y: m.Y, X: m.X, Glyph: m.Glyph[0], Source: sessionID}, "", ""
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, "unsupported protocol_version "+hello.ProtocolVersion))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = s.opts.QueueSize
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)
	sessionID = "S" + uuid.NewString()

	cfg := s.world.Config()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldID:         cfg.ID,
		Tick:            s.world.CurrentTick(),
		WorldParams: protocol.WorldParams{
			TickRateHz:      cfg.TickRateHz,
			Width:           cfg.Width,
			Height:          cfg.Height,
			FrameEveryTicks: cfg.FrameEveryTicks,
		},
		Operators: world.OperatorTable(),
	}
	// WELCOME goes out before the session is registered so it always precedes the first FRAME.
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}

	s.world.ObserverJoin() <- world.ObserverJoinRequest{
		SessionID: sessionID,
		Out:       out,
		SendMarks: hello.Capabilities.Marks,
	}
	s.log.Printf("ws: session %s joined (client=%s)", sessionID, hello.ClientName)
	return sessionID, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeRaw(conn, b)
}

func writeRaw(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
