package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"biomelevel.ai/internal/level/world"
	"biomelevel.ai/internal/persistence/store"
	"biomelevel.ai/internal/protocol"
	"biomelevel.ai/internal/tuning"
)

type Server struct {
	store *store.Store
	log   *log.Logger

	maxMessage   int64
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxList      int

	upgrader websocket.Upgrader
}

func NewServer(st *store.Store, tune tuning.Tuning, logger *log.Logger) *Server {
	s := &Server{
		store:        st,
		log:          logger,
		maxMessage:   tune.Server.MaxMessageBytes,
		readTimeout:  time.Duration(tune.Server.ReadTimeoutSecs) * time.Second,
		writeTimeout: time.Duration(tune.Server.WriteTimeoutSecs) * time.Second,
		maxList:      tune.Server.MaxListLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 10 * time.Second
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if s.maxMessage > 0 {
			conn.SetReadLimit(s.maxMessage)
		}
		remote := r.RemoteAddr

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		out := make(chan []byte, 16)

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			if s.readTimeout > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			}
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Printf("read %s: %v", remote, err)
				}
				break
			}
			resp := s.handle(ctx, msg, remote)
			b, err := json.Marshal(resp)
			if err != nil {
				s.log.Printf("marshal %T: %v", resp, err)
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		cancel()
		<-done
	}
}

// handle answers one request message. Every request gets exactly one reply.
func (s *Server) handle(ctx context.Context, msg []byte, remote string) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewError("", protocol.ErrBadRequest, "bad json: "+err.Error())
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewError(base.ReqID, protocol.ErrBadRequest, fmt.Sprintf("protocol_version %q, want %q", base.ProtocolVersion, protocol.Version))
	}

	switch base.Type {
	case protocol.TypeSaveLevel:
		var req protocol.SaveLevelMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return errorFor(base.ReqID, err, protocol.ErrBadRequest)
		}
		return s.saveLevel(ctx, req, remote)
	case protocol.TypeLoadLevel:
		var req protocol.LoadLevelMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return errorFor(base.ReqID, err, protocol.ErrBadRequest)
		}
		return s.loadLevel(ctx, req, remote)
	case protocol.TypeListLevels:
		var req protocol.ListLevelsMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return errorFor(base.ReqID, err, protocol.ErrBadRequest)
		}
		return s.listLevels(ctx, req)
	default:
		return protocol.NewError(base.ReqID, protocol.ErrBadRequest, fmt.Sprintf("unknown message type %q", base.Type))
	}
}

func (s *Server) saveLevel(ctx context.Context, req protocol.SaveLevelMsg, remote string) any {
	if len(req.World) == 0 {
		return protocol.NewError(req.ReqID, protocol.ErrBadRequest, "missing world")
	}
	var c world.Container
	if err := json.Unmarshal(req.World, &c); err != nil {
		return errorFor(req.ReqID, err, protocol.ErrBadRequest)
	}
	saved, err := s.store.Save(ctx, &c, remote)
	if err != nil {
		return errorFor(req.ReqID, err, protocol.ErrInternal)
	}
	s.log.Printf("saved %q digest=%s layers=%d from %s", saved.Header.Name, saved.Header.Digest, saved.Header.Layers, remote)
	return protocol.SavedMsg{
		Type:            protocol.TypeSaved,
		ProtocolVersion: protocol.Version,
		ReqID:           req.ReqID,
		Name:            saved.Header.Name,
		Digest:          saved.Header.Digest,
		Layers:          saved.Header.Layers,
		Revision:        saved.Revision,
	}
}

func (s *Server) loadLevel(ctx context.Context, req protocol.LoadLevelMsg, remote string) any {
	h, c, err := s.store.Load(ctx, req.Name, remote)
	if err != nil {
		return errorFor(req.ReqID, err, protocol.ErrInternal)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return errorFor(req.ReqID, err, protocol.ErrInternal)
	}
	return protocol.LevelMsg{
		Type:            protocol.TypeLevel,
		ProtocolVersion: protocol.Version,
		ReqID:           req.ReqID,
		Digest:          h.Digest,
		World:           raw,
	}
}

func (s *Server) listLevels(ctx context.Context, req protocol.ListLevelsMsg) any {
	limit := req.Limit
	if limit <= 0 || (s.maxList > 0 && limit > s.maxList) {
		limit = s.maxList
	}
	rows, err := s.store.List(ctx, limit)
	if err != nil {
		return errorFor(req.ReqID, err, protocol.ErrInternal)
	}
	levels := make([]protocol.LevelSummary, 0, len(rows))
	for _, r := range rows {
		levels = append(levels, protocol.LevelSummary{
			Name:      r.Name,
			Digest:    r.Digest,
			WorldSize: r.WorldSize,
			Layers:    r.Layers,
			SavedAt:   r.SavedAt,
		})
	}
	return protocol.LevelsMsg{
		Type:            protocol.TypeLevels,
		ProtocolVersion: protocol.Version,
		ReqID:           req.ReqID,
		Levels:          levels,
	}
}

func errorFor(reqID string, err error, fallback string) protocol.ErrorMsg {
	code := protocol.CodeFor(err, "")
	if code == "" {
		code = fallback
		if errors.Is(err, store.ErrBadName) || errors.Is(err, store.ErrTooLarge) || errors.Is(err, store.ErrInvalid) {
			code = protocol.ErrBadRequest
		}
	}
	return protocol.NewError(reqID, code, err.Error())
}
