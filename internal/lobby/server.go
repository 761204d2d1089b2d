// Package lobby implements the lobby service: player sessions, rooms,
// invitations, game server orchestration, downloads, and reviews. All
// persistent state lives in the data store; this package owns only the
// transient session tables, which are lost on restart.
package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/udisondev/gamehub/internal/bundle"
	"github.com/udisondev/gamehub/internal/config"
	"github.com/udisondev/gamehub/internal/dsclient"
	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
)

// resp is the wire shape of every lobby reply.
type resp = map[string]any

// Session is one player connection. UserID is zero until login binds it.
type Session struct {
	conn     net.Conn
	userID   int
	username string
}

// Invitation is one pending transient invitation shown by list_invitations.
type Invitation struct {
	RoomID   int    `json:"roomId"`
	RoomName string `json:"roomName"`
	Host     string `json:"host"`
	GameName string `json:"gameName"`
}

// match tracks one live game server owned by a room.
type match struct {
	port    int
	secret  string
	started bool // subprocess actually spawned
	ended   bool // game_ended callback consumed
}

// Server is the lobby service.
type Server struct {
	cfg     config.Lobby
	ds      *dsclient.Pool
	bundles *bundle.Repository

	// mu guards every table below. Data store calls are made with mu
	// released; the lock is retaken to commit local changes.
	mu          sync.Mutex
	onlineUsers map[int]*Session
	userNames   map[int]string
	roomMembers map[int]map[int]struct{}
	invitations map[int][]Invitation
	gameServers map[int]*match
	usedPorts   map[int]struct{}

	listener net.Listener
	lnMu     sync.Mutex
}

// NewServer creates a lobby service over a data store pool and bundle tree.
func NewServer(cfg config.Lobby, ds *dsclient.Pool, bundles *bundle.Repository) *Server {
	return &Server{
		cfg:         cfg,
		ds:          ds,
		bundles:     bundles,
		onlineUsers: make(map[int]*Session),
		userNames:   make(map[int]string),
		roomMembers: make(map[int]map[int]struct{}),
		invitations: make(map[int][]Invitation),
		gameServers: make(map[int]*match),
		usedPorts:   make(map[int]struct{}),
	}
}

// Addr returns the listen address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close shuts down the listener.
func (s *Server) Close() error {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run purges stale rooms, then listens on the configured address until ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.purgeRooms(ctx); err != nil {
		return fmt.Errorf("purging stale rooms: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.lnMu.Lock()
	s.listener = ln
	s.lnMu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on a ready listener. Split from Run so tests
// can inject a loopback listener (and skip the startup purge).
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("lobby server started", "address", ln.Addr())
		s.acceptLoop(ctx, &wg, ln)
	}()
	wg.Wait()

	return nil
}

func (s *Server) acceptLoop(ctx context.Context, wg *sync.WaitGroup, ln net.Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Error("failed to accept connection", "error", err)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handleConnection(ctx, conn)
			}()
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	done := make(chan struct{})
	defer close(done)
	defer conn.Close()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sess := &Session{conn: conn}
	remote := conn.RemoteAddr()
	slog.Debug("lobby connection", "remote", remote)

	defer s.handleDisconnect(ctx, sess)

	for {
		raw, err := protocol.ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Warn("closing connection on protocol error", "remote", remote, "err", err)
			}
			return
		}

		reply := s.dispatch(ctx, sess, raw)
		if reply == nil {
			// command wrote its own frames (file streaming)
			continue
		}
		if err := protocol.WriteMessage(conn, reply); err != nil {
			slog.Warn("failed to write response", "remote", remote, "err", err)
			return
		}
	}
}

// dispatch decodes one framed command and routes it. Unknown commands get a
// wire error; malformed payloads never touch shared state.
func (s *Server) dispatch(ctx context.Context, sess *Session, raw json.RawMessage) resp {
	var env struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return errResp("invalid request: %v", err)
	}

	switch env.Command {
	case "register":
		return s.register(ctx, raw)
	case "login":
		return s.login(ctx, sess, raw)
	case "logout":
		return s.logout(ctx, sess)
	case "list_users":
		return s.listUsers(ctx)
	case "list_rooms":
		return s.listRooms(ctx)
	case "create_room":
		return s.createRoom(ctx, sess, raw)
	case "join_room":
		return s.joinRoom(ctx, sess, raw, false)
	case "leave_room":
		return s.leaveRoom(sess, raw)
	case "invite_user":
		return s.inviteUser(ctx, sess, raw)
	case "list_invitations":
		return s.listInvitations(sess)
	case "accept_invitation":
		return s.acceptInvitation(ctx, sess, raw)
	case "start_game":
		return s.startGame(ctx, sess, raw)
	case "spectate_game":
		return s.spectateGame(ctx, sess, raw)
	case "check_room_status":
		return s.checkRoomStatus(ctx, raw)
	case "game_ended":
		return s.gameEnded(ctx, raw)
	case "browse_store":
		return s.browseStore(ctx)
	case "get_game_by_name":
		return s.getGameByName(ctx, raw)
	case "download_game":
		return s.downloadGame(ctx, sess, raw)
	case "submit_review":
		return s.submitReview(ctx, raw)
	case "check_play_history":
		return s.checkPlayHistory(ctx, raw)
	default:
		return errResp("Unknown command: %s", env.Command)
	}
}

func errResp(format string, args ...any) resp {
	return resp{"status": store.StatusError, "message": fmt.Sprintf(format, args...)}
}

func okResp(message string) resp {
	return resp{"status": store.StatusSuccess, "message": message}
}
