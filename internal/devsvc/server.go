// Package devsvc implements the developer service: developer accounts, game
// uploads and updates, delisting, and catalog listings. Game bundles land in
// the shared bundle tree; catalog rows live in the data store.
package devsvc

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

type resp = map[string]any

// Server is the developer service.
type Server struct {
	cfg     config.Developer
	ds      *dsclient.Pool
	bundles *bundle.Repository

	listener net.Listener
	lnMu     sync.Mutex
}

// NewServer creates a developer service over a data store pool and bundle
// tree.
func NewServer(cfg config.Developer, ds *dsclient.Pool, bundles *bundle.Repository) *Server {
	return &Server{cfg: cfg, ds: ds, bundles: bundles}
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

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
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

// Serve runs the accept loop on a ready listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("developer server started", "address", ln.Addr())
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

	remote := conn.RemoteAddr()
	slog.Debug("developer connection", "remote", remote)

	for {
		raw, err := protocol.ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Warn("closing connection on protocol error", "remote", remote, "err", err)
			}
			return
		}

		reply := s.dispatch(ctx, conn, raw)
		if err := protocol.WriteMessage(conn, reply); err != nil {
			slog.Warn("failed to write response", "remote", remote, "err", err)
			return
		}
	}
}

// dispatch routes one framed command. Upload and update stream the bundle on
// the same connection mid-command; their final status is still written here.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, raw json.RawMessage) resp {
	var env struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return errResp("invalid request: %v", err)
	}

	switch env.Command {
	case "dev_register":
		return s.registerDeveloper(ctx, raw)
	case "dev_login":
		return s.loginDeveloper(ctx, raw)
	case "upload_game":
		return s.uploadGame(ctx, conn, raw)
	case "update_game":
		return s.updateGame(ctx, conn, raw)
	case "remove_game":
		return s.removeGame(ctx, raw)
	case "list_my_games":
		return s.listMyGames(ctx, raw)
	default:
		return errResp("Unknown command: %s", env.Command)
	}
}

func errResp(format string, args ...any) resp {
	return resp{"status": store.StatusError, "message": fmt.Sprintf(format, args...)}
}
