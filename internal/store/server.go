package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/udisondev/gamehub/internal/config"
	"github.com/udisondev/gamehub/internal/protocol"
)

// Server accepts data store connections. Each connection may carry a
// pipelined sequence of requests; they are processed serially per
// connection, and the catalog mutex serializes requests across connections.
type Server struct {
	cfg   config.DataStore
	store *Store

	listener net.Listener
	lnMu     sync.Mutex
}

// NewServer creates a data store server over an opened Store.
func NewServer(cfg config.DataStore, st *Store) *Server {
	return &Server{cfg: cfg, store: st}
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

// Run listens on the configured address and serves until ctx is cancelled.
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

// Serve runs the accept loop on a ready listener. Split from Run so tests
// can inject a loopback listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("data store started", "address", ln.Addr())
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
	slog.Debug("data store connection", "remote", remote)

	for {
		raw, err := protocol.ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Warn("closing connection on protocol error", "remote", remote, "err", err)
			}
			return
		}

		var req Request
		resp := Response{}
		if err := json.Unmarshal(raw, &req); err != nil {
			resp = errorf("invalid request envelope: %v", err)
		} else {
			resp = s.store.Handle(req)
		}

		if err := protocol.WriteMessage(conn, resp); err != nil {
			slog.Warn("failed to write response", "remote", remote, "err", err)
			return
		}
	}
}
