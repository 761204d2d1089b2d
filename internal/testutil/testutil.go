// Package testutil holds shared helpers for service tests: pipe pairs,
// loopback listeners, an in-process data store, and frame helpers.
package testutil

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/udisondev/gamehub/internal/config"
	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
)

// PipeConn returns a connected net.Conn pair, closed on test cleanup.
func PipeConn(t testing.TB) (client, server net.Conn) {
	t.Helper()

	server, client = net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return client, server
}

// ListenTCP opens a loopback listener on a random port, closed on cleanup.
func ListenTCP(t testing.TB) (net.Listener, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln, ln.Addr().String()
}

// StartStore runs a data store service on a loopback listener backed by a
// snapshot in a temp dir. It returns the store and the dial address.
func StartStore(t testing.TB) (*store.Store, string) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "database.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	ln, addr := ListenTCP(t)
	srv := store.NewServer(config.DataStore{}, st)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return st, addr
}

// Send frames one value onto conn, failing the test on error.
func Send(t testing.TB, conn net.Conn, v any) {
	t.Helper()
	if err := protocol.WriteMessage(conn, v); err != nil {
		t.Fatalf("send: %v", err)
	}
}

// Recv reads one framed message from conn into a generic map.
func Recv(t testing.TB, conn net.Conn) map[string]any {
	t.Helper()
	var out map[string]any
	if err := protocol.ReadInto(conn, &out); err != nil {
		t.Fatalf("recv: %v", err)
	}
	return out
}
