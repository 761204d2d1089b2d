package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gamehub/internal/config"
	"github.com/udisondev/gamehub/internal/protocol"
)

func startServer(t *testing.T) string {
	t.Helper()

	st, err := Open(filepath.Join(t.TempDir(), "database.json"))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(config.DataStore{}, st)
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
	return ln.Addr().String()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func exchange(t *testing.T, conn net.Conn, req Request) Response {
	t.Helper()
	require.NoError(t, protocol.WriteMessage(conn, req))
	var resp Response
	require.NoError(t, protocol.ReadInto(conn, &resp))
	return resp
}

func TestServerRequestResponse(t *testing.T) {
	addr := startServer(t)
	conn := dial(t, addr)

	data, _ := json.Marshal(map[string]any{"name": "alice", "password": "pw"})
	resp := exchange(t, conn, Request{Collection: CollectionUser, Action: ActionCreate, Data: data})
	require.True(t, resp.OK())
	assert.Equal(t, 1, resp.UserID)
}

func TestServerPipelinedRequests(t *testing.T) {
	addr := startServer(t)
	conn := dial(t, addr)

	for i, name := range []string{"a", "b", "c"} {
		data, _ := json.Marshal(map[string]any{"name": name, "password": "pw"})
		resp := exchange(t, conn, Request{Collection: CollectionUser, Action: ActionCreate, Data: data})
		require.True(t, resp.OK())
		assert.Equal(t, i+1, resp.UserID, "responses arrive in request order")
	}
}

func TestServerClosesOnProtocolViolation(t *testing.T) {
	addr := startServer(t)
	conn := dial(t, addr)

	// an oversized length prefix must close the connection with no response
	var hdr [protocol.FrameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], protocol.MaxFrameSize+1)
	_, err := conn.Write(hdr[:])
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err, "connection closed without a response frame")
}

func TestServerBadEnvelopeStillAnswers(t *testing.T) {
	addr := startServer(t)
	conn := dial(t, addr)

	// valid JSON that is not a request envelope gets a wire error, and the
	// connection survives
	resp := exchange(t, conn, Request{Collection: "Nope", Action: "nope"})
	assert.False(t, resp.OK())

	data, _ := json.Marshal(map[string]any{"name": "alice", "password": "pw"})
	again := exchange(t, conn, Request{Collection: CollectionUser, Action: ActionCreate, Data: data})
	assert.True(t, again.OK())
}
