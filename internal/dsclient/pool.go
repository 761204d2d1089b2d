// Package dsclient is the data store client used by the lobby and developer
// services. A small bounded pool of TCP connections replaces the
// connect-per-request pattern; each pooled connection carries one
// request/response exchange at a time, preserving the store's per-connection
// ordering guarantee.
package dsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
)

// Pool is a bounded pool of data store connections.
type Pool struct {
	addr string
	sem  *semaphore.Weighted

	mu   sync.Mutex
	idle []net.Conn
}

// NewPool creates a pool that dials addr lazily, holding at most size open
// connections.
func NewPool(addr string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		addr: addr,
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Close drops all idle connections. In-flight exchanges finish on their own
// connections and are discarded afterwards.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.idle {
		c.Close()
	}
	p.idle = nil
}

func (p *Pool) acquire(ctx context.Context) (net.Conn, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring pool slot: %w", err)
	}

	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		p.sem.Release(1)
		return nil, fmt.Errorf("dialing data store %s: %w", p.addr, err)
	}
	return conn, nil
}

func (p *Pool) release(conn net.Conn, broken bool) {
	if broken {
		conn.Close()
	} else {
		p.mu.Lock()
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
	}
	p.sem.Release(1)
}

// Do performs one request/response exchange with the data store. Transport
// failures discard the connection and return an error; a response with
// status "error" is returned to the caller as data, not as a Go error.
func (p *Pool) Do(ctx context.Context, collection, action string, data any) (store.Response, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return store.Response{}, fmt.Errorf("encoding request data: %w", err)
	}
	req := store.Request{Collection: collection, Action: action, Data: raw}

	conn, err := p.acquire(ctx)
	if err != nil {
		return store.Response{}, err
	}

	var resp store.Response
	if err := protocol.WriteMessage(conn, req); err != nil {
		p.release(conn, true)
		return store.Response{}, fmt.Errorf("sending data store request: %w", err)
	}
	if err := protocol.ReadInto(conn, &resp); err != nil {
		p.release(conn, true)
		return store.Response{}, fmt.Errorf("reading data store response: %w", err)
	}

	p.release(conn, false)
	return resp, nil
}

// Row decodes a single-row response payload.
func Row[T any](resp store.Response) (T, error) {
	var v T
	if err := json.Unmarshal(resp.Data, &v); err != nil {
		return v, fmt.Errorf("decoding row: %w", err)
	}
	return v, nil
}

// Rows decodes a query response payload.
func Rows[T any](resp store.Response) ([]T, error) {
	var v []T
	if err := json.Unmarshal(resp.Data, &v); err != nil {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}
	return v, nil
}
