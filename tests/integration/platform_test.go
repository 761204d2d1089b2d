// Package integration spins up all three services in one process over real
// TCP sockets and walks the full developer and player journey.
package integration

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gamehub/internal/bundle"
	"github.com/udisondev/gamehub/internal/config"
	"github.com/udisondev/gamehub/internal/devsvc"
	"github.com/udisondev/gamehub/internal/dsclient"
	"github.com/udisondev/gamehub/internal/lobby"
	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/testutil"
)

// platform is one complete in-process deployment.
type platform struct {
	lobbyAddr string
	devAddr   string
}

func startPlatform(t *testing.T) *platform {
	t.Helper()

	_, dsAddr := testutil.StartStore(t)

	root := filepath.Join(t.TempDir(), "uploaded_games")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.Lobby.BindAddress = "127.0.0.1"
	cfg.Lobby.SettleDelayMS = 50

	lobbyPool := dsclient.NewPool(dsAddr, cfg.Lobby.PoolSize)
	t.Cleanup(lobbyPool.Close)
	lobbyBundles, err := bundle.NewRepository(root)
	require.NoError(t, err)
	lobbyLn, lobbyAddr := testutil.ListenTCP(t)
	go func() {
		_ = lobby.NewServer(cfg.Lobby, lobbyPool, lobbyBundles).Serve(ctx, lobbyLn)
	}()

	devPool := dsclient.NewPool(dsAddr, cfg.Developer.PoolSize)
	t.Cleanup(devPool.Close)
	devBundles, err := bundle.NewRepository(root)
	require.NoError(t, err)
	devLn, devAddr := testutil.ListenTCP(t)
	go func() {
		_ = devsvc.NewServer(cfg.Developer, devPool, devBundles).Serve(ctx, devLn)
	}()

	return &platform{lobbyAddr: lobbyAddr, devAddr: devAddr}
}

// client is one framed TCP client connection.
type client struct {
	t    *testing.T
	conn net.Conn
}

func connect(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(payload map[string]any) {
	c.t.Helper()
	testutil.Send(c.t, c.conn, payload)
}

func (c *client) recv() map[string]any {
	c.t.Helper()
	return testutil.Recv(c.t, c.conn)
}

func (c *client) do(payload map[string]any) map[string]any {
	c.t.Helper()
	c.send(payload)
	return c.recv()
}

func (c *client) mustDo(payload map[string]any) map[string]any {
	c.t.Helper()
	reply := c.do(payload)
	require.Equal(c.t, "success", reply["status"], "%s: %v", payload["command"], reply["message"])
	return reply
}

// uploadGame runs the developer upload flow: command, ready frame, file
// stream, final status.
func (c *client) uploadGame(devID float64, info map[string]any, files map[string]string) map[string]any {
	c.t.Helper()

	src := c.t.TempDir()
	for name, content := range files {
		require.NoError(c.t, os.WriteFile(filepath.Join(src, name), []byte(content), 0o644))
	}

	c.send(map[string]any{
		"command":   "upload_game",
		"devId":     devID,
		"gameInfo":  info,
		"fileCount": len(files),
	})
	ready := c.recv()
	require.Equal(c.t, "ready", ready["status"])

	for name := range files {
		c.send(map[string]any{"name": name})
		require.NoError(c.t, protocol.SendFile(c.conn, filepath.Join(src, name)))
	}
	return c.recv()
}

func gameInfo(name, version string) map[string]any {
	return map[string]any{
		"name":        name,
		"description": "four in a row",
		"gameType":    "CLI",
		"maxPlayers":  2,
		"version":     version,
		"mainFile":    "client.py",
		"serverFile":  "server.py",
	}
}

func TestDeveloperAndPlayerJourney(t *testing.T) {
	p := startPlatform(t)

	// developer publishes a game; the bundle deliberately omits server.py so
	// no subprocess is spawned when a match starts
	dev := connect(t, p.devAddr)
	devID := dev.mustDo(map[string]any{
		"command": "dev_register", "username": "weichen", "password": "pw",
	})["devId"].(float64)

	uploaded := dev.uploadGame(devID, gameInfo("Connect Four", "1.0.0"), map[string]string{
		"client.py": "print('board')",
		"rules.txt": "connect four to win",
	})
	require.Equal(t, "success", uploaded["status"], "%v", uploaded["message"])
	gameID := uploaded["gameId"].(float64)

	listed := dev.mustDo(map[string]any{"command": "list_my_games", "devId": devID})
	require.Len(t, listed["games"], 1)

	// two players come online
	alice := connect(t, p.lobbyAddr)
	alice.mustDo(map[string]any{"command": "register", "username": "alice", "password": "pw"})
	aliceID := alice.mustDo(map[string]any{"command": "login", "username": "alice", "password": "pw"})["userId"].(float64)

	bob := connect(t, p.lobbyAddr)
	bob.mustDo(map[string]any{"command": "register", "username": "bob", "password": "pw"})
	bob.mustDo(map[string]any{"command": "login", "username": "bob", "password": "pw"})

	online := alice.mustDo(map[string]any{"command": "list_users"})
	assert.Len(t, online["users"], 2)

	// the game is in the store and downloadable
	browse := alice.mustDo(map[string]any{"command": "browse_store"})
	games := browse["games"].([]any)
	require.Len(t, games, 1)
	assert.Equal(t, "Connect Four", games[0].(map[string]any)["name"])

	alice.send(map[string]any{"command": "download_game", "gameId": gameID, "version": "1.0.0"})
	ready := alice.recv()
	require.Equal(t, "ready", ready["status"])
	fileCount := int(ready["fileCount"].(float64))
	require.Equal(t, 2, fileCount)
	downloadDir := t.TempDir()
	for i := 0; i < fileCount; i++ {
		info := alice.recv()
		name := info["name"].(string)
		require.NoError(t, protocol.RecvFile(alice.conn, filepath.Join(downloadDir, name)))
	}
	got, err := os.ReadFile(filepath.Join(downloadDir, "rules.txt"))
	require.NoError(t, err)
	assert.Equal(t, "connect four to win", string(got))

	// a room fills up and the match starts
	created := alice.mustDo(map[string]any{
		"command": "create_room", "room_name": "friday", "game_name": "Connect Four",
	})
	roomID := created["roomId"].(float64)

	joined := bob.mustDo(map[string]any{"command": "join_room", "roomId": roomID})
	assert.Equal(t, false, joined["isHost"])

	started := alice.mustDo(map[string]any{"command": "start_game", "roomId": roomID})
	port := started["gameServerPort"].(float64)
	assert.NotZero(t, port)

	status := bob.mustDo(map[string]any{"command": "check_room_status", "roomId": roomID})
	assert.Equal(t, true, status["gameStarted"])
	assert.Equal(t, port, status["gameServerPort"])

	carol := connect(t, p.lobbyAddr)
	carol.mustDo(map[string]any{"command": "register", "username": "carol", "password": "pw"})
	carol.mustDo(map[string]any{"command": "login", "username": "carol", "password": "pw"})
	spect := carol.mustDo(map[string]any{"command": "spectate_game", "roomId": roomID})
	assert.Equal(t, true, spect["spectator"])

	// reviews stay gated until a match log exists for the player
	blocked := alice.do(map[string]any{
		"command": "submit_review", "userId": aliceID, "gameId": gameID, "rating": 5,
	})
	assert.Equal(t, "error", blocked["status"])
	assert.Contains(t, blocked["message"], "must play")
}

func TestDeveloperUpdateReplacesVersion(t *testing.T) {
	p := startPlatform(t)

	dev := connect(t, p.devAddr)
	devID := dev.mustDo(map[string]any{
		"command": "dev_register", "username": "weichen", "password": "pw",
	})["devId"].(float64)

	uploaded := dev.uploadGame(devID, gameInfo("Bingo", "1.0.0"), map[string]string{"client.py": "v1"})
	require.Equal(t, "success", uploaded["status"])
	gameID := uploaded["gameId"].(float64)

	dev.send(map[string]any{
		"command": "update_game", "devId": devID, "gameId": gameID,
		"gameInfo": gameInfo("Bingo", "1.1.0"), "fileCount": 1,
	})
	ready := dev.recv()
	require.Equal(t, "ready", ready["status"])
	src := filepath.Join(t.TempDir(), "client.py")
	require.NoError(t, os.WriteFile(src, []byte("v2"), 0o644))
	dev.send(map[string]any{"name": "client.py"})
	require.NoError(t, protocol.SendFile(dev.conn, src))
	final := dev.recv()
	require.Equal(t, "success", final["status"], "%v", final["message"])

	// only the new version is downloadable
	alice := connect(t, p.lobbyAddr)
	alice.mustDo(map[string]any{"command": "register", "username": "alice", "password": "pw"})
	alice.mustDo(map[string]any{"command": "login", "username": "alice", "password": "pw"})

	old := alice.do(map[string]any{"command": "download_game", "gameId": gameID, "version": "1.0.0"})
	assert.Equal(t, "Game files not found on server", old["message"])

	alice.send(map[string]any{"command": "download_game", "gameId": gameID, "version": "1.1.0"})
	ready = alice.recv()
	require.Equal(t, "ready", ready["status"])
	info := alice.recv()
	out := filepath.Join(t.TempDir(), info["name"].(string))
	require.NoError(t, protocol.RecvFile(alice.conn, out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestRemovedGameBlocksNewRooms(t *testing.T) {
	p := startPlatform(t)

	dev := connect(t, p.devAddr)
	devID := dev.mustDo(map[string]any{
		"command": "dev_register", "username": "weichen", "password": "pw",
	})["devId"].(float64)
	uploaded := dev.uploadGame(devID, gameInfo("Bingo", "1.0.0"), map[string]string{"client.py": "x"})
	require.Equal(t, "success", uploaded["status"])
	gameID := uploaded["gameId"].(float64)

	dev.mustDo(map[string]any{"command": "remove_game", "devId": devID, "gameId": gameID})

	alice := connect(t, p.lobbyAddr)
	alice.mustDo(map[string]any{"command": "register", "username": "alice", "password": "pw"})
	alice.mustDo(map[string]any{"command": "login", "username": "alice", "password": "pw"})

	browse := alice.mustDo(map[string]any{"command": "browse_store"})
	assert.Empty(t, browse["games"])

	blocked := alice.do(map[string]any{
		"command": "create_room", "room_name": "r", "game_name": "Bingo",
	})
	assert.Contains(t, blocked["message"], "has been removed by developer")
}
