package devsvc

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gamehub/internal/bundle"
	"github.com/udisondev/gamehub/internal/config"
	"github.com/udisondev/gamehub/internal/dsclient"
	"github.com/udisondev/gamehub/internal/model"
	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
	"github.com/udisondev/gamehub/internal/testutil"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	_, addr := testutil.StartStore(t)
	pool := dsclient.NewPool(addr, 2)
	t.Cleanup(pool.Close)

	bundles, err := bundle.NewRepository(filepath.Join(t.TempDir(), "games"))
	require.NoError(t, err)

	return NewServer(config.Default().Developer, pool, bundles)
}

func call(t *testing.T, s *Server, conn net.Conn, payload map[string]any) resp {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return s.dispatch(context.Background(), conn, raw)
}

func registerDev(t *testing.T, s *Server, name string) int {
	t.Helper()
	reply := call(t, s, nil, map[string]any{"command": "dev_register", "username": name, "password": "pw"})
	require.Equal(t, store.StatusSuccess, reply["status"], "%v", reply["message"])
	return reply["devId"].(int)
}

func validInfo(name, version string) map[string]any {
	return map[string]any{
		"name":        name,
		"description": "a test game",
		"gameType":    model.GameTypeCLI,
		"maxPlayers":  2,
		"version":     version,
		"mainFile":    "client.py",
		"serverFile":  "server.py",
	}
}

// uploadBundle drives the client half of an upload or update: wait for the
// ready frame, then stream each file.
func uploadBundle(t *testing.T, s *Server, cmd map[string]any, files map[string]string) resp {
	t.Helper()

	src := t.TempDir()
	for name, content := range files {
		path := filepath.Join(src, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	cmd["fileCount"] = len(files)

	client, server := testutil.PipeConn(t)
	replyCh := make(chan resp, 1)
	go func() {
		replyCh <- call(t, s, server, cmd)
	}()

	ready := testutil.Recv(t, client)
	require.Equal(t, "ready", ready["status"])

	for name := range files {
		testutil.Send(t, client, map[string]string{"name": name})
		require.NoError(t, protocol.SendFile(client, filepath.Join(src, filepath.FromSlash(name))))
	}
	return <-replyCh
}

func TestDevRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	devID := registerDev(t, s, "weichen")
	assert.Equal(t, 1, devID)

	dup := call(t, s, nil, map[string]any{"command": "dev_register", "username": "weichen", "password": "x"})
	assert.Equal(t, "Developer name already exists", dup["message"])

	login := call(t, s, nil, map[string]any{"command": "dev_login", "username": "weichen", "password": "pw"})
	require.Equal(t, store.StatusSuccess, login["status"])
	assert.Equal(t, devID, login["devId"])

	wrong := call(t, s, nil, map[string]any{"command": "dev_login", "username": "weichen", "password": "nope"})
	assert.Equal(t, "Invalid password", wrong["message"])

	ghost := call(t, s, nil, map[string]any{"command": "dev_login", "username": "ghost", "password": "pw"})
	assert.Equal(t, "Developer account not found", ghost["message"])
}

func TestUploadGame(t *testing.T) {
	s := newTestServer(t)
	devID := registerDev(t, s, "weichen")

	files := map[string]string{
		"server.py":       "print('serve')",
		"client.py":       "print('play')",
		"assets/help.txt": "how to play",
	}
	reply := uploadBundle(t, s, map[string]any{
		"command": "upload_game", "devId": devID, "gameInfo": validInfo("Connect Four", "1.0.0"),
	}, files)
	require.Equal(t, store.StatusSuccess, reply["status"], "%v", reply["message"])
	gameID := reply["gameId"].(int)

	read, err := s.ds.Do(context.Background(), store.CollectionGame, store.ActionRead, map[string]any{"id": gameID})
	require.NoError(t, err)
	game, err := dsclient.Row[model.Game](read)
	require.NoError(t, err)
	assert.Equal(t, "Connect Four", game.Name)
	assert.Equal(t, devID, game.DeveloperID)
	assert.Equal(t, model.GameActive, game.Status)
	assert.Equal(t, "1.0.0", game.CurrentVersion)

	stored, err := s.bundles.WalkVersion("Connect Four", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"assets/help.txt", "client.py", "server.py"}, stored)

	got, err := os.ReadFile(filepath.Join(s.bundles.VersionDir("Connect Four", "1.0.0"), "server.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('serve')", string(got))
}

func TestUploadGameValidation(t *testing.T) {
	s := newTestServer(t)
	devID := registerDev(t, s, "weichen")

	missing := call(t, s, nil, map[string]any{"command": "upload_game", "devId": devID})
	assert.Equal(t, "Missing required fields", missing["message"])

	info := validInfo("Bingo", "1.0.0")
	delete(info, "serverFile")
	noField := call(t, s, nil, map[string]any{
		"command": "upload_game", "devId": devID, "gameInfo": info,
	})
	assert.Equal(t, "Missing required field in config.json: serverFile", noField["message"])

	badVersion := call(t, s, nil, map[string]any{
		"command": "upload_game", "devId": devID, "gameInfo": validInfo("Bingo", "v1"),
	})
	assert.Contains(t, badVersion["message"], "Invalid version")

	solo := validInfo("Bingo", "1.0.0")
	solo["maxPlayers"] = 1
	tooFew := call(t, s, nil, map[string]any{
		"command": "upload_game", "devId": devID, "gameInfo": solo,
	})
	assert.Equal(t, "maxPlayers must be at least 2", tooFew["message"])
}

func TestUploadGameDuplicateVersion(t *testing.T) {
	s := newTestServer(t)
	devID := registerDev(t, s, "weichen")

	first := uploadBundle(t, s, map[string]any{
		"command": "upload_game", "devId": devID, "gameInfo": validInfo("Bingo", "1.0.0"),
	}, map[string]string{"server.py": "x"})
	require.Equal(t, store.StatusSuccess, first["status"])

	dup := call(t, s, nil, map[string]any{
		"command": "upload_game", "devId": devID, "gameInfo": validInfo("Bingo", "1.0.0"), "fileCount": 0,
	})
	assert.Equal(t, "Version 1.0.0 already exists for game 'Bingo'", dup["message"])
}

func TestUpdateGame(t *testing.T) {
	s := newTestServer(t)
	devID := registerDev(t, s, "weichen")

	uploaded := uploadBundle(t, s, map[string]any{
		"command": "upload_game", "devId": devID, "gameInfo": validInfo("Bingo", "1.0.0"),
	}, map[string]string{"server.py": "old"})
	require.Equal(t, store.StatusSuccess, uploaded["status"])
	gameID := uploaded["gameId"].(int)

	updated := uploadBundle(t, s, map[string]any{
		"command": "update_game", "devId": devID, "gameId": gameID, "gameInfo": validInfo("Bingo", "1.1.0"),
	}, map[string]string{"server.py": "new", "readme.txt": "notes"})
	require.Equal(t, store.StatusSuccess, updated["status"], "%v", updated["message"])

	read, err := s.ds.Do(context.Background(), store.CollectionGame, store.ActionRead, map[string]any{"id": gameID})
	require.NoError(t, err)
	game, err := dsclient.Row[model.Game](read)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", game.CurrentVersion)

	assert.False(t, s.bundles.VersionExists("Bingo", "1.0.0"), "old version is deleted")
	files, err := s.bundles.WalkVersion("Bingo", "1.1.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"readme.txt", "server.py"}, files)
}

func TestUpdateGameOwnershipAndVersion(t *testing.T) {
	s := newTestServer(t)
	devID := registerDev(t, s, "weichen")
	otherID := registerDev(t, s, "mallory")

	uploaded := uploadBundle(t, s, map[string]any{
		"command": "upload_game", "devId": devID, "gameInfo": validInfo("Bingo", "1.0.0"),
	}, map[string]string{"server.py": "x"})
	gameID := uploaded["gameId"].(int)

	notYours := call(t, s, nil, map[string]any{
		"command": "update_game", "devId": otherID, "gameId": gameID,
		"gameInfo": validInfo("Bingo", "1.1.0"), "fileCount": 0,
	})
	assert.Equal(t, "Permission denied: not your game", notYours["message"])

	sameVersion := call(t, s, nil, map[string]any{
		"command": "update_game", "devId": devID, "gameId": gameID,
		"gameInfo": validInfo("Bingo", "1.0.0"), "fileCount": 0,
	})
	assert.Equal(t, "Version 1.0.0 already exists for this game", sameVersion["message"])

	missing := call(t, s, nil, map[string]any{
		"command": "update_game", "devId": devID, "gameId": 404,
		"gameInfo": validInfo("Bingo", "2.0.0"), "fileCount": 0,
	})
	assert.Equal(t, "Game not found", missing["message"])
}

func TestRemoveGame(t *testing.T) {
	s := newTestServer(t)
	devID := registerDev(t, s, "weichen")
	otherID := registerDev(t, s, "mallory")

	uploaded := uploadBundle(t, s, map[string]any{
		"command": "upload_game", "devId": devID, "gameInfo": validInfo("Bingo", "1.0.0"),
	}, map[string]string{"server.py": "x"})
	gameID := uploaded["gameId"].(int)

	denied := call(t, s, nil, map[string]any{"command": "remove_game", "devId": otherID, "gameId": gameID})
	assert.Equal(t, "Permission denied: You are not the developer of this game", denied["message"])

	removed := call(t, s, nil, map[string]any{"command": "remove_game", "devId": devID, "gameId": gameID})
	require.Equal(t, store.StatusSuccess, removed["status"])

	read, err := s.ds.Do(context.Background(), store.CollectionGame, store.ActionRead, map[string]any{"id": gameID})
	require.NoError(t, err)
	game, err := dsclient.Row[model.Game](read)
	require.NoError(t, err)
	assert.Equal(t, model.GameInactive, game.Status, "the catalog row survives as inactive")

	assert.False(t, s.bundles.VersionExists("Bingo", "1.0.0"), "the files do not")
}

func TestListMyGames(t *testing.T) {
	s := newTestServer(t)
	devID := registerDev(t, s, "weichen")
	otherID := registerDev(t, s, "rival")

	uploaded := uploadBundle(t, s, map[string]any{
		"command": "upload_game", "devId": devID, "gameInfo": validInfo("Bingo", "1.0.0"),
	}, map[string]string{"server.py": "x"})
	gameID := uploaded["gameId"].(int)
	uploadBundle(t, s, map[string]any{
		"command": "upload_game", "devId": devID, "gameInfo": validInfo("Tetris", "1.0.0"),
	}, map[string]string{"server.py": "y"})
	uploadBundle(t, s, map[string]any{
		"command": "upload_game", "devId": otherID, "gameInfo": validInfo("Other", "1.0.0"),
	}, map[string]string{"server.py": "z"})

	for _, rating := range []int{3, 4} {
		r, err := s.ds.Do(context.Background(), store.CollectionGame, store.ActionAddRating, map[string]any{
			"gameId": gameID, "userId": 1, "rating": rating,
		})
		require.NoError(t, err)
		require.True(t, r.OK())
	}

	reply := call(t, s, nil, map[string]any{"command": "list_my_games", "devId": devID})
	require.Equal(t, store.StatusSuccess, reply["status"])
	games := reply["games"].([]devGame)
	require.Len(t, games, 2)

	assert.Equal(t, "Bingo", games[0].Name)
	require.NotNil(t, games[0].AverageRating)
	assert.Equal(t, 3.5, *games[0].AverageRating)

	assert.Equal(t, "Tetris", games[1].Name)
	assert.Nil(t, games[1].AverageRating, "unrated games report null")
}

func TestUnknownCommand(t *testing.T) {
	s := newTestServer(t)
	reply := call(t, s, nil, map[string]any{"command": "teleport"})
	assert.Contains(t, reply["message"], "Unknown command")
}
