package lobby

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/udisondev/gamehub/internal/model"
	"github.com/udisondev/gamehub/internal/store"
)

// launchSpec is everything needed to spawn one game server subprocess.
type launchSpec struct {
	Runner      string // optional interpreter, e.g. "python3"
	ServerFile  string
	Dir         string // bundle version directory, becomes cwd
	Port        int
	RoomID      int
	GameID      int
	GameName    string
	GameVersion string
	Usernames   []string
	Secret      string
}

// launch starts the game server subprocess with a structured argv (no shell)
// and returns a channel closed when the process exits. The lobby never
// kills game servers; they end themselves and call back.
func launch(spec launchSpec) (*exec.Cmd, <-chan struct{}, error) {
	argv := make([]string, 0, 8+len(spec.Usernames))
	if spec.Runner != "" {
		argv = append(argv, spec.Runner)
	}
	argv = append(argv,
		spec.ServerFile,
		strconv.Itoa(spec.Port),
		strconv.Itoa(spec.RoomID),
		strconv.Itoa(spec.GameID),
		spec.GameName,
		spec.GameVersion,
	)
	argv = append(argv, spec.Usernames...)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(),
		"GAME_PORT="+strconv.Itoa(spec.Port),
		"GAME_ROOM="+strconv.Itoa(spec.RoomID),
		"CF_PORT="+strconv.Itoa(spec.Port),
		"CF_ROOM="+strconv.Itoa(spec.RoomID),
		"MATCH_SECRET="+spec.Secret,
	)

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting game server %s: %w", spec.ServerFile, err)
	}

	done := make(chan struct{})
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("game server exited", "roomId", spec.RoomID, "err", err)
		}
		close(done)
	}()

	slog.Info("game server launched",
		"roomId", spec.RoomID, "port", spec.Port, "pid", cmd.Process.Pid,
		"script", spec.ServerFile, "dir", spec.Dir)
	return cmd, done, nil
}

// watchMatch reaps a game server that exits without delivering its
// game_ended callback: the port is released and the room reverted to idle,
// the same transition the callback performs, but with no GameLog row.
func (s *Server) watchMatch(roomID int, secret string, done <-chan struct{}) {
	<-done

	s.mu.Lock()
	m, ok := s.gameServers[roomID]
	if !ok || m.ended || m.secret != secret {
		s.mu.Unlock()
		return
	}
	port := m.port
	delete(s.gameServers, roomID)
	s.releasePortLocked(port)
	s.mu.Unlock()

	if _, err := s.ds.Do(context.Background(), store.CollectionRoom, store.ActionUpdate, map[string]any{
		"id": roomID,
		"fields": map[string]any{
			"status":         model.RoomIdle,
			"gameServerPort": nil,
		},
	}); err != nil {
		slog.Error("failed to revert room after game server death", "roomId", roomID, "err", err)
		return
	}
	slog.Warn("reaped dead game server", "roomId", roomID, "port", port)
}
