package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/gamehub/internal/model"
	"github.com/udisondev/gamehub/internal/store"
)

type gameEndedReq struct {
	RoomID      int                 `json:"roomId"`
	Secret      string              `json:"secret"`
	MatchID     string              `json:"matchId"`
	GameID      int                 `json:"game_id"`
	GameName    string              `json:"game_name"`
	GameVersion string              `json:"game_version"`
	Users       []string            `json:"users"`
	StartAt     string              `json:"startAt"`
	EndAt       string              `json:"endAt"`
	Results     []model.MatchResult `json:"results"`
}

func (s *Server) startGame(ctx context.Context, sess *Session, raw json.RawMessage) resp {
	userID, _, ok := s.currentUser(sess)
	if !ok {
		return errResp("Not logged in")
	}

	var req roomIDReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid start_game request: %v", err)
	}

	room, found := s.readRoom(ctx, req.RoomID)
	if !found {
		return errResp("Room not found")
	}
	if room.HostUserID != userID {
		return errResp("Only host can start game")
	}
	if room.GameID == 0 {
		return errResp("Room missing game information")
	}
	if room.Status == model.RoomPlaying {
		return errResp("Game already started")
	}

	game, found := s.readGame(ctx, room.GameID)
	if !found {
		return errResp("Game not found")
	}
	maxPlayers := game.MaxPlayers

	s.mu.Lock()
	members := s.roomMembers[room.ID]
	if len(members) != maxPlayers {
		s.mu.Unlock()
		return errResp("Need exactly %d players", maxPlayers)
	}
	players := make([]int, 0, len(members))
	for id := range members {
		players = append(players, id)
	}
	s.mu.Unlock()

	port, err := s.allocatePort()
	if err != nil {
		return errResp("%v", err)
	}

	// Re-read the game: the developer may have delisted it since the room
	// was created, or even since the capacity check above.
	game, found = s.readGame(ctx, room.GameID)
	if !found {
		s.mu.Lock()
		s.releasePortLocked(port)
		s.mu.Unlock()
		return errResp("Game not found")
	}
	if game.Status != model.GameActive {
		s.mu.Lock()
		s.releasePortLocked(port)
		delete(s.gameServers, room.ID)
		s.mu.Unlock()

		if _, err := s.ds.Do(ctx, store.CollectionRoom, store.ActionUpdate, map[string]any{
			"id":     room.ID,
			"fields": map[string]any{"status": model.RoomWaiting},
		}); err != nil {
			slog.Error("failed to park room after delist", "roomId", room.ID, "err", err)
		}
		return errResp("Game %q has been removed by developer and is no longer available, please choose another game and create a new room", room.GameName)
	}

	secret := uuid.NewString()
	s.mu.Lock()
	s.gameServers[room.ID] = &match{port: port, secret: secret}
	s.mu.Unlock()

	usernames := make([]string, 0, len(players))
	for _, id := range players {
		name := ""
		if ur, err := s.ds.Do(ctx, store.CollectionUser, store.ActionRead, map[string]any{"id": id}); err == nil && ur.OK() {
			var u model.User
			if json.Unmarshal(ur.Data, &u) == nil {
				name = u.Name
			}
		}
		if name == "" {
			name = fmt.Sprintf("Player%d", id)
		}
		usernames = append(usernames, name)
	}

	if _, err := s.ds.Do(ctx, store.CollectionRoom, store.ActionUpdate, map[string]any{
		"id": room.ID,
		"fields": map[string]any{
			"status":         model.RoomPlaying,
			"gameServerPort": port,
		},
	}); err != nil {
		slog.Error("failed to mark room playing", "roomId", room.ID, "err", err)
	}

	versionDir := s.bundles.VersionDir(game.Name, game.CurrentVersion)
	script := filepath.Join(versionDir, game.ServerFile)
	if _, err := os.Stat(script); err != nil {
		// Kept from the source: a missing script is logged but the start is
		// still reported as a success; the reaper cannot help here.
		slog.Warn("game server script not found", "path", script, "roomId", room.ID)
	} else {
		_, done, err := launch(launchSpec{
			Runner:      s.cfg.Runner,
			ServerFile:  game.ServerFile,
			Dir:         versionDir,
			Port:        port,
			RoomID:      room.ID,
			GameID:      game.ID,
			GameName:    game.Name,
			GameVersion: game.CurrentVersion,
			Usernames:   usernames,
			Secret:      secret,
		})
		if err != nil {
			return errResp("Game server failed to start: %v", err)
		}
		go s.watchMatch(room.ID, secret, done)

		s.mu.Lock()
		if m := s.gameServers[room.ID]; m != nil {
			m.started = true
		}
		s.mu.Unlock()

		settle := time.Duration(s.cfg.SettleDelayMS) * time.Millisecond
		select {
		case <-done:
			return errResp("Game server failed to start")
		case <-time.After(settle):
		}
	}

	slog.Info("game started", "roomId", room.ID, "port", port, "game", game.Name)
	return resp{
		"status":         store.StatusSuccess,
		"message":        "Game started",
		"gameServerPort": port,
		"gameName":       game.Name,
		"gameVersion":    game.CurrentVersion,
		"players":        players,
	}
}

func (s *Server) checkRoomStatus(ctx context.Context, raw json.RawMessage) resp {
	var req roomIDReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid check_room_status request: %v", err)
	}
	if req.RoomID == 0 {
		return errResp("Room ID required")
	}

	room, found := s.readRoom(ctx, req.RoomID)
	if !found {
		return errResp("Room not found")
	}

	if room.Status == model.RoomPlaying {
		s.mu.Lock()
		m := s.gameServers[room.ID]
		s.mu.Unlock()

		if m != nil {
			gameVersion := "Unknown"
			if game, ok := s.readGame(ctx, room.GameID); ok {
				gameVersion = game.CurrentVersion
			}
			gameName := room.GameName
			if gameName == "" {
				gameName = "Unknown Game"
			}
			return resp{
				"status":         store.StatusSuccess,
				"gameStarted":    true,
				"gameServerPort": m.port,
				"gameName":       gameName,
				"gameVersion":    gameVersion,
			}
		}
	}
	return resp{"status": store.StatusSuccess, "gameStarted": false}
}

// gameEnded is the end-of-match callback from a game server subprocess. The
// per-match secret issued at spawn authenticates it.
func (s *Server) gameEnded(ctx context.Context, raw json.RawMessage) resp {
	var req gameEndedReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid game_ended request: %v", err)
	}

	s.mu.Lock()
	m, ok := s.gameServers[req.RoomID]
	if !ok {
		s.mu.Unlock()
		return errResp("No live match for this room")
	}
	if m.secret != req.Secret {
		s.mu.Unlock()
		return errResp("Invalid match secret")
	}
	m.ended = true
	port := m.port
	delete(s.gameServers, req.RoomID)
	s.releasePortLocked(port)
	s.mu.Unlock()

	if _, err := s.ds.Do(ctx, store.CollectionRoom, store.ActionUpdate, map[string]any{
		"id": req.RoomID,
		"fields": map[string]any{
			"status":         model.RoomIdle,
			"gameServerPort": nil,
		},
	}); err != nil {
		slog.Error("failed to mark room idle", "roomId", req.RoomID, "err", err)
	}

	if req.MatchID != "" {
		if _, err := s.ds.Do(ctx, store.CollectionGameLog, store.ActionCreate, map[string]any{
			"matchId":      req.MatchID,
			"roomId":       req.RoomID,
			"game_id":      req.GameID,
			"game_name":    req.GameName,
			"game_version": req.GameVersion,
			"users":        req.Users,
			"startAt":      req.StartAt,
			"endAt":        req.EndAt,
			"results":      req.Results,
		}); err != nil {
			slog.Error("failed to create game log", "roomId", req.RoomID, "err", err)
		}
	}

	slog.Info("game ended", "roomId", req.RoomID, "port", port, "matchId", req.MatchID)
	return okResp("Game ended")
}

func (s *Server) spectateGame(ctx context.Context, sess *Session, raw json.RawMessage) resp {
	_, _, ok := s.currentUser(sess)
	if !ok {
		return errResp("Not logged in")
	}

	var req roomIDReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid spectate_game request: %v", err)
	}

	room, found := s.readRoom(ctx, req.RoomID)
	if !found {
		return errResp("Room not found")
	}
	if room.Status != model.RoomPlaying {
		return errResp("Game not started yet")
	}

	s.mu.Lock()
	m := s.gameServers[room.ID]
	var players []int
	for id := range s.roomMembers[room.ID] {
		players = append(players, id)
	}
	s.mu.Unlock()

	if m == nil {
		return errResp("Game server not found")
	}
	return resp{
		"status":         store.StatusSuccess,
		"message":        "Spectating game",
		"gameServerPort": m.port,
		"players":        players,
		"spectator":      true,
	}
}
