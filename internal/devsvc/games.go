package devsvc

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"path/filepath"

	"github.com/udisondev/gamehub/internal/bundle"
	"github.com/udisondev/gamehub/internal/dsclient"
	"github.com/udisondev/gamehub/internal/model"
	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
)

type uploadReq struct {
	DevID     int             `json:"devId"`
	GameInfo  json.RawMessage `json:"gameInfo"`
	FileCount int             `json:"fileCount"`
}

type updateReq struct {
	DevID     int             `json:"devId"`
	GameID    int             `json:"gameId"`
	GameInfo  json.RawMessage `json:"gameInfo"`
	FileCount int             `json:"fileCount"`
}

type removeReq struct {
	DevID  int `json:"devId"`
	GameID int `json:"gameId"`
}

type devIDReq struct {
	DevID int `json:"devId"`
}

// gameInfo mirrors the developer's config.json.
type gameInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	GameType    string `json:"gameType"`
	MaxPlayers  int    `json:"maxPlayers"`
	Version     string `json:"version"`
	MainFile    string `json:"mainFile"`
	ServerFile  string `json:"serverFile"`
}

var requiredInfoFields = []string{
	"name", "description", "gameType", "maxPlayers", "version", "mainFile", "serverFile",
}

// parseGameInfo validates a raw config.json payload. The second return is a
// non-nil error response when validation fails.
func parseGameInfo(raw json.RawMessage) (*gameInfo, resp) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errResp("invalid gameInfo: %v", err)
	}
	for _, f := range requiredInfoFields {
		if _, ok := fields[f]; !ok {
			return nil, errResp("Missing required field in config.json: %s", f)
		}
	}

	var info gameInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, errResp("invalid gameInfo: %v", err)
	}
	if !model.ValidVersion(info.Version) {
		return nil, errResp("Invalid version %q, expected MAJOR.MINOR.PATCH", info.Version)
	}
	if info.MaxPlayers < 2 {
		return nil, errResp("maxPlayers must be at least 2")
	}
	return &info, nil
}

// receiveBundle reads fileCount (name frame, file) pairs into dir. Returns a
// non-nil error response on failure.
func receiveBundle(conn net.Conn, dir string, fileCount int) resp {
	for i := 0; i < fileCount; i++ {
		var info struct {
			Name string `json:"name"`
		}
		if err := protocol.ReadInto(conn, &info); err != nil {
			return errResp("Failed to receive file info")
		}
		rel := filepath.FromSlash(info.Name)
		if info.Name == "" || !filepath.IsLocal(rel) {
			return errResp("Invalid file path: %s", info.Name)
		}
		if err := protocol.RecvFile(conn, filepath.Join(dir, rel)); err != nil {
			return errResp("Failed to receive file: %s", info.Name)
		}
	}
	return nil
}

func (s *Server) uploadGame(ctx context.Context, conn net.Conn, raw json.RawMessage) resp {
	var req uploadReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid upload_game request: %v", err)
	}
	if req.DevID == 0 || len(req.GameInfo) == 0 {
		return errResp("Missing required fields")
	}

	info, errR := parseGameInfo(req.GameInfo)
	if errR != nil {
		return errR
	}

	// Same name under the same developer may exist, but never the same
	// version twice.
	existing, err := s.ds.Do(ctx, store.CollectionGame, store.ActionQuery, map[string]any{
		"developerId": req.DevID,
		"name":        info.Name,
	})
	if err != nil {
		return errResp("%v", err)
	}
	if existing.OK() {
		if games, derr := dsclient.Rows[model.Game](existing); derr == nil {
			for _, g := range games {
				if g.CurrentVersion == info.Version {
					return errResp("Version %s already exists for game '%s'", info.Version, info.Name)
				}
			}
		}
	}

	now := model.Timestamp()
	created, err := s.ds.Do(ctx, store.CollectionGame, store.ActionCreate, map[string]any{
		"name":           info.Name,
		"developerId":    req.DevID,
		"description":    info.Description,
		"gameType":       info.GameType,
		"maxPlayers":     info.MaxPlayers,
		"currentVersion": info.Version,
		"mainFile":       info.MainFile,
		"serverFile":     info.ServerFile,
		"uploadedAt":     now,
		"updatedAt":      now,
		"status":         model.GameActive,
		"ratings":        []int{},
		"reviews":        []model.Review{},
	})
	if err != nil {
		return errResp("%v", err)
	}
	if !created.OK() {
		return errResp("%s", created.Message)
	}
	gameID := created.GameID

	dir, err := s.bundles.EnsureVersionDir(info.Name, info.Version)
	if err != nil {
		return errResp("%v", err)
	}

	if err := protocol.WriteMessage(conn, resp{
		"status":  "ready",
		"message": "Ready to receive files",
	}); err != nil {
		return errResp("Failed to start file transfer")
	}
	if errR := receiveBundle(conn, dir, req.FileCount); errR != nil {
		return errR
	}

	slog.Info("game uploaded", "gameId", gameID, "name", info.Name,
		"version", info.Version, "devId", req.DevID, "files", req.FileCount)
	return resp{
		"status":  store.StatusSuccess,
		"message": "Game uploaded successfully",
		"gameId":  gameID,
	}
}

func (s *Server) updateGame(ctx context.Context, conn net.Conn, raw json.RawMessage) resp {
	var req updateReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid update_game request: %v", err)
	}
	if req.DevID == 0 || req.GameID == 0 || len(req.GameInfo) == 0 {
		return errResp("Missing required fields")
	}

	info, errR := parseGameInfo(req.GameInfo)
	if errR != nil {
		return errR
	}

	read, err := s.ds.Do(ctx, store.CollectionGame, store.ActionRead, map[string]any{"id": req.GameID})
	if err != nil {
		return errResp("%v", err)
	}
	if !read.OK() {
		return errResp("Game not found")
	}
	game, derr := dsclient.Row[model.Game](read)
	if derr != nil {
		return errResp("%v", derr)
	}
	if game.DeveloperID != req.DevID {
		return errResp("Permission denied: not your game")
	}

	if s.bundles.VersionExists(game.Name, info.Version) {
		return errResp("Version %s already exists for this game", info.Version)
	}

	// Only the newest version is kept on disk.
	if game.CurrentVersion != "" {
		if err := s.bundles.RemoveVersion(game.Name, game.CurrentVersion); err != nil {
			slog.Warn("failed to delete old version", "gameId", game.ID,
				"version", game.CurrentVersion, "err", err)
		}
	}

	dir, err := s.bundles.EnsureVersionDir(game.Name, info.Version)
	if err != nil {
		return errResp("%v", err)
	}

	if _, err := s.ds.Do(ctx, store.CollectionGame, store.ActionUpdate, map[string]any{
		"id": req.GameID,
		"fields": map[string]any{
			"currentVersion": info.Version,
			"mainFile":       info.MainFile,
			"serverFile":     info.ServerFile,
			"updatedAt":      model.Timestamp(),
		},
	}); err != nil {
		return errResp("%v", err)
	}

	if err := protocol.WriteMessage(conn, resp{
		"status":  "ready",
		"message": "Ready to receive files",
	}); err != nil {
		return errResp("Failed to start file transfer")
	}
	if errR := receiveBundle(conn, dir, req.FileCount); errR != nil {
		return errR
	}

	slog.Info("game updated", "gameId", req.GameID, "version", info.Version, "devId", req.DevID)
	return resp{"status": store.StatusSuccess, "message": "Game updated successfully"}
}

func (s *Server) removeGame(ctx context.Context, raw json.RawMessage) resp {
	var req removeReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid remove_game request: %v", err)
	}
	if req.DevID == 0 || req.GameID == 0 {
		return errResp("Missing devId or gameId")
	}

	read, err := s.ds.Do(ctx, store.CollectionGame, store.ActionRead, map[string]any{"id": req.GameID})
	if err != nil {
		return errResp("%v", err)
	}
	if !read.OK() {
		return errResp("Game not found")
	}
	game, derr := dsclient.Row[model.Game](read)
	if derr != nil {
		return errResp("%v", derr)
	}
	if game.DeveloperID != req.DevID {
		slog.Warn("remove_game permission denied",
			"devId", req.DevID, "gameId", req.GameID, "owner", game.DeveloperID)
		return errResp("Permission denied: You are not the developer of this game")
	}

	// Delisting: the catalog row survives as inactive so existing rooms and
	// reviews keep resolving, but the files are gone for good.
	if _, err := s.ds.Do(ctx, store.CollectionGame, store.ActionUpdate, map[string]any{
		"id":     req.GameID,
		"fields": map[string]any{"status": model.GameInactive},
	}); err != nil {
		return errResp("%v", err)
	}

	if err := s.bundles.RemoveGame(game.Name); err != nil {
		slog.Warn("failed to delete game files", "gameId", req.GameID,
			"dir", bundle.SanitizeName(game.Name), "err", err)
	}

	slog.Info("game removed", "gameId", req.GameID, "name", game.Name, "devId", req.DevID)
	return resp{"status": store.StatusSuccess, "message": "Game removed successfully and files deleted"}
}

// devGame is a catalog row plus the derived rating shown to its developer.
type devGame struct {
	model.Game
	AverageRating *float64 `json:"averageRating"`
}

func (s *Server) listMyGames(ctx context.Context, raw json.RawMessage) resp {
	var req devIDReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid list_my_games request: %v", err)
	}

	found, err := s.ds.Do(ctx, store.CollectionGame, store.ActionQuery, map[string]any{
		"developerId": req.DevID,
	})
	if err != nil {
		return errResp("%v", err)
	}
	if !found.OK() {
		return errResp("%s", found.Message)
	}
	games, derr := dsclient.Rows[model.Game](found)
	if derr != nil {
		return errResp("%v", derr)
	}

	out := make([]devGame, 0, len(games))
	for _, g := range games {
		row := devGame{Game: g}
		if avg, ok := g.AverageRating(); ok {
			rounded := math.Round(avg*100) / 100
			row.AverageRating = &rounded
		}
		out = append(out, row)
	}
	return resp{"status": store.StatusSuccess, "games": out}
}
