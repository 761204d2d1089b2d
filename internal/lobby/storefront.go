package lobby

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"

	"github.com/udisondev/gamehub/internal/dsclient"
	"github.com/udisondev/gamehub/internal/model"
	"github.com/udisondev/gamehub/internal/protocol"
	"github.com/udisondev/gamehub/internal/store"
)

type downloadReq struct {
	GameID  int    `json:"gameId"`
	Version string `json:"version"`
}

type reviewReq struct {
	UserID int    `json:"userId"`
	GameID int    `json:"gameId"`
	Rating *int   `json:"rating"`
	Review string `json:"review"`
}

type historyReq struct {
	UserID int `json:"userId"`
	GameID int `json:"gameId"`
}

type getGameReq struct {
	GameName string `json:"gameName"`
}

func (s *Server) browseStore(ctx context.Context) resp {
	found, err := s.ds.Do(ctx, store.CollectionGame, store.ActionQuery, map[string]any{"browsing": true})
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
	return resp{"status": store.StatusSuccess, "games": games}
}

func (s *Server) getGameByName(ctx context.Context, raw json.RawMessage) resp {
	var req getGameReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid get_game_by_name request: %v", err)
	}
	if req.GameName == "" {
		return errResp("Missing gameName")
	}

	found, err := s.ds.Do(ctx, store.CollectionGame, store.ActionQuery, map[string]any{
		"name":   req.GameName,
		"status": model.GameActive,
	})
	if err != nil {
		return errResp("%v", err)
	}
	if found.OK() {
		if games, derr := dsclient.Rows[model.Game](found); derr == nil && len(games) > 0 {
			return resp{"status": store.StatusSuccess, "game": games[0]}
		}
	}
	return errResp("Game not found")
}

// downloadGame streams every file of one (game, version) to the caller. On
// success it writes the ready frame and the file sequence itself and returns
// nil; dispatch then writes nothing further.
func (s *Server) downloadGame(ctx context.Context, sess *Session, raw json.RawMessage) resp {
	var req downloadReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid download_game request: %v", err)
	}
	if req.GameID == 0 || req.Version == "" {
		return errResp("Missing gameId or version")
	}

	game, found := s.readGame(ctx, req.GameID)
	if !found {
		return errResp("Game not found")
	}
	if game.Status != model.GameActive {
		return errResp("Game is no longer available")
	}
	if !s.bundles.VersionExists(game.Name, req.Version) {
		return errResp("Game files not found on server")
	}

	files, err := s.bundles.WalkVersion(game.Name, req.Version)
	if err != nil {
		return errResp("%v", err)
	}
	if len(files) == 0 {
		return errResp("No game files found")
	}

	if err := protocol.WriteMessage(sess.conn, resp{
		"status":    "ready",
		"message":   "Ready to send files",
		"fileCount": len(files),
	}); err != nil {
		slog.Warn("failed to announce download", "gameId", req.GameID, "err", err)
		return nil
	}

	dir := s.bundles.VersionDir(game.Name, req.Version)
	for _, rel := range files {
		if err := protocol.WriteMessage(sess.conn, resp{"name": rel}); err != nil {
			slog.Warn("download aborted", "gameId", req.GameID, "file", rel, "err", err)
			return nil
		}
		if err := protocol.SendFile(sess.conn, filepath.Join(dir, rel)); err != nil {
			// A delist racing this download makes the read fail; surface it
			// as an error, never a partial success.
			slog.Warn("download failed", "gameId", req.GameID, "file", rel, "err", err)
			return errResp("Failed to send file: %s", rel)
		}
	}

	slog.Info("download served", "gameId", req.GameID, "version", req.Version, "files", len(files))
	return nil
}

// hasPlayed reports whether username appears in a game log bound to the
// given game, either directly or (when checkRooms is set) through the
// logged room's current binding.
func (s *Server) hasPlayed(ctx context.Context, username string, gameID int, gameName, gameVersion string, checkRooms bool) (bool, error) {
	found, err := s.ds.Do(ctx, store.CollectionGameLog, store.ActionQuery, map[string]any{})
	if err != nil {
		return false, err
	}
	if !found.OK() {
		return false, nil
	}
	logs, derr := dsclient.Rows[model.GameLog](found)
	if derr != nil {
		return false, derr
	}

	for _, log := range logs {
		sameGame := log.GameID == gameID ||
			(log.GameName == gameName && log.GameVersion == gameVersion)
		if sameGame && log.Played(username) {
			return true, nil
		}
		if !sameGame && checkRooms && log.RoomID != 0 {
			if room, ok := s.readRoom(ctx, log.RoomID); ok {
				if (room.GameID == gameID || room.GameName == gameName) && log.Played(username) {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func (s *Server) submitReview(ctx context.Context, raw json.RawMessage) resp {
	var req reviewReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid submit_review request: %v", err)
	}
	if req.UserID == 0 || req.GameID == 0 || req.Rating == nil {
		return errResp("Missing required fields")
	}
	if *req.Rating < 0 || *req.Rating > 5 {
		return errResp("Rating must be between 0 and 5")
	}

	ur, err := s.ds.Do(ctx, store.CollectionUser, store.ActionRead, map[string]any{"id": req.UserID})
	if err != nil {
		return errResp("%v", err)
	}
	if !ur.OK() {
		return errResp("User not found")
	}
	user, derr := dsclient.Row[model.User](ur)
	if derr != nil {
		return errResp("%v", derr)
	}

	game, found := s.readGame(ctx, req.GameID)
	if !found {
		return errResp("Game not found")
	}

	played, perr := s.hasPlayed(ctx, user.Name, req.GameID, game.Name, game.CurrentVersion, true)
	if perr != nil {
		return errResp("Failed to query game logs")
	}
	if !played {
		return errResp("You must play %q before rating or reviewing it", game.Name)
	}

	added, err := s.ds.Do(ctx, store.CollectionGame, store.ActionAddRating, map[string]any{
		"gameId": req.GameID,
		"userId": req.UserID,
		"rating": *req.Rating,
		"review": req.Review,
	})
	if err != nil {
		return errResp("%v", err)
	}
	if !added.OK() {
		return errResp("%s", added.Message)
	}

	slog.Info("review submitted", "userId", req.UserID, "gameId", req.GameID, "rating", *req.Rating)
	return okResp("Review submitted successfully")
}

func (s *Server) checkPlayHistory(ctx context.Context, raw json.RawMessage) resp {
	var req historyReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid check_play_history request: %v", err)
	}
	if req.UserID == 0 || req.GameID == 0 {
		return errResp("Missing required fields")
	}

	ur, err := s.ds.Do(ctx, store.CollectionUser, store.ActionRead, map[string]any{"id": req.UserID})
	if err != nil {
		return errResp("%v", err)
	}
	if !ur.OK() {
		return errResp("User not found")
	}
	user, derr := dsclient.Row[model.User](ur)
	if derr != nil {
		return errResp("%v", derr)
	}

	game, found := s.readGame(ctx, req.GameID)
	if !found {
		return errResp("Game not found")
	}

	played, perr := s.hasPlayed(ctx, user.Name, req.GameID, game.Name, game.CurrentVersion, false)
	if perr != nil {
		return errResp("Failed to query game logs")
	}
	return resp{
		"status":    store.StatusSuccess,
		"hasPlayed": played,
		"gameName":  game.Name,
	}
}
