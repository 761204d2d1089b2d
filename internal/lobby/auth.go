package lobby

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/udisondev/gamehub/internal/dsclient"
	"github.com/udisondev/gamehub/internal/model"
	"github.com/udisondev/gamehub/internal/store"
)

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) register(ctx context.Context, raw json.RawMessage) resp {
	var req credentialsReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid register request: %v", err)
	}
	if req.Username == "" || req.Password == "" {
		return errResp("Username and password required")
	}

	check, err := s.ds.Do(ctx, store.CollectionUser, store.ActionQuery, map[string]any{"name": req.Username})
	if err != nil {
		return errResp("%v", err)
	}
	if check.OK() {
		if users, derr := dsclient.Rows[model.User](check); derr == nil && len(users) > 0 {
			return errResp("Username already exists")
		}
	}

	created, err := s.ds.Do(ctx, store.CollectionUser, store.ActionCreate, map[string]any{
		"name":     req.Username,
		"password": req.Password,
	})
	if err != nil {
		return errResp("%v", err)
	}
	if !created.OK() {
		return errResp("%s", created.Message)
	}

	slog.Info("user registered", "name", req.Username, "userId", created.UserID)
	return resp{"status": store.StatusSuccess, "message": "Registration successful", "userId": created.UserID}
}

func (s *Server) login(ctx context.Context, sess *Session, raw json.RawMessage) resp {
	var req credentialsReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid login request: %v", err)
	}

	found, err := s.ds.Do(ctx, store.CollectionUser, store.ActionQuery, map[string]any{"name": req.Username})
	if err != nil {
		return errResp("%v", err)
	}
	users, derr := dsclient.Rows[model.User](found)
	if !found.OK() || derr != nil || len(users) == 0 {
		return errResp("User not found")
	}
	user := users[0]

	if user.Online == 1 {
		return errResp("User already logged in")
	}
	if user.PasswordHash != model.HashPassword(req.Password) {
		return errResp("Invalid password")
	}

	s.mu.Lock()
	sess.userID = user.ID
	sess.username = user.Name
	s.onlineUsers[user.ID] = sess
	s.userNames[user.ID] = user.Name
	s.mu.Unlock()

	if _, err := s.ds.Do(ctx, store.CollectionUser, store.ActionUpdate, map[string]any{
		"id": user.ID,
		"fields": map[string]any{
			"online":      1,
			"lastLoginAt": model.Timestamp(),
		},
	}); err != nil {
		slog.Error("failed to mark user online", "userId", user.ID, "err", err)
	}

	slog.Info("user logged in", "name", user.Name, "userId", user.ID)
	return resp{"status": store.StatusSuccess, "message": "Login successful", "userId": user.ID}
}

func (s *Server) logout(ctx context.Context, sess *Session) resp {
	s.mu.Lock()
	userID := sess.userID
	if userID == 0 {
		s.mu.Unlock()
		return errResp("Not logged in")
	}
	delete(s.onlineUsers, userID)
	delete(s.userNames, userID)
	sess.userID = 0
	sess.username = ""
	s.mu.Unlock()

	if _, err := s.ds.Do(ctx, store.CollectionUser, store.ActionUpdate, map[string]any{
		"id":     userID,
		"fields": map[string]any{"online": 0},
	}); err != nil {
		slog.Error("failed to mark user offline", "userId", userID, "err", err)
	}

	slog.Info("user logged out", "userId", userID)
	return okResp("Logout successful")
}

func (s *Server) listUsers(ctx context.Context) resp {
	found, err := s.ds.Do(ctx, store.CollectionUser, store.ActionQuery, map[string]any{"online": 1})
	if err != nil {
		return errResp("%v", err)
	}
	if !found.OK() {
		return errResp("%s", found.Message)
	}
	users, derr := dsclient.Rows[model.User](found)
	if derr != nil {
		return errResp("%v", derr)
	}

	out := make([]resp, 0, len(users))
	for _, u := range users {
		out = append(out, resp{"id": u.ID, "name": u.Name})
	}
	return resp{"status": store.StatusSuccess, "users": out}
}

// handleDisconnect unwinds one dropped connection: the user goes offline,
// the session and its invitations disappear, and every room membership is
// released. Empty rooms are retained.
func (s *Server) handleDisconnect(ctx context.Context, sess *Session) {
	s.mu.Lock()
	userID := sess.userID
	if userID == 0 {
		s.mu.Unlock()
		return
	}
	delete(s.onlineUsers, userID)
	delete(s.userNames, userID)
	delete(s.invitations, userID)
	for _, members := range s.roomMembers {
		delete(members, userID)
	}
	sess.userID = 0
	sess.username = ""
	s.mu.Unlock()

	if _, err := s.ds.Do(ctx, store.CollectionUser, store.ActionUpdate, map[string]any{
		"id":     userID,
		"fields": map[string]any{"online": 0},
	}); err != nil {
		slog.Error("failed to mark user offline on disconnect", "userId", userID, "err", err)
	}

	slog.Info("user disconnected", "userId", userID)
}

// purgeRooms deletes every persisted room on startup. A lobby restart loses
// all transient membership, so surviving room rows would be unjoinable.
func (s *Server) purgeRooms(ctx context.Context) error {
	found, err := s.ds.Do(ctx, store.CollectionRoom, store.ActionQuery, map[string]any{})
	if err != nil {
		return err
	}
	if !found.OK() {
		slog.Warn("room purge query failed", "message", found.Message)
		return nil
	}
	rooms, derr := dsclient.Rows[model.Room](found)
	if derr != nil {
		return derr
	}
	for _, r := range rooms {
		if _, err := s.ds.Do(ctx, store.CollectionRoom, store.ActionDelete, map[string]any{"id": r.ID}); err != nil {
			return err
		}
	}
	if len(rooms) > 0 {
		slog.Info("purged stale rooms", "count", len(rooms))
	}
	return nil
}
