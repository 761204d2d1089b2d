package lobby

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/udisondev/gamehub/internal/dsclient"
	"github.com/udisondev/gamehub/internal/model"
	"github.com/udisondev/gamehub/internal/store"
)

type roomIDReq struct {
	RoomID int `json:"roomId"`
}

type createRoomReq struct {
	RoomName   string `json:"room_name"`
	Visibility string `json:"visibility"`
	GameName   string `json:"game_name"`
}

type inviteReq struct {
	RoomID       int `json:"roomId"`
	TargetUserID int `json:"targetUserId"`
}

// currentUser snapshots the session binding under the lobby lock.
func (s *Server) currentUser(sess *Session) (int, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.userID == 0 {
		return 0, "", false
	}
	return sess.userID, sess.username, true
}

// readRoom fetches one room row, mapping any store failure to (nil, false).
func (s *Server) readRoom(ctx context.Context, roomID int) (*model.Room, bool) {
	found, err := s.ds.Do(ctx, store.CollectionRoom, store.ActionRead, map[string]any{"id": roomID})
	if err != nil || !found.OK() {
		return nil, false
	}
	room, derr := dsclient.Row[model.Room](found)
	if derr != nil {
		return nil, false
	}
	return &room, true
}

// readGame fetches one game row, mapping any store failure to (nil, false).
func (s *Server) readGame(ctx context.Context, gameID int) (*model.Game, bool) {
	found, err := s.ds.Do(ctx, store.CollectionGame, store.ActionRead, map[string]any{"id": gameID})
	if err != nil || !found.OK() {
		return nil, false
	}
	game, derr := dsclient.Row[model.Game](found)
	if derr != nil {
		return nil, false
	}
	return &game, true
}

// roomCapacity resolves maxPlayers through the room's bound game, falling
// back to 2 when no game is bound.
func (s *Server) roomCapacity(ctx context.Context, room *model.Room) int {
	if room.GameID == 0 {
		return 2
	}
	game, ok := s.readGame(ctx, room.GameID)
	if !ok || game.MaxPlayers < 2 {
		return 2
	}
	return game.MaxPlayers
}

func (s *Server) listRooms(ctx context.Context) resp {
	found, err := s.ds.Do(ctx, store.CollectionRoom, store.ActionQuery, map[string]any{})
	if err != nil {
		return errResp("%v", err)
	}
	if !found.OK() {
		return errResp("%s", found.Message)
	}
	rooms, derr := dsclient.Rows[model.Room](found)
	if derr != nil {
		return errResp("%v", derr)
	}

	out := make([]resp, 0, len(rooms))
	for _, room := range rooms {
		hostName := "Unknown"
		if hr, err := s.ds.Do(ctx, store.CollectionUser, store.ActionQuery, map[string]any{"id": room.HostUserID}); err == nil && hr.OK() {
			if users, derr := dsclient.Rows[model.User](hr); derr == nil && len(users) > 0 {
				hostName = users[0].Name
			}
		}
		maxPlayers := s.roomCapacity(ctx, &room)

		s.mu.Lock()
		members := len(s.roomMembers[room.ID])
		s.mu.Unlock()

		gameName := room.GameName
		if gameName == "" {
			gameName = "Unknown Game"
		}
		out = append(out, resp{
			"id":          room.ID,
			"name":        room.Name,
			"host":        hostName,
			"visibility":  room.Visibility,
			"status":      room.Status,
			"members":     members,
			"max_players": maxPlayers,
			"game_name":   gameName,
		})
	}
	return resp{"status": store.StatusSuccess, "rooms": out}
}

func (s *Server) createRoom(ctx context.Context, sess *Session, raw json.RawMessage) resp {
	userID, _, ok := s.currentUser(sess)
	if !ok {
		return errResp("Not logged in")
	}

	var req createRoomReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid create_room request: %v", err)
	}
	if req.GameName == "" {
		return errResp("Game name is required to create a room")
	}
	if req.Visibility == "" {
		req.Visibility = model.VisibilityPublic
	}

	active, err := s.ds.Do(ctx, store.CollectionGame, store.ActionQuery, map[string]any{
		"name":   req.GameName,
		"status": model.GameActive,
	})
	if err != nil {
		return errResp("%v", err)
	}
	if !active.OK() {
		return errResp("Failed to query game information")
	}
	games, derr := dsclient.Rows[model.Game](active)
	if derr != nil {
		return errResp("%v", derr)
	}
	if len(games) == 0 {
		// Distinguish "delisted" from "never existed".
		all, err := s.ds.Do(ctx, store.CollectionGame, store.ActionQuery, map[string]any{"name": req.GameName})
		if err == nil && all.OK() {
			if anyVersion, derr := dsclient.Rows[model.Game](all); derr == nil && len(anyVersion) > 0 {
				return errResp("Game %q has been removed by developer and is no longer available, please choose another game", req.GameName)
			}
		}
		return errResp("Game %q not found", req.GameName)
	}
	gameID := games[0].ID

	created, err := s.ds.Do(ctx, store.CollectionRoom, store.ActionCreate, map[string]any{
		"name":         req.RoomName,
		"host_user_id": userID,
		"visibility":   req.Visibility,
		"invitelist":   []int{},
		"game_name":    req.GameName,
		"game_id":      gameID,
	})
	if err != nil {
		return errResp("%v", err)
	}
	if !created.OK() {
		return errResp("%s", created.Message)
	}
	roomID := created.RoomID

	s.mu.Lock()
	s.roomMembers[roomID] = map[int]struct{}{userID: {}}
	s.mu.Unlock()

	slog.Info("room created", "roomId", roomID, "host", userID, "game", req.GameName)
	return resp{"status": store.StatusSuccess, "message": "Room created", "roomId": roomID}
}

func (s *Server) joinRoom(ctx context.Context, sess *Session, raw json.RawMessage, fromInvitation bool) resp {
	userID, _, ok := s.currentUser(sess)
	if !ok {
		return errResp("Not logged in")
	}

	var req roomIDReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid join_room request: %v", err)
	}

	room, found := s.readRoom(ctx, req.RoomID)
	if !found {
		return errResp("Room not found")
	}

	if room.Visibility == model.VisibilityPrivate && userID != room.HostUserID && !fromInvitation {
		return errResp("This is a private room. Please use accept invitation to join.")
	}
	if room.Status == model.RoomPlaying {
		return errResp("Game already started")
	}

	maxPlayers := s.roomCapacity(ctx, room)

	s.mu.Lock()
	members, ok := s.roomMembers[room.ID]
	if !ok {
		members = make(map[int]struct{})
		s.roomMembers[room.ID] = members
	}
	if _, already := members[userID]; !already && len(members) >= maxPlayers {
		s.mu.Unlock()
		return errResp("Room is full")
	}
	members[userID] = struct{}{}
	s.mu.Unlock()

	slog.Info("user joined room", "userId", userID, "roomId", room.ID)
	return resp{
		"status":  store.StatusSuccess,
		"message": "Joined room",
		"roomId":  room.ID,
		"isHost":  room.HostUserID == userID,
	}
}

func (s *Server) leaveRoom(sess *Session, raw json.RawMessage) resp {
	userID, _, ok := s.currentUser(sess)
	if !ok {
		return errResp("Not logged in")
	}

	var req roomIDReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid leave_room request: %v", err)
	}

	s.mu.Lock()
	members, exists := s.roomMembers[req.RoomID]
	if !exists {
		s.mu.Unlock()
		return errResp("Not in this room")
	}
	delete(members, userID)
	// empty rooms are retained; the next lobby restart purges them
	s.mu.Unlock()

	slog.Info("user left room", "userId", userID, "roomId", req.RoomID)
	return okResp("Left room")
}

func (s *Server) inviteUser(ctx context.Context, sess *Session, raw json.RawMessage) resp {
	userID, _, ok := s.currentUser(sess)
	if !ok {
		return errResp("Not logged in")
	}

	var req inviteReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid invite_user request: %v", err)
	}
	if req.TargetUserID == userID {
		return errResp("Cannot invite yourself")
	}

	room, found := s.readRoom(ctx, req.RoomID)
	if !found {
		return errResp("Room not found")
	}
	if room.HostUserID != userID {
		return errResp("Only host can invite")
	}

	s.mu.Lock()
	if _, online := s.onlineUsers[req.TargetUserID]; !online {
		s.mu.Unlock()
		return errResp("User not online")
	}
	for _, inv := range s.invitations[req.TargetUserID] {
		if inv.RoomID == req.RoomID {
			s.mu.Unlock()
			return errResp("Already invited")
		}
	}
	hostName := s.userNames[userID]
	gameName := room.GameName
	if gameName == "" {
		gameName = "Unknown Game"
	}
	s.invitations[req.TargetUserID] = append(s.invitations[req.TargetUserID], Invitation{
		RoomID:   req.RoomID,
		RoomName: room.Name,
		Host:     hostName,
		GameName: gameName,
	})
	s.mu.Unlock()

	if !room.Invited(req.TargetUserID) {
		inviteList := append(append([]int{}, room.InviteList...), req.TargetUserID)
		if _, err := s.ds.Do(ctx, store.CollectionRoom, store.ActionUpdate, map[string]any{
			"id":     req.RoomID,
			"fields": map[string]any{"invitelist": inviteList},
		}); err != nil {
			slog.Error("failed to persist invite list", "roomId", req.RoomID, "err", err)
		}
	}

	slog.Info("invitation sent", "from", userID, "to", req.TargetUserID, "roomId", req.RoomID)
	return okResp("Invitation sent")
}

func (s *Server) listInvitations(sess *Session) resp {
	userID, _, ok := s.currentUser(sess)
	if !ok {
		return errResp("Not logged in")
	}

	s.mu.Lock()
	invitations := append([]Invitation{}, s.invitations[userID]...)
	s.mu.Unlock()

	return resp{"status": store.StatusSuccess, "invitations": invitations}
}

func (s *Server) acceptInvitation(ctx context.Context, sess *Session, raw json.RawMessage) resp {
	userID, _, ok := s.currentUser(sess)
	if !ok {
		return errResp("Not logged in")
	}

	var req roomIDReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid accept_invitation request: %v", err)
	}

	s.mu.Lock()
	pending, exists := s.invitations[userID]
	if !exists || len(pending) == 0 {
		s.mu.Unlock()
		return errResp("No invitation found")
	}
	kept := pending[:0]
	found := false
	for _, inv := range pending {
		if inv.RoomID == req.RoomID {
			found = true
			continue
		}
		kept = append(kept, inv)
	}
	s.invitations[userID] = kept
	s.mu.Unlock()

	if !found {
		return errResp("No invitation for this room")
	}
	return s.joinRoom(ctx, sess, raw, true)
}
