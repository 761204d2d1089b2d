package store

import (
	"encoding/json"

	"github.com/udisondev/gamehub/internal/model"
)

type createRoomData struct {
	Name       string `json:"name"`
	HostUserID int    `json:"host_user_id"`
	Visibility string `json:"visibility"`
	InviteList []int  `json:"invitelist"`
	GameName   string `json:"game_name"`
	GameID     int    `json:"game_id"`
}

func (s *Store) handleRoom(action string, data json.RawMessage) Response {
	switch action {
	case ActionCreate:
		var in createRoomData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid room create data: %v", err)
		}
		id := s.nextID(CollectionRoom)
		invites := in.InviteList
		if invites == nil {
			invites = []int{}
		}
		s.data.Rooms[key(id)] = &model.Room{
			ID:         id,
			Name:       in.Name,
			HostUserID: in.HostUserID,
			Visibility: in.Visibility,
			InviteList: invites,
			GameName:   in.GameName,
			GameID:     in.GameID,
			Status:     model.RoomIdle,
			CreatedAt:  model.Timestamp(),
		}
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return Response{Status: StatusSuccess, RoomID: id}

	case ActionRead:
		var in readData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid room read data: %v", err)
		}
		r, ok := s.data.Rooms[key(in.ID)]
		if !ok {
			return errorf("Room not found")
		}
		return successData(r)

	case ActionUpdate:
		var in updateData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid room update data: %v", err)
		}
		r, ok := s.data.Rooms[key(in.ID)]
		if !ok {
			return errorf("Room not found")
		}
		if err := mergeFields(r, in.Fields); err != nil {
			return errorf("%v", err)
		}
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return success()

	case ActionDelete:
		var in readData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid room delete data: %v", err)
		}
		if _, ok := s.data.Rooms[key(in.ID)]; !ok {
			return errorf("Room not found")
		}
		delete(s.data.Rooms, key(in.ID))
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return success()

	case ActionQuery:
		var q roomQuery
		if err := json.Unmarshal(data, &q); err != nil {
			return errorf("invalid room query: %v", err)
		}
		results := make([]*model.Room, 0)
		for _, r := range sortedByID(s.data.Rooms, func(r *model.Room) int { return r.ID }) {
			if q.Visibility != nil && r.Visibility != *q.Visibility {
				continue
			}
			if q.Status != nil && r.Status != *q.Status {
				continue
			}
			results = append(results, r)
		}
		return successData(results)

	default:
		return errorf("Unknown action: %s", action)
	}
}

func (s *Store) handleGameLog(action string, data json.RawMessage) Response {
	switch action {
	case ActionCreate:
		var l model.GameLog
		if err := json.Unmarshal(data, &l); err != nil {
			return errorf("invalid gamelog create data: %v", err)
		}
		l.ID = s.nextID(CollectionGameLog)
		if l.Users == nil {
			l.Users = []string{}
		}
		if l.Results == nil {
			l.Results = []model.MatchResult{}
		}
		s.data.GameLogs[key(l.ID)] = &l
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return Response{Status: StatusSuccess, LogID: l.ID}

	case ActionRead:
		var in readData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid gamelog read data: %v", err)
		}
		l, ok := s.data.GameLogs[key(in.ID)]
		if !ok {
			return errorf("GameLog not found")
		}
		return successData(l)

	case ActionUpdate:
		var in updateData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid gamelog update data: %v", err)
		}
		l, ok := s.data.GameLogs[key(in.ID)]
		if !ok {
			return errorf("GameLog not found")
		}
		if err := mergeFields(l, in.Fields); err != nil {
			return errorf("%v", err)
		}
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return success()

	case ActionQuery:
		var q gameLogQuery
		if err := json.Unmarshal(data, &q); err != nil {
			return errorf("invalid gamelog query: %v", err)
		}
		results := make([]*model.GameLog, 0)
		for _, l := range sortedByID(s.data.GameLogs, func(l *model.GameLog) int { return l.ID }) {
			if q.RoomID != nil && l.RoomID != *q.RoomID {
				continue
			}
			results = append(results, l)
		}
		return successData(results)

	default:
		return errorf("Unknown action: %s", action)
	}
}
