package store

import (
	"encoding/json"

	"github.com/udisondev/gamehub/internal/model"
)

func (s *Store) handleUser(action string, data json.RawMessage) Response {
	switch action {
	case ActionCreate:
		var in createAccountData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid user create data: %v", err)
		}
		for _, u := range s.data.Users {
			if u.Name == in.Name {
				return errorf("Username already exists")
			}
		}
		id := s.nextID(CollectionUser)
		s.data.Users[key(id)] = &model.User{
			ID:           id,
			Name:         in.Name,
			PasswordHash: model.HashPassword(in.Password),
			CreatedAt:    model.Timestamp(),
			Online:       0,
		}
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return Response{Status: StatusSuccess, UserID: id}

	case ActionRead:
		var in readData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid user read data: %v", err)
		}
		u, ok := s.data.Users[key(in.ID)]
		if !ok {
			return errorf("User not found")
		}
		return successData(u)

	case ActionUpdate:
		var in updateData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid user update data: %v", err)
		}
		u, ok := s.data.Users[key(in.ID)]
		if !ok {
			return errorf("User not found")
		}
		if err := mergeFields(u, in.Fields); err != nil {
			return errorf("%v", err)
		}
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return success()

	case ActionDelete:
		var in readData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid user delete data: %v", err)
		}
		if _, ok := s.data.Users[key(in.ID)]; !ok {
			return errorf("User not found")
		}
		delete(s.data.Users, key(in.ID))
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return success()

	case ActionQuery:
		var q accountQuery
		if err := json.Unmarshal(data, &q); err != nil {
			return errorf("invalid user query: %v", err)
		}
		results := make([]*model.User, 0)
		for _, u := range sortedByID(s.data.Users, func(u *model.User) int { return u.ID }) {
			if q.ID != nil && u.ID != *q.ID {
				continue
			}
			if q.Name != nil && u.Name != *q.Name {
				continue
			}
			if q.Online != nil && u.Online != *q.Online {
				continue
			}
			results = append(results, u)
		}
		return successData(results)

	default:
		return errorf("Unknown action: %s", action)
	}
}

func (s *Store) handleDeveloper(action string, data json.RawMessage) Response {
	switch action {
	case ActionCreate:
		var in createAccountData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid developer create data: %v", err)
		}
		for _, d := range s.data.Developers {
			if d.Name == in.Name {
				return errorf("Developer name already exists")
			}
		}
		id := s.nextID(CollectionDeveloper)
		s.data.Developers[key(id)] = &model.Developer{
			ID:           id,
			Name:         in.Name,
			PasswordHash: model.HashPassword(in.Password),
			CreatedAt:    model.Timestamp(),
		}
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return Response{Status: StatusSuccess, UserID: id}

	case ActionRead:
		var in readData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid developer read data: %v", err)
		}
		d, ok := s.data.Developers[key(in.ID)]
		if !ok {
			return errorf("Developer not found")
		}
		return successData(d)

	case ActionUpdate:
		var in updateData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid developer update data: %v", err)
		}
		d, ok := s.data.Developers[key(in.ID)]
		if !ok {
			return errorf("Developer not found")
		}
		if err := mergeFields(d, in.Fields); err != nil {
			return errorf("%v", err)
		}
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return success()

	case ActionQuery:
		var q accountQuery
		if err := json.Unmarshal(data, &q); err != nil {
			return errorf("invalid developer query: %v", err)
		}
		results := make([]*model.Developer, 0)
		for _, d := range sortedByID(s.data.Developers, func(d *model.Developer) int { return d.ID }) {
			if q.ID != nil && d.ID != *q.ID {
				continue
			}
			if q.Name != nil && d.Name != *q.Name {
				continue
			}
			results = append(results, d)
		}
		return successData(results)

	default:
		return errorf("Unknown action: %s", action)
	}
}
