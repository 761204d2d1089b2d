package store

import (
	"encoding/json"

	"github.com/udisondev/gamehub/internal/model"
)

func (s *Store) handleGame(action string, data json.RawMessage) Response {
	switch action {
	case ActionCreate:
		var g model.Game
		if err := json.Unmarshal(data, &g); err != nil {
			return errorf("invalid game create data: %v", err)
		}
		g.ID = s.nextID(CollectionGame)
		g.Status = model.GameActive
		g.Ratings = []int{}
		g.Reviews = []model.Review{}
		if g.UpdatedAt == "" {
			g.UpdatedAt = g.UploadedAt
		}
		s.data.Games[key(g.ID)] = &g
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return Response{Status: StatusSuccess, GameID: g.ID}

	case ActionRead:
		var in readData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid game read data: %v", err)
		}
		g, ok := s.data.Games[key(in.ID)]
		if !ok {
			return errorf("Game not found")
		}
		return successData(g)

	case ActionUpdate:
		var in updateData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid game update data: %v", err)
		}
		g, ok := s.data.Games[key(in.ID)]
		if !ok {
			return errorf("Game not found")
		}
		if err := mergeFields(g, in.Fields); err != nil {
			return errorf("%v", err)
		}
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return success()

	case ActionAddRating:
		var in addRatingData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid add_rating data: %v", err)
		}
		g, ok := s.data.Games[key(in.GameID)]
		if !ok {
			return errorf("Game not found")
		}
		g.Ratings = append(g.Ratings, in.Rating)
		if in.Review != "" {
			g.Reviews = append(g.Reviews, model.Review{
				UserID:    in.UserID,
				Text:      in.Review,
				Timestamp: model.Timestamp(),
			})
		}
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return success()

	case ActionDelete:
		var in readData
		if err := json.Unmarshal(data, &in); err != nil {
			return errorf("invalid game delete data: %v", err)
		}
		if _, ok := s.data.Games[key(in.ID)]; !ok {
			return errorf("Game not found")
		}
		delete(s.data.Games, key(in.ID))
		if err := s.save(); err != nil {
			return errorf("Failed to save database: %v", err)
		}
		return success()

	case ActionQuery:
		var q gameQuery
		if err := json.Unmarshal(data, &q); err != nil {
			return errorf("invalid game query: %v", err)
		}
		results := make([]*model.Game, 0)
		for _, g := range sortedByID(s.data.Games, func(g *model.Game) int { return g.ID }) {
			if q.Status != nil {
				if g.Status != *q.Status {
					continue
				}
			} else if q.Browsing && g.Status != model.GameActive {
				// browsing implies active when no explicit status filter
				continue
			}
			if q.DeveloperID != nil && g.DeveloperID != *q.DeveloperID {
				continue
			}
			if q.ID != nil && g.ID != *q.ID {
				continue
			}
			if q.Name != nil && g.Name != *q.Name {
				continue
			}
			results = append(results, g)
		}
		return successData(results)

	default:
		return errorf("Unknown action: %s", action)
	}
}
