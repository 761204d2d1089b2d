package devsvc

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

func (s *Server) registerDeveloper(ctx context.Context, raw json.RawMessage) resp {
	var req credentialsReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid dev_register request: %v", err)
	}
	if req.Username == "" || req.Password == "" {
		return errResp("Missing username or password")
	}

	created, err := s.ds.Do(ctx, store.CollectionDeveloper, store.ActionCreate, map[string]any{
		"name":     req.Username,
		"password": req.Password,
	})
	if err != nil {
		return errResp("%v", err)
	}
	if !created.OK() {
		return errResp("%s", created.Message)
	}

	slog.Info("developer registered", "name", req.Username, "devId", created.UserID)
	return resp{
		"status":  store.StatusSuccess,
		"message": "Developer registration successful",
		"devId":   created.UserID,
	}
}

func (s *Server) loginDeveloper(ctx context.Context, raw json.RawMessage) resp {
	var req credentialsReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResp("invalid dev_login request: %v", err)
	}

	found, err := s.ds.Do(ctx, store.CollectionDeveloper, store.ActionQuery, map[string]any{
		"name": req.Username,
	})
	if err != nil {
		return errResp("%v", err)
	}
	devs, derr := dsclient.Rows[model.Developer](found)
	if !found.OK() || derr != nil || len(devs) == 0 {
		return errResp("Developer account not found")
	}

	dev := devs[0]
	if dev.PasswordHash != model.HashPassword(req.Password) {
		return errResp("Invalid password")
	}

	slog.Info("developer logged in", "name", dev.Name, "devId", dev.ID)
	return resp{
		"status":  store.StatusSuccess,
		"message": "Login successful",
		"devId":   dev.ID,
	}
}
