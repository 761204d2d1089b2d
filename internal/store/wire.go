package store

import (
	"encoding/json"
	"fmt"
)

// Collection names.
const (
	CollectionUser      = "User"
	CollectionDeveloper = "Developer"
	CollectionGame      = "Game"
	CollectionRoom      = "Room"
	CollectionGameLog   = "GameLog"
)

// Actions understood by the data store.
const (
	ActionCreate    = "create"
	ActionRead      = "read"
	ActionUpdate    = "update"
	ActionDelete    = "delete"
	ActionQuery     = "query"
	ActionAddRating = "add_rating"
)

// Request is the envelope every data store request arrives in.
type Request struct {
	Collection string          `json:"collection"`
	Action     string          `json:"action"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Response is the envelope every data store reply leaves in.
type Response struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	UserID  int             `json:"userId,omitempty"`
	RoomID  int             `json:"roomId,omitempty"`
	GameID  int             `json:"gameId,omitempty"`
	LogID   int             `json:"logId,omitempty"`
}

// Wire status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// OK reports whether the response carries StatusSuccess.
func (r Response) OK() bool { return r.Status == StatusSuccess }

func success() Response {
	return Response{Status: StatusSuccess}
}

func successData(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return errorf("encoding response data: %v", err)
	}
	return Response{Status: StatusSuccess, Data: data}
}

func errorf(format string, args ...any) Response {
	return Response{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// Typed request payloads. The dispatch decodes Data into exactly one of
// these per (collection, action) pair, so malformed shapes fail before any
// catalog state is touched.

type createAccountData struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type readData struct {
	ID int `json:"id"`
}

type updateData struct {
	ID     int             `json:"id"`
	Fields json.RawMessage `json:"fields"`
}

type accountQuery struct {
	ID     *int    `json:"id"`
	Name   *string `json:"name"`
	Online *int    `json:"online"`
}

type gameQuery struct {
	ID          *int    `json:"id"`
	Name        *string `json:"name"`
	DeveloperID *int    `json:"developerId"`
	Status      *string `json:"status"`
	Browsing    bool    `json:"browsing"`
}

type addRatingData struct {
	GameID int    `json:"gameId"`
	UserID int    `json:"userId"`
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

type roomQuery struct {
	Visibility *string `json:"visibility"`
	Status     *string `json:"status"`
}

type gameLogQuery struct {
	RoomID *int `json:"roomId"`
}
