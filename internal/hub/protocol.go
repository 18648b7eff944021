package hub

import (
	"encoding/json"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/Traejpg/mission-control-sub000/internal/fileservice"
	"github.com/Traejpg/mission-control-sub000/internal/index"
	"github.com/Traejpg/mission-control-sub000/internal/logbuf"
	"github.com/Traejpg/mission-control-sub000/internal/models"
)

// Client message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeRequest     = "request"
	TypeWriteFile   = "write_file"
	TypeDeleteFile  = "delete_file"
	TypePing        = "ping"
	TypePong        = "pong"
)

// Server message types.
const (
	TypeConnected      = "connected"
	TypeSubscribed     = "subscribed"
	TypeUnsubscribed   = "unsubscribed"
	TypeFiles          = "files"
	TypeTasks          = "tasks"
	TypeMemories       = "memories"
	TypeSessions       = "sessions"
	TypeLogs           = "logs"
	TypeStatus         = "status"
	TypeSearch         = "search"
	TypeFileChange     = "file_change"
	TypeFileAdd        = "file_add"
	TypeFileDelete     = "file_delete"
	TypeSessionOpen    = "session_open"
	TypeSessionClose   = "session_close"
	TypeWriteComplete  = "write_complete"
	TypeDeleteComplete = "delete_complete"
	TypeError          = "error"
)

// Channels with a snapshot. Clients may subscribe to other names; those
// receive only what is published to them.
const (
	ChannelFiles    = "files"
	ChannelTasks    = "tasks"
	ChannelMemories = "memories"
	ChannelSessions = "sessions"
	ChannelLogs     = "logs"
)

// Request resources.
const (
	ResourceFiles    = "files"
	ResourceTasks    = "tasks"
	ResourceMemories = "memories"
	ResourceSessions = "sessions"
	ResourceLogs     = "logs"
	ResourceStatus   = "status"
	ResourceSearch   = "search"
)

// Inbound is a decoded client message.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the envelope of every server message.
type Outbound struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// ConnectedPayload is the body of connected, sent once per connection.
type ConnectedPayload struct {
	ClientID string `json:"clientId"`
}

// ChannelsPayload is the body of subscribe and unsubscribe, and of the
// subscribed and unsubscribed acks, which carry the resulting channel set.
type ChannelsPayload struct {
	Channels []string `json:"channels"`
}

// RequestPayload is the body of request. Query and Limit apply to search.
type RequestPayload struct {
	Resource string `json:"resource"`
	Query    string `json:"query,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// WriteFilePayload is the body of write_file.
type WriteFilePayload struct {
	Date    string `json:"date"`
	Content string `json:"content"`
}

// Validate checks the write target.
func (p WriteFilePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Date, validation.Required, validation.Date(fileservice.DateLayout)),
	)
}

// DateRef is the body of delete_file, file_delete and delete_complete.
type DateRef struct {
	Date string `json:"date"`
}

// Validate checks the referenced key.
func (p DateRef) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Date, validation.Required),
	)
}

// FilesPayload is the files snapshot, most recent date first.
type FilesPayload struct {
	Files []models.File `json:"files"`
}

// FilePayload is the body of file_add and file_change.
type FilePayload struct {
	File models.File `json:"file"`
}

// WriteCompletePayload acknowledges a write_file to its sender.
type WriteCompletePayload struct {
	Date         string `json:"date"`
	LastModified int64  `json:"lastModified"`
}

// TasksPayload is the tasks snapshot across all files.
type TasksPayload struct {
	Tasks []models.Task `json:"tasks"`
}

// MemoriesPayload is the memories snapshot across all files.
type MemoriesPayload struct {
	Memories []models.Memory `json:"memories"`
}

// SessionsPayload is the sessions snapshot.
type SessionsPayload struct {
	Sessions []models.Session `json:"sessions"`
}

// SessionPayload is the body of session_open and session_close.
type SessionPayload struct {
	Session models.Session `json:"session"`
}

// LogsPayload carries recent log entries, or a single new one.
type LogsPayload struct {
	Entries []logbuf.Entry `json:"entries"`
}

// SearchPayload answers a search request.
type SearchPayload struct {
	Query   string               `json:"query"`
	Results []index.SearchResult `json:"results"`
}

// ErrorPayload is the body of error replies.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Status summarizes server state for status snapshots.
type Status struct {
	ConnectedClients int   `json:"connectedClients"`
	Files            int   `json:"files"`
	UptimeSeconds    int64 `json:"uptimeSeconds"`
	StartedAt        int64 `json:"startedAt"`
	EventStreams     int   `json:"eventStreams"`
	Detector         any   `json:"detector,omitempty"`
}

var errMissingType = errors.New("missing type")

func decodeInbound(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("malformed message: %w", err)
	}
	if msg.Type == "" {
		return msg, fmt.Errorf("malformed message: %w", errMissingType)
	}
	return msg, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}

func encode(typ string, payload any, ts int64) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal(Outbound{Type: typ, Payload: payload, Timestamp: ts})
}
