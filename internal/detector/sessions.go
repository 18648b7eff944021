package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Traejpg/mission-control-sub000/internal/checksum"
	"github.com/Traejpg/mission-control-sub000/internal/hub"
	"github.com/Traejpg/mission-control-sub000/internal/models"
)

// Publisher delivers a message to a channel's subscribers.
type Publisher interface {
	Publish(channel, typ string, payload any)
}

// SessionSource polls the gateway for active agent sessions.
type SessionSource struct {
	endpoint  string
	client    *http.Client
	publisher Publisher
	logger    *slog.Logger

	mu      sync.RWMutex
	current []models.Session
}

// NewSessionSource creates a source reading {baseURL}/api/sessions.
func NewSessionSource(baseURL string, timeout time.Duration, publisher Publisher, logger *slog.Logger) *SessionSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSource{
		endpoint:  strings.TrimRight(baseURL, "/") + "/api/sessions",
		client:    &http.Client{Timeout: timeout},
		publisher: publisher,
		logger:    logger,
		current:   []models.Session{},
	}
}

func (s *SessionSource) Name() string { return "sessions" }

type sessionsResponse struct {
	Sessions []models.Session `json:"sessions"`
}

// Snapshot fetches the session list and fingerprints key and status pairs.
func (s *SessionSource) Snapshot(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sessions: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sessions: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("sessions: fetch: unexpected status %d", resp.StatusCode)
	}

	var body sessionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Snapshot{}, fmt.Errorf("sessions: decode: %w", err)
	}
	sessions := body.Sessions
	if sessions == nil {
		sessions = []models.Session{}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Key < sessions[j].Key })

	parts := make([]string, len(sessions))
	for i, ss := range sessions {
		parts[i] = ss.Key + ":" + ss.Status
	}
	return Snapshot{
		Fingerprint: checksum.Fingerprint(parts),
		Apply: func(context.Context) error {
			s.apply(sessions)
			return nil
		},
	}, nil
}

// apply stores the new list, then publishes open and close events for keys
// that appeared or vanished, followed by the full list.
func (s *SessionSource) apply(sessions []models.Session) {
	s.mu.Lock()
	prev := s.current
	s.current = sessions
	s.mu.Unlock()

	before := make(map[string]models.Session, len(prev))
	for _, ss := range prev {
		before[ss.Key] = ss
	}
	after := make(map[string]struct{}, len(sessions))
	for _, ss := range sessions {
		after[ss.Key] = struct{}{}
		if _, ok := before[ss.Key]; !ok {
			s.publisher.Publish(hub.ChannelSessions, hub.TypeSessionOpen, hub.SessionPayload{Session: ss})
		}
	}
	for _, ss := range prev {
		if _, ok := after[ss.Key]; !ok {
			s.publisher.Publish(hub.ChannelSessions, hub.TypeSessionClose, hub.SessionPayload{Session: ss})
		}
	}
	s.publisher.Publish(hub.ChannelSessions, hub.TypeSessions, hub.SessionsPayload{Sessions: sessions})
	s.logger.Debug("detector: sessions changed", slog.Int("count", len(sessions)))
}

// Sessions returns the last applied session list.
func (s *SessionSource) Sessions() []models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Session{}, s.current...)
}
