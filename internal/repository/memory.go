package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/campaign-messaging/internal/errors"
	"github.com/unclebandit/campaign-messaging/internal/model"
)

// MemoryStore keeps campaigns, clients and messages in process memory. It
// backs STORE_BACKEND=memory and the service tests.
type MemoryStore struct {
	mu        sync.RWMutex
	campaigns map[string]*model.Campaign
	clients   map[string]model.Client
	messages  []*model.Message
	byID      map[string]*model.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns: make(map[string]*model.Campaign),
		clients:   make(map[string]model.Client),
		byID:      make(map[string]*model.Message),
	}
}

// Store wraps the memory store as a Store.
func (s *MemoryStore) Store() *Store {
	return &Store{
		Campaigns: (*memoryCampaigns)(s),
		Clients:   (*memoryClients)(s),
		Messages:  (*memoryMessages)(s),
	}
}

// AllMessages returns a snapshot of every message in insertion order.
func (s *MemoryStore) AllMessages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = *m
	}
	return out
}

type memoryCampaigns MemoryStore

func (s *memoryCampaigns) Create(ctx context.Context, c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	stored := *c
	s.campaigns[c.ID] = &stored
	return nil
}

func (s *memoryCampaigns) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	out := *c
	return &out, nil
}

func (s *memoryCampaigns) SetStatus(ctx context.Context, id, status string, startedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	if startedAt != nil {
		t := *startedAt
		c.StartedAt = &t
	}
	return nil
}

func (s *memoryCampaigns) TransitionStatus(ctx context.Context, id, from, to string, startedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return false, appErrors.NewCampaignNotFound(id)
	}
	if c.Status != from {
		return false, nil
	}
	c.Status = to
	if startedAt != nil {
		t := *startedAt
		c.StartedAt = &t
	}
	return true, nil
}

func (s *memoryCampaigns) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []*model.Campaign
	for _, c := range s.campaigns {
		if status != "" && c.Status != status {
			continue
		}
		out := *c
		filtered = append(filtered, &out)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].ID < filtered[j].ID
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

type memoryClients MemoryStore

func (s *memoryClients) GetByPhone(ctx context.Context, phone string) (*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[phone]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memoryClients) ListOptedIn(ctx context.Context) ([]model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clients := []model.Client{}
	for _, c := range s.clients {
		if c.OptIn {
			clients = append(clients, c)
		}
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Phone < clients[j].Phone })
	return clients, nil
}

func (s *memoryClients) Upsert(ctx context.Context, c *model.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.Phone] = *c
	return nil
}

type memoryMessages MemoryStore

func (s *memoryMessages) InsertMany(ctx context.Context, msgs []*model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		stored := *m
		s.messages = append(s.messages, &stored)
		s.byID[stored.MessageID] = &stored
	}
	return nil
}

func (s *memoryMessages) GetByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[messageID]
	if !ok {
		return nil, nil
	}
	out := *m
	return &out, nil
}

func (s *memoryMessages) UpdateByMessageID(ctx context.Context, messageID string, u model.MessageUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byID[messageID]; ok && !u.Blocked(m.Status) {
		applyUpdate(m, u)
	}
	return nil
}

func (s *memoryMessages) UpdateByProviderSID(ctx context.Context, sid string, u model.MessageUpdate) (bool, error) {
	if sid == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ProviderSID == sid && !u.Blocked(m.Status) {
			applyUpdate(m, u)
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryMessages) StatusCounts(ctx context.Context, campaignID string) ([]model.StatusCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[model.MessageStatus]int{}
	for _, m := range s.messages {
		if m.CampaignID == campaignID {
			counts[m.Status]++
		}
	}
	stats := []model.StatusCount{}
	for status, n := range counts {
		stats = append(stats, model.StatusCount{Status: status, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Status < stats[j].Status })
	return stats, nil
}

func applyUpdate(m *model.Message, u model.MessageUpdate) {
	m.Status = u.Status
	m.UpdatedAt = time.Now().UTC()
	if u.ProviderSID != "" {
		m.ProviderSID = u.ProviderSID
	}
	if u.SetErrorCode {
		if u.ErrorCode == nil {
			m.ErrorCode = nil
		} else {
			code := *u.ErrorCode
			m.ErrorCode = &code
		}
	}
}
