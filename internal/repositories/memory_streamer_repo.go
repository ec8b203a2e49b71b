package repositories

import (
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/tipjar/broker/internal/models"
)

// MemoryStreamerRepo keeps profiles in process memory. Used for development
// and tests; nothing survives a restart.
type MemoryStreamerRepo struct {
	mu     sync.RWMutex
	byID   map[string]models.StreamerProfile
	byName map[string]string // normalized userName -> id
}

func NewMemoryStreamerRepo() *MemoryStreamerRepo {
	return &MemoryStreamerRepo{
		byID:   make(map[string]models.StreamerProfile),
		byName: make(map[string]string),
	}
}

func (r *MemoryStreamerRepo) Get(_ context.Context, id string) (*models.StreamerProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (r *MemoryStreamerRepo) GetByUserName(_ context.Context, userName string) (*models.StreamerProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[models.NormalizeUserName(userName)]
	if !ok {
		return nil, models.ErrNotFound
	}
	p := r.byID[id]
	return &p, nil
}

func (r *MemoryStreamerRepo) Insert(_ context.Context, p *models.StreamerProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[p.ID]; ok {
		return models.ErrIdentityExists
	}
	key := models.NormalizeUserName(p.UserName)
	if _, ok := r.byName[key]; ok {
		return models.ErrDuplicateUserName
	}

	p.Revision = 1
	r.byID[p.ID] = *p
	r.byName[key] = p.ID
	return nil
}

func (r *MemoryStreamerRepo) Update(_ context.Context, p *models.StreamerProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[p.ID]
	if !ok {
		return models.ErrNotFound
	}
	if current.Revision != p.Revision {
		return models.ErrStoreConflict
	}

	oldKey := models.NormalizeUserName(current.UserName)
	newKey := models.NormalizeUserName(p.UserName)
	if newKey != oldKey {
		if _, taken := r.byName[newKey]; taken {
			return models.ErrDuplicateUserName
		}
		delete(r.byName, oldKey)
		r.byName[newKey] = p.ID
	}

	p.IsOnline = current.IsOnline
	p.CreationDate = current.CreationDate
	p.Revision = current.Revision + 1
	r.byID[p.ID] = *p
	return nil
}

func (r *MemoryStreamerRepo) SetOnline(_ context.Context, id string, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	p.IsOnline = online
	r.byID[id] = p
	return nil
}

func (r *MemoryStreamerRepo) ClearOnline(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.byID {
		if p.IsOnline {
			p.IsOnline = false
			r.byID[id] = p
		}
	}
	return nil
}

// ListOnline snapshots the online profiles when ranging starts, so every
// range observes the state at that moment.
func (r *MemoryStreamerRepo) ListOnline(_ context.Context) iter.Seq2[models.StreamerProfile, error] {
	return func(yield func(models.StreamerProfile, error) bool) {
		r.mu.RLock()
		online := make([]models.StreamerProfile, 0, len(r.byID))
		for _, p := range r.byID {
			if p.IsOnline {
				online = append(online, p)
			}
		}
		r.mu.RUnlock()

		sort.Slice(online, func(i, j int) bool {
			if online[i].DisplayName != online[j].DisplayName {
				return online[i].DisplayName < online[j].DisplayName
			}
			return online[i].ID < online[j].ID
		})

		for _, p := range online {
			if !yield(p, nil) {
				return
			}
		}
	}
}
