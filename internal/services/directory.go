package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/tipjar/broker/internal/models"
	"go.uber.org/zap"
)

// StreamerStore is the profile document store. Implementations report
// models.ErrNotFound, models.ErrDuplicateUserName, models.ErrIdentityExists
// and models.ErrStoreConflict.
type StreamerStore interface {
	Get(ctx context.Context, id string) (*models.StreamerProfile, error)
	GetByUserName(ctx context.Context, userName string) (*models.StreamerProfile, error)
	Insert(ctx context.Context, p *models.StreamerProfile) error
	Update(ctx context.Context, p *models.StreamerProfile) error
	SetOnline(ctx context.Context, id string, online bool) error
	ClearOnline(ctx context.Context) error
	ListOnline(ctx context.Context) iter.Seq2[models.StreamerProfile, error]
}

// Directory is the query and mutation facade over streamer profiles.
type Directory struct {
	store    StreamerStore
	bindings *Bindings
	log      *zap.Logger
}

func NewDirectory(store StreamerStore, bindings *Bindings, log *zap.Logger) *Directory {
	return &Directory{store: store, bindings: bindings, log: log}
}

// Create registers a new streamer. The username is stored trimmed and must
// be free in any casing.
func (d *Directory) Create(ctx context.Context, p *models.StreamerProfile) (*models.StreamerProfile, error) {
	created := *p
	created.UserName = strings.TrimSpace(p.UserName)
	if _, err := d.store.GetByUserName(ctx, created.UserName); err == nil {
		return nil, fmt.Errorf("create %q: %w", created.UserName, models.ErrDuplicateUserName)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("lookup %q: %w", created.UserName, err)
	}

	created.IsOnline = false
	if created.CreationDate.IsZero() {
		created.CreationDate = time.Now().UTC()
	}
	if err := d.store.Insert(ctx, &created); err != nil {
		return nil, fmt.Errorf("create %q: %w", p.UserName, err)
	}

	d.log.Info("streamer created",
		zap.String("streamer_id", created.ID),
		zap.String("user_name", created.UserName),
	)
	return &created, nil
}

func (d *Directory) FindByID(ctx context.Context, id string) (*models.StreamerProfile, error) {
	p, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find streamer %s: %w", id, err)
	}
	return p, nil
}

func (d *Directory) FindByUserName(ctx context.Context, userName string) (*models.StreamerProfile, error) {
	p, err := d.store.GetByUserName(ctx, models.NormalizeUserName(userName))
	if err != nil {
		return nil, fmt.Errorf("find streamer %q: %w", userName, err)
	}
	return p, nil
}

func (d *Directory) FindByConnectionHandle(ctx context.Context, handle string) (*models.StreamerProfile, error) {
	id, ok := d.bindings.Identity(handle)
	if !ok {
		return nil, fmt.Errorf("find streamer by connection %s: %w", handle, models.ErrNotFound)
	}
	return d.FindByID(ctx, id)
}

// Update replaces an existing profile. The caller's revision must match the
// stored one; a mismatch is models.ErrStoreConflict and should be retried
// after re-reading the profile.
func (d *Directory) Update(ctx context.Context, p *models.StreamerProfile) (*models.StreamerProfile, error) {
	updated := *p
	updated.UserName = strings.TrimSpace(p.UserName)
	if err := d.store.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update streamer %s: %w", p.ID, err)
	}
	d.log.Info("streamer updated",
		zap.String("streamer_id", updated.ID),
		zap.Int64("revision", updated.Revision),
	)
	return &updated, nil
}

func (d *Directory) SetOnlineStatus(ctx context.Context, id string, online bool) error {
	if err := d.store.SetOnline(ctx, id, online); err != nil {
		return fmt.Errorf("set online=%t for %s: %w", online, id, err)
	}
	return nil
}

// ResetOnline marks every streamer offline. Run at boot, when the binding
// table is empty.
func (d *Directory) ResetOnline(ctx context.Context) error {
	if err := d.store.ClearOnline(ctx); err != nil {
		return fmt.Errorf("reset online flags: %w", err)
	}
	return nil
}

// ListOnline yields public projections of online streamers ordered by
// display name. Each range re-reads the store.
func (d *Directory) ListOnline(ctx context.Context) iter.Seq2[models.PublicProfile, error] {
	return func(yield func(models.PublicProfile, error) bool) {
		for p, err := range d.store.ListOnline(ctx) {
			if err != nil {
				yield(models.PublicProfile{}, fmt.Errorf("list online streamers: %w", err))
				return
			}
			if !p.IsOnline {
				continue
			}
			if !yield(p.Public(), nil) {
				return
			}
		}
	}
}

// Seed inserts profiles whose id is not yet known. Returns how many were added.
func (d *Directory) Seed(ctx context.Context, profiles []models.StreamerProfile) (int, error) {
	added := 0
	for i := range profiles {
		p := profiles[i]
		if p.ID == "" {
			continue
		}
		_, err := d.Create(ctx, &p)
		switch {
		case err == nil:
			added++
		case errors.Is(err, models.ErrIdentityExists), errors.Is(err, models.ErrDuplicateUserName):
			d.log.Debug("seed profile skipped", zap.String("streamer_id", p.ID), zap.Error(err))
		default:
			return added, err
		}
	}
	return added, nil
}
