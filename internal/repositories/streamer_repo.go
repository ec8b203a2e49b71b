package repositories

import (
	"context"
	"errors"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tipjar/broker/internal/models"
)

const (
	pgUniqueViolation   = "23505"
	userNameUniqueIndex = "streamers_user_name_norm_key"
)

const streamerColumns = `id, user_name, display_name, profile_picture, stream, animation_settings,
	is_online, creation_date, wallet_sync_checkpoint, revision`

type StreamerRepo struct {
	pool *pgxpool.Pool
}

func NewStreamerRepo(pool *pgxpool.Pool) *StreamerRepo {
	return &StreamerRepo{pool: pool}
}

func scanStreamer(row pgx.Row) (*models.StreamerProfile, error) {
	var p models.StreamerProfile
	err := row.Scan(
		&p.ID, &p.UserName, &p.DisplayName, &p.ProfilePicture, &p.Stream, &p.AnimationSettings,
		&p.IsOnline, &p.CreationDate, &p.WalletSyncCheckpoint, &p.Revision,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *StreamerRepo) Get(ctx context.Context, id string) (*models.StreamerProfile, error) {
	return scanStreamer(r.pool.QueryRow(ctx, `SELECT `+streamerColumns+` FROM streamers WHERE id = $1`, id))
}

func (r *StreamerRepo) GetByUserName(ctx context.Context, userName string) (*models.StreamerProfile, error) {
	return scanStreamer(r.pool.QueryRow(ctx,
		`SELECT `+streamerColumns+` FROM streamers WHERE lower(btrim(user_name)) = $1`,
		models.NormalizeUserName(userName)))
}

func (r *StreamerRepo) Insert(ctx context.Context, p *models.StreamerProfile) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO streamers (id, user_name, display_name, profile_picture, stream, animation_settings,
			is_online, creation_date, wallet_sync_checkpoint, revision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
		RETURNING revision
	`, p.ID, p.UserName, p.DisplayName, p.ProfilePicture, p.Stream, p.AnimationSettings,
		p.IsOnline, p.CreationDate, p.WalletSyncCheckpoint,
	).Scan(&p.Revision)
	return mapWriteError(err)
}

// Update is a compare-and-swap on revision. is_online and creation_date are
// left untouched.
func (r *StreamerRepo) Update(ctx context.Context, p *models.StreamerProfile) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE streamers SET
			user_name = $3,
			display_name = $4,
			profile_picture = $5,
			stream = $6,
			animation_settings = $7,
			wallet_sync_checkpoint = $8,
			revision = revision + 1
		WHERE id = $1 AND revision = $2
		RETURNING is_online, creation_date, revision
	`, p.ID, p.Revision, p.UserName, p.DisplayName, p.ProfilePicture, p.Stream, p.AnimationSettings,
		p.WalletSyncCheckpoint,
	).Scan(&p.IsOnline, &p.CreationDate, &p.Revision)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM streamers WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return models.ErrNotFound
		}
		return models.ErrStoreConflict
	}
	return mapWriteError(err)
}

func (r *StreamerRepo) SetOnline(ctx context.Context, id string, online bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE streamers SET is_online = $2 WHERE id = $1`, id, online)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *StreamerRepo) ClearOnline(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `UPDATE streamers SET is_online = false WHERE is_online`)
	return err
}

// ListOnline streams rows as the caller ranges; each range runs a new query.
func (r *StreamerRepo) ListOnline(ctx context.Context) iter.Seq2[models.StreamerProfile, error] {
	return func(yield func(models.StreamerProfile, error) bool) {
		rows, err := r.pool.Query(ctx, `
			SELECT `+streamerColumns+`
			FROM streamers WHERE is_online
			ORDER BY display_name COLLATE "C", id
		`)
		if err != nil {
			yield(models.StreamerProfile{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanStreamer(rows)
			if err != nil {
				yield(models.StreamerProfile{}, err)
				return
			}
			if !yield(*p, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.StreamerProfile{}, err)
		}
	}
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if pgErr.ConstraintName == userNameUniqueIndex {
			return models.ErrDuplicateUserName
		}
		return models.ErrIdentityExists
	}
	return err
}
