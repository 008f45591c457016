package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/roomcoord/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	sqlCreateRoom = `
		INSERT INTO rooms (id, name, room_type, user_limit, description, categories, created_by, is_open)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, last_active`

	sqlLoadRoom = `
		SELECT id, name, room_type, user_limit, description, categories, created_by, created_at, last_active, is_open
		FROM rooms WHERE id = $1`

	sqlTouchRoom = `UPDATE rooms SET last_active = now() WHERE id = $1`
)

// RoomRepository хранит метаданные комнат в таблице rooms.
// Участники и сообщения живут только в памяти процесса.
type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	categories := room.Categories
	if categories == nil {
		categories = []string{}
	}
	err := r.db.QueryRow(ctx, sqlCreateRoom,
		room.ID, room.Name, string(room.Type), room.UserLimit,
		room.Description, categories, room.CreatedBy, room.IsOpen,
	).Scan(&room.ID, &room.CreatedAt, &room.LastActive)
	if err != nil {
		return mapPgError(err)
	}
	room.Categories = categories
	return nil
}

func (r *RoomRepository) Load(ctx context.Context, id string) (*domain.Room, error) {
	var (
		rm  domain.Room
		typ string
	)
	err := r.db.QueryRow(ctx, sqlLoadRoom, id).Scan(
		&rm.ID, &rm.Name, &typ, &rm.UserLimit, &rm.Description,
		&rm.Categories, &rm.CreatedBy, &rm.CreatedAt, &rm.LastActive, &rm.IsOpen,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, mapPgError(err)
	}
	rm.Type = domain.RoomType(typ)
	if rm.Categories == nil {
		rm.Categories = []string{}
	}
	return &rm, nil
}

func (r *RoomRepository) TouchActivity(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, sqlTouchRoom, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique violation
			return fmt.Errorf("%w: room already exists", domain.ErrInvalidRequest)
		case "23514": // check violation
			return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("postgres: %w", err)
}
