package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"TalkWire/module/chat/model"
	"TalkWire/service/store"
	"TalkWire/tools/errs"
	"TalkWire/tools/ids"
)

// Postgres implementation over the schema the web app's Prisma layer
// defines: "Message"(id, text, "senderId", "receiverId", "createdAt",
// "isRead") and "User"(id, name, email, image, bio, "lastSeen").

type Config struct {
	DSN string
}

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errs.ErrArgs.WrapMsg("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, errs.ErrInternal.WrapMsg("connect postgres", "err", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.ErrInternal.WrapMsg("ping postgres", "err", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	if m.ID == "" {
		m.ID = ids.GenerateString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO "Message" (id, text, "senderId", "receiverId", "createdAt", "isRead")
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.Text, m.SenderID, m.ReceiverID, m.CreatedAt, m.IsRead)
	if err != nil {
		return errs.ErrPersistenceFailure.WrapMsg("insert message", "id", m.ID, "err", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, text, "senderId", "receiverId", "createdAt", "isRead"
		 FROM "Message" WHERE id = $1`, id)
	var m model.Message
	err := row.Scan(&m.ID, &m.Text, &m.SenderID, &m.ReceiverID, &m.CreatedAt, &m.IsRead)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("find message", "id", id, "err", err)
	}
	return &m, nil
}

func (s *Store) ListBetween(ctx context.Context, userA, userB string) ([]*model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, text, "senderId", "receiverId", "createdAt", "isRead"
		 FROM "Message"
		 WHERE ("senderId" = $1 AND "receiverId" = $2)
		    OR ("senderId" = $2 AND "receiverId" = $1)
		 ORDER BY "createdAt" ASC`, userA, userB)
	if err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("list messages", "err", err)
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Text, &m.SenderID, &m.ReceiverID, &m.CreatedAt, &m.IsRead); err != nil {
			return nil, errs.ErrPersistenceFailure.WrapMsg("scan message", "err", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) LastBetween(ctx context.Context, userA, userB string) (*model.Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, text, "senderId", "receiverId", "createdAt", "isRead"
		 FROM "Message"
		 WHERE ("senderId" = $1 AND "receiverId" = $2)
		    OR ("senderId" = $2 AND "receiverId" = $1)
		 ORDER BY "createdAt" DESC LIMIT 1`, userA, userB)
	var m model.Message
	err := row.Scan(&m.ID, &m.Text, &m.SenderID, &m.ReceiverID, &m.CreatedAt, &m.IsRead)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("last message", "err", err)
	}
	return &m, nil
}

func (s *Store) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE "Message" SET "isRead" = true
		 WHERE "senderId" = $1 AND "receiverId" = $2 AND "isRead" = false`,
		senderID, receiverID)
	if err != nil {
		return 0, errs.ErrPersistenceFailure.WrapMsg("mark read", "err", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListUsers(ctx context.Context, exceptID string) ([]*model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(image, ''),
		        COALESCE(bio, ''), COALESCE("lastSeen", now())
		 FROM "User" WHERE id <> $1 ORDER BY name ASC`, exceptID)
	if err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("list users", "err", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Avatar, &u.Bio, &u.LastSeen); err != nil {
			return nil, errs.ErrPersistenceFailure.WrapMsg("scan user", "err", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}
