package repository

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/pkg/log"
)

const totalsScope = "all"

// CassandraMessageRepository keeps one partition per room, newest first, so
// reading a room's tail is a single-partition slice. Message.ID stays zero;
// rows are identified by their timeuuid.
type CassandraMessageRepository struct {
	session *gocql.Session
}

func NewCassandraMessageRepository(session *gocql.Session) *CassandraMessageRepository {
	return &CassandraMessageRepository{session: session}
}

func (r *CassandraMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	id := gocql.TimeUUID()
	created := id.Time().UTC()

	err := r.session.Query(
		`INSERT INTO messages_by_room (room, msg_id, sender, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.Room, id, msg.Sender, msg.Text, created,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	// The message is saved; a missed bump only skews the health total.
	if err := r.bumpTotal(ctx); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoom, msg.Room).Msg("message total not updated")
	}

	msg.CreatedAt = created
	return nil
}

func (r *CassandraMessageRepository) bumpTotal(ctx context.Context) error {
	err := r.session.Query(`UPDATE message_totals SET total = total + 1 WHERE scope = ?`, totalsScope).
		WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("bump message total: %w", err)
	}
	return nil
}

func (r *CassandraMessageRepository) ListRecent(ctx context.Context, room string, limit int) ([]*domain.Message, error) {
	iter := r.session.Query(
		`SELECT sender, body, created_at FROM messages_by_room WHERE room = ? LIMIT ?`,
		room, limit,
	).WithContext(ctx).Iter()

	var newestFirst []*domain.Message
	for {
		m := &domain.Message{Room: room}
		if !iter.Scan(&m.Sender, &m.Text, &m.CreatedAt) {
			break
		}
		m.CreatedAt = m.CreatedAt.UTC()
		newestFirst = append(newestFirst, m)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]*domain.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, nil
}

func (r *CassandraMessageRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.session.Query(`SELECT total FROM message_totals WHERE scope = ?`, totalsScope).
		WithContext(ctx).Scan(&total)
	if err == gocql.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return total, nil
}

func (r *CassandraMessageRepository) Close() {
	r.session.Close()
}
