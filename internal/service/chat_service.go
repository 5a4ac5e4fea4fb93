package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/flow-market/internal/audit"
	"github.com/weiawesome/flow-market/internal/cache"
	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/hub"
	"github.com/weiawesome/flow-market/internal/relay"
	"github.com/weiawesome/flow-market/internal/repository"
	"github.com/weiawesome/flow-market/pkg/log"
)

type chatServiceImpl struct {
	hub         *hub.Hub
	messages    repository.MessageRepository
	broadcaster relay.Broadcaster
	cache       cache.MessageCache // nil disables caching
	cacheTTL    time.Duration
	sf          singleflight.Group
	now         func() time.Time
}

// NewChatService wires room membership, the message log and fan-out.
// msgCache may be nil.
func NewChatService(
	h *hub.Hub,
	messages repository.MessageRepository,
	broadcaster relay.Broadcaster,
	msgCache cache.MessageCache,
	cacheTTL time.Duration,
) ChatService {
	return &chatServiceImpl{
		hub:         h,
		messages:    messages,
		broadcaster: broadcaster,
		cache:       msgCache,
		cacheTTL:    cacheTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *chatServiceImpl) Connect(ctx context.Context, client *hub.Client) {
	s.reply(ctx, client, domain.Connected())
}

func (s *chatServiceImpl) Join(ctx context.Context, client *hub.Client, room string) {
	room = strings.TrimSpace(room)
	if room == "" {
		return
	}
	if !s.hub.Join(client, room) {
		return
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoom, room).Int("members", s.hub.RoomSize(room)).Msg("joined room")
	s.reply(ctx, client, domain.System(fmt.Sprintf("joined room %s", room)))
}

func (s *chatServiceImpl) Leave(ctx context.Context, client *hub.Client, room string) {
	room = strings.TrimSpace(room)
	if room == "" {
		return
	}
	s.hub.Leave(client, room)

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoom, room).Msg("left room")
	s.reply(ctx, client, domain.System(fmt.Sprintf("left room %s", room)))
}

func (s *chatServiceImpl) reply(ctx context.Context, client *hub.Client, msg domain.OutEnvelope) {
	if err := client.SendMessage(msg); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("event", msg.Event).Msg("failed to queue reply")
	}
}

func (s *chatServiceImpl) Send(ctx context.Context, req *domain.SendPayload) (*domain.Message, error) {
	room := strings.TrimSpace(req.Room)
	text := strings.TrimSpace(req.Text)
	if room == "" || text == "" {
		return nil, nil
	}

	msg := &domain.Message{
		Room:      room,
		Sender:    SanitizeSender(req.Sender),
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, room); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoom, room).Msg("history cache invalidate failed")
		}
	}

	if err := s.broadcaster.Broadcast(ctx, domain.NewChatPayload(msg)); err != nil {
		return msg, fmt.Errorf("failed to broadcast message: %w", err)
	}

	audit.Write(ctx, audit.Entry{Action: audit.ActionSendMessage, Target: room}, "chat message sent")
	return msg, nil
}

// SanitizeSender trims name, substitutes the anonymous placeholder when
// nothing is left and cuts it to MaxSenderLength characters.
func SanitizeSender(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.AnonymousSender
	}
	if r := []rune(name); len(r) > domain.MaxSenderLength {
		name = string(r[:domain.MaxSenderLength])
	}
	return name
}

func (s *chatServiceImpl) History(ctx context.Context, room string) ([]domain.HistoryEntry, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return []domain.HistoryEntry{}, nil
	}

	messages, err := s.recent(ctx, room)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.HistoryEntry, 0, len(messages))
	for i := range messages {
		entries = append(entries, messages[i].ToHistoryEntry())
	}
	return entries, nil
}

func (s *chatServiceImpl) recent(ctx context.Context, room string) ([]domain.Message, error) {
	if s.cache == nil {
		return s.load(ctx, room)
	}

	result, err, _ := s.sf.Do(room, func() (interface{}, error) {
		return s.fetchWithCache(ctx, room)
	})
	if err != nil {
		return nil, err
	}

	messages, ok := result.([]domain.Message)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return messages, nil
}

func (s *chatServiceImpl) fetchWithCache(ctx context.Context, room string) ([]domain.Message, error) {
	cached, err := s.cache.Get(ctx, room)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	// Read before the database so a Send landing in between voids the fill.
	version, verr := s.cache.Version(ctx, room)

	messages, err := s.load(ctx, room)
	if err != nil {
		return nil, err
	}

	if verr != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(verr).Str(log.FieldRoom, room).Msg("cache version error, skipping fill")
		return messages, nil
	}

	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := s.cache.Set(cacheCtx, room, version, messages, s.cacheTTL)
		l := log.L()
		switch {
		case errors.Is(err, cache.ErrStaleVersion):
			l.Debug().Str(log.FieldRoom, room).Msg("history changed during fill, not cached")
		case err != nil:
			l.Warn().Err(err).Msg("cache set error")
		}
	}()

	return messages, nil
}

func (s *chatServiceImpl) load(ctx context.Context, room string) ([]domain.Message, error) {
	rows, err := s.messages.ListRecent(ctx, room, domain.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from repository: %w", err)
	}

	messages := make([]domain.Message, len(rows))
	for i, m := range rows {
		messages[i] = *m
	}
	return messages, nil
}
