package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/venue-chat/internal/broadcast"
	"github.com/iliyamo/venue-chat/internal/config"
	"github.com/iliyamo/venue-chat/internal/model"
	"github.com/iliyamo/venue-chat/internal/queue"
	"github.com/iliyamo/venue-chat/internal/repository"
)

// Notifier is the part of the broadcaster the chat needs.  Both
// *broadcast.Broadcaster and *broadcast.RedisRelay implement it.
type Notifier interface {
	Register(roomID uint64) *broadcast.Waiter
	Notify(roomID uint64) int
	Done() <-chan struct{}
}

// ChatService serves the chat operations.  Every operation on a room first
// checks that the caller holds an active grant for it.
type ChatService struct {
	establishments *repository.EstablishmentRepo
	rooms          *repository.RoomRepo
	grants         *repository.GrantRepo
	messages       *repository.MessageRepo
	notifier       Notifier
	events         queue.Emitter
	logger         *zap.Logger

	pollTimeout time.Duration
	now         func() time.Time
}

// NewChatService wires a ChatService.  events may be nil.
func NewChatService(
	establishments *repository.EstablishmentRepo,
	rooms *repository.RoomRepo,
	grants *repository.GrantRepo,
	messages *repository.MessageRepo,
	notifier Notifier,
	events queue.Emitter,
	cfg config.ChatConfig,
	logger *zap.Logger,
) *ChatService {
	if events == nil {
		events = queue.NopEmitter{}
	}
	return &ChatService{
		establishments: establishments,
		rooms:          rooms,
		grants:         grants,
		messages:       messages,
		notifier:       notifier,
		events:         events,
		logger:         logger.Named("chat"),
		pollTimeout:    cfg.PollTimeout,
		now:            time.Now,
	}
}

// RoomView is what a user sees on entering a room.
type RoomView struct {
	Room              model.ChatRoom
	EstablishmentName string
	ExpiresAt         time.Time
}

// MessageQuery selects a page of messages.  Before wins over After; with
// neither the latest page is returned.  Limit outside 1..100 means 20.
type MessageQuery struct {
	Before *uint64
	After  *uint64
	Limit  int
}

// EnterRoom resolves (creating if needed) the room of an establishment and
// returns it with the caller's grant expiry.  It never creates a grant.
func (s *ChatService) EnterRoom(ctx context.Context, userID, establishmentID uint64) (RoomView, error) {
	if userID == 0 {
		return RoomView{}, ErrNotAuthenticated
	}
	est, err := s.establishments.GetActiveByID(ctx, establishmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return RoomView{}, ErrNotFound
	}
	if err != nil {
		return RoomView{}, storageErr("load establishment", err)
	}
	room, err := s.rooms.GetOrCreate(ctx, establishmentID, s.now())
	if err != nil {
		return RoomView{}, storageErr("resolve room", err)
	}
	if !room.Active {
		return RoomView{}, ErrNotFound
	}
	grant, err := s.activeGrant(ctx, userID, room.ID)
	if err != nil {
		return RoomView{}, err
	}
	return RoomView{Room: room, EstablishmentName: est.Name, ExpiresAt: grant.ExpiresAt}, nil
}

// ListMessages returns a page of decrypted messages, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, userID, roomID uint64, q MessageQuery) ([]model.Message, error) {
	if _, err := s.authorize(ctx, userID, roomID); err != nil {
		return nil, err
	}
	var (
		list []model.Message
		err  error
	)
	switch {
	case q.Before != nil:
		list, err = s.messages.Before(ctx, roomID, *q.Before, q.Limit)
	case q.After != nil:
		list, err = s.messages.After(ctx, roomID, *q.After)
	default:
		list, err = s.messages.Latest(ctx, roomID, q.Limit)
	}
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	return list, nil
}

// SendMessage stores text in the room and wakes the room's long polls.
func (s *ChatService) SendMessage(ctx context.Context, userID, roomID uint64, text string) (model.Message, error) {
	if err := model.ValidateMessageText(text); err != nil {
		return model.Message{}, &ValidationError{Field: "message", Reason: err.Error()}
	}
	if _, err := s.authorize(ctx, userID, roomID); err != nil {
		return model.Message{}, err
	}
	m, err := s.messages.Append(ctx, roomID, userID, text, s.now())
	if err != nil {
		return model.Message{}, storageErr("append message", err)
	}
	woken := s.notifier.Notify(roomID)
	s.logger.Debug("message sent",
		zap.Uint64("room_id", roomID),
		zap.Uint64("message_id", m.ID),
		zap.Int("woken", woken))
	s.events.Emit(queue.NewChatMessageSent(userID, roomID, m.ID, m.CreatedAt))
	return m, nil
}

// LongPoll returns the messages after the cursor, waiting up to the poll
// timeout for one to arrive.  A timeout yields an empty list, not an error.
// A wake that turns out to bring nothing new waits again for whatever is
// left of the same window.
func (s *ChatService) LongPoll(ctx context.Context, userID, roomID uint64, after *uint64) ([]model.Message, error) {
	if after == nil {
		return nil, &ValidationError{Field: "after", Reason: "cursor is required"}
	}
	if _, err := s.authorize(ctx, userID, roomID); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.pollTimeout)
	for {
		// register before reading so a send between the read and the wait
		// still wakes us
		w := s.notifier.Register(roomID)
		list, err := s.messages.After(ctx, roomID, *after)
		if err != nil {
			w.Cancel()
			return nil, storageErr("poll messages", err)
		}
		if len(list) > 0 {
			w.Cancel()
			return list, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			w.Cancel()
			return list, nil
		}
		if !w.Wait(ctx, remaining) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return list, nil
		}
		select {
		case <-s.notifier.Done():
			// shutting down: one last read, then answer
			list, err := s.messages.After(ctx, roomID, *after)
			if err != nil {
				return nil, storageErr("poll messages", err)
			}
			return list, nil
		default:
		}
	}
}

// ListParticipants returns the users with an active grant for the room,
// most recent joiners first.
func (s *ChatService) ListParticipants(ctx context.Context, userID, roomID uint64) ([]model.Participant, error) {
	if _, err := s.authorize(ctx, userID, roomID); err != nil {
		return nil, err
	}
	list, err := s.grants.ListValidByRoom(ctx, roomID, s.now())
	if err != nil {
		return nil, storageErr("list participants", err)
	}
	return list, nil
}

// MyRooms lists the rooms the caller can use now, latest expiry first.
func (s *ChatService) MyRooms(ctx context.Context, userID uint64) ([]model.RoomAccess, error) {
	if userID == 0 {
		return nil, ErrNotAuthenticated
	}
	list, err := s.grants.ListValidByUser(ctx, userID, s.now())
	if err != nil {
		return nil, storageErr("list rooms", err)
	}
	return list, nil
}

// MyRoomsDetailed is MyRooms plus each room's last message and number of
// active participants.
func (s *ChatService) MyRoomsDetailed(ctx context.Context, userID uint64) ([]model.RoomSummary, error) {
	rooms, err := s.MyRooms(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]model.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		last, err := s.messages.LastOf(ctx, r.RoomID)
		if err != nil {
			return nil, storageErr("last message", err)
		}
		n, err := s.grants.CountValid(ctx, r.RoomID, now)
		if err != nil {
			return nil, storageErr("count participants", err)
		}
		out = append(out, model.RoomSummary{RoomAccess: r, LastMessage: last, ActiveParticipants: n})
	}
	return out, nil
}

// authorize loads an active room and checks the caller's grant on it.
func (s *ChatService) authorize(ctx context.Context, userID, roomID uint64) (model.ChatRoom, error) {
	if userID == 0 {
		return model.ChatRoom{}, ErrNotAuthenticated
	}
	room, err := s.rooms.GetByID(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !room.Active) {
		return model.ChatRoom{}, ErrNotFound
	}
	if err != nil {
		return model.ChatRoom{}, storageErr("load room", err)
	}
	if _, err := s.activeGrant(ctx, userID, roomID); err != nil {
		return model.ChatRoom{}, err
	}
	return room, nil
}

// activeGrant is the single place where grant freshness is decided.
func (s *ChatService) activeGrant(ctx context.Context, userID, roomID uint64) (model.AccessGrant, error) {
	g, err := s.grants.Get(ctx, userID, roomID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.AccessGrant{}, &GrantError{}
	}
	if err != nil {
		return model.AccessGrant{}, storageErr("load grant", err)
	}
	if !g.ActiveAt(s.now()) {
		return model.AccessGrant{}, &GrantError{Expired: true, ExpiredAt: g.ExpiresAt}
	}
	return g, nil
}
