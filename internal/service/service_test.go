package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/venue-chat/internal/broadcast"
	"github.com/iliyamo/venue-chat/internal/config"
	"github.com/iliyamo/venue-chat/internal/database"
	"github.com/iliyamo/venue-chat/internal/geo"
	"github.com/iliyamo/venue-chat/internal/keyring"
	"github.com/iliyamo/venue-chat/internal/model"
	"github.com/iliyamo/venue-chat/internal/queue"
	"github.com/iliyamo/venue-chat/internal/repository"
)

// ============================================================================
// Fixture
// ============================================================================

var (
	t0     = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	venue  = geo.Point{Lat: -23.5505, Lon: -46.6333}
	metreN = 1 / 111195.0 // degrees of latitude per metre
)

func north(p geo.Point, metres float64) geo.Point {
	return geo.Point{Lat: p.Lat + metres*metreN, Lon: p.Lon}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []queue.Event
}

func (r *recorder) Emit(ev queue.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	db      *sql.DB
	checkin *CheckinService
	chat    *ChatService
	grants  *repository.GrantRepo
	checks  *repository.CheckinRepo
	bc      *broadcast.Broadcaster
	clock   *clock
	events  *recorder
	est     model.Establishment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLiteMemory(ctx, "test_"+t.Name())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	keys, err := keyring.New(map[uint32]string{1: "service-test-secret"}, 1)
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	cfg := config.ChatConfig{GeofenceRadiusM: 50, GrantTTL: 24 * time.Hour, PollTimeout: 2 * time.Second}

	establishments := repository.NewEstablishmentRepo(db)
	checkins := repository.NewCheckinRepo(db)
	rooms := repository.NewRoomRepo(db)
	grants := repository.NewGrantRepo(db)
	messages := repository.NewMessageRepo(db, keys)

	est, err := establishments.Create(ctx, model.Establishment{
		Name: "Bar do Zé", Latitude: venue.Lat, Longitude: venue.Lon, Active: true, CreatedAt: t0,
	})
	if err != nil {
		t.Fatalf("seed establishment: %v", err)
	}

	f := &fixture{
		db:     db,
		grants: grants,
		checks: checkins,
		bc:     broadcast.New(),
		clock:  &clock{t: t0},
		events: &recorder{},
		est:    est,
	}
	f.checkin = NewCheckinService(establishments, checkins, rooms, grants, f.events, cfg, zap.NewNop())
	f.checkin.now = f.clock.Now
	f.chat = NewChatService(establishments, rooms, grants, messages, f.bc, f.events, cfg, zap.NewNop())
	f.chat.now = f.clock.Now
	return f
}

func (f *fixture) mustCheckIn(t *testing.T, userID uint64) CheckinResult {
	t.Helper()
	res, err := f.checkin.CheckIn(context.Background(), userID, f.est.ID, north(venue, 10))
	if err != nil {
		t.Fatalf("check-in for user %d: %v", userID, err)
	}
	if res.Room == nil || res.Grant == nil {
		t.Fatalf("check-in for user %d produced no grant", userID)
	}
	return res
}

func ptr(v uint64) *uint64 { return &v }

// ============================================================================
// Check-in
// ============================================================================

func TestCheckIn_TooFarIsDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.checkin.CheckIn(ctx, 1, f.est.ID, north(venue, 51))
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	var geoErr *GeofenceError
	if !errors.As(err, &geoErr) || geoErr.DistanceMeters <= 50 || geoErr.DistanceMeters > 52 {
		t.Errorf("expected GeofenceError around 51m, got %v", err)
	}

	list, err := f.checks.ListByEstablishment(ctx, f.est.ID)
	if err != nil || len(list) != 0 {
		t.Errorf("rejected check-in must not be stored: %v, %v", list, err)
	}
	if _, err := f.chat.EnterRoom(ctx, 1, f.est.ID); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected no grant after rejection, got %v", err)
	}
	if len(f.events.types()) != 0 {
		t.Errorf("rejected check-in emitted events: %v", f.events.types())
	}
}

func TestCheckIn_GrantsFor24Hours(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.mustCheckIn(t, 1)
	if want := t0.Add(24 * time.Hour); !res.Grant.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, res.Grant.ExpiresAt)
	}
	if res.Checkin.DistanceMeters < 9 || res.Checkin.DistanceMeters > 11 {
		t.Errorf("unexpected distance %f", res.Checkin.DistanceMeters)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != queue.CheckinRecorded {
		t.Errorf("expected one checkin event, got %v", got)
	}

	f.clock.Set(t0.Add(24*time.Hour - time.Second))
	if _, err := f.chat.ListMessages(ctx, 1, res.Room.ID, MessageQuery{}); err != nil {
		t.Errorf("grant should still be active: %v", err)
	}

	f.clock.Set(t0.Add(24*time.Hour + time.Second))
	_, err := f.chat.ListMessages(ctx, 1, res.Room.ID, MessageQuery{})
	var grantErr *GrantError
	if !errors.As(err, &grantErr) || !grantErr.Expired {
		t.Fatalf("expected expired GrantError, got %v", err)
	}
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expired grant must be AccessDenied")
	}
	if _, err := f.chat.SendMessage(ctx, 1, res.Room.ID, "late"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("send after expiry: %v", err)
	}
	if _, err := f.chat.LongPoll(ctx, 1, res.Room.ID, ptr(0)); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("poll after expiry: %v", err)
	}
}

func TestCheckIn_RefreshReopensExpiredGrant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.mustCheckIn(t, 1)

	f.clock.Set(t0.Add(30 * time.Hour))
	second := f.mustCheckIn(t, 1)
	if second.Grant.ID != first.Grant.ID {
		t.Errorf("expected the same grant row to be refreshed")
	}
	if want := t0.Add(54 * time.Hour); !second.Grant.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, second.Grant.ExpiresAt)
	}
	if _, err := f.chat.EnterRoom(ctx, 1, f.est.ID); err != nil {
		t.Errorf("refreshed grant should allow entry: %v", err)
	}
}

func TestCheckIn_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.checkin.CheckIn(ctx, 1, f.est.ID, geo.Point{Lat: 91, Lon: 0}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if _, err := f.checkin.CheckIn(ctx, 1, f.est.ID+100, venue); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.checkin.CheckIn(ctx, 0, f.est.ID, venue); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestCheckIn_StatsAndListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mustCheckIn(t, 1)
	f.clock.Set(t0.Add(time.Minute))
	f.mustCheckIn(t, 2)

	list, err := f.checkin.ListCheckins(ctx, f.est.ID)
	if err != nil {
		t.Fatalf("ListCheckins: %v", err)
	}
	if len(list) != 2 || list[0].UserID != 2 {
		t.Errorf("expected newest first, got %+v", list)
	}
	_, st, err := f.checkin.Stats(ctx, f.est.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalCheckins != 2 || st.LastCheckinAt == nil || !st.LastCheckinAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("unexpected stats: %+v", st)
	}
}

// ============================================================================
// Chat
// ============================================================================

func TestEnterRoom_RequiresCheckin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.chat.EnterRoom(ctx, 1, f.est.ID)
	var grantErr *GrantError
	if !errors.As(err, &grantErr) || grantErr.Expired {
		t.Fatalf("expected check-in-required GrantError, got %v", err)
	}

	res := f.mustCheckIn(t, 1)
	view, err := f.chat.EnterRoom(ctx, 1, f.est.ID)
	if err != nil {
		t.Fatalf("EnterRoom: %v", err)
	}
	if view.Room.ID != res.Room.ID || view.EstablishmentName != "Bar do Zé" || !view.ExpiresAt.Equal(res.Grant.ExpiresAt) {
		t.Errorf("unexpected view: %+v", view)
	}
}

func TestEnterRoom_InactiveRoomIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.mustCheckIn(t, 1)

	if _, err := f.db.ExecContext(ctx, `UPDATE chat_rooms SET active = 0 WHERE id = ?`, res.Room.ID); err != nil {
		t.Fatalf("deactivate room: %v", err)
	}
	if _, err := f.chat.EnterRoom(ctx, 1, f.est.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.mustCheckIn(t, 1).Room.ID

	if _, err := f.chat.SendMessage(ctx, 1, room, "   "); !errors.Is(err, ErrValidation) {
		t.Errorf("empty: expected ErrValidation, got %v", err)
	}
	if _, err := f.chat.SendMessage(ctx, 1, room, strings.Repeat("a", 1001)); !errors.Is(err, ErrValidation) {
		t.Errorf("1001 chars: expected ErrValidation, got %v", err)
	}
	exact := strings.Repeat("a", 1000)
	m, err := f.chat.SendMessage(ctx, 1, room, exact)
	if err != nil {
		t.Fatalf("1000 chars: %v", err)
	}
	list, err := f.chat.ListMessages(ctx, 1, room, MessageQuery{After: ptr(m.ID - 1)})
	if err != nil || len(list) != 1 || list[0].Text != exact {
		t.Errorf("round trip failed: %v", err)
	}
	if _, err := f.chat.SendMessage(ctx, 1, room+99, "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown room: expected ErrNotFound, got %v", err)
	}
	if _, err := f.chat.SendMessage(ctx, 2, room, "hi"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("no grant: expected ErrAccessDenied, got %v", err)
	}
}

func TestListMessages_BeforeWinsOverAfter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.mustCheckIn(t, 1).Room.ID
	for i := 0; i < 5; i++ {
		if _, err := f.chat.SendMessage(ctx, 1, room, "m"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	list, err := f.chat.ListMessages(ctx, 1, room, MessageQuery{Before: ptr(3), After: ptr(4), Limit: 500})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != 1 || list[1].ID != 2 {
		t.Errorf("expected before=3 to win, got %+v", list)
	}
	list, err = f.chat.ListMessages(ctx, 1, room, MessageQuery{After: ptr(4)})
	if err != nil || len(list) != 1 || list[0].ID != 5 {
		t.Errorf("after=4: %+v, %v", list, err)
	}
	list, err = f.chat.ListMessages(ctx, 1, room, MessageQuery{Limit: 2})
	if err != nil || len(list) != 2 || list[1].ID != 5 {
		t.Errorf("latest 2: %+v, %v", list, err)
	}
}

func TestSendMessage_EmitsEventWithoutText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.mustCheckIn(t, 1).Room.ID
	if _, err := f.chat.SendMessage(ctx, 1, room, "do not leak me"); err != nil {
		t.Fatalf("send: %v", err)
	}
	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	last := f.events.events[len(f.events.events)-1]
	if last.Type != queue.ChatMessageSent || last.MessageID == 0 {
		t.Errorf("unexpected event %+v", last)
	}
}

func TestParticipantsAndMyRooms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.mustCheckIn(t, 1).Room.ID
	f.clock.Set(t0.Add(time.Minute))
	f.mustCheckIn(t, 2)

	people, err := f.chat.ListParticipants(ctx, 1, room)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(people) != 2 || people[0].UserID != 2 {
		t.Errorf("expected [2 1], got %+v", people)
	}

	if _, err := f.chat.SendMessage(ctx, 2, room, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	rooms, err := f.chat.MyRoomsDetailed(ctx, 1)
	if err != nil {
		t.Fatalf("detailed: %v", err)
	}
	if len(rooms) != 1 {
		t.Fatalf("expected 1 room, got %d", len(rooms))
	}
	if rooms[0].ActiveParticipants != 2 || rooms[0].LastMessage == nil || rooms[0].LastMessage.Text != "hello" {
		t.Errorf("unexpected summary: %+v", rooms[0])
	}

	f.clock.Set(t0.Add(25 * time.Hour))
	mine, err := f.chat.MyRooms(ctx, 1)
	if err != nil || len(mine) != 0 {
		t.Errorf("expired rooms must not be listed: %+v, %v", mine, err)
	}
}

// ============================================================================
// Long polling
// ============================================================================

func TestLongPoll_RequiresCursor(t *testing.T) {
	f := newFixture(t)
	room := f.mustCheckIn(t, 1).Room.ID
	if _, err := f.chat.LongPoll(context.Background(), 1, room, nil); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestLongPoll_ImmediateWhenBehind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.mustCheckIn(t, 1).Room.ID
	if _, err := f.chat.SendMessage(ctx, 1, room, "already here"); err != nil {
		t.Fatalf("send: %v", err)
	}
	start := time.Now()
	list, err := f.chat.LongPoll(ctx, 1, room, ptr(0))
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one message, got %+v, %v", list, err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("poll blocked although a message was available")
	}
	if f.bc.Waiting(room) != 0 {
		t.Errorf("waiter left behind")
	}
}

func TestLongPoll_WokenBySend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.mustCheckIn(t, 1).Room.ID
	f.mustCheckIn(t, 2)
	for i := 0; i < 5; i++ {
		if _, err := f.chat.SendMessage(ctx, 2, room, "old"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	type result struct {
		list []model.Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		list, err := f.chat.LongPoll(ctx, 1, room, ptr(5))
		done <- result{list, err}
	}()
	waitFor(t, func() bool { return f.bc.Waiting(room) == 1 })

	sent, err := f.chat.SendMessage(ctx, 2, room, "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("poll: %v", r.err)
		}
		if len(r.list) != 1 || r.list[0].ID != 6 || r.list[0].ID != sent.ID || r.list[0].Text != "hi" {
			t.Errorf("expected exactly message 6, got %+v", r.list)
		}
	case <-time.After(time.Second):
		t.Fatal("poll was not woken by the send")
	}
}

func TestLongPoll_TimeoutReturnsEmptyAndCleansUp(t *testing.T) {
	f := newFixture(t)
	f.chat.pollTimeout = 50 * time.Millisecond
	room := f.mustCheckIn(t, 1).Room.ID

	list, err := f.chat.LongPoll(context.Background(), 1, room, ptr(5))
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty list, got %+v", list)
	}
	if n := f.bc.Waiting(room); n != 0 {
		t.Errorf("expected no waiters after timeout, got %d", n)
	}
}

func TestLongPoll_SpuriousWakeKeepsWaiting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.mustCheckIn(t, 1).Room.ID

	done := make(chan []model.Message, 1)
	go func() {
		list, _ := f.chat.LongPoll(ctx, 1, room, ptr(0))
		done <- list
	}()
	waitFor(t, func() bool { return f.bc.Waiting(room) == 1 })
	f.bc.Notify(room) // nothing new was written
	waitFor(t, func() bool { return f.bc.Waiting(room) == 1 })

	select {
	case list := <-done:
		t.Fatalf("poll returned early with %+v", list)
	default:
	}
	if _, err := f.chat.SendMessage(ctx, 1, room, "real"); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case list := <-done:
		if len(list) != 1 || list[0].Text != "real" {
			t.Errorf("unexpected poll result %+v", list)
		}
	case <-time.After(time.Second):
		t.Fatal("poll was not woken by the send")
	}
}

func TestLongPoll_ClientGoneRemovesWaiter(t *testing.T) {
	f := newFixture(t)
	room := f.mustCheckIn(t, 1).Room.ID
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := f.chat.LongPoll(ctx, 1, room, ptr(0))
		done <- err
	}()
	waitFor(t, func() bool { return f.bc.Waiting(room) == 1 })
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("poll ignored cancellation")
	}
	if f.bc.Waiting(room) != 0 {
		t.Errorf("waiter left behind after cancel")
	}
}

func TestLongPoll_ShutdownAnswers(t *testing.T) {
	f := newFixture(t)
	room := f.mustCheckIn(t, 1).Room.ID

	done := make(chan []model.Message, 1)
	go func() {
		list, _ := f.chat.LongPoll(context.Background(), 1, room, ptr(0))
		done <- list
	}()
	waitFor(t, func() bool { return f.bc.Waiting(room) == 1 })
	f.bc.Close()
	select {
	case list := <-done:
		if len(list) != 0 {
			t.Errorf("expected empty list, got %+v", list)
		}
	case <-time.After(time.Second):
		t.Fatal("poll kept waiting after Close")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
