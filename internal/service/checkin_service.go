package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/venue-chat/internal/config"
	"github.com/iliyamo/venue-chat/internal/geo"
	"github.com/iliyamo/venue-chat/internal/model"
	"github.com/iliyamo/venue-chat/internal/queue"
	"github.com/iliyamo/venue-chat/internal/repository"
)

// CheckinService records check-ins and turns accepted ones into chat access.
type CheckinService struct {
	establishments *repository.EstablishmentRepo
	checkins       *repository.CheckinRepo
	rooms          *repository.RoomRepo
	grants         *repository.GrantRepo
	events         queue.Emitter
	logger         *zap.Logger

	radius float64
	ttl    time.Duration
	now    func() time.Time
}

// NewCheckinService wires a CheckinService.  events may be nil.
func NewCheckinService(
	establishments *repository.EstablishmentRepo,
	checkins *repository.CheckinRepo,
	rooms *repository.RoomRepo,
	grants *repository.GrantRepo,
	events queue.Emitter,
	cfg config.ChatConfig,
	logger *zap.Logger,
) *CheckinService {
	if events == nil {
		events = queue.NopEmitter{}
	}
	return &CheckinService{
		establishments: establishments,
		checkins:       checkins,
		rooms:          rooms,
		grants:         grants,
		events:         events,
		logger:         logger.Named("checkin"),
		radius:         cfg.GeofenceRadiusM,
		ttl:            cfg.GrantTTL,
		now:            time.Now,
	}
}

// CheckinResult is an accepted check-in.  Room and Grant are nil when the
// check-in was stored but the chat side could not be updated.
type CheckinResult struct {
	Checkin model.Checkin
	Room    *model.ChatRoom
	Grant   *model.AccessGrant
}

// CheckIn validates the caller's position against the establishment and, if
// it is inside the geofence, records the check-in and grants access to the
// establishment's room until check-in time + TTL.  Rejected check-ins leave
// no trace.
func (s *CheckinService) CheckIn(ctx context.Context, userID, establishmentID uint64, pos geo.Point) (CheckinResult, error) {
	if userID == 0 {
		return CheckinResult{}, ErrNotAuthenticated
	}
	if err := pos.Validate(); err != nil {
		return CheckinResult{}, &ValidationError{Field: "coordinates", Reason: err.Error()}
	}
	est, err := s.establishments.GetActiveByID(ctx, establishmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return CheckinResult{}, ErrNotFound
	}
	if err != nil {
		return CheckinResult{}, storageErr("load establishment", err)
	}

	distance := geo.DistanceMeters(pos, geo.Point{Lat: est.Latitude, Lon: est.Longitude})
	if !geo.Within(distance, s.radius) {
		s.logger.Info("check-in rejected",
			zap.Uint64("user_id", userID),
			zap.Uint64("establishment_id", establishmentID),
			zap.Float64("distance_m", distance))
		return CheckinResult{}, &GeofenceError{DistanceMeters: distance, RadiusMeters: s.radius}
	}

	c, err := s.checkins.Record(ctx, userID, establishmentID, distance, s.now())
	if err != nil {
		return CheckinResult{}, storageErr("record check-in", err)
	}
	res := CheckinResult{Checkin: c}
	s.logger.Info("check-in accepted",
		zap.Uint64("user_id", userID),
		zap.Uint64("establishment_id", establishmentID),
		zap.Uint64("checkin_id", c.ID),
		zap.Float64("distance_m", distance))

	// The check-in stands even if the chat side fails; the user can retry.
	room, err := s.rooms.GetOrCreate(ctx, establishmentID, c.CreatedAt)
	if err != nil {
		s.logger.Error("room for check-in", zap.Uint64("checkin_id", c.ID), zap.Error(err))
		s.events.Emit(queue.NewCheckinRecorded(userID, establishmentID, 0, c.ID, distance, c.CreatedAt, time.Time{}))
		return res, nil
	}
	res.Room = &room

	grant, err := s.grants.Upsert(ctx, room.ID, userID, c.ID, c.CreatedAt.Add(s.ttl), c.CreatedAt)
	if err != nil {
		s.logger.Error("grant for check-in", zap.Uint64("checkin_id", c.ID), zap.Uint64("room_id", room.ID), zap.Error(err))
		s.events.Emit(queue.NewCheckinRecorded(userID, establishmentID, room.ID, c.ID, distance, c.CreatedAt, time.Time{}))
		return res, nil
	}
	res.Grant = &grant
	s.logger.Debug("grant refreshed",
		zap.Uint64("user_id", userID),
		zap.Uint64("room_id", room.ID),
		zap.Time("expires_at", grant.ExpiresAt))

	s.events.Emit(queue.NewCheckinRecorded(userID, establishmentID, room.ID, c.ID, distance, c.CreatedAt, grant.ExpiresAt))
	return res, nil
}

// ListCheckins returns an establishment's check-ins, newest first.
func (s *CheckinService) ListCheckins(ctx context.Context, establishmentID uint64) ([]model.Checkin, error) {
	if _, err := s.activeEstablishment(ctx, establishmentID); err != nil {
		return nil, err
	}
	list, err := s.checkins.ListByEstablishment(ctx, establishmentID)
	if err != nil {
		return nil, storageErr("list check-ins", err)
	}
	return list, nil
}

// Stats returns the check-in totals of an establishment.
func (s *CheckinService) Stats(ctx context.Context, establishmentID uint64) (model.Establishment, model.EstablishmentStats, error) {
	est, err := s.activeEstablishment(ctx, establishmentID)
	if err != nil {
		return model.Establishment{}, model.EstablishmentStats{}, err
	}
	st, err := s.establishments.Stats(ctx, establishmentID)
	if err != nil {
		return model.Establishment{}, model.EstablishmentStats{}, storageErr("establishment stats", err)
	}
	if st.LastCheckinAt, err = s.checkins.LatestFor(ctx, establishmentID); err != nil {
		return model.Establishment{}, model.EstablishmentStats{}, storageErr("latest check-in", err)
	}
	return est, st, nil
}

func (s *CheckinService) activeEstablishment(ctx context.Context, id uint64) (model.Establishment, error) {
	est, err := s.establishments.GetActiveByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Establishment{}, ErrNotFound
	}
	if err != nil {
		return model.Establishment{}, storageErr("load establishment", err)
	}
	return est, nil
}
