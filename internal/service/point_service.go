package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/clock"
	"github.com/iliyamo/concert-reservation/internal/model"
	"github.com/iliyamo/concert-reservation/internal/repository"
)

// PointService manages the point wallet used to pay for seats.
type PointService struct {
	points repository.PointStore
	clock  clock.Clock
	log    *zap.SugaredLogger
}

func NewPointService(points repository.PointStore, clk clock.Clock, log *zap.SugaredLogger) *PointService {
	return &PointService{points: points, clock: clk, log: log}
}

func (s *PointService) Point(ctx context.Context, userID int64) (model.UserPoint, error) {
	if userID <= 0 {
		return model.UserPoint{}, ErrInvalidUserID
	}
	return s.points.Point(ctx, userID)
}

func (s *PointService) Histories(ctx context.Context, userID int64) ([]model.PointHistory, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}
	return s.points.Histories(ctx, userID)
}

// Charge adds amount points to the user's wallet.
func (s *PointService) Charge(ctx context.Context, userID, amount int64) (model.UserPoint, error) {
	if userID <= 0 {
		return model.UserPoint{}, ErrInvalidUserID
	}
	if amount <= 0 {
		return model.UserPoint{}, ErrInvalidAmount
	}
	p, err := s.points.Charge(ctx, userID, amount, s.clock.Now())
	if err != nil {
		return model.UserPoint{}, err
	}
	s.log.Debugf("points charged user[%d] amount[%d] balance[%d]", userID, amount, p.Balance)
	return p, nil
}
