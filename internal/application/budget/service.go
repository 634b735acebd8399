package budget

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codexray/malapi-catalog/internal/application"
	domain "github.com/codexray/malapi-catalog/internal/domain/budget"
)

const dayFormat = "2006-01-02"

// Service is the daily spend ledger. All accounting goes through the
// repository's single atomic reserve operation so the cap holds under
// concurrent requests and across process restarts.
type Service struct {
	repo        domain.Repository
	dailyBudget float64
	loc         *time.Location
	clock       application.Clock
}

func NewService(repo domain.Repository, dailyBudget float64, loc *time.Location, clock application.Clock) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Service{repo: repo, dailyBudget: dailyBudget, loc: loc, clock: clock}
}

func (s *Service) today() string {
	return s.clock.Now().In(s.loc).Format(dayFormat)
}

// CheckAndReserve charges the estimate against today's ledger row if and only
// if the daily budget still covers it. On ErrExceeded nothing was charged.
func (s *Service) CheckAndReserve(ctx context.Context, estimated float64) (domain.Reservation, error) {
	day := s.today()
	ok, err := s.repo.ReserveIfUnder(ctx, day, estimated, s.dailyBudget)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !ok {
		return domain.Reservation{}, domain.ErrExceeded
	}
	return domain.Reservation{
		ID:        uuid.New().String(),
		Day:       day,
		Estimated: estimated,
	}, nil
}

// Commit reconciles a reservation with the real figures: the cost delta is
// applied against the estimate and the token usage is recorded.
func (s *Service) Commit(ctx context.Context, res domain.Reservation, actualCost float64, actualTokens int64) error {
	return s.repo.Adjust(ctx, res.Day, actualCost-res.Estimated, actualTokens, 0)
}

// Release backs a failed reservation out of the ledger so an aborted provider
// call is not left charged.
func (s *Service) Release(ctx context.Context, res domain.Reservation) error {
	return s.repo.Adjust(ctx, res.Day, -res.Estimated, 0, -1)
}

// Today returns the current day's ledger entry (zero-valued when no spend yet).
func (s *Service) Today(ctx context.Context) (*domain.LedgerEntry, error) {
	day := s.today()
	e, err := s.repo.Get(ctx, day)
	if err != nil {
		return nil, err
	}
	if e == nil {
		e = &domain.LedgerEntry{Day: day}
	}
	return e, nil
}
