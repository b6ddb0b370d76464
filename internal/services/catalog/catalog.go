// Package catalog предоставляет доступ к каталогу тарифных планов
// с кэшированием в Redis и сопоставлением цен платёжного шлюза с планами.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskflowhq/billing-service/internal/lib/sl"
	"github.com/taskflowhq/billing-service/internal/metrics"
	"github.com/taskflowhq/billing-service/internal/models"
)

// ErrNoPlanMatch возвращается, когда цена шлюза не совпала ни с одним
// планом каталога. Вызывающая сторона решает, что делать с нерешённым
// планом; молча игнорировать это состояние нельзя.
var ErrNoPlanMatch = errors.New("no plan matches gateway price")

const (
	cacheKeyActivePlans = "plans:active"
	cacheTTL            = 5 * time.Minute
)

// PlanRepository описывает интерфейс хранилища каталога.
type PlanRepository interface {
	ListActivePlans(ctx context.Context) ([]*models.Plan, error)
	GetPlanByID(ctx context.Context, id int64) (*models.Plan, error)
	GetPlanByCode(ctx context.Context, code string) (*models.Plan, error)
}

// Cache описывает интерфейс кэша каталога.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Service сервис каталога планов.
type Service struct {
	repo         PlanRepository
	cache        Cache // может быть nil, тогда каждый запрос идёт в базу
	log          *slog.Logger
	freePlanCode string
}

// NewService создает новый сервис каталога.
func NewService(repo PlanRepository, cache Cache, log *slog.Logger, freePlanCode string) *Service {
	return &Service{
		repo:         repo,
		cache:        cache,
		log:          log,
		freePlanCode: freePlanCode,
	}
}

// ListActive возвращает активные планы, по возможности из кэша.
// Ошибки кэша не фатальны: каталог читается из базы, ошибка логируется.
func (s *Service) ListActive(ctx context.Context) ([]*models.Plan, error) {
	if s.cache != nil {
		var cached []*models.Plan
		found, err := s.cache.Get(cacheKeyActivePlans, &cached)
		if err != nil {
			s.log.Warn("plan cache read failed", sl.Err(err))
		}
		if found {
			return cached, nil
		}
	}

	plans, err := s.repo.ListActivePlans(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(cacheKeyActivePlans, plans, cacheTTL); err != nil {
			s.log.Warn("plan cache write failed", sl.Err(err))
		}
	}
	return plans, nil
}

// GetByID возвращает план по идентификатору.
func (s *Service) GetByID(ctx context.Context, id int64) (*models.Plan, error) {
	return s.repo.GetPlanByID(ctx, id)
}

// FreePlan возвращает назначенный бесплатный план, на который понижаются
// истёкшие и отменённые подписки.
func (s *Service) FreePlan(ctx context.Context) (*models.Plan, error) {
	return s.repo.GetPlanByCode(ctx, s.freePlanCode)
}

// Invalidate сбрасывает кэш каталога после изменения планов.
func (s *Service) Invalidate() {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(cacheKeyActivePlans); err != nil {
		s.log.Warn("plan cache invalidate failed", sl.Err(err))
	}
}

// ResolveByPrice сопоставляет цену подписки шлюза с планом каталога.
// Сначала ищется точное совпадение по идентификатору цены, затем по
// сумме в минимальных единицах валюты (месячной или годовой, без учёта
// периода). Совпадений нет — ErrNoPlanMatch; план не подбирается молча.
func (s *Service) ResolveByPrice(ctx context.Context, priceID string, amountCents int64) (*models.Plan, error) {
	const op = "catalog.ResolveByPrice"
	plans, err := s.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if priceID != "" {
		for _, p := range plans {
			if p.StripePriceMonthlyID == priceID || p.StripePriceYearlyID == priceID {
				return p, nil
			}
		}
	}

	var match *models.Plan
	for _, p := range plans {
		if !p.MatchesAmount(amountCents) {
			continue
		}
		if match != nil {
			// Два плана с одинаковой ценой: берём первый, но шумим.
			s.log.Warn("ambiguous plan price match",
				slog.Int64("amount_cents", amountCents),
				slog.String("matched_plan", match.Code),
				slog.String("also_matches", p.Code))
			break
		}
		match = p
	}
	if match == nil {
		metrics.PlanResolutionMisses.Inc()
		return nil, fmt.Errorf("%s: %w", op, ErrNoPlanMatch)
	}
	return match, nil
}
