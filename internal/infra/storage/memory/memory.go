package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage"
)

// MemoryStorage backs every repository with in-process maps. Used for tests
// and for running the engine without a database URL.
type MemoryStorage struct {
	episodes         map[string]*domain.Episode
	events           []*domain.CostEvent
	episodeSummaries map[string]*domain.EpisodeCostSummary
	userSummaries    map[string]*domain.UserCostSummary
	logs             []*domain.ProcessingLog
	prices           []*domain.ServicePrice
	mu               sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		episodes:         make(map[string]*domain.Episode),
		episodeSummaries: make(map[string]*domain.EpisodeCostSummary),
		userSummaries:    make(map[string]*domain.UserCostSummary),
	}
}

// SeedPrice adds a pricing row directly, for tests and memory mode.
func (s *MemoryStorage) SeedPrice(p *domain.ServicePrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = int64(len(s.prices) + 1)
	s.prices = append(s.prices, p)
}

// -----------------------------------------------------------------------------
// Episode Repository
// -----------------------------------------------------------------------------

type EpisodeRepo struct {
	store *MemoryStorage
}

func NewEpisodeRepo(store *MemoryStorage) *EpisodeRepo {
	return &EpisodeRepo{store: store}
}

func (r *EpisodeRepo) Create(ctx context.Context, ep *domain.Episode) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *ep
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.store.episodes[ep.ID] = &c
	return nil
}

func (r *EpisodeRepo) GetByID(ctx context.Context, id string) (*domain.Episode, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ep, ok := r.store.episodes[id]
	if !ok {
		return nil, storage.ErrEpisodeNotFound
	}
	c := *ep
	return &c, nil
}

func (r *EpisodeRepo) List(ctx context.Context, limit int) ([]*domain.Episode, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var eps []*domain.Episode
	for _, ep := range r.store.episodes {
		c := *ep
		eps = append(eps, &c)
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].CreatedAt.After(eps[j].CreatedAt) })
	if limit > 0 && len(eps) > limit {
		eps = eps[:limit]
	}
	return eps, nil
}

func (r *EpisodeRepo) UpdateStatus(ctx context.Context, id string, status domain.EpisodeStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if ep, ok := r.store.episodes[id]; ok {
		ep.Status = status
		ep.UpdatedAt = time.Now()
	}
	return nil
}

func (r *EpisodeRepo) SetCurrentStage(ctx context.Context, id string, stage domain.Stage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if ep, ok := r.store.episodes[id]; ok {
		ep.CurrentStage = stage
		ep.UpdatedAt = time.Now()
	}
	return nil
}

func (r *EpisodeRepo) SetProcessingStartedAt(ctx context.Context, id string, t time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if ep, ok := r.store.episodes[id]; ok && ep.ProcessingStartedAt == nil {
		ts := t
		ep.ProcessingStartedAt = &ts
		ep.UpdatedAt = time.Now()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Cost Event Repository
// -----------------------------------------------------------------------------

type CostEventRepo struct {
	store *MemoryStorage
}

func NewCostEventRepo(store *MemoryStorage) *CostEventRepo {
	return &CostEventRepo{store: store}
}

func (r *CostEventRepo) Insert(ctx context.Context, ev *domain.CostEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *ev
	r.store.events = append(r.store.events, &c)
	return nil
}

func (r *CostEventRepo) ListByEpisode(ctx context.Context, episodeID string) ([]*domain.CostEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var events []*domain.CostEvent
	for _, ev := range r.store.events {
		if ev.EpisodeID == episodeID {
			c := *ev
			events = append(events, &c)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

func (r *CostEventRepo) SumByCategoryForEpisode(ctx context.Context, episodeID string) (domain.CategoryTotals, int64, error) {
	return r.sum(func(ev *domain.CostEvent) bool { return ev.EpisodeID == episodeID })
}

func (r *CostEventRepo) SumByCategoryForUser(ctx context.Context, userID string) (domain.CategoryTotals, int64, error) {
	return r.sum(func(ev *domain.CostEvent) bool { return ev.UserID == userID })
}

func (r *CostEventRepo) sum(match func(*domain.CostEvent) bool) (domain.CategoryTotals, int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	totals := make(domain.CategoryTotals)
	var count int64
	for _, ev := range r.store.events {
		if !match(ev) {
			continue
		}
		totals[ev.Category] = totals.Get(ev.Category).Add(ev.TotalCost)
		count++
	}
	return totals, count, nil
}

func (r *CostEventRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	seen := make(map[string]bool)
	var ids []string
	for _, ev := range r.store.events {
		if ev.UserID != "" && !seen[ev.UserID] {
			seen[ev.UserID] = true
			ids = append(ids, ev.UserID)
		}
	}
	return ids, nil
}

func (r *CostEventRepo) DailyUsage(ctx context.Context, day string) ([]*domain.DailyUsageRow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	type key struct {
		service  string
		category domain.CostCategory
	}
	rows := make(map[key]*domain.DailyUsageRow)
	for _, ev := range r.store.events {
		if ev.CreatedAt.UTC().Format("2006-01-02") != day {
			continue
		}
		k := key{ev.Service, ev.Category}
		row, ok := rows[k]
		if !ok {
			row = &domain.DailyUsageRow{
				Day:       day,
				Service:   ev.Service,
				Category:  ev.Category,
				Quantity:  decimal.Zero,
				TotalCost: decimal.Zero,
			}
			rows[k] = row
		}
		row.Quantity = row.Quantity.Add(ev.Quantity)
		row.TotalCost = row.TotalCost.Add(ev.TotalCost)
		row.EventCount++
	}

	var out []*domain.DailyUsageRow
	for _, row := range rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

// -----------------------------------------------------------------------------
// Cost Summary Repository
// -----------------------------------------------------------------------------

type SummaryRepo struct {
	store *MemoryStorage
}

func NewSummaryRepo(store *MemoryStorage) *SummaryRepo {
	return &SummaryRepo{store: store}
}

func (r *SummaryRepo) UpsertEpisode(ctx context.Context, s *domain.EpisodeCostSummary) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	now := time.Now()
	c := *s
	if existing, ok := r.store.episodeSummaries[s.EpisodeID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.store.episodeSummaries[s.EpisodeID] = &c
	return nil
}

func (r *SummaryRepo) GetEpisode(ctx context.Context, episodeID string) (*domain.EpisodeCostSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.episodeSummaries[episodeID]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (r *SummaryRepo) UpsertUser(ctx context.Context, s *domain.UserCostSummary) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *s
	c.UpdatedAt = time.Now()
	r.store.userSummaries[s.UserID] = &c
	return nil
}

func (r *SummaryRepo) GetUser(ctx context.Context, userID string) (*domain.UserCostSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.userSummaries[userID]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

// -----------------------------------------------------------------------------
// Processing Log Repository
// -----------------------------------------------------------------------------

type ProcessingLogRepo struct {
	store *MemoryStorage
}

func NewProcessingLogRepo(store *MemoryStorage) *ProcessingLogRepo {
	return &ProcessingLogRepo{store: store}
}

func (r *ProcessingLogRepo) Insert(ctx context.Context, l *domain.ProcessingLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *l
	r.store.logs = append(r.store.logs, &c)
	return nil
}

func (r *ProcessingLogRepo) FindOpen(ctx context.Context, episodeID string, stage domain.Stage) (*domain.ProcessingLog, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var latest *domain.ProcessingLog
	for _, l := range r.store.logs {
		if l.EpisodeID != episodeID || l.Stage != stage || l.Status != domain.LogStatusStarted {
			continue
		}
		if latest == nil || l.CreatedAt.After(latest.CreatedAt) {
			latest = l
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func (r *ProcessingLogRepo) Finalize(ctx context.Context, l *domain.ProcessingLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.logs {
		if existing.ID == l.ID {
			existing.Status = l.Status
			existing.CompletedAt = l.CompletedAt
			existing.DurationMS = l.DurationMS
			existing.ErrorCode = l.ErrorCode
			existing.ErrorDetail = l.ErrorDetail
			return nil
		}
	}
	return nil
}

func (r *ProcessingLogRepo) ListByEpisode(ctx context.Context, episodeID string) ([]*domain.ProcessingLog, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var logs []*domain.ProcessingLog
	for _, l := range r.store.logs {
		if l.EpisodeID == episodeID {
			c := *l
			logs = append(logs, &c)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.Before(logs[j].CreatedAt) })
	return logs, nil
}

func (r *ProcessingLogRepo) CountAttempts(ctx context.Context, episodeID string, stage domain.Stage) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, l := range r.store.logs {
		if l.EpisodeID == episodeID && l.Stage == stage {
			count++
		}
	}
	return count, nil
}

// -----------------------------------------------------------------------------
// Price Repository
// -----------------------------------------------------------------------------

type PriceRepo struct {
	store *MemoryStorage
}

func NewPriceRepo(store *MemoryStorage) *PriceRepo {
	return &PriceRepo{store: store}
}

func (r *PriceRepo) GetEffective(ctx context.Context, service string, at time.Time) (*domain.ServicePrice, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var best *domain.ServicePrice
	for _, p := range r.store.prices {
		if p.Service != service || !p.AppliesAt(at) {
			continue
		}
		if best == nil || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
		}
	}
	if best == nil {
		return nil, storage.ErrPriceNotFound
	}
	c := *best
	return &c, nil
}

func (r *PriceRepo) List(ctx context.Context) ([]*domain.ServicePrice, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var prices []*domain.ServicePrice
	for _, p := range r.store.prices {
		c := *p
		prices = append(prices, &c)
	}
	sort.Slice(prices, func(i, j int) bool {
		if prices[i].Service != prices[j].Service {
			return prices[i].Service < prices[j].Service
		}
		return prices[i].EffectiveFrom.Before(prices[j].EffectiveFrom)
	})
	return prices, nil
}
