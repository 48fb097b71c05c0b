package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
	"github.com/ekaya-inc/ekaya-drafts/pkg/repositories"
)

// ModelPrice is the USD price per 1K tokens.
type ModelPrice struct {
	Input  float64
	Output float64
}

// DefaultPrices is the static price table. Model names are matched exactly
// first, then by longest prefix so dated snapshots ("gpt-4o-2024-08-06")
// resolve to their family.
func DefaultPrices() map[string]ModelPrice {
	return map[string]ModelPrice{
		"gpt-4o":            {Input: 0.0025, Output: 0.01},
		"gpt-4o-mini":       {Input: 0.00015, Output: 0.0006},
		"gpt-4-turbo":       {Input: 0.01, Output: 0.03},
		"gpt-4":             {Input: 0.03, Output: 0.06},
		"gpt-3.5-turbo":     {Input: 0.0005, Output: 0.0015},
		"claude-3-5-sonnet": {Input: 0.003, Output: 0.015},
		"claude-3-7-sonnet": {Input: 0.003, Output: 0.015},
		"claude-sonnet-4":   {Input: 0.003, Output: 0.015},
		"claude-3-5-haiku":  {Input: 0.0008, Output: 0.004},
		"claude-3-haiku":    {Input: 0.00025, Output: 0.00125},
		"claude-3-opus":     {Input: 0.015, Output: 0.075},
		"claude-opus-4":     {Input: 0.015, Output: 0.075},
	}
}

// DefaultQuotaLimits returns the built-in per-tier limits.
func DefaultQuotaLimits() map[models.Tier]models.QuotaLimits {
	return map[models.Tier]models.QuotaLimits{
		models.TierFree:    {DailyTokens: 10_000, MonthlyTokens: 100_000, DailyCost: 0.50, MonthlyCost: 5},
		models.TierStarter: {DailyTokens: 50_000, MonthlyTokens: 1_000_000, DailyCost: 2.50, MonthlyCost: 25},
		models.TierPro:     {DailyTokens: 200_000, MonthlyTokens: 5_000_000, DailyCost: 10, MonthlyCost: 100},
		models.TierEnterprise: {
			DailyTokens:   models.UnlimitedQuota,
			MonthlyTokens: models.UnlimitedQuota,
			DailyCost:     models.UnlimitedQuota,
			MonthlyCost:   models.UnlimitedQuota,
		},
	}
}

// DefaultTopCostly is the number of most expensive calls in analytics.
const DefaultTopCostly = 5

// LedgerConfig customizes pricing and limits. Zero values use the defaults.
type LedgerConfig struct {
	Prices map[string]ModelPrice
	// QuotaOverrides replace the defaults of the tiers they name.
	QuotaOverrides map[models.Tier]models.QuotaLimits
}

// UsageLedger records model usage and enforces per-user quotas.
type UsageLedger interface {
	// TrackUsage prices and stores one model invocation. It never fails the
	// caller: an unknown model or a storage error is logged and nil returned.
	TrackUsage(ctx context.Context, in models.UsageInput) *models.UsageRecord

	// CheckQuotas compares today's and this month's usage plus
	// estimatedTokens against the user's tier limits. It does not write.
	CheckQuotas(ctx context.Context, userID string, estimatedTokens int64) (*models.QuotaCheck, error)

	// EnforceQuotas returns *apperrors.QuotaError when CheckQuotas disallows.
	EnforceQuotas(ctx context.Context, userID string, estimatedTokens int64) error

	GetUsageAnalytics(ctx context.Context, userID string, from, to time.Time, topN int) (*models.UsageAnalytics, error)
	GetCostProjection(ctx context.Context, userID string) (*models.CostProjection, error)
	ExportUsageData(ctx context.Context, userID string, from, to time.Time, format models.ExportFormat) ([]byte, error)

	// Limits returns the effective limits of a tier.
	Limits(tier models.Tier) models.QuotaLimits
}

type usageLedger struct {
	usage  repositories.UsageRepository
	tiers  repositories.TierRepository
	prices map[string]ModelPrice
	limits map[models.Tier]models.QuotaLimits
	logger *zap.Logger
	now    func() time.Time
}

var _ UsageLedger = (*usageLedger)(nil)

// NewUsageLedger creates a ledger. tiers may be nil, in which case every
// user is on the free tier.
func NewUsageLedger(
	usage repositories.UsageRepository,
	tiers repositories.TierRepository,
	cfg LedgerConfig,
	logger *zap.Logger,
) UsageLedger {
	prices := cfg.Prices
	if len(prices) == 0 {
		prices = DefaultPrices()
	}
	limits := DefaultQuotaLimits()
	for tier, l := range cfg.QuotaOverrides {
		limits[tier] = l
	}
	return &usageLedger{
		usage:  usage,
		tiers:  tiers,
		prices: prices,
		limits: limits,
		logger: logger.Named("usage-ledger"),
		now:    time.Now,
	}
}

// priceFor resolves a model's price by exact name, then longest prefix.
func (l *usageLedger) priceFor(model string) (ModelPrice, bool) {
	if p, ok := l.prices[model]; ok {
		return p, true
	}
	best := ""
	for name := range l.prices {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelPrice{}, false
	}
	return l.prices[best], true
}

func (l *usageLedger) cost(p ModelPrice, in, out int) float64 {
	c := float64(in)/1000*p.Input + float64(out)/1000*p.Output
	return math.Round(c*1e6) / 1e6
}

func (l *usageLedger) TrackUsage(ctx context.Context, in models.UsageInput) *models.UsageRecord {
	price, ok := l.priceFor(in.Model)
	if !ok {
		l.logger.Warn("Unknown model pricing, usage not recorded",
			zap.String("user_id", in.UserID),
			zap.String("model", in.Model),
			zap.Error(apperrors.ErrUnknownModel))
		return nil
	}
	if in.InputTokens < 0 || in.OutputTokens < 0 {
		l.logger.Warn("Negative token counts, usage not recorded",
			zap.String("user_id", in.UserID),
			zap.Int("input_tokens", in.InputTokens),
			zap.Int("output_tokens", in.OutputTokens))
		return nil
	}

	category := in.Category
	if category == "" {
		category = models.UsageCategoryChat
	}

	rec := &models.UsageRecord{
		UserID:       in.UserID,
		Model:        in.Model,
		InputTokens:  in.InputTokens,
		OutputTokens: in.OutputTokens,
		Cost:         l.cost(price, in.InputTokens, in.OutputTokens),
		Category:     category,
		Metadata:     in.Metadata,
		Timestamp:    l.now().UTC(),
	}

	if err := l.usage.Save(ctx, rec); err != nil {
		l.logger.Error("Failed to record usage",
			zap.String("user_id", in.UserID),
			zap.String("model", in.Model),
			zap.Error(err))
		return nil
	}

	l.logger.Debug("Recorded usage",
		zap.String("user_id", rec.UserID),
		zap.String("model", rec.Model),
		zap.String("category", rec.Category),
		zap.Int("total_tokens", rec.TotalTokens()),
		zap.Float64("cost", rec.Cost))

	return rec
}

func (l *usageLedger) Limits(tier models.Tier) models.QuotaLimits {
	if lim, ok := l.limits[tier]; ok {
		return lim
	}
	return l.limits[models.TierFree]
}

func (l *usageLedger) tierOf(ctx context.Context, userID string) models.Tier {
	if l.tiers == nil {
		return models.TierFree
	}
	tier, err := l.tiers.GetTier(ctx, userID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			l.logger.Warn("Failed to resolve tier, using free",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return models.TierFree
	}
	return tier
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (l *usageLedger) CheckQuotas(ctx context.Context, userID string, estimatedTokens int64) (*models.QuotaCheck, error) {
	now := l.now().UTC()
	tier := l.tierOf(ctx, userID)
	limits := l.Limits(tier)

	daily, err := l.usage.Totals(ctx, userID, startOfDay(now))
	if err != nil {
		return nil, fmt.Errorf("failed to load daily usage: %w", err)
	}
	monthly, err := l.usage.Totals(ctx, userID, startOfMonth(now))
	if err != nil {
		return nil, fmt.Errorf("failed to load monthly usage: %w", err)
	}

	check := &models.QuotaCheck{
		Allowed: true,
		Tier:    tier,
		Usage:   models.QuotaUsage{Daily: daily, Monthly: monthly},
		Limits:  limits,
	}

	if estimatedTokens < 0 {
		estimatedTokens = 0
	}

	switch {
	case limits.DailyTokens != models.UnlimitedQuota && daily.Tokens+estimatedTokens > limits.DailyTokens:
		check.Reason = fmt.Sprintf("Daily token limit exceeded (%d/%d)", daily.Tokens, limits.DailyTokens)
	case limits.MonthlyTokens != models.UnlimitedQuota && monthly.Tokens+estimatedTokens > limits.MonthlyTokens:
		check.Reason = fmt.Sprintf("Monthly token limit exceeded (%d/%d)", monthly.Tokens, limits.MonthlyTokens)
	case limits.DailyCost != models.UnlimitedQuota && daily.Cost >= limits.DailyCost:
		check.Reason = fmt.Sprintf("Daily cost limit exceeded ($%.2f/$%.2f)", daily.Cost, limits.DailyCost)
	case limits.MonthlyCost != models.UnlimitedQuota && monthly.Cost >= limits.MonthlyCost:
		check.Reason = fmt.Sprintf("Monthly cost limit exceeded ($%.2f/$%.2f)", monthly.Cost, limits.MonthlyCost)
	}
	check.Allowed = check.Reason == ""

	return check, nil
}

// EnforceQuotas lets the call through when usage cannot be read; only a
// definite over-limit result blocks.
func (l *usageLedger) EnforceQuotas(ctx context.Context, userID string, estimatedTokens int64) error {
	check, err := l.CheckQuotas(ctx, userID, estimatedTokens)
	if err != nil {
		l.logger.Warn("Quota check failed, allowing call",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}
	if !check.Allowed {
		l.logger.Info("Quota exceeded",
			zap.String("user_id", userID),
			zap.String("tier", string(check.Tier)),
			zap.String("reason", check.Reason))
		return &apperrors.QuotaError{UserID: userID, Reason: check.Reason}
	}
	return nil
}

func accumulate(t *models.UsageTotals, r *models.UsageRecord) {
	t.Tokens += int64(r.TotalTokens())
	t.Cost += r.Cost
	t.Calls++
}

func (l *usageLedger) GetUsageAnalytics(ctx context.Context, userID string, from, to time.Time, topN int) (*models.UsageAnalytics, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: range end must be after start", apperrors.ErrInvalidInput)
	}
	if topN <= 0 {
		topN = DefaultTopCostly
	}

	records, err := l.usage.ListByUser(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}

	a := &models.UsageAnalytics{
		UserID:     userID,
		From:       from,
		To:         to,
		ByCategory: make(map[string]models.UsageTotals),
		ByModel:    make(map[string]models.UsageTotals),
		Timeline:   []models.TimelinePoint{},
		TopCostly:  []*models.UsageRecord{},
	}

	days := make(map[string]*models.TimelinePoint)
	for _, r := range records {
		accumulate(&a.Totals, r)

		c := a.ByCategory[r.Category]
		accumulate(&c, r)
		a.ByCategory[r.Category] = c

		m := a.ByModel[r.Model]
		accumulate(&m, r)
		a.ByModel[r.Model] = m

		day := r.Timestamp.UTC().Format(time.DateOnly)
		p, ok := days[day]
		if !ok {
			p = &models.TimelinePoint{Date: day}
			days[day] = p
		}
		p.Tokens += int64(r.TotalTokens())
		p.Cost += r.Cost
		p.Calls++
	}

	for _, p := range days {
		a.Timeline = append(a.Timeline, *p)
	}
	sort.Slice(a.Timeline, func(i, j int) bool { return a.Timeline[i].Date < a.Timeline[j].Date })

	costly := append([]*models.UsageRecord(nil), records...)
	sort.SliceStable(costly, func(i, j int) bool { return costly[i].Cost > costly[j].Cost })
	if len(costly) > topN {
		costly = costly[:topN]
	}
	a.TopCostly = append(a.TopCostly, costly...)

	return a, nil
}

// trendBand is the relative change below which spend counts as stable.
const trendBand = 0.10

func (l *usageLedger) GetCostProjection(ctx context.Context, userID string) (*models.CostProjection, error) {
	now := l.now().UTC()
	monthStart := startOfMonth(now)
	windowStart := startOfDay(now).AddDate(0, 0, -13)

	from := monthStart
	if windowStart.Before(from) {
		from = windowStart
	}
	records, err := l.usage.ListByUser(ctx, userID, from, now.Add(time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}

	splitAt := startOfDay(now).AddDate(0, 0, -6)
	var mtd, recent, prior float64
	for _, r := range records {
		ts := r.Timestamp.UTC()
		if !ts.Before(monthStart) {
			mtd += r.Cost
		}
		switch {
		case !ts.Before(splitAt):
			recent += r.Cost
		case !ts.Before(windowStart):
			prior += r.Cost
		}
	}

	daysElapsed := now.Day()
	daysInMonth := monthStart.AddDate(0, 1, -1).Day()
	avg := mtd / float64(daysElapsed)

	return &models.CostProjection{
		UserID:             userID,
		MonthToDateCost:    round(mtd),
		DailyAverage:       round(avg),
		ProjectedMonthCost: round(avg * float64(daysInMonth)),
		ProjectedYearCost:  round(avg * 365),
		DaysElapsed:        daysElapsed,
		DaysInMonth:        daysInMonth,
		Trend:              trendOf(recent/7, prior/7),
	}, nil
}

func trendOf(recent, prior float64) models.Trend {
	if prior == 0 {
		if recent > 0 {
			return models.TrendUp
		}
		return models.TrendStable
	}
	change := (recent - prior) / prior
	switch {
	case change > trendBand:
		return models.TrendUp
	case change < -trendBand:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

var exportHeader = []string{
	"id", "timestamp", "user_id", "model", "category",
	"input_tokens", "output_tokens", "total_tokens", "cost",
}

func (l *usageLedger) ExportUsageData(ctx context.Context, userID string, from, to time.Time, format models.ExportFormat) ([]byte, error) {
	if format != models.ExportCSV && format != models.ExportJSON {
		return nil, fmt.Errorf("%w: unsupported export format %q", apperrors.ErrInvalidInput, format)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: range end must be after start", apperrors.ErrInvalidInput)
	}

	records, err := l.usage.ListByUser(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}

	if format == models.ExportJSON {
		if records == nil {
			records = []*models.UsageRecord{}
		}
		return json.MarshalIndent(records, "", "  ")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := []string{
			r.ID.String(),
			r.Timestamp.UTC().Format(time.RFC3339),
			r.UserID,
			r.Model,
			r.Category,
			strconv.Itoa(r.InputTokens),
			strconv.Itoa(r.OutputTokens),
			strconv.Itoa(r.TotalTokens()),
			strconv.FormatFloat(r.Cost, 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}
