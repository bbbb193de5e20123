// Package scheduler executes recurring investment plans (SIPs) when they
// fall due, debiting the wallet and advancing each plan's schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/finance-tracker/internal/database"
	"gitlab.com/yelinaung/finance-tracker/internal/events"
	"gitlab.com/yelinaung/finance-tracker/internal/ledger"
	"gitlab.com/yelinaung/finance-tracker/internal/logger"
	"gitlab.com/yelinaung/finance-tracker/internal/models"
	"gitlab.com/yelinaung/finance-tracker/internal/notify"
	"gitlab.com/yelinaung/finance-tracker/internal/pricing"
	"gitlab.com/yelinaung/finance-tracker/internal/processor"
	"gitlab.com/yelinaung/finance-tracker/internal/repository"
)

const (
	// DefaultRunInterval is how often the loop checks for due plans.
	DefaultRunInterval = 30 * time.Minute
	// RunTimeout is the maximum time a single run over due plans can take.
	RunTimeout = 2 * time.Minute
)

// ErrNotAPlan is returned when a plan operation targets an investment row
// that is not a SIP.
var ErrNotAPlan = errors.New("investment is not a recurring plan")

// Scheduler finds due SIP plans and executes each one independently: a debit
// failure on one plan never blocks or rolls back another.
type Scheduler struct {
	db       database.DB
	notifier notify.Notifier
	events   events.Publisher
	prices   pricing.Source
	proc     *processor.Processor
	interval time.Duration
	now      func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRunInterval overrides how often the loop wakes up.
func WithRunInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithPublisher attaches an event publisher for executed plans.
func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) { s.events = p }
}

// WithPriceSource enables refreshing a plan's market price before each
// execution. Plans entered manually keep their stored price.
func WithPriceSource(src pricing.Source) Option {
	return func(s *Scheduler) { s.prices = src }
}

// WithProcessor overrides the transaction processor executions are funded
// through, letting the application share one processor (with its publisher
// and price source) across surfaces.
func WithProcessor(p *processor.Processor) Option {
	return func(s *Scheduler) { s.proc = p }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(db database.DB, notifier notify.Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		db:       db,
		notifier: notifier,
		interval: DefaultRunInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier()
	}
	if s.proc == nil {
		s.proc = processor.New(db, s.prices)
	}
	return s
}

// StartPlan activates a SIP plan. The start date defaults to today when
// unset, and the first execution is due on the start date.
func (s *Scheduler) StartPlan(ctx context.Context, id int) (*models.Investment, error) {
	var plan *models.Investment
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		investments := repository.NewInvestmentRepository(tx)
		inv, err := investments.GetByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ledger.ErrNotFound
			}
			return err
		}
		if inv.AssetType != models.AssetTypeSIP {
			return ErrNotAPlan
		}
		if !models.ValidFrequency(inv.SIPFrequency) {
			return fmt.Errorf("plan %d has invalid frequency %q", inv.ID, inv.SIPFrequency)
		}

		inv.IsSIPActive = true
		if inv.SIPStartDate == nil {
			today := dateOnly(s.now())
			inv.SIPStartDate = &today
		}
		due := *inv.SIPStartDate
		inv.NextDueDate = &due

		if err := investments.Update(ctx, inv); err != nil {
			return err
		}
		plan = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info().
		Int("plan_id", plan.ID).
		Str("owner_hash", logger.HashOwnerID(plan.OwnerID)).
		Str("frequency", plan.SIPFrequency).
		Msg("SIP plan started")
	return plan, nil
}

// StopPlan deactivates a SIP plan. The next due date is left in place;
// resuming is not modeled.
func (s *Scheduler) StopPlan(ctx context.Context, id int) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		investments := repository.NewInvestmentRepository(tx)
		inv, err := investments.GetByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ledger.ErrNotFound
			}
			return err
		}
		if inv.AssetType != models.AssetTypeSIP {
			return ErrNotAPlan
		}
		inv.IsSIPActive = false
		return investments.Update(ctx, inv)
	})
}

// RunDue executes every active plan whose next due date is at or before now.
// Plans are processed one by one in their own transactions; failures are
// logged and reported through the notifier, never returned for other plans.
// Returns the number of plans executed successfully.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) (int, error) {
	due, err := repository.NewInvestmentRepository(s.db).GetDuePlans(ctx, dateOnly(now))
	if err != nil {
		return 0, fmt.Errorf("failed to find due plans: %w", err)
	}

	executed := 0
	for i := range due {
		if err := ctx.Err(); err != nil {
			return executed, err
		}
		if err := s.executePlan(ctx, due[i].ID); err != nil {
			logger.Log.Error().Err(err).
				Int("plan_id", due[i].ID).
				Str("owner_hash", logger.HashOwnerID(due[i].OwnerID)).
				Msg("SIP execution failed")
			continue
		}
		executed++
	}
	return executed, nil
}

// executePlan runs a single due plan inside one transaction. The plan row is
// re-read under lock so a concurrent run cannot execute it twice.
func (s *Scheduler) executePlan(ctx context.Context, id int) error {
	var (
		plan     *models.Investment
		amount   decimal.Decimal
		balance  decimal.Decimal
		executed bool
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		investments := repository.NewInvestmentRepository(tx)
		inv, err := investments.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		plan = inv
		if !inv.IsSIPActive || inv.NextDueDate == nil {
			return nil
		}

		// A plan scheduled past its own end date can never become due
		// again, so deactivate it instead of skipping it forever.
		if inv.SIPEndDate != nil && inv.NextDueDate.After(*inv.SIPEndDate) {
			inv.IsSIPActive = false
			return investments.Update(ctx, inv)
		}

		if s.prices != nil && !inv.IsManual {
			price, err := s.prices.GetLivePrice(ctx, inv.Symbol)
			if err != nil {
				logger.Log.Warn().Err(err).
					Int("plan_id", inv.ID).
					Msg("Price refresh failed, using stored price")
			} else {
				inv.CurrentPrice = &price
			}
		}

		amount, balance, err = s.proc.FundRecurringBuy(ctx, tx, inv.OwnerID, inv.Quantity, inv.UnitPrice())
		if err != nil {
			return err
		}

		inv.TransactionType = models.TransactionTypeBuy
		next := advanceDueDate(*inv.NextDueDate, inv.SIPFrequency)
		inv.NextDueDate = &next
		if err := investments.Update(ctx, inv); err != nil {
			return err
		}
		executed = true
		return nil
	})

	if errors.Is(err, ledger.ErrInsufficientFunds) {
		s.notify(ctx, plan.OwnerID, "SIP execution failed",
			fmt.Sprintf("Insufficient funds to invest %s in %s (%s). The plan will retry on the next run.",
				amount.StringFixed(2), plan.Name, plan.Symbol))
		return err
	}
	if err != nil {
		return err
	}
	if !executed {
		return nil
	}

	s.notify(ctx, plan.OwnerID, "SIP executed",
		fmt.Sprintf("Invested %s in %s (%s). New balance: %s.",
			amount.StringFixed(2), plan.Name, plan.Symbol, balance.StringFixed(2)))

	if s.events != nil {
		event := events.SIPExecuted{
			PlanID:      plan.ID,
			OwnerID:     plan.OwnerID,
			Symbol:      plan.Symbol,
			Quantity:    plan.Quantity,
			Amount:      amount,
			NextDueDate: *plan.NextDueDate,
			OccurredAt:  s.now().UTC(),
		}
		if err := s.events.Publish(ctx, events.TopicSIPExecuted, event); err != nil {
			logger.Log.Warn().Err(err).Int("plan_id", plan.ID).Msg("Failed to publish SIP event")
		}
	}

	logger.Log.Info().
		Int("plan_id", plan.ID).
		Str("owner_hash", logger.HashOwnerID(plan.OwnerID)).
		Str("amount", amount.StringFixed(2)).
		Str("next_due", plan.NextDueDate.Format("2006-01-02")).
		Msg("SIP executed")
	return nil
}

// Run wakes up periodically and executes due plans until the context is
// cancelled. One run fires immediately so plans due at startup are not held
// until the first tick.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Log.Info().Dur("interval", s.interval).Msg("SIP scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info().Msg("SIP scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, RunTimeout)
	defer cancel()

	executed, err := s.RunDue(runCtx, s.now())
	if err != nil {
		logger.Log.Error().Err(err).Msg("SIP run failed")
		return
	}
	if executed > 0 {
		logger.Log.Info().Int("executed", executed).Msg("SIP run completed")
	}
}

func (s *Scheduler) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// notify is fire-and-forget: delivery failures are logged, never propagated.
func (s *Scheduler) notify(ctx context.Context, ownerID int64, subject, body string) {
	if err := s.notifier.Notify(ctx, ownerID, subject, body); err != nil {
		logger.Log.Warn().Err(err).
			Str("owner_hash", logger.HashOwnerID(ownerID)).
			Msg("Failed to send SIP notification")
	}
}

// advanceDueDate moves a due date forward by one frequency unit. Monthly
// advances keep the day of month, clamping to the last day of shorter
// months (Jan 31 advances to Feb 28, or Feb 29 in a leap year).
func advanceDueDate(due time.Time, frequency string) time.Time {
	switch frequency {
	case models.FrequencyDaily:
		return due.AddDate(0, 0, 1)
	case models.FrequencyWeekly:
		return due.AddDate(0, 0, 7)
	case models.FrequencyMonthly:
		year, month, day := due.Date()
		next := time.Date(year, month+1, 1, 0, 0, 0, 0, due.Location())
		if last := lastDayOfMonth(next); day > last {
			day = last
		}
		return time.Date(next.Year(), next.Month(), day, 0, 0, 0, 0, due.Location())
	default:
		return due.AddDate(0, 0, 1)
	}
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
