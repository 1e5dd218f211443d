package services

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"Bootcamp/internal/models"
	"Bootcamp/internal/store"
)

type SweepReport struct {
	StalePayments int                         `json:"stale_payments"`
	Outcomes      map[VerificationOutcome]int `json:"outcomes"`
	Abandoned     int                         `json:"abandoned"`
	Inconsistent  int                         `json:"inconsistent"`
	Reconciled    int                         `json:"reconciled"`
	Errors        int                         `json:"errors"`
}

// Sweeper re-verifies payments the webhook never completed and repairs
// applications the overview flags as inconsistent.
type Sweeper struct {
	store        Store
	router       *Router
	reconciler   *Reconciler
	statusSync   *StatusSync
	window       time.Duration
	batch        int
	concurrency  int
	abandonAfter time.Duration
	now          func() time.Time
}

type SweeperOptions struct {
	// Window is the webhook wait window; younger rows are left to the webhook.
	Window      time.Duration
	BatchSize   int
	Concurrency int
	// AbandonAfter is the age after which a row the gateway or chain has no
	// record of is marked failed. Zero means 24h.
	AbandonAfter time.Duration
}

func NewSweeper(s Store, router *Router, reconciler *Reconciler, statusSync *StatusSync, opts SweeperOptions) *Sweeper {
	if opts.Window <= 0 {
		opts.Window = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.AbandonAfter <= 0 {
		opts.AbandonAfter = 24 * time.Hour
	}
	return &Sweeper{
		store:        s,
		router:       router,
		reconciler:   reconciler,
		statusSync:   statusSync,
		window:       opts.Window,
		batch:        opts.BatchSize,
		concurrency:  opts.Concurrency,
		abandonAfter: opts.AbandonAfter,
		now:          time.Now,
	}
}

// RunOnce performs a single sweep. Per-item failures are counted; only a
// failure to list work is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{Outcomes: map[VerificationOutcome]int{}}
	var mu sync.Mutex

	stale, err := s.store.ListStalePendingPayments(ctx, s.now().Add(-s.window), s.batch)
	if err != nil {
		return nil, storageError("list stale payments", err)
	}
	report.StalePayments = len(stale)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range stale {
		p := p
		g.Go(func() error {
			res, err := s.router.VerifyPayment(gctx, verifyRequestFor(&p))
			abandoned := err == nil && s.abandon(gctx, &p, res)
			if merr := s.store.MarkPaymentChecked(gctx, p.PaymentReference, s.now()); merr != nil {
				log.Printf("⚠️ Sweep could not stamp %s: %v", p.PaymentReference, merr)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("⚠️ Sweep verify %s: %v", p.PaymentReference, err)
				report.Errors++
				return nil
			}
			report.Outcomes[res.Outcome]++
			if abandoned {
				report.Abandoned++
			}
			return nil
		})
	}
	_ = g.Wait()

	rows, err := s.store.ListOverview(ctx, store.OverviewFilter{OnlyInconsistent: true, Limit: s.batch})
	if err != nil {
		return report, storageError("list inconsistent applications", err)
	}
	report.Inconsistent = len(rows)

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, row := range rows {
		row := row
		g.Go(func() error {
			rep, err := s.reconciler.ReconcileApplicationStatus(gctx, row.ApplicationID, row.UserProfileID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || rep.Summary.Failed > 0 {
				log.Printf("⚠️ Sweep reconcile %s: err=%v", row.ApplicationID, err)
				report.Errors++
				return nil
			}
			report.Reconciled++
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("🧹 Sweep done: %d stale, %d inconsistent, %d reconciled, %d errors",
		report.StalePayments, report.Inconsistent, report.Reconciled, report.Errors)
	return report, nil
}

// abandon marks a long-dead row failed when its source of truth has never
// heard of it. The application is left alone.
func (s *Sweeper) abandon(ctx context.Context, p *models.PaymentTransaction, res *VerifyResult) bool {
	if res.Outcome != OutcomeNotFound || p.Age(s.now()) < s.abandonAfter || s.statusSync == nil {
		return false
	}
	_, err := s.statusSync.ConfirmPayment(ctx, PaymentConfirmation{
		Reference: p.PaymentReference,
		Status:    models.TransactionFailed,
		Method:    p.PaymentMethod,
		RowOnly:   true,
		Metadata: map[string]any{
			"reconciledBy": "sweeper",
			"reconciledAt": s.now().UTC().Format(time.RFC3339),
			"reason":       "unknown to " + res.Source + " after " + s.abandonAfter.String(),
		},
		Reason: "sweeper: payment abandoned",
	})
	if err != nil {
		log.Printf("⚠️ Sweep could not retire %s: %v", p.PaymentReference, err)
		return false
	}
	return true
}

// verifyRequestFor checks the row by its own reference. Passing the
// application would let another successful row answer for it.
func verifyRequestFor(p *models.PaymentTransaction) VerifyRequest {
	req := VerifyRequest{Reference: p.PaymentReference, Method: p.PaymentMethod}
	if p.TransactionHash != nil {
		req.TransactionHash = *p.TransactionHash
	}
	return req
}

// Start sweeps every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log.Printf("🧹 Reconciliation sweeper running every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("🧹 Reconciliation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("❌ Sweep failed: %v", err)
			}
		}
	}
}
