package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"Bootcamp/internal/testutil"
)

// MockGateway implements PaymentGateway for testing
type MockGateway struct {
	mu           sync.Mutex
	Transactions map[string]*GatewayTransaction
	Err          error
	VerifyCalls  int
	Initialized  []InitializeRequest
}

func NewMockGateway() *MockGateway {
	return &MockGateway{Transactions: map[string]*GatewayTransaction{}}
}

func (g *MockGateway) InitializePayment(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Initialized = append(g.Initialized, req)
	return &InitializeResponse{AuthorizationURL: "https://checkout.test/" + req.Reference, AccessCode: "ac_1", Reference: req.Reference}, nil
}

func (g *MockGateway) VerifyTransaction(ctx context.Context, reference string) (*GatewayTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.VerifyCalls++
	if g.Err != nil {
		return nil, g.Err
	}
	tx, ok := g.Transactions[reference]
	if !ok {
		return nil, ErrGatewayNotFound
	}
	return tx, nil
}

func (g *MockGateway) Set(reference, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Transactions[reference] = &GatewayTransaction{
		Reference: reference,
		Status:    status,
		Amount:    decimal.NewFromInt(50000),
		Currency:  "NGN",
	}
}

func (g *MockGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.VerifyCalls
}

// MockMailer implements Mailer for testing
type MockMailer struct {
	mu          sync.Mutex
	Err         error
	Confirmed   []string
	AlertEvents []KeyGrantFailedEvent
}

func (m *MockMailer) SendEnrollmentConfirmation(ctx context.Context, to, name, cohortName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Confirmed = append(m.Confirmed, to)
	return nil
}

func (m *MockMailer) SendKeyGrantFailureAlert(ctx context.Context, ev KeyGrantFailedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AlertEvents = append(m.AlertEvents, ev)
	return m.Err
}

var errRPC = errors.New("rpc: connection reset")

// harness wires every service against in-memory collaborators. Sleeps are
// recorded instead of waited for.
type harness struct {
	store       *testutil.Store
	chain       *testutil.Chain
	gateway     *MockGateway
	mailer      *MockMailer
	events      *testutil.Publisher
	sync        *StatusSync
	enrollments *EnrollmentService
	grants      *KeyGrantService
	router      *Router
	reconciler  *Reconciler
	now         time.Time

	sleepMu sync.Mutex
	sleeps  []time.Duration
}

func newHarness() *harness {
	h := &harness{
		store:   testutil.NewStore(),
		chain:   testutil.NewChain(),
		gateway: NewMockGateway(),
		mailer:  &MockMailer{},
		events:  &testutil.Publisher{},
		now:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.sync = NewStatusSync(h.store)
	h.enrollments = NewEnrollmentService(h.store)
	h.grants = NewKeyGrantService(h.store, h.chain, KeyGrantOptions{Events: h.events})
	h.grants.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleepMu.Lock()
		defer h.sleepMu.Unlock()
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	h.grants.now = h.clock
	h.router = NewRouter(RouterDeps{
		Store:       h.store,
		Sync:        h.sync,
		Enrollments: h.enrollments,
		Grants:      h.grants,
		Gateway:     h.gateway,
		Chain:       h.chain,
		Mailer:      h.mailer,
		Events:      h.events,
	})
	h.router.now = h.clock
	h.reconciler = NewReconciler(h.store, h.sync, h.enrollments, h.grants)
	h.reconciler.now = h.clock
	return h
}

func (h *harness) clock() time.Time {
	return h.now
}

func (h *harness) sleepsRecorded() []time.Duration {
	h.sleepMu.Lock()
	defer h.sleepMu.Unlock()
	return append([]time.Duration(nil), h.sleeps...)
}

func ptr[T any](v T) *T { return &v }
