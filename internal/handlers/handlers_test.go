package handlers_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"Bootcamp/internal/config"
	"Bootcamp/internal/handlers"
	"Bootcamp/internal/models"
	"Bootcamp/internal/routes"
	"Bootcamp/internal/services"
	"Bootcamp/internal/testutil"
)

const (
	jwtSecret     = "handler-test-secret"
	paystackKey   = "sk_test_handlers"
	webhookHeader = "x-paystack-signature"
)

type stubGateway struct {
	mu    sync.Mutex
	txs   map[string]*services.GatewayTransaction
	calls int
}

func (g *stubGateway) InitializePayment(ctx context.Context, req services.InitializeRequest) (*services.InitializeResponse, error) {
	return &services.InitializeResponse{
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		AccessCode:       "ac_test",
		Reference:        req.Reference,
	}, nil
}

func (g *stubGateway) VerifyTransaction(ctx context.Context, reference string) (*services.GatewayTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	tx, ok := g.txs[reference]
	if !ok {
		return nil, services.ErrGatewayNotFound
	}
	return tx, nil
}

func (g *stubGateway) set(reference, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txs[reference] = &services.GatewayTransaction{
		Reference: reference,
		Status:    status,
		Amount:    decimal.NewFromInt(50000),
		Currency:  "NGN",
	}
}

type testAPI struct {
	app     *fiber.App
	store   *testutil.Store
	chain   *testutil.Chain
	gateway *stubGateway
	fx      *testutil.Fixture
}

func newTestAPI() *testAPI {
	st := testutil.NewStore()
	fx := st.Seed()
	ch := testutil.NewChain()
	gw := &stubGateway{txs: map[string]*services.GatewayTransaction{}}
	events := &testutil.Publisher{}

	statusSync := services.NewStatusSync(st)
	enrollments := services.NewEnrollmentService(st)
	grants := services.NewKeyGrantService(st, ch, services.KeyGrantOptions{BaseDelay: time.Millisecond, Events: events})
	router := services.NewRouter(services.RouterDeps{
		Store:       st,
		Sync:        statusSync,
		Enrollments: enrollments,
		Grants:      grants,
		Gateway:     gw,
		Chain:       ch,
		Events:      events,
	})
	reconciler := services.NewReconciler(st, statusSync, enrollments, grants)
	sweeper := services.NewSweeper(st, router, reconciler, statusSync, services.SweeperOptions{Window: 30 * time.Second, BatchSize: 10, Concurrency: 2})
	paystack := services.NewPaystackService(config.PaystackConfig{SecretKey: paystackKey})

	app := fiber.New()
	routes.SetupRoutes(app, routes.Handlers{
		Payments:      handlers.NewPaymentHandler(router, paystack),
		Reconcile:     handlers.NewReconcileHandler(reconciler, sweeper, st),
		Notifications: handlers.NewNotificationHandler(st),
		Profiles:      handlers.NewProfileHandler(st),
		JWTSecret:     jwtSecret,
	})
	return &testAPI{app: app, store: st, chain: ch, gateway: gw, fx: fx}
}

func token(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"email":   "test@example.com",
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, tok string, body any) (*http.Response, map[string]any) {
	t.Helper()
	resp := a.send(t, method, path, tok, body)
	return resp, decode(t, resp)
}

// doRaw returns the response body unparsed.
func (a *testAPI) doRaw(t *testing.T, method, path, tok string, body any) (*http.Response, string) {
	t.Helper()
	resp := a.send(t, method, path, tok, body)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, string(raw)
}

func (a *testAPI) send(t *testing.T, method, path, tok string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := a.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
	}
	return out
}

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(paystackKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHealth(t *testing.T) {
	api := newTestAPI()
	resp, body := api.do(t, "GET", "/api/health", "", nil)
	if resp.StatusCode != fiber.StatusOK || body["status"] != "running" {
		t.Errorf("unexpected health response %d %v", resp.StatusCode, body)
	}
}

func TestPaymentHandler_Verify(t *testing.T) {
	t.Run("Given a confirmed row When the owner verifies by reference Then 200 success is returned", func(t *testing.T) {
		api := newTestAPI()
		api.store.SetApplication(api.fx.Application.ID, models.PaymentCompleted, models.ApplicationApproved)
		api.store.AddPayment(api.fx.Application, "ref-ok", models.TransactionSuccess, time.Now())

		resp, body := api.do(t, "GET", "/api/payment/verify/ref-ok", token(t, api.fx.User.ID, "user"), nil)

		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d %v", resp.StatusCode, body)
		}
		if body["outcome"] != string(services.OutcomeSuccess) || body["source"] != services.SourceStore {
			t.Errorf("unexpected body %v", body)
		}
	})

	t.Run("Given a fresh pending row When verifying Then 202 with Retry-After is returned", func(t *testing.T) {
		api := newTestAPI()
		api.store.AddPayment(api.fx.Application, "ref-wait", models.TransactionPending, time.Now())

		resp, body := api.do(t, "POST", "/api/payment/verify", token(t, api.fx.User.ID, "user"), fiber.Map{"reference": "ref-wait"})

		if resp.StatusCode != fiber.StatusAccepted {
			t.Fatalf("expected 202, got %d %v", resp.StatusCode, body)
		}
		if resp.Header.Get(fiber.HeaderRetryAfter) == "" {
			t.Error("expected Retry-After header")
		}
		if api.gateway.calls != 0 {
			t.Error("gateway must not be consulted inside the window")
		}
	})

	t.Run("Given a stale pending row and a successful gateway When verifying Then the application is completed and enrolled", func(t *testing.T) {
		api := newTestAPI()
		api.store.AddPayment(api.fx.Application, "ref-late", models.TransactionPending, time.Now().Add(-time.Minute))
		api.gateway.set("ref-late", "success")

		resp, body := api.do(t, "POST", "/api/payment/verify", token(t, api.fx.User.ID, "user"), fiber.Map{
			"reference":     "ref-late",
			"applicationId": api.fx.Application.ID.String(),
		})

		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d %v", resp.StatusCode, body)
		}
		if got := api.store.App(api.fx.Application.ID).PaymentStatus; got != models.PaymentCompleted {
			t.Errorf("expected completed application, got %s", got)
		}
		if api.store.EnrollmentCount() != 1 {
			t.Errorf("expected one enrollment, got %d", api.store.EnrollmentCount())
		}
		if body["key_granted"] != true {
			t.Errorf("expected key granted, got %v", body)
		}
	})

	t.Run("Given the chain keeps failing When a stale payment is verified Then the rpc error stays out of the body", func(t *testing.T) {
		api := newTestAPI()
		api.store.AddPayment(api.fx.Application, "ref-rpc", models.TransactionPending, time.Now().Add(-time.Minute))
		api.gateway.set("ref-rpc", "success")
		api.chain.AlwaysFail = errors.New("dial tcp 10.1.2.3:8545: internal-rpc.corp refused")

		resp, raw := api.doRaw(t, "POST", "/api/payment/verify", token(t, api.fx.User.ID, "user"), fiber.Map{
			"reference": "ref-rpc",
		})

		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d %s", resp.StatusCode, raw)
		}
		if strings.Contains(raw, "10.1.2.3") || strings.Contains(raw, "internal-rpc.corp") {
			t.Errorf("collaborator error leaked into the response: %s", raw)
		}
		if !strings.Contains(raw, `"grant_failed":true`) || !strings.Contains(raw, "key_grant_exhausted") {
			t.Errorf("expected a failed grant step with its code, got %s", raw)
		}
	})

	t.Run("Given another user's application When verifying Then 403 is returned", func(t *testing.T) {
		api := newTestAPI()

		resp, _ := api.do(t, "POST", "/api/payment/verify", token(t, uuid.New(), "user"), fiber.Map{
			"applicationId": api.fx.Application.ID.String(),
		})

		if resp.StatusCode != fiber.StatusForbidden {
			t.Errorf("expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("Given an unsupported method When verifying Then 400 is returned", func(t *testing.T) {
		api := newTestAPI()

		resp, body := api.do(t, "POST", "/api/payment/verify", token(t, api.fx.User.ID, "user"), fiber.Map{
			"reference": "ref",
			"method":    "card",
		})

		if resp.StatusCode != fiber.StatusBadRequest || body["code"] != "invalid_body" {
			t.Errorf("expected 400 invalid_body, got %d %v", resp.StatusCode, body)
		}
	})

	t.Run("Given no token When verifying Then 401 is returned", func(t *testing.T) {
		api := newTestAPI()

		resp, _ := api.do(t, "GET", "/api/payment/verify/ref", "", nil)

		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
	})
}

func TestPaymentHandler_Initialize(t *testing.T) {
	api := newTestAPI()

	resp, body := api.do(t, "POST", "/api/payment/initialize", token(t, api.fx.User.ID, "user"), fiber.Map{
		"applicationId": api.fx.Application.ID.String(),
	})

	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d %v", resp.StatusCode, body)
	}
	payment, _ := body["payment"].(map[string]any)
	ref, _ := payment["reference"].(string)
	if ref == "" || payment["authorization_url"] != "https://checkout.test/"+ref {
		t.Errorf("unexpected payment %v", payment)
	}
	if row := api.store.Payment(ref); row == nil || row.Status != models.TransactionPending {
		t.Errorf("expected pending row for %s, got %+v", ref, row)
	}
}

func TestPaymentHandler_PaystackWebhook(t *testing.T) {
	post := func(t *testing.T, api *testAPI, body []byte, signature string) (*http.Response, map[string]any) {
		t.Helper()
		req := httptest.NewRequest("POST", "/api/webhooks/paystack", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(webhookHeader, signature)
		resp, err := api.app.Test(req, -1)
		if err != nil {
			t.Fatalf("webhook: %v", err)
		}
		return resp, decode(t, resp)
	}

	t.Run("Given a bad signature When posting Then 401 is returned and nothing changes", func(t *testing.T) {
		api := newTestAPI()
		body := []byte(`{"event":"charge.success","data":{"reference":"wh-1"}}`)

		resp, _ := post(t, api, body, "deadbeef")

		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
		if api.store.Payment("wh-1") != nil {
			t.Error("expected no payment row")
		}
	})

	t.Run("Given a signed charge.success When posting Then the payment is applied", func(t *testing.T) {
		api := newTestAPI()
		api.store.AddPayment(api.fx.Application, "wh-2", models.TransactionPending, time.Now())
		body := []byte(`{"event":"charge.success","data":{"reference":"wh-2","status":"success","amount":5000000,"currency":"NGN","metadata":{"applicationId":"` + api.fx.Application.ID.String() + `"}}}`)

		resp, out := post(t, api, body, sign(body))

		if resp.StatusCode != fiber.StatusOK || out["applied"] != true {
			t.Fatalf("expected applied webhook, got %d %v", resp.StatusCode, out)
		}
		if p := api.store.Payment("wh-2"); p.Status != models.TransactionSuccess {
			t.Errorf("expected success row, got %s", p.Status)
		}
		if got := api.store.App(api.fx.Application.ID).PaymentStatus; got != models.PaymentCompleted {
			t.Errorf("expected completed application, got %s", got)
		}
	})

	t.Run("Given a signed transfer event When posting Then it is acknowledged but not applied", func(t *testing.T) {
		api := newTestAPI()
		body := []byte(`{"event":"transfer.success","data":{"reference":"tr-1"}}`)

		resp, out := post(t, api, body, sign(body))

		if resp.StatusCode != fiber.StatusOK || out["applied"] != false {
			t.Errorf("expected ignored webhook, got %d %v", resp.StatusCode, out)
		}
	})
}

func TestReconcileHandler(t *testing.T) {
	t.Run("Given a completed application without status row When an admin reconciles Then the status row is created", func(t *testing.T) {
		api := newTestAPI()
		api.store.SetApplication(api.fx.Application.ID, models.PaymentCompleted, models.ApplicationApproved)
		api.store.AddPayment(api.fx.Application, "ref-orphan", models.TransactionSuccess, time.Now())
		api.store.AddEnrollment(api.fx.Application)

		resp, body := api.do(t, "POST", "/api/admin/reconcile", token(t, uuid.New(), "admin"), fiber.Map{
			"applicationId": api.fx.Application.ID.String(),
		})

		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d %v", resp.StatusCode, body)
		}
		row := api.store.StatusRow(api.fx.Application.ID)
		if row == nil || row.Status != models.PaymentCompleted {
			t.Errorf("expected completed status row, got %+v", row)
		}
	})

	t.Run("Given an unknown action When an admin runs it Then 400 is returned", func(t *testing.T) {
		api := newTestAPI()

		resp, body := api.do(t, "POST", "/api/admin/reconcile", token(t, uuid.New(), "admin"), fiber.Map{
			"applicationId": api.fx.Application.ID.String(),
			"actions":       []string{"drop_tables"},
		})

		if resp.StatusCode != fiber.StatusBadRequest || body["code"] != "unknown_action" {
			t.Errorf("expected 400 unknown_action, got %d %v", resp.StatusCode, body)
		}
	})

	t.Run("Given a regular user When calling admin routes Then 403 is returned", func(t *testing.T) {
		api := newTestAPI()

		resp, _ := api.do(t, "POST", "/api/admin/reconcile/sweep", token(t, api.fx.User.ID, "user"), nil)

		if resp.StatusCode != fiber.StatusForbidden {
			t.Errorf("expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("Given an inconsistent application When listing inconsistent ones Then it is flagged", func(t *testing.T) {
		api := newTestAPI()
		api.store.SetApplication(api.fx.Application.ID, models.PaymentCompleted, models.ApplicationApproved)

		resp, body := api.do(t, "GET", "/api/admin/applications?inconsistent=true", token(t, uuid.New(), "admin"), nil)

		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d %v", resp.StatusCode, body)
		}
		apps, _ := body["applications"].([]any)
		if len(apps) != 1 {
			t.Fatalf("expected one application, got %v", body)
		}
		if entry := apps[0].(map[string]any); entry["needs_reconciliation"] != true {
			t.Errorf("expected needs_reconciliation, got %v", entry)
		}
	})

	t.Run("Given a bad status filter When listing Then 400 is returned", func(t *testing.T) {
		api := newTestAPI()

		resp, _ := api.do(t, "GET", "/api/admin/applications?paymentStatus=refunded", token(t, uuid.New(), "admin"), nil)

		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("Given a paid application without a key When an admin grants Then the chain is called once", func(t *testing.T) {
		api := newTestAPI()
		api.store.SetApplication(api.fx.Application.ID, models.PaymentCompleted, models.ApplicationApproved)

		resp, body := api.do(t, "POST", "/api/admin/keys/grant", token(t, uuid.New(), "admin"), fiber.Map{
			"applicationId": api.fx.Application.ID.String(),
		})

		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d %v", resp.StatusCode, body)
		}
		if api.chain.GrantCount() != 1 {
			t.Errorf("expected one grant, got %d", api.chain.GrantCount())
		}
	})

	t.Run("Given the chain keeps failing When an admin grants Then the rpc error stays out of the report", func(t *testing.T) {
		api := newTestAPI()
		api.store.SetApplication(api.fx.Application.ID, models.PaymentCompleted, models.ApplicationApproved)
		api.chain.AlwaysFail = errors.New("dial tcp 10.1.2.3:8545: internal-rpc.corp refused")

		resp, raw := api.doRaw(t, "POST", "/api/admin/keys/grant", token(t, uuid.New(), "admin"), fiber.Map{
			"applicationId": api.fx.Application.ID.String(),
		})

		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d %s", resp.StatusCode, raw)
		}
		if strings.Contains(raw, "10.1.2.3") {
			t.Errorf("collaborator error leaked into the report: %s", raw)
		}
		if !strings.Contains(raw, `"success":false`) {
			t.Errorf("expected the grant action to fail, got %s", raw)
		}
	})

	t.Run("Given another user's application When reconciling it Then 403 is returned", func(t *testing.T) {
		api := newTestAPI()

		resp, _ := api.do(t, "POST", "/api/applications/"+api.fx.Application.ID.String()+"/reconcile", token(t, uuid.New(), "user"), nil)

		if resp.StatusCode != fiber.StatusForbidden {
			t.Errorf("expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("Given a malformed id When reconciling Then 400 is returned", func(t *testing.T) {
		api := newTestAPI()

		resp, _ := api.do(t, "POST", "/api/applications/not-a-uuid/reconcile", token(t, api.fx.User.ID, "user"), nil)

		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})
}
