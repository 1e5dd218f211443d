package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"Bootcamp/internal/chain"
	"Bootcamp/internal/models"
	"Bootcamp/internal/store"
)

type VerificationOutcome string

const (
	OutcomeSuccess         VerificationOutcome = "success"
	OutcomeFailed          VerificationOutcome = "failed"
	OutcomePending         VerificationOutcome = "pending"
	OutcomeNotFound        VerificationOutcome = "not_found"
	OutcomeProcessingError VerificationOutcome = "processing_error"
)

const (
	SourceStore   = "store"
	SourceGateway = "gateway"
	SourceChain   = "chain"
)

// pendingRetryAfter is suggested when the gateway or chain still reports
// the payment in flight.
const pendingRetryAfter = 10

type VerifyRequest struct {
	Reference       string
	ApplicationID   uuid.UUID
	TransactionHash string
	Method          models.PaymentMethod
	// CallerID, when set, must own the application.
	CallerID uuid.UUID
}

type VerifyResult struct {
	Outcome       VerificationOutcome `json:"outcome"`
	Source        string              `json:"source"`
	Reference     string              `json:"reference,omitempty"`
	ApplicationID *uuid.UUID          `json:"application_id,omitempty"`
	Message       string              `json:"message,omitempty"`
	RetryAfter    int                 `json:"retry_after,omitempty"`
	TokenID       string              `json:"token_id,omitempty"`
	KeyGranted    bool                `json:"key_granted"`
	GrantFailed   bool                `json:"grant_failed"`
	Enrolled      bool                `json:"enrolled"`
	Steps         []StepResult        `json:"steps,omitempty"`
}

type RouterDeps struct {
	Store             Store
	Sync              *StatusSync
	Enrollments       *EnrollmentService
	Grants            *KeyGrantService
	Gateway           PaymentGateway
	Chain             ChainClient
	Mailer            Mailer
	Events            EventPublisher
	Notifications     *NotificationService
	WebhookWaitWindow time.Duration
	GatewayTimeout    time.Duration
	CallbackURL       string
}

// Router decides how a payment is verified: from the store when the webhook
// already landed, otherwise from the gateway or the chain.
type Router struct {
	store          Store
	sync           *StatusSync
	enrollments    *EnrollmentService
	grants         *KeyGrantService
	gateway        PaymentGateway
	chain          ChainClient
	mailer         Mailer
	events         EventPublisher
	notifications  *NotificationService
	window         time.Duration
	gatewayTimeout time.Duration
	callbackURL    string
	now            func() time.Time
}

func NewRouter(d RouterDeps) *Router {
	if d.WebhookWaitWindow <= 0 {
		d.WebhookWaitWindow = 30 * time.Second
	}
	if d.GatewayTimeout <= 0 {
		d.GatewayTimeout = 20 * time.Second
	}
	if d.Sync == nil {
		d.Sync = NewStatusSync(d.Store)
	}
	if d.Enrollments == nil {
		d.Enrollments = NewEnrollmentService(d.Store)
	}
	if d.Notifications == nil {
		d.Notifications = NewNotificationService(d.Store)
	}
	return &Router{
		store:          d.Store,
		sync:           d.Sync,
		enrollments:    d.Enrollments,
		grants:         d.Grants,
		gateway:        d.Gateway,
		chain:          d.Chain,
		mailer:         d.Mailer,
		events:         d.Events,
		notifications:  d.Notifications,
		window:         d.WebhookWaitWindow,
		gatewayTimeout: d.GatewayTimeout,
		callbackURL:    d.CallbackURL,
		now:            time.Now,
	}
}

// VerifyPayment resolves the outcome of a payment. A terminal row in the
// store wins; a pending row younger than the webhook window asks the client
// to retry; anything else is checked against the payment's source of truth.
func (r *Router) VerifyPayment(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	req.Reference = strings.TrimSpace(req.Reference)
	req.TransactionHash = strings.TrimSpace(req.TransactionHash)
	if req.Reference == "" && req.ApplicationID == uuid.Nil && req.TransactionHash == "" {
		return nil, validationError("missing_identifier", "reference, application id or transaction hash is required")
	}
	if req.Method == "" {
		req.Method = models.PaymentMethodPaystack
		if req.TransactionHash != "" {
			req.Method = models.PaymentMethodBlockchain
		}
	}
	if req.Method != models.PaymentMethodPaystack && req.Method != models.PaymentMethodBlockchain {
		return nil, validationError("invalid_payment_method", "unknown payment method "+string(req.Method))
	}

	if req.CallerID != uuid.Nil && req.ApplicationID != uuid.Nil {
		if err := r.authorize(ctx, req.ApplicationID, req.CallerID); err != nil {
			return nil, err
		}
	}

	row, err := r.lookup(ctx, req)
	if err != nil {
		return nil, err
	}
	if row != nil && req.CallerID != uuid.Nil && req.ApplicationID == uuid.Nil && row.ApplicationID != nil {
		if err := r.authorize(ctx, *row.ApplicationID, req.CallerID); err != nil {
			return nil, err
		}
	}

	if row != nil {
		switch row.Status {
		case models.TransactionSuccess:
			return r.confirmedFromStore(ctx, row), nil
		case models.TransactionFailed:
			return &VerifyResult{
				Outcome:       OutcomeFailed,
				Source:        SourceStore,
				Reference:     row.PaymentReference,
				ApplicationID: row.ApplicationID,
				Message:       "payment failed",
			}, nil
		case models.TransactionPending:
			if age := row.Age(r.now()); age < r.window {
				return &VerifyResult{
					Outcome:       OutcomePending,
					Source:        SourceStore,
					Reference:     row.PaymentReference,
					ApplicationID: row.ApplicationID,
					Message:       "waiting for payment confirmation",
					RetryAfter:    int(math.Ceil((r.window - age).Seconds())),
				}, nil
			}
		}
	}

	var res *VerifyResult
	if req.Method == models.PaymentMethodBlockchain {
		res, err = r.verifyOnChain(ctx, req, row)
	} else {
		res, err = r.verifyWithGateway(ctx, req, row)
	}
	// The caller was never checked against an application resolved from
	// gateway metadata, so it is not echoed back.
	authorized := req.ApplicationID != uuid.Nil || (row != nil && row.ApplicationID != nil)
	if res != nil && req.CallerID != uuid.Nil && !authorized {
		res.ApplicationID = nil
	}
	return res, err
}

func (r *Router) authorize(ctx context.Context, applicationID, callerID uuid.UUID) error {
	app, err := r.store.GetApplication(ctx, applicationID)
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError("application_not_found", "application does not exist")
	}
	if err != nil {
		return storageError("load application", err)
	}
	if app.UserProfileID != callerID {
		return forbiddenError("application belongs to another user")
	}
	return nil
}

// lookup prefers the application's rows, since gateway references do not
// always match what the client holds.
func (r *Router) lookup(ctx context.Context, req VerifyRequest) (*models.PaymentTransaction, error) {
	if req.ApplicationID != uuid.Nil {
		row, err := r.store.SuccessfulPaymentForApplication(ctx, req.ApplicationID)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, storageError("load payment by application", err)
		}
		row, err = r.store.LatestPaymentForApplication(ctx, req.ApplicationID)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, storageError("load payment by application", err)
		}
	}
	if req.Reference != "" {
		row, err := r.store.GetPaymentByReference(ctx, req.Reference)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, storageError("load payment by reference", err)
		}
	}
	if req.TransactionHash != "" {
		row, err := r.store.GetPaymentByHash(ctx, req.TransactionHash)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, storageError("load payment by hash", err)
		}
	}
	return nil, nil
}

// confirmedFromStore reports a webhook-confirmed payment and makes sure the
// membership key followed it.
func (r *Router) confirmedFromStore(ctx context.Context, row *models.PaymentTransaction) *VerifyResult {
	res := &VerifyResult{
		Outcome:       OutcomeSuccess,
		Source:        SourceStore,
		Reference:     row.PaymentReference,
		ApplicationID: row.ApplicationID,
		Message:       "payment confirmed",
	}
	if row.ApplicationID == nil {
		return res
	}
	app, err := r.store.GetApplication(ctx, *row.ApplicationID)
	if err != nil {
		log.Printf("⚠️ Load application %s for key grant: %v", *row.ApplicationID, err)
		return res
	}
	if _, err := r.store.GetEnrollment(ctx, app.UserProfileID, app.CohortID); err == nil {
		res.Enrolled = true
	}
	res.KeyGranted, res.GrantFailed = r.grantKey(ctx, app)
	return res
}

func (r *Router) grantKey(ctx context.Context, app *models.Application) (granted, failed bool) {
	if r.grants == nil {
		return false, false
	}
	outcome, err := r.grants.GrantForApplication(ctx, app, OriginCheckout)
	if err != nil {
		log.Printf("⚠️ Key grant for application %s failed: %v", app.ID, err)
		return false, true
	}
	if outcome.Skipped != "" {
		log.Printf("ℹ️ Key grant for application %s skipped: %s", app.ID, outcome.Skipped)
	}
	return outcome.HasKey(), false
}

func (r *Router) verifyWithGateway(ctx context.Context, req VerifyRequest, row *models.PaymentTransaction) (*VerifyResult, error) {
	reference := req.Reference
	if reference == "" && row != nil {
		reference = row.PaymentReference
	}
	if reference == "" {
		return &VerifyResult{Outcome: OutcomeNotFound, Source: SourceStore, Message: "no payment reference to verify"}, nil
	}
	if r.gateway == nil {
		return &VerifyResult{Outcome: OutcomeProcessingError, Source: SourceGateway, Reference: reference, Message: "payment gateway not configured"}, nil
	}

	gctx, cancel := context.WithTimeout(ctx, r.gatewayTimeout)
	defer cancel()
	tx, err := r.gateway.VerifyTransaction(gctx, reference)
	if errors.Is(err, ErrGatewayNotFound) {
		return &VerifyResult{Outcome: OutcomeNotFound, Source: SourceGateway, Reference: reference, Message: "payment not found"}, nil
	}
	if err != nil {
		log.Printf("❌ Gateway verification for %s failed: %v", reference, err)
		return &VerifyResult{Outcome: OutcomeProcessingError, Source: SourceGateway, Reference: reference, Message: "could not verify payment"}, nil
	}

	appID := resolveApplicationID(req.ApplicationID, row, tx.Metadata)
	conf := PaymentConfirmation{
		Reference:     reference,
		ApplicationID: appID,
		Method:        models.PaymentMethodPaystack,
		Amount:        tx.Amount,
		Currency:      models.Currency(strings.ToUpper(tx.Currency)),
		Metadata: map[string]any{
			"gatewayStatus": tx.Status,
			"paidAt":        tx.PaidAt,
			"verifiedBy":    "gateway",
		},
	}
	if conf.Currency != models.CurrencyNGN && conf.Currency != models.CurrencyUSD {
		conf.Currency = models.CurrencyNGN
	}

	switch strings.ToLower(tx.Status) {
	case "success":
		conf.Status = models.TransactionSuccess
		conf.Reason = "payment verified with gateway"
		return r.completePayment(ctx, conf, SourceGateway, "")
	case "failed", "cancelled", "abandoned", "reversed":
		conf.Status = models.TransactionFailed
		conf.Reason = "gateway reported " + strings.ToLower(tx.Status)
		return r.failPayment(ctx, conf, SourceGateway)
	case "pending", "ongoing", "processing", "queued":
		return &VerifyResult{
			Outcome:       OutcomePending,
			Source:        SourceGateway,
			Reference:     reference,
			ApplicationID: uuidPtr(appID),
			Message:       "payment still in progress",
			RetryAfter:    pendingRetryAfter,
		}, nil
	default:
		log.Printf("⚠️ Unexpected gateway status %q for %s", tx.Status, reference)
		return &VerifyResult{Outcome: OutcomeProcessingError, Source: SourceGateway, Reference: reference, Message: "unexpected gateway status " + tx.Status}, nil
	}
}

func (r *Router) verifyOnChain(ctx context.Context, req VerifyRequest, row *models.PaymentTransaction) (*VerifyResult, error) {
	hash := req.TransactionHash
	if hash == "" && row != nil && row.TransactionHash != nil {
		hash = *row.TransactionHash
	}
	if hash == "" {
		return &VerifyResult{Outcome: OutcomeNotFound, Source: SourceStore, Message: "no transaction hash to verify"}, nil
	}
	if r.chain == nil {
		return &VerifyResult{Outcome: OutcomeProcessingError, Source: SourceChain, Message: "chain client not configured"}, nil
	}

	reference := req.Reference
	if reference == "" && row != nil {
		reference = row.PaymentReference
	}
	if reference == "" {
		reference = hash
	}

	receipt, err := r.chain.TransactionReceipt(ctx, hash)
	if errors.Is(err, chain.ErrNotFound) {
		found, _, err := r.chain.TransactionByHash(ctx, hash)
		if err != nil {
			log.Printf("❌ Chain lookup for %s failed: %v", hash, err)
			return &VerifyResult{Outcome: OutcomeProcessingError, Source: SourceChain, Reference: reference, Message: "could not reach chain"}, nil
		}
		if found {
			return &VerifyResult{Outcome: OutcomePending, Source: SourceChain, Reference: reference, Message: "transaction not yet mined", RetryAfter: pendingRetryAfter}, nil
		}
		return &VerifyResult{Outcome: OutcomeNotFound, Source: SourceChain, Reference: reference, Message: "transaction not found"}, nil
	}
	if err != nil {
		log.Printf("❌ Receipt lookup for %s failed: %v", hash, err)
		return &VerifyResult{Outcome: OutcomeProcessingError, Source: SourceChain, Reference: reference, Message: "could not reach chain"}, nil
	}

	appID := resolveApplicationID(req.ApplicationID, row, nil)
	conf := PaymentConfirmation{
		Reference:       reference,
		ApplicationID:   appID,
		Method:          models.PaymentMethodBlockchain,
		Currency:        models.CurrencyUSD,
		TransactionHash: hash,
		Metadata: map[string]any{
			"blockNumber": receiptBlock(receipt),
			"verifiedBy":  "chain",
		},
	}
	if row != nil {
		conf.Amount = row.Amount
		conf.NetworkChainID = row.NetworkChainID
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		conf.Status = models.TransactionFailed
		conf.Reason = "transaction reverted on chain"
		return r.failPayment(ctx, conf, SourceChain)
	}

	lockAddress := ""
	if appID != uuid.Nil {
		if app, err := r.store.GetApplication(ctx, appID); err == nil {
			if cohort, err := r.store.GetCohort(ctx, app.CohortID); err == nil {
				lockAddress = cohort.LockAddress
				if conf.NetworkChainID == nil && cohort.ChainID != 0 {
					conf.NetworkChainID = &cohort.ChainID
				}
			}
		}
	}
	tokenID := ""
	if id, ok := chain.FirstTransferTokenID(receipt.Logs, lockAddress); ok {
		tokenID = id.String()
		conf.Metadata["tokenId"] = tokenID
	}

	conf.Status = models.TransactionSuccess
	conf.Reason = "payment verified on chain"
	return r.completePayment(ctx, conf, SourceChain, tokenID)
}

func receiptBlock(rc *types.Receipt) uint64 {
	if rc.BlockNumber == nil {
		return 0
	}
	return rc.BlockNumber.Uint64()
}

func (r *Router) failPayment(ctx context.Context, conf PaymentConfirmation, source string) (*VerifyResult, error) {
	res := &VerifyResult{Outcome: OutcomeFailed, Source: source, Reference: conf.Reference, ApplicationID: uuidPtr(conf.ApplicationID), Message: "payment failed"}
	state, err := r.sync.ConfirmPayment(ctx, conf)
	if err != nil {
		var se *Error
		if errors.As(err, &se) && se.Code == "application_unresolved" {
			return res, nil
		}
		log.Printf("❌ Recording failed payment %s: %v", conf.Reference, err)
		res.Outcome = OutcomeProcessingError
		res.Message = "could not record payment result"
		return res, nil
	}
	if state.Changed() && state.PaymentStatus == models.PaymentFailed {
		if app, err := r.store.GetApplication(ctx, state.ApplicationID); err == nil {
			if err := r.notifications.NotifyPaymentFailed(ctx, app, conf.Reference); err != nil {
				log.Printf("⚠️ Notifying failed payment %s: %v", conf.Reference, err)
			}
		}
	}
	return res, nil
}

// completePayment runs the manual processing flow for a verified payment.
// Only the confirmation itself decides the outcome.
func (r *Router) completePayment(ctx context.Context, conf PaymentConfirmation, source, tokenID string) (*VerifyResult, error) {
	res := &VerifyResult{
		Source:        source,
		Reference:     conf.Reference,
		ApplicationID: uuidPtr(conf.ApplicationID),
		TokenID:       tokenID,
	}

	var (
		app        *models.Application
		enrollment *EnrollmentResult
		grant      *GrantOutcome
	)

	report := RunSteps(ctx,
		Step{
			Name:     "confirm_payment",
			Required: true,
			Run: func(ctx context.Context) (map[string]any, error) {
				state, err := r.sync.ConfirmPayment(ctx, conf)
				if err != nil {
					return nil, err
				}
				app, err = r.store.GetApplication(ctx, state.ApplicationID)
				if err != nil {
					return nil, storageError("reload application", err)
				}
				return map[string]any{"payment_status": state.PaymentStatus, "application_status": state.ApplicationStatus}, nil
			},
		},
		Step{
			Name: "create_enrollment",
			Skip: func() string {
				if !app.IsApproved() {
					return "application not approved"
				}
				return ""
			},
			Run: func(ctx context.Context) (map[string]any, error) {
				var err error
				enrollment, err = r.enrollments.CreateEnrollmentForCompletedApplication(ctx, app.ID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"already_exists": enrollment.AlreadyExists}, nil
			},
		},
		Step{
			Name: "grant_key",
			Skip: func() string {
				if r.grants == nil {
					return "key grants disabled"
				}
				return ""
			},
			Run: func(ctx context.Context) (map[string]any, error) {
				var err error
				grant, err = r.grants.GrantForApplication(ctx, app, OriginCheckout)
				if err != nil {
					return nil, err
				}
				if grant.Skipped != "" {
					return map[string]any{"skipped": grant.Skipped}, nil
				}
				return map[string]any{"transaction_hash": grant.TransactionHash, "already_had_key": grant.AlreadyHadKey}, nil
			},
		},
		Step{
			Name: "send_confirmation_email",
			Skip: func() string {
				switch {
				case r.mailer == nil:
					return "mailer disabled"
				case enrollment == nil || enrollment.AlreadyExists:
					return "no new enrollment"
				case app.UserEmail == "":
					return "no email on application"
				}
				return ""
			},
			Run: func(ctx context.Context) (map[string]any, error) {
				cohortName := app.CohortID
				if cohort, err := r.store.GetCohort(ctx, app.CohortID); err == nil && cohort.Name != "" {
					cohortName = cohort.Name
				}
				return nil, r.mailer.SendEnrollmentConfirmation(ctx, app.UserEmail, app.UserName, cohortName)
			},
		},
		Step{
			Name: "publish_event",
			Skip: func() string {
				if r.events == nil {
					return "events disabled"
				}
				return ""
			},
			Run: func(ctx context.Context) (map[string]any, error) {
				return nil, r.events.Publish(ctx, TopicPaymentConfirmed, PaymentConfirmedEvent{
					ApplicationID: app.ID.String(),
					UserProfileID: app.UserProfileID.String(),
					Reference:     conf.Reference,
					Method:        string(conf.Method),
					ConfirmedAt:   r.now().UTC().Format(time.RFC3339),
				})
			},
		},
		Step{
			Name: "notify_user",
			Run: func(ctx context.Context) (map[string]any, error) {
				enrolled := enrollment != nil && !enrollment.AlreadyExists
				if err := r.notifications.NotifyPaymentConfirmed(ctx, app, conf.Reference, enrolled); err != nil {
					return nil, err
				}
				if grant != nil && grant.RequiresReconciliation {
					return map[string]any{"key_delay": true}, r.notifications.NotifyKeyGrantDelayed(ctx, app)
				}
				return nil, nil
			},
		},
	)
	res.Steps = report.Results

	if !report.Succeeded("confirm_payment") {
		confirm, _ := report.Result("confirm_payment")
		log.Printf("❌ Confirming payment %s failed: %s", conf.Reference, confirm.Error)
		res.Outcome = OutcomeProcessingError
		res.Message = "payment verified but could not be recorded"
		return res, nil
	}

	res.Outcome = OutcomeSuccess
	res.Message = "payment confirmed"
	res.ApplicationID = &app.ID
	res.Enrolled = enrollment != nil
	if grant != nil {
		res.KeyGranted = grant.HasKey()
	}
	if s, ok := report.Result("grant_key"); ok && s.Status == StepFailed {
		res.GrantFailed = true
	}
	return res, nil
}

// HandleGatewayEvent applies a signature-checked gateway webhook.
// Events other than charge.success are acknowledged and ignored.
func (r *Router) HandleGatewayEvent(ctx context.Context, ev WebhookEvent) (*VerifyResult, error) {
	if ev.Event != "charge.success" {
		log.Printf("ℹ️ Ignoring gateway event %s", ev.Event)
		return nil, nil
	}
	if ev.Data.Reference == "" {
		return nil, validationError("missing_reference", "event has no reference")
	}

	row, err := r.lookup(ctx, VerifyRequest{Reference: ev.Data.Reference})
	if err != nil {
		return nil, err
	}
	if row != nil && row.Status == models.TransactionSuccess {
		return &VerifyResult{Outcome: OutcomeSuccess, Source: SourceStore, Reference: row.PaymentReference, ApplicationID: row.ApplicationID, Message: "already confirmed"}, nil
	}

	meta := ev.Metadata()
	currency := models.Currency(strings.ToUpper(ev.Data.Currency))
	if currency != models.CurrencyUSD {
		currency = models.CurrencyNGN
	}
	return r.completePayment(ctx, PaymentConfirmation{
		Reference:     ev.Data.Reference,
		ApplicationID: resolveApplicationID(uuid.Nil, row, meta),
		Status:        models.TransactionSuccess,
		Method:        models.PaymentMethodPaystack,
		Amount:        decimal.New(ev.Data.Amount, -2),
		Currency:      currency,
		Metadata: map[string]any{
			"gatewayStatus": ev.Data.Status,
			"paidAt":        ev.Data.PaidAt,
			"verifiedBy":    "webhook",
		},
		Reason: "payment confirmed by webhook",
	}, SourceGateway, "")
}

func resolveApplicationID(explicit uuid.UUID, row *models.PaymentTransaction, meta map[string]any) uuid.UUID {
	if explicit != uuid.Nil {
		return explicit
	}
	if row != nil && row.ApplicationID != nil {
		return *row.ApplicationID
	}
	for _, key := range []string{"applicationId", "application_id"} {
		if v, ok := meta[key].(string); ok {
			if id, err := uuid.Parse(v); err == nil {
				return id
			}
		}
	}
	return uuid.Nil
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// InitializeResult is what a client needs to open the gateway checkout.
type InitializeResult struct {
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         models.Currency `json:"currency"`
}

// InitializePayment opens a gateway checkout for an application and stores
// the pending transaction row the webhook will later complete.
func (r *Router) InitializePayment(ctx context.Context, applicationID, callerID uuid.UUID) (*InitializeResult, error) {
	if applicationID == uuid.Nil {
		return nil, validationError("missing_application_id", "application id is required")
	}
	if callerID != uuid.Nil {
		if err := r.authorize(ctx, applicationID, callerID); err != nil {
			return nil, err
		}
	}
	app, err := r.store.GetApplication(ctx, applicationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("application_not_found", "application does not exist")
	}
	if err != nil {
		return nil, storageError("load application", err)
	}
	if app.PaymentStatus == models.PaymentCompleted {
		return nil, &Error{Kind: KindConflict, Code: "already_paid", Message: "application is already paid"}
	}
	if app.UserEmail == "" {
		return nil, validationError("missing_email", "application has no email for checkout")
	}
	cohort, err := r.store.GetCohort(ctx, app.CohortID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("cohort_not_found", "cohort does not exist")
	}
	if err != nil {
		return nil, storageError("load cohort", err)
	}
	if !cohort.FeeNGN.IsPositive() {
		return nil, validationError("no_fee", "cohort has no fee to pay")
	}
	if r.gateway == nil {
		return nil, upstreamError("gateway_unavailable", "payment gateway not configured", nil)
	}

	reference := fmt.Sprintf("BC-%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:20])
	row := &models.PaymentTransaction{
		ApplicationID:    &app.ID,
		PaymentReference: reference,
		Amount:           cohort.FeeNGN,
		Currency:         models.CurrencyNGN,
		PaymentMethod:    models.PaymentMethodPaystack,
		Status:           models.TransactionPending,
		Metadata:         mergeMetadata(nil, map[string]any{"applicationId": app.ID.String(), "cohortId": cohort.ID}),
	}
	if err := r.store.CreatePayment(ctx, row); err != nil {
		return nil, storageError("create payment", err)
	}

	gctx, cancel := context.WithTimeout(ctx, r.gatewayTimeout)
	defer cancel()
	resp, err := r.gateway.InitializePayment(gctx, InitializeRequest{
		Email:       app.UserEmail,
		Amount:      cohort.FeeNGN,
		Currency:    string(models.CurrencyNGN),
		Reference:   reference,
		CallbackURL: r.callbackURL,
		Metadata: map[string]any{
			"applicationId": app.ID.String(),
			"cohortId":      cohort.ID,
			"userProfileId": app.UserProfileID.String(),
		},
	})
	if err != nil {
		failed := models.TransactionFailed
		if uerr := r.store.UpdatePayment(ctx, reference, store.PaymentPatch{Status: &failed}); uerr != nil {
			log.Printf("⚠️ Mark payment %s failed: %v", reference, uerr)
		}
		return nil, upstreamError("gateway_initialize_failed", "could not start checkout", err)
	}

	log.Printf("💳 Checkout %s opened for application %s", reference, app.ID)
	return &InitializeResult{
		Reference:        reference,
		AuthorizationURL: resp.AuthorizationURL,
		AccessCode:       resp.AccessCode,
		Amount:           cohort.FeeNGN,
		Currency:         models.CurrencyNGN,
	}, nil
}
