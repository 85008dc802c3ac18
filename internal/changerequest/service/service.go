// Package service is the change request façade: the lifecycle state machine
// over the request, item, log and audit stores, plus the read paths the
// HTTP layer serves.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	bmodels "mppchs/internal/beneficiary/models"
	"mppchs/internal/changerequest/apply"
	"mppchs/internal/changerequest/cache"
	"mppchs/internal/changerequest/events"
	"mppchs/internal/changerequest/ledger"
	"mppchs/internal/changerequest/models"
	"mppchs/internal/changerequest/store"
	"mppchs/internal/platform/metrics"
	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
	"mppchs/pkg/platform/audit"
	"mppchs/pkg/platform/sentinel"
	"mppchs/pkg/requestcontext"
)

var tracer = otel.Tracer("mppchs/internal/changerequest/service")

const defaultListTTL = 30 * time.Second

type RequestStore interface {
	Create(ctx context.Context, cr *models.ChangeRequest) error
	Update(ctx context.Context, cr *models.ChangeRequest) error
	FindByID(ctx context.Context, requestID id.ChangeRequestID) (*models.ChangeRequest, error)
	FindByIDForUpdate(ctx context.Context, requestID id.ChangeRequestID) (*models.ChangeRequest, error)
	FindActive(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.ChangeRequest, error)
	ListByBeneficiary(ctx context.Context, beneficiaryID id.BeneficiaryID) ([]*models.ChangeRequest, error)
	ListOpen(ctx context.Context, statuses []models.Status, exclude id.BeneficiaryID) ([]*models.ChangeRequest, error)
	MaxSubmissionNo(ctx context.Context, beneficiaryID id.BeneficiaryID) (int, error)
	Counters(ctx context.Context, beneficiaryID id.BeneficiaryID) (store.Counters, error)
}

type ItemStore interface {
	ReplaceItems(ctx context.Context, requestID id.ChangeRequestID, items []models.ChangeItem) ([]models.ChangeItem, error)
	ListItems(ctx context.Context, requestID id.ChangeRequestID) ([]models.ChangeItem, error)
	FindItem(ctx context.Context, requestID id.ChangeRequestID, itemID id.ChangeItemID) (*models.ChangeItem, error)
	UpdateItem(ctx context.Context, item *models.ChangeItem) error
}

type LogStore interface {
	ReplaceLogs(ctx context.Context, requestID id.ChangeRequestID, entries []models.DependentChangeLogEntry) error
	ListLogs(ctx context.Context, requestID id.ChangeRequestID) ([]models.DependentChangeLogEntry, error)
}

// LiveStore is the beneficiary store as seen from the façade: the applier's
// write surface plus the denormalized summary.
type LiveStore interface {
	apply.LiveStore
	UpdateSummary(ctx context.Context, beneficiaryID id.BeneficiaryID, summary bmodels.ChangeRequestSummary) error
}

type SnapshotProvider interface {
	FindByBeneficiaryID(ctx context.Context, beneficiaryID id.BeneficiaryID) (models.BeneficiarySnapshot, error)
}

type ConflictChecker interface {
	Check(ctx context.Context, beneficiaryID id.BeneficiaryID, before, after models.BeneficiarySnapshot) error
}

type Applier interface {
	Apply(ctx context.Context, store apply.LiveStore, cr *models.ChangeRequest, actor id.UserID, now time.Time) (apply.Result, error)
}

// Stores groups every store a transition touches. Inside RunInTx the same
// values are bound to the transaction carried by ctx.
type Stores struct {
	Requests RequestStore
	Items    ItemStore
	Logs     LogStore
	Audit    audit.Store
	Live     LiveStore
}

// StoreTx provides the transactional boundary for transitions.
// Implementations may wrap a database transaction or, in-memory, a coarse lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// Service orchestrates change request transitions and reads.
type Service struct {
	stores    Stores
	tx        StoreTx
	snapshots SnapshotProvider
	conflicts ConflictChecker
	applier   Applier

	logger    *slog.Logger
	metrics   *metrics.Metrics
	cache     cache.Cache
	publisher events.Publisher
	policy    ledger.RebuildPolicy
	listTTL   time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCache sets the list cache. The default is a process-local TTL cache.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithPublisher sets the lifecycle notification sink. The default only logs.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithRebuildPolicy selects how a re-saved draft treats existing item reviews.
func WithRebuildPolicy(policy ledger.RebuildPolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

func WithListTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.listTTL = ttl
		}
	}
}

// New constructs a Service. stores serve reads outside transactions.
func New(stores Stores, tx StoreTx, snapshots SnapshotProvider, conflicts ConflictChecker, applier Applier, opts ...Option) *Service {
	s := &Service{
		stores:    stores,
		tx:        tx,
		snapshots: snapshots,
		conflicts: conflicts,
		applier:   applier,
		policy:    ledger.RebuildReplace,
		listTTL:   defaultListTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cache == nil {
		s.cache = cache.NewMemory()
	}
	if s.publisher == nil {
		s.publisher = events.NewLogPublisher(s.logger)
	}
	return s
}

// begin opens a span for a mutating operation. The returned func must be
// deferred with a pointer to the named error result; it records the outcome
// metric, marks the span and logs the failure.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "changerequest."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		err := *errp
		s.metrics.ObserveTransition(op, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.Message(err))
			s.logFailure(ctx, op, err, attrs)
		}
		span.End()
	}
}

func (s *Service) logFailure(ctx context.Context, op string, err error, attrs []attribute.KeyValue) {
	args := []any{"operation", op, "error", err, "request_id", requestcontext.RequestID(ctx)}
	for _, kv := range attrs {
		args = append(args, string(kv.Key), kv.Value.Emit())
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound, dErrors.CodeInvalidState, dErrors.CodeConflict, dErrors.CodeValidation:
		s.logger.WarnContext(ctx, "change request operation rejected", args...)
	default:
		s.logger.ErrorContext(ctx, "change request operation failed", args...)
	}
}

// appendAudit records one successful transition. It runs inside the
// transition's transaction.
func appendAudit(ctx context.Context, st Stores, requestID id.ChangeRequestID, action audit.Action, actor id.UserID, note string, at time.Time) error {
	event := audit.NewEvent(requestID, action, actor, note, at)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := st.Audit.Append(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
	}
	return nil
}

// refreshSummary rewrites the beneficiary's denormalized change request
// pointers and counters from cr and the stored totals.
func refreshSummary(ctx context.Context, st Stores, cr *models.ChangeRequest) error {
	counters, err := st.Requests.Counters(ctx, cr.BeneficiaryID)
	if err != nil {
		return err
	}
	at := cr.UpdatedAt
	return st.Live.UpdateSummary(ctx, cr.BeneficiaryID, bmodels.ChangeRequestSummary{
		LastRequestID:  cr.ID,
		LastStatus:     cr.Status.String(),
		LastReviewerID: cr.ReviewerID,
		LastAt:         &at,
		Submitted:      counters.Submitted,
		Approved:       counters.Approved,
	})
}

// afterCommit runs the side effects that follow a committed transition. The
// summary refresh is skipped when the transition already did it in its
// transaction. None of these can fail the operation.
func (s *Service) afterCommit(ctx context.Context, cr *models.ChangeRequest, refresh bool, event events.Event) {
	if refresh {
		err := s.tx.RunInTx(ctx, func(ctx context.Context, st Stores) error {
			return refreshSummary(ctx, st, cr)
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to refresh beneficiary change request summary",
				"beneficiary_id", cr.BeneficiaryID,
				"change_request_id", cr.ID,
				"error", err,
			)
		}
	}
	s.invalidateList(ctx, cr.BeneficiaryID)
	s.publisher.Publish(ctx, event)
}

func (s *Service) invalidateList(ctx context.Context, beneficiaryID id.BeneficiaryID) {
	if err := s.cache.Delete(ctx, cache.ListKey(beneficiaryID)); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate change request list cache",
			"beneficiary_id", beneficiaryID,
			"error", err,
		)
	}
}

// translate maps store and context failures to coded errors. Errors that
// already carry a code pass through.
func translate(err error, what string) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "a change request is already open for this beneficiary")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, what+" changed concurrently")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to process "+what)
	}
}

// loadOwned returns the request when it belongs to beneficiaryID. A request
// of another beneficiary is reported as not found.
func (s *Service) loadOwned(ctx context.Context, beneficiaryID id.BeneficiaryID, requestID id.ChangeRequestID) (*models.ChangeRequest, error) {
	cr, err := s.stores.Requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, translate(err, "change request")
	}
	if cr.BeneficiaryID != beneficiaryID {
		return nil, dErrors.New(dErrors.CodeNotFound, "change request not found")
	}
	return cr, nil
}

func requestAttr(requestID id.ChangeRequestID) attribute.KeyValue {
	return attribute.Int64("change_request_id", int64(requestID))
}

func beneficiaryAttr(beneficiaryID id.BeneficiaryID) attribute.KeyValue {
	return attribute.Int64("beneficiary_id", int64(beneficiaryID))
}
