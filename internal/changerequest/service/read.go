package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mppchs/internal/changerequest/cache"
	"mppchs/internal/changerequest/diff"
	"mppchs/internal/changerequest/models"
	id "mppchs/pkg/domain"
	"mppchs/pkg/platform/audit"
	"mppchs/pkg/platform/sentinel"
)

// Sources of the dependent changes shown in a Detail.
const (
	SourceLog        = "log"
	SourceRecomputed = "recomputed"
)

// RequestSummary is the list projection of a request. It carries no
// payload values.
type RequestSummary struct {
	ID            id.ChangeRequestID `json:"id"`
	BeneficiaryID id.BeneficiaryID   `json:"beneficiary_id"`
	ReferenceNo   string             `json:"reference_no"`
	SubmissionNo  int                `json:"submission_no"`
	RevisionNo    int                `json:"revision_no"`
	Status        models.Status      `json:"status"`
	Summary       models.Summary     `json:"summary"`
	RequestedAt   *time.Time         `json:"requested_at,omitempty"`
	ReviewedAt    *time.Time         `json:"reviewed_at,omitempty"`
	ReviewerID    id.UserID          `json:"reviewer_id,omitempty"`
	ReviewComment string             `json:"review_comment,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Summarize projects cr without its payloads.
func Summarize(cr *models.ChangeRequest) RequestSummary {
	return RequestSummary{
		ID:            cr.ID,
		BeneficiaryID: cr.BeneficiaryID,
		ReferenceNo:   cr.ReferenceNo,
		SubmissionNo:  cr.SubmissionNo,
		RevisionNo:    cr.RevisionNo,
		Status:        cr.Status,
		Summary:       cr.Summary,
		RequestedAt:   cr.RequestedAt,
		ReviewedAt:    cr.ReviewedAt,
		ReviewerID:    cr.ReviewerID,
		ReviewComment: cr.ReviewComment,
		CreatedAt:     cr.CreatedAt,
		UpdatedAt:     cr.UpdatedAt,
	}
}

// DependentChangeView renders one dependent change for display. Sensitive
// values are masked.
type DependentChangeView struct {
	Identifier string                 `json:"identifier"`
	Action     models.DependentAction `json:"action"`
	Before     map[string]string      `json:"before,omitempty"`
	After      map[string]string      `json:"after,omitempty"`
	Changes    []models.FieldChange   `json:"changes,omitempty"`
}

// Detail is the review view of one request.
type Detail struct {
	Request            RequestSummary        `json:"request"`
	BeneficiaryChanges []models.FieldChange  `json:"beneficiary_changes"`
	DependentChanges   []DependentChangeView `json:"dependent_changes"`
	DependentSource    string                `json:"dependent_source"`
	Items              []models.ChangeItem   `json:"items"`
	Stats              models.ItemStats      `json:"stats"`
}

// GetActiveRequest returns the beneficiary's open request, or nil when there
// is none.
func (s *Service) GetActiveRequest(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.ChangeRequest, error) {
	ctx, span := tracer.Start(ctx, "changerequest.get_active", trace.WithAttributes(beneficiaryAttr(beneficiaryID)))
	defer span.End()

	cr, err := s.stores.Requests.FindActive(ctx, beneficiaryID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "change request")
	}
	return cr, nil
}

// ListForBeneficiary returns the beneficiary's requests, newest first,
// through the list cache.
func (s *Service) ListForBeneficiary(ctx context.Context, beneficiaryID id.BeneficiaryID) ([]RequestSummary, error) {
	ctx, span := tracer.Start(ctx, "changerequest.list", trace.WithAttributes(beneficiaryAttr(beneficiaryID)))
	defer span.End()

	list, hit, err := cache.Remember(ctx, s.cache, cache.ListKey(beneficiaryID), s.listTTL,
		func(ctx context.Context) ([]RequestSummary, error) {
			requests, err := s.stores.Requests.ListByBeneficiary(ctx, beneficiaryID)
			if err != nil {
				return nil, translate(err, "change requests")
			}
			out := make([]RequestSummary, 0, len(requests))
			for _, cr := range requests {
				out = append(out, Summarize(cr))
			}
			return out, nil
		})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementCacheLookup(hit)
	return list, nil
}

// GetRequestForBeneficiary reconstructs the review view of a request owned
// by beneficiaryID. Dependent changes come from the persisted log when it
// has rows, otherwise they are recomputed from the stored snapshots.
func (s *Service) GetRequestForBeneficiary(ctx context.Context, beneficiaryID id.BeneficiaryID, requestID id.ChangeRequestID) (*Detail, error) {
	ctx, span := tracer.Start(ctx, "changerequest.get", trace.WithAttributes(beneficiaryAttr(beneficiaryID), requestAttr(requestID)))
	defer span.End()

	cr, err := s.loadOwned(ctx, beneficiaryID, requestID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, cr)
}

// GetRequest is the reviewer's view of any request.
func (s *Service) GetRequest(ctx context.Context, requestID id.ChangeRequestID) (*Detail, error) {
	ctx, span := tracer.Start(ctx, "changerequest.get", trace.WithAttributes(requestAttr(requestID)))
	defer span.End()

	cr, err := s.stores.Requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, translate(err, "change request")
	}
	return s.detail(ctx, cr)
}

func (s *Service) detail(ctx context.Context, cr *models.ChangeRequest) (*Detail, error) {
	logs, err := s.stores.Logs.ListLogs(ctx, cr.ID)
	if err != nil {
		return nil, translate(err, "dependent change log")
	}
	items, err := s.stores.Items.ListItems(ctx, cr.ID)
	if err != nil {
		return nil, translate(err, "change items")
	}

	source := SourceLog
	var changes []models.DependentChange
	if len(logs) > 0 {
		changes = diff.FromLogEntries(logs)
	} else {
		source = SourceRecomputed
		changes = diff.Dependents(cr.Before.Normalized().Dependents, cr.After.Normalized().Dependents)
	}

	return &Detail{
		Request:            Summarize(cr),
		BeneficiaryChanges: maskFieldChanges(diff.BeneficiaryFields(cr.Before.Normalized(), cr.After.Normalized())),
		DependentChanges:   viewDependentChanges(changes),
		DependentSource:    source,
		Items:              items,
		Stats:              models.ComputeItemStats(items),
	}, nil
}

// GetItemStats counts a request's items by review status.
func (s *Service) GetItemStats(ctx context.Context, requestID id.ChangeRequestID) (models.ItemStats, error) {
	ctx, span := tracer.Start(ctx, "changerequest.item_stats", trace.WithAttributes(requestAttr(requestID)))
	defer span.End()

	if _, err := s.stores.Requests.FindByID(ctx, requestID); err != nil {
		return models.ItemStats{}, translate(err, "change request")
	}
	items, err := s.stores.Items.ListItems(ctx, requestID)
	if err != nil {
		return models.ItemStats{}, translate(err, "change items")
	}
	return models.ComputeItemStats(items), nil
}

// ListAudit returns the request's audit trail in append order.
func (s *Service) ListAudit(ctx context.Context, requestID id.ChangeRequestID) ([]audit.Event, error) {
	ctx, span := tracer.Start(ctx, "changerequest.list_audit", trace.WithAttributes(requestAttr(requestID)))
	defer span.End()

	if _, err := s.stores.Requests.FindByID(ctx, requestID); err != nil {
		return nil, translate(err, "change request")
	}
	entries, err := s.stores.Audit.ListByChangeRequest(ctx, requestID)
	if err != nil {
		return nil, translate(err, "audit trail")
	}
	return entries, nil
}

func maskFieldChanges(changes []models.FieldChange) []models.FieldChange {
	out := make([]models.FieldChange, 0, len(changes))
	for _, fc := range changes {
		if f, ok := models.BeneficiaryField(fc.Field); ok {
			fc.Before, fc.After = f.Display(fc.Before), f.Display(fc.After)
		}
		out = append(out, fc)
	}
	return out
}

func viewDependentChanges(changes []models.DependentChange) []DependentChangeView {
	out := make([]DependentChangeView, 0, len(changes))
	for _, change := range changes {
		view := DependentChangeView{
			Identifier: change.Identity().String(),
			Action:     change.Action(),
		}
		switch c := change.(type) {
		case models.DependentAdd:
			view.After = displayDependent(c.After)
		case models.DependentRemove:
			view.Before = displayDependent(c.Before)
		case models.DependentUpdate:
			view.Before = displayDependent(c.Before)
			view.After = displayDependent(c.After)
			for _, fc := range c.Changes {
				if f, ok := models.DependentField(fc.Field); ok {
					fc.Before, fc.After = f.Display(fc.Before), f.Display(fc.After)
				}
				view.Changes = append(view.Changes, fc)
			}
		}
		out = append(out, view)
	}
	return out
}

func displayDependent(d models.DependentSnapshot) map[string]string {
	view := make(map[string]string, len(models.DependentFields))
	for _, f := range models.DependentFields {
		if v := f.Get(&d); v != "" {
			view[f.Key] = f.Display(v)
		}
	}
	return view
}
