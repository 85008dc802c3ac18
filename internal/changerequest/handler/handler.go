package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mppchs/internal/changerequest/models"
	"mppchs/internal/changerequest/service"
	jwttoken "mppchs/internal/jwt_token"
	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
	"mppchs/pkg/platform/audit"
	"mppchs/pkg/platform/httputil"
	authmw "mppchs/pkg/platform/middleware/auth"
	"mppchs/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/service-mocks.go -package=mocks Service

// Service defines the change request operations exposed over HTTP.
type Service interface {
	GetActiveRequest(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.ChangeRequest, error)
	ListForBeneficiary(ctx context.Context, beneficiaryID id.BeneficiaryID) ([]service.RequestSummary, error)
	GetRequestForBeneficiary(ctx context.Context, beneficiaryID id.BeneficiaryID, requestID id.ChangeRequestID) (*service.Detail, error)
	GetRequest(ctx context.Context, requestID id.ChangeRequestID) (*service.Detail, error)
	SaveDraft(ctx context.Context, beneficiaryID id.BeneficiaryID, userID id.UserID, req service.DraftRequest) (*models.ChangeRequest, error)
	SubmitDraft(ctx context.Context, beneficiaryID id.BeneficiaryID, requestID id.ChangeRequestID, userID id.UserID) (*models.ChangeRequest, error)
	Approve(ctx context.Context, requestID id.ChangeRequestID, reviewerID id.UserID, comment string) (*models.ChangeRequest, error)
	Reject(ctx context.Context, requestID id.ChangeRequestID, reviewerID id.UserID, comment string) (*models.ChangeRequest, error)
	RequestMoreInfo(ctx context.Context, requestID id.ChangeRequestID, reviewerID id.UserID, comment string) (*models.ChangeRequest, error)
	ReviewItem(ctx context.Context, requestID id.ChangeRequestID, itemID id.ChangeItemID, status models.ItemStatus, reviewerID id.UserID, note string) (*models.ChangeItem, error)
	GetItemStats(ctx context.Context, requestID id.ChangeRequestID) (models.ItemStats, error)
	SyncDependentDiffs(ctx context.Context, requestID id.ChangeRequestID) (int, error)
	ListAudit(ctx context.Context, requestID id.ChangeRequestID) ([]audit.Event, error)
}

// Handler wires change request endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the endpoints. The router must already run
// auth.RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Route("/beneficiaries/{beneficiaryID}/change-requests", func(r chi.Router) {
		r.Use(authmw.RequireRole(h.logger, jwttoken.RoleBeneficiary, jwttoken.RoleReviewer))
		r.Get("/", h.HandleList)
		r.Get("/active", h.HandleGetActive)
		r.Get("/{requestID}", h.HandleGetForBeneficiary)
		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(h.logger, jwttoken.RoleBeneficiary))
			r.Put("/draft", h.HandleSaveDraft)
			r.Post("/{requestID}/submit", h.HandleSubmit)
		})
	})

	r.Route("/change-requests/{requestID}", func(r chi.Router) {
		r.Use(authmw.RequireRole(h.logger, jwttoken.RoleReviewer))
		r.Get("/", h.HandleGet)
		r.Post("/approve", h.HandleApprove)
		r.Post("/reject", h.HandleReject)
		r.Post("/request-info", h.HandleRequestInfo)
		r.Patch("/items/{itemID}", h.HandleReviewItem)
		r.Get("/items/stats", h.HandleItemStats)
		r.Post("/sync-dependent-diffs", h.HandleSyncDependentDiffs)
		r.Get("/audit", h.HandleAudit)
	})
}

// HandleList handles GET /beneficiaries/{beneficiaryID}/change-requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	beneficiaryID, ok := h.beneficiary(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListForBeneficiary(r.Context(), beneficiaryID)
	if err != nil {
		h.fail(w, r, "list change requests", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{ChangeRequests: list})
}

// HandleGetActive handles GET /beneficiaries/{beneficiaryID}/change-requests/active.
func (h *Handler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	beneficiaryID, ok := h.beneficiary(w, r)
	if !ok {
		return
	}
	cr, err := h.service.GetActiveRequest(r.Context(), beneficiaryID)
	if err != nil {
		h.fail(w, r, "get active change request", err)
		return
	}
	resp := activeResponse{}
	if cr != nil {
		summary := service.Summarize(cr)
		resp.ChangeRequest = &summary
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGetForBeneficiary handles GET /beneficiaries/{beneficiaryID}/change-requests/{requestID}.
func (h *Handler) HandleGetForBeneficiary(w http.ResponseWriter, r *http.Request) {
	beneficiaryID, ok := h.beneficiary(w, r)
	if !ok {
		return
	}
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.GetRequestForBeneficiary(r.Context(), beneficiaryID, requestID)
	if err != nil {
		h.fail(w, r, "get change request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

// HandleSaveDraft handles PUT /beneficiaries/{beneficiaryID}/change-requests/draft.
func (h *Handler) HandleSaveDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	beneficiaryID, ok := h.beneficiary(w, r)
	if !ok {
		return
	}
	var req service.DraftRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	cr, err := h.service.SaveDraft(ctx, beneficiaryID, requestcontext.UserID(ctx), req)
	if err != nil {
		h.fail(w, r, "save change request draft", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, service.Summarize(cr))
}

// HandleSubmit handles POST /beneficiaries/{beneficiaryID}/change-requests/{requestID}/submit.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	beneficiaryID, ok := h.beneficiary(w, r)
	if !ok {
		return
	}
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	cr, err := h.service.SubmitDraft(ctx, beneficiaryID, requestID, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(w, r, "submit change request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, service.Summarize(cr))
}

// HandleGet handles GET /change-requests/{requestID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.GetRequest(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, "get change request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

// HandleApprove handles POST /change-requests/{requestID}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "approve change request", h.service.Approve)
}

// HandleReject handles POST /change-requests/{requestID}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "reject change request", h.service.Reject)
}

// HandleRequestInfo handles POST /change-requests/{requestID}/request-info.
func (h *Handler) HandleRequestInfo(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "request more information", h.service.RequestMoreInfo)
}

type decision func(ctx context.Context, requestID id.ChangeRequestID, reviewerID id.UserID, comment string) (*models.ChangeRequest, error)

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, op string, fn decision) {
	ctx := r.Context()
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	cr, err := fn(ctx, requestID, requestcontext.UserID(ctx), req.Comment)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, service.Summarize(cr))
}

// HandleReviewItem handles PATCH /change-requests/{requestID}/items/{itemID}.
func (h *Handler) HandleReviewItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	itemID, err := id.ParseChangeItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid change item id"))
		return
	}
	var req ItemReviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	status, err := req.Parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	item, err := h.service.ReviewItem(ctx, requestID, itemID, status, requestcontext.UserID(ctx), req.Note)
	if err != nil {
		h.fail(w, r, "review change item", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

// HandleItemStats handles GET /change-requests/{requestID}/items/stats.
func (h *Handler) HandleItemStats(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	stats, err := h.service.GetItemStats(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, "get change item stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleSyncDependentDiffs handles POST /change-requests/{requestID}/sync-dependent-diffs.
func (h *Handler) HandleSyncDependentDiffs(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	n, err := h.service.SyncDependentDiffs(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, "sync dependent diffs", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, syncResponse{Entries: n})
}

// HandleAudit handles GET /change-requests/{requestID}/audit.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.ListAudit(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, "list audit trail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditResponse(entries))
}

// beneficiary parses the path beneficiary and enforces that beneficiary-role
// callers only reach their own record. Another record is reported as not
// found so ids cannot be enumerated.
func (h *Handler) beneficiary(w http.ResponseWriter, r *http.Request) (id.BeneficiaryID, bool) {
	ctx := r.Context()
	beneficiaryID, err := id.ParseBeneficiaryID(chi.URLParam(r, "beneficiaryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid beneficiary id"))
		return 0, false
	}
	if requestcontext.UserRole(ctx) == jwttoken.RoleBeneficiary && requestcontext.BeneficiaryID(ctx) != beneficiaryID {
		h.logger.WarnContext(ctx, "beneficiary attempted to access another record",
			"actor_id", requestcontext.UserID(ctx),
			"beneficiary_id", beneficiaryID,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "beneficiary not found"))
		return 0, false
	}
	return beneficiaryID, true
}

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (id.ChangeRequestID, bool) {
	requestID, err := id.ParseChangeRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid change request id"))
		return 0, false
	}
	return requestID, true
}

// fail writes err. The service already logged the failure; this only adds
// the HTTP correlation.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	h.logger.DebugContext(ctx, op+" failed",
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", requestcontext.UserID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
