package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mppchs/internal/changerequest/handler/mocks"
	"mppchs/internal/changerequest/models"
	"mppchs/internal/changerequest/service"
	jwttoken "mppchs/internal/jwt_token"
	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
	"mppchs/pkg/platform/audit"
	"mppchs/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(s.service, logger).Register(r)
	s.router = r
}

var (
	sunita   = testutil.Caller{UserID: 7, Role: jwttoken.RoleBeneficiary, BeneficiaryID: 1}
	reviewer = testutil.Caller{UserID: 90, Role: jwttoken.RoleReviewer}
)

func (s *HandlerSuite) do(c testutil.Caller, method, path, body string) *httptest.ResponseRecorder {
	return testutil.Do(s.router, testutil.As(testutil.NewJSONRequest(s.T(), method, path, body), c))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	return testutil.Decode[T](t, rec)
}

func pendingRequest() *models.ChangeRequest {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.ChangeRequest{
		ID:            11,
		BeneficiaryID: 1,
		ReferenceNo:   "CR-1-1",
		SubmissionNo:  1,
		RevisionNo:    1,
		Status:        models.StatusPending,
		After:         models.BeneficiarySnapshot{FullName: "Sunita Devi", City: "Indore"},
		RequestedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *HandlerSuite) TestRoleGating() {
	s.Run("beneficiary cannot reach reviewer routes", func() {
		rec := s.do(sunita, http.MethodPost, "/change-requests/11/approve", "")
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("reviewer cannot save a draft", func() {
		rec := s.do(reviewer, http.MethodPut, "/beneficiaries/1/change-requests/draft", `{"after":{}}`)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("missing role is forbidden", func() {
		rec := s.do(testutil.Caller{UserID: 7}, http.MethodGet, "/beneficiaries/1/change-requests", "")
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *HandlerSuite) TestBeneficiaryOwnership() {
	s.Run("another beneficiary's record is not found", func() {
		rec := s.do(sunita, http.MethodGet, "/beneficiaries/2/change-requests", "")
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("reviewer may read any beneficiary", func() {
		s.service.EXPECT().ListForBeneficiary(gomock.Any(), id.BeneficiaryID(2)).Return([]service.RequestSummary{}, nil)
		rec := s.do(reviewer, http.MethodGet, "/beneficiaries/2/change-requests", "")
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("malformed beneficiary id", func() {
		rec := s.do(sunita, http.MethodGet, "/beneficiaries/abc/change-requests", "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestSaveDraft() {
	s.Run("passes the caller and payload through", func() {
		s.service.EXPECT().
			SaveDraft(gomock.Any(), id.BeneficiaryID(1), id.UserID(7), gomock.Any()).
			DoAndReturn(func(_ any, _ id.BeneficiaryID, _ id.UserID, req service.DraftRequest) (*models.ChangeRequest, error) {
				s.Equal("Indore", req.After.City)
				s.True(req.UndertakingAccepted)
				cr := pendingRequest()
				cr.Status = models.StatusDraft
				return cr, nil
			})

		rec := s.do(sunita, http.MethodPut, "/beneficiaries/1/change-requests/draft",
			`{"after":{"full_name":"Sunita Devi","city":"Indore"},"undertaking_accepted":true}`)
		s.Require().Equal(http.StatusOK, rec.Code)

		body := decode[map[string]any](s.T(), rec)
		s.Equal("draft", body["status"])
		s.NotContains(body, "after")
		s.NotContains(body, "before")
	})

	s.Run("unknown fields are rejected", func() {
		rec := s.do(sunita, http.MethodPut, "/beneficiaries/1/change-requests/draft", `{"after":{},"extra":1}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("validation errors map to 422", func() {
		s.service.EXPECT().SaveDraft(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeValidation, "no changes"))
		rec := s.do(sunita, http.MethodPut, "/beneficiaries/1/change-requests/draft", `{"after":{}}`)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		body := decode[map[string]string](s.T(), rec)
		s.Equal("no changes", body["error_description"])
	})
}

func (s *HandlerSuite) TestSubmit() {
	s.service.EXPECT().
		SubmitDraft(gomock.Any(), id.BeneficiaryID(1), id.ChangeRequestID(11), id.UserID(7)).
		Return(pendingRequest(), nil)

	rec := s.do(sunita, http.MethodPost, "/beneficiaries/1/change-requests/11/submit", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("pending", decode[map[string]any](s.T(), rec)["status"])
}

func (s *HandlerSuite) TestGetActive() {
	s.Run("none open", func() {
		s.service.EXPECT().GetActiveRequest(gomock.Any(), id.BeneficiaryID(1)).Return(nil, nil)
		rec := s.do(sunita, http.MethodGet, "/beneficiaries/1/change-requests/active", "")
		s.Require().Equal(http.StatusOK, rec.Code)
		body := decode[map[string]any](s.T(), rec)
		s.Contains(body, "change_request")
		s.Nil(body["change_request"])
	})

	s.Run("open request", func() {
		s.service.EXPECT().GetActiveRequest(gomock.Any(), id.BeneficiaryID(1)).Return(pendingRequest(), nil)
		rec := s.do(sunita, http.MethodGet, "/beneficiaries/1/change-requests/active", "")
		s.Require().Equal(http.StatusOK, rec.Code)
		body := decode[activeResponse](s.T(), rec)
		s.Require().NotNil(body.ChangeRequest)
		s.Equal(id.ChangeRequestID(11), body.ChangeRequest.ID)
	})
}

func (s *HandlerSuite) TestDecisions() {
	s.Run("approve with a comment", func() {
		cr := pendingRequest()
		cr.Status = models.StatusApproved
		s.service.EXPECT().Approve(gomock.Any(), id.ChangeRequestID(11), id.UserID(90), "looks right").Return(cr, nil)
		rec := s.do(reviewer, http.MethodPost, "/change-requests/11/approve", `{"comment":"  looks right "}`)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal("approved", decode[map[string]any](s.T(), rec)["status"])
	})

	s.Run("approve without a body", func() {
		s.service.EXPECT().Approve(gomock.Any(), id.ChangeRequestID(11), id.UserID(90), "").Return(pendingRequest(), nil)
		rec := s.do(reviewer, http.MethodPost, "/change-requests/11/approve", "")
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("apply failure hides the cause", func() {
		s.service.EXPECT().Approve(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeApplyFailed, "failed to apply change request"))
		rec := s.do(reviewer, http.MethodPost, "/change-requests/11/approve", "")
		testutil.AssertError(s.T(), rec, http.StatusInternalServerError, string(dErrors.CodeApplyFailed))
		s.NotContains(decode[map[string]string](s.T(), rec), "error_description")
	})

	s.Run("reject of a closed request conflicts", func() {
		s.service.EXPECT().Reject(gomock.Any(), id.ChangeRequestID(11), id.UserID(90), "duplicate").
			Return(nil, dErrors.New(dErrors.CodeInvalidState, "change request is not pending"))
		rec := s.do(reviewer, http.MethodPost, "/change-requests/11/reject", `{"comment":"duplicate"}`)
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("request more information", func() {
		cr := pendingRequest()
		cr.Status = models.StatusNeedsInfo
		s.service.EXPECT().RequestMoreInfo(gomock.Any(), id.ChangeRequestID(11), id.UserID(90), "upload proof").Return(cr, nil)
		rec := s.do(reviewer, http.MethodPost, "/change-requests/11/request-info", `{"comment":"upload proof"}`)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal("needs_info", decode[map[string]any](s.T(), rec)["status"])
	})

	s.Run("overlong comment", func() {
		rec := s.do(reviewer, http.MethodPost, "/change-requests/11/reject",
			`{"comment":"`+strings.Repeat("x", maxNoteLength+1)+`"}`)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("unknown request", func() {
		s.service.EXPECT().Approve(gomock.Any(), id.ChangeRequestID(404), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "change request not found"))
		rec := s.do(reviewer, http.MethodPost, "/change-requests/404/approve", "")
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestReviewItem() {
	s.Run("records the decision", func() {
		s.service.EXPECT().
			ReviewItem(gomock.Any(), id.ChangeRequestID(11), id.ChangeItemID(3), models.ItemRejected, id.UserID(90), "wrong city").
			Return(&models.ChangeItem{ID: 3, ChangeRequestID: 11, Status: models.ItemRejected}, nil)
		rec := s.do(reviewer, http.MethodPatch, "/change-requests/11/items/3", `{"status":"Rejected","note":"wrong city"}`)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal("rejected", decode[map[string]any](s.T(), rec)["status"])
	})

	s.Run("invalid status", func() {
		rec := s.do(reviewer, http.MethodPatch, "/change-requests/11/items/3", `{"status":"maybe"}`)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("invalid item id", func() {
		rec := s.do(reviewer, http.MethodPatch, "/change-requests/11/items/x", `{"status":"approved"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestReviewerReads() {
	s.Run("detail", func() {
		s.service.EXPECT().GetRequest(gomock.Any(), id.ChangeRequestID(11)).Return(&service.Detail{
			Request:         service.Summarize(pendingRequest()),
			DependentSource: service.SourceLog,
		}, nil)
		rec := s.do(reviewer, http.MethodGet, "/change-requests/11", "")
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(service.SourceLog, decode[service.Detail](s.T(), rec).DependentSource)
	})

	s.Run("stats", func() {
		s.service.EXPECT().GetItemStats(gomock.Any(), id.ChangeRequestID(11)).
			Return(models.ItemStats{Total: 2, Pending: 1, Approved: 1}, nil)
		rec := s.do(reviewer, http.MethodGet, "/change-requests/11/items/stats", "")
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(models.ItemStats{Total: 2, Pending: 1, Approved: 1}, decode[models.ItemStats](s.T(), rec))
	})

	s.Run("sync", func() {
		s.service.EXPECT().SyncDependentDiffs(gomock.Any(), id.ChangeRequestID(11)).Return(2, nil)
		rec := s.do(reviewer, http.MethodPost, "/change-requests/11/sync-dependent-diffs", "")
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(2, decode[syncResponse](s.T(), rec).Entries)
	})

	s.Run("audit", func() {
		at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		s.service.EXPECT().ListAudit(gomock.Any(), id.ChangeRequestID(11)).Return([]audit.Event{
			audit.NewEvent(11, audit.ActionSubmitted, 7, "", at),
		}, nil)
		rec := s.do(reviewer, http.MethodGet, "/change-requests/11/audit", "")
		s.Require().Equal(http.StatusOK, rec.Code)
		body := decode[auditResponse](s.T(), rec)
		s.Require().Len(body.Entries, 1)
		s.Equal(audit.ActionSubmitted, body.Entries[0].Action)
		s.Equal(id.UserID(7), body.Entries[0].ActorID)
	})
}

func (s *HandlerSuite) TestBeneficiaryDetail() {
	s.service.EXPECT().GetRequestForBeneficiary(gomock.Any(), id.BeneficiaryID(1), id.ChangeRequestID(11)).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "change request not found"))
	rec := s.do(sunita, http.MethodGet, "/beneficiaries/1/change-requests/11", "")
	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}
