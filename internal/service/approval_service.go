package service

import (
	"context"

	"lendery/internal/domain"
	"lendery/internal/events"
	"lendery/internal/metrics"
	"lendery/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ApprovalService gates claims behind a manual decision when tenant policy
// asks for it. A decision never executes the underlying operation; it only
// authorizes the requester to retry it.
type ApprovalService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	policies domain.PolicyProvider
	logger   *zerolog.Logger
}

func NewApprovalService(repo domain.Repository, eventBus domain.EventPublisher, policies domain.PolicyProvider, logger *zerolog.Logger) *ApprovalService {
	return &ApprovalService{
		repo:     repo,
		eventBus: eventBus,
		policies: policies,
		logger:   logger,
	}
}

// Required reports whether the tenant demands approval before claims.
func (s *ApprovalService) Required(orgID int64) bool {
	return s.policies.PolicyFor(orgID).RequireApproval
}

// Submit files a pending request and returns its opaque reference.
func (s *ApprovalService) Submit(ctx context.Context, req *models.ApprovalRequest) (string, error) {
	if req.Reference == "" {
		req.Reference = uuid.NewString()
	}
	req.Status = models.ApprovalPending

	if err := s.repo.CreateApprovalRequest(ctx, req); err != nil {
		metrics.IncOp("approval_submit", "failed")
		return "", err
	}
	metrics.IncOp("approval_submit", "ok")

	s.logger.Info().
		Str("reference", req.Reference).
		Int64("user_id", req.UserID).
		Int64("item_id", req.ItemID).
		Str("type", req.Type).
		Msg("approval request submitted")

	return req.Reference, nil
}

func (s *ApprovalService) Approve(ctx context.Context, orgID int64, reference string, approverID int64) error {
	return s.decide(ctx, orgID, reference, models.ApprovalApproved, approverID)
}

func (s *ApprovalService) Reject(ctx context.Context, orgID int64, reference string, approverID int64) error {
	return s.decide(ctx, orgID, reference, models.ApprovalRejected, approverID)
}

// Cancel withdraws a pending request; the requester needs no approver.
func (s *ApprovalService) Cancel(ctx context.Context, orgID int64, reference string) error {
	return s.decide(ctx, orgID, reference, models.ApprovalCancelled, 0)
}

func (s *ApprovalService) Pending(ctx context.Context, orgID int64) ([]*models.ApprovalRequest, error) {
	return s.repo.ListPendingApprovals(ctx, orgID)
}

func (s *ApprovalService) decide(ctx context.Context, orgID int64, reference, status string, approverID int64) error {
	if err := s.repo.DecideApprovalRequest(ctx, orgID, reference, status, approverID); err != nil {
		metrics.IncOp("approval_decide", "failed")
		return err
	}
	metrics.IncOp("approval_decide", "ok")

	req, err := s.repo.GetApprovalRequest(ctx, orgID, reference)
	if err != nil {
		return err
	}

	payload := events.ApprovalEventPayload{
		Reference:  reference,
		OrgID:      orgID,
		UserID:     req.UserID,
		Status:     status,
		ApproverID: approverID,
	}
	if err := s.eventBus.PublishJSON(events.EventApprovalDecided, payload); err != nil {
		s.logger.Error().Err(err).Str("reference", reference).Msg("failed to publish event")
	}

	s.logger.Info().
		Str("reference", reference).
		Str("status", status).
		Int64("approver_id", approverID).
		Msg("approval request decided")

	return nil
}
