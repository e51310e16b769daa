package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/milestonepay/backend/internal/events"
	"github.com/milestonepay/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Auditor appends write-only activity records.
type Auditor interface {
	Record(ctx context.Context, tx pgx.Tx, projectID, actorID uuid.UUID, action string, details any)
}

// Notifier emits fire-and-forget domain events.
type Notifier interface {
	Emit(kind string, projectID uuid.UUID, payload map[string]any)
}

type LifecycleProjectRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, p *models.Project) error
}

type LifecycleMilestoneRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, m *models.Milestone) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.Milestone, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, m *models.Milestone) error
	AddDeliverableTx(ctx context.Context, tx pgx.Tx, d *models.Deliverable) error
}

type LifecycleInvitationRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, inv *models.ProjectInvitation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ProjectInvitation, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, inv *models.ProjectInvitation) error
}

type LifecycleProposalRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.ChangeProposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeProposal, error)
	GetPendingByMilestoneID(ctx context.Context, milestoneID uuid.UUID) (*models.ChangeProposal, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, p *models.ChangeProposal) error
}

type LifecycleDisputeRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
}

// LifecycleLedger is the slice of the escrow ledger the lifecycle drives.
type LifecycleLedger interface {
	Deposit(ctx context.Context, tx pgx.Tx, project *models.Project, actor models.Actor, amount int64, currency, method string) (*models.Transaction, error)
	Release(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, milestoneID *uuid.UUID, freelancerID uuid.UUID, amount int64) (*models.Transaction, error)
	Refund(ctx context.Context, tx pgx.Tx, projectID, clientID uuid.UUID, amount int64, reason string) (*models.Transaction, error)
	Freeze(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) error
}

// Lifecycle runs the project and milestone state machines. Milestone
// transitions request ledger operations; a disputed milestone spawns a
// dispute and freezes the escrow.
type Lifecycle struct {
	DB          TxBeginner
	Projects    LifecycleProjectRepo
	Milestones  LifecycleMilestoneRepo
	Invitations LifecycleInvitationRepo
	Proposals   LifecycleProposalRepo
	Disputes    LifecycleDisputeRepo
	Ledger      LifecycleLedger
	Audit       Auditor
	Events      Notifier
	Logger      *slog.Logger

	now func() time.Time
}

func NewLifecycle(db TxBeginner, projects LifecycleProjectRepo, milestones LifecycleMilestoneRepo,
	invitations LifecycleInvitationRepo, proposals LifecycleProposalRepo, disputes LifecycleDisputeRepo,
	ledger LifecycleLedger, auditor Auditor, notifier Notifier, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		DB:          db,
		Projects:    projects,
		Milestones:  milestones,
		Invitations: invitations,
		Proposals:   proposals,
		Disputes:    disputes,
		Ledger:      ledger,
		Audit:       auditor,
		Events:      notifier,
		Logger:      logger,
		now:         time.Now,
	}
}

// --- project creation ---

type MilestoneInput struct {
	Title              string
	AcceptanceCriteria string
	Amount             int64
	Deadline           *time.Time
}

type CreateProjectInput struct {
	Title            string
	Description      string
	Budget           models.Money
	Deadline         *time.Time
	AutoApprovalDays int
	MaxRevisions     int
	PlatformFeeBps   int64
	ProcessingFeeBps int64
	Milestones       []MilestoneInput
}

const (
	defaultAutoApprovalDays = 7
	defaultMaxRevisions     = 2
)

// CreateProject creates a draft project with its milestones. Milestone
// amounts must reconcile with the budget at creation time.
func (s *Lifecycle) CreateProject(ctx context.Context, actor models.Actor, in CreateProjectInput) (*models.Project, error) {
	if actor.Role != models.RoleClient {
		return nil, validationErr("actor", "only clients create projects")
	}
	if in.Title == "" {
		return nil, validationErr("title", "must not be empty")
	}
	if in.Budget.Amount <= 0 {
		return nil, validationErr("budget", "must be positive")
	}
	if len(in.Budget.Currency) != 3 {
		return nil, validationErr("currency", "must be a 3-letter ISO code")
	}
	if len(in.Milestones) == 0 {
		return nil, validationErr("milestones", "at least one milestone is required")
	}
	var sum int64
	for _, m := range in.Milestones {
		if m.Amount <= 0 {
			return nil, validationErr("milestones", "milestone amounts must be positive")
		}
		sum += m.Amount
	}
	if sum != in.Budget.Amount {
		return nil, validationErr("milestones", "milestone amounts must sum to the project budget")
	}

	if in.AutoApprovalDays <= 0 {
		in.AutoApprovalDays = defaultAutoApprovalDays
	}
	if in.MaxRevisions <= 0 {
		in.MaxRevisions = defaultMaxRevisions
	}
	if in.PlatformFeeBps <= 0 {
		in.PlatformFeeBps = DefaultPlatformFeeBps
	}
	if in.ProcessingFeeBps <= 0 {
		in.ProcessingFeeBps = DefaultProcessingFeeBps
	}

	now := s.now()
	p := &models.Project{
		ID:               uuid.New(),
		ClientID:         actor.ID,
		Title:            in.Title,
		Description:      in.Description,
		Budget:           in.Budget,
		Deadline:         in.Deadline,
		Status:           models.ProjectStatusDraft,
		PlatformFeeBps:   in.PlatformFeeBps,
		ProcessingFeeBps: in.ProcessingFeeBps,
		AutoApprovalDays: in.AutoApprovalDays,
		MaxRevisions:     in.MaxRevisions,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.Projects.CreateTx(ctx, tx, p); err != nil {
		return nil, err
	}
	for i, in := range in.Milestones {
		m := &models.Milestone{
			ID:                 uuid.New(),
			ProjectID:          p.ID,
			Order:              i + 1,
			Title:              in.Title,
			AcceptanceCriteria: in.AcceptanceCriteria,
			Amount:             models.Money{Amount: in.Amount, Currency: p.Budget.Currency},
			Deadline:           in.Deadline,
			Status:             models.MilestoneStatusPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.Milestones.CreateTx(ctx, tx, m); err != nil {
			return nil, err
		}
	}
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityProjectCreated,
		map[string]any{"title": p.Title, "budget": p.Budget})
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// --- invitation flow ---

// Invite sends the project to a freelancer and moves it to pending
// acceptance.
func (s *Lifecycle) Invite(ctx context.Context, actor models.Actor, projectID, freelancerID uuid.UUID, message string) (*models.ProjectInvitation, error) {
	p, err := s.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.ClientID != actor.ID {
		return nil, validationErr("actor", "only the project owner invites")
	}
	if p.Status != models.ProjectStatusDraft {
		return nil, conflictErr("project", p.Status, "invite")
	}

	now := s.now()
	inv := &models.ProjectInvitation{
		ID:           uuid.New(),
		ProjectID:    p.ID,
		FreelancerID: freelancerID,
		Message:      message,
		Status:       models.InvitationStatusPending,
		CreatedAt:    now,
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.Invitations.CreateTx(ctx, tx, inv); err != nil {
		return nil, err
	}
	p.Status = models.ProjectStatusPendingAcceptance
	if err := s.Projects.UpdateTx(ctx, tx, p); err != nil {
		return nil, err
	}
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityInvitationSent,
		map[string]any{"freelancer_id": freelancerID})
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return inv, nil
}

// RespondInvitation records an accept or decline by the invited freelancer.
// Accepting binds the freelancer to the project and opens it for deposit.
func (s *Lifecycle) RespondInvitation(ctx context.Context, actor models.Actor, invitationID uuid.UUID, accept bool) error {
	inv, err := s.Invitations.GetByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.FreelancerID != actor.ID {
		return validationErr("actor", "only the invited freelancer responds")
	}
	if inv.Status != models.InvitationStatusPending {
		return conflictErr("invitation", inv.Status, "respond")
	}
	p, err := s.Projects.GetByID(ctx, inv.ProjectID)
	if err != nil {
		return err
	}
	if p.Status != models.ProjectStatusPendingAcceptance {
		return conflictErr("project", p.Status, "invitation response")
	}

	now := s.now()
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	inv.RespondedAt = &now
	if accept {
		inv.Status = models.InvitationStatusAccepted
		p.FreelancerID = &inv.FreelancerID
		p.Status = models.ProjectStatusAwaitingDeposit
	} else {
		inv.Status = models.InvitationStatusDeclined
		p.Status = models.ProjectStatusDraft
	}
	if err := s.Invitations.UpdateTx(ctx, tx, inv); err != nil {
		return err
	}
	if err := s.Projects.UpdateTx(ctx, tx, p); err != nil {
		return err
	}
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityInvitationAnswered,
		map[string]any{"accepted": accept})
	return tx.Commit(ctx)
}

// --- funding ---

// Deposit funds the escrow for the full project budget and activates the
// project. A project cannot reach active without escrow held covering at
// least the first milestone; requiring the full budget satisfies that.
func (s *Lifecycle) Deposit(ctx context.Context, actor models.Actor, projectID uuid.UUID,
	amount int64, currency, method string) (*models.Transaction, error) {
	p, err := s.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.ClientID != actor.ID {
		return nil, validationErr("actor", "only the project owner deposits")
	}
	if p.Status != models.ProjectStatusAwaitingDeposit {
		return nil, conflictErr("project", p.Status, "deposit")
	}
	if amount != p.Budget.Amount {
		return nil, validationErr("amount", "deposit must cover the full project budget")
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	entry, err := s.Ledger.Deposit(ctx, tx, p, actor, amount, currency, method)
	if err != nil {
		var pe *PaymentError
		if errors.As(err, &pe) {
			// The failed transaction is the durable record of the attempt.
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return nil, commitErr
			}
		}
		return entry, err
	}

	p.Status = models.ProjectStatusActive
	if err := s.Projects.UpdateTx(ctx, tx, p); err != nil {
		return nil, err
	}
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityDepositMade,
		map[string]any{"amount": amount, "currency": currency})
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Events.Emit(events.ProjectActivated, p.ID, map[string]any{"amount": amount})
	return entry, nil
}

// --- milestone transitions ---

// StartMilestone moves a pending or revision-requested milestone into
// progress. Freelancer action.
func (s *Lifecycle) StartMilestone(ctx context.Context, actor models.Actor, milestoneID uuid.UUID) error {
	m, p, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		return err
	}
	if p.FreelancerID == nil || *p.FreelancerID != actor.ID {
		return validationErr("actor", "only the assigned freelancer starts work")
	}
	if p.Status != models.ProjectStatusActive {
		return conflictErr("project", p.Status, "start milestone")
	}
	if m.Status != models.MilestoneStatusPending && m.Status != models.MilestoneStatusRevisionRequested {
		return conflictErr("milestone", m.Status, "start")
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	m.Status = models.MilestoneStatusInProgress
	if err := s.Milestones.UpdateTx(ctx, tx, m); err != nil {
		return err
	}
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityMilestoneStarted,
		map[string]any{"milestone_id": m.ID})
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.Events.Emit(events.MilestoneStarted, p.ID, map[string]any{"milestone_id": m.ID.String()})
	return nil
}

// SubmitMilestone records a deliverable and marks the milestone submitted,
// starting the auto-approval clock.
func (s *Lifecycle) SubmitMilestone(ctx context.Context, actor models.Actor, milestoneID uuid.UUID, note, fileURL string) error {
	m, p, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		return err
	}
	if p.FreelancerID == nil || *p.FreelancerID != actor.ID {
		return validationErr("actor", "only the assigned freelancer submits")
	}
	if m.Status != models.MilestoneStatusInProgress {
		return conflictErr("milestone", m.Status, "submit")
	}

	now := s.now()
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	m.Status = models.MilestoneStatusSubmitted
	m.SubmittedAt = &now
	if err := s.Milestones.UpdateTx(ctx, tx, m); err != nil {
		return err
	}
	d := &models.Deliverable{
		ID:          uuid.New(),
		MilestoneID: m.ID,
		SubmittedBy: actor.ID,
		Note:        note,
		FileURL:     fileURL,
		CreatedAt:   now,
	}
	if err := s.Milestones.AddDeliverableTx(ctx, tx, d); err != nil {
		return err
	}
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityMilestoneSubmitted,
		map[string]any{"milestone_id": m.ID})
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.Events.Emit(events.MilestoneSubmitted, p.ID, map[string]any{"milestone_id": m.ID.String()})
	return nil
}

// ApproveMilestone accepts submitted work and releases the milestone amount
// from escrow. Client action; the system actor uses the same path for
// auto-approval.
func (s *Lifecycle) ApproveMilestone(ctx context.Context, actor models.Actor, milestoneID uuid.UUID) error {
	m, p, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		return err
	}
	if actor.ID != p.ClientID && actor.ID != models.SystemActorID {
		return validationErr("actor", "only the project owner approves")
	}
	if m.Status != models.MilestoneStatusSubmitted {
		return conflictErr("milestone", m.Status, "approve")
	}
	return s.approve(ctx, actor, p, m)
}

func (s *Lifecycle) approve(ctx context.Context, actor models.Actor, p *models.Project, m *models.Milestone) error {
	if p.FreelancerID == nil {
		return conflictErr("project", p.Status, "approve without freelancer")
	}

	now := s.now()
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	entry, err := s.Ledger.Release(ctx, tx, p.ID, &m.ID, *p.FreelancerID, m.Amount.Amount)
	if err != nil {
		return err
	}
	m.Status = models.MilestoneStatusApproved
	m.ApprovedAt = &now
	if err := s.Milestones.UpdateTx(ctx, tx, m); err != nil {
		return err
	}

	completed, err := s.allOthersApproved(ctx, p.ID, m.ID)
	if err != nil {
		return err
	}
	if completed {
		p.Status = models.ProjectStatusCompleted
		if err := s.Projects.UpdateTx(ctx, tx, p); err != nil {
			return err
		}
		s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityProjectCompleted, nil)
	}
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityMilestoneApproved,
		map[string]any{"milestone_id": m.ID})
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityPaymentReleased,
		map[string]any{"milestone_id": m.ID, "amount": entry.Amount})
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.Events.Emit(events.MilestoneApproved, p.ID, map[string]any{"milestone_id": m.ID.String()})
	s.Events.Emit(events.PaymentReleased, p.ID, map[string]any{
		"milestone_id": m.ID.String(), "amount": entry.Amount,
	})
	if completed {
		s.Events.Emit(events.ProjectCompleted, p.ID, nil)
	}
	return nil
}

// allOthersApproved reports whether every milestone except the one being
// approved (already mutated in memory) has reached approved.
func (s *Lifecycle) allOthersApproved(ctx context.Context, projectID, approvingID uuid.UUID) (bool, error) {
	all, err := s.Milestones.ListByProjectID(ctx, projectID)
	if err != nil {
		return false, err
	}
	for _, other := range all {
		if other.ID == approvingID {
			continue
		}
		if other.Status != models.MilestoneStatusApproved {
			return false, nil
		}
	}
	return true, nil
}

// RequestRevision pushes submitted work back for rework, bounded by the
// project's revision cap.
func (s *Lifecycle) RequestRevision(ctx context.Context, actor models.Actor, milestoneID uuid.UUID, reason string) error {
	m, p, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		return err
	}
	if p.ClientID != actor.ID {
		return validationErr("actor", "only the project owner requests revisions")
	}
	if m.Status != models.MilestoneStatusSubmitted {
		return conflictErr("milestone", m.Status, "request revision")
	}
	if m.RevisionsUsed >= p.MaxRevisions {
		return conflictErr("milestone", m.Status, "request revision beyond the cap")
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	m.Status = models.MilestoneStatusRevisionRequested
	m.RevisionsUsed++
	m.SubmittedAt = nil
	if err := s.Milestones.UpdateTx(ctx, tx, m); err != nil {
		return err
	}
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityRevisionRequested,
		map[string]any{"milestone_id": m.ID, "reason": reason})
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.Events.Emit(events.RevisionRequested, p.ID, map[string]any{"milestone_id": m.ID.String()})
	return nil
}

// OpenDispute contests a submitted or in-progress milestone: the escrow is
// frozen, a dispute record is created in automated review, and the project
// moves to disputed.
func (s *Lifecycle) OpenDispute(ctx context.Context, actor models.Actor, milestoneID uuid.UUID, reason string) (*models.Dispute, error) {
	m, p, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if p.FreelancerID == nil {
		return nil, conflictErr("project", p.Status, "dispute")
	}
	if actor.ID != p.ClientID && actor.ID != *p.FreelancerID {
		return nil, validationErr("actor", "only project parties open disputes")
	}
	if m.Status != models.MilestoneStatusSubmitted && m.Status != models.MilestoneStatusInProgress {
		return nil, conflictErr("milestone", m.Status, "dispute")
	}
	if reason == "" {
		return nil, validationErr("reason", "must not be empty")
	}

	now := s.now()
	d := &models.Dispute{
		ID:           uuid.New(),
		MilestoneID:  m.ID,
		ProjectID:    p.ID,
		ClientID:     p.ClientID,
		FreelancerID: *p.FreelancerID,
		RaisedBy:     actor.ID,
		Reason:       reason,
		Status:       models.DisputeStatusPending,
		Phase:        models.DisputePhaseAutomatedReview,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.Ledger.Freeze(ctx, tx, p.ID); err != nil {
		return nil, err
	}
	m.Status = models.MilestoneStatusDisputed
	if err := s.Milestones.UpdateTx(ctx, tx, m); err != nil {
		return nil, err
	}
	p.Status = models.ProjectStatusDisputed
	if err := s.Projects.UpdateTx(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := s.Disputes.CreateTx(ctx, tx, d); err != nil {
		return nil, err
	}
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityDisputeOpened,
		map[string]any{"milestone_id": m.ID, "dispute_id": d.ID, "reason": reason})
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Events.Emit(events.DisputeRaised, p.ID, map[string]any{"dispute_id": d.ID.String()})
	return d, nil
}

// --- cancellation ---

// CancelProject is allowed before escrow is funded, and on a funded project
// as long as no milestone has left pending: the held escrow refunds to the
// client gross, then the project cancels. Once work has started, cancellation
// goes through dispute resolution instead.
func (s *Lifecycle) CancelProject(ctx context.Context, actor models.Actor, projectID uuid.UUID) error {
	p, err := s.Projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if p.ClientID != actor.ID {
		return validationErr("actor", "only the project owner cancels")
	}
	refund := false
	switch p.Status {
	case models.ProjectStatusDraft, models.ProjectStatusPendingAcceptance, models.ProjectStatusAwaitingDeposit:
	case models.ProjectStatusActive:
		milestones, err := s.Milestones.ListByProjectID(ctx, p.ID)
		if err != nil {
			return err
		}
		for _, m := range milestones {
			if m.Status != models.MilestoneStatusPending {
				return conflictErr("project", p.Status, "cancel after work has started")
			}
		}
		refund = true
	default:
		return conflictErr("project", p.Status, "cancel")
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if refund {
		entry, err := s.Ledger.Refund(ctx, tx, p.ID, p.ClientID, p.Budget.Amount, "project cancelled before work began")
		if err != nil {
			return err
		}
		s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityRefundIssued, map[string]any{"amount": entry.Amount})
	}
	p.Status = models.ProjectStatusCancelled
	if err := s.Projects.UpdateTx(ctx, tx, p); err != nil {
		return err
	}
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityProjectCancelled, nil)
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	if refund {
		s.Events.Emit(events.RefundIssued, p.ID, map[string]any{"amount": p.Budget.Amount})
	}
	s.Events.Emit(events.ProjectCancelled, p.ID, nil)
	return nil
}

// --- auto-approval ---

// AutoApprove approves a milestone that has sat in submitted past the
// project's auto-approval window. It is idempotent: re-running it on an
// already-approved milestone, or racing a manual action, is a no-op.
func (s *Lifecycle) AutoApprove(ctx context.Context, milestoneID uuid.UUID) error {
	m, p, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if m.Status != models.MilestoneStatusSubmitted || m.SubmittedAt == nil {
		return nil
	}
	due := m.SubmittedAt.Add(time.Duration(p.AutoApprovalDays) * 24 * time.Hour)
	if s.now().Before(due) {
		return nil
	}
	s.Logger.Info("auto-approving milestone", "milestone_id", m.ID, "project_id", p.ID)
	return s.approve(ctx, models.SystemActor(), p, m)
}

// --- change proposals ---

// ProposeChange opens a two-phase amendment of milestone terms. A new
// proposal supersedes any still-pending one on the same milestone.
func (s *Lifecycle) ProposeChange(ctx context.Context, actor models.Actor, milestoneID uuid.UUID, proposed models.MilestoneTerms) (*models.ChangeProposal, error) {
	m, p, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if p.FreelancerID == nil {
		return nil, conflictErr("project", p.Status, "propose change")
	}
	if actor.ID != p.ClientID && actor.ID != *p.FreelancerID {
		return nil, validationErr("actor", "only project parties propose changes")
	}
	if m.Status == models.MilestoneStatusApproved || m.Status == models.MilestoneStatusDisputed {
		return nil, conflictErr("milestone", m.Status, "propose change")
	}
	if proposed.Amount == nil && proposed.Deadline == nil && proposed.AcceptanceCriteria == nil {
		return nil, validationErr("proposal", "must change at least one term")
	}
	if proposed.Amount != nil && *proposed.Amount <= 0 {
		return nil, validationErr("amount", "must be positive")
	}

	now := s.now()
	amount := m.Amount.Amount
	criteria := m.AcceptanceCriteria
	prop := &models.ChangeProposal{
		ID:          uuid.New(),
		MilestoneID: m.ID,
		ProposedBy:  actor.ID,
		Original: models.MilestoneTerms{
			Amount:             &amount,
			Deadline:           m.Deadline,
			AcceptanceCriteria: &criteria,
		},
		Proposed:  proposed,
		Status:    models.ProposalStatusPending,
		CreatedAt: now,
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	prior, err := s.Proposals.GetPendingByMilestoneID(ctx, m.ID)
	switch {
	case err == nil:
		prior.Status = models.ProposalStatusSuperseded
		prior.DecidedAt = &now
		if err := s.Proposals.UpdateTx(ctx, tx, prior); err != nil {
			return nil, err
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if err := s.Proposals.CreateTx(ctx, tx, prop); err != nil {
		return nil, err
	}
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityProposalSubmitted,
		map[string]any{"milestone_id": m.ID, "proposal_id": prop.ID})
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return prop, nil
}

// DecideProposal is the counterparty's explicit approve or reject. Approval
// applies the proposed terms to the milestone; rejection is a no-op on it.
func (s *Lifecycle) DecideProposal(ctx context.Context, actor models.Actor, proposalID uuid.UUID, approve bool) error {
	prop, err := s.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return err
	}
	if prop.Status != models.ProposalStatusPending {
		return conflictErr("proposal", prop.Status, "decide")
	}
	m, p, err := s.loadMilestone(ctx, prop.MilestoneID)
	if err != nil {
		return err
	}
	if p.FreelancerID == nil {
		return conflictErr("project", p.Status, "decide proposal")
	}
	if actor.ID == prop.ProposedBy {
		return validationErr("actor", "the proposer cannot decide their own proposal")
	}
	if actor.ID != p.ClientID && actor.ID != *p.FreelancerID {
		return validationErr("actor", "only project parties decide proposals")
	}

	now := s.now()
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	prop.DecidedAt = &now
	if approve {
		prop.Status = models.ProposalStatusApproved
		if prop.Proposed.Amount != nil {
			m.Amount.Amount = *prop.Proposed.Amount
		}
		if prop.Proposed.Deadline != nil {
			m.Deadline = prop.Proposed.Deadline
		}
		if prop.Proposed.AcceptanceCriteria != nil {
			m.AcceptanceCriteria = *prop.Proposed.AcceptanceCriteria
		}
		if err := s.Milestones.UpdateTx(ctx, tx, m); err != nil {
			return err
		}
	} else {
		prop.Status = models.ProposalStatusRejected
	}
	if err := s.Proposals.UpdateTx(ctx, tx, prop); err != nil {
		return err
	}
	s.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityProposalDecided,
		map[string]any{"proposal_id": prop.ID, "approved": approve})
	return tx.Commit(ctx)
}

// --- helpers ---

func (s *Lifecycle) loadMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Project, error) {
	m, err := s.Milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.Projects.GetByID(ctx, m.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return m, p, nil
}
