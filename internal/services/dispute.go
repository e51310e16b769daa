package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/milestonepay/backend/internal/events"
	"github.com/milestonepay/backend/internal/models"
)

type DisputeRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
	AddMessageTx(ctx context.Context, tx pgx.Tx, m *models.DisputeMessage) error
	AddEvidenceTx(ctx context.Context, tx pgx.Tx, e *models.Evidence) error
	CreateResolutionTx(ctx context.Context, tx pgx.Tx, r *models.DisputeResolution) error
	CountOpenByProjectID(ctx context.Context, projectID uuid.UUID) (int, error)
}

// DisputeLedger is the slice of the escrow ledger dispute resolution writes
// back into.
type DisputeLedger interface {
	SettleDispute(ctx context.Context, tx pgx.Tx, d *models.Dispute, milestoneAmount, clientAmount, freelancerAmount int64) error
	Unfreeze(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) error
}

// EvidenceValidator checks structured evidence metadata before it is appended.
type EvidenceValidator interface {
	ValidateEvidence(kind string, metadata json.RawMessage) error
}

// DisputeEngine manages evidence, phase transitions, and the final monetary
// resolution of a contested milestone.
type DisputeEngine struct {
	DB         TxBeginner
	Disputes   DisputeRepo
	Milestones LifecycleMilestoneRepo
	Projects   LifecycleProjectRepo
	Ledger     DisputeLedger
	Validator  EvidenceValidator
	Audit      Auditor
	Events     Notifier
	Logger     *slog.Logger

	now func() time.Time
}

func NewDisputeEngine(db TxBeginner, disputes DisputeRepo, milestones LifecycleMilestoneRepo,
	projects LifecycleProjectRepo, ledger DisputeLedger, validator EvidenceValidator,
	auditor Auditor, notifier Notifier, logger *slog.Logger) *DisputeEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &DisputeEngine{
		DB:         db,
		Disputes:   disputes,
		Milestones: milestones,
		Projects:   projects,
		Ledger:     ledger,
		Validator:  validator,
		Audit:      auditor,
		Events:     notifier,
		Logger:     logger,
		now:        time.Now,
	}
}

func (e *DisputeEngine) party(d *models.Dispute, actor models.Actor) bool {
	return actor.ID == d.ClientID || actor.ID == d.FreelancerID
}

// AddMessage appends to the communication log. Allowed in any open phase.
func (e *DisputeEngine) AddMessage(ctx context.Context, actor models.Actor, disputeID uuid.UUID, body string) (*models.DisputeMessage, error) {
	d, err := e.Disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.Open() {
		return nil, conflictErr("dispute", d.Status, "add message")
	}
	if !e.party(d, actor) && actor.Role != models.RoleOperator {
		return nil, validationErr("actor", "only dispute parties and operators post messages")
	}
	if body == "" {
		return nil, validationErr("body", "must not be empty")
	}

	msg := &models.DisputeMessage{
		ID:        uuid.New(),
		DisputeID: d.ID,
		AuthorID:  actor.ID,
		Body:      body,
		CreatedAt: e.now(),
	}
	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	if err := e.Disputes.AddMessageTx(ctx, tx, msg); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

// AddEvidence appends to the evidence list. Metadata is validated against the
// per-kind schema; free-form attachments pass through as opaque blobs.
func (e *DisputeEngine) AddEvidence(ctx context.Context, actor models.Actor, disputeID uuid.UUID,
	kind string, metadata json.RawMessage) (*models.Evidence, error) {
	d, err := e.Disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.Open() {
		return nil, conflictErr("dispute", d.Status, "add evidence")
	}
	if !e.party(d, actor) {
		return nil, validationErr("actor", "only dispute parties submit evidence")
	}
	if err := e.Validator.ValidateEvidence(kind, metadata); err != nil {
		return nil, err
	}

	ev := &models.Evidence{
		ID:          uuid.New(),
		DisputeID:   d.ID,
		SubmittedBy: actor.ID,
		Kind:        kind,
		Metadata:    metadata,
		CreatedAt:   e.now(),
	}
	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	if err := e.Disputes.AddEvidenceTx(ctx, tx, ev); err != nil {
		return nil, err
	}
	// The first evidence kicks off automated review.
	if d.Status == models.DisputeStatusPending && d.Phase == models.DisputePhaseAutomatedReview {
		d.Status = models.DisputeStatusInReview
		d.UpdatedAt = e.now()
		if err := e.Disputes.UpdateTx(ctx, tx, d); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ev, nil
}

// MoveToMediation advances automated review into mediation.
func (e *DisputeEngine) MoveToMediation(ctx context.Context, actor models.Actor, disputeID uuid.UUID) error {
	d, err := e.Disputes.GetByID(ctx, disputeID)
	if err != nil {
		return err
	}
	if d.Phase != models.DisputePhaseAutomatedReview {
		return conflictErr("dispute", d.Phase, "move to mediation")
	}
	if d.Status != models.DisputeStatusPending && d.Status != models.DisputeStatusInReview {
		return conflictErr("dispute", d.Status, "move to mediation")
	}
	if !e.party(d, actor) && actor.Role != models.RoleOperator {
		return validationErr("actor", "only dispute parties and operators advance the phase")
	}

	d.Phase = models.DisputePhaseMediation
	d.Status = models.DisputeStatusMediation
	d.UpdatedAt = e.now()
	return e.update(ctx, d)
}

// AssignArbitrator moves a dispute that mediation failed to settle into
// binding arbitration. Operator action.
func (e *DisputeEngine) AssignArbitrator(ctx context.Context, actor models.Actor, disputeID, arbitratorID uuid.UUID) error {
	if actor.Role != models.RoleOperator {
		return validationErr("actor", "only operators assign arbitrators")
	}
	d, err := e.Disputes.GetByID(ctx, disputeID)
	if err != nil {
		return err
	}
	if d.Phase != models.DisputePhaseMediation {
		return conflictErr("dispute", d.Phase, "assign arbitrator")
	}
	if d.Status != models.DisputeStatusMediation {
		return conflictErr("dispute", d.Status, "assign arbitrator")
	}

	d.Phase = models.DisputePhaseArbitration
	d.Status = models.DisputeStatusArbitration
	d.ArbitratorID = &arbitratorID
	d.UpdatedAt = e.now()
	return e.update(ctx, d)
}

// Escalate hands the dispute to the human-operator queue. Available from
// mediation or arbitration on timeout or explicit request.
func (e *DisputeEngine) Escalate(ctx context.Context, actor models.Actor, disputeID uuid.UUID) error {
	d, err := e.Disputes.GetByID(ctx, disputeID)
	if err != nil {
		return err
	}
	if d.Phase != models.DisputePhaseMediation && d.Phase != models.DisputePhaseArbitration {
		return conflictErr("dispute", d.Phase, "escalate")
	}
	if !d.Open() {
		return conflictErr("dispute", d.Status, "escalate")
	}
	if !e.party(d, actor) && actor.Role != models.RoleOperator {
		return validationErr("actor", "only dispute parties and operators escalate")
	}

	d.Status = models.DisputeStatusEscalated
	d.UpdatedAt = e.now()
	return e.update(ctx, d)
}

// Resolve closes the dispute with a monetary decision. The split must equal
// the disputed milestone amount exactly; a mismatch is rejected, never
// silently corrected. revision_required reopens the milestone without
// touching escrow; every other decision settles through the ledger, both
// legs atomically.
func (e *DisputeEngine) Resolve(ctx context.Context, actor models.Actor, disputeID uuid.UUID,
	decision string, clientAmount, freelancerAmount int64, notes string) (*models.DisputeResolution, error) {
	if actor.Role != models.RoleOperator {
		return nil, validationErr("actor", "only operators resolve disputes")
	}
	d, err := e.Disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	// Escalated disputes are exactly the ones waiting on an operator decision.
	if d.Status == models.DisputeStatusResolved {
		return nil, conflictErr("dispute", d.Status, "resolve")
	}

	m, err := e.Milestones.GetByID(ctx, d.MilestoneID)
	if err != nil {
		return nil, err
	}
	p, err := e.Projects.GetByID(ctx, d.ProjectID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	res := &models.DisputeResolution{
		ID:               uuid.New(),
		DisputeID:        d.ID,
		Decision:         decision,
		ClientAmount:     clientAmount,
		FreelancerAmount: freelancerAmount,
		Notes:            notes,
		DecidedBy:        actor.ID,
		CreatedAt:        now,
	}

	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	switch decision {
	case models.DecisionRevisionRequired:
		if clientAmount != 0 || freelancerAmount != 0 {
			return nil, validationErr("amounts", "a revision decision moves no money")
		}
		if err := e.Ledger.Unfreeze(ctx, tx, d.ProjectID); err != nil {
			return nil, err
		}
		m.Status = models.MilestoneStatusInProgress
	case models.DecisionClientFavor, models.DecisionFreelancerFavor,
		models.DecisionPartialSplit, models.DecisionCaseClosed:
		if err := e.Ledger.SettleDispute(ctx, tx, d, m.Amount.Amount, clientAmount, freelancerAmount); err != nil {
			return nil, err
		}
		m.Status = models.MilestoneStatusApproved
		m.ApprovedAt = &now
	default:
		return nil, validationErr("decision", "unknown decision")
	}

	if err := e.Milestones.UpdateTx(ctx, tx, m); err != nil {
		return nil, err
	}

	d.Status = models.DisputeStatusResolved
	d.Resolution = res
	d.ResolvedAt = &now
	d.UpdatedAt = now
	if err := e.Disputes.UpdateTx(ctx, tx, d); err != nil {
		return nil, err
	}
	if err := e.Disputes.CreateResolutionTx(ctx, tx, res); err != nil {
		return nil, err
	}

	// The project leaves disputed once its last open dispute closes; if the
	// settlement also finished the last milestone, it completes outright.
	open, err := e.Disputes.CountOpenByProjectID(ctx, d.ProjectID)
	if err != nil {
		return nil, err
	}
	if open <= 1 && p.Status == models.ProjectStatusDisputed {
		p.Status = models.ProjectStatusActive
		if m.Status == models.MilestoneStatusApproved {
			all, err := e.Milestones.ListByProjectID(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			done := true
			for _, other := range all {
				if other.ID != m.ID && other.Status != models.MilestoneStatusApproved {
					done = false
					break
				}
			}
			if done {
				p.Status = models.ProjectStatusCompleted
			}
		}
		if err := e.Projects.UpdateTx(ctx, tx, p); err != nil {
			return nil, err
		}
	}

	e.Audit.Record(ctx, tx, p.ID, actor.ID, models.ActivityDisputeResolved,
		map[string]any{"dispute_id": d.ID, "decision": decision,
			"client_amount": clientAmount, "freelancer_amount": freelancerAmount})
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	e.Events.Emit(events.DisputeResolved, p.ID, map[string]any{
		"dispute_id": d.ID.String(), "decision": decision,
	})
	return res, nil
}

func (e *DisputeEngine) update(ctx context.Context, d *models.Dispute) error {
	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := e.Disputes.UpdateTx(ctx, tx, d); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
