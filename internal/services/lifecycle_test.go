package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/milestonepay/backend/internal/events"
	"github.com/milestonepay/backend/internal/gateway"
	"github.com/milestonepay/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

// --- TxBeginner mock ---

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- project repo mock ---

type mockProjectRepo struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*models.Project
}

func newMockProjectRepo() *mockProjectRepo {
	return &mockProjectRepo{projects: make(map[uuid.UUID]*models.Project)}
}

func (m *mockProjectRepo) CreateTx(_ context.Context, _ pgx.Tx, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *mockProjectRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProjectRepo) UpdateTx(_ context.Context, _ pgx.Tx, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

// --- milestone repo mock ---

type mockMilestoneRepo struct {
	mu           sync.Mutex
	milestones   map[uuid.UUID]*models.Milestone
	deliverables []*models.Deliverable
}

func newMockMilestoneRepo() *mockMilestoneRepo {
	return &mockMilestoneRepo{milestones: make(map[uuid.UUID]*models.Milestone)}
}

func (m *mockMilestoneRepo) CreateTx(_ context.Context, _ pgx.Tx, ms *models.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ms
	m.milestones[ms.ID] = &cp
	return nil
}

func (m *mockMilestoneRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ms
	return &cp, nil
}

func (m *mockMilestoneRepo) ListByProjectID(_ context.Context, projectID uuid.UUID) ([]*models.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Milestone
	for _, ms := range m.milestones {
		if ms.ProjectID == projectID {
			cp := *ms
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *mockMilestoneRepo) UpdateTx(_ context.Context, _ pgx.Tx, ms *models.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ms
	m.milestones[ms.ID] = &cp
	return nil
}

func (m *mockMilestoneRepo) AddDeliverableTx(_ context.Context, _ pgx.Tx, d *models.Deliverable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.deliverables = append(m.deliverables, &cp)
	return nil
}

// --- invitation repo mock ---

type mockInvitationRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*models.ProjectInvitation
}

func newMockInvitationRepo() *mockInvitationRepo {
	return &mockInvitationRepo{items: make(map[uuid.UUID]*models.ProjectInvitation)}
}

func (m *mockInvitationRepo) CreateTx(_ context.Context, _ pgx.Tx, inv *models.ProjectInvitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	m.items[inv.ID] = &cp
	return nil
}

func (m *mockInvitationRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ProjectInvitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *mockInvitationRepo) UpdateTx(_ context.Context, _ pgx.Tx, inv *models.ProjectInvitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	m.items[inv.ID] = &cp
	return nil
}

// --- proposal repo mock ---

type mockProposalRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*models.ChangeProposal
}

func newMockProposalRepo() *mockProposalRepo {
	return &mockProposalRepo{items: make(map[uuid.UUID]*models.ChangeProposal)}
}

func (m *mockProposalRepo) CreateTx(_ context.Context, _ pgx.Tx, p *models.ChangeProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockProposalRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ChangeProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProposalRepo) GetPendingByMilestoneID(_ context.Context, milestoneID uuid.UUID) (*models.ChangeProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.MilestoneID == milestoneID && p.Status == models.ProposalStatusPending {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockProposalRepo) UpdateTx(_ context.Context, _ pgx.Tx, p *models.ChangeProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

// --- dispute repo mock (lifecycle only creates) ---

type mockDisputeCreator struct {
	mu       sync.Mutex
	disputes []*models.Dispute
}

func (m *mockDisputeCreator) CreateTx(_ context.Context, _ pgx.Tx, d *models.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.disputes = append(m.disputes, &cp)
	return nil
}

// --- auditor / notifier mocks ---

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, pgx.Tx, uuid.UUID, uuid.UUID, string, any) {}

type recordNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (n *recordNotifier) Emit(kind string, _ uuid.UUID, _ map[string]any) {
	n.mu.Lock()
	n.kinds = append(n.kinds, kind)
	n.mu.Unlock()
}

func (n *recordNotifier) has(kind string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range n.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type lifecycleFixture struct {
	svc        *Lifecycle
	projects   *mockProjectRepo
	milestones *mockMilestoneRepo
	invites    *mockInvitationRepo
	proposals  *mockProposalRepo
	disputes   *mockDisputeCreator
	escrow     *mockEscrowRepo
	txs        *mockTxRepo
	balances   *mockBalanceRepo
	events     *recordNotifier
	client     models.Actor
	freelancer models.Actor
}

func newLifecycleFixture() *lifecycleFixture {
	fx := &lifecycleFixture{
		projects:   newMockProjectRepo(),
		milestones: newMockMilestoneRepo(),
		invites:    newMockInvitationRepo(),
		proposals:  newMockProposalRepo(),
		disputes:   &mockDisputeCreator{},
		escrow:     newMockEscrowRepo(),
		txs:        &mockTxRepo{},
		balances:   newMockBalanceRepo(),
		events:     &recordNotifier{},
		client:     models.Actor{ID: uuid.New(), Role: models.RoleClient},
		freelancer: models.Actor{ID: uuid.New(), Role: models.RoleFreelancer},
	}
	ledger := testLedger(fx.escrow, fx.txs, fx.balances, gateway.NewFakeGateway())
	fx.svc = NewLifecycle(mockPool{}, fx.projects, fx.milestones, fx.invites,
		fx.proposals, fx.disputes, ledger, noopAuditor{}, fx.events, nil)
	return fx
}

// activeProject walks a project through create, invite, accept and deposit so
// the milestones are workable. Amounts are in minor units of USD.
func (fx *lifecycleFixture) activeProject(t *testing.T, amounts ...int64) (*models.Project, []*models.Milestone) {
	t.Helper()
	ctx := context.Background()

	var total int64
	in := CreateProjectInput{
		Title:  "Storefront build",
		Budget: models.Money{Currency: "USD"},
	}
	for i, a := range amounts {
		total += a
		in.Milestones = append(in.Milestones, MilestoneInput{
			Title:  "Milestone " + string(rune('A'+i)),
			Amount: a,
		})
	}
	in.Budget.Amount = total

	p, err := fx.svc.CreateProject(ctx, fx.client, in)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	inv, err := fx.svc.Invite(ctx, fx.client, p.ID, fx.freelancer.ID, "interested?")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if err := fx.svc.RespondInvitation(ctx, fx.freelancer, inv.ID, true); err != nil {
		t.Fatalf("RespondInvitation: %v", err)
	}
	if _, err := fx.svc.Deposit(ctx, fx.client, p.ID, total, "USD", "card"); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	p, err = fx.projects.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("reload project: %v", err)
	}
	ms, err := fx.milestones.ListByProjectID(ctx, p.ID)
	if err != nil {
		t.Fatalf("list milestones: %v", err)
	}
	return p, ms
}

func (fx *lifecycleFixture) milestone(t *testing.T, id uuid.UUID) *models.Milestone {
	t.Helper()
	m, err := fx.milestones.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload milestone: %v", err)
	}
	return m
}

func (fx *lifecycleFixture) project(t *testing.T, id uuid.UUID) *models.Project {
	t.Helper()
	p, err := fx.projects.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload project: %v", err)
	}
	return p
}

// ---------------------------------------------------------------------------
// Project creation
// ---------------------------------------------------------------------------

func TestCreateProject(t *testing.T) {
	fx := newLifecycleFixture()

	p, err := fx.svc.CreateProject(context.Background(), fx.client, CreateProjectInput{
		Title:  "API integration",
		Budget: models.Money{Amount: 30000, Currency: "USD"},
		Milestones: []MilestoneInput{
			{Title: "Design", Amount: 10000},
			{Title: "Build", Amount: 20000},
		},
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.Status != models.ProjectStatusDraft {
		t.Errorf("status: got %s, want draft", p.Status)
	}
	// Unset knobs fall back to platform defaults.
	if p.AutoApprovalDays != defaultAutoApprovalDays || p.MaxRevisions != defaultMaxRevisions {
		t.Errorf("defaults: got auto-approval %d, revisions %d", p.AutoApprovalDays, p.MaxRevisions)
	}
	if p.PlatformFeeBps != DefaultPlatformFeeBps || p.ProcessingFeeBps != DefaultProcessingFeeBps {
		t.Errorf("fee defaults: got %d/%d", p.PlatformFeeBps, p.ProcessingFeeBps)
	}

	ms, _ := fx.milestones.ListByProjectID(context.Background(), p.ID)
	if len(ms) != 2 {
		t.Fatalf("milestones: got %d, want 2", len(ms))
	}
	if ms[0].Order != 1 || ms[1].Order != 2 {
		t.Errorf("milestone ordering: got %d, %d", ms[0].Order, ms[1].Order)
	}
	if ms[0].Status != models.MilestoneStatusPending {
		t.Errorf("milestone status: got %s, want pending", ms[0].Status)
	}
}

func TestCreateProject_Validation(t *testing.T) {
	fx := newLifecycleFixture()
	ctx := context.Background()

	cases := []struct {
		name  string
		actor models.Actor
		in    CreateProjectInput
	}{
		{"freelancer cannot create", fx.freelancer, CreateProjectInput{
			Title:      "x",
			Budget:     models.Money{Amount: 100, Currency: "USD"},
			Milestones: []MilestoneInput{{Title: "m", Amount: 100}},
		}},
		{"no milestones", fx.client, CreateProjectInput{
			Title:  "x",
			Budget: models.Money{Amount: 100, Currency: "USD"},
		}},
		{"milestones do not sum to budget", fx.client, CreateProjectInput{
			Title:      "x",
			Budget:     models.Money{Amount: 100, Currency: "USD"},
			Milestones: []MilestoneInput{{Title: "m", Amount: 60}},
		}},
		{"non-positive milestone", fx.client, CreateProjectInput{
			Title:      "x",
			Budget:     models.Money{Amount: 100, Currency: "USD"},
			Milestones: []MilestoneInput{{Title: "m", Amount: -100}, {Title: "n", Amount: 200}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var vErr *ValidationError
			if _, err := fx.svc.CreateProject(ctx, tc.actor, tc.in); !errors.As(err, &vErr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Invitation and funding
// ---------------------------------------------------------------------------

func TestInvitationFlow(t *testing.T) {
	fx := newLifecycleFixture()
	ctx := context.Background()

	p, err := fx.svc.CreateProject(ctx, fx.client, CreateProjectInput{
		Title:      "Logo refresh",
		Budget:     models.Money{Amount: 20000, Currency: "USD"},
		Milestones: []MilestoneInput{{Title: "Concepts", Amount: 20000}},
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	// Only the owner invites.
	if _, err := fx.svc.Invite(ctx, fx.freelancer, p.ID, fx.freelancer.ID, ""); err == nil {
		t.Error("non-owner invite should fail")
	}

	inv, err := fx.svc.Invite(ctx, fx.client, p.ID, fx.freelancer.ID, "take a look")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if got := fx.project(t, p.ID).Status; got != models.ProjectStatusPendingAcceptance {
		t.Errorf("project after invite: got %s, want pending_acceptance", got)
	}

	// A second invite while one is pending is a conflict.
	var cErr *ConflictError
	if _, err := fx.svc.Invite(ctx, fx.client, p.ID, uuid.New(), ""); !errors.As(err, &cErr) {
		t.Errorf("double invite: expected ConflictError, got %v", err)
	}

	// Only the invited freelancer responds.
	if err := fx.svc.RespondInvitation(ctx, fx.client, inv.ID, true); err == nil {
		t.Error("responding as someone else should fail")
	}

	if err := fx.svc.RespondInvitation(ctx, fx.freelancer, inv.ID, true); err != nil {
		t.Fatalf("RespondInvitation: %v", err)
	}
	got := fx.project(t, p.ID)
	if got.Status != models.ProjectStatusAwaitingDeposit {
		t.Errorf("project after accept: got %s, want awaiting_deposit", got.Status)
	}
	if got.FreelancerID == nil || *got.FreelancerID != fx.freelancer.ID {
		t.Error("accept should bind the freelancer to the project")
	}

	// Responses are one-shot.
	if err := fx.svc.RespondInvitation(ctx, fx.freelancer, inv.ID, false); !errors.As(err, &cErr) {
		t.Errorf("second response: expected ConflictError, got %v", err)
	}
}

func TestInvitationDeclineReturnsToDraft(t *testing.T) {
	fx := newLifecycleFixture()
	ctx := context.Background()

	p, _ := fx.svc.CreateProject(ctx, fx.client, CreateProjectInput{
		Title:      "Copywriting",
		Budget:     models.Money{Amount: 5000, Currency: "USD"},
		Milestones: []MilestoneInput{{Title: "Draft", Amount: 5000}},
	})
	inv, _ := fx.svc.Invite(ctx, fx.client, p.ID, fx.freelancer.ID, "")
	if err := fx.svc.RespondInvitation(ctx, fx.freelancer, inv.ID, false); err != nil {
		t.Fatalf("decline: %v", err)
	}
	got := fx.project(t, p.ID)
	if got.Status != models.ProjectStatusDraft {
		t.Errorf("project after decline: got %s, want draft", got.Status)
	}
	if got.FreelancerID != nil {
		t.Error("decline must not bind a freelancer")
	}
}

func TestDepositActivatesProject(t *testing.T) {
	fx := newLifecycleFixture()
	p, _ := fx.activeProject(t, 10000, 40000)

	if p.Status != models.ProjectStatusActive {
		t.Errorf("project after deposit: got %s, want active", p.Status)
	}
	if !fx.events.has(events.ProjectActivated) {
		t.Error("expected project activated event")
	}
	acct := fx.escrow.account(p.ID)
	if acct.HeldAmount != 50000 {
		t.Errorf("escrow held: got %d, want 50000", acct.HeldAmount)
	}
}

func TestDepositMustCoverBudget(t *testing.T) {
	fx := newLifecycleFixture()
	ctx := context.Background()

	p, _ := fx.svc.CreateProject(ctx, fx.client, CreateProjectInput{
		Title:      "Data migration",
		Budget:     models.Money{Amount: 80000, Currency: "USD"},
		Milestones: []MilestoneInput{{Title: "Run", Amount: 80000}},
	})
	inv, _ := fx.svc.Invite(ctx, fx.client, p.ID, fx.freelancer.ID, "")
	if err := fx.svc.RespondInvitation(ctx, fx.freelancer, inv.ID, true); err != nil {
		t.Fatalf("accept: %v", err)
	}

	var vErr *ValidationError
	if _, err := fx.svc.Deposit(ctx, fx.client, p.ID, 40000, "USD", "card"); !errors.As(err, &vErr) {
		t.Errorf("partial deposit: expected ValidationError, got %v", err)
	}
	if _, err := fx.svc.Deposit(ctx, fx.freelancer, p.ID, 80000, "USD", "card"); !errors.As(err, &vErr) {
		t.Errorf("freelancer deposit: expected ValidationError, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Milestone work loop
// ---------------------------------------------------------------------------

func TestMilestoneHappyPath(t *testing.T) {
	fx := newLifecycleFixture()
	ctx := context.Background()
	p, ms := fx.activeProject(t, 60000, 40000)
	first, second := ms[0], ms[1]

	if err := fx.svc.StartMilestone(ctx, fx.freelancer, first.ID); err != nil {
		t.Fatalf("StartMilestone: %v", err)
	}
	if got := fx.milestone(t, first.ID).Status; got != models.MilestoneStatusInProgress {
		t.Fatalf("after start: got %s, want in_progress", got)
	}

	if err := fx.svc.SubmitMilestone(ctx, fx.freelancer, first.ID, "done", "https://files.example/v1.zip"); err != nil {
		t.Fatalf("SubmitMilestone: %v", err)
	}
	got := fx.milestone(t, first.ID)
	if got.Status != models.MilestoneStatusSubmitted || got.SubmittedAt == nil {
		t.Fatalf("after submit: status %s, submitted_at %v", got.Status, got.SubmittedAt)
	}
	if len(fx.milestones.deliverables) != 1 {
		t.Fatalf("deliverables: got %d, want 1", len(fx.milestones.deliverables))
	}

	if err := fx.svc.ApproveMilestone(ctx, fx.client, first.ID); err != nil {
		t.Fatalf("ApproveMilestone: %v", err)
	}
	if got := fx.milestone(t, first.ID).Status; got != models.MilestoneStatusApproved {
		t.Fatalf("after approve: got %s, want approved", got)
	}
	// One milestone open, project still active.
	if got := fx.project(t, p.ID).Status; got != models.ProjectStatusActive {
		t.Fatalf("project with open milestone: got %s, want active", got)
	}
	// 60000 released net of 10% + 2.9%.
	if got := fx.balances.availableOf(fx.freelancer.ID, "USD"); got != 52260 {
		t.Errorf("freelancer balance: got %d, want 52260", got)
	}

	// Approving the last milestone completes the project.
	if err := fx.svc.StartMilestone(ctx, fx.freelancer, second.ID); err != nil {
		t.Fatalf("start second: %v", err)
	}
	if err := fx.svc.SubmitMilestone(ctx, fx.freelancer, second.ID, "final", ""); err != nil {
		t.Fatalf("submit second: %v", err)
	}
	if err := fx.svc.ApproveMilestone(ctx, fx.client, second.ID); err != nil {
		t.Fatalf("approve second: %v", err)
	}
	if got := fx.project(t, p.ID).Status; got != models.ProjectStatusCompleted {
		t.Errorf("project after last approval: got %s, want completed", got)
	}
	if !fx.events.has(events.ProjectCompleted) {
		t.Error("expected project completed event")
	}

	acct := fx.escrow.account(p.ID)
	if acct.HeldAmount != 0 || acct.Status != models.EscrowStatusReleased {
		t.Errorf("escrow after completion: held %d, status %s", acct.HeldAmount, acct.Status)
	}
}

func TestMilestoneTransitionGuards(t *testing.T) {
	fx := newLifecycleFixture()
	ctx := context.Background()
	_, ms := fx.activeProject(t, 10000)
	m := ms[0]

	var cErr *ConflictError
	var vErr *ValidationError

	// Client cannot start work.
	if err := fx.svc.StartMilestone(ctx, fx.client, m.ID); !errors.As(err, &vErr) {
		t.Errorf("client start: expected ValidationError, got %v", err)
	}
	// Cannot submit before starting.
	if err := fx.svc.SubmitMilestone(ctx, fx.freelancer, m.ID, "", ""); !errors.As(err, &cErr) {
		t.Errorf("submit pending: expected ConflictError, got %v", err)
	}
	// Cannot approve unsubmitted work.
	if err := fx.svc.ApproveMilestone(ctx, fx.client, m.ID); !errors.As(err, &cErr) {
		t.Errorf("approve pending: expected ConflictError, got %v", err)
	}

	if err := fx.svc.StartMilestone(ctx, fx.freelancer, m.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Starting twice is a conflict.
	if err := fx.svc.StartMilestone(ctx, fx.freelancer, m.ID); !errors.As(err, &cErr) {
		t.Errorf("double start: expected ConflictError, got %v", err)
	}

	if err := fx.svc.SubmitMilestone(ctx, fx.freelancer, m.ID, "", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Freelancer cannot approve their own work.
	if err := fx.svc.ApproveMilestone(ctx, fx.freelancer, m.ID); !errors.As(err, &vErr) {
		t.Errorf("self approve: expected ValidationError, got %v", err)
	}
}

func TestRequestRevision(t *testing.T) {
	fx := newLifecycleFixture()
	ctx := context.Background()

	// MaxRevisions 1 so the cap is reachable quickly.
	p, err := fx.svc.CreateProject(ctx, fx.client, CreateProjectInput{
		Title:        "Landing page",
		Budget:       models.Money{Amount: 15000, Currency: "USD"},
		MaxRevisions: 1,
		Milestones:   []MilestoneInput{{Title: "Page", Amount: 15000}},
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	inv, _ := fx.svc.Invite(ctx, fx.client, p.ID, fx.freelancer.ID, "")
	if err := fx.svc.RespondInvitation(ctx, fx.freelancer, inv.ID, true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := fx.svc.Deposit(ctx, fx.client, p.ID, 15000, "USD", "card"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	ms, _ := fx.milestones.ListByProjectID(ctx, p.ID)
	m := ms[0]

	if err := fx.svc.StartMilestone(ctx, fx.freelancer, m.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := fx.svc.SubmitMilestone(ctx, fx.freelancer, m.ID, "v1", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := fx.svc.RequestRevision(ctx, fx.client, m.ID, "colors are off"); err != nil {
		t.Fatalf("RequestRevision: %v", err)
	}
	got := fx.milestone(t, m.ID)
	if got.Status != models.MilestoneStatusRevisionRequested || got.RevisionsUsed != 1 {
		t.Fatalf("after revision: status %s, used %d", got.Status, got.RevisionsUsed)
	}
	if got.SubmittedAt != nil {
		t.Error("revision should clear the auto-approval clock")
	}

	// Rework from revision_requested goes straight back into progress.
	if err := fx.svc.StartMilestone(ctx, fx.freelancer, m.ID); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := fx.svc.SubmitMilestone(ctx, fx.freelancer, m.ID, "v2", ""); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	// Cap reached: a second revision is refused.
	var cErr *ConflictError
	if err := fx.svc.RequestRevision(ctx, fx.client, m.ID, "still off"); !errors.As(err, &cErr) {
		t.Errorf("revision beyond cap: expected ConflictError, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Disputes and cancellation
// ---------------------------------------------------------------------------

func TestOpenDispute(t *testing.T) {
	fx := newLifecycleFixture()
	ctx := context.Background()
	p, ms := fx.activeProject(t, 25000)
	m := ms[0]

	if err := fx.svc.StartMilestone(ctx, fx.freelancer, m.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := fx.svc.SubmitMilestone(ctx, fx.freelancer, m.ID, "v1", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var vErr *ValidationError
	if _, err := fx.svc.OpenDispute(ctx, fx.client, m.ID, ""); !errors.As(err, &vErr) {
		t.Errorf("empty reason: expected ValidationError, got %v", err)
	}
	if _, err := fx.svc.OpenDispute(ctx, models.Actor{ID: uuid.New()}, m.ID, "nope"); !errors.As(err, &vErr) {
		t.Errorf("outsider dispute: expected ValidationError, got %v", err)
	}

	d, err := fx.svc.OpenDispute(ctx, fx.client, m.ID, "deliverable does not match the criteria")
	if err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}
	if d.Phase != models.DisputePhaseAutomatedReview || d.Status != models.DisputeStatusPending {
		t.Errorf("new dispute: phase %s, status %s", d.Phase, d.Status)
	}
	if got := fx.milestone(t, m.ID).Status; got != models.MilestoneStatusDisputed {
		t.Errorf("milestone: got %s, want disputed", got)
	}
	if got := fx.project(t, p.ID).Status; got != models.ProjectStatusDisputed {
		t.Errorf("project: got %s, want disputed", got)
	}
	if !fx.escrow.account(p.ID).Frozen {
		t.Error("opening a dispute must freeze the escrow")
	}

	// A disputed milestone cannot be approved through the normal path.
	var cErr *ConflictError
	if err := fx.svc.ApproveMilestone(ctx, fx.client, m.ID); !errors.As(err, &cErr) {
		t.Errorf("approve disputed milestone: expected ConflictError, got %v", err)
	}
}

func TestCancelProject(t *testing.T) {
	fx := newLifecycleFixture()
	ctx := context.Background()

	p, err := fx.svc.CreateProject(ctx, fx.client, CreateProjectInput{
		Title:      "Audit",
		Budget:     models.Money{Amount: 9000, Currency: "USD"},
		Milestones: []MilestoneInput{{Title: "Report", Amount: 9000}},
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := fx.svc.CancelProject(ctx, fx.client, p.ID); err != nil {
		t.Fatalf("cancel draft: %v", err)
	}
	if got := fx.project(t, p.ID).Status; got != models.ProjectStatusCancelled {
		t.Errorf("after cancel: got %s, want cancelled", got)
	}

	// Once a milestone has been started, cancellation is off the table.
	started, ms := fx.activeProject(t, 9000)
	if err := fx.svc.StartMilestone(ctx, fx.freelancer, ms[0].ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	var cErr *ConflictError
	if err := fx.svc.CancelProject(ctx, fx.client, started.ID); !errors.As(err, &cErr) {
		t.Errorf("cancel project with work started: expected ConflictError, got %v", err)
	}
}

func TestCancelProject_RefundsFundedProject(t *testing.T) {
	fx := newLifecycleFixture()
	ctx := context.Background()

	// Funded, but no milestone has left pending: the client can unwind.
	p, _ := fx.activeProject(t, 40000, 20000)
	if err := fx.svc.CancelProject(ctx, fx.client, p.ID); err != nil {
		t.Fatalf("CancelProject: %v", err)
	}

	if got := fx.project(t, p.ID).Status; got != models.ProjectStatusCancelled {
		t.Errorf("project status: got %s, want cancelled", got)
	}
	// The full deposit comes back gross; no fees on a refund.
	if got := fx.balances.availableOf(fx.client.ID, "USD"); got != 60000 {
		t.Errorf("client balance after refund: got %d, want 60000", got)
	}
	acct := fx.escrow.account(p.ID)
	if acct.HeldAmount != 0 || acct.Status != models.EscrowStatusRefunded {
		t.Errorf("escrow after refund: held %d, status %s", acct.HeldAmount, acct.Status)
	}
	requireConservation(t, acct)
	refunds := fx.txs.byType(models.TxTypeRefund)
	if len(refunds) != 1 || refunds[0].Amount != 60000 {
		t.Fatalf("refund entries: got %+v", refunds)
	}
	if !fx.events.has(events.RefundIssued) {
		t.Error("expected a refund event")
	}
	if !fx.events.has(events.ProjectCancelled) {
		t.Error("expected a cancellation event")
	}

	// Unwound is unwound: a second cancel conflicts.
	var cErr *ConflictError
	if err := fx.svc.CancelProject(ctx, fx.client, p.ID); !errors.As(err, &cErr) {
		t.Errorf("double cancel: expected ConflictError, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Auto-approval
// ---------------------------------------------------------------------------

func TestAutoApprove(t *testing.T) {
	fx := newLifecycleFixture()
	ctx := context.Background()
	p, ms := fx.activeProject(t, 30000)
	m := ms[0]

	if err := fx.svc.StartMilestone(ctx, fx.freelancer, m.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := fx.svc.SubmitMilestone(ctx, fx.freelancer, m.ID, "v1", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Inside the window: nothing happens.
	if err := fx.svc.AutoApprove(ctx, m.ID); err != nil {
		t.Fatalf("AutoApprove inside window: %v", err)
	}
	if got := fx.milestone(t, m.ID).Status; got != models.MilestoneStatusSubmitted {
		t.Fatalf("inside window: got %s, want submitted", got)
	}

	// Jump past the window.
	fx.svc.now = func() time.Time {
		return time.Now().Add(time.Duration(p.AutoApprovalDays)*24*time.Hour + time.Minute)
	}
	if err := fx.svc.AutoApprove(ctx, m.ID); err != nil {
		t.Fatalf("AutoApprove past window: %v", err)
	}
	if got := fx.milestone(t, m.ID).Status; got != models.MilestoneStatusApproved {
		t.Fatalf("past window: got %s, want approved", got)
	}

	// Re-running on the approved milestone is a no-op, as is a missing one.
	if err := fx.svc.AutoApprove(ctx, m.ID); err != nil {
		t.Errorf("AutoApprove twice: %v", err)
	}
	if err := fx.svc.AutoApprove(ctx, uuid.New()); err != nil {
		t.Errorf("AutoApprove missing milestone: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Change proposals
// ---------------------------------------------------------------------------

func TestChangeProposals(t *testing.T) {
	fx := newLifecycleFixture()
	ctx := context.Background()
	_, ms := fx.activeProject(t, 20000, 30000)
	m := ms[0]

	newAmount := int64(25000)
	prop, err := fx.svc.ProposeChange(ctx, fx.freelancer, m.ID, models.MilestoneTerms{Amount: &newAmount})
	if err != nil {
		t.Fatalf("ProposeChange: %v", err)
	}
	if prop.Original.Amount == nil || *prop.Original.Amount != 20000 {
		t.Errorf("original terms snapshot: got %v", prop.Original.Amount)
	}

	// A newer proposal supersedes the pending one.
	higher := int64(28000)
	second, err := fx.svc.ProposeChange(ctx, fx.freelancer, m.ID, models.MilestoneTerms{Amount: &higher})
	if err != nil {
		t.Fatalf("second ProposeChange: %v", err)
	}
	old, _ := fx.proposals.GetByID(ctx, prop.ID)
	if old.Status != models.ProposalStatusSuperseded {
		t.Errorf("first proposal: got %s, want superseded", old.Status)
	}

	// The proposer cannot decide their own proposal.
	var vErr *ValidationError
	if err := fx.svc.DecideProposal(ctx, fx.freelancer, second.ID, true); !errors.As(err, &vErr) {
		t.Errorf("self decision: expected ValidationError, got %v", err)
	}

	if err := fx.svc.DecideProposal(ctx, fx.client, second.ID, true); err != nil {
		t.Fatalf("DecideProposal: %v", err)
	}
	if got := fx.milestone(t, m.ID).Amount.Amount; got != 28000 {
		t.Errorf("milestone amount after approval: got %d, want 28000", got)
	}

	// Decided proposals are immutable.
	var cErr *ConflictError
	if err := fx.svc.DecideProposal(ctx, fx.client, second.ID, false); !errors.As(err, &cErr) {
		t.Errorf("re-decide: expected ConflictError, got %v", err)
	}

	// An empty proposal changes nothing and is rejected up front.
	if _, err := fx.svc.ProposeChange(ctx, fx.client, m.ID, models.MilestoneTerms{}); !errors.As(err, &vErr) {
		t.Errorf("empty proposal: expected ValidationError, got %v", err)
	}
}
