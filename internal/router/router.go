package router

import (
	"net/http"
	"strings"

	"github.com/milestonepay/backend/internal/auth"
	"github.com/milestonepay/backend/internal/dashboard"
	"github.com/milestonepay/backend/internal/handlers"
	"github.com/milestonepay/backend/internal/registry"
)

// Middleware is a standard wrapping middleware.
type Middleware func(http.Handler) http.Handler

// Deps carries everything the router mounts.
type Deps struct {
	Auth       *auth.Handler
	Projects   *handlers.ProjectHandler
	Milestones *handlers.MilestoneHandler
	Payments   *handlers.PaymentHandler
	Disputes   *handlers.DisputeHandler
	Registry   *registry.Handler
	Dashboard  *dashboard.Handler

	// AuthMW authenticates bearer tokens; DepositMW pre-validates deposit
	// bodies and runs after AuthMW on the deposit route only. OperatorMW
	// gates the dispute decision routes to operators.
	AuthMW     Middleware
	DepositMW  Middleware
	OperatorMW Middleware
}

// New returns an http.Handler that serves the API under /api/v1.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc(base+"/auth/register", methodPOST(d.Auth.Register))
	mux.HandleFunc(base+"/auth/login", methodPOST(d.Auth.Login))

	authed := func(h http.HandlerFunc) http.Handler { return d.AuthMW(h) }

	mux.Handle(base+"/projects", authed(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			d.Projects.CreateProject(w, r)
		case http.MethodGet:
			d.Projects.ListProjects(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	mux.Handle(base+"/projects/", authed(func(w http.ResponseWriter, r *http.Request) {
		sub := handlers.ProjectSubroute(r)
		switch {
		case sub == "" && r.Method == http.MethodGet:
			d.Projects.GetProject(w, r)
		case sub == "invite" && r.Method == http.MethodPost:
			d.Projects.Invite(w, r)
		case sub == "deposit" && r.Method == http.MethodPost:
			d.DepositMW(http.HandlerFunc(d.Payments.Deposit)).ServeHTTP(w, r)
		case sub == "cancel" && r.Method == http.MethodPost:
			d.Projects.Cancel(w, r)
		case sub == "activity" && r.Method == http.MethodGet:
			d.Projects.Activity(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle(base+"/invitations/", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/respond") {
			d.Projects.RespondInvitation(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}))

	mux.Handle(base+"/milestones/", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		switch milestoneSubroute(r.URL.Path) {
		case "start":
			d.Milestones.Start(w, r)
		case "submit":
			d.Milestones.Submit(w, r)
		case "approve":
			d.Milestones.Approve(w, r)
		case "revision":
			d.Milestones.RequestRevision(w, r)
		case "dispute":
			d.Milestones.OpenDispute(w, r)
		case "proposals":
			d.Milestones.ProposeChange(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle(base+"/proposals/", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/decide") {
			d.Milestones.DecideProposal(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}))

	mux.Handle(base+"/disputes/", authed(func(w http.ResponseWriter, r *http.Request) {
		sub := disputeSubroute(r.URL.Path)
		switch {
		case sub == "" && r.Method == http.MethodGet:
			d.Disputes.Get(w, r)
		case sub == "messages" && r.Method == http.MethodPost:
			d.Disputes.AddMessage(w, r)
		case sub == "evidence" && r.Method == http.MethodPost:
			d.Disputes.AddEvidence(w, r)
		case sub == "mediation" && r.Method == http.MethodPost:
			d.Disputes.MoveToMediation(w, r)
		case sub == "arbitrator" && r.Method == http.MethodPost:
			d.OperatorMW(http.HandlerFunc(d.Disputes.AssignArbitrator)).ServeHTTP(w, r)
		case sub == "escalate" && r.Method == http.MethodPost:
			d.Disputes.Escalate(w, r)
		case sub == "resolve" && r.Method == http.MethodPost:
			d.OperatorMW(http.HandlerFunc(d.Disputes.Resolve)).ServeHTTP(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle(base+"/payouts", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		d.Payments.RequestPayout(w, r)
	}))
	mux.Handle(base+"/payouts/estimate", authed(methodPOST(d.Payments.EstimatePayout)))
	mux.Handle(base+"/payouts/", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel") {
			d.Payments.CancelPayout(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}))

	mux.Handle(base+"/payout-methods", authed(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			d.Registry.AddMethod(w, r)
		case http.MethodGet:
			d.Registry.ListMethods(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	mux.Handle(base+"/payout-methods/", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			d.Registry.RemoveMethod(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}))
	mux.Handle(base+"/webhooks", authed(methodPOST(d.Registry.AddWebhook)))

	mux.HandleFunc(base+"/account/me", methodGET(d.Dashboard.GetMe))
	mux.HandleFunc(base+"/account/balances", methodGET(d.Dashboard.ListBalances))
	mux.HandleFunc(base+"/account/transactions", methodGET(d.Dashboard.ListTransactions))
	mux.HandleFunc(base+"/account/invitations", methodGET(d.Dashboard.ListInvitations))
	mux.HandleFunc(base+"/account/payouts", methodGET(d.Dashboard.ListPayouts))

	return mux
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func milestoneSubroute(path string) string {
	return subroute(path, "/api/v1/milestones/")
}

func disputeSubroute(path string) string {
	return subroute(path, "/api/v1/disputes/")
}

func subroute(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
