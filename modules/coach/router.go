package coach

import (
	"github.com/go-chi/chi/v5"

	coachsvc "github.com/wodworks/coachkit/svc/coach"
)

// RouterOptions configures which collaborators the module mounts. The
// subscription service is optional; without it billing routes return 404.
type RouterOptions struct {
	Coach        *coachsvc.Service
	Credits      CreditReader
	Trials       TrialManager
	Subscription SubscriptionService
}

// Router mounts the coaching API:
//
//	POST /actions/{action}            perform a metered action
//	GET  /actions/{action}/preview    advisory entitlement check
//	GET  /credits/balance
//	GET  /credits/history
//	POST /trials/{planID}
//	GET  /trials/{planID}
//	POST /billing/webhook             billing provider callback (unauthenticated)
func Router(opts RouterOptions) chi.Router {
	h := &handlers{
		coach:   opts.Coach,
		credits: opts.Credits,
		trials:  opts.Trials,
		subs:    opts.Subscription,
	}

	r := chi.NewRouter()

	r.Route("/actions/{action}", func(actions chi.Router) {
		actions.Post("/", requireUser(h.performAction))
		actions.Get("/preview", requireUser(h.previewAction))
	})

	r.Route("/credits", func(credits chi.Router) {
		credits.Get("/balance", requireUser(h.creditBalance))
		credits.Get("/history", requireUser(h.creditHistory))
	})

	r.Route("/trials/{planID}", func(trials chi.Router) {
		trials.Post("/", requireUser(h.startTrial))
		trials.Get("/", requireUser(h.trialStatus))
	})

	if opts.Subscription != nil {
		// Webhooks authenticate by signature, not session.
		r.Post("/billing/webhook", h.billingWebhook)
	}

	return r
}

// AdminRouter mounts the back-office surface:
//
//	GET  /stats             aggregate ledger report
//	POST /credits/grant     manual grant with audit actor
//	POST /credits/refund    compensate a deduction
//
// Operator authentication is the internal gateway's job: mount this on an
// internal path or listener, never the public API.
func AdminRouter(admin CreditAdmin) chi.Router {
	h := &handlers{admin: admin}

	r := chi.NewRouter()
	r.Get("/stats", h.adminStats)
	r.Post("/credits/grant", h.adminGrant)
	r.Post("/credits/refund", h.adminRefund)
	return r
}
