package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/leadrouter/modules/leads/services"
	"github.com/iota-uz/leadrouter/pkg/application"
	"github.com/iota-uz/leadrouter/pkg/composables"
	"github.com/iota-uz/leadrouter/pkg/webhooks"
)

// LeadsWebhookController accepts intake deliveries from channel gateways.
// Requests carry no user, so intake runs as the system actor.
type LeadsWebhookController struct {
	assignments leadAssigner
	verifier    webhooks.SignatureVerifier
	protector   webhooks.ReplayProtector
	prefix      string
}

func NewLeadsWebhookController(
	app application.Application,
	verifier webhooks.SignatureVerifier,
	protector webhooks.ReplayProtector,
) application.Controller {
	return &LeadsWebhookController{
		assignments: app.Service(services.AssignmentService{}).(*services.AssignmentService),
		verifier:    verifier,
		protector:   protector,
		prefix:      "/webhooks/leads",
	}
}

func (c *LeadsWebhookController) Key() string {
	return c.prefix
}

func (c *LeadsWebhookController) Register(r *mux.Router) {
	hooks := webhooks.Bind(r, c.prefix, c.verifier, c.protector)
	hooks.HandleFunc("/intake", c.Intake).Methods(http.MethodPost)
}

func (c *LeadsWebhookController) Intake(w http.ResponseWriter, r *http.Request) {
	handleIntake(w, r, c.assignments, composables.UseRequestID(r.Context()))
}
