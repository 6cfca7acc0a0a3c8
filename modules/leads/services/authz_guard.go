package services

import (
	"context"
	"sync/atomic"

	"github.com/iota-uz/leadrouter/pkg/authz"
)

const (
	AssignmentsAuthzObject  = "leads.assignments"
	DistributionAuthzObject = "leads.distribution"
	LeadsAuthzObject        = "leads.leads"
	leadsAuthzDomain        = authz.GlobalDomain
)

// Authorizer is satisfied by *authz.Service.
type Authorizer interface {
	Authorize(ctx context.Context, req authz.Request) error
}

var leadsAuthorizer atomic.Pointer[Authorizer]

// UseAuthorizer installs the policy engine consulted by the leads services.
// Without one every request is allowed.
func UseAuthorizer(a Authorizer) {
	if a == nil {
		leadsAuthorizer.Store(nil)
		return
	}
	leadsAuthorizer.Store(&a)
}

var authorizeLeadsFn = defaultAuthorizeLeads

func authorizeLeads(ctx context.Context, actorID int64, object, action string) error {
	return authorizeLeadsFn(ctx, actorID, object, action)
}

// defaultAuthorizeLeads lets system calls (actorID == 0) through.
func defaultAuthorizeLeads(ctx context.Context, actorID int64, object, action string) error {
	if actorID <= 0 {
		return nil
	}
	a := leadsAuthorizer.Load()
	if a == nil {
		return nil
	}
	req := authz.NewRequest(
		authz.SubjectForUserID(actorID),
		leadsAuthzDomain,
		object,
		authz.NormalizeAction(action),
	)
	return (*a).Authorize(ctx, req)
}
