package authz

import (
	"strconv"
	"strings"
)

const (
	GlobalDomain          = "global"
	subjectUserPrefix     = "user"
	rolePrefix            = "role"
	objectSeparator       = "."
	subjectSeparator      = ":"
	defaultActionWildcard = "*"
)

// Request encapsulates all parameters required to evaluate a Casbin rule.
type Request struct {
	Subject string
	Domain  string
	Object  string
	Action  string
}

// NewRequest constructs a Request, defaulting an empty domain to the global one.
func NewRequest(subject, domain, object, action string) Request {
	if strings.TrimSpace(domain) == "" {
		domain = GlobalDomain
	}
	return Request{
		Subject: subject,
		Domain:  domain,
		Object:  object,
		Action:  action,
	}
}

// SubjectForUserID builds a subject identifier in the form user:{id}.
func SubjectForUserID(userID int64) string {
	if userID <= 0 {
		return subjectUserPrefix + subjectSeparator + "anonymous"
	}
	return subjectUserPrefix + subjectSeparator + strconv.FormatInt(userID, 10)
}

// SubjectForRole returns the canonical identifier for a role-based subject.
func SubjectForRole(roleSlug string) string {
	roleSlug = strings.TrimSpace(roleSlug)
	if roleSlug == "" {
		roleSlug = "unnamed"
	}
	if strings.HasPrefix(roleSlug, rolePrefix+subjectSeparator) {
		return roleSlug
	}
	return rolePrefix + subjectSeparator + strings.ToLower(roleSlug)
}

// DomainForUnit scopes a rule to one sales unit.
func DomainForUnit(unitID int64) string {
	if unitID <= 0 {
		return GlobalDomain
	}
	return "unit" + subjectSeparator + strconv.FormatInt(unitID, 10)
}

// ObjectName returns the canonical module.resource string, lowercased.
func ObjectName(module, resource string) string {
	module = strings.ToLower(strings.TrimSpace(module))
	resource = strings.ToLower(strings.TrimSpace(resource))
	if module == "" {
		module = "global"
	}
	if resource == "" {
		resource = "resource"
	}
	return module + objectSeparator + resource
}

// NormalizeAction returns a normalized action string.
func NormalizeAction(action string) string {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		return defaultActionWildcard
	}
	return action
}
