package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermHealthView       Permission = "health.view"
	PermEventsIngest     Permission = "events.ingest"
	PermIncidentsView    Permission = "incidents.view"
	PermCasesView        Permission = "cases.view"
	PermCasesTransition  Permission = "cases.transition"
	PermCasesAssign      Permission = "cases.assign"
	PermAlertsClaim      Permission = "alerts.claim"
	PermAlertsSnooze     Permission = "alerts.snooze"
	PermOutcomesRecord   Permission = "outcomes.record"
	PermOutcomesReview   Permission = "outcomes.review"
	PermAccountsManage   Permission = "accounts.manage"
	PermAuditView        Permission = "audit.view"
)

const (
	RoleOps      = "ops"
	RoleOpsAdmin = "ops_admin"
)

const policyModel = `
[request_definition]
r = sub, perm

[policy_definition]
p = sub, perm

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.perm == p.perm
`

// opsPerms is everything a plain operator may do. Assignment and account
// management stay admin-only.
var opsPerms = []Permission{
	PermHealthView,
	PermEventsIngest,
	PermIncidentsView,
	PermCasesView,
	PermCasesTransition,
	PermAlertsClaim,
	PermAlertsSnooze,
	PermOutcomesRecord,
	PermOutcomesReview,
}

var adminPerms = []Permission{
	PermCasesAssign,
	PermAccountsManage,
	PermAuditView,
}

// Policy answers "may any of these roles do perm". Backed by an in-memory
// casbin enforcer with the role hierarchy baked in.
type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	for _, perm := range opsPerms {
		if _, err := e.AddPolicy(RoleOps, string(perm)); err != nil {
			return nil, err
		}
	}
	for _, perm := range adminPerms {
		if _, err := e.AddPolicy(RoleOpsAdmin, string(perm)); err != nil {
			return nil, err
		}
	}
	// ops_admin can do everything ops can.
	if _, err := e.AddGroupingPolicy(RoleOpsAdmin, RoleOps); err != nil {
		return nil, err
	}
	return &Policy{enforcer: e}, nil
}

func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil || p.enforcer == nil {
		return false
	}
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(role, string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}

// Roles lists the assignable role names.
func Roles() []string {
	return []string{RoleOps, RoleOpsAdmin}
}

func ValidRole(name string) bool {
	return name == RoleOps || name == RoleOpsAdmin
}
