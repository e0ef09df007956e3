package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	authdomain "github.com/smallbiznis/cabinet/internal/auth/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPatient       = "patient"
	ObjectSubscription  = "subscription"
	ObjectCabinet       = "cabinet"
	ObjectPlan          = "plan"
	ObjectPaymentMethod = "payment_method"
)

const (
	ActionPatientView   = "patient.view"
	ActionPatientCreate = "patient.create"
	ActionPatientDelete = "patient.delete"

	ActionSubscriptionView = "subscription.view"

	ActionCabinetView   = "cabinet.view"
	ActionCabinetCreate = "cabinet.create"
	ActionCabinetUpdate = "cabinet.update"

	ActionPlanView = "plan.view"

	ActionPaymentMethodView = "payment_method.view"
)

// platformDomain is where super admins act when no cabinet is targeted.
const platformDomain = "platform"

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the embedded RBAC model with policies stored through the
// gorm adapter, then seeds the built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, subject Subject, object string, action string) error {
	if subject.UserID == 0 {
		return ErrInvalidActor
	}
	role := strings.ToLower(strings.TrimSpace(subject.Role))
	if !authdomain.ValidRole(role) {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	domain := platformDomain
	if subject.CabinetID != 0 {
		domain = fmt.Sprintf("cabinet:%s", subject.CabinetID)
	} else if role != authdomain.RoleSuperAdmin {
		return ErrInvalidTenant
	}

	actor := fmt.Sprintf("user:%s", subject.UserID)
	if err := s.ensureGrouping(actor, "role:"+role, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("actor", actor),
			zap.String("domain", domain),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role per actor and domain, so a role change
// on the user row takes effect on the next request.
func (s *ServiceImpl) ensureGrouping(actor string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, actor, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(actor, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(actor, roleName, domain)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:owner", ObjectPatient, ActionPatientView},
		{"role:owner", ObjectPatient, ActionPatientCreate},
		{"role:owner", ObjectPatient, ActionPatientDelete},
		{"role:owner", ObjectSubscription, ActionSubscriptionView},
		{"role:owner", ObjectCabinet, ActionCabinetView},
		{"role:owner", ObjectPlan, ActionPlanView},
		{"role:owner", ObjectPaymentMethod, ActionPaymentMethodView},

		{"role:practitioner", ObjectPatient, ActionPatientView},
		{"role:practitioner", ObjectPatient, ActionPatientCreate},
		{"role:practitioner", ObjectPatient, ActionPatientDelete},
		{"role:practitioner", ObjectSubscription, ActionSubscriptionView},
		{"role:practitioner", ObjectPlan, ActionPlanView},

		// Front desk: can register patients but not remove them.
		{"role:assistant", ObjectPatient, ActionPatientView},
		{"role:assistant", ObjectPatient, ActionPatientCreate},
		{"role:assistant", ObjectSubscription, ActionSubscriptionView},

		{"role:super_admin", "*", "*"},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
