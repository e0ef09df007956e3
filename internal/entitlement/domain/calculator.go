// Package domain derives a cabinet's access rights from its billing rows.
package domain

import (
	"math"
	"time"

	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	plandomain "github.com/smallbiznis/cabinet/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/cabinet/internal/subscription/domain"
)

type Status string

const (
	StatusTrialing Status = "TRIALING"
	StatusActive   Status = "ACTIVE"
	StatusExpired  Status = "EXPIRED"
)

// TrialPlanName is reported while the cabinet runs on its trial window.
const TrialPlanName = "trial"

// Entitlements is the point-in-time access view of one cabinet.
type Entitlements struct {
	Status           Status     `json:"status"`
	IsTrialActive    bool       `json:"is_trial_active"`
	IsExpired        bool       `json:"is_expired"`
	IsPastDue        bool       `json:"is_past_due"`
	MaxPatients      int        `json:"max_patients"`
	DaysLeft         int        `json:"days_left"`
	PlanName         string     `json:"plan_name,omitempty"`
	Features         []string   `json:"features"`
	TrialEndDate     *time.Time `json:"trial_end_date,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
}

// Unlimited reports whether the patient quota has no ceiling.
func (e Entitlements) Unlimited() bool {
	return e.MaxPatients == cabinetdomain.UnlimitedPatients
}

// CanCreate reports whether one more patient fits next to existing ones.
func (e Entitlements) CanCreate(existing int64) bool {
	if e.Unlimited() {
		return true
	}
	return existing < int64(e.MaxPatients)
}

// Compute is pure: the same inputs always give the same output. sub and plan
// may be nil when the cabinet never subscribed.
func Compute(cabinet *cabinetdomain.Cabinet, sub *subscriptiondomain.Subscription, plan *plandomain.Plan, now time.Time) Entitlements {
	out := Entitlements{
		Status:    StatusExpired,
		IsExpired: true,
		Features:  []string{},
	}
	if cabinet == nil {
		return out
	}
	out.TrialEndDate = cabinet.TrialEndDate
	if !cabinet.IsActive {
		return out
	}

	if sub != nil && plan != nil {
		out.CurrentPeriodEnd = sub.CurrentPeriodEnd
		switch sub.Status {
		case subscriptiondomain.StatusPastDue:
			// Soft fail: access continues while the processor retries the charge.
			return paid(out, plan, sub, now, true)
		case subscriptiondomain.StatusActive:
			if withinPeriod(sub, now) {
				return paid(out, plan, sub, now, false)
			}
		case subscriptiondomain.StatusTrialing:
			if withinPeriod(sub, now) {
				out = paid(out, plan, sub, now, false)
				out.Status = StatusTrialing
				out.IsTrialActive = true
				return out
			}
		}
	}

	if cabinet.IsTrialActive && cabinet.TrialEndDate != nil && now.Before(*cabinet.TrialEndDate) {
		out.Status = StatusTrialing
		out.IsTrialActive = true
		out.IsExpired = false
		out.MaxPatients = cabinet.MaxPatients
		out.PlanName = TrialPlanName
		out.DaysLeft = daysLeft(*cabinet.TrialEndDate, now)
		return out
	}

	return out
}

func paid(out Entitlements, plan *plandomain.Plan, sub *subscriptiondomain.Subscription, now time.Time, pastDue bool) Entitlements {
	out.Status = StatusActive
	out.IsExpired = false
	out.IsPastDue = pastDue
	out.MaxPatients = plan.MaxPatients
	out.PlanName = plan.Name
	if len(plan.Features) > 0 {
		out.Features = append([]string(nil), plan.Features...)
	}
	if sub.CurrentPeriodEnd != nil {
		out.DaysLeft = daysLeft(*sub.CurrentPeriodEnd, now)
	}
	return out
}

func withinPeriod(sub *subscriptiondomain.Subscription, now time.Time) bool {
	if sub.CurrentPeriodStart != nil && now.Before(*sub.CurrentPeriodStart) {
		return false
	}
	if sub.CurrentPeriodEnd != nil && now.After(*sub.CurrentPeriodEnd) {
		return false
	}
	return true
}

func daysLeft(boundary, now time.Time) int {
	remaining := boundary.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}
