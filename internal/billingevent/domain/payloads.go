package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	subscriptiondomain "github.com/smallbiznis/cabinet/internal/subscription/domain"
)

// ExpandableID holds the id of a field the processor sends either as a bare
// id string or as an expanded object.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = ExpandableID(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

func (e ExpandableID) String() string { return string(e) }

type PaymentIntent struct {
	ID                 string            `json:"id" validate:"required"`
	Amount             int64             `json:"amount" validate:"gte=0"`
	AmountReceived     int64             `json:"amount_received" validate:"gte=0"`
	Currency           string            `json:"currency" validate:"required"`
	Status             string            `json:"status"`
	Customer           ExpandableID      `json:"customer"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	Metadata           map[string]string `json:"metadata"`
	LastPaymentError   *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// FailureMessage returns the processor's last error text, if any.
func (p PaymentIntent) FailureMessage() string {
	if p.LastPaymentError == nil {
		return ""
	}
	return p.LastPaymentError.Message
}

// SettledAmount prefers the received amount once money moved.
func (p PaymentIntent) SettledAmount() int64 {
	if p.AmountReceived > 0 {
		return p.AmountReceived
	}
	return p.Amount
}

func (p PaymentIntent) MethodType() string {
	if len(p.PaymentMethodTypes) == 0 {
		return ""
	}
	return p.PaymentMethodTypes[0]
}

type Invoice struct {
	ID            string       `json:"id" validate:"required"`
	Customer      ExpandableID `json:"customer"`
	Status        string       `json:"status"`
	BillingReason string       `json:"billing_reason"`
	Subscription  ExpandableID `json:"subscription"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription ExpandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID resolves the recurring subscription the invoice bills, across
// the legacy top-level field and the newer parent details.
func (i Invoice) SubscriptionID() string {
	if id := strings.TrimSpace(i.Subscription.String()); id != "" {
		return id
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return strings.TrimSpace(i.Parent.SubscriptionDetails.Subscription.String())
	}
	return ""
}

type Price struct {
	ID        string       `json:"id"`
	Nickname  string       `json:"nickname"`
	LookupKey string       `json:"lookup_key"`
	Product   ExpandableID `json:"product"`
}

type SubscriptionItem struct {
	ID                 string `json:"id"`
	Price              *Price `json:"price"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
}

type Subscription struct {
	ID                 string            `json:"id" validate:"required"`
	Status             string            `json:"status" validate:"required"`
	Customer           ExpandableID      `json:"customer"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []SubscriptionItem `json:"data"`
	} `json:"items"`
}

// Period returns the billing period, read from the first item when the
// subscription object no longer carries it.
func (s Subscription) Period() (time.Time, time.Time) {
	start, end := s.CurrentPeriodStart, s.CurrentPeriodEnd
	if (start == 0 || end == 0) && len(s.Items.Data) > 0 {
		start, end = s.Items.Data[0].CurrentPeriodStart, s.Items.Data[0].CurrentPeriodEnd
	}
	return unixTime(start), unixTime(end)
}

func (s Subscription) PriceNickname() string {
	for _, item := range s.Items.Data {
		if item.Price != nil && strings.TrimSpace(item.Price.Nickname) != "" {
			return item.Price.Nickname
		}
	}
	return ""
}

// PlanRefs lists plan references in resolution order.
func (s Subscription) PlanRefs() []string {
	return []string{s.PriceNickname(), s.Metadata[MetadataPlan]}
}

func (s Subscription) CanceledAtTime() *time.Time {
	if s.CanceledAt == 0 {
		return nil
	}
	t := unixTime(s.CanceledAt)
	return &t
}

// Snapshot converts the payload into the reconciler's view.
func (s Subscription) Snapshot() subscriptiondomain.Snapshot {
	start, end := s.Period()
	return subscriptiondomain.Snapshot{
		ExternalID:         s.ID,
		Status:             s.Status,
		CustomerID:         s.Customer.String(),
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         s.CanceledAtTime(),
		PriceNickname:      s.PriceNickname(),
		Metadata:           s.Metadata,
	}
}

type CheckoutSession struct {
	ID                string            `json:"id" validate:"required"`
	Mode              string            `json:"mode" validate:"required"`
	Status            string            `json:"status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          ExpandableID      `json:"customer"`
	Subscription      ExpandableID      `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

// TenantRef returns the cabinet reference attached to the checkout.
func (c CheckoutSession) TenantRef() string {
	if ref := strings.TrimSpace(c.ClientReferenceID); ref != "" {
		return ref
	}
	return strings.TrimSpace(c.Metadata[MetadataCabinetID])
}

type SetupIntent struct {
	ID                 string            `json:"id" validate:"required"`
	Status             string            `json:"status"`
	Customer           ExpandableID      `json:"customer"`
	PaymentMethod      ExpandableID      `json:"payment_method" validate:"required"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	Metadata           map[string]string `json:"metadata"`
}

func (s SetupIntent) MethodType() string {
	if len(s.PaymentMethodTypes) == 0 {
		return ""
	}
	return s.PaymentMethodTypes[0]
}

// Metadata keys written on processor objects by the checkout flow.
const (
	MetadataCabinetID = "cabinet_id"
	MetadataInvoiceID = "invoice_id"
	MetadataPlan      = "plan"
)

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
