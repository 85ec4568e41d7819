// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/pointsledger/pointsledger/internal/ledger"
	"github.com/pointsledger/pointsledger/internal/model"
	"github.com/pointsledger/pointsledger/internal/tenant"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the payload of ErrorResponse.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// TenantResponse describes one program and what it expects from callers.
type TenantResponse struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	ProgramName         string   `json:"programName"`
	UnitLabel           string   `json:"unitLabel"`
	Variant             string   `json:"variant"`
	SecondaryParam      string   `json:"secondaryParam,omitempty"`
	RequiredWriteFields []string `json:"requiredWriteFields"`
}

// TenantListResponse lists all programs.
type TenantListResponse struct {
	Data []TenantResponse `json:"data"`
}

// CustomerResponse is the customer header shown with a ledger.
type CustomerResponse struct {
	Email        string   `json:"email"`
	SecondaryID  string   `json:"secondaryId,omitempty"`
	Tier         string   `json:"tier,omitempty"`
	TierBenefits []string `json:"tierBenefits,omitempty"`
}

// EntryResponse is one ledger entry with its status at evaluation time.
type EntryResponse struct {
	ID            string    `json:"id"`
	Amount        int64     `json:"amount"`
	Expiry        time.Time `json:"expiry"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transactionId,omitempty"`
	FlightNumber  string    `json:"flightNumber,omitempty"`
	RouteCode     string    `json:"routeCode,omitempty"`
}

// BalanceResponse is the full ledger view.
type BalanceResponse struct {
	TenantID    string           `json:"tenantId"`
	ProgramName string           `json:"programName"`
	UnitLabel   string           `json:"unitLabel"`
	Customer    CustomerResponse `json:"customer"`
	Balance     int64            `json:"balance"`
	Entries     []EntryResponse  `json:"entries"`
	EvaluatedAt time.Time        `json:"evaluatedAt"`
}

// TotalsResponse is the aggregate ledger view.
type TotalsResponse struct {
	TenantID     string           `json:"tenantId"`
	ProgramName  string           `json:"programName"`
	UnitLabel    string           `json:"unitLabel"`
	Customer     CustomerResponse `json:"customer"`
	Balance      int64            `json:"balance"`
	ExpiredTotal int64            `json:"expiredTotal"`
	ActiveCount  int              `json:"activeCount"`
	ExpiredCount int              `json:"expiredCount"`
	NextExpiry   *time.Time       `json:"nextExpiry,omitempty"`
	EvaluatedAt  time.Time        `json:"evaluatedAt"`
}

// GrantResponse confirms an appended entry.
type GrantResponse struct {
	Accepted    bool          `json:"accepted"`
	Message     string        `json:"message"`
	TenantID    string        `json:"tenantId"`
	ProgramName string        `json:"programName"`
	Entry       EntryResponse `json:"entry"`
	Balance     int64         `json:"balance"`
}

// ToTenantResponse converts a tenant to its DTO.
func ToTenantResponse(t tenant.Tenant) TenantResponse {
	return TenantResponse{
		ID:                  t.ID,
		Name:                t.Name,
		ProgramName:         t.ProgramName,
		UnitLabel:           t.UnitLabel,
		Variant:             t.Variant.String(),
		SecondaryParam:      t.Variant.SecondaryParam(),
		RequiredWriteFields: t.Variant.RequiredWriteFields(),
	}
}

// ToCustomerResponse converts a customer header to its DTO.
func ToCustomerResponse(c *model.Customer) CustomerResponse {
	return CustomerResponse{
		Email:        c.Email,
		SecondaryID:  c.SecondaryID,
		Tier:         c.Tier,
		TierBenefits: c.TierBenefits,
	}
}

// ToEntryResponse converts a ledger entry with its status.
func ToEntryResponse(e ledger.Entry, status ledger.Status) EntryResponse {
	return EntryResponse{
		ID:            e.ID,
		Amount:        e.Amount,
		Expiry:        e.Expiry.UTC(),
		Status:        string(status),
		TransactionID: e.TransactionID,
		FlightNumber:  e.FlightNumber,
		RouteCode:     e.RouteCode,
	}
}

// ToEntryResponses converts a history in ledger order.
func ToEntryResponses(items []ledger.HistoryItem) []EntryResponse {
	out := make([]EntryResponse, len(items))
	for i, it := range items {
		out[i] = ToEntryResponse(it.Entry, it.Status)
	}
	return out
}
