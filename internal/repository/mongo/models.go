package mongo

import (
	"time"

	"github.com/pointsledger/pointsledger/internal/ledger"
	"github.com/pointsledger/pointsledger/internal/model"
)

// tenantDocument is one program with every enrolled customer embedded.
type tenantDocument struct {
	CompanyID string             `bson:"companyId"`
	Customers []customerDocument `bson:"customers"`
}

type customerDocument struct {
	ID           string          `bson:"id"`
	Email        string          `bson:"email"`
	SecondaryID  string          `bson:"secondaryId"`
	Tier         string          `bson:"tier,omitempty"`
	TierBenefits []string        `bson:"tierBenefits,omitempty"`
	Points       []entryDocument `bson:"points"`
	CreatedAt    time.Time       `bson:"createdAt"`
}

type entryDocument struct {
	ID            string    `bson:"id"`
	Points        int64     `bson:"points"`
	Expiry        time.Time `bson:"expiry"`
	TransactionID string    `bson:"transactionId,omitempty"`
	FlightNumber  string    `bson:"flightNumber,omitempty"`
	RouteCode     string    `bson:"routeCode,omitempty"`
}

func toEntryDocument(e ledger.Entry) entryDocument {
	return entryDocument{
		ID:            e.ID,
		Points:        e.Amount,
		Expiry:        e.Expiry.UTC(),
		TransactionID: e.TransactionID,
		FlightNumber:  e.FlightNumber,
		RouteCode:     e.RouteCode,
	}
}

func fromEntryDocument(d entryDocument) ledger.Entry {
	return ledger.Entry{
		ID:            d.ID,
		Amount:        d.Points,
		Expiry:        d.Expiry.UTC(),
		TransactionID: d.TransactionID,
		FlightNumber:  d.FlightNumber,
		RouteCode:     d.RouteCode,
	}
}

func toCustomerDocument(c *model.Customer) customerDocument {
	points := make([]entryDocument, len(c.Entries))
	for i, e := range c.Entries {
		points[i] = toEntryDocument(e)
	}
	return customerDocument{
		ID:           c.ID,
		Email:        c.Email,
		SecondaryID:  c.SecondaryID,
		Tier:         c.Tier,
		TierBenefits: c.TierBenefits,
		Points:       points,
		CreatedAt:    c.CreatedAt.UTC(),
	}
}

func fromCustomerDocument(tenantID string, d customerDocument) *model.Customer {
	entries := make([]ledger.Entry, len(d.Points))
	for i, p := range d.Points {
		entries[i] = fromEntryDocument(p)
	}
	return &model.Customer{
		ID:           d.ID,
		TenantID:     tenantID,
		Email:        d.Email,
		SecondaryID:  d.SecondaryID,
		Tier:         d.Tier,
		TierBenefits: d.TierBenefits,
		Entries:      entries,
		CreatedAt:    d.CreatedAt,
	}
}
