package domain

import (
	"time"

	"github.com/google/uuid"
)

// Production records constructed by the committer. Monetary amounts are
// stored in cents so currency math never touches floats at rest.

// Customer is a production customer record.
type Customer struct {
	ID          uuid.UUID `json:"id"`
	CompanyID   uuid.UUID `json:"company_id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	CurrencyID  uuid.UUID `json:"currency_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Website     string    `json:"website,omitempty"`
	TaxID       string    `json:"tax_id,omitempty"`
	ContactName string    `json:"contact_name,omitempty"`
	Address1    string    `json:"address_1,omitempty"`
	Address2    string    `json:"address_2,omitempty"`
	City        string    `json:"city,omitempty"`
	State       string    `json:"state,omitempty"`
	Zip         string    `json:"zip,omitempty"`
	Country     string    `json:"country,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Invoice is a production invoice record.
type Invoice struct {
	ID            uuid.UUID  `json:"id"`
	CompanyID     uuid.UUID  `json:"company_id"`
	CreatorID     uuid.UUID  `json:"creator_id"`
	CurrencyID    uuid.UUID  `json:"currency_id"`
	CustomerID    *uuid.UUID `json:"customer_id,omitempty"`
	InvoiceNumber string     `json:"invoice_number"`
	InvoiceDate   time.Time  `json:"invoice_date"`
	DueDate       time.Time  `json:"due_date"`
	SubTotal      int64      `json:"sub_total"`
	Tax           int64      `json:"tax"`
	Total         int64      `json:"total"`
	Status        string     `json:"status"`
	PaidStatus    string     `json:"paid_status"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Item is a production catalogue item.
type Item struct {
	ID          uuid.UUID `json:"id"`
	CompanyID   uuid.UUID `json:"company_id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	CurrencyID  uuid.UUID `json:"currency_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	UnitName    string    `json:"unit_name,omitempty"`
	SKU         string    `json:"sku,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Payment is a production payment record.
type Payment struct {
	ID              uuid.UUID  `json:"id"`
	CompanyID       uuid.UUID  `json:"company_id"`
	CreatorID       uuid.UUID  `json:"creator_id"`
	CurrencyID      uuid.UUID  `json:"currency_id"`
	PaymentMethodID uuid.UUID  `json:"payment_method_id"`
	CustomerID      *uuid.UUID `json:"customer_id,omitempty"`
	InvoiceID       *uuid.UUID `json:"invoice_id,omitempty"`
	PaymentNumber   string     `json:"payment_number"`
	PaymentDate     time.Time  `json:"payment_date"`
	Amount          int64      `json:"amount"`
	ReferenceNumber string     `json:"reference_number,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Expense is a production expense record.
type Expense struct {
	ID                uuid.UUID `json:"id"`
	CompanyID         uuid.UUID `json:"company_id"`
	CreatorID         uuid.UUID `json:"creator_id"`
	CurrencyID        uuid.UUID `json:"currency_id"`
	ExpenseCategoryID uuid.UUID `json:"expense_category_id"`
	ExpenseNumber     string    `json:"expense_number"`
	ExpenseDate       time.Time `json:"expense_date"`
	Amount            int64     `json:"amount"`
	Vendor            string    `json:"vendor,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Currency is a shared lookup record; imports reference the company's
// configured base currency.
type Currency struct {
	ID     uuid.UUID `json:"id"`
	Code   string    `json:"code"`
	Name   string    `json:"name"`
	Symbol string    `json:"symbol,omitempty"`
}

// PaymentMethod is a per-company lookup created lazily on first use.
type PaymentMethod struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
}

// ExpenseCategory is a per-company lookup created lazily on first use.
type ExpenseCategory struct {
	ID          uuid.UUID `json:"id"`
	CompanyID   uuid.UUID `json:"company_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
}
