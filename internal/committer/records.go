package committer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/transform"
	importerrors "github.com/bloodyteeths/mkfakturi-sub009/pkg/errors"
)

const (
	defaultPaymentMethod   = "Cash"
	defaultExpenseCategory = "General"
)

// commitEnv carries the per-transaction state every row commit needs.
type commitEnv struct {
	committer *Committer
	tx        pgx.Tx
	run       domain.ImportRun
	currency  domain.Currency
}

// commitRow applies the duplicate policy and persists one row. Construction
// errors (bad values) come back as plain errors and are counted per row;
// storage errors come back commit-categorized and abort the transaction.
func (e *commitEnv) commitRow(ctx context.Context, entityType domain.EntityType, row domain.StagingRow) (domain.ImportLogEntry, error) {
	dup := row.DuplicateInfo
	policy := e.run.DuplicatePolicy

	if dup != nil && dup.Exists && policy == domain.DuplicateSkip {
		return e.resolvedEntry(entityType, row, policy, dup.ExistingID), nil
	}

	switch entityType {
	case domain.EntityCustomers:
		return e.commitCustomer(ctx, row, dup, policy)
	case domain.EntityItems:
		return e.commitItem(ctx, row, dup, policy)
	case domain.EntityInvoices:
		return e.commitInvoice(ctx, row, dup, policy)
	case domain.EntityPayments:
		return e.commitPayment(ctx, row)
	case domain.EntityExpenses:
		return e.commitExpense(ctx, row)
	}
	return domain.ImportLogEntry{}, fmt.Errorf("no committer for entity type %q", entityType)
}

func (e *commitEnv) commitCustomer(ctx context.Context, row domain.StagingRow, dup *domain.DuplicateInfo, policy domain.DuplicatePolicy) (domain.ImportLogEntry, error) {
	values := row.Transformed
	customer := domain.Customer{
		ID:          uuid.New(),
		CompanyID:   e.run.CompanyID,
		CreatorID:   e.run.CreatorID,
		CurrencyID:  e.currency.ID,
		Name:        values["name"],
		Email:       values["email"],
		Phone:       values["phone"],
		Website:     values["website"],
		TaxID:       values["tax_id"],
		ContactName: values["contact_name"],
		Address1:    values["address_1"],
		Address2:    values["address_2"],
		City:        values["city"],
		State:       values["state"],
		Zip:         values["zip"],
		Country:     values["country"],
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if dup != nil && dup.Exists && policy == domain.DuplicateUpdate && dup.ExistingID != nil {
		customer.ID = *dup.ExistingID
		if err := e.committer.production.UpdateCustomer(ctx, e.tx, customer); err != nil {
			return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to update customer")
		}
		return e.resolvedEntry(domain.EntityCustomers, row, policy, dup.ExistingID), nil
	}

	if err := e.committer.production.CreateCustomer(ctx, e.tx, customer); err != nil {
		return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to create customer")
	}
	return e.committedEntry(domain.EntityCustomers, row, customer.ID), nil
}

func (e *commitEnv) commitItem(ctx context.Context, row domain.StagingRow, dup *domain.DuplicateInfo, policy domain.DuplicatePolicy) (domain.ImportLogEntry, error) {
	values := row.Transformed
	price, err := optionalCents(values["price"])
	if err != nil {
		return domain.ImportLogEntry{}, fmt.Errorf("bad price: %w", err)
	}

	item := domain.Item{
		ID:          uuid.New(),
		CompanyID:   e.run.CompanyID,
		CreatorID:   e.run.CreatorID,
		CurrencyID:  e.currency.ID,
		Name:        values["name"],
		Description: values["description"],
		Price:       price,
		UnitName:    values["unit_name"],
		SKU:         values["sku"],
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if dup != nil && dup.Exists && policy == domain.DuplicateUpdate && dup.ExistingID != nil {
		item.ID = *dup.ExistingID
		if err := e.committer.production.UpdateItem(ctx, e.tx, item); err != nil {
			return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to update item")
		}
		return e.resolvedEntry(domain.EntityItems, row, policy, dup.ExistingID), nil
	}

	if err := e.committer.production.CreateItem(ctx, e.tx, item); err != nil {
		return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to create item")
	}
	return e.committedEntry(domain.EntityItems, row, item.ID), nil
}

func (e *commitEnv) commitInvoice(ctx context.Context, row domain.StagingRow, dup *domain.DuplicateInfo, policy domain.DuplicatePolicy) (domain.ImportLogEntry, error) {
	values := row.Transformed

	invoiceDate, _, err := transform.Date(values["invoice_date"])
	if err != nil {
		return domain.ImportLogEntry{}, fmt.Errorf("bad invoice date: %w", err)
	}
	dueDate := invoiceDate
	if values["due_date"] != "" {
		dueDate, _, err = transform.Date(values["due_date"])
		if err != nil {
			return domain.ImportLogEntry{}, fmt.Errorf("bad due date: %w", err)
		}
	}
	subTotal, err := optionalCents(values["sub_total"])
	if err != nil {
		return domain.ImportLogEntry{}, fmt.Errorf("bad subtotal: %w", err)
	}
	tax, err := optionalCents(values["tax"])
	if err != nil {
		return domain.ImportLogEntry{}, fmt.Errorf("bad tax: %w", err)
	}
	total, err := optionalCents(values["total"])
	if err != nil {
		return domain.ImportLogEntry{}, fmt.Errorf("bad total: %w", err)
	}

	number := values["invoice_number"]
	if dup != nil && dup.Exists && policy == domain.DuplicateCreateNew {
		number, err = e.disambiguateInvoiceNumber(ctx, number)
		if err != nil {
			return domain.ImportLogEntry{}, err
		}
	}

	var customerID *uuid.UUID
	if name := values["customer_name"]; name != "" {
		customerID, err = e.committer.production.FindCustomerIDByName(ctx, e.tx, e.run.CompanyID, name)
		if err != nil {
			return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to link invoice customer")
		}
	}

	status := values["status"]
	if status == "" {
		status = "sent"
	}

	invoice := domain.Invoice{
		ID:            uuid.New(),
		CompanyID:     e.run.CompanyID,
		CreatorID:     e.run.CreatorID,
		CurrencyID:    e.currency.ID,
		CustomerID:    customerID,
		InvoiceNumber: number,
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		SubTotal:      subTotal,
		Tax:           tax,
		Total:         total,
		Status:        status,
		PaidStatus:    "unpaid",
		Notes:         values["notes"],
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if dup != nil && dup.Exists && policy == domain.DuplicateUpdate && dup.ExistingID != nil {
		invoice.ID = *dup.ExistingID
		invoice.InvoiceNumber = values["invoice_number"]
		if err := e.committer.production.UpdateInvoice(ctx, e.tx, invoice); err != nil {
			return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to update invoice")
		}
		return e.resolvedEntry(domain.EntityInvoices, row, policy, dup.ExistingID), nil
	}

	if err := e.committer.production.CreateInvoice(ctx, e.tx, invoice); err != nil {
		return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to create invoice")
	}
	return e.committedEntry(domain.EntityInvoices, row, invoice.ID), nil
}

// disambiguateInvoiceNumber appends an increasing suffix until the number is
// free inside the transaction.
func (e *commitEnv) disambiguateInvoiceNumber(ctx context.Context, number string) (string, error) {
	for suffix := 2; ; suffix++ {
		candidate := fmt.Sprintf("%s-%d", number, suffix)
		exists, err := e.committer.production.InvoiceNumberExists(ctx, e.tx, e.run.CompanyID, candidate)
		if err != nil {
			return "", importerrors.Commit(err, "failed to probe invoice number")
		}
		if !exists {
			return candidate, nil
		}
	}
}

func (e *commitEnv) commitPayment(ctx context.Context, row domain.StagingRow) (domain.ImportLogEntry, error) {
	values := row.Transformed

	paymentDate, _, err := transform.Date(values["payment_date"])
	if err != nil {
		return domain.ImportLogEntry{}, fmt.Errorf("bad payment date: %w", err)
	}
	amount, err := optionalCents(values["amount"])
	if err != nil {
		return domain.ImportLogEntry{}, fmt.Errorf("bad amount: %w", err)
	}

	methodName := values["payment_method"]
	if methodName == "" {
		methodName = defaultPaymentMethod
	}
	method, err := e.committer.production.GetOrCreatePaymentMethod(ctx, e.tx, e.run.CompanyID, methodName)
	if err != nil {
		return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to resolve payment method")
	}

	number := values["payment_number"]
	if number == "" {
		seq, seqErr := e.committer.production.NextSequence(ctx, e.tx, e.run.CompanyID, domain.EntityPayments)
		if seqErr != nil {
			return domain.ImportLogEntry{}, importerrors.Commit(seqErr, "failed to number payment")
		}
		number = fmt.Sprintf("PAY-%04d", seq)
	}

	var customerID *uuid.UUID
	if name := values["customer_name"]; name != "" {
		customerID, err = e.committer.production.FindCustomerIDByName(ctx, e.tx, e.run.CompanyID, name)
		if err != nil {
			return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to link payment customer")
		}
	}
	var invoiceID *uuid.UUID
	if invoiceNumber := values["invoice_number"]; invoiceNumber != "" {
		invoiceID, err = e.committer.production.FindInvoiceIDByNumber(ctx, e.tx, e.run.CompanyID, invoiceNumber)
		if err != nil {
			return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to link payment invoice")
		}
	}

	payment := domain.Payment{
		ID:              uuid.New(),
		CompanyID:       e.run.CompanyID,
		CreatorID:       e.run.CreatorID,
		CurrencyID:      e.currency.ID,
		PaymentMethodID: method.ID,
		CustomerID:      customerID,
		InvoiceID:       invoiceID,
		PaymentNumber:   number,
		PaymentDate:     paymentDate,
		Amount:          amount,
		ReferenceNumber: values["reference_number"],
		Notes:           values["notes"],
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if err := e.committer.production.CreatePayment(ctx, e.tx, payment); err != nil {
		return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to create payment")
	}
	return e.committedEntry(domain.EntityPayments, row, payment.ID), nil
}

func (e *commitEnv) commitExpense(ctx context.Context, row domain.StagingRow) (domain.ImportLogEntry, error) {
	values := row.Transformed

	expenseDate, _, err := transform.Date(values["expense_date"])
	if err != nil {
		return domain.ImportLogEntry{}, fmt.Errorf("bad expense date: %w", err)
	}
	amount, err := optionalCents(values["amount"])
	if err != nil {
		return domain.ImportLogEntry{}, fmt.Errorf("bad amount: %w", err)
	}

	categoryName := values["expense_category"]
	if categoryName == "" {
		categoryName = defaultExpenseCategory
	}
	category, err := e.committer.production.GetOrCreateExpenseCategory(ctx, e.tx, e.run.CompanyID, categoryName)
	if err != nil {
		return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to resolve expense category")
	}

	number := values["expense_number"]
	if number == "" {
		seq, seqErr := e.committer.production.NextSequence(ctx, e.tx, e.run.CompanyID, domain.EntityExpenses)
		if seqErr != nil {
			return domain.ImportLogEntry{}, importerrors.Commit(seqErr, "failed to number expense")
		}
		number = fmt.Sprintf("EXP-%04d", seq)
	}

	expense := domain.Expense{
		ID:                uuid.New(),
		CompanyID:         e.run.CompanyID,
		CreatorID:         e.run.CreatorID,
		CurrencyID:        e.currency.ID,
		ExpenseCategoryID: category.ID,
		ExpenseNumber:     number,
		ExpenseDate:       expenseDate,
		Amount:            amount,
		Vendor:            values["vendor"],
		Notes:             values["notes"],
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	if err := e.committer.production.CreateExpense(ctx, e.tx, expense); err != nil {
		return domain.ImportLogEntry{}, importerrors.Commit(err, "failed to create expense")
	}
	return e.committedEntry(domain.EntityExpenses, row, expense.ID), nil
}

func (e *commitEnv) committedEntry(entityType domain.EntityType, row domain.StagingRow, id uuid.UUID) domain.ImportLogEntry {
	rowNumber := row.RowNumber
	entry := domain.NewLogEntry(e.run.ID, domain.LogRecordCommitted, domain.SeverityInfo,
		fmt.Sprintf("row %d committed as new %s record", row.RowNumber, entityType))
	entry.EntityType = entityType
	entry.EntityID = &id
	entry.RowNumber = &rowNumber
	entry.ProcessStage = "committing"
	entry.FinalData = toAnyMap(row.Transformed)
	return entry
}

func (e *commitEnv) resolvedEntry(entityType domain.EntityType, row domain.StagingRow, policy domain.DuplicatePolicy, existingID *uuid.UUID) domain.ImportLogEntry {
	rowNumber := row.RowNumber
	entry := domain.NewLogEntry(e.run.ID, domain.LogDuplicateResolved, domain.SeverityInfo,
		fmt.Sprintf("row %d resolved against existing %s record (%s)", row.RowNumber, entityType, policy))
	entry.EntityType = entityType
	entry.EntityID = existingID
	entry.RowNumber = &rowNumber
	entry.ProcessStage = "committing"
	entry.RuleApplied = string(policy)
	return entry
}

// optionalCents converts a canonical amount string to cents, zero when
// empty.
func optionalCents(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	d, err := transform.Decimal(value)
	if err != nil {
		return 0, err
	}
	return transform.Cents(d), nil
}

func toAnyMap(values map[string]string) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
