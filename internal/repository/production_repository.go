package repository

import (
	"context"
	"fmt"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type productionRepository struct {
	pool *pgxpool.Pool
}

// NewProductionRepository wires a repository backed by pgxpool.
func NewProductionRepository(pool *pgxpool.Pool) ProductionRepository {
	return &productionRepository{pool: pool}
}

func (r *productionRepository) Counts(ctx context.Context, companyID uuid.UUID) (ProductionCounts, error) {
	counts := ProductionCounts{}
	for _, entityType := range domain.StagedEntityTypes {
		table, err := productionTable(entityType)
		if err != nil {
			return nil, err
		}
		var count int
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE company_id = $1`, table)
		if err := r.pool.QueryRow(ctx, query, companyID).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[entityType] = count
	}
	return counts, nil
}

// productionTable resolves an entity type to its production table. Closed
// switch, same reasoning as the staging tables.
func productionTable(entityType domain.EntityType) (string, error) {
	switch entityType {
	case domain.EntityCustomers:
		return "customers", nil
	case domain.EntityInvoices:
		return "invoices", nil
	case domain.EntityItems:
		return "items", nil
	case domain.EntityPayments:
		return "payments", nil
	case domain.EntityExpenses:
		return "expenses", nil
	}
	return "", fmt.Errorf("no production table for entity type %q", entityType)
}

const customerColumns = `id, company_id, creator_id, currency_id, name, email, phone, website, tax_id,
	contact_name, address_1, address_2, city, state, zip, country, created_at, updated_at`

func (r *productionRepository) FindCustomerByEmail(ctx context.Context, companyID uuid.UUID, email string) (*domain.Customer, error) {
	return r.findCustomer(ctx, `company_id = $1 AND email = $2 AND email <> ''`, companyID, email)
}

func (r *productionRepository) FindCustomerByTaxID(ctx context.Context, companyID uuid.UUID, taxID string) (*domain.Customer, error) {
	return r.findCustomer(ctx, `company_id = $1 AND tax_id = $2 AND tax_id <> ''`, companyID, taxID)
}

func (r *productionRepository) findCustomer(ctx context.Context, where string, args ...any) (*domain.Customer, error) {
	var c domain.Customer
	err := r.pool.QueryRow(
		ctx,
		`SELECT `+customerColumns+` FROM customers WHERE `+where+` LIMIT 1`,
		args...,
	).Scan(
		&c.ID, &c.CompanyID, &c.CreatorID, &c.CurrencyID, &c.Name, &c.Email, &c.Phone, &c.Website, &c.TaxID,
		&c.ContactName, &c.Address1, &c.Address2, &c.City, &c.State, &c.Zip, &c.Country,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}
	return &c, nil
}

func (r *productionRepository) ListCustomerRefs(ctx context.Context, companyID uuid.UUID) ([]CustomerRef, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, name FROM customers WHERE company_id = $1 ORDER BY name`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer refs: %w", err)
	}
	defer rows.Close()

	refs := []CustomerRef{}
	for rows.Next() {
		var ref CustomerRef
		if scanErr := rows.Scan(&ref.ID, &ref.Name); scanErr != nil {
			return nil, fmt.Errorf("failed to scan customer ref: %w", scanErr)
		}
		refs = append(refs, ref)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate customer refs: %w", rowsErr)
	}
	return refs, nil
}

func (r *productionRepository) FindInvoiceByNumber(ctx context.Context, companyID uuid.UUID, number string) (*domain.Invoice, error) {
	var (
		inv        domain.Invoice
		customerID pgtype.UUID
	)
	err := r.pool.QueryRow(
		ctx,
		`SELECT id, company_id, creator_id, currency_id, customer_id, invoice_number,
			invoice_date, due_date, sub_total, tax, total, status, paid_status, notes,
			created_at, updated_at
		 FROM invoices WHERE company_id = $1 AND invoice_number = $2 LIMIT 1`,
		companyID, number,
	).Scan(
		&inv.ID, &inv.CompanyID, &inv.CreatorID, &inv.CurrencyID, &customerID, &inv.InvoiceNumber,
		&inv.InvoiceDate, &inv.DueDate, &inv.SubTotal, &inv.Tax, &inv.Total,
		&inv.Status, &inv.PaidStatus, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice: %w", err)
	}
	if customerID.Valid {
		id := uuid.UUID(customerID.Bytes)
		inv.CustomerID = &id
	}
	return &inv, nil
}

func (r *productionRepository) FindItemBySKU(ctx context.Context, companyID uuid.UUID, sku string) (*domain.Item, error) {
	return r.findItem(ctx, `company_id = $1 AND sku = $2 AND sku <> ''`, companyID, sku)
}

func (r *productionRepository) FindItemByName(ctx context.Context, companyID uuid.UUID, name string) (*domain.Item, error) {
	return r.findItem(ctx, `company_id = $1 AND LOWER(name) = LOWER($2)`, companyID, name)
}

func (r *productionRepository) findItem(ctx context.Context, where string, args ...any) (*domain.Item, error) {
	var i domain.Item
	err := r.pool.QueryRow(
		ctx,
		`SELECT id, company_id, creator_id, currency_id, name, description, price, unit_name, sku, created_at, updated_at
		 FROM items WHERE `+where+` LIMIT 1`,
		args...,
	).Scan(
		&i.ID, &i.CompanyID, &i.CreatorID, &i.CurrencyID, &i.Name, &i.Description,
		&i.Price, &i.UnitName, &i.SKU, &i.CreatedAt, &i.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item: %w", err)
	}
	return &i, nil
}

func (r *productionRepository) CreateCustomer(ctx context.Context, tx pgx.Tx, c domain.Customer) error {
	_, err := tx.Exec(
		ctx,
		`INSERT INTO customers (`+customerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		c.ID, c.CompanyID, c.CreatorID, c.CurrencyID, c.Name, c.Email, c.Phone, c.Website, c.TaxID,
		c.ContactName, c.Address1, c.Address2, c.City, c.State, c.Zip, c.Country, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

func (r *productionRepository) UpdateCustomer(ctx context.Context, tx pgx.Tx, c domain.Customer) error {
	tag, err := tx.Exec(
		ctx,
		`UPDATE customers SET name = $2, email = $3, phone = $4, website = $5, tax_id = $6,
			contact_name = $7, address_1 = $8, address_2 = $9, city = $10, state = $11,
			zip = $12, country = $13, updated_at = $14
		 WHERE id = $1`,
		c.ID, c.Name, c.Email, c.Phone, c.Website, c.TaxID,
		c.ContactName, c.Address1, c.Address2, c.City, c.State, c.Zip, c.Country, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer not found: %s", c.ID)
	}
	return nil
}

func (r *productionRepository) CreateItem(ctx context.Context, tx pgx.Tx, i domain.Item) error {
	_, err := tx.Exec(
		ctx,
		`INSERT INTO items (id, company_id, creator_id, currency_id, name, description, price, unit_name, sku, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		i.ID, i.CompanyID, i.CreatorID, i.CurrencyID, i.Name, i.Description, i.Price, i.UnitName, i.SKU, i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func (r *productionRepository) UpdateItem(ctx context.Context, tx pgx.Tx, i domain.Item) error {
	tag, err := tx.Exec(
		ctx,
		`UPDATE items SET name = $2, description = $3, price = $4, unit_name = $5, sku = $6, updated_at = $7
		 WHERE id = $1`,
		i.ID, i.Name, i.Description, i.Price, i.UnitName, i.SKU, i.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item not found: %s", i.ID)
	}
	return nil
}

func (r *productionRepository) CreateInvoice(ctx context.Context, tx pgx.Tx, inv domain.Invoice) error {
	_, err := tx.Exec(
		ctx,
		`INSERT INTO invoices (id, company_id, creator_id, currency_id, customer_id, invoice_number,
			invoice_date, due_date, sub_total, tax, total, status, paid_status, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		inv.ID, inv.CompanyID, inv.CreatorID, inv.CurrencyID, inv.CustomerID, inv.InvoiceNumber,
		inv.InvoiceDate, inv.DueDate, inv.SubTotal, inv.Tax, inv.Total,
		inv.Status, inv.PaidStatus, inv.Notes, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func (r *productionRepository) UpdateInvoice(ctx context.Context, tx pgx.Tx, inv domain.Invoice) error {
	tag, err := tx.Exec(
		ctx,
		`UPDATE invoices SET customer_id = $2, invoice_date = $3, due_date = $4,
			sub_total = $5, tax = $6, total = $7, status = $8, paid_status = $9, notes = $10, updated_at = $11
		 WHERE id = $1`,
		inv.ID, inv.CustomerID, inv.InvoiceDate, inv.DueDate,
		inv.SubTotal, inv.Tax, inv.Total, inv.Status, inv.PaidStatus, inv.Notes, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice not found: %s", inv.ID)
	}
	return nil
}

func (r *productionRepository) CreatePayment(ctx context.Context, tx pgx.Tx, p domain.Payment) error {
	_, err := tx.Exec(
		ctx,
		`INSERT INTO payments (id, company_id, creator_id, currency_id, payment_method_id, customer_id, invoice_id,
			payment_number, payment_date, amount, reference_number, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.CompanyID, p.CreatorID, p.CurrencyID, p.PaymentMethodID, p.CustomerID, p.InvoiceID,
		p.PaymentNumber, p.PaymentDate, p.Amount, p.ReferenceNumber, p.Notes, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *productionRepository) CreateExpense(ctx context.Context, tx pgx.Tx, e domain.Expense) error {
	_, err := tx.Exec(
		ctx,
		`INSERT INTO expenses (id, company_id, creator_id, currency_id, expense_category_id,
			expense_number, expense_date, amount, vendor, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.CompanyID, e.CreatorID, e.CurrencyID, e.ExpenseCategoryID,
		e.ExpenseNumber, e.ExpenseDate, e.Amount, e.Vendor, e.Notes, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

func (r *productionRepository) InvoiceNumberExists(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, number string) (bool, error) {
	var exists bool
	err := tx.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE company_id = $1 AND invoice_number = $2)`,
		companyID, number,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check invoice number: %w", err)
	}
	return exists, nil
}

func (r *productionRepository) FindCustomerIDByName(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, name string) (*uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(
		ctx,
		`SELECT id FROM customers WHERE company_id = $1 AND LOWER(name) = LOWER($2) LIMIT 1`,
		companyID, name,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find customer by name: %w", err)
	}
	return &id, nil
}

func (r *productionRepository) FindInvoiceIDByNumber(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, number string) (*uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(
		ctx,
		`SELECT id FROM invoices WHERE company_id = $1 AND invoice_number = $2 LIMIT 1`,
		companyID, number,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice by number: %w", err)
	}
	return &id, nil
}

// NextSequence returns the next ordinal for generated record numbers
// (PAY-0001 and friends), scoped to the committer's transaction so
// concurrent runs cannot hand out the same value twice.
func (r *productionRepository) NextSequence(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, entityType domain.EntityType) (int, error) {
	table, err := productionTable(entityType)
	if err != nil {
		return 0, err
	}
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE company_id = $1`, table)
	if err := tx.QueryRow(ctx, query, companyID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to derive next sequence for %s: %w", table, err)
	}
	return count + 1, nil
}

func (r *productionRepository) GetOrCreateCurrency(ctx context.Context, tx pgx.Tx, code, name string) (domain.Currency, error) {
	var c domain.Currency
	err := tx.QueryRow(ctx, `SELECT id, code, name, symbol FROM currencies WHERE code = $1`, code).
		Scan(&c.ID, &c.Code, &c.Name, &c.Symbol)
	if err == nil {
		return c, nil
	}
	if err != pgx.ErrNoRows {
		return domain.Currency{}, fmt.Errorf("failed to look up currency: %w", err)
	}

	c = domain.Currency{ID: uuid.New(), Code: code, Name: name}
	if _, err := tx.Exec(
		ctx,
		`INSERT INTO currencies (id, code, name, symbol) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Code, c.Name, c.Symbol,
	); err != nil {
		return domain.Currency{}, fmt.Errorf("failed to create currency: %w", err)
	}
	return c, nil
}

func (r *productionRepository) GetOrCreatePaymentMethod(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, name string) (domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	err := tx.QueryRow(
		ctx,
		`SELECT id, company_id, name, type FROM payment_methods WHERE company_id = $1 AND name = $2`,
		companyID, name,
	).Scan(&m.ID, &m.CompanyID, &m.Name, &m.Type)
	if err == nil {
		return m, nil
	}
	if err != pgx.ErrNoRows {
		return domain.PaymentMethod{}, fmt.Errorf("failed to look up payment method: %w", err)
	}

	m = domain.PaymentMethod{ID: uuid.New(), CompanyID: companyID, Name: name, Type: "general"}
	if _, err := tx.Exec(
		ctx,
		`INSERT INTO payment_methods (id, company_id, name, type) VALUES ($1, $2, $3, $4)`,
		m.ID, m.CompanyID, m.Name, m.Type,
	); err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("failed to create payment method: %w", err)
	}
	return m, nil
}

func (r *productionRepository) GetOrCreateExpenseCategory(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, name string) (domain.ExpenseCategory, error) {
	var c domain.ExpenseCategory
	err := tx.QueryRow(
		ctx,
		`SELECT id, company_id, name, description FROM expense_categories WHERE company_id = $1 AND name = $2`,
		companyID, name,
	).Scan(&c.ID, &c.CompanyID, &c.Name, &c.Description)
	if err == nil {
		return c, nil
	}
	if err != pgx.ErrNoRows {
		return domain.ExpenseCategory{}, fmt.Errorf("failed to look up expense category: %w", err)
	}

	c = domain.ExpenseCategory{ID: uuid.New(), CompanyID: companyID, Name: name}
	if _, err := tx.Exec(
		ctx,
		`INSERT INTO expense_categories (id, company_id, name, description) VALUES ($1, $2, $3, $4)`,
		c.ID, c.CompanyID, c.Name, c.Description,
	); err != nil {
		return domain.ExpenseCategory{}, fmt.Errorf("failed to create expense category: %w", err)
	}
	return c, nil
}
