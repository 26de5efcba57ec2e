package mapper

import "github.com/bloodyteeths/mkfakturi-sub009/internal/domain"

// TargetField is one canonical schema field a source column can map onto.
type TargetField struct {
	Name string
	Kind domain.TransformationKind
}

// targetFields lists the canonical schema per entity type. Order matters for
// tie-breaking: earlier fields win equal scores.
var targetFields = map[domain.EntityType][]TargetField{
	domain.EntityCustomers: {
		{Name: "name", Kind: domain.TransformDirect},
		{Name: "email", Kind: domain.TransformDirect},
		{Name: "phone", Kind: domain.TransformDirect},
		{Name: "tax_id", Kind: domain.TransformDirect},
		{Name: "contact_name", Kind: domain.TransformDirect},
		{Name: "website", Kind: domain.TransformDirect},
		{Name: "address_1", Kind: domain.TransformDirect},
		{Name: "address_2", Kind: domain.TransformDirect},
		{Name: "city", Kind: domain.TransformDirect},
		{Name: "state", Kind: domain.TransformDirect},
		{Name: "zip", Kind: domain.TransformDirect},
		{Name: "country", Kind: domain.TransformDirect},
	},
	domain.EntityInvoices: {
		{Name: "invoice_number", Kind: domain.TransformDirect},
		{Name: "customer_name", Kind: domain.TransformDirect},
		{Name: "invoice_date", Kind: domain.TransformDate},
		{Name: "due_date", Kind: domain.TransformDate},
		{Name: "sub_total", Kind: domain.TransformCurrency},
		{Name: "tax", Kind: domain.TransformCurrency},
		{Name: "total", Kind: domain.TransformCurrency},
		{Name: "status", Kind: domain.TransformDirect},
		{Name: "notes", Kind: domain.TransformDirect},
	},
	domain.EntityItems: {
		{Name: "name", Kind: domain.TransformDirect},
		{Name: "description", Kind: domain.TransformDirect},
		{Name: "price", Kind: domain.TransformCurrency},
		{Name: "unit_name", Kind: domain.TransformDirect},
		{Name: "sku", Kind: domain.TransformDirect},
	},
	domain.EntityPayments: {
		{Name: "payment_number", Kind: domain.TransformDirect},
		{Name: "customer_name", Kind: domain.TransformDirect},
		{Name: "invoice_number", Kind: domain.TransformDirect},
		{Name: "payment_date", Kind: domain.TransformDate},
		{Name: "amount", Kind: domain.TransformCurrency},
		{Name: "payment_method", Kind: domain.TransformDirect},
		{Name: "reference_number", Kind: domain.TransformDirect},
		{Name: "notes", Kind: domain.TransformDirect},
	},
	domain.EntityExpenses: {
		{Name: "expense_number", Kind: domain.TransformDirect},
		{Name: "expense_category", Kind: domain.TransformDirect},
		{Name: "expense_date", Kind: domain.TransformDate},
		{Name: "amount", Kind: domain.TransformCurrency},
		{Name: "vendor", Kind: domain.TransformDirect},
		{Name: "notes", Kind: domain.TransformDirect},
	},
}

// TargetsFor returns the canonical target list for an entity type. Complete
// imports map against the union of all entity schemas.
func TargetsFor(entityType domain.EntityType) []TargetField {
	if entityType != domain.EntityComplete {
		return targetFields[entityType]
	}

	seen := map[string]struct{}{}
	var union []TargetField
	for _, et := range domain.StagedEntityTypes {
		for _, tf := range targetFields[et] {
			if _, ok := seen[tf.Name]; ok {
				continue
			}
			seen[tf.Name] = struct{}{}
			union = append(union, tf)
		}
	}
	return union
}

// KindFor returns the transformation kind registered for a target field,
// defaulting to direct for unknown fields (caller-supplied overrides).
func KindFor(entityType domain.EntityType, target string) domain.TransformationKind {
	for _, tf := range TargetsFor(entityType) {
		if tf.Name == target {
			return tf.Kind
		}
	}
	return domain.TransformDirect
}
