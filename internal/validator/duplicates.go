package validator

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/repository"
)

// customerRefCache holds the company's customer list for one validation
// pass. Per pass, not on the Validator: runs validate concurrently.
type customerRefCache struct {
	loaded bool
	refs   []repository.CustomerRef
}

// detectDuplicate checks transformed values against production data using
// the ordered match-field list for the entity. The first hit wins.
func (v *Validator) detectDuplicate(ctx context.Context, run domain.ImportRun, entityType domain.EntityType, values map[string]string, refs *customerRefCache) (*domain.DuplicateInfo, error) {
	switch entityType {
	case domain.EntityCustomers:
		return v.detectCustomerDuplicate(ctx, run, values, refs)
	case domain.EntityInvoices:
		return v.detectInvoiceDuplicate(ctx, run, values)
	case domain.EntityItems:
		return v.detectItemDuplicate(ctx, run, values)
	}
	// Payments and expenses carry no natural key worth matching on.
	return &domain.DuplicateInfo{Exists: false}, nil
}

// Customers match on email, then tax id, then fuzzy name containment.
func (v *Validator) detectCustomerDuplicate(ctx context.Context, run domain.ImportRun, values map[string]string, cache *customerRefCache) (*domain.DuplicateInfo, error) {
	if email := values["email"]; email != "" {
		existing, err := v.production.FindCustomerByEmail(ctx, run.CompanyID, email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &domain.DuplicateInfo{
				Exists:       true,
				MatchField:   "email",
				ExistingID:   &existing.ID,
				ExistingName: existing.Name,
			}, nil
		}
	}

	if taxID := values["tax_id"]; taxID != "" {
		existing, err := v.production.FindCustomerByTaxID(ctx, run.CompanyID, taxID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &domain.DuplicateInfo{
				Exists:       true,
				MatchField:   "tax_id",
				ExistingID:   &existing.ID,
				ExistingName: existing.Name,
			}, nil
		}
	}

	if name := values["name"]; name != "" {
		refs, err := v.customerRefs(ctx, run.CompanyID, cache)
		if err != nil {
			return nil, err
		}
		if ref := fuzzyNameMatch(name, refs); ref != nil {
			return &domain.DuplicateInfo{
				Exists:       true,
				MatchField:   "name",
				ExistingID:   &ref.ID,
				ExistingName: ref.Name,
				FuzzyMatch:   true,
			}, nil
		}
	}

	return &domain.DuplicateInfo{Exists: false}, nil
}

func (v *Validator) detectInvoiceDuplicate(ctx context.Context, run domain.ImportRun, values map[string]string) (*domain.DuplicateInfo, error) {
	number := values["invoice_number"]
	if number == "" {
		return &domain.DuplicateInfo{Exists: false}, nil
	}
	existing, err := v.production.FindInvoiceByNumber(ctx, run.CompanyID, number)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return &domain.DuplicateInfo{Exists: false}, nil
	}
	return &domain.DuplicateInfo{
		Exists:       true,
		MatchField:   "invoice_number",
		ExistingID:   &existing.ID,
		ExistingName: existing.InvoiceNumber,
	}, nil
}

// Items match on SKU first, exact name second.
func (v *Validator) detectItemDuplicate(ctx context.Context, run domain.ImportRun, values map[string]string) (*domain.DuplicateInfo, error) {
	if sku := values["sku"]; sku != "" {
		existing, err := v.production.FindItemBySKU(ctx, run.CompanyID, sku)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &domain.DuplicateInfo{
				Exists:       true,
				MatchField:   "sku",
				ExistingID:   &existing.ID,
				ExistingName: existing.Name,
			}, nil
		}
	}

	if name := values["name"]; name != "" {
		existing, err := v.production.FindItemByName(ctx, run.CompanyID, name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &domain.DuplicateInfo{
				Exists:       true,
				MatchField:   "name",
				ExistingID:   &existing.ID,
				ExistingName: existing.Name,
			}, nil
		}
	}

	return &domain.DuplicateInfo{Exists: false}, nil
}

// customerRefs loads the company's customer list once per validation pass;
// the fuzzy matcher touches it once per row.
func (v *Validator) customerRefs(ctx context.Context, companyID uuid.UUID, cache *customerRefCache) ([]repository.CustomerRef, error) {
	if cache.loaded {
		return cache.refs, nil
	}
	refs, err := v.production.ListCustomerRefs(ctx, companyID)
	if err != nil {
		return nil, err
	}
	cache.loaded = true
	cache.refs = refs
	return refs, nil
}

// fuzzyNameMatch finds an existing customer whose name contains, is
// contained by, or fuzzily matches the candidate, case and diacritic folded.
func fuzzyNameMatch(name string, refs []repository.CustomerRef) *repository.CustomerRef {
	candidate := strings.ToLower(strings.TrimSpace(name))
	if candidate == "" {
		return nil
	}
	for i := range refs {
		existing := strings.ToLower(refs[i].Name)
		if existing == "" {
			continue
		}
		if existing == candidate ||
			strings.Contains(existing, candidate) ||
			strings.Contains(candidate, existing) {
			return &refs[i]
		}
		if fuzzy.RankMatchNormalizedFold(candidate, existing) >= 0 &&
			len(candidate) >= 5 && abs(len(existing)-len(candidate)) <= 3 {
			return &refs[i]
		}
	}
	return nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
