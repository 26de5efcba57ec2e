package domain

// DuplicatePolicy is the configured strategy for rows whose values match an
// existing production record.
type DuplicatePolicy string

const (
	DuplicateSkip      DuplicatePolicy = "skip"
	DuplicateUpdate    DuplicatePolicy = "update"
	DuplicateCreateNew DuplicatePolicy = "create_new"
)

// Valid reports whether the policy is one the committer understands.
func (p DuplicatePolicy) Valid() bool {
	switch p {
	case DuplicateSkip, DuplicateUpdate, DuplicateCreateNew:
		return true
	}
	return false
}
