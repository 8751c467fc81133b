// Package memory provides in-process implementations of the domain repositories.
// They are safe for concurrent use and hand out copies, never pointers into their maps.
package memory

// Store bundles one of each in-memory repository
type Store struct {
	Users        *UserRepository
	Categories   *CategoryRepository
	Transactions *TransactionRepository
	Budgets      *BudgetRepository
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		Users:        NewUserRepository(),
		Categories:   NewCategoryRepository(),
		Transactions: NewTransactionRepository(),
		Budgets:      NewBudgetRepository(),
	}
}

// removeID drops id from an insertion-order slice
func removeID(order []string, id string) []string {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
