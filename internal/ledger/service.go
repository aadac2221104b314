package ledger

// Service bundles the ledger components that share one store and one set of
// options. Transports and commands depend on it rather than wiring each
// component themselves.
type Service struct {
	Accounts   *AccountDirectory
	Posting    *PostingEngine
	Journals   *JournalService
	Reports    *Reports
	Reconciler *Reconciler
	Validator  *Validator
}

// NewService creates the ledger services backed by store.
func NewService(store Store, opts Options) *Service {
	opts = opts.withDefaults()
	engine := NewPostingEngine(store, opts)
	return &Service{
		Accounts:   NewAccountDirectory(store, opts),
		Posting:    engine,
		Journals:   NewJournalService(store, engine, opts),
		Reports:    NewReports(store, opts),
		Reconciler: NewReconciler(store, opts),
		Validator:  NewValidator(store, opts),
	}
}
