// Package transaction provides a local handle on a server-side
// multi-statement transaction.
//
// The handle keeps no state beyond the id: committing twice issues two
// remote calls and the remote side decides whether that is legal.
package transaction

import "context"

// Services executes transaction outcomes on the remote side.
type Services interface {
	CommitTransaction(ctx context.Context, id string) error
	RollbackTransaction(ctx context.Context, id string) error
}

// Transaction identifies an open remote transaction.
type Transaction struct {
	id       string
	services Services
}

// New returns a handle on the remote transaction id. It is called by the
// transport once the remote side has opened the transaction.
func New(services Services, id string) *Transaction {
	return &Transaction{id: id, services: services}
}

// ID returns the transaction id.
func (t *Transaction) ID() string { return t.id }

// SetID points the handle at another transaction.
func (t *Transaction) SetID(id string) { t.id = id }

// Services returns the remote services the handle delegates to.
func (t *Transaction) Services() Services { return t.services }

// SetServices replaces the remote services.
func (t *Transaction) SetServices(s Services) { t.services = s }

// Commit asks the remote side to commit the transaction. Remote errors are
// returned as is.
func (t *Transaction) Commit(ctx context.Context) error {
	return t.services.CommitTransaction(ctx, t.id)
}

// Rollback asks the remote side to roll back the transaction. Remote
// errors are returned as is.
func (t *Transaction) Rollback(ctx context.Context) error {
	return t.services.RollbackTransaction(ctx, t.id)
}

func (t *Transaction) String() string { return t.id }
