package txn

import "context"

// Transactor runs fn inside a transaction. The transaction travels in the
// context handed to fn; repository calls made with that context join it.
// A nested WithinTx joins the outer transaction instead of opening a new one.
// fn returning an error rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
