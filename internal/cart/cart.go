package cart

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Line is one pending product in a user's cart. There is at most one Line
// per (user, product).
type Line struct {
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repository interface {
	Lines(ctx context.Context, userID string) ([]Line, error)
	// LockLines is Lines with the rows locked until the surrounding
	// transaction ends.
	LockLines(ctx context.Context, userID string) ([]Line, error)
	// Add creates the line or increases its quantity by qty.
	Add(ctx context.Context, userID, productID string, qty int) error
	// SetQuantity reports false when the line does not exist.
	SetQuantity(ctx context.Context, userID, productID string, qty int) (bool, error)
	// Remove reports false when the line does not exist.
	Remove(ctx context.Context, userID, productID string) (bool, error)
	Clear(ctx context.Context, userID string) error
	// ClearLines deletes only the named products' lines, leaving lines
	// added after a checkout took its snapshot.
	ClearLines(ctx context.Context, userID string, productIDs []string) error
}

// Fingerprint identifies the exact contents of a cart. Clients echo it back
// at checkout as the cart snapshot reference.
func Fingerprint(lines []Line) string {
	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	d := xxhash.New()
	for _, l := range sorted {
		_, _ = d.WriteString(l.ProductID)
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(strconv.Itoa(l.Quantity))
		_, _ = d.WriteString(";")
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
