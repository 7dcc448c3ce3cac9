// Package store archives generated SBOMs.
//
// [MongoStore] keeps documents in a MongoDB collection for `cppsbom scan
// --archive` and the HTTP server. [MemoryStore] backs tests and a server
// started without a database.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

// Record is one archived SBOM.
type Record struct {
	ID             string    `json:"id"`
	Project        string    `json:"project"`
	CreatedAt      time.Time `json:"createdAt"`
	ComponentCount int       `json:"componentCount"`
	Strategies     []string  `json:"strategies"`
	Format         string    `json:"format"`

	// Document is the serialized SBOM. List leaves it empty.
	Document []byte `json:"-"`
}

// Store persists records. Implementations must be safe for concurrent use.
type Store interface {
	// Save stores rec, assigning ID and CreatedAt when they are unset.
	Save(ctx context.Context, rec *Record) error

	// Get returns the record with the given ID or a NOT_FOUND error.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns up to limit records, newest first, without documents.
	List(ctx context.Context, limit int) ([]Record, error)

	Close() error
}

// prepare fills the generated fields of rec.
func prepare(rec *Record, now func() time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now().UTC()
	}
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
