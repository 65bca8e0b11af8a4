// Package idempotency decides whether an order creation request is new, a
// replay of an earlier request, or a conflicting reuse of its key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
)

// Outcome is the guard's verdict for one request.
type Outcome string

const (
	OutcomeAdmitted  Outcome = "admitted"
	OutcomeDuplicate Outcome = "duplicate"
)

// Decision carries the verdict and, for duplicates, the order that already
// holds the key.
type Decision struct {
	Outcome Outcome
	OrderID uuid.UUID
}

// Duplicate reports whether the request replays an existing order.
func (d Decision) Duplicate() bool {
	return d.Outcome == OutcomeDuplicate
}

// Repository finds orders by their client-provided key.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByKey(ctx context.Context, key string) (*models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the order key lookup bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Select("id", "request_fingerprint").
		Where("client_provided_id = ?", key).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Guard admits order creation requests by idempotency key.
type Guard struct {
	repo Repository
}

// NewGuard wires a Guard over repo.
func NewGuard(repo Repository) (*Guard, error) {
	if repo == nil {
		return nil, fmt.Errorf("idempotency repository required")
	}
	return &Guard{repo: repo}, nil
}

// Admit checks key inside tx, or on the base connection when tx is nil. An
// empty key is always admitted. A key already used with the same fingerprint
// is a duplicate of that order; a different fingerprint is a conflict.
func (g *Guard) Admit(ctx context.Context, tx *gorm.DB, key, fingerprint string) (Decision, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Decision{Outcome: OutcomeAdmitted}, nil
	}

	existing, err := g.repo.WithTx(tx).FindByKey(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Decision{Outcome: OutcomeAdmitted}, nil
	}
	if err != nil {
		return Decision{}, pkgerrors.Internal(err, "lookup idempotency key")
	}
	if existing.RequestFingerprint != fingerprint {
		return Decision{}, pkgerrors.New(pkgerrors.CodeIdempotency, "duplicate idempotency key with different payload")
	}
	return Decision{Outcome: OutcomeDuplicate, OrderID: existing.ID}, nil
}

// Fingerprint hashes the canonical JSON encoding of v. Struct fields encode
// in declaration order and map keys sorted, so equal values hash equally.
func Fingerprint(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode fingerprint payload: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
