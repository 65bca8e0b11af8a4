package idempotency

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore/pkg/db/dbtest"
	"github.com/angelmondragon/marketcore/pkg/db/models"
	"github.com/angelmondragon/marketcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
)

func seedOrder(t *testing.T, conn *gorm.DB, key, fingerprint string) models.Order {
	t.Helper()
	order := models.Order{
		PaymentMethod:      "cod",
		PaymentStatus:      enums.PaymentStatusUnpaid,
		Currency:           "USD",
		Subtotal:           decimal.NewFromInt(10),
		Total:              decimal.NewFromInt(10),
		Status:             enums.OrderStatusPending,
		ClientProvidedID:   &key,
		RequestFingerprint: fingerprint,
		Version:            1,
	}
	dbtest.Must(t, conn.Create(&order).Error)
	return order
}

func TestAdmit(t *testing.T) {
	conn := dbtest.Open(t)
	guard, err := NewGuard(NewRepository(conn))
	require.NoError(t, err)
	ctx := context.Background()
	existing := seedOrder(t, conn, "abc", "fp-1")

	decision, err := guard.Admit(ctx, conn, "", "anything")
	require.NoError(t, err)
	if decision.Outcome != OutcomeAdmitted {
		t.Fatalf("empty key should be admitted, got %s", decision.Outcome)
	}

	decision, err = guard.Admit(ctx, conn, "fresh", "fp-1")
	require.NoError(t, err)
	require.False(t, decision.Duplicate())

	decision, err = guard.Admit(ctx, conn, "abc", "fp-1")
	require.NoError(t, err)
	require.True(t, decision.Duplicate())
	require.Equal(t, existing.ID, decision.OrderID)

	_, err = guard.Admit(ctx, conn, "abc", "fp-2")
	if !pkgerrors.HasCode(err, pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestAdmitWithoutTransactionUsesBaseConnection(t *testing.T) {
	conn := dbtest.Open(t)
	guard, err := NewGuard(NewRepository(conn))
	require.NoError(t, err)
	existing := seedOrder(t, conn, "outside", "fp-1")

	decision, err := guard.Admit(context.Background(), nil, " outside ", "fp-1")
	require.NoError(t, err)
	require.True(t, decision.Duplicate())
	require.Equal(t, existing.ID, decision.OrderID)
}

func TestAdmitUsesTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	guard, err := NewGuard(NewRepository(conn))
	require.NoError(t, err)

	err = conn.Transaction(func(tx *gorm.DB) error {
		key := "in-tx"
		order := models.Order{
			ID:                 uuid.New(),
			PaymentMethod:      "cod",
			Currency:           "USD",
			Status:             enums.OrderStatusPending,
			PaymentStatus:      enums.PaymentStatusUnpaid,
			ClientProvidedID:   &key,
			RequestFingerprint: "fp",
			Version:            1,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		decision, err := guard.Admit(context.Background(), tx, key, "fp")
		if err != nil {
			return err
		}
		require.True(t, decision.Duplicate())
		require.Equal(t, order.ID, decision.OrderID)
		return nil
	})
	require.NoError(t, err)
}

func TestFingerprintIsStable(t *testing.T) {
	type payload struct {
		Items []int           `json:"items"`
		Total decimal.Decimal `json:"total"`
		Meta  map[string]any  `json:"meta"`
	}
	a, err := Fingerprint(payload{Items: []int{1, 2}, Total: decimal.RequireFromString("10.50"), Meta: map[string]any{"b": 1, "a": 2}})
	require.NoError(t, err)
	b, err := Fingerprint(payload{Items: []int{1, 2}, Total: decimal.RequireFromString("10.50"), Meta: map[string]any{"a": 2, "b": 1}})
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 64)

	c, err := Fingerprint(payload{Items: []int{2, 1}, Total: decimal.RequireFromString("10.50")})
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestNewGuardRequiresRepository(t *testing.T) {
	if _, err := NewGuard(nil); err == nil {
		t.Fatal("expected error for nil repository")
	}
}
