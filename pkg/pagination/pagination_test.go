package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 5, 4, 3, 2, 1, 987654321, time.FixedZone("x", 3600)), ID: uuid.New()}
	encoded := EncodeCursor(in)
	require.NotContains(t, encoded, "=")
	require.NotContains(t, encoded, "/")

	out, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, time.UTC, out.CreatedAt.Location())
	require.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	cur, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, cur)

	for _, value := range []string{"%%%", "bm9waXBl", EncodeCursor(Cursor{})[:4]} {
		_, err := ParseCursor(value)
		require.Error(t, err, value)
	}
}

func TestLimitsAndTrim(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 11, LimitWithBuffer(10))

	rows, more := Trim([]int{1, 2, 3}, 2)
	require.Equal(t, []int{1, 2}, rows)
	require.True(t, more)

	rows, more = Trim([]int{1, 2}, 2)
	require.Len(t, rows, 2)
	require.False(t, more)
}
