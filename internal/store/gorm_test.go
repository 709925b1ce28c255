package store

import (
	"context"
	"os"
	"testing"

	"slotbook/internal/database"
	"slotbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// openTestDB connects to TEST_DATABASE_URL and skips the test when unset
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Open(dsn, database.Options{MaxRetries: 1})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, db.Exec("DELETE FROM appointment").Error)
	return db
}

func TestGormStore_ActiveSlotIsUnique(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(openTestDB(t))

	id, err := s.Insert(ctx, newAppointment(monday, "09:00"))
	require.NoError(t, err)

	_, err = s.Insert(ctx, newAppointment(monday, "09:00"))
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.UpdateStatus(ctx, id, models.StatusPending, models.StatusCancelled)
	require.NoError(t, err)

	_, err = s.Insert(ctx, newAppointment(monday, "09:00"))
	assert.NoError(t, err)
}

func TestGormStore_ConditionalUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(openTestDB(t))

	id, err := s.Insert(ctx, newAppointment(monday, "10:00"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.MarkReminded(ctx, id), ErrStale)

	_, err = s.UpdateStatus(ctx, id, models.StatusPending, models.StatusConfirmed)
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, id, models.StatusPending, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrStale)

	claimed, err := s.ClaimReminder(ctx, id)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.ClaimReminder(ctx, id)
	require.NoError(t, err)
	assert.False(t, claimed, "a second claim loses")
	require.NoError(t, s.MarkReminded(ctx, id))

	due, err := s.FindDueReminders(ctx, monday, monday)
	require.NoError(t, err)
	assert.Empty(t, due)

	_, err = s.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}
