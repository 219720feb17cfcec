package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDisplayNumberFor_Deterministic(t *testing.T) {
	id := uuid.MustParse("3f2a9c1d-44be-4f6a-9c0d-1a2b3c4d5e6f")

	got := DisplayNumberFor(id)
	assert.Equal(t, "AM-3F2A9C1D44BE", got)
	assert.Equal(t, got, DisplayNumberFor(id))
	assert.LessOrEqual(t, len(got), 20)
}

func TestDisplayNumberFor_DistinguishesBeyondLeadingWord(t *testing.T) {
	// Ids sharing the first four bytes must still map to distinct numbers,
	// since display_number carries a unique index.
	a := uuid.MustParse("3f2a9c1d-0000-4f6a-9c0d-1a2b3c4d5e6f")
	b := uuid.MustParse("3f2a9c1d-ffff-4f6a-9c0d-1a2b3c4d5e6f")

	assert.NotEqual(t, DisplayNumberFor(a), DisplayNumberFor(b))
}

func TestSnapshotTotal(t *testing.T) {
	order := &Order{Items: []OrderItem{
		{LineTotal: 2000},
		{LineTotal: 3000},
	}}
	assert.Equal(t, 5000, order.SnapshotTotal())
	assert.Equal(t, 0, (&Order{}).SnapshotTotal())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, (&Order{Status: OrderStatusPending}).IsTerminal())
	assert.True(t, (&Order{Status: OrderStatusPaid}).IsTerminal())
	assert.True(t, (&Order{Status: OrderStatusFailed}).IsTerminal())
	assert.True(t, (&Order{Status: OrderStatusCanceled}).IsTerminal())
	assert.True(t, (&Order{Status: OrderStatusRefunded}).IsTerminal())
}
