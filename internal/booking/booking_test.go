package booking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBookingTotalsFares(t *testing.T) {
	b, err := NewBooking("agt_1", "ABC123", "LHR", "JFK", "USD", []Passenger{
		{FirstName: "Ada", LastName: "Lovelace", FareAmount: "350.00", TaxAmount: "42.50"},
		{FirstName: "Alan", LastName: "Turing", FareAmount: "350.00", TaxAmount: "42.50"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, "785.00", b.TotalFare)
	assert.NotEmpty(t, b.Passengers[0].ID)
	assert.NotEmpty(t, b.Passengers[1].ID)
}

func TestNewBookingRejectsEmptyAndBadFares(t *testing.T) {
	_, err := NewBooking("agt_1", "ABC123", "", "", "USD", nil)
	assert.ErrorIs(t, err, ErrNoPassengers)

	_, err = NewBooking("agt_1", "ABC123", "", "", "USD", []Passenger{
		{FirstName: "Ada", LastName: "Lovelace", FareAmount: "oops", TaxAmount: "0.00"},
	})
	assert.Error(t, err)
}

func TestUpdateStatusIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	b, err := NewBooking("agt_1", "ABC123", "LHR", "JFK", "USD", []Passenger{
		{FirstName: "Ada", LastName: "Lovelace", FareAmount: "100.00", TaxAmount: "10.00"},
	})
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, b))

	require.NoError(t, store.UpdateStatus(ctx, b.ID, StatusConfirmed, StatusTicketed))

	err = store.UpdateStatus(ctx, b.ID, StatusConfirmed, StatusTicketed)
	assert.ErrorIs(t, err, ErrInvalidState)

	got, err := store.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTicketed, got.Status)
}
