package pricing_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/pricing"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{49900, "499.00"},
		{999000, "9990.00"},
		{0, "0.00"},
		{5, "0.05"},
		{199801, "1998.01"},
	}
	for _, tc := range cases {
		got, err := pricing.FormatAmount(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestFormatAmount_Negative(t *testing.T) {
	_, err := pricing.FormatAmount(-1)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidAmount))
}

func TestFormatDisplay(t *testing.T) {
	got, err := pricing.FormatDisplay(79900, "INR")
	require.NoError(t, err)
	assert.Equal(t, "₹799.00", got)

	got, err = pricing.FormatDisplay(1050, "USD")
	require.NoError(t, err)
	assert.Equal(t, "USD 10.50", got)
}
