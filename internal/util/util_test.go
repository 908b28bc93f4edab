package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	require.Equal(t, "+15551234567", NormalizePhone("whatsapp:+15551234567"))
	require.Equal(t, "+15551234567", NormalizePhone(" 1555 123 4567 "))
	require.Equal(t, "+15551234567", NormalizePhone("+15551234567"))
	require.Equal(t, "", NormalizePhone(""))
}

func TestSameUTCDay(t *testing.T) {
	a := time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC)
	b := time.Date(2026, 8, 30, 0, 1, 0, 0, time.UTC)
	require.False(t, SameUTCDay(a, b))
	require.True(t, SameUTCDay(a, a.Add(-time.Hour)))
}
