package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount_Shorthand(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"50rb", 50_000},
		{"50 rb", 50_000},
		{"10k", 10_000},
		{"2jt", 2_000_000},
		{"2.5jt", 2_500_000},
		{"2,5jt", 2_500_000},
		{"1juta", 1_000_000},
		{"0.5 juta", 500_000},
		{"kirim 75rb ke warung", 75_000},
		{"1.5k", 1_500},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAmount_Plain(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"Rp 50.000", 50_000},
		{"rp50.000", 50_000},
		{"50,000", 50_000},
		{"50000", 50_000},
		{"Rp 1.250.000", 1_250_000},
		{"  100  ", 100},
		{"IDR 25.000", 25_000},
		{"0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAmount_Unparseable(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"gratis",
		"Rp",
		"sepuluh ribu",
		"...,,,",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParseAmount(input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAmountUnparseable)
		})
	}
}

// The shorthand path takes priority over the plain path when both could
// match, mirroring how users actually write amounts ("10rb" should never be
// read as 10).
func TestParseAmount_ShorthandPriority(t *testing.T) {
	got, err := ParseAmount("Rp 10rb")
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), got)
}

func TestParseAmount_OverflowingDigitRun(t *testing.T) {
	_, err := ParseAmount("99999999999999999999999999")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmountUnparseable)
}
