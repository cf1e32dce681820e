package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDecimalCents(t *testing.T) {
	t.Run("valid values", func(t *testing.T) {
		cases := map[string]int64{
			"0.01":    1,
			"5,1":     510,
			"1":       100,
			"1,":      100,
			"1.12":    112,
			"2,5":     250,
			"1234.56": 123456,
		}
		for in, want := range cases {
			got, err := ParseDecimalCents(in)
			assert.NoError(t, err, "input %q", in)
			assert.Equal(t, want, got, "input %q", in)
		}
	})

	t.Run("rejected values", func(t *testing.T) {
		for _, in := range []string{"0.001", "1.123", "5€", "-5.14,", "", "abc", "1,234.56"} {
			_, err := ParseDecimalCents(in)
			assert.Error(t, err, "input %q", in)
		}
	})
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "1.11", FormatCents(111))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "-2.50", FormatCents(-250))
}

func TestMulChecked(t *testing.T) {
	total, err := MulChecked(111, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(222), total)

	_, err = MulChecked(math.MaxInt64, 2)
	assert.ErrorIs(t, err, ErrOverflow)

	total, err = MulChecked(0, 50)
	assert.NoError(t, err)
	assert.Zero(t, total)
}

func TestAddChecked(t *testing.T) {
	sum, err := AddChecked(100, 23)
	assert.NoError(t, err)
	assert.Equal(t, int64(123), sum)

	_, err = AddChecked(math.MaxInt64, 1)
	assert.ErrorIs(t, err, ErrOverflow)
}
