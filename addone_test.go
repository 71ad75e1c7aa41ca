package addone

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dandyvica/wasm-add-one/internal/testing/hammer"
)

func TestAddOne(t *testing.T) {
	for _, c := range []struct {
		name     string
		input    uint32
		expected uint32
	}{
		{name: "zero", input: 0, expected: 1},
		{name: "one", input: 1, expected: 2},
		{name: "i32 sign bit", input: math.MaxInt32, expected: 1 << 31},
		{name: "below max", input: math.MaxUint32 - 1, expected: math.MaxUint32},
		{name: "max wraps", input: math.MaxUint32, expected: 0},
	} {
		tc := c
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, AddOne(tc.input))
		})
	}
}

func TestAddOne_Accumulates(t *testing.T) {
	x := uint32(10)
	once := AddOne(x)
	twice := AddOne(once)
	require.Equal(t, x+1, once)
	require.Equal(t, x+2, twice)
	require.NotEqual(t, once, twice)

	// Starting two below max, the third application wraps through zero.
	x = math.MaxUint32 - 1
	for i := 0; i < 3; i++ {
		x = AddOne(x)
	}
	require.Equal(t, uint32(1), x)
}

func TestAddOne_Sampled(t *testing.T) {
	// Walk [0, MaxUint32-1] with a prime stride so every bit pattern region is visited.
	const stride = 65521
	for x := uint64(0); x < math.MaxUint32; x += stride {
		require.Equal(t, uint32(x+1), AddOne(uint32(x)))
	}
}

func TestAddOne_Concurrent(t *testing.T) {
	P := 8
	N := 1000
	if testing.Short() {
		P = 4
		N = 100
	}

	hammer.NewHammer(t, P, N).Run(func(p, n int) {
		x := uint32(p*N + n)
		require.Equal(t, x+1, AddOne(x))
		require.Equal(t, uint32(0), AddOne(math.MaxUint32))
	}, nil)
}
