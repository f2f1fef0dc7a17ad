package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/reachy-remix/internal/robot"
)

// AssertPositionsInDelta asserts that two poses have the same motors and
// that each value is within delta.
func AssertPositionsInDelta(t *testing.T, expected, actual robot.Positions, delta float64) {
	t.Helper()

	require.Len(t, actual, len(expected), "motor count mismatch")
	for name, want := range expected {
		got, ok := actual[name]
		if !assert.True(t, ok, "motor %s missing", name) {
			continue
		}
		assert.InDelta(t, want, got, delta, "motor %s", name)
	}
}
