package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsedesk/errors"
	pdtest "github.com/teranos/pulsedesk/internal/testing"
	"github.com/teranos/pulsedesk/internal/util"
	"github.com/teranos/pulsedesk/ticket"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"15m", 15 * time.Minute},
		{"1h", time.Hour},
		{"2d", 48 * time.Hour},
	}
	for _, tt := range tests {
		got, err := ParsePeriod(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "1", "h", "0h", "-1h", "1w", "1.5h", " 1h", "99999999999999999999d"} {
		_, err := ParsePeriod(bad)
		assert.True(t, errors.IsInvalidRequestError(err), "%q", bad)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, AmountResult{State: StateOK, Count: 123456}, Classify(123456, "1h", Thresholds{}))

	res := Classify(6, "1h", Thresholds{MinWarning: util.Ptr(10), MinCritical: util.Ptr(8)})
	assert.Equal(t, StateCritical, res.State)
	assert.Equal(t, "The minimum of 8 was undercut by 6 in the last 1h", res.Message)

	res = Classify(9, "1h", Thresholds{MinWarning: util.Ptr(10), MinCritical: util.Ptr(8)})
	assert.Equal(t, StateWarning, res.State)
	assert.Equal(t, "The minimum of 10 was undercut by 9 in the last 1h", res.Message)

	res = Classify(12, "1h", Thresholds{MaxWarning: util.Ptr(10), MaxCritical: util.Ptr(20)})
	assert.Equal(t, StateWarning, res.State)
	assert.Equal(t, "The limit of 10 was exceeded with 12 in the last 1h", res.Message)

	res = Classify(21, "2d", Thresholds{MaxWarning: util.Ptr(10), MaxCritical: util.Ptr(20)})
	assert.Equal(t, StateCritical, res.State)
	assert.Equal(t, "The limit of 20 was exceeded with 21 in the last 2d", res.Message)

	res = Classify(0, "1h", Thresholds{MinCritical: util.Ptr(1), MaxCritical: util.Ptr(-1)})
	assert.Equal(t, StateCritical, res.State, "minimum wins over maximum")
	assert.Contains(t, res.Message, "minimum")

	res = Classify(10, "1h", Thresholds{MinWarning: util.Ptr(10), MaxWarning: util.Ptr(10)})
	assert.Equal(t, StateOK, res.State, "bounds are exclusive")
}

func TestAmountCheckerCountsWindow(t *testing.T) {
	ctx := context.Background()
	database := pdtest.CreateMigratedDB(t)
	tickets := ticket.NewStore(database, nil)
	for i, age := range []time.Duration{2 * time.Hour, 30 * time.Minute, 5 * time.Minute, 0} {
		tk := &ticket.Ticket{Number: string(rune('a' + i)), Title: "t"}
		require.NoError(t, tickets.Create(ctx, tk, 1, t0.Add(-age)))
	}
	require.NoError(t, tickets.Create(ctx, &ticket.Ticket{Number: "future", Title: "t"}, 1, t0.Add(time.Minute)))

	counter, err := NewTableCounter(database, "tickets")
	require.NoError(t, err)
	checker := NewAmountChecker(counter)

	res, err := checker.Check(ctx, "1h", Thresholds{MaxWarning: util.Ptr(2)}, t0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, StateWarning, res.State)

	_, err = checker.Check(ctx, "1x", Thresholds{}, t0)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = NewTableCounter(database, "settings")
	assert.True(t, errors.IsConfigurationError(err))
}

type brokenCounter struct{}

func (brokenCounter) CountCreated(context.Context, time.Time, time.Time) (int, error) {
	return 0, errors.New("database is closed")
}

func TestAmountCheckerCounterFailureIsTransient(t *testing.T) {
	_, err := NewAmountChecker(brokenCounter{}).Check(context.Background(), "1h", Thresholds{}, t0)
	assert.True(t, errors.IsTransientError(err))
}
