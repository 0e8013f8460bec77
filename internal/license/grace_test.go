package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/shared/testutil"
)

var graceCfg = GraceConfig{WarningThresholdDays: 3}

func validatedAt(t time.Time) OfflineState {
	return UpdateLastOnlineValidation(OfflineState{}, t)
}

func TestGetGracePeriodStatusStates(t *testing.T) {
	now := testutil.Epoch

	t.Run("online", func(t *testing.T) {
		st := GetGracePeriodStatus(validatedAt(now), graceCfg, now)
		assert.True(t, st.IsValid)
		assert.False(t, st.InGracePeriod)
		assert.Equal(t, WarningNone, st.WarningLevel)
		assert.Equal(t, "validated online", st.Message)
	})

	t.Run("offline never validated", func(t *testing.T) {
		st := GetGracePeriodStatus(GoOffline(OfflineState{}), graceCfg, now)
		assert.False(t, st.IsValid)
		assert.True(t, st.NeverValidated)
		assert.Equal(t, WarningExpired, st.WarningLevel)
		assert.Equal(t, "never validated online", st.Message)
	})

	t.Run("offline before grace starts", func(t *testing.T) {
		st := GetGracePeriodStatus(GoOffline(validatedAt(now)), graceCfg, now)
		assert.True(t, st.IsValid)
		assert.False(t, st.InGracePeriod)
		assert.Equal(t, WarningNone, st.WarningLevel)
	})

	t.Run("grace expired is distinct from never validated", func(t *testing.T) {
		s := StartGracePeriod(validatedAt(now), TypeTrial, now)
		st := GetGracePeriodStatus(s, graceCfg, now.Add(testutil.Days(3)))
		assert.False(t, st.IsValid)
		assert.False(t, st.NeverValidated)
		assert.Equal(t, WarningExpired, st.WarningLevel)
		assert.NotEqual(t, "never validated online", st.Message)
	})
}

func TestGracePeriodLevels(t *testing.T) {
	start := testutil.Epoch
	s := StartGracePeriod(validatedAt(start.Add(-time.Hour)), TypeProfessional, start)
	require.Equal(t, 14, s.GracePeriodDays)

	tests := []struct {
		name      string
		elapsed   time.Duration
		level     WarningLevel
		remaining int
		valid     bool
	}{
		{"at start", 0, WarningNone, 14, true},
		{"ten days left", testutil.Days(4), WarningNone, 10, true},
		{"three days left", testutil.Days(11), WarningWarning, 3, true},
		{"just over a day left", testutil.Days(13) - time.Minute, WarningWarning, 2, true},
		{"exactly a day left", testutil.Days(13), WarningCritical, 1, true},
		{"one second left", testutil.Days(14) - time.Second, WarningCritical, 1, true},
		{"at the end", testutil.Days(14), WarningExpired, 0, false},
		{"long after", testutil.Days(40), WarningExpired, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := GetGracePeriodStatus(s, graceCfg, start.Add(tt.elapsed))
			assert.Equal(t, tt.level, st.WarningLevel)
			assert.Equal(t, tt.remaining, st.RemainingDays)
			assert.Equal(t, tt.valid, st.IsValid)
			assert.True(t, st.InGracePeriod)
			require.NotNil(t, st.GraceEndsAt)
			assert.Equal(t, start.Add(testutil.Days(14)), *st.GraceEndsAt)
		})
	}
}

func TestZeroDayGraceIsImmediatelyExpired(t *testing.T) {
	now := testutil.Epoch
	s := StartGracePeriod(validatedAt(now), TypeTrial, now)
	s.GracePeriodDays = 0

	st := GetGracePeriodStatus(s, graceCfg, now)
	assert.Equal(t, WarningExpired, st.WarningLevel)
	assert.False(t, st.IsValid)
}

func TestGraceRemainingDaysAtStart(t *testing.T) {
	now := testutil.Epoch
	for _, typ := range []Type{TypeTrial, TypeStandard, TypeProfessional, TypeEnterprise} {
		s := StartGracePeriod(validatedAt(now), typ, now)
		st := GetGracePeriodStatus(s, GraceConfig{}, now)
		assert.Equal(t, GracePeriodDays(typ), st.RemainingDays, string(typ))
	}
}

func TestStartGracePeriodKeepsRunningWindow(t *testing.T) {
	start := testutil.Epoch
	s := StartGracePeriod(validatedAt(start), TypeTrial, start)

	later := start.Add(time.Hour)
	again := StartGracePeriod(s, TypeEnterprise, later)

	assert.Equal(t, 3, again.GracePeriodDays, "grace length is fixed when grace starts")
	assert.Equal(t, start, *again.GraceStartedAt)
	assert.True(t, again.IsOffline)
}

func TestTransitionsDoNotMutateInput(t *testing.T) {
	now := testutil.Epoch
	base := validatedAt(now)

	started := StartGracePeriod(base, TypeStandard, now)
	assert.Nil(t, base.GraceStartedAt)
	assert.False(t, base.IsOffline)

	checked := RecordOfflineCheck(started, now.Add(time.Minute))
	assert.Equal(t, 0, started.OfflineChecks)
	assert.Nil(t, started.LastOfflineCheck)
	assert.Equal(t, 1, checked.OfflineChecks)
	assert.Equal(t, now.Add(time.Minute), *checked.LastOfflineCheck)
}

func TestEndGracePeriodIsIdempotent(t *testing.T) {
	now := testutil.Epoch
	s := StartGracePeriod(validatedAt(now), TypeStandard, now)

	ended := EndGracePeriod(s, now.Add(time.Hour))
	assert.False(t, ended.IsOffline)
	assert.Nil(t, ended.GraceStartedAt)
	assert.Equal(t, now.Add(time.Hour), *ended.LastOnlineValidation)

	again := EndGracePeriod(ended, now.Add(2*time.Hour))
	assert.Equal(t, ended, again)
	assert.Nil(t, again.GraceStartedAt)
}

func TestGraceStartedImpliesOffline(t *testing.T) {
	now := testutil.Epoch
	s := validatedAt(now)
	steps := []func(OfflineState) OfflineState{
		func(s OfflineState) OfflineState { return StartGracePeriod(s, TypeTrial, now) },
		func(s OfflineState) OfflineState { return RecordOfflineCheck(s, now) },
		func(s OfflineState) OfflineState { return EndGracePeriod(s, now) },
		func(s OfflineState) OfflineState { return GoOffline(s) },
		func(s OfflineState) OfflineState { return StartGracePeriod(s, TypeTrial, now) },
		func(s OfflineState) OfflineState { return UpdateLastOnlineValidation(s, now) },
	}
	for _, step := range steps {
		s = step(s)
		if s.GraceStartedAt != nil {
			assert.True(t, s.IsOffline)
		}
	}
}
