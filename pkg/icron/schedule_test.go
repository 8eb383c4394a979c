package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfoDaily(t *testing.T) {
	ref := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 0 3 * * *", ref)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 3, 11, 3, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC), info.Last)
	assert.Equal(t, 15*time.Hour, info.TimeUntilNext)
	assert.Equal(t, 9*time.Hour, info.TimeSinceLast)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("@daily"))
	require.NoError(t, Validate("0 */5 * * * *"))
	require.Error(t, Validate("not a cron"))

	_, err := GetTriggerInfo("nope", time.Now())
	require.Error(t, err)
}
