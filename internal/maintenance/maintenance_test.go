package maintenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binsync-backend/internal/metrics"
	"binsync-backend/internal/repository"
	"binsync-backend/internal/store"
)

func newTestRunner() *Runner {
	agg := metrics.New(nil)
	repo := repository.New(store.NewMemory(), repository.Config{}, repository.WithMetrics(agg))
	return NewRunner(repo, agg)
}

func TestStartRejectsBadSpec(t *testing.T) {
	r := newTestRunner()
	assert.Error(t, r.Start("definitely not cron", "@every 1h"))

	r = newTestRunner()
	assert.Error(t, r.Start("@every 1h", "nope"))
}

func TestStartAndStop(t *testing.T) {
	r := newTestRunner()
	require.NoError(t, r.Start("@every 1h", "@every 1h"))
	r.Stop()
}
