package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/formfill/internal/ats"
	"github.com/spigell/formfill/internal/store"
)

func TestRememberAndLookup(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	h := New(mem, nil)
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	_, ok, err := h.Lookup(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)

	result := &ats.Result{AttemptID: "a-1", Success: true, Platform: "greenhouse", State: ats.StateSubmitted}
	require.NoError(t, h.Remember(ctx, "job-1", result))

	rec, ok, err := h.Lookup(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a-1", rec.AttemptID)
	assert.Equal(t, "greenhouse", rec.Platform)
	assert.Equal(t, 2026, rec.SubmittedAt.Year())

	require.NoError(t, h.Forget(ctx, "job-1"))
	_, ok, err = h.Lookup(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRememberSkipsUnsubmitted(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	h := New(mem, nil)

	require.NoError(t, h.Remember(ctx, "dry", &ats.Result{Success: true, State: ats.StateFilled}))
	require.NoError(t, h.Remember(ctx, "failed", &ats.Result{Success: false, State: ats.StateFailed}))
	require.NoError(t, h.Remember(ctx, "nil", nil))

	assert.Equal(t, 0, mem.Len())
}

func TestCorruptEntryIsIgnored(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Put(ctx, "applied:job-2", []byte("{not json")))

	_, ok, err := New(mem, nil).Lookup(ctx, "job-2")
	require.NoError(t, err)
	assert.False(t, ok)
}
