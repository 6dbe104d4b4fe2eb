package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/arena/internal/experiment"
	"github.com/zjrosen/arena/internal/statestore"
)

func TestReadStatus(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemory()

	s, err := ReadStatus(ctx, store)
	require.NoError(t, err)
	require.False(t, s.Running())
	require.Equal(t, "idle", s.String())

	require.NoError(t, store.Set(ctx, statestore.KeyExperimentName, "pogona_20210314T092653", time.Minute))
	require.NoError(t, store.Set(ctx, statestore.KeyTrialOn, "1", time.Minute))
	require.NoError(t, store.Set(ctx, statestore.KeyTrialPath, "/data/pogona/trial1", time.Minute))

	s, err = ReadStatus(ctx, store)
	require.NoError(t, err)
	require.True(t, s.Running())
	require.Equal(t, "/data/pogona/trial1", s.TrialPath)
	require.Equal(t, "pogona_20210314T092653: recording", s.String())

	require.NoError(t, store.Set(ctx, statestore.KeyAppOn, "1", time.Minute))
	s, err = ReadStatus(ctx, store)
	require.NoError(t, err)
	require.Equal(t, "pogona_20210314T092653: stimulus on", s.String())
}

func TestReadStatus_StoreError(t *testing.T) {
	_, err := ReadStatus(context.Background(), brokenStore{Store: statestore.NewMemory()})
	require.Error(t, err)
}

func TestRequestAbort_StopsRun(t *testing.T) {
	cfg := testConfig(t, func(p *experiment.Params) { p.TrialDuration = 30 })
	o, f := newTestOrchestrator(t, cfg, nil)

	when(t, func() bool { return o.Phase() == PhaseStimulus }, func() {
		_ = RequestAbort(context.Background(), f.store)
	})

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseAborted, o.Phase())
}

func TestEndStimulus_EndsWindowOnly(t *testing.T) {
	cfg := testConfig(t, func(p *experiment.Params) {
		p.NumTrials = 1
		p.TrialDuration = 30
	})
	o, f := newTestOrchestrator(t, cfg, nil)

	when(t, func() bool { return o.Phase() == PhaseStimulus }, func() {
		_ = EndStimulus(context.Background(), f.store)
	})

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseCompleted, o.Phase())
	require.Contains(t, f.out.String(), ">> Trial 1 Reward Bug catch")
}
