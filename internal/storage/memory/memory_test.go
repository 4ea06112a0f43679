package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/storage/memory"
)

func newRepo(t *testing.T) *memory.Repository {
	t.Helper()
	repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: log.Noop})
	require.NoError(t, err)
	return repo
}

func TestRepositoryStatus(t *testing.T) {
	tests := map[string]struct {
		actions func(ctx context.Context, t *testing.T, repo *memory.Repository)
	}{
		"Reading a cold store should return the default record": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) {
				got, err := repo.Read(ctx)
				require.NoError(t, err)
				assert.Equal(t, model.DefaultStatusRecord(), got)
			},
		},

		"Initializing should reset every known step to IDLE": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) {
				require.NoError(t, repo.Write(ctx, model.StepZip, model.StepStatusFailed))
				require.NoError(t, repo.Write(ctx, "attach", model.StepStatusSuccess))
				require.NoError(t, repo.Initialize(ctx))

				got, err := repo.Read(ctx)
				require.NoError(t, err)
				assert.Equal(t, model.DefaultStatusRecord(), got)
			},
		},

		"Writing a step should keep the other steps": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) {
				require.NoError(t, repo.Initialize(ctx))
				require.NoError(t, repo.Write(ctx, model.StepReport, model.StepStatusRunning))
				require.NoError(t, repo.Write(ctx, model.StepZip, model.StepStatusSuccess))

				got, err := repo.Read(ctx)
				require.NoError(t, err)
				exp := model.DefaultStatusRecord()
				exp[model.StepReport] = model.StepStatusRunning
				exp[model.StepZip] = model.StepStatusSuccess
				assert.Equal(t, exp, got)
			},
		},

		"Writing an unknown step should add it": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) {
				require.NoError(t, repo.Write(ctx, "attach", model.StepStatusRunning))

				got, err := repo.Read(ctx)
				require.NoError(t, err)
				assert.Equal(t, model.StepStatusRunning, got["attach"])
				assert.Len(t, got, len(model.KnownSteps())+1)
			},
		},

		"Writing an invalid status should fail": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) {
				err := repo.Write(ctx, model.StepZip, model.StepStatus("DONE"))
				assert.ErrorIs(t, err, model.ErrNotValid)
			},
		},

		"Mutating a read record should not change the store": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) {
				got, err := repo.Read(ctx)
				require.NoError(t, err)
				got[model.StepZip] = model.StepStatusFailed

				got2, err := repo.Read(ctx)
				require.NoError(t, err)
				assert.Equal(t, model.StepStatusIdle, got2[model.StepZip])
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test.actions(context.Background(), t, newRepo(t))
		})
	}
}

func TestRepositoryConcurrentWritesDontLoseUpdates(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	var wg sync.WaitGroup
	for _, s := range model.KnownSteps() {
		wg.Add(1)
		go func(step string) {
			defer wg.Done()
			_ = repo.Write(ctx, step, model.StepStatusSuccess)
		}(s)
	}
	wg.Wait()

	got, err := repo.Read(ctx)
	require.NoError(t, err)
	for _, s := range model.KnownSteps() {
		assert.Equal(t, model.StepStatusSuccess, got[s], s)
	}
}

func TestRepositoryRuns(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	repo := newRepo(t)

	now := time.Now().UTC()
	ids := []string{}
	for i := 0; i < 3; i++ {
		id := ulid.MustNew(ulid.Timestamp(now.Add(time.Duration(i)*time.Second)), ulid.DefaultEntropy()).String()
		ids = append(ids, id)
		require.NoError(repo.CreateRun(ctx, model.Run{ID: id, Step: model.StepReport, Status: model.StepStatusRunning, StartedAt: now}))
	}
	require.NoError(repo.CreateRun(ctx, model.Run{ID: ulid.Make().String(), Step: model.StepZip, Status: model.StepStatusRunning}))

	// Duplicates and unknown runs.
	assert.ErrorIs(repo.CreateRun(ctx, model.Run{ID: ids[0], Step: model.StepReport}), model.ErrAlreadyExists)
	assert.ErrorIs(repo.CompleteRun(ctx, model.Run{ID: "missing"}), model.ErrNotFound)
	assert.ErrorIs(repo.CreateRun(ctx, model.Run{Step: model.StepReport}), model.ErrNotValid)

	finished := now.Add(time.Minute)
	require.NoError(repo.CompleteRun(ctx, model.Run{ID: ids[2], Step: model.StepReport, Status: model.StepStatusSuccess, StartedAt: now, FinishedAt: &finished}))

	runs, err := repo.ListRuns(ctx, model.StepReport, 0)
	require.NoError(err)
	require.Len(runs, 3)
	assert.Equal(ids[2], runs[0].ID)
	assert.Equal(model.StepStatusSuccess, runs[0].Status)
	assert.Equal(ids[0], runs[2].ID)

	runs, err = repo.ListRuns(ctx, model.StepReport, 2)
	require.NoError(err)
	assert.Len(runs, 2)

	runs, err = repo.ListRuns(ctx, model.StepEmail, 0)
	require.NoError(err)
	assert.Empty(runs)
}
