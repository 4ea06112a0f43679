package status_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sathwikvintha/release-automation/internal/app/status"
	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config status.ServiceConfig
		expErr bool
	}{
		"valid config should create service": {
			config: status.ServiceConfig{
				Repository: &storagemock.MockStatusRepository{},
				Logger:     log.Noop,
			},
			expErr: false,
		},
		"missing repository should fail": {
			config: status.ServiceConfig{
				Logger: log.Noop,
			},
			expErr: true,
		},
		"nil logger should default to noop": {
			config: status.ServiceConfig{
				Repository: &storagemock.MockStatusRepository{},
			},
			expErr: false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			svc, err := status.NewService(test.config)

			if test.expErr {
				require.Error(err)
				require.Nil(svc)
			} else {
				require.NoError(err)
				require.NotNil(svc)
			}
		})
	}
}

func defaultSteps(modify map[string]model.StepStatus) []model.StepState {
	var steps []model.StepState
	for _, s := range model.KnownSteps() {
		st := model.StepStatusIdle
		if m, ok := modify[s]; ok {
			st = m
		}
		steps = append(steps, model.StepState{Step: s, Status: st})
	}
	return steps
}

func TestService_Run(t *testing.T) {
	tests := map[string]struct {
		mock      func(m *storagemock.MockStatusRepository)
		expResult func() *status.Response
	}{
		"a stored record should be returned with known steps in pipeline order": {
			mock: func(m *storagemock.MockStatusRepository) {
				rec := model.DefaultStatusRecord()
				rec[model.StepZip] = model.StepStatusFailed
				rec[model.StepAngular] = model.StepStatusSuccess
				m.On("Read", mock.Anything).Once().Return(rec, nil)
			},
			expResult: func() *status.Response {
				rec := model.DefaultStatusRecord()
				rec[model.StepZip] = model.StepStatusFailed
				rec[model.StepAngular] = model.StepStatusSuccess
				return &status.Response{
					Record: rec,
					Steps: defaultSteps(map[string]model.StepStatus{
						model.StepZip:     model.StepStatusFailed,
						model.StepAngular: model.StepStatusSuccess,
					}),
				}
			},
		},
		"steps outside the vocabulary should be listed after the known ones sorted": {
			mock: func(m *storagemock.MockStatusRepository) {
				rec := model.StatusRecord{
					"zeta":             model.StepStatusRunning,
					"attach":           model.StepStatusSuccess,
					model.StepCommit:   model.StepStatusIdle,
					model.StepSecurity: model.StepStatusFailed,
				}
				m.On("Read", mock.Anything).Once().Return(rec, nil)
			},
			expResult: func() *status.Response {
				return &status.Response{
					Record: model.StatusRecord{
						"zeta":             model.StepStatusRunning,
						"attach":           model.StepStatusSuccess,
						model.StepCommit:   model.StepStatusIdle,
						model.StepSecurity: model.StepStatusFailed,
					},
					Steps: []model.StepState{
						{Step: model.StepCommit, Status: model.StepStatusIdle},
						{Step: model.StepSecurity, Status: model.StepStatusFailed},
						{Step: "attach", Status: model.StepStatusSuccess},
						{Step: "zeta", Status: model.StepStatusRunning},
					},
				}
			},
		},
		"a repository error should return the default record": {
			mock: func(m *storagemock.MockStatusRepository) {
				m.On("Read", mock.Anything).Once().Return(nil, fmt.Errorf("corrupted file"))
			},
			expResult: func() *status.Response {
				return &status.Response{
					Record: model.DefaultStatusRecord(),
					Steps:  defaultSteps(nil),
				}
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := storagemock.NewMockStatusRepository(t)
			test.mock(m)

			svc, err := status.NewService(status.ServiceConfig{
				Repository: m,
				Logger:     log.Noop,
			})
			require.NoError(err)

			result, err := svc.Run(context.Background())
			require.NoError(err)
			assert.Equal(test.expResult(), result)
		})
	}
}
