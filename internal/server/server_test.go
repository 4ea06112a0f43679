package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sathwikvintha/release-automation/internal/app/artifacts"
	"github.com/sathwikvintha/release-automation/internal/app/history"
	"github.com/sathwikvintha/release-automation/internal/app/logs"
	"github.com/sathwikvintha/release-automation/internal/app/runstep"
	"github.com/sathwikvintha/release-automation/internal/app/status"
	"github.com/sathwikvintha/release-automation/internal/logsink"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/server"
	"github.com/sathwikvintha/release-automation/internal/step"
	"github.com/sathwikvintha/release-automation/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testStrategy echoes the inputs and blocks while the "hold" input is set and
// the release channel is open.
type testStrategy struct {
	release chan struct{}
}

func (testStrategy) Kind() string { return "test" }
func (s testStrategy) Execute(ctx context.Context, in model.StepInput, out step.Output) model.ExecutionResult {
	_ = out.WriteLine("release " + in.Get("releaseVersion"))
	if in.Get("hold") != "" {
		<-s.release
	}
	return model.ExecutionResult{}
}

type testEnv struct {
	handler    http.Handler
	dispatcher *step.Dispatcher
	repo       *memory.Repository
	outDir     string
	release    chan struct{}
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	require := require.New(t)

	release := make(chan struct{})
	strategy := testStrategy{release: release}

	reg, err := step.NewRegistry(func(string) step.Definition {
		return step.Definition{Strategy: strategy}
	})
	require.NoError(err)
	require.NoError(reg.Register(step.Definition{Name: model.StepStaasStatus, Sink: "staas", Strategy: strategy}))

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)
	require.NoError(repo.Initialize(context.TODO()))

	sinks, err := logsink.NewManager(t.TempDir(), 0)
	require.NoError(err)

	d, err := step.NewDispatcher(step.DispatcherConfig{
		Registry:         reg,
		StatusRepository: repo,
		RunRepository:    repo,
		Sinks:            sinks,
	})
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
		cancel()
		<-done
	})

	runSvc, err := runstep.NewService(runstep.ServiceConfig{Dispatcher: d})
	require.NoError(err)
	statusSvc, err := status.NewService(status.ServiceConfig{Repository: repo})
	require.NoError(err)
	logsSvc, err := logs.NewService(logs.ServiceConfig{Reader: sinks, Resolver: reg})
	require.NoError(err)
	historySvc, err := history.NewService(history.ServiceConfig{Repository: repo})
	require.NoError(err)

	root := t.TempDir()
	jsonDir := filepath.Join(root, "json_files")
	outDir := filepath.Join(root, "output")
	require.NoError(os.MkdirAll(jsonDir, 0o755))
	require.NoError(os.MkdirAll(outDir, 0o755))
	require.NoError(os.WriteFile(filepath.Join(jsonDir, "r1.json"), []byte("{}"), 0o644))
	require.NoError(os.WriteFile(filepath.Join(outDir, "Release.docx"), []byte("document"), 0o644))
	artifactsSvc, err := artifacts.NewService(artifacts.ServiceConfig{JSONDir: jsonDir, OutputDir: outDir})
	require.NoError(err)

	templatesDir := filepath.Join(root, "templates")
	require.NoError(os.MkdirAll(templatesDir, 0o755))
	require.NoError(os.WriteFile(filepath.Join(templatesDir, "dashboard.html"), []byte("<h1>Release</h1>"), 0o644))

	srv, err := server.New(server.Config{
		RunStep:      runSvc,
		Status:       statusSvc,
		Logs:         logsSvc,
		History:      historySvc,
		Artifacts:    artifactsSvc,
		TemplatesDir: templatesDir,
	})
	require.NoError(err)

	return testEnv{
		handler:    srv.Handler(),
		dispatcher: d,
		repo:       repo,
		outDir:     outDir,
		release:    release,
	}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := do(env.handler, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.repo.Write(context.TODO(), model.StepZip, model.StepStatusFailed))

	w1 := do(env.handler, http.MethodGet, "/status", "")
	w2 := do(env.handler, http.MethodGet, "/status", "")

	require.Equal(t, http.StatusOK, w1.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(w1.Body.Bytes(), &got))
	assert.Equal(t, "FAILED", got[model.StepZip])
	assert.Equal(t, "IDLE", got[model.StepAngular])
	assert.Equal(t, w1.Body.String(), w2.Body.String())
}

func TestRunStepEndpoint(t *testing.T) {
	tests := map[string]struct {
		path       string
		body       string
		expCode    int
		expMessage string
	}{
		"a step with inputs should be accepted": {
			path:       "/run/zip",
			body:       `{"releaseVersion": "26.1", "baseDir": "/out"}`,
			expCode:    http.StatusAccepted,
			expMessage: "zip started",
		},
		"a step without body should be accepted": {
			path:       "/run/attach",
			expCode:    http.StatusAccepted,
			expMessage: "attach started",
		},
		"scalar inputs should be accepted": {
			path:       "/run/report",
			body:       `{"versionNumber": 1.5, "draft": true, "subtitle": null}`,
			expCode:    http.StatusAccepted,
			expMessage: "report started",
		},
		"an invalid JSON body should be rejected": {
			path:    "/run/zip",
			body:    `{"releaseVersion":`,
			expCode: http.StatusBadRequest,
		},
		"a nested input should be rejected": {
			path:    "/run/zip",
			body:    `{"releaseVersion": {"major": 26}}`,
			expCode: http.StatusBadRequest,
		},
		"an invalid step name should be rejected": {
			path:    "/run/bad%20step",
			expCode: http.StatusBadRequest,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			env := newTestEnv(t)
			w := do(env.handler, http.MethodPost, test.path, test.body)

			assert.Equal(test.expCode, w.Code)
			if test.expCode != http.StatusAccepted {
				var resp server.ErrorResponse
				require.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(test.expCode, resp.Status)
				assert.NotEmpty(resp.Error)
				return
			}

			var resp server.RunStepResponse
			require.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(test.expMessage, resp.Message)
			assert.NotEmpty(resp.RunID)
		})
	}
}

func TestRunStepEndpointAlreadyRunning(t *testing.T) {
	env := newTestEnv(t)

	w := do(env.handler, http.MethodPost, "/run/angular", `{"hold": "yes"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = do(env.handler, http.MethodPost, "/run/angular", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(env.release)
	env.dispatcher.Wait()

	w = do(env.handler, http.MethodPost, "/run/angular", `{}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestLogsAndRunsEndpoints(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	env := newTestEnv(t)

	w := do(env.handler, http.MethodGet, "/logs/staas-status", "")
	require.Equal(http.StatusOK, w.Code)
	assert.JSONEq(`{"logs": ""}`, w.Body.String())

	w = do(env.handler, http.MethodPost, "/run/staas-status", `{"releaseVersion": "R26"}`)
	require.Equal(http.StatusAccepted, w.Code)
	env.dispatcher.Wait()

	// Both the step and its shared log name return the same content.
	for _, name := range []string{"staas-status", "staas"} {
		w = do(env.handler, http.MethodGet, "/logs/"+name, "")
		require.Equal(http.StatusOK, w.Code)
		var resp server.LogsResponse
		require.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal("release R26\n", resp.Logs)
	}

	w = do(env.handler, http.MethodGet, "/runs/staas-status?limit=5", "")
	require.Equal(http.StatusOK, w.Code)
	var runs server.RunsResponse
	require.NoError(json.Unmarshal(w.Body.Bytes(), &runs))
	require.Equal(1, runs.Count)
	assert.Equal("SUCCESS", runs.Runs[0].Status)
	assert.Equal("staas", runs.Runs[0].Sink)
	assert.NotNil(runs.Runs[0].FinishedAt)
	assert.WithinDuration(time.Now(), runs.Runs[0].StartedAt, time.Minute)

	w = do(env.handler, http.MethodGet, "/runs/staas-status?limit=many", "")
	assert.Equal(http.StatusBadRequest, w.Code)
}

func TestArtifactEndpoints(t *testing.T) {
	tests := map[string]struct {
		path    string
		expCode int
		expBody string
	}{
		"json files should be listed": {
			path:    "/json-files",
			expCode: http.StatusOK,
			expBody: `["r1.json"]`,
		},
		"an existing document should be downloaded": {
			path:    "/download/Release.docx",
			expCode: http.StatusOK,
			expBody: "document",
		},
		"a missing document should not be found": {
			path:    "/download/missing.docx",
			expCode: http.StatusNotFound,
		},
		"an escaped traversal should be rejected": {
			path:    "/download/..%5Csecret.txt",
			expCode: http.StatusBadRequest,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)

			w := do(env.handler, http.MethodGet, test.path, "")

			assert.Equal(t, test.expCode, w.Code)
			if test.expBody != "" {
				assert.Equal(t, test.expBody, strings.TrimSpace(w.Body.String()))
			}
		})
	}
}

func TestDashboardPages(t *testing.T) {
	tests := map[string]struct {
		path    string
		expCode int
		expBody string
	}{
		"the dashboard page should be served at the root": {
			path:    "/",
			expCode: http.StatusOK,
			expBody: "<h1>Release</h1>",
		},
		"a missing page should not be found": {
			path:    "/staas",
			expCode: http.StatusNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)

			w := do(env.handler, http.MethodGet, test.path, "")

			assert.Equal(t, test.expCode, w.Code)
			if test.expBody != "" {
				assert.Equal(t, test.expBody, w.Body.String())
				assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
			}
		})
	}
}
