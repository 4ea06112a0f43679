package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sathwikvintha/release-automation/internal/app/history"
	"github.com/sathwikvintha/release-automation/internal/app/logs"
	"github.com/sathwikvintha/release-automation/internal/app/runstep"
	"github.com/sathwikvintha/release-automation/internal/model"
)

// RunStepResponse is the body of an accepted step run.
type RunStepResponse struct {
	Message string `json:"message"`
	RunID   string `json:"run_id"`
}

// LogsResponse is the body of a step log request.
type LogsResponse struct {
	Logs string `json:"logs"`
}

// Run is a step run as returned by the API.
type Run struct {
	ID         string     `json:"id"`
	Step       string     `json:"step"`
	Sink       string     `json:"sink"`
	Strategy   string     `json:"strategy"`
	Status     string     `json:"status"`
	ExitCode   int        `json:"exit_code"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunsResponse is the body of a step history request.
type RunsResponse struct {
	Runs  []Run `json:"runs"`
	Count int   `json:"count"`
}

func (s *Server) getStatus(c *gin.Context) {
	res, err := s.status.Run(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res.Record)
}

func (s *Server) runStepHandler(c *gin.Context) {
	inputs, err := decodeInputs(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	res, err := s.runStep.Run(c.Request.Context(), runstep.Request{
		Step:   c.Param("step"),
		Inputs: inputs,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, RunStepResponse{
		Message: fmt.Sprintf("%s started", res.Step),
		RunID:   res.RunID,
	})
}

// decodeInputs reads the optional JSON object of the request body. Scalar
// values are accepted and converted to their string form.
func decodeInputs(c *gin.Context) (model.StepInput, error) {
	body, err := c.GetRawData()
	if err != nil {
		return nil, fmt.Errorf("could not read body: %w", err)
	}
	if len(body) == 0 {
		return model.StepInput{}, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %s: %w", err, model.ErrNotValid)
	}

	inputs := make(model.StepInput, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case nil:
			inputs[k] = ""
		case string:
			inputs[k] = tv
		case bool:
			inputs[k] = strconv.FormatBool(tv)
		case float64:
			inputs[k] = strconv.FormatFloat(tv, 'f', -1, 64)
		default:
			return nil, fmt.Errorf("input %q must be a scalar value: %w", k, model.ErrNotValid)
		}
	}

	return inputs, nil
}

func (s *Server) getLogs(c *gin.Context) {
	res, err := s.logs.Run(c.Request.Context(), logs.Request{Step: c.Param("step")})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, LogsResponse{Logs: res.Logs})
}

func (s *Server) listRuns(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil {
			s.writeError(c, fmt.Errorf("invalid limit %q: %w", l, model.ErrNotValid))
			return
		}
		limit = v
	}

	runs, err := s.history.Run(c.Request.Context(), history.Request{Step: c.Param("step"), Limit: limit})
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := RunsResponse{Runs: make([]Run, 0, len(runs)), Count: len(runs)}
	for _, r := range runs {
		resp.Runs = append(resp.Runs, Run{
			ID:         r.ID,
			Step:       r.Step,
			Sink:       r.Sink,
			Strategy:   r.Strategy,
			Status:     string(r.Status),
			ExitCode:   r.ExitCode,
			Error:      r.Error,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) listJSONFiles(c *gin.Context) {
	files, err := s.artifacts.ListJSONFiles(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, files)
}

func (s *Server) download(c *gin.Context) {
	filename := c.Param("filename")
	p, err := s.artifacts.ResolveDownload(c.Request.Context(), filename)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.FileAttachment(p, filename)
}
