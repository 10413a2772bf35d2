// Package api serves the remote executor endpoints: sub-flow runs handed
// over by subflow nodes, and read access to persisted results. Handlers
// are thin wiring around the executor, flowfile and resultstore packages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo"
	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/executor"
	"github.com/specialistvlad/flowbridge/internal/flowfile"
	"github.com/specialistvlad/flowbridge/internal/remote"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/resultstore"
	"github.com/specialistvlad/flowbridge/internal/serialize"
)

// Root prefixes every route.
const Root = "/api/v1/"

// inputType marks the placeholder declarations standing in for the
// caller's nodes. They are never constructed.
const inputType = "__input"

// API owns an echo server wired to one executor and one result store.
type API struct {
	exec   *executor.Executor
	store  resultstore.Store
	logger *slog.Logger
	echo   *echo.Echo
}

// New creates the API and registers its routes. The logger carried by ctx
// is used for request logs and handed to every run.
func New(ctx context.Context, exec *executor.Executor, store resultstore.Store) *API {
	api := &API{
		exec:   exec,
		store:  store,
		logger: ctxlog.FromContext(ctx),
		echo:   echo.New(),
	}
	api.echo.HideBanner = true
	api.echo.HidePort = true

	api.echo.POST(Root+"flows/run", api.runFlowHandler)
	api.echo.GET(Root+"runs/:runId/results", api.listResultsHandler)
	api.echo.GET(Root+"runs/:runId/results/:node", api.getResultHandler)
	api.echo.GET(Root+"health", api.healthHandler)

	api.echo.Use(api.recoverMiddleware, api.logMiddleware)
	return api
}

// ServeHTTP implements http.Handler.
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (api *API) Start(addr string) error {
	api.logger.Info("🌐 API server starting", "address", addr)
	if err := api.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (api *API) Shutdown(ctx context.Context) error {
	return api.echo.Shutdown(ctx)
}

func (api *API) logMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		api.logger.Debug("API request served.",
			"method", req.Method,
			"path", req.URL.Path,
			"status", c.Response().Status,
			"duration", time.Since(start))
		return nil
	}
}

func (api *API) recoverMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				api.logger.Error("API handler panicked.", "path", c.Request().URL.Path, "panic", r)
				err = echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("internal error: %v", r))
			}
		}()
		return next(c)
	}
}

// ============================== CONTROLLERS ============================== //

// POST <Root>/flows/run
// Run a nested flow to completion. Inputs seed the caller's upstream
// results, which the nested flow may consume through edges whose source is
// an input id.
func (api *API) runFlowHandler(c echo.Context) error {
	var req remote.RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
	}
	if len(req.Flow) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request: missing flow")
	}
	doc, err := flowfile.Parse(req.Flow, flowfile.JSON)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inputs, err := remote.DecodeInputs(req.Inputs)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	g, err := seededGraph(doc, inputs)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := ctxlog.WithLogger(c.Request().Context(), api.logger)
	opts := req.Options
	report, err := api.exec.RunWithInputs(ctx, g, inputs, &opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp := remote.RunResponse{
		RunID:   report.RunID,
		Status:  string(report.Status),
		Results: make(map[string]serialize.Wire, len(report.Results)),
	}
	for id, env := range report.Results {
		w, err := serialize.ToWire(env)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("serializing result of %s: %v", id, err))
		}
		resp.Results[id] = w
	}
	return c.JSON(http.StatusOK, resp)
}

// seededGraph builds the partial graph of the nested flow. Caller inputs
// take part in validation as placeholder nodes, so an edge from an id
// that is neither declared nor supplied is still a dangling edge.
func seededGraph(doc *flowfile.Document, inputs map[string]*result.Envelope) (*dag.Graph, error) {
	nodes, edges := doc.Decls()
	members := make([]string, 0, len(nodes))
	declared := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		members = append(members, n.ID)
		declared[n.ID] = struct{}{}
	}
	for _, id := range result.Inputs(inputs).IDs() {
		if _, ok := declared[id]; ok {
			return nil, fmt.Errorf("input %q collides with a node of the flow", id)
		}
		nodes = append(nodes, dag.NodeDecl{ID: id, Type: inputType})
	}
	full, err := dag.New(nodes, edges)
	if err != nil {
		return nil, err
	}
	return full.Subgraph(members), nil
}

// resultsResponse lists the stored results of one run.
type resultsResponse struct {
	RunID   string                     `json:"run_id"`
	Results map[string]json.RawMessage `json:"results"`
}

// GET <Root>/runs/{runId}/results
func (api *API) listResultsHandler(c echo.Context) error {
	if api.store == nil {
		return echo.NewHTTPError(http.StatusNotFound, "result storage is disabled")
	}
	runID := c.Param("runId")
	recs, err := api.store.List(c.Request().Context(), runID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(recs) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no results for run %s", runID))
	}
	resp := resultsResponse{RunID: runID, Results: make(map[string]json.RawMessage, len(recs))}
	for _, rec := range recs {
		resp.Results[rec.NodeID] = rec.Payload
	}
	return c.JSON(http.StatusOK, resp)
}

// GET <Root>/runs/{runId}/results/{node}
func (api *API) getResultHandler(c echo.Context) error {
	if api.store == nil {
		return echo.NewHTTPError(http.StatusNotFound, "result storage is disabled")
	}
	runID, nodeID := c.Param("runId"), c.Param("node")
	rec, err := api.store.Get(c.Request().Context(), runID, nodeID)
	if err != nil {
		if errors.Is(err, resultstore.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no result for node %s in run %s", nodeID, runID))
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSONBlob(http.StatusOK, rec.Payload)
}

// GET <Root>/health
func (api *API) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
