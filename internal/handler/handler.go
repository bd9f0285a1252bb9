// Package handler serves the planner over HTTP for local tools: dashboard
// data, template catalogs, non-interactive wizard submissions and metrics.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"whatif-planner/internal/apiclient"
	"whatif-planner/internal/dashboard"
	"whatif-planner/internal/decision"
	"whatif-planner/internal/logger"
	"whatif-planner/internal/model"
	"whatif-planner/internal/planner"
	"whatif-planner/internal/scenarioflow"
	"whatif-planner/internal/telemetry"
	"whatif-planner/internal/wizard"
)

type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

const requestTimeout = 60 * time.Second

type Server struct {
	svc     *planner.Service
	log     *zap.Logger
	metrics fasthttp.RequestHandler
}

func New(svc *planner.Service, log *zap.Logger) *Server {
	return &Server{
		svc:     svc,
		log:     logger.OrNop(log),
		metrics: fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(telemetry.Registry, promhttp.HandlerOpts{})),
	}
}

// requestContext bounds the backend work one request may trigger.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &fasthttp.Server{Handler: s.Handle, Name: "whatif-planner"}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown()
	}()
	s.log.Info("companion server listening", zap.String("addr", addr))
	return srv.ListenAndServe(addr)
}

func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	path := strings.TrimRight(string(ctx.Path()), "/")
	method := string(ctx.Method())

	switch {
	case path == "/healthz":
		if s.only(ctx, method, http.MethodGet) {
			writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
		}
	case path == "/metrics":
		if s.only(ctx, method, http.MethodGet) {
			s.metrics(ctx)
		}
	case path == "/dashboard":
		if s.only(ctx, method, http.MethodGet) {
			s.handleDashboard(ctx)
		}
	case path == "/templates":
		if s.only(ctx, method, http.MethodGet) {
			s.handleTemplates(ctx)
		}
	case path == "/cache/invalidate":
		if s.only(ctx, method, http.MethodPost) {
			s.handleInvalidate(ctx)
		}
	case strings.HasPrefix(path, "/life-events/") && strings.HasSuffix(path, "/submit"):
		if s.only(ctx, method, http.MethodPost) {
			s.handleLifeEvent(ctx, between(path, "/life-events/", "/submit"))
		}
	case strings.HasPrefix(path, "/decisions/") && strings.HasSuffix(path, "/submit"):
		if s.only(ctx, method, http.MethodPost) {
			s.handleDecision(ctx, between(path, "/decisions/", "/submit"))
		}
	default:
		writeError(ctx, fasthttp.StatusNotFound, "Not found")
	}
}

func (s *Server) only(ctx *fasthttp.RequestCtx, method, want string) bool {
	if method != want {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

func between(path, prefix, suffix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
}

type dashboardResponse struct {
	*dashboard.Dashboard
	HasError bool              `json:"hasError"`
	Errors   map[string]string `json:"errors"`
}

func (s *Server) handleDashboard(ctx *fasthttp.RequestCtx) {
	c, cancel := requestContext()
	defer cancel()
	d := s.svc.Dashboard(c)
	writeJSON(ctx, fasthttp.StatusOK, dashboardResponse{
		Dashboard: d,
		HasError:  d.HasError(),
		Errors:    d.ErrorMessages(),
	})
}

type templatesResponse struct {
	LifeEvents []model.LifeEventTemplate `json:"lifeEvents"`
	Decisions  []model.DecisionTemplate  `json:"decisions"`
	Errors     map[string]string         `json:"errors,omitempty"`
}

func (s *Server) handleTemplates(ctx *fasthttp.RequestCtx) {
	var (
		resp templatesResponse
		wg   sync.WaitGroup
		mu   sync.Mutex
	)
	fail := func(key string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if resp.Errors == nil {
			resp.Errors = map[string]string{}
		}
		resp.Errors[key] = err.Error()
	}
	c, cancel := requestContext()
	defer cancel()

	wg.Add(2)
	go func() {
		defer wg.Done()
		list, err := s.svc.LifeEventTemplates(c)
		if err != nil {
			fail("lifeEvents", err)
		}
		resp.LifeEvents = list
	}()
	go func() {
		defer wg.Done()
		list, err := s.svc.DecisionTemplates(c)
		if err != nil {
			fail("decisions", err)
		}
		resp.Decisions = list
	}()
	wg.Wait()

	status := fasthttp.StatusOK
	if len(resp.Errors) == 2 {
		status = fasthttp.StatusBadGateway
	}
	writeJSON(ctx, status, resp)
}

type invalidateRequest struct {
	Prefix string `json:"prefix"`
}

func (s *Server) handleInvalidate(ctx *fasthttp.RequestCtx) {
	var req invalidateRequest
	if body := ctx.PostBody(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}
	c, cancel := requestContext()
	defer cancel()
	if err := s.svc.Invalidate(c, req.Prefix); err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"invalidated": req.Prefix})
}

// notices collects the wizard's user-facing messages for the response.
type notices struct {
	Failed    []string `json:"errors,omitempty"`
	Succeeded []string `json:"success,omitempty"`
}

func (n *notices) Error(msg string)   { n.Failed = append(n.Failed, msg) }
func (n *notices) Success(msg string) { n.Succeeded = append(n.Succeeded, msg) }

type submitResponse struct {
	Result  model.WizardResult `json:"result"`
	Review  *wizard.Review     `json:"review,omitempty"`
	Notices *notices           `json:"notices"`
}

func (s *Server) handleLifeEvent(ctx *fasthttp.RequestCtx, name string) {
	if name == "" {
		writeError(ctx, fasthttp.StatusNotFound, "Not found")
		return
	}
	var answers wizard.Answers
	if err := json.Unmarshal(ctx.PostBody(), &answers); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	c, cancel := requestContext()
	defer cancel()
	n := &notices{}
	out, err := s.svc.SubmitLifeEvent(c, name, answers, n)
	if err != nil {
		s.fail(ctx, "life event submission failed", err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, submitResponse{Result: out.Result, Review: &out.Review, Notices: n})
}

func (s *Server) handleDecision(ctx *fasthttp.RequestCtx, key string) {
	if key == "" {
		writeError(ctx, fasthttp.StatusNotFound, "Not found")
		return
	}
	var answers decision.Answers
	if err := json.Unmarshal(ctx.PostBody(), &answers); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	c, cancel := requestContext()
	defer cancel()
	n := &notices{}
	res, err := s.svc.SubmitDecision(c, key, answers, n)
	if err != nil {
		s.fail(ctx, "decision submission failed", err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, submitResponse{Result: res, Notices: n})
}

func (s *Server) fail(ctx *fasthttp.RequestCtx, msg string, err error) {
	status := StatusFor(err)
	if status >= fasthttp.StatusInternalServerError {
		s.log.Error(msg, zap.Error(err))
	} else {
		s.log.Info(msg, zap.Error(err))
	}
	writeError(ctx, status, err.Error())
}

// StatusFor maps planner errors onto HTTP statuses.
func StatusFor(err error) int {
	var (
		verr   *wizard.ValidationError
		flow   *scenarioflow.FlowError
		apiErr *apiclient.APIError
	)
	switch {
	case errors.As(err, &verr),
		errors.Is(err, wizard.ErrRequiredChange),
		errors.Is(err, wizard.ErrChoiceGroup),
		errors.Is(err, wizard.ErrUnknownChange):
		return fasthttp.StatusUnprocessableEntity
	case errors.Is(err, wizard.ErrSubmissionInFlight):
		return fasthttp.StatusConflict
	case errors.As(err, &flow):
		return fasthttp.StatusBadGateway
	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != fasthttp.StatusUnauthorized {
			return apiErr.Status
		}
		return fasthttp.StatusBadGateway
	}
	// what is left comes from filling answers
	return fasthttp.StatusUnprocessableEntity
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(b)
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	b, _ := json.Marshal(ErrorResponse{Status: status, Message: message})
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(b)
}
