package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/resilience"
	"github.com/sells-group/company-intel/internal/store"
)

const maxBodyBytes = 1 << 20

// api exposes appEnv over HTTP. Handlers decode, delegate and encode.
type api struct {
	env *appEnv
}

type searchResponse struct {
	Request *model.SearchRequest `json:"request"`
	Results []model.SearchResult `json:"results"`
}

type companyResponse struct {
	Company  *model.Company  `json:"company"`
	Contacts []model.Contact `json:"contacts"`
}

// newRouter builds the chi router for the HTTP API.
func newRouter(env *appEnv, allowedOrigins []string) http.Handler {
	a := &api{env: env}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)

	r.Route("/companies", func(r chi.Router) {
		r.Post("/", a.createCompany)
		r.Get("/{id}", a.getCompany)
		r.Patch("/{id}", a.editCompany)
	})

	r.Route("/enrich", func(r chi.Router) {
		r.Post("/batch", a.enrichBatch)
		r.Post("/auto", a.autoEnrich)
		r.Post("/{id}", a.enrichOne)
	})

	r.Post("/reindex", a.reindex)

	r.Post("/search", a.search)
	r.Get("/search/{id}", a.replaySearch)

	r.Get("/runs", a.listRuns)
	r.Post("/runs/{id}/reset", a.resetRun)

	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type healthResponse struct {
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Providers map[string]string `json:"providers"`
}

// health pings the store and reports each provider's circuit breaker. An
// open breaker degrades the status without failing the check.
func (a *api) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Providers: map[string]string{}}
	if a.env.Guard != nil {
		for name, st := range a.env.Guard.Breakers().States() {
			resp.Providers[name] = st.String()
			if st == resilience.Open {
				resp.Status = "degraded"
			}
		}
	}
	if err := a.env.Store.Ping(r.Context()); err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) createCompany(w http.ResponseWriter, r *http.Request) {
	var c model.Company
	if !decode(w, r, &c) {
		return
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		writeError(w, fault.Validation("api: create company", "name is required"))
		return
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	} else if _, err := a.env.Store.GetCompany(r.Context(), c.ID); err == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "company " + c.ID + " already exists"})
		return
	}
	c.Verified = false
	c.DataQualityScore = a.env.Scorer.ScoreCompany(c, nil)

	if err := a.env.Store.CreateCompany(r.Context(), &c); err != nil {
		writeError(w, fault.Persistence("api: create company", err))
		return
	}
	if a.env.Index != nil {
		if err := a.env.Index.IndexCompany(c); err != nil {
			zap.L().Warn("api: index company failed", zap.String("company_id", c.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *api) getCompany(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := a.env.Store.GetCompany(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	contacts, err := a.env.Store.ListContacts(r.Context(), id)
	if err != nil {
		writeError(w, fault.Persistence("api: list contacts", err))
		return
	}
	if contacts == nil {
		contacts = []model.Contact{}
	}
	writeJSON(w, http.StatusOK, companyResponse{Company: c, Contacts: contacts})
}

func (a *api) editCompany(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source string      `json:"source"`
		Fields model.Facts `json:"fields"`
	}
	if !decode(w, r, &body) {
		return
	}
	c, err := a.env.Orchestrator.Edit(r.Context(), chi.URLParam(r, "id"), body.Source, body.Fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Enrichment handlers detach from the request context so a dropped client
// does not abandon a run half way.

func (a *api) enrichOne(w http.ResponseWriter, r *http.Request) {
	out, err := a.env.Orchestrator.EnrichOne(context.WithoutCancel(r.Context()), chi.URLParam(r, "id"))
	if err != nil && out == nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = fault.HTTPStatus(err)
	}
	writeJSON(w, status, out)
}

func (a *api) enrichBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if !decode(w, r, &body) {
		return
	}
	if len(body.IDs) == 0 {
		writeError(w, fault.Validation("api: enrich batch", "ids is required"))
		return
	}
	outcomes := a.env.Orchestrator.EnrichBatch(context.WithoutCancel(r.Context()), body.IDs)
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

func (a *api) autoEnrich(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Limit int `json:"limit"`
	}
	if !decode(w, r, &body) {
		return
	}
	outcomes, err := a.env.Orchestrator.AutoEnrich(context.WithoutCancel(r.Context()), body.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if outcomes == nil {
		outcomes = []model.EnrichmentOutcome{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

func (a *api) reindex(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompanyID string `json:"company_id"`
		Limit     int    `json:"limit"`
	}
	if !decode(w, r, &body) {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	if body.CompanyID != "" {
		if err := a.env.Indexer.Reindex(ctx, body.CompanyID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"company_id": body.CompanyID, "status": "indexed"})
		return
	}
	if body.Limit <= 0 {
		body.Limit = 1000
	}
	n, err := a.env.Indexer.BatchReindex(ctx, body.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"embedded": n})
}

func (a *api) search(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query     string `json:"query"`
		Limit     int    `json:"limit"`
		AccountID string `json:"account_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Limit == 0 {
		body.Limit = 10
	}
	req, results, err := a.env.Search.Run(r.Context(), body.AccountID, body.Query, body.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Request: req, Results: results})
}

func (a *api) replaySearch(w http.ResponseWriter, r *http.Request) {
	req, results, err := a.env.Search.Replay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Request: req, Results: results})
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{Status: model.RunStatus(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, fault.Validationf("api: list runs", "invalid limit %q", v))
			return
		}
		filter.Limit = n
	}
	runs, err := a.env.Orchestrator.Runs(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []model.EnrichmentRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *api) resetRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.env.Orchestrator.ResetFailed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := fault.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": string(fault.KindOf(err))})
}
