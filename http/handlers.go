package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"go.uber.org/zap"

	"cancerrisk/explain"
	"cancerrisk/features"
	"cancerrisk/risk"
)

// RiskService is the part of risk.Service the handlers use.
type RiskService interface {
	Catalog() *features.Catalog
	Schema() *features.Schema
	TopN() int
	CanExplain() bool
	Predict(ctx context.Context, rec features.RawRecord) (risk.Prediction, error)
	Explain(ctx context.Context, rec features.RawRecord) (explain.Explanation, error)
	RenderExplanation(ctx context.Context, rec features.RawRecord, w io.Writer) (explain.Explanation, error)
}

var errBadRequest = errors.New("bad request")

// Handlers serves the form and the JSON API over one RiskService.
type Handlers struct {
	svc     RiskService
	metrics *Metrics
	logger  *zap.Logger
	page    *template.Template
}

// NewHandlers wires svc to the routes. Nil metrics or logger get fresh
// defaults.
func NewHandlers(svc RiskService, metrics *Metrics, logger *zap.Logger) *Handlers {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{svc: svc, metrics: metrics, logger: logger, page: pageTemplate}
}

// Register mounts every route on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /{$}", h.handleForm},
		{"POST /predict", h.handleFormPredict},
		{"POST /explain", h.handleFormExplain},
		{"POST /api/predict", h.handlePredict},
		{"POST /api/explain", h.handleExplain},
		{"POST /api/explain/chart", h.handleExplainChart},
		{"GET /api/schema", h.handleSchema},
		{"GET /api/health", handleHealth},
	}
	for _, r := range routes {
		mux.Handle(r.pattern, h.metrics.Instrument(r.pattern, r.handler))
	}
	mux.Handle("GET /metrics", h.metrics.Handler())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleSchema(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.Schema())
}

// recordRequest is the JSON body of the API endpoints. With FillDefaults the
// record starts from the form defaults; otherwise absent fields stay absent
// and their columns are zero-filled.
type recordRequest struct {
	Numeric      map[string]float64 `json:"numeric"`
	Categorical  map[string]string  `json:"categorical"`
	FillDefaults bool               `json:"fill_defaults"`
}

type predictResponse struct {
	Label    string   `json:"label"`
	Headline string   `json:"headline"`
	Class    int      `json:"class"`
	Fallback []string `json:"fallback,omitempty"`
	Ignored  []string `json:"ignored,omitempty"`
}

type explainResponse struct {
	explain.Explanation
	Top []explain.Contribution `json:"top"`
}

func (h *Handlers) decodeRecord(r *http.Request) (features.RawRecord, error) {
	var req recordRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return features.RawRecord{}, fmt.Errorf("%w: %w", errBadRequest, err)
	}

	rec := features.NewRawRecord()
	if req.FillDefaults {
		rec = features.DefaultRecord(h.svc.Catalog())
	}
	for k, v := range req.Numeric {
		rec.Numeric[k] = v
	}
	for k, v := range req.Categorical {
		rec.Categorical[k] = v
	}
	return rec, nil
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	rec, err := h.decodeRecord(r)
	if err != nil {
		h.fail(w, r, "predict", err)
		return
	}
	pred, err := h.svc.Predict(r.Context(), rec)
	if err != nil {
		h.fail(w, r, "predict", err)
		return
	}
	h.metrics.observePrediction(pred.Label.String())

	respondJSON(w, http.StatusOK, predictResponse{
		Label:    pred.Label.String(),
		Headline: pred.Label.Headline(),
		Class:    pred.Class,
		Fallback: pred.Vector.Fallback,
		Ignored:  pred.Vector.Ignored,
	})
}

func (h *Handlers) handleExplain(w http.ResponseWriter, r *http.Request) {
	rec, err := h.decodeRecord(r)
	if err != nil {
		h.fail(w, r, "explain", err)
		return
	}
	expl, err := h.svc.Explain(r.Context(), rec)
	if err != nil {
		h.fail(w, r, "explain", err)
		return
	}
	h.metrics.observeExplanation()
	respondJSON(w, http.StatusOK, explainResponse{Explanation: expl, Top: expl.Top(h.svc.TopN())})
}

func (h *Handlers) handleExplainChart(w http.ResponseWriter, r *http.Request) {
	rec, err := h.decodeRecord(r)
	if err != nil {
		h.fail(w, r, "explain_chart", err)
		return
	}
	var buf bytes.Buffer
	if _, err := h.svc.RenderExplanation(r.Context(), rec, &buf); err != nil {
		h.fail(w, r, "explain_chart", err)
		return
	}
	h.metrics.observeExplanation()

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handlers) handleForm(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, http.StatusOK, h.newPage(features.DefaultRecord(h.svc.Catalog())))
}

func (h *Handlers) handleFormPredict(w http.ResponseWriter, r *http.Request) {
	rec, data, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	pred, err := h.svc.Predict(r.Context(), rec)
	if err != nil {
		h.failPage(w, r, "predict", data, err)
		return
	}
	h.metrics.observePrediction(pred.Label.String())
	data.Result = &resultView{Headline: pred.Label.Headline(), High: pred.Label.IsHigh()}
	h.renderPage(w, http.StatusOK, data)
}

func (h *Handlers) handleFormExplain(w http.ResponseWriter, r *http.Request) {
	rec, data, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	pred, err := h.svc.Predict(r.Context(), rec)
	if err != nil {
		h.failPage(w, r, "predict", data, err)
		return
	}
	h.metrics.observePrediction(pred.Label.String())
	data.Result = &resultView{Headline: pred.Label.Headline(), High: pred.Label.IsHigh()}

	var buf bytes.Buffer
	expl, err := h.svc.RenderExplanation(r.Context(), rec, &buf)
	if err != nil {
		h.failPage(w, r, "explain", data, err)
		return
	}
	h.metrics.observeExplanation()
	data.Explanation = &explanationView{
		Chart:         template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())),
		ExpectedValue: expl.ExpectedValue,
		Output:        expl.Output,
		Rows:          expl.Top(h.svc.TopN()),
	}
	h.renderPage(w, http.StatusOK, data)
}

func (h *Handlers) parseForm(w http.ResponseWriter, r *http.Request) (features.RawRecord, *pageData, bool) {
	if err := r.ParseForm(); err != nil {
		h.failPage(w, r, "form", h.newPage(features.DefaultRecord(h.svc.Catalog())),
			fmt.Errorf("%w: %w", errBadRequest, err))
		return features.RawRecord{}, nil, false
	}
	rec, err := features.RecordFromValues(h.svc.Catalog(), r.PostForm)
	if err != nil {
		data := h.newPage(features.DefaultRecord(h.svc.Catalog()))
		data.overlay(r.PostForm)
		h.failPage(w, r, "form", data, err)
		return features.RawRecord{}, nil, false
	}
	return rec, h.newPage(rec), true
}

// statusFor maps input problems to 4xx and everything else to 500.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest), errors.Is(err, features.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, risk.ErrExplainUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := h.record(r, operation, err)
	respondJSON(w, status, map[string]string{"error": publicMessage(status, err)})
}

func (h *Handlers) failPage(w http.ResponseWriter, r *http.Request, operation string, data *pageData, err error) {
	status := h.record(r, operation, err)
	data.Error = publicMessage(status, err)
	h.renderPage(w, status, data)
}

func (h *Handlers) record(r *http.Request, operation string, err error) int {
	status := statusFor(err)
	h.metrics.observeFailure(operation, status)
	log := h.logger.Warn
	if status >= http.StatusInternalServerError {
		log = h.logger.Error
	}
	log("request failed",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("operation", operation),
		zap.Int("status", status),
		zap.Error(err))
	return status
}

func publicMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func (h *Handlers) renderPage(w http.ResponseWriter, status int, data *pageData) {
	var buf bytes.Buffer
	if err := h.page.Execute(&buf, data); err != nil {
		h.logger.Error("render page", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
