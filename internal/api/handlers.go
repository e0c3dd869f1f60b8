package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/miradorstack/mirador-forecast/internal/engine"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/store"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

type observationInput struct {
	Metric    string  `json:"metric"`
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

type recordResponse struct {
	Recorded int `json:"recorded"`
}

type assessRequest struct {
	Forecast  models.Forecast `json:"forecast"`
	SLATarget float64         `json:"slaTarget"`
}

type detectRequest struct {
	Samples        []models.Sample `json:"samples"`
	Baseline       []float64       `json:"baseline"`
	ThresholdRatio float64         `json:"thresholdRatio"`
}

type detectResponse struct {
	Flags []models.AnomalyFlag `json:"flags"`
}

type recommendRequest struct {
	Tier         string              `json:"tier"`
	RiskFactors  []models.RiskFactor `json:"riskFactors"`
	MaxPerBucket int                 `json:"maxPerBucket"`
}

type servicesResponse struct {
	Services       []models.Service `json:"services"`
	HorizonPresets []int            `json:"horizonPresets"`
}

type historyResponse struct {
	ServiceID    string               `json:"serviceId"`
	Metric       models.Metric        `json:"metric"`
	Observations []models.Observation `json:"observations"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listServices(w http.ResponseWriter, _ *http.Request) {
	services := h.svc.Services()
	if services == nil {
		services = []models.Service{}
	}
	writeJSON(w, http.StatusOK, servicesResponse{Services: services, HorizonPresets: models.HorizonPresets})
}

// recordObservations accepts a single observation object or an array of them. Array
// writes stop at the first failure; earlier entries stay recorded.
func (h *Handler) recordObservations(w http.ResponseWriter, r *http.Request) {
	serviceID := mux.Vars(r)["id"]

	var raw json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		h.writeError(w, err)
		return
	}
	var inputs []observationInput
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	} else {
		var single observationInput
		if err := json.Unmarshal(trimmed, &single); err != nil {
			h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		inputs = []observationInput{single}
	}

	recorded := 0
	for _, in := range inputs {
		obs, err := in.toObservation(serviceID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if err := h.svc.Record(r.Context(), obs); err != nil {
			h.writeError(w, err)
			return
		}
		recorded++
	}
	writeJSON(w, http.StatusCreated, recordResponse{Recorded: recorded})
}

func (in observationInput) toObservation(serviceID string) (models.Observation, error) {
	metric, err := models.ParseMetric(in.Metric)
	if err != nil {
		return models.Observation{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	ts, err := utils.ParseRFC3339(in.Timestamp)
	if err != nil {
		return models.Observation{}, fmt.Errorf("%w: timestamp: %v", errBadRequest, err)
	}
	return models.Observation{ServiceID: serviceID, Metric: metric, Timestamp: ts, Value: in.Value}, nil
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	serviceID := mux.Vars(r)["id"]
	q := r.URL.Query()
	metric, err := models.ParseMetric(q.Get("metric"))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	var since time.Time
	if v := q.Get("since"); v != "" {
		if since, err = utils.ParseRFC3339(v); err != nil {
			h.writeError(w, fmt.Errorf("%w: since: %v", errBadRequest, err))
			return
		}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		ServiceID:    serviceID,
		Metric:       metric,
		Observations: h.svc.History(serviceID, metric, since),
	})
}

func (h *Handler) forecast(w http.ResponseWriter, r *http.Request) {
	serviceID := mux.Vars(r)["id"]
	q := r.URL.Query()
	metric, err := models.ParseMetric(q.Get("metric"))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	horizon, err := queryInt(q.Get("horizon"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	decay, err := queryFloat(q.Get("decay"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	forecast, err := h.svc.Forecast(r.Context(), serviceID, metric, horizon, decay)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

func (h *Handler) outlook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := models.OutlookRequest{ServiceID: mux.Vars(r)["id"], AlertsEnabled: true}

	var err error
	if req.HorizonDays, err = queryInt(q.Get("horizon")); err != nil {
		h.writeError(w, err)
		return
	}
	if req.DecayRate, err = queryFloat(q.Get("decay")); err != nil {
		h.writeError(w, err)
		return
	}
	if req.ThresholdRatio, err = queryFloat(q.Get("ratio")); err != nil {
		h.writeError(w, err)
		return
	}
	if req.BaselineWindow, err = queryInt(q.Get("window")); err != nil {
		h.writeError(w, err)
		return
	}
	if req.MaxPerBucket, err = queryInt(q.Get("max")); err != nil {
		h.writeError(w, err)
		return
	}
	if v := q.Get("alerts"); v != "" {
		if req.AlertsEnabled, err = strconv.ParseBool(v); err != nil {
			h.writeError(w, fmt.Errorf("%w: alerts: %v", errBadRequest, err))
			return
		}
	}

	outlook, err := h.svc.Outlook(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outlook)
}

func (h *Handler) assess(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	assessment, err := h.svc.Assess(req.Forecast, req.SLATarget)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (h *Handler) detect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	flags, err := h.svc.Detect(req.Samples, req.Baseline, req.ThresholdRatio)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detectResponse{Flags: flags})
}

func (h *Handler) recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	set, err := h.svc.Recommend(tier, req.RiskFactors, req.MaxPerBucket)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.Any("error", err))
	}
	writeJSON(w, status, errorResponse{Error: utils.UserMessage(err), Detail: err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		outOfOrder   *store.OutOfOrderError
		insufficient *engine.InsufficientHistoryError
		mismatch     *engine.LengthMismatchError
	)
	switch {
	case errors.As(err, &outOfOrder):
		return http.StatusConflict
	case errors.As(err, &insufficient), errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrUnknownService):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, engine.ErrInvalidArgument),
		errors.Is(err, store.ErrInvalidObservation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", errBadRequest, v)
	}
	return n, nil
}

func queryFloat(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errBadRequest, v)
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
