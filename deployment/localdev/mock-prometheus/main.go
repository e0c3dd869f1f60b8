package main

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/common/model"
)

type queryRangeResponse struct {
	Status string         `json:"status"`
	Data   queryRangeData `json:"data"`
}

type queryRangeData struct {
	ResultType string       `json:"resultType"`
	Result     model.Matrix `json:"result"`
}

type errorResponse struct {
	Status    string `json:"status"`
	ErrorType string `json:"errorType"`
	Error     string `json:"error"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/-/healthy", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/v1/query_range", queryRange)

	logger := log.New(log.Writer(), "prometheus-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              ":9090",
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Println("listening on :9090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// queryRange serves a synthetic series: queries mentioning "sla" get a slowly
// declining availability, anything else a latency series with periodic spikes.
func queryRange(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, err.Error())
		return
	}
	start, err1 := parseTime(r.Form.Get("start"))
	end, err2 := parseTime(r.Form.Get("end"))
	step, err3 := parseStep(r.Form.Get("step"))
	if err1 != nil || err2 != nil || err3 != nil || step <= 0 || !end.After(start) {
		writeError(w, "invalid start, end or step")
		return
	}

	query := r.Form.Get("query")
	values := make([]model.SamplePair, 0, int(end.Sub(start)/step)+1)
	for i, ts := 0, start; !ts.After(end); i, ts = i+1, ts.Add(step) {
		values = append(values, model.SamplePair{
			Timestamp: model.TimeFromUnixNano(ts.UnixNano()),
			Value:     model.SampleValue(synthetic(query, i, ts)),
		})
	}

	writeJSON(w, http.StatusOK, queryRangeResponse{
		Status: "success",
		Data: queryRangeData{
			ResultType: "matrix",
			Result: model.Matrix{{
				Metric: model.Metric{"__name__": "mock", "query": model.LabelValue(query)},
				Values: values,
			}},
		},
	})
}

func synthetic(query string, i int, ts time.Time) float64 {
	if strings.Contains(strings.ToLower(query), "sla") {
		v := 99.6 - 0.04*float64(i) + 0.1*math.Sin(float64(ts.Unix())/86400)
		return math.Round(v*100) / 100
	}
	v := 1.2 + 0.2*math.Sin(float64(i)/3)
	if i%7 == 6 {
		v *= 3
	}
	return math.Round(v*100) / 100
}

func parseTime(v string) (time.Time, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
	}
	return time.Parse(time.RFC3339, v)
}

func parseStep(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func writeError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", ErrorType: "bad_data", Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
