package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type streamError struct {
	Error string `json:"error"`
}

// rollingWindow keeps the trailing values that form the expected baseline.
type rollingWindow struct {
	values []float64
	size   int
}

func (w *rollingWindow) expected(next float64) float64 {
	if len(w.values) == 0 {
		return next
	}
	sum := 0.0
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(len(w.values))
}

func (w *rollingWindow) push(v float64) {
	w.values = append(w.values, v)
	if len(w.values) > w.size {
		w.values = w.values[len(w.values)-w.size:]
	}
}

// latencyStream upgrades to a WebSocket. Each JSON sample received is answered with
// its AnomalyFlag, judged against the rolling mean of the previous samples on the same
// connection. Query parameters window and ratio override the defaults.
func (h *Handler) latencyStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window, err := queryInt(q.Get("window"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if window <= 0 {
		window = h.defaults.BaselineWindow
	}
	ratio, err := queryFloat(q.Get("ratio"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ratio == 0 {
		ratio = h.defaults.ThresholdRatio
	}
	if _, err := h.svc.Detect(nil, nil, ratio); err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	baseline := &rollingWindow{size: window}
	for {
		var sample models.Sample
		if err := conn.ReadJSON(&sample); err != nil {
			if isDecodeError(err) {
				if writeErr := writeStream(conn, streamError{Error: fmt.Sprintf("invalid sample: %v", err)}); writeErr != nil {
					return
				}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("latency stream closed", slog.Any("error", err))
			}
			return
		}
		if sample.Timestamp.IsZero() {
			sample.Timestamp = time.Now().UTC()
		}

		flags, err := h.svc.Detect([]models.Sample{sample}, []float64{baseline.expected(sample.Value)}, ratio)
		if err != nil {
			if writeErr := writeStream(conn, streamError{Error: err.Error()}); writeErr != nil {
				return
			}
			continue
		}
		baseline.push(sample.Value)
		if err := writeStream(conn, flags[0]); err != nil {
			return
		}
	}
}

func isDecodeError(err error) bool {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		timeErr   *time.ParseError
	)
	// a truncated or empty frame ends the decoder early; the connection itself is fine
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.As(err, &timeErr)
}

func writeStream(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// keepAlive pings the peer until done closes. WriteControl is safe alongside WriteJSON.
func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
