package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/thruflo/reachy-remix/internal/metrics"
	"github.com/thruflo/reachy-remix/internal/motion"
	"github.com/thruflo/reachy-remix/internal/robot"
)

// Session modes reported by /api/status.
const (
	ModeRobot = "ROBOT"
	ModeDemo  = "DEMO"
)

const maxBodyBytes = 1 << 20

// setupRoutes configures the HTTP routes.
func (a *UIApp) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("GET /api/moves", a.handleListMoves)
	mux.HandleFunc("POST /api/moves", a.handleSaveMove)
	mux.HandleFunc("GET /api/moves/{id}", a.handleGetMove)
	mux.HandleFunc("DELETE /api/moves/{id}", a.handleDeleteMove)
	mux.HandleFunc("POST /api/moves/{id}/play", a.handlePlayMove)
	mux.HandleFunc("POST /api/record/start", a.handleRecordStart)
	mux.HandleFunc("POST /api/record/stop", a.handleRecordStop)
	mux.HandleFunc("GET /ws", a.handleWebSocket)
	mux.HandleFunc("GET /qr.png", a.handleQR)
	mux.Handle("GET /metrics", metrics.Handler(a.registry))
	mux.Handle("GET /", http.FileServerFS(a.assets))
}

// Status is the body of GET /api/status.
type Status struct {
	Mode      string            `json:"mode"`
	Robot     string            `json:"robot,omitempty"`
	Motors    []robot.MotorName `json:"motors"`
	Queue     bool              `json:"queue"`
	Pending   int               `json:"pending"`
	Recording bool              `json:"recording"`
	URL       string            `json:"url"`
}

func (a *UIApp) status() Status {
	st := Status{Mode: ModeDemo, Motors: robot.AllMotors()}
	if a.robot != nil {
		st.Mode = ModeRobot
		st.Robot = a.robot.Name()
		st.Motors = a.robot.Motors()
	}
	if q := a.jobQueue(); q != nil {
		st.Queue = true
		st.Pending = q.pending()
	}
	if a.recorder != nil {
		st.Recording = a.recorder.Recording()
	}
	if u, err := PublicURL(a.LocalURL()); err == nil {
		st.URL = u
	}
	return st
}

func (a *UIApp) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *UIApp) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.status())
}

func (a *UIApp) handleListMoves(w http.ResponseWriter, r *http.Request) {
	moves, err := a.library.List(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]motion.Summary, 0, len(moves))
	for _, m := range moves {
		out = append(out, m.Summarize())
	}
	writeJSON(w, http.StatusOK, out)
}

type saveMoveRequest struct {
	Name      string            `json:"name"`
	Keyframes []motion.Keyframe `json:"keyframes"`
}

func (a *UIApp) handleSaveMove(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var req saveMoveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	m := motion.NewMove(req.Name, req.Keyframes, a.clock.Now())
	if err := a.library.Save(r.Context(), m); err != nil {
		if errors.Is(err, motion.ErrInvalidMove) {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	a.hub.broadcast(Event{Type: "move_saved", Data: m.Summarize()})
	writeJSON(w, http.StatusCreated, m)
}

func (a *UIApp) moveFromPath(w http.ResponseWriter, r *http.Request) (motion.Move, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid move id", http.StatusBadRequest)
		return motion.Move{}, false
	}
	m, err := a.library.Get(r.Context(), id)
	if errors.Is(err, motion.ErrMoveNotFound) {
		http.Error(w, "move not found", http.StatusNotFound)
		return motion.Move{}, false
	}
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return motion.Move{}, false
	}
	return m, true
}

func (a *UIApp) handleGetMove(w http.ResponseWriter, r *http.Request) {
	m, ok := a.moveFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *UIApp) handleDeleteMove(w http.ResponseWriter, r *http.Request) {
	m, ok := a.moveFromPath(w, r)
	if !ok {
		return
	}
	if err := a.library.Delete(r.Context(), m.ID); err != nil && !errors.Is(err, motion.ErrMoveNotFound) {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.hub.broadcast(Event{Type: "move_deleted", Data: map[string]string{"id": m.ID.String()}})
	w.WriteHeader(http.StatusNoContent)
}

func (a *UIApp) handlePlayMove(w http.ResponseWriter, r *http.Request) {
	if !a.limiter.allow(extractIP(r)) {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "too many play requests", http.StatusTooManyRequests)
		return
	}

	m, ok := a.moveFromPath(w, r)
	if !ok {
		return
	}

	q := a.jobQueue()
	if q == nil {
		if err := a.play(r.Context(), m); err != nil {
			a.writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "played", "move_id": m.ID.String()})
		return
	}

	jobID, err := q.submit(func(ctx context.Context) error { return a.play(ctx, m) })
	if err != nil {
		if errors.Is(err, ErrQueueFull) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		a.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "job_id": jobID, "move_id": m.ID.String()})
}

// play runs m through the controller and reports progress to websocket
// clients.
func (a *UIApp) play(ctx context.Context, m motion.Move) error {
	a.hub.broadcast(Event{Type: "play_started", Data: map[string]string{"move_id": m.ID.String(), "name": m.Name}})

	err := a.ctrl.Play(ctx, m, func(f motion.Frame) {
		a.hub.broadcast(Event{Type: "frame", Data: map[string]interface{}{
			"move_id":   m.ID.String(),
			"at_ms":     f.At.Milliseconds(),
			"positions": f.Positions,
		}})
	})

	result := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		result = "cancelled"
	case err != nil:
		result = "error"
	}
	a.metrics.MovePlayed(result)
	a.hub.broadcast(Event{Type: "play_finished", Data: map[string]string{"move_id": m.ID.String(), "result": result}})
	return err
}

func (a *UIApp) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	if a.recorder == nil {
		http.Error(w, motion.ErrNoRobot.Error(), http.StatusConflict)
		return
	}
	if err := a.recorder.Start(r.Context()); err != nil {
		if errors.Is(err, motion.ErrRecording) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.hub.broadcast(Event{Type: "record_started"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "recording"})
}

func (a *UIApp) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	if a.recorder == nil {
		http.Error(w, motion.ErrNoRobot.Error(), http.StatusConflict)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = "move " + a.clock.Now().Format("15:04:05")
	}

	m, err := a.recorder.Stop(r.Context(), req.Name)
	switch {
	case errors.Is(err, motion.ErrNotRecording):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, motion.ErrInvalidMove):
		a.writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := a.library.Save(r.Context(), m); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.metrics.Recorded()
	a.hub.broadcast(Event{Type: "move_saved", Data: m.Summarize()})
	writeJSON(w, http.StatusCreated, m)
}

func (a *UIApp) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	a.hub.serve(w, r, Event{Type: "status", Data: a.status()})
}

func (a *UIApp) handleQR(w http.ResponseWriter, r *http.Request) {
	target, err := PublicURL(a.LocalURL())
	if err != nil {
		http.Error(w, "not launched", http.StatusServiceUnavailable)
		return
	}

	png, err := qrcode.Encode(target, qrcode.Medium, 256)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

// streamPositions pushes robot positions to websocket clients while any
// are connected.
func (a *UIApp) streamPositions(ctx context.Context) {
	if a.robot == nil || a.streamInterval <= 0 {
		return
	}

	ticker := a.clock.NewTicker(a.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if a.hub.count() == 0 {
				continue
			}
			readCtx, cancel := context.WithTimeout(ctx, time.Second)
			positions, err := a.robot.ReadPositions(readCtx)
			cancel()
			if err != nil {
				a.logger.Debug("Position read failed", "error", err)
				continue
			}
			a.hub.broadcast(Event{Type: "positions", Data: positions})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError reports err, hiding its detail unless ShowError was set.
func (a *UIApp) writeError(w http.ResponseWriter, status int, err error) {
	a.mu.Lock()
	show := a.showError
	a.mu.Unlock()

	msg := http.StatusText(status)
	if show {
		msg = err.Error()
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("Request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
