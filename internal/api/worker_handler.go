package api

import (
	"net/http"

	"go.uber.org/zap"
)

// Health — liveness probe.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetWorker возвращает состояние воркера и число tasks по статусам.
// GET /api/v1/worker
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) error {
	resp := WorkerResponse{Status: h.worker.Status()}

	counts, err := h.tasks.CountByStatus(r.Context(), h.resourceID)
	if err != nil {
		// Состояние воркера полезно и без счётчиков.
		h.logger.Warn("failed to count tasks", zap.Error(err))
	} else {
		resp.Tasks = make(map[string]int, len(counts))
		for status, n := range counts {
			resp.Tasks[string(status)] = n
		}
	}

	return writeData(w, http.StatusOK, resp)
}

// WakeWorker прерывает idle-sleep воркера.
// POST /api/v1/worker/wake
func (h *Handler) WakeWorker(w http.ResponseWriter, _ *http.Request) error {
	return writeData(w, http.StatusAccepted, WakeResponse{Woke: h.worker.Wake()})
}

// StopWorker просит воркер остановиться после текущей task.
// POST /api/v1/worker/stop
func (h *Handler) StopWorker(w http.ResponseWriter, _ *http.Request) error {
	h.worker.Stop()
	return writeData(w, http.StatusAccepted, StopResponse{StopRequested: true})
}
