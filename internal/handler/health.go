package handler

import (
	"net/http"

	"github.com/HefaCom/health-florence-sub002/internal/model"
)

// Health handles GET /healthz
// @Summary      Liveness check
// @Tags         system
// @Produce      json
// @Success      200  {object}  model.StatusResponse
// @Router       /healthz [get]
func Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSON(w, nil, http.StatusMethodNotAllowed, model.ErrorResponse{Error: "Method not allowed. Should be GET"})
		return
	}
	writeJSON(w, nil, http.StatusOK, model.StatusResponse{Status: "ok"})
}
