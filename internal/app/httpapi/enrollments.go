package httpapi

import (
	"net/http"

	svcerrors "github.com/aetherlms/lms-server/internal/errors"
	"github.com/aetherlms/lms-server/internal/middleware"
)

func currentUser(r *http.Request) string {
	return middleware.GetUserID(r.Context())
}

func (h *handler) listEnrollments(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Enrollments.List(r.Context(), currentUser(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"enrollments": list})
}

func (h *handler) enroll(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CourseID string `json:"courseId"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, svcerrors.BadRequest("invalid request body"))
		return
	}

	e, err := h.deps.Enrollments.Enroll(r.Context(), currentUser(r), payload.CourseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *handler) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Enrollments.Workspaces(r.Context(), currentUser(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"workspaces": list})
}
