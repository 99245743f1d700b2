package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aetherlms/lms-server/internal/app/domain/course"
)

func (h *handler) listCourses(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.deps.Courses.List(r.Context(), course.ListOptions{
		PublishedOnly: true,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) getCourse(w http.ResponseWriter, r *http.Request) {
	outline, err := h.deps.Courses.Outline(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outline)
}
