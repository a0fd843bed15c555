package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/thep200/dothub-crawler/internal/model"
)

// listRepositories serves one page ordered by stars. dotfiles may repeat or
// hold a comma separated list; a repository matches when it has any of them.
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(query.Get("per_page"))
	if err != nil {
		perPage = model.DefaultPerPage
	}

	names := make([]string, 0)
	for _, v := range query["dotfiles"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}

	result, err := h.RepoMd.List(r.Context(), model.Filter{
		Page:           page,
		PerPage:        perPage,
		Configurations: names,
	})
	if err != nil {
		h.Logger.Error(r.Context(), "Failed to list repositories: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch repositories")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listConfigurations(w http.ResponseWriter, r *http.Request) {
	names, err := h.ConfMd.Names(r.Context())
	if err != nil {
		h.Logger.Error(r.Context(), "Failed to list configurations: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch configurations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"configurations": names})
}
