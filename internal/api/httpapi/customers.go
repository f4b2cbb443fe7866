package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type customerHandler struct {
	svc    CustomerService
	logger *log.Entry
}

func (h *customerHandler) routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

func (h *customerHandler) list(w http.ResponseWriter, r *http.Request) {
	customers, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]domain.CustomerDTO, 0, len(customers))
	for _, c := range customers {
		out = append(out, domain.CustomerToDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *customerHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CustomerToDTO(c))
}

func (h *customerHandler) create(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[domain.CustomerDTO](r)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.Create(r.Context(), domain.CustomerFromDTO(*body))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Location", location(r, created.ID))
	writeJSON(w, http.StatusCreated, domain.CustomerToDTO(created))
}

func (h *customerHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	body, err := decodeBody[domain.CustomerDTO](r)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Update(r.Context(), id, domain.CustomerFromDTO(*body)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *customerHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
