package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type productHandler struct {
	svc    ProductService
	logger *log.Entry
}

func (h *productHandler) routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

func (h *productHandler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]domain.ProductDTO, 0, len(products))
	for _, p := range products {
		out = append(out, domain.ProductToDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *productHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ProductToDTO(p))
}

func (h *productHandler) create(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[domain.ProductDTO](r)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.Create(r.Context(), domain.ProductFromDTO(*body))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Location", location(r, created.ID))
	writeJSON(w, http.StatusCreated, domain.ProductToDTO(created))
}

func (h *productHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	body, err := decodeBody[domain.ProductDTO](r)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Update(r.Context(), id, domain.ProductFromDTO(*body)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *productHandler) delete(w http.ResponseWriter, r *http.Request) {
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
