package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type orderHandler struct {
	svc    OrderService
	logger *log.Entry
}

func (h *orderHandler) routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}/cancel", h.transition(h.svc.Cancel, "Order cancelled."))
	r.Put("/{id}/ship", h.transition(h.svc.Ship, "Order shipped."))
	r.Put("/{id}/pay", h.transition(h.svc.Pay, "Order paid."))
}

func (h *orderHandler) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]domain.OrderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, domain.OrderToDTO(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *orderHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	order, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.OrderToDTO(order))
}

func (h *orderHandler) create(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[domain.OrderDTO](r)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	order := domain.OrderFromDTO(*body)
	created, err := h.svc.Create(r.Context(), &order)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Location", location(r, created.ID))
	writeJSON(w, http.StatusCreated, domain.OrderToDTO(created))
}

func (h *orderHandler) transition(act func(ctx context.Context, id int64) error, done string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := act(r.Context(), id); err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeText(w, http.StatusOK, done)
	}
}
