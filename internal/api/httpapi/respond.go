package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

const (
	msgGenericFailure = "An error happened. Try again."
	msgNoStock        = "Not enough items in stock."
)

// errEmptyBody: тело запроса отсутствует или равно null.
var errEmptyBody = errors.New("request body is required")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

// writeError переводит доменную ошибку в HTTP-ответ.
// Ошибки отказа (остаток, кредит, транспорт) проверяются раньше ErrNotFound,
// потому что могут его оборачивать.
func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidTransition):
		writeText(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrCreditRejected):
		writeText(w, http.StatusInternalServerError, msgNoStock)
	case errors.Is(err, domain.ErrTransport), errors.Is(err, domain.ErrPersistence):
		logger.WithError(err).Error("request failed")
		writeText(w, http.StatusInternalServerError, msgGenericFailure)
	case errors.Is(err, domain.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	default:
		logger.WithError(err).Error("unexpected error")
		writeText(w, http.StatusInternalServerError, msgGenericFailure)
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// decodeBody разбирает JSON-тело. Пустое тело и null дают errEmptyBody.
func decodeBody[T any](r *http.Request) (*T, error) {
	var v *T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyBody
		}
		return nil, err
	}
	if v == nil {
		return nil, errEmptyBody
	}
	return v, nil
}

func location(r *http.Request, id int64) string {
	base := r.URL.Path
	if len(base) > 1 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/" + strconv.FormatInt(id, 10)
}
