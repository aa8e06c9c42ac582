// Package httpapi exposes verification as a single query-and-respond
// HTTP endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/mailprobe/mailprobe"
)

// Verifier is the slice of mailprobe.Verifier the API depends on.
type Verifier interface {
	Verify(ctx context.Context, address string, ident ...mailprobe.Identity) (bool, error)
}

type handler struct {
	verifier Verifier
	logger   *slog.Logger
	timeout  time.Duration
}

// New builds the HTTP router over the given verifier. timeout bounds each
// verification request; zero means no bound beyond the client's.
func New(v Verifier, logger *slog.Logger, timeout time.Duration) http.Handler {
	h := &handler{verifier: v, logger: logger, timeout: timeout}

	router := httprouter.New()
	router.GET("/v1/verify", h.verify)
	router.GET("/healthz", h.healthz)
	return router
}

type verifyResponse struct {
	Address     string `json:"address"`
	Deliverable bool   `json:"deliverable"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := uuid.NewString()
	q := r.URL.Query()

	address := q.Get("address")
	if address == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing address parameter"})
		return
	}

	var ident []mailprobe.Identity
	if d, a := q.Get("sender_domain"), q.Get("sender_address"); d != "" || a != "" {
		ident = append(ident, mailprobe.Identity{SenderDomain: d, SenderAddress: a})
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	deliverable, err := h.verifier.Verify(ctx, address, ident...)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, mailprobe.ErrInvalidAddress) {
			status = http.StatusBadRequest
		}
		h.logger.Warn("verification failed",
			"request_id", requestID, "address", address,
			"status", status, "error", err)
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	h.logger.Info("verification complete",
		"request_id", requestID, "address", address,
		"deliverable", deliverable, "duration", time.Since(start))
	writeJSON(w, http.StatusOK, verifyResponse{Address: address, Deliverable: deliverable})
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
