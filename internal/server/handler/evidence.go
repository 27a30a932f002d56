package handler

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
)

// EvidenceLoader reads archived canonical evidence by hash.
type EvidenceLoader interface {
	Load(ctx context.Context, hash string) ([]byte, error)
}

// EvidenceHandler serves archived evidence for audit replay.
type EvidenceHandler struct {
	archive EvidenceLoader
	logger  *slog.Logger
}

// NewEvidenceHandler creates an EvidenceHandler.
func NewEvidenceHandler(archive EvidenceLoader, logger *slog.Logger) *EvidenceHandler {
	return &EvidenceHandler{archive: archive, logger: logHandler(logger, "evidence")}
}

// Get returns the canonical evidence payload stored under a hash.
// GET /api/evidence/{hash}
func (h *EvidenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	hash := strings.ToLower(pathParam(r, "hash"))
	if !isEvidenceHash(hash) {
		writeError(w, http.StatusBadRequest, "invalid_request", "hash must be 64 hex characters")
		return
	}
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "not_found", "evidence archive is disabled")
		return
	}

	data, err := h.archive.Load(r.Context(), hash)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func isEvidenceHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
