package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"legacyorders/internal/legacy"
	"legacyorders/internal/logging"
	"legacyorders/internal/order"
)

// dateParamLayout is the wire format for startDate/endDate query params.
const dateParamLayout = "2006-01-02"

// handleUpload ingests a fixed-width order file and responds with the
// normalized customers, orders, and products parsed from it.
//
// The whole file is processed in a single database transaction: a file
// that fails to decode leaves no trace in the store.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.service.AcquireIngest(ctx); err != nil {
		if errors.Is(err, order.ErrTooManyIngests) {
			w.Header().Set("Retry-After", "30")
			respondError(w, r, err, http.StatusTooManyRequests, codeBusy,
				"too many concurrent uploads, retry shortly")
			return
		}
		respondError(w, r, err, http.StatusInternalServerError, codeInternal,
			"could not schedule upload")
		return
	}
	defer s.service.ReleaseIngest()

	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		respondError(w, r, err, http.StatusBadRequest, codeBadRequest,
			"file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest, codeMissingFile,
			"no file provided")
		return
	}
	defer file.Close()

	if header.Size == 0 {
		writeError(w, r, http.StatusBadRequest, codeEmptyFile, "empty file")
		return
	}

	ingestID := uuid.NewString()
	logger := logging.WithFields(ctx,
		"ingest_id", ingestID,
		"filename", header.Filename,
		"size", header.Size,
	)
	logger.Info("upload started")

	counting := legacy.WrapUpload(file)
	customers, err := s.service.ProcessFile(ctx, counting)
	if err != nil {
		var decodeErr *legacy.DecodeErr
		if errors.As(err, &decodeErr) {
			logger.Warn("upload rejected", "error", err)
			respondError(w, r, err, http.StatusBadRequest, codeMalformedFile, err.Error())
			return
		}
		respondError(w, r, err, http.StatusInternalServerError, codeInternal,
			"failed to process file")
		return
	}

	logger.Info("upload completed",
		"customers", len(customers),
		"bytes_read", counting.BytesRead,
	)

	w.Header().Set("X-Ingest-Id", ingestID)
	writeJSON(w, http.StatusOK, customers)
}

// handleListOrders returns stored orders grouped by customer.
//
// Query params:
//   - orderId: exact order ID; takes precedence over the date filters
//   - startDate, endDate: inclusive purchase date range (YYYY-MM-DD);
//     both must be present for the range to apply
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	var params order.QueryParams

	q := r.URL.Query()
	if raw := q.Get("orderId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, r, err, http.StatusBadRequest, codeInvalidParam,
				"orderId must be an integer")
			return
		}
		params.OrderID = &id
	}

	if raw := q.Get("startDate"); raw != "" {
		t, err := time.Parse(dateParamLayout, raw)
		if err != nil {
			respondError(w, r, err, http.StatusBadRequest, codeInvalidParam,
				"startDate must be YYYY-MM-DD")
			return
		}
		params.StartDate = &t
	}

	if raw := q.Get("endDate"); raw != "" {
		t, err := time.Parse(dateParamLayout, raw)
		if err != nil {
			respondError(w, r, err, http.StatusBadRequest, codeInvalidParam,
				"endDate must be YYYY-MM-DD")
			return
		}
		params.EndDate = &t
	}

	customers, err := s.service.Query(r.Context(), params)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError, codeInternal,
			"failed to query orders")
		return
	}

	writeJSON(w, http.StatusOK, customers)
}

// handleHealth reports service and database health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable, codeInternal,
			"database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
