package intake_api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BearBump/TrackIntake/internal/barcode"
	"github.com/BearBump/TrackIntake/internal/csvcodec"
	"github.com/BearBump/TrackIntake/internal/integrations/transfer"
	"github.com/BearBump/TrackIntake/internal/models"
	"github.com/BearBump/TrackIntake/internal/records"
	"github.com/BearBump/TrackIntake/internal/services/export"
	"github.com/BearBump/TrackIntake/internal/services/intake"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// IntakeAPI: JSON-обёртка над сканированием, списком записей и выгрузкой.
type IntakeAPI struct {
	svc   *intake.Service
	orch  *export.Orchestrator
	relay transfer.Uploader
}

func New(svc *intake.Service, orch *export.Orchestrator) *IntakeAPI {
	return &IntakeAPI{svc: svc, orch: orch}
}

// WithRelay enables POST /api/upload-sftp, which forwards documents to u.
func (a *IntakeAPI) WithRelay(u transfer.Uploader) *IntakeAPI {
	a.relay = u
	return a
}

func (a *IntakeAPI) Routes(r chi.Router) {
	r.Post("/v1/scans", a.scan)
	r.Post("/v1/validate", a.validate)
	r.Get("/v1/records", a.listRecords)
	r.Delete("/v1/records", a.deleteRecords)
	r.Get("/v1/records.csv", a.document)
	r.Post("/v1/export", a.startExport)
	r.Post("/v1/export/download", a.resolveDownload)
	r.Get("/v1/export/state", a.exportState)
	if a.relay != nil {
		r.Post("/api/upload-sftp", a.uploadRelay)
	}
}

type codeRequest struct {
	Code string `json:"code"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Rule    int    `json:"rule,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var ve *barcode.ValidationError
	if errors.As(err, &ve) {
		resp.Rule = int(ve.Rule)
	}
	writeJSON(w, status, resp)
}

func (a *IntakeAPI) scan(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	rec, err := a.svc.Scan(r.Context(), req.Code)
	if err != nil {
		if intake.IsRejection(err) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		slog.Error("scan failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Record  models.TrackingRecord `json:"record"`
		Message string                `json:"message"`
	}{Record: rec, Message: intake.SuccessMessage})
}

func (a *IntakeAPI) validate(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	parsed, err := a.svc.Validate(req.Code)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, parsed)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func (a *IntakeAPI) listRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	desc, _ := strconv.ParseBool(q.Get("desc"))
	writeJSON(w, http.StatusOK, a.svc.List(records.ListOptions{
		SortKey: q.Get("sort"),
		Desc:    desc,
		Search:  q.Get("q"),
		Page:    queryInt(r, "page"),
		PerPage: queryInt(r, "per_page"),
	}))
}

func (a *IntakeAPI) deleteRecords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	removed, remaining := a.svc.Remove(r.Context(), req.IDs)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed, "remaining": remaining})
}

// document отдаёт текущий набор записей как CSV-файл без выгрузки и без очистки.
func (a *IntakeAPI) document(w http.ResponseWriter, r *http.Request) {
	recs := a.svc.Store().Snapshot()
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="export.csv"`)
	_, _ = w.Write(csvcodec.Document(recs))
}

type outcomeResponse struct {
	export.Outcome
	DismissAfterMs   int64 `json:"dismissAfterMs,omitempty"`
	AwaitingDownload bool  `json:"awaitingDownload"`
}

func exportStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, transfer.ErrUnreachable):
		return http.StatusServiceUnavailable
	case errors.Is(err, export.ErrNoRecords),
		errors.Is(err, export.ErrMixedPartners),
		errors.Is(err, export.ErrInProgress),
		errors.Is(err, export.ErrNoPendingDownload):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func writeOutcome(w http.ResponseWriter, out export.Outcome, err error) {
	writeJSON(w, exportStatus(err), outcomeResponse{
		Outcome:          out,
		DismissAfterMs:   out.DismissAfter.Milliseconds(),
		AwaitingDownload: out.State == export.StateAwaitingDownload,
	})
}

func (a *IntakeAPI) startExport(w http.ResponseWriter, r *http.Request) {
	out, err := a.orch.Export(r.Context())
	writeOutcome(w, out, err)
}

func (a *IntakeAPI) resolveDownload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	out, err := a.orch.ResolveDownload(r.Context(), req.Confirm)
	writeOutcome(w, out, err)
}

func (a *IntakeAPI) exportState(w http.ResponseWriter, r *http.Request) {
	pending, _ := a.orch.PendingFilename()
	writeJSON(w, http.StatusOK, struct {
		State           export.State `json:"state"`
		CanExport       bool         `json:"canExport"`
		PendingFilename string       `json:"pendingFilename,omitempty"`
		Records         int          `json:"records"`
	}{
		State:           a.orch.State(),
		CanExport:       a.orch.CanExport(),
		PendingFilename: pending,
		Records:         a.svc.Store().Len(),
	})
}

// uploadRelay принимает документ от удалённой станции и кладёт его на SFTP.
func (a *IntakeAPI) uploadRelay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string `json:"content"`
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "content and filename are required"})
		return
	}
	if err := a.relay.Upload(r.Context(), []byte(req.Content), req.Filename); err != nil {
		slog.Error("relay upload failed", "filename", req.Filename, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to upload file via SFTP",
			Details: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "filename": req.Filename})
}
