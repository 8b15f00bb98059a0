package service

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/mmynk/splitledger/internal/export"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
)

// ExportPath serves report downloads:
//
//	GET /export/expenses.{csv,xlsx}?group_id=&state=
//	GET /export/settlements.{csv,xlsx}?group_id=
const ExportPath = "/export/"

// ExportHandler renders group reports as spreadsheets. It expects the member
// ID in the request context.
type ExportHandler struct {
	engine *ledger.Engine
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(engine *ledger.Engine) *ExportHandler {
	return &ExportHandler{engine: engine}
}

func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, ext, _ := strings.Cut(path.Base(r.URL.Path), ".")
	format, err := export.ParseFormat(ext)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	ctx := r.Context()
	actor := middleware.GetMemberID(ctx)
	groupID := r.URL.Query().Get("group_id")

	_, members, err := h.engine.GetGroup(ctx, actor, groupID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	names := export.NamesOf(members)

	var table export.Table
	switch report {
	case "expenses":
		expenses, err := h.engine.ListExpenses(ctx, actor, groupID, models.State(r.URL.Query().Get("state")))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		table = export.Expenses(expenses, names)
	case "settlements":
		transfers, err := h.engine.GetSettlementSuggestions(ctx, actor, groupID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		table = export.Settlements(transfers, names)
	default:
		http.Error(w, fmt.Sprintf("unknown report %q", report), http.StatusNotFound)
		return
	}

	// Render fully before writing headers so a failure can still be reported.
	var buf bytes.Buffer
	if err := export.Write(&buf, format, table); err != nil {
		slog.ErrorContext(ctx, "Failed to render export", "report", report, "group_id", groupID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s_%s.%s", report, groupID, format)))
	if _, err := buf.WriteTo(w); err != nil {
		slog.WarnContext(ctx, "Failed to write export", "report", report, "error", err)
	}
}

func (h *ExportHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Export failed", "path", r.URL.Path, "error", err)
	}
	http.Error(w, errorMessage(err), status)
}
