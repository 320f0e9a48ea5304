package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/exp/slog"

	"github.com/ginjaninja78/sepa-export/internal/converter"
	"github.com/ginjaninja78/sepa-export/internal/types"
	"github.com/ginjaninja78/sepa-export/internal/validation"
	"github.com/ginjaninja78/sepa-export/internal/xmlwriter"
	"github.com/ginjaninja78/sepa-export/pkg/utils"
)

// exportResponse is the body of a successful POST /exports.
type exportResponse struct {
	File         string    `json:"file"`
	DownloadURL  string    `json:"download_url"`
	Transactions int       `json:"transactions"`
	ControlSum   string    `json:"control_sum"`
	Warnings     []warning `json:"warnings"`
}

// errorResponse is the body of a failed request.
type errorResponse struct {
	Error    string    `json:"error"`
	Problems []string  `json:"problems,omitempty"`
	Warnings []warning `json:"warnings,omitempty"`
}

type warning struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
	Value    string `json:"value,omitempty"`
}

func toWarnings(rejections []types.Rejection) []warning {
	warnings := make([]warning, 0, len(rejections))
	for _, r := range rejections {
		warnings = append(warnings, warning{
			MemberID: r.MemberID,
			Name:     r.Name,
			Reason:   string(r.Reason),
			Value:    r.Value,
		})
	}
	return warnings
}

// writeProblems answers 422 with every club profile problem.
func writeProblems(w http.ResponseWriter, problems []*validation.ValidationError) {
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.Error()
	}
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: converter.ErrConfigurationInvalid.Error(), Problems: msgs})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed form data"})
		return
	}

	date, err := validation.NormalizeExecutionDate(r.PostForm.Get("execution_date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	club, err := s.config.ClubProfile(date, r.PostForm.Get("purpose"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	if problems := validation.ValidateClub(club); len(problems) > 0 {
		writeProblems(w, problems)
		return
	}

	rows, err := s.loadMembers(r.Context())
	if err != nil {
		s.logger.Error("loading members", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load members"})
		return
	}

	now := s.now()
	builder := xmlwriter.NewBuilder()
	builder.Now = func() time.Time { return now }

	result, err := converter.Export(club, rows, converter.Options{
		AllowEmpty: s.config.AllowEmptyExport,
		Builder:    builder,
	})
	if result != nil {
		for _, rejection := range result.Rejections {
			s.logger.Warn("member skipped",
				slog.String("member_id", rejection.MemberID),
				slog.String("name", rejection.Name),
				slog.String("reason", string(rejection.Reason)),
				slog.String("value", rejection.Value),
			)
		}
	}

	var cfgErr *converter.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		writeProblems(w, cfgErr.Problems)
		return
	case errors.Is(err, converter.ErrEmptyResult):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Warnings: toWarnings(result.Rejections)})
		return
	case err != nil:
		s.logger.Error("export failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "export failed"})
		return
	}

	name, err := s.store.Save(now, result.XML)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, utils.ErrExists) {
			status = http.StatusConflict
		}
		s.logger.Error("storing export", slog.Any("err", err))
		writeJSON(w, status, errorResponse{Error: "failed to store export"})
		return
	}

	s.logger.Info("export created",
		slog.String("file", name),
		slog.Int("transactions", result.Stats.Accepted),
		slog.Int("rejected", result.Stats.Rejected),
		slog.String("control_sum", result.Stats.ControlSum.StringFixed(2)),
	)

	writeJSON(w, http.StatusCreated, exportResponse{
		File:         name,
		DownloadURL:  "/download?file=" + url.QueryEscape(name),
		Transactions: result.Stats.Accepted,
		ControlSum:   result.Stats.ControlSum.StringFixed(2),
		Warnings:     toWarnings(result.Rejections),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name, path, err := s.store.Path(r.URL.Query().Get("file"))
	switch {
	case errors.Is(err, utils.ErrInvalidName):
		http.Error(w, "invalid file name", http.StatusBadRequest)
		return
	case errors.Is(err, utils.ErrNotFound):
		http.Error(w, "file not found", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error("resolving download", slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, file); err != nil {
		s.logger.Warn("download interrupted", slog.String("file", name), slog.Any("err", err))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
