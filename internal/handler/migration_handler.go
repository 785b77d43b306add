// Package handler はHTTPハンドラを提供する。
package handler

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"migration-service/internal/domain"
	"migration-service/internal/middleware"
	"migration-service/internal/usecase"
	"migration-service/pkg/httputil"
)

var versionRegex = regexp.MustCompile(`^[0-9]{14}$`)

// MigrationHandler はHTTPハンドラを提供する。
type MigrationHandler struct {
	service *usecase.MigrationService
}

// NewMigrationHandler は新しいMigrationHandlerを生成する。
func NewMigrationHandler(service *usecase.MigrationService) *MigrationHandler {
	return &MigrationHandler{service: service}
}

// validVersion はバージョンが14桁のタイムスタンプ形式か判定する。
func validVersion(version string) bool {
	return versionRegex.MatchString(version)
}

// parseSteps はクエリパラメータ steps を読む。未指定の場合は defaultSteps。
func parseSteps(r *http.Request, defaultSteps int) (int, error) {
	raw := r.URL.Query().Get("steps")
	if raw == "" {
		return defaultSteps, nil
	}
	steps, err := strconv.Atoi(raw)
	if err != nil || steps < 0 {
		return 0, domain.ErrInvalidSteps
	}
	return steps, nil
}

// MigrationResponse はマイグレーション状況のレスポンス形式。
type MigrationResponse struct {
	Version   string  `json:"version"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	AppliedAt *string `json:"applied_at"`
}

// MigrationListResponse はマイグレーション一覧のレスポンス形式。
type MigrationListResponse struct {
	Migrations []MigrationResponse `json:"migrations"`
}

// MigrationRunResponse はマイグレーション実行結果のレスポンス形式。
type MigrationRunResponse struct {
	RunID     string   `json:"run_id"`
	Direction string   `json:"direction"`
	Versions  []string `json:"versions"`
}

func toMigrationResponse(m *domain.Migration) MigrationResponse {
	resp := MigrationResponse{
		Version: m.Version,
		Name:    m.Name,
		Status:  string(m.Status),
	}
	if m.AppliedAt != nil {
		appliedAt := m.AppliedAt.UTC().Format(time.RFC3339)
		resp.AppliedAt = &appliedAt
	}
	return resp
}

func toRunResponse(run *domain.MigrationRun) MigrationRunResponse {
	versions := run.Versions
	if versions == nil {
		versions = []string{}
	}
	return MigrationRunResponse{
		RunID:     run.RunID,
		Direction: string(run.Direction),
		Versions:  versions,
	}
}

// writeRunError は実行系エラーをHTTPステータスに変換する。
func writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSteps):
		httputil.Error(w, http.StatusBadRequest, "INVALID_STEPS", "steps must be a non-negative integer")
	case errors.Is(err, domain.ErrNoAppliedMigrations):
		httputil.Error(w, http.StatusConflict, "NO_APPLIED_MIGRATIONS", "no applied migrations to roll back")
	case errors.Is(err, domain.ErrUnknownMigration), errors.Is(err, domain.ErrDuplicateMigration):
		httputil.Error(w, http.StatusConflict, "MIGRATION_CONFLICT", err.Error())
	case errors.Is(err, domain.ErrMigrationFailed), errors.Is(err, domain.ErrRollbackFailed):
		httputil.Error(w, http.StatusInternalServerError, "MIGRATION_FAILED", err.Error())
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// HealthCheck は稼働確認用のエンドポイント。
func (h *MigrationHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListMigrations は登録済みマイグレーションの状況一覧を返す。
func (h *MigrationHandler) ListMigrations(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.GetMigrationStatus(r.Context())
	if err != nil {
		writeRunError(w, err)
		return
	}

	response := MigrationListResponse{
		Migrations: make([]MigrationResponse, len(all)),
	}
	for i, m := range all {
		response.Migrations[i] = toMigrationResponse(m)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// GetMigration は指定バージョンのマイグレーション状況を返す。
func (h *MigrationHandler) GetMigration(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	if !validVersion(version) {
		httputil.Error(w, http.StatusBadRequest, "INVALID_VERSION", "version must be 14 digits")
		return
	}

	m, err := h.service.GetMigration(r.Context(), version)
	if err != nil {
		if errors.Is(err, domain.ErrMigrationNotFound) {
			httputil.Error(w, http.StatusNotFound, "MIGRATION_NOT_FOUND", "migration not found")
			return
		}
		writeRunError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, toMigrationResponse(m))
}

// ApplyMigrations は未適用マイグレーションを適用する。steps 未指定時は全件。
func (h *MigrationHandler) ApplyMigrations(w http.ResponseWriter, r *http.Request) {
	steps, err := parseSteps(r, 0)
	if err != nil {
		writeRunError(w, err)
		return
	}

	run, err := h.service.ApplyMigrations(r.Context(), steps)
	if err != nil {
		if run != nil {
			middleware.WriteAuditLog(r.Context(), "MIGRATE_UP", run.RunID, run.Versions, middleware.AuditResultFailed)
		} else {
			middleware.WriteAuditLog(r.Context(), "MIGRATE_UP", "", nil, middleware.AuditResultFailed)
		}
		writeRunError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "MIGRATE_UP", run.RunID, run.Versions, middleware.AuditResultSuccess)
	httputil.JSON(w, http.StatusOK, toRunResponse(run))
}

// RollbackMigrations は適用済みマイグレーションを取り消す。steps 未指定時は1件。
func (h *MigrationHandler) RollbackMigrations(w http.ResponseWriter, r *http.Request) {
	steps, err := parseSteps(r, 1)
	if err != nil {
		writeRunError(w, err)
		return
	}

	run, err := h.service.RollbackMigrations(r.Context(), steps)
	if err != nil {
		if run != nil {
			middleware.WriteAuditLog(r.Context(), "MIGRATE_DOWN", run.RunID, run.Versions, middleware.AuditResultFailed)
		} else {
			middleware.WriteAuditLog(r.Context(), "MIGRATE_DOWN", "", nil, middleware.AuditResultFailed)
		}
		writeRunError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "MIGRATE_DOWN", run.RunID, run.Versions, middleware.AuditResultSuccess)
	httputil.JSON(w, http.StatusOK, toRunResponse(run))
}
