// Package middleware はHTTPミドルウェアと監査ログを提供する。
package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// 監査ログの結果値。
const (
	AuditResultSuccess = "SUCCESS"
	AuditResultFailed  = "FAILED"
)

// WriteAuditLog はスキーマ変更操作の監査ログを出力する。
func WriteAuditLog(ctx context.Context, operation string, runID string, versions []string, result string) {
	slog.InfoContext(ctx, "migration operation completed",
		"operation", operation,
		"run_id", runID,
		"versions", strings.Join(versions, ","),
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
