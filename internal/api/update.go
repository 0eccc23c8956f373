package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/devnode/internal/api/models"
	"github.com/smazurov/devnode/internal/updater"
)

// registerUpdateRoutes registers the self-update endpoints. A disabled
// updater answers 503 on every route.
func (s *Server) registerUpdateRoutes() {
	svc := s.options.Updater
	if svc == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "check-updates",
		Method:      http.MethodGet,
		Path:        "/api/update/check",
		Summary:     "Check for Updates",
		Description: "Check if a newer release is available without downloading",
		Tags:        []string{"update"},
		Errors:      []int{401, 404, 409, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateCheckResponse, error) {
		info, err := svc.CheckForUpdate(ctx)
		if err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.UpdateCheckResponse{Body: *info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-update-status",
		Method:      http.MethodGet,
		Path:        "/api/update/status",
		Summary:     "Get Update Status",
		Description: "Get the current update state and backup availability",
		Tags:        []string{"update"},
		Errors:      []int{401, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateStatusResponse, error) {
		if !svc.IsEnabled() {
			return nil, huma.Error503ServiceUnavailable("Update service disabled: " + svc.DisabledReason())
		}
		return &models.UpdateStatusResponse{Body: *svc.GetStatus(ctx)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-update",
		Method:      http.MethodPost,
		Path:        "/api/update/apply",
		Summary:     "Apply Update",
		Description: "Download and install the latest release, then restart. Dev servers are stopped by the restart.",
		Tags:        []string{"update"},
		Errors:      []int{400, 401, 404, 409, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := svc.ApplyUpdate(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.MessageResponse{Body: models.MessageData{Message: "Update applied, restarting"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "rollback-update",
		Method:      http.MethodPost,
		Path:        "/api/update/rollback",
		Summary:     "Rollback Update",
		Description: "Restore the previously installed binary, then restart",
		Tags:        []string{"update"},
		Errors:      []int{401, 404, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := svc.Rollback(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.MessageResponse{Body: models.MessageData{Message: "Rollback complete, restarting"}}, nil
	})
}

// mapUpdateError converts updater errors to Huma HTTP errors.
func mapUpdateError(err error) error {
	var updateErr *updater.Error
	if !errors.As(err, &updateErr) {
		return huma.Error500InternalServerError(err.Error())
	}
	status, ok := updateStatus[updateErr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return huma.NewError(status, updateErr.Message)
}

var updateStatus = map[updater.Code]int{
	updater.ErrCodeInvalidState: http.StatusConflict,
	updater.ErrCodeNoUpdate:     http.StatusBadRequest,
	updater.ErrCodeNotFound:     http.StatusNotFound,
	updater.ErrCodeNoBackup:     http.StatusNotFound,
	updater.ErrCodeDisabled:     http.StatusServiceUnavailable,
	updater.ErrCodeBusy:         http.StatusConflict,
}
