package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mgclub/smartpass/internal/auth"
	"github.com/mgclub/smartpass/internal/envelope"
	"github.com/mgclub/smartpass/internal/models"
	"github.com/mgclub/smartpass/internal/services"
	pkghttp "github.com/mgclub/smartpass/pkg/http"
)

// maxScanBody bounds scan request bodies; envelopes are well under 1 KiB
const maxScanBody = 4 << 10

// PassServiceInterface defines the pass operations the handler needs
type PassServiceInterface interface {
	Enroll(ctx context.Context, subjectID, email, encodedSecret, ipAddress string) (*models.PassCredential, error)
	Status(ctx context.Context, subjectID string) (*models.PassStatus, error)
	Revoke(ctx context.Context, subjectID, email, ipAddress string) error
	VerifyScan(ctx context.Context, req services.ScanRequest) (*models.ScanResult, error)
	VerifyEnvelope(ctx context.Context, env envelope.Envelope, ipAddress, userAgent string) (*models.ScanResult, error)
}

// PassHandler handles pass enrollment and scan verification requests
type PassHandler struct {
	service  PassServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewPassHandler creates a new pass handler
func NewPassHandler(service PassServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *PassHandler {
	return &PassHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Enroll handles POST /passes/enroll
func (h *PassHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req EnrollPassRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxScanBody)).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	cred, err := h.service.Enroll(r.Context(), user.UserID, user.Email, req.Secret, ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "A pass is already enrolled for this member")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Secret is not acceptable")
		default:
			h.logger.Error("failed to enroll pass", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Enrollment failed")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, EnrollPassResponse{
		SubjectID:  cred.SubjectID,
		DisplayID:  cred.DisplayID,
		EnrolledAt: cred.CreatedAt,
	})
}

// Status handles GET /passes/me
func (h *PassHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	status, err := h.service.Status(r.Context(), user.UserID)
	if err != nil {
		h.logger.Error("failed to load pass status", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to load pass")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, PassStatusResponse{
		Enrolled:   status.Enrolled,
		DisplayID:  status.DisplayID,
		EnrolledAt: status.EnrolledAt,
		LastScanAt: status.LastScanAt,
	})
}

// Revoke handles DELETE /passes/me
func (h *PassHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.service.Revoke(r.Context(), user.UserID, user.Email, ipAddress); err != nil {
		if errors.Is(err, models.ErrPassNotEnrolled) {
			pkghttp.WriteNotFound(w, "No pass enrolled")
			return
		}
		h.logger.Error("failed to revoke pass", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Revocation failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Scan handles POST /smartpass/scan
func (h *PassHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxScanBody)).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.VerifyScan(r.Context(), services.ScanRequest{
		SubjectID: req.SubjectID,
		Code:      req.Code,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.UserAgent(),
	})
	h.writeScanResult(w, result, err)
}

// ScanEnvelope handles POST /smartpass/scan/envelope with the raw QR payload as body
func (h *PassHandler) ScanEnvelope(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxScanBody))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}

	env, err := envelope.Parse(payload)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid pass envelope")
		return
	}

	result, err := h.service.VerifyEnvelope(r.Context(), env, pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent())
	h.writeScanResult(w, result, err)
}

func (h *PassHandler) writeScanResult(w http.ResponseWriter, result *models.ScanResult, err error) {
	if err != nil {
		if errors.Is(err, models.ErrScanRateLimited) {
			pkghttp.WriteJSON(w, http.StatusTooManyRequests, ScanResponse{
				Success: false,
				Reason:  models.ScanReasonRateLimited,
			})
			return
		}
		h.logger.Error("scan verification failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Verification failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ScanResponse{
		Success: result.Success,
		Reason:  result.Reason,
	})
}
