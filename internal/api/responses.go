package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/zkreputation/verification-node/internal/buildinfo"
	"github.com/zkreputation/verification-node/internal/core/domain"
	"github.com/zkreputation/verification-node/internal/log"
	"github.com/zkreputation/verification-node/internal/timeapi"
)

// GenericErrorMessage defines model for GenericErrorMessage.
type GenericErrorMessage struct {
	Message string `json:"message"`
}

// CreateSessionRequest defines model for CreateSessionRequest.
type CreateSessionRequest struct {
	WalletAddress string          `json:"walletAddress"`
	Config        json.RawMessage `json:"config,omitempty"`
}

// UpdateSessionStatusRequest defines model for UpdateSessionStatusRequest.
type UpdateSessionStatusRequest struct {
	Status        string  `json:"status"`
	QRCodeData    *string `json:"qrCodeData,omitempty"`
	UniversalLink *string `json:"universalLink,omitempty"`
}

// VerificationData defines model for VerificationData.
type VerificationData struct {
	Nationality string       `json:"nationality"`
	Gender      string       `json:"gender"`
	Age         int          `json:"age"`
	TxHash      string       `json:"txHash"`
	Timestamp   timeapi.Time `json:"timestamp"`
}

// Session defines model for Session.
type Session struct {
	SessionID        string            `json:"sessionId"`
	WalletAddress    string            `json:"walletAddress"`
	Status           string            `json:"status"`
	Config           json.RawMessage   `json:"config,omitempty"`
	QRCodeData       *string           `json:"qrCodeData,omitempty"`
	UniversalLink    *string           `json:"universalLink,omitempty"`
	VerificationData *VerificationData `json:"verificationData,omitempty"`
	TxHash           *string           `json:"txHash,omitempty"`
	ExpiresAt        timeapi.Time      `json:"expiresAt"`
	CompletedAt      *timeapi.Time     `json:"completedAt,omitempty"`
	CreatedAt        timeapi.Time      `json:"createdAt"`
	UpdatedAt        timeapi.Time      `json:"updatedAt"`
}

// ListenerStatus defines model for ListenerStatus.
type ListenerStatus struct {
	Running            bool   `json:"running"`
	LastProcessedBlock uint64 `json:"lastProcessedBlock"`
}

// StatusResponse defines model for StatusResponse.
type StatusResponse struct {
	Status   map[string]bool `json:"status"`
	Listener *ListenerStatus `json:"listener,omitempty"`
	Build    buildinfo.Info  `json:"build"`
}

func sessionResponse(vs *domain.VerificationSession) Session {
	res := Session{
		SessionID:     vs.SessionID,
		WalletAddress: vs.WalletAddress,
		Status:        string(vs.Status),
		Config:        vs.VerificationConfig,
		QRCodeData:    vs.QRCodeData,
		UniversalLink: vs.UniversalLink,
		TxHash:        vs.TxHash,
		ExpiresAt:     timeapi.New(vs.ExpiresAt),
		CompletedAt:   timeapi.Ptr(vs.CompletedAt),
		CreatedAt:     timeapi.New(vs.CreatedAt),
		UpdatedAt:     timeapi.New(vs.UpdatedAt),
	}
	if vd := vs.VerificationData; vd != nil {
		res.VerificationData = &VerificationData{
			Nationality: vd.Nationality,
			Gender:      vd.Gender,
			Age:         vd.Age,
			TxHash:      vd.TxHash,
			Timestamp:   timeapi.New(vd.Timestamp),
		}
	}
	return res
}

func sessionsResponse(sessions []domain.VerificationSession) []Session {
	res := make([]Session, len(sessions))
	for i := range sessions {
		res[i] = sessionResponse(&sessions[i])
	}
	return res
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn(ctx, "writing response", "err", err)
	}
}
