package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"funding-service/internal/services"
	"funding-service/pkg/common"

	"github.com/gin-gonic/gin"
)

// SignatureHeader is the header the gateway signs notifications with.
const SignatureHeader = "monnify-signature"

type WebhookHandler struct {
	Webhooks *services.WebhookService
	log      *zap.SugaredLogger
}

func NewWebhookHandler(webhooks *services.WebhookService, log *zap.SugaredLogger) *WebhookHandler {
	return &WebhookHandler{Webhooks: webhooks, log: log}
}

// Receive ingests one gateway notification. The raw body is read exactly as
// sent: the signature covers the bytes on the wire, not a re-serialization.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("unreadable body", nil, http.StatusBadRequest))
		return
	}

	ack, err := h.Webhooks.Ingest(c.Request.Context(), body, c.GetHeader(SignatureHeader))
	switch {
	case errors.Is(err, services.ErrMalformedEnvelope):
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("malformed event envelope", nil, http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, common.NewErrorResponse("invalid signature", nil, http.StatusUnauthorized))
	case err != nil:
		// Could not durably record the delivery; the gateway must redeliver.
		h.log.Errorw("webhook ingestion failed", "error", err)
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse("could not record notification", nil, http.StatusInternalServerError))
	default:
		c.JSON(http.StatusOK, ack)
	}
}
