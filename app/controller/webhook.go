package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/factory"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/mapper"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/service"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/types"
)

const HeaderSignature = "X-Signature"

type WebhookController struct {
	webhookService *service.WebhookService
	logger         logrus.FieldLogger
}

func NewWebhookController(webhookService *service.WebhookService) *WebhookController {
	return &WebhookController{
		webhookService: webhookService,
		logger:         factory.NewModuleLogger("webhook-controller"),
	}
}

// HandleWebhook accepts provider payment notifications. The raw body is
// needed for signature verification, so binding happens in the service.
func (c *WebhookController) HandleWebhook(ctx echo.Context) error {
	payload, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, "failed to read request body")
	}

	ack, err := c.webhookService.HandleWebhook(ctx.Request().Context(), payload, ctx.Request().Header.Get(HeaderSignature))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnauthenticated):
			return writeError(ctx, http.StatusUnauthorized, codeUnauthenticated, "invalid webhook signature")
		case errors.Is(err, service.ErrValidation):
			return writeError(ctx, http.StatusBadRequest, codeValidation, err.Error())
		case errors.Is(err, service.ErrTransient):
			// non-ack so the provider redelivers while the retry runs
			return writeError(ctx, http.StatusServiceUnavailable, codeTransient, "webhook deferred, retry in progress")
		default:
			c.logger.WithError(err).Error("Handle webhook failed")
			return writeError(ctx, http.StatusInternalServerError, codePermanent, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Status: ack})
}

func (c *WebhookController) ListDeadLetters(ctx echo.Context) error {
	identity := types.IdentityFromContext(ctx)
	if !identity.Admin() {
		return writeError(ctx, http.StatusForbidden, codeForbidden, "admin role required")
	}

	req, err := types.NewListDeadLettersRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, err.Error())
	}

	records, err := c.webhookService.ListDeadLetters(ctx.Request().Context(), req.Limit, req.Offset)
	if err != nil {
		c.logger.WithError(err).Error("List dead letters failed")
		return writeError(ctx, http.StatusServiceUnavailable, codeTransient, "temporarily unavailable, retry later")
	}

	return ctx.JSON(http.StatusOK, &types.ListDeadLettersResponse{DeadLetters: mapper.DeadLettersToResponse(records)})
}
