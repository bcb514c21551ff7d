package controller

import (
	"errors"
	"math"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/factory"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/mapper"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/metrics"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/service"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/types"
)

const (
	codeValidation        = "VALIDATION_ERROR"
	codeUnauthenticated   = "UNAUTHENTICATED"
	codeForbidden         = "FORBIDDEN"
	codeNotFound          = "NOT_FOUND"
	codeVersionConflict   = "VERSION_CONFLICT"
	codeInvalidTransition = "INVALID_TRANSITION"
	codeTransient         = "TRANSIENT"
	codePermanent         = "PERMANENT"
)

type OrderController struct {
	orderService *service.OrderService
	counters     *metrics.Counters
	serviceName  string
	logger       logrus.FieldLogger
}

func NewOrderController(orderService *service.OrderService, counters *metrics.Counters, serviceName string) *OrderController {
	return &OrderController{
		orderService: orderService,
		counters:     counters,
		serviceName:  serviceName,
		logger:       factory.NewModuleLogger("orders-controller"),
	}
}

func (c *OrderController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok", Service: c.serviceName})
}

func (c *OrderController) Metrics(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.counters.Snapshot())
}

func (c *OrderController) CreateOrder(ctx echo.Context) error {
	identity := types.IdentityFromContext(ctx)
	req, err := types.NewCreateOrderRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, err.Error())
	}

	// a replayed token gets the same response as the first submission; the
	// fresh-versus-replay distinction feeds telemetry only
	order, _, err := c.orderService.CreateOrder(
		ctx.Request().Context(),
		identity.UserID,
		mapper.ItemsToEntity(req.Items),
		req.ClientToken,
	)
	if err != nil {
		return c.writeServiceError(ctx, err, "Create order failed")
	}

	return ctx.JSON(http.StatusCreated, &types.OrderEnvelopeResponse{Order: mapper.OrderToResponse(order)})
}

func (c *OrderController) GetOrder(ctx echo.Context) error {
	identity := types.IdentityFromContext(ctx)
	req, err := types.NewGetOrderRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, "invalid order id")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, err.Error())
	}

	order, err := c.orderService.GetOrder(ctx.Request().Context(), req.ID, identity.UserID, identity.Role)
	if err != nil {
		return c.writeServiceError(ctx, err, "Get order failed")
	}

	return ctx.JSON(http.StatusOK, &types.OrderEnvelopeResponse{Order: mapper.OrderToResponse(order)})
}

func (c *OrderController) ListOrders(ctx echo.Context) error {
	identity := types.IdentityFromContext(ctx)
	req, err := types.NewListOrdersRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, err.Error())
	}

	orders, total, err := c.orderService.ListOrders(ctx.Request().Context(), service.ListOrdersQuery{
		UserID: identity.UserID,
		Role:   identity.Role,
		Status: req.Status,
		Query:  req.Query,
		Page:   req.Page,
		Limit:  req.Limit,
	})
	if err != nil {
		return c.writeServiceError(ctx, err, "List orders failed")
	}

	pages := int64(math.Ceil(float64(total) / float64(req.Limit)))
	return ctx.JSON(http.StatusOK, &types.ListOrdersResponse{
		Orders: mapper.OrdersToResponse(orders),
		Total:  total,
		Page:   req.Page,
		Limit:  req.Limit,
		Pages:  pages,
	})
}

func (c *OrderController) UpdateOrderStatus(ctx echo.Context) error {
	identity := types.IdentityFromContext(ctx)
	req, err := types.NewUpdateOrderStatusRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, err.Error())
	}

	order, err := c.orderService.UpdateStatus(ctx.Request().Context(), req.ID, req.Version, req.Status, identity.Role)
	if err != nil {
		return c.writeServiceError(ctx, err, "Update order status failed")
	}

	return ctx.JSON(http.StatusOK, &types.OrderEnvelopeResponse{Order: mapper.OrderToResponse(order)})
}

func (c *OrderController) InitiatePayment(ctx echo.Context) error {
	identity := types.IdentityFromContext(ctx)
	req, err := types.NewInitiatePaymentRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, codeValidation, err.Error())
	}

	intent, err := c.orderService.InitiatePayment(ctx.Request().Context(), req.OrderID, identity.UserID, identity.Role)
	if err != nil {
		return c.writeServiceError(ctx, err, "Initiate payment failed")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentIntentResponse{
		PaymentID:   intent.PaymentID,
		OrderID:     intent.OrderID,
		AmountCents: intent.AmountCents,
		RedirectURL: intent.RedirectURL,
	})
}

func (c *OrderController) writeServiceError(ctx echo.Context, err error, logMessage string) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return writeError(ctx, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		return writeError(ctx, http.StatusUnauthorized, codeUnauthenticated, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return writeError(ctx, http.StatusForbidden, codeForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return writeError(ctx, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, service.ErrVersionConflict):
		return writeError(ctx, http.StatusConflict, codeVersionConflict, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		return writeError(ctx, http.StatusConflict, codeInvalidTransition, err.Error())
	case errors.Is(err, service.ErrTransient):
		c.logger.WithError(err).Warn(logMessage)
		return writeError(ctx, http.StatusServiceUnavailable, codeTransient, "temporarily unavailable, retry later")
	case errors.Is(err, service.ErrPermanent):
		c.logger.WithError(err).Error(logMessage)
		return writeError(ctx, http.StatusInternalServerError, codePermanent, "request cannot be processed")
	default:
		c.logger.WithError(err).Error(logMessage)
		return writeError(ctx, http.StatusInternalServerError, codePermanent, "internal server error")
	}
}

func writeError(ctx echo.Context, statusCode int, code, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Code: code, Message: message})
}
