package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("sku", func(fl validator.FieldLevel) bool {
		return skuPattern.MatchString(fl.Field().String())
	})
	return v
}

type OrderItemPayload struct {
	SKU string `json:"sku" validate:"required,sku"`
	Qty int32  `json:"qty" validate:"required,min=1"`
}

type CreateOrderRequest struct {
	Items       []OrderItemPayload `json:"items" validate:"required,min=1,dive"`
	ClientToken string             `json:"client_token" validate:"required,max=128"`
}

func NewCreateOrderRequestFromContext(ctx echo.Context) (*CreateOrderRequest, error) {
	var body CreateOrderRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.ClientToken = strings.TrimSpace(body.ClientToken)
	if body.ClientToken == "" {
		body.ClientToken = strings.TrimSpace(ctx.Request().Header.Get("X-Client-Token"))
	}
	for i := range body.Items {
		body.Items[i].SKU = strings.TrimSpace(body.Items[i].SKU)
	}

	return &body, nil
}

func (r *CreateOrderRequest) Validate() error {
	return normalizeValidationError(validate.Struct(r))
}

type GetOrderRequest struct {
	ID uint64
}

func NewGetOrderRequestFromContext(ctx echo.Context) (*GetOrderRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, errors.New("invalid order id")
	}
	return &GetOrderRequest{ID: id}, nil
}

func (r *GetOrderRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid order id")
	}
	return nil
}

type ListOrdersRequest struct {
	Status string
	Query  string
	Page   int32
	Limit  int32
}

func NewListOrdersRequestFromContext(ctx echo.Context) (*ListOrdersRequest, error) {
	req := &ListOrdersRequest{
		Status: strings.ToUpper(strings.TrimSpace(ctx.QueryParam("status"))),
		Query:  strings.TrimSpace(ctx.QueryParam("q")),
		Page:   1,
		Limit:  10,
	}

	if pageRaw := strings.TrimSpace(ctx.QueryParam("page")); pageRaw != "" {
		page, err := strconv.ParseInt(pageRaw, 10, 32)
		if err != nil {
			return nil, errors.New("invalid page")
		}
		req.Page = int32(page)
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, errors.New("invalid limit")
		}
		req.Limit = int32(limit)
	}

	return req, nil
}

func (r *ListOrdersRequest) Validate() error {
	if r.Page < 1 {
		return errors.New("page must be >= 1")
	}
	if r.Limit < 1 || r.Limit > 100 {
		return errors.New("limit must be between 1 and 100")
	}
	return nil
}

type UpdateOrderStatusRequest struct {
	ID      uint64 `json:"-"`
	Status  string `json:"status" validate:"required"`
	Version int64  `json:"version" validate:"required,min=1"`
}

func NewUpdateOrderStatusRequestFromContext(ctx echo.Context) (*UpdateOrderStatusRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, errors.New("invalid order id")
	}

	var body UpdateOrderStatusRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.ID = id
	body.Status = strings.ToUpper(strings.TrimSpace(body.Status))

	return &body, nil
}

func (r *UpdateOrderStatusRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid order id")
	}
	return normalizeValidationError(validate.Struct(r))
}

type InitiatePaymentRequest struct {
	OrderID uint64 `json:"order_id" validate:"required"`
}

func NewInitiatePaymentRequestFromContext(ctx echo.Context) (*InitiatePaymentRequest, error) {
	var body InitiatePaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (r *InitiatePaymentRequest) Validate() error {
	return normalizeValidationError(validate.Struct(r))
}

type ListDeadLettersRequest struct {
	Limit  int32
	Offset int32
}

func NewListDeadLettersRequestFromContext(ctx echo.Context) (*ListDeadLettersRequest, error) {
	req := &ListDeadLettersRequest{Limit: 100, Offset: 0}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, errors.New("invalid limit")
		}
		req.Limit = int32(limit)
	}
	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, errors.New("invalid offset")
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListDeadLettersRequest) Validate() error {
	if r.Limit < 1 || r.Limit > 500 {
		return errors.New("limit must be between 1 and 500")
	}
	if r.Offset < 0 {
		return errors.New("offset must be >= 0")
	}
	return nil
}

// normalizeValidationError flattens validator's per-field errors into a
// single readable message.
func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.New(strings.Join(parts, "; "))
}
