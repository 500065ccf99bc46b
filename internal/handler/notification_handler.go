package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jobalert/notifier/internal/domain"
	"github.com/jobalert/notifier/internal/observability"
	"github.com/jobalert/notifier/internal/repository"
	"github.com/jobalert/notifier/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type NotificationService interface {
	Accept(ctx context.Context, req service.IntakeRequest) (*domain.StatusRecord, error)
	GetStatus(ctx context.Context, messageID string) (*domain.StatusRecord, error)
	ListStatuses(ctx context.Context, params repository.ListParams) ([]domain.StatusRecord, int64, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Get("/notifications", h.ListNotifications)

	return nil
}

type createNotificationRequest struct {
	Type        string `json:"type"`
	Recipient   string `json:"recipient"`
	Message     string `json:"message"`
	Subject     string `json:"subject"`
	JobSearch   bool   `json:"job_search"`
	JobTitle    string `json:"job_title"`
	JobLocation string `json:"job_location"`
}

type createNotificationResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

type statusResponse struct {
	MessageID         string    `json:"message_id"`
	Status            string    `json:"status"`
	Type              string    `json:"type"`
	Recipient         string    `json:"recipient"`
	Error             *string   `json:"error,omitempty"`
	ProviderMessageID *string   `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type listStatusesResponse struct {
	Data []statusResponse `json:"data"`
	Meta listMeta         `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var ctx context.Context = c.Context()
	if reqID := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); reqID != "" {
		ctx = observability.WithCorrelationID(ctx, reqID)
	}

	record, err := h.service.Accept(ctx, service.IntakeRequest{
		Type:        req.Type,
		Recipient:   req.Recipient,
		Message:     req.Message,
		Subject:     req.Subject,
		JobSearch:   req.JobSearch,
		JobTitle:    req.JobTitle,
		JobLocation: req.JobLocation,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(createNotificationResponse{
		MessageID: record.MessageID,
		Status:    record.Status.String(),
	})
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	record, err := h.service.GetStatus(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toStatusResponse(record))
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	records, total, err := h.service.ListStatuses(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]statusResponse, 0, len(records))
	for i := range records {
		responses = append(responses, toStatusResponse(&records[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listStatusesResponse{
		Data: responses,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("page_size", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: page_size must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawType := strings.TrimSpace(c.Query("type")); rawType != "" {
		channel, err := domain.ParseChannelFromString(rawType)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Channel = &channel
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toStatusResponse(record *domain.StatusRecord) statusResponse {
	if record == nil {
		return statusResponse{}
	}

	return statusResponse{
		MessageID:         record.MessageID,
		Status:            record.Status.String(),
		Type:              record.Type.String(),
		Recipient:         record.Recipient,
		Error:             record.Error,
		ProviderMessageID: record.ProviderMessageID,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
