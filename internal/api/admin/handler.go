// Package admin serves the administrator HTTP endpoints.
package admin

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
	"github.com/dtroode/identity-store/internal/service"
)

// DirectoryService lists users.
type DirectoryService interface {
	ListUsers(ctx context.Context, params model.ListParams) (service.PublicPage, error)
}

// ListUsersResponse is the body of GET /admin/users.
type ListUsersResponse struct {
	Users []map[string]any `json:"users"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
	Sort  model.SortKey    `json:"sort"`
	Total int64            `json:"total"`
}

// Handler handles admin endpoints.
type Handler struct {
	directory DirectoryService
	logger    *logger.Logger
}

// NewHandler creates a new admin Handler.
func NewHandler(directory DirectoryService, logger *logger.Logger) *Handler {
	return &Handler{directory: directory, logger: logger}
}

// ListUsers returns one page of users. page and size fall back to their
// defaults when missing or out of range; an unknown sort key is rejected.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	params := model.ListParams{
		Page: positiveInt(c.Query("page"), 1, 0),
		Size: positiveInt(c.Query("size"), service.DefaultPageSize, service.MaxPageSize),
		Sort: model.SortKey(c.Query("sort", string(model.SortByID))),
	}
	if !params.Sort.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "unsupported sort key")
	}

	page, err := h.directory.ListUsers(c.UserContext(), params)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCriteria) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		h.logger.Error("Admin handler: failed to list users",
			"error", err.Error())
		return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable")
	}

	resp := ListUsersResponse{
		Users: make([]map[string]any, 0, len(page.Users)),
		Page:  params.Page,
		Size:  params.Size,
		Sort:  params.Sort,
		Total: page.Total,
	}
	for _, u := range page.Users {
		resp.Users = append(resp.Users, u.Document())
	}

	return c.JSON(resp)
}

// positiveInt parses raw as a positive integer no greater than limit (0 means
// unbounded), returning def otherwise.
func positiveInt(raw string, def, limit int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || (limit > 0 && n > limit) {
		return def
	}
	return n
}
