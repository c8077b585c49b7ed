package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"edge-gateway/internal/model"
	"edge-gateway/internal/store"
)

const (
	itemsPath = "/api/items"
	itemPath  = "/api/items/:id"
)

// ItemStore is the storage used by ItemsHandler.
type ItemStore interface {
	FindAll(ctx context.Context) ([]model.Item, error)
	FindByID(ctx context.Context, id string) (model.Item, error)
	Insert(ctx context.Context, fields map[string]any) (model.Item, error)
	Delete(ctx context.Context, id string) error
}

// ItemsHandler serves the item endpoints from the local store.
type ItemsHandler struct {
	store  ItemStore
	logger *slog.Logger
}

// NewItemsHandler creates an ItemsHandler.
func NewItemsHandler(s ItemStore, logger *slog.Logger) *ItemsHandler {
	return &ItemsHandler{
		store:  s,
		logger: logger.With("component", "items_handler"),
	}
}

// List returns every item in insertion order.
func (h *ItemsHandler) List(c echo.Context) error {
	items, err := h.store.FindAll(c.Request().Context())
	if err != nil {
		return h.storageError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// Get returns one item.
func (h *ItemsHandler) Get(c echo.Context) error {
	item, err := h.store.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.storageError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

// Create stores the JSON object in the request body as a new item.
func (h *ItemsHandler) Create(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return invalidBody(c, err.Error())
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return invalidBody(c, "Request body must be a JSON object")
	}

	item, err := h.store.Insert(c.Request().Context(), fields)
	if err != nil {
		return h.storageError(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

// Delete removes one item.
func (h *ItemsHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		return h.storageError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Item deleted",
		"id":      id,
	})
}

func (h *ItemsHandler) storageError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidID):
		return c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "Invalid item id",
			Details: c.Param("id"),
		})
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, model.ErrorResponse{
			Error:   "Item not found",
			Details: c.Param("id"),
		})
	}

	req := c.Request()
	h.logger.Error("storage operation failed",
		"err", err,
		"method", req.Method,
		"path", req.URL.Path,
	)
	return c.JSON(http.StatusInternalServerError, model.ErrorResponse{
		Error:   "Database error",
		Details: err.Error(),
	})
}

func invalidBody(c echo.Context, details string) error {
	return c.JSON(http.StatusBadRequest, model.ErrorResponse{
		Error:   "Invalid request body",
		Details: details,
	})
}
