// Package handlers implements the HTTP handlers of the inventory API
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"assetrecon/internal/api/models"
	"assetrecon/internal/assets"
	"assetrecon/internal/reconcile"
	"assetrecon/internal/store"
)

const maxPageSize = 500

// AssetReader is the part of the record store the handlers read from
type AssetReader interface {
	GetAsset(ctx context.Context, id uuid.UUID) (assets.Asset, error)
	ComponentsOf(ctx context.Context, assetID uuid.UUID) ([]assets.Component, error)
	ListAssets(ctx context.Context, offset, limit int) ([]assets.Asset, int, error)
}

// Reconciler previews sightings and applies human overrides
type Reconciler interface {
	Preview(ctx context.Context, reports []reconcile.SourceReport) (*reconcile.Result, error)
	Override(ctx context.Context, assetID uuid.UUID, choices []reconcile.FieldChoice) (*reconcile.Result, error)
}

// AssetHandler handles asset-related API requests
type AssetHandler struct {
	store  AssetReader
	engine Reconciler
	log    logrus.FieldLogger
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(s AssetReader, engine Reconciler, log logrus.FieldLogger) *AssetHandler {
	return &AssetHandler{store: s, engine: engine, log: log}
}

// GetAssets handles the GET /assets endpoint
// @Summary Get paginated list of assets
// @Tags assets
// @Produce json
// @Param page query int false "Page number (default: 1)" default(1)
// @Param size query int false "Number of assets per page (default: 10)" default(10)
// @Success 200 {object} models.AssetListResponse "Successfully retrieved assets"
// @Failure 400 {object} models.ErrorResponse "Invalid parameters"
// @Router /assets [get]
func (h *AssetHandler) GetAssets(c *gin.Context) {
	size, page := 10, 1
	var err error

	if sizeParam := c.Query("size"); sizeParam != "" {
		size, err = strconv.Atoi(sizeParam)
		if err != nil || size < 1 || size > maxPageSize {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid size parameter"})
			return
		}
	}
	if pageParam := c.Query("page"); pageParam != "" {
		page, err = strconv.Atoi(pageParam)
		if err != nil || page < 1 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid page parameter"})
			return
		}
	}

	ctx := c.Request.Context()
	list, total, err := h.store.ListAssets(ctx, (page-1)*size, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(list) == 0 && total > 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Page out of bounds"})
		return
	}

	data := make([]models.AssetResponse, 0, len(list))
	for _, a := range list {
		comps, err := h.store.ComponentsOf(ctx, a.ID)
		if err != nil {
			h.fail(c, err)
			return
		}
		data = append(data, models.ConvertAsset(a, comps))
	}

	c.JSON(http.StatusOK, models.AssetListResponse{
		TotalAssets: total,
		CurrentPage: page,
		PageSize:    size,
		TotalPages:  (total + size - 1) / size,
		Data:        data,
	})
}

// GetAsset handles the GET /assets/:id endpoint
// @Summary Get asset by ID
// @Description Asset fields, priority ledger and components
// @Tags assets
// @Produce json
// @Param id path string true "Asset ID"
// @Success 200 {object} models.AssetResponse "Successfully retrieved asset"
// @Failure 400 {object} models.ErrorResponse "Invalid asset ID"
// @Failure 404 {object} models.ErrorResponse "Asset not found"
// @Router /assets/{id} [get]
func (h *AssetHandler) GetAsset(c *gin.Context) {
	id, ok := assetID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	a, err := h.store.GetAsset(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	comps, err := h.store.ComponentsOf(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ConvertAsset(a, comps))
}

// Preview handles the POST /preview endpoint
// @Summary Preview a sighting
// @Description Runs merge, identity resolution, diff and the save-priority guard without writing anything
// @Tags reconcile
// @Accept json
// @Produce json
// @Param reports body []reconcile.SourceReport true "Reports of one sighting"
// @Success 200 {object} reconcile.Result
// @Failure 400 {object} models.ErrorResponse "Malformed body"
// @Failure 409 {object} models.ErrorResponse "Identity conflict"
// @Failure 422 {object} models.ErrorResponse "Insufficient identity"
// @Router /preview [post]
func (h *AssetHandler) Preview(c *gin.Context) {
	var reports []reconcile.SourceReport
	if err := c.ShouldBindJSON(&reports); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body: " + err.Error()})
		return
	}
	if len(reports) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "At least one report is required"})
		return
	}
	res, err := h.engine.Preview(c.Request.Context(), reports)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Override handles the POST /assets/:id/override endpoint
// @Summary Override asset fields
// @Description Applies human field choices at the manual priority; a null value clears the field
// @Tags reconcile
// @Accept json
// @Produce json
// @Param id path string true "Asset ID"
// @Param choices body []reconcile.FieldChoice true "Field choices"
// @Success 200 {object} reconcile.Result
// @Failure 400 {object} models.ErrorResponse "Malformed body"
// @Failure 404 {object} models.ErrorResponse "Asset not found"
// @Failure 409 {object} models.ErrorResponse "Identity conflict"
// @Failure 422 {object} models.ErrorResponse "Invalid field value"
// @Router /assets/{id}/override [post]
func (h *AssetHandler) Override(c *gin.Context) {
	id, ok := assetID(c)
	if !ok {
		return
	}
	var choices []reconcile.FieldChoice
	if err := c.ShouldBindJSON(&choices); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body: " + err.Error()})
		return
	}
	res, err := h.engine.Override(c.Request.Context(), id, choices)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func assetID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid asset ID"})
		return uuid.Nil, false
	}
	return id, true
}

// fail maps domain errors to HTTP status codes
func (h *AssetHandler) fail(c *gin.Context, err error) {
	var (
		conflict     *reconcile.IdentityConflictError
		insufficient *reconcile.InsufficientIdentityError
		invalid      *reconcile.InvalidFieldValueError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Asset not found"})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, models.ErrorResponse{Message: err.Error(), Detail: conflict})
	case errors.Is(err, store.ErrStaleAsset):
		c.JSON(http.StatusConflict, models.ErrorResponse{Message: err.Error()})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Message: err.Error(), Detail: insufficient})
	case errors.As(err, &invalid):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Message: err.Error(), Detail: invalid})
	case errors.Is(err, reconcile.ErrEmptyOverride):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
	default:
		h.log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Internal error"})
	}
}
