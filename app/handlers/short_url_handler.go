package handlers

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	businessflow "github.com/kairoshi/tsubame/business_flow"
	"github.com/kairoshi/tsubame/app/dto"
	"github.com/kairoshi/tsubame/models"
)

// ShortURLHandlerInterface defines the contract for the short URL management API
type ShortURLHandlerInterface interface {
	Create(c fiber.Ctx) error
	Edit(c fiber.Ctx) error
	Disable(c fiber.Ctx) error
}

type ShortURLHandler struct {
	flow businessflow.ShortURLCreationFlow
}

func NewShortURLHandler(flow businessflow.ShortURLCreationFlow) ShortURLHandlerInterface {
	return &ShortURLHandler{flow: flow}
}

// Create creates a short URL with a custom or generated code
// @Summary Create Short URL
// @Tags ShortURLs
// @Accept json
// @Produce json
// @Param request body dto.CreateShortURLRequest true "Short URL definition"
// @Success 201 {object} dto.APIResponse
// @Failure 400 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse
// @Router /api/v1/short-urls [post]
func (h *ShortURLHandler) Create(c fiber.Ctx) error {
	var req dto.CreateShortURLRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid request body",
		})
	}

	shortURL, err := h.flow.CreateShortURL(createRequestContext(c, "/api/v1/short-urls"), &req)
	if err != nil {
		return h.writeFlowError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.APIResponse{
		Success: true,
		Message: "Short URL created",
		Data:    toShortURLResponse(shortURL),
	})
}

// Edit partially updates an existing short URL
// @Summary Edit Short URL
// @Tags ShortURLs
// @Accept json
// @Produce json
// @Param code path string true "Short code"
// @Param request body dto.EditShortURLRequest true "Fields to update"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/short-urls/{code} [patch]
func (h *ShortURLHandler) Edit(c fiber.Ctx) error {
	var req dto.EditShortURLRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid request body",
		})
	}

	code := c.Params("code")
	domain := c.Query("domain")
	var authority *string
	if domain != "" {
		authority = &domain
	}

	shortURL, err := h.flow.EditShortURL(createRequestContext(c, "/api/v1/short-urls/"+code), code, authority, &req)
	if err != nil {
		return h.writeFlowError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Short URL updated",
		Data:    toShortURLResponse(shortURL),
	})
}

// Disable soft-deletes a short URL; its code keeps resolving as not found
// @Summary Disable Short URL
// @Tags ShortURLs
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/short-urls/{code} [delete]
func (h *ShortURLHandler) Disable(c fiber.Ctx) error {
	code := c.Params("code")
	domain := c.Query("domain")
	var authority *string
	if domain != "" {
		authority = &domain
	}

	err := h.flow.DisableShortURL(createRequestContext(c, "/api/v1/short-urls/"+code), code, authority)
	if err != nil {
		return h.writeFlowError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Short URL disabled",
	})
}

func (h *ShortURLHandler) writeFlowError(c fiber.Ctx, err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make([]string, 0, len(validationErrs))
		for _, fieldErr := range validationErrs {
			details = append(details, getValidationErrorMessage(fieldErr))
		}
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Validation failed",
			Error:   dto.ErrorDetail{Code: "VALIDATION_FAILED", Details: details},
		})
	}

	switch {
	case businessflow.IsShortCodeOccupied(err):
		return c.Status(fiber.StatusConflict).JSON(dto.APIResponse{
			Success: false,
			Message: "Short code is already in use",
			Error:   dto.ErrorDetail{Code: "SHORT_CODE_OCCUPIED"},
		})
	case businessflow.IsDomainInvalid(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Domain authority is invalid",
			Error:   dto.ErrorDetail{Code: "DOMAIN_INVALID"},
		})
	case businessflow.IsShortURLNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
			Success: false,
			Message: "Short URL not found",
			Error:   dto.ErrorDetail{Code: "SHORT_URL_NOT_FOUND"},
		})
	case businessflow.IsCodeGenerationExhausted(err):
		return c.Status(fiber.StatusConflict).JSON(dto.APIResponse{
			Success: false,
			Message: "Could not allocate an unused short code",
			Error:   dto.ErrorDetail{Code: "CODE_GENERATION_EXHAUSTED"},
		})
	default:
		log.Println("Short URL management request failed", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Message: "Internal error",
		})
	}
}

func toShortURLResponse(shortURL *models.ShortURL) dto.ShortURLResponse {
	resp := dto.ShortURLResponse{
		ShortCode:  shortURL.ShortCode,
		LongURL:    shortURL.LongURL,
		Mode:       string(shortURL.Mode),
		ValidSince: shortURL.ValidSince,
		ValidUntil: shortURL.ValidUntil,
		MaxVisits:  shortURL.MaxVisits,
		CreatedAt:  shortURL.CreatedAt,
	}
	if shortURL.Domain != nil {
		resp.Domain = shortURL.Domain.Authority
	}
	for _, tag := range shortURL.Tags {
		resp.Tags = append(resp.Tags, tag.Name)
	}
	return resp
}
