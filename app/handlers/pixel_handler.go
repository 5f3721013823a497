package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"

	businessflow "github.com/kairoshi/tsubame/business_flow"
	"github.com/kairoshi/tsubame/app/middleware"
)

// transparentGIF is a 1x1 fully transparent GIF89a image
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// PixelHandlerInterface defines the contract for pixel-based visit tracking
type PixelHandlerInterface interface {
	Pixel(c fiber.Ctx) error
}

type PixelHandler struct {
	flow    businessflow.RedirectFlow
	tracker businessflow.VisitTracker
}

func NewPixelHandler(flow businessflow.RedirectFlow, tracker businessflow.VisitTracker) PixelHandlerInterface {
	return &PixelHandler{flow: flow, tracker: tracker}
}

// Pixel tracks a visit and answers with a transparent 1x1 GIF. The image is
// served whether or not the code resolves, so embedding pages never break.
// @Summary Tracking Pixel
// @Tags Redirects
// @Param code path string true "Short code"
// @Success 200 {string} string "GIF image"
// @Router /track/{code}/pixel [get]
func (h *PixelHandler) Pixel(c fiber.Ctx) error {
	code := c.Params("code")
	authority := c.Hostname()
	visitCtx := buildVisitContext(c)
	ctx := createRequestContext(c, "/track/"+code+"/pixel")

	resolved, err := h.flow.ResolveForRedirect(ctx, code, &authority, nil, visitCtx)
	if err == nil {
		h.trackAsync(resolved, visitCtx)
	} else if !businessflow.IsResolutionFailure(err) {
		log.Println("Pixel resolution failed", err)
	}

	c.Set(fiber.HeaderContentType, "image/gif")
	return c.Status(fiber.StatusOK).Send(transparentGIF)
}

func (h *PixelHandler) trackAsync(resolved businessflow.ResolvedRedirect, visitCtx *businessflow.VisitContext) {
	if h.tracker == nil || resolved.ShortURL == nil {
		return
	}
	go func() {
		trackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.tracker.TrackVisit(trackCtx, resolved.ShortURL, visitCtx); err != nil {
			log.Println("Visit tracking failed", err)
			return
		}
		middleware.RecordVisitTracked()
	}()
}
