package handlers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	businessflow "github.com/kairoshi/tsubame/business_flow"
	"github.com/kairoshi/tsubame/app/middleware"
	"github.com/kairoshi/tsubame/utils"
)

// RedirectHandlerInterface defines the contract for serving short URL redirects
type RedirectHandlerInterface interface {
	Redirect(c fiber.Ctx) error
	Root(c fiber.Ctx) error
}

type RedirectHandler struct {
	flow    businessflow.RedirectFlow
	tracker businessflow.VisitTracker
}

func NewRedirectHandler(flow businessflow.RedirectFlow, tracker businessflow.VisitTracker) RedirectHandlerInterface {
	return &RedirectHandler{flow: flow, tracker: tracker}
}

// Redirect resolves a short code and redirects the visitor
// @Summary Visit Short URL
// @Tags Redirects
// @Param code path string true "Short code"
// @Success 302 {string} string "Redirect"
// @Failure 404 {object} any
// @Router /{code} [get]
func (h *RedirectHandler) Redirect(c fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}

	authority := c.Hostname()
	visitCtx := buildVisitContext(c)
	ctx := createRequestContext(c, "/"+code)

	resolved, err := h.flow.ResolveForRedirect(ctx, code, &authority, extraSegments(c), visitCtx)
	if err != nil {
		return h.handleResolutionFailure(c, ctx, &authority, err)
	}

	middleware.RecordRedirectOutcome("redirected")
	h.trackAsync(resolved, visitCtx)

	c.Redirect().Status(resolved.Decision.StatusCode).To(resolved.Decision.TargetURL)
	return nil
}

// Root serves the domain root, honoring a configured base URL redirect
func (h *RedirectHandler) Root(c fiber.Ctx) error {
	authority := c.Hostname()
	ctx := createRequestContext(c, "/")

	target, err := h.flow.DomainFallback(ctx, &authority, businessflow.DomainFallbackBaseURL)
	if err != nil {
		log.Println("Domain fallback lookup failed", err)
	}
	if target != nil {
		c.Redirect().Status(fiber.StatusFound).To(*target)
		return nil
	}
	return c.Status(fiber.StatusNotFound).SendString("not found")
}

func (h *RedirectHandler) handleResolutionFailure(c fiber.Ctx, ctx context.Context, authority *string, err error) error {
	switch {
	case businessflow.IsShortURLNotFound(err):
		middleware.RecordRedirectOutcome("not_found")
	case businessflow.IsShortURLNotYetValid(err):
		middleware.RecordRedirectOutcome("not_yet_valid")
	case businessflow.IsShortURLExpired(err):
		middleware.RecordRedirectOutcome("expired")
	case businessflow.IsMaxVisitsReached(err):
		middleware.RecordRedirectOutcome("max_visits_reached")
	default:
		middleware.RecordRedirectOutcome("error")
		log.Println("Short URL resolution failed", err)
		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}

	// A resolved-but-unservable code and a missing one use different
	// fallback targets when the domain configures them.
	kind := businessflow.DomainFallbackRegular404
	if !businessflow.IsShortURLNotFound(err) {
		kind = businessflow.DomainFallbackInvalidShortURL
	}
	target, fallbackErr := h.flow.DomainFallback(ctx, authority, kind)
	if fallbackErr != nil {
		log.Println("Domain fallback lookup failed", fallbackErr)
	}
	if target != nil {
		c.Redirect().Status(fiber.StatusFound).To(*target)
		return nil
	}
	return c.Status(fiber.StatusNotFound).SendString("not found")
}

// trackAsync records the visit off the response path. The tracker owns its
// own timeout; the request context is already canceled once the redirect is
// written.
func (h *RedirectHandler) trackAsync(resolved businessflow.ResolvedRedirect, visitCtx *businessflow.VisitContext) {
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

func buildVisitContext(c fiber.Ctx) *businessflow.VisitContext {
	visitCtx := businessflow.NewVisitContext(c.IP(), c.Get("User-Agent"))
	visitCtx.Referer = c.Get("Referer")
	visitCtx.VisitedURL = c.BaseURL() + c.OriginalURL()
	visitCtx.RawQuery = string(c.Request().URI().QueryString())
	visitCtx.RequestID = c.Get(businessflow.RequestIDKey)
	visitCtx.ExtraPathSegments = extraSegments(c)
	return visitCtx
}

// extraSegments splits the wildcard remainder of the path, if the route has one
func extraSegments(c fiber.Ctx) []string {
	rest := c.Params("*")
	if rest == "" {
		return nil
	}
	var segments []string
	for _, segment := range strings.Split(rest, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

func createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return createRequestContextWithTimeout(c, endpoint, 10*time.Second)
}

func createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get(businessflow.RequestIDKey))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
