package businessflow

import (
	"context"
	"hash/fnv"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kairoshi/tsubame/app/dto"
	"github.com/kairoshi/tsubame/app/services"
	"github.com/kairoshi/tsubame/config"
	"github.com/kairoshi/tsubame/models"
	"github.com/kairoshi/tsubame/repository"
)

// VisitTracker records visits after a redirect has been served. Tracking is
// fire and forget from the visitor's point of view: the handler spawns it off
// the response path, and side effects (geolocation, webhooks) run on the
// background dispatcher and are absorbed when they fail.
type VisitTracker interface {
	TrackVisit(ctx context.Context, shortURL *models.ShortURL, visitCtx *VisitContext) error
}

type VisitTrackerImpl struct {
	runTx       func(ctx context.Context, fn func(context.Context) error) error
	visitRepo   repository.VisitRepository
	countsRepo  repository.VisitsCountRepository
	dispatcher  services.TaskDispatcher
	geoService  services.GeolocationService
	webhooks    services.WebhookService
	tracking    config.TrackingConfig
	anonymizeIP bool
}

func NewVisitTracker(
	db *gorm.DB,
	visitRepo repository.VisitRepository,
	countsRepo repository.VisitsCountRepository,
	dispatcher services.TaskDispatcher,
	geoService services.GeolocationService,
	webhooks services.WebhookService,
	tracking config.TrackingConfig,
	anonymizeIP bool,
) VisitTracker {
	return &VisitTrackerImpl{
		runTx: func(ctx context.Context, fn func(context.Context) error) error {
			return repository.WithTransaction(ctx, db, fn)
		},
		visitRepo:   visitRepo,
		countsRepo:  countsRepo,
		dispatcher:  dispatcher,
		geoService:  geoService,
		webhooks:    webhooks,
		tracking:    tracking,
		anonymizeIP: anonymizeIP,
	}
}

// TrackVisit persists the visit and bumps one counter slot in a single
// transaction, then enqueues geolocation enrichment and webhook delivery.
// Persistence failure is the only error returned; enrichment failures are
// logged and swallowed.
func (t *VisitTrackerImpl) TrackVisit(ctx context.Context, shortURL *models.ShortURL, visitCtx *VisitContext) error {
	if t.tracking.DisableTracking {
		return nil
	}

	potentialBot := t.isPotentialBot(visitCtx.UserAgent)
	slot := t.slotFor(shortURL.ID, visitCtx.RemoteAddr, visitCtx.UserAgent)

	visit := &models.Visit{
		UUID:         uuid.New(),
		ShortURLID:   shortURL.ID,
		Referer:      optionalString(visitCtx.Referer),
		UserAgent:    optionalString(visitCtx.UserAgent),
		RemoteAddr:   t.storedRemoteAddr(visitCtx.RemoteAddr),
		VisitedURL:   optionalString(visitCtx.VisitedURL),
		PotentialBot: potentialBot,
		Date:         utcNow(),
	}

	err := t.runTx(ctx, func(txCtx context.Context) error {
		if err := t.visitRepo.Save(txCtx, visit); err != nil {
			return err
		}
		return t.countsRepo.IncrementSlot(txCtx, shortURL.ID, slot, potentialBot)
	})
	if err != nil {
		log.Printf("ALERT: failed to persist visit for short URL %d: %v", shortURL.ID, err)
		return NewBusinessError("VISIT_PERSISTENCE_FAILED", "Failed to persist visit", err)
	}

	t.enqueueGeolocation(visit, visitCtx.RemoteAddr)
	t.enqueueWebhooks(shortURL, visit)
	return nil
}

// isPotentialBot matches the user agent against the configured signature
// list, case insensitively
func (t *VisitTrackerImpl) isPotentialBot(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, signature := range t.tracking.BotUserAgents {
		if signature != "" && strings.Contains(ua, strings.ToLower(signature)) {
			return true
		}
	}
	return false
}

// slotFor spreads concurrent visitors of one short URL across counter slots.
// The same visitor hits the same slot, different visitors usually do not.
func (t *VisitTrackerImpl) slotFor(shortURLID uint, remoteAddr, userAgent string) int {
	slots := t.tracking.VisitsCountSlots
	if slots <= 0 {
		slots = 1
	}
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatUint(uint64(shortURLID), 10)))
	h.Write([]byte(remoteAddr))
	h.Write([]byte(userAgent))
	return int(h.Sum32() % uint32(slots))
}

// storedRemoteAddr applies the IP privacy settings: tracking of addresses can
// be disabled entirely, or the address anonymized by zeroing the host part
// (the low octet for IPv4, the low 80 bits for IPv6).
func (t *VisitTrackerImpl) storedRemoteAddr(remoteAddr string) *string {
	if t.tracking.DisableIPTracking || remoteAddr == "" {
		return nil
	}
	if !t.anonymizeIP {
		return &remoteAddr
	}

	ip := net.ParseIP(remoteAddr)
	if ip == nil {
		return nil
	}
	if v4 := ip.To4(); v4 != nil {
		masked := v4.Mask(net.CIDRMask(24, 32)).String()
		return &masked
	}
	masked := ip.Mask(net.CIDRMask(48, 128)).String()
	return &masked
}

func (t *VisitTrackerImpl) enqueueGeolocation(visit *models.Visit, remoteAddr string) {
	if t.geoService == nil || remoteAddr == "" {
		return
	}
	visitUUID := visit.UUID.String()
	t.dispatcher.Enqueue(func(taskCtx context.Context) {
		location, err := t.geoService.Locate(remoteAddr)
		if err != nil {
			log.Printf("Geolocation unavailable for visit %s: %v", visitUUID,
				NewBusinessError("GEOLOCATION_UNAVAILABLE", err.Error(), ErrGeolocationUnavailable))
			return
		}
		err = t.visitRepo.UpdateLocation(taskCtx, visitUUID,
			optionalString(location.CountryCode), optionalString(location.CountryName), optionalString(location.CityName),
			&location.Latitude, &location.Longitude)
		if err != nil {
			log.Printf("Failed to store location for visit %s: %v", visitUUID, err)
		}
	})
}

func (t *VisitTrackerImpl) enqueueWebhooks(shortURL *models.ShortURL, visit *models.Visit) {
	if t.webhooks == nil {
		return
	}
	payload := dto.VisitWebhookPayload{
		VisitUUID:    visit.UUID.String(),
		ShortCode:    shortURL.ShortCode,
		LongURL:      shortURL.LongURL,
		Referer:      stringValue(visit.Referer),
		UserAgent:    stringValue(visit.UserAgent),
		RemoteAddr:   stringValue(visit.RemoteAddr),
		VisitedURL:   stringValue(visit.VisitedURL),
		PotentialBot: visit.PotentialBot,
		Date:         visit.Date,
	}
	if shortURL.Domain != nil {
		payload.Domain = shortURL.Domain.Authority
	}
	t.dispatcher.Enqueue(func(taskCtx context.Context) {
		if err := t.webhooks.NotifyVisit(taskCtx, payload); err != nil {
			log.Printf("Webhook delivery failed for visit %s: %v", payload.VisitUUID,
				NewBusinessError("WEBHOOK_DELIVERY_FAILED", err.Error(), ErrWebhookDeliveryFailed))
		}
	})
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
