package businessflow

import (
	"strings"
	"time"

	"github.com/kairoshi/tsubame/config"
	"github.com/kairoshi/tsubame/models"
)

// RedirectDecision is everything the serving layer needs to answer a
// redirect: the final target, the status code, and how long the decision may
// be cached. A zero CacheTTL means the decision must not be cached.
type RedirectDecision struct {
	TargetURL  string        `json:"target_url"`
	StatusCode int           `json:"status_code"`
	CacheTTL   time.Duration `json:"cache_ttl"`
}

// RedirectDecider computes the redirect decision for a resolved short URL
type RedirectDecider interface {
	Decide(shortURL *models.ShortURL, visitCtx *VisitContext, leftoverSegments []string) RedirectDecision
}

type RedirectDeciderImpl struct {
	cfg config.ShortURLConfig
}

func NewRedirectDecider(cfg config.ShortURLConfig) RedirectDecider {
	return &RedirectDeciderImpl{cfg: cfg}
}

// Decide picks the target URL for this visitor. Device overrides win over the
// stored long URL; android and ios fall back to a mobile override when no
// exact one exists. With extra-path appending enabled, leftover path segments
// and the original query string are carried onto the target.
func (d *RedirectDeciderImpl) Decide(shortURL *models.ShortURL, visitCtx *VisitContext, leftoverSegments []string) RedirectDecision {
	target := shortURL.LongURL
	if visitCtx != nil {
		if override := d.deviceOverride(shortURL, visitCtx.DeviceCategory()); override != nil {
			target = *override
		}
	}

	if d.cfg.AppendExtraPath && len(leftoverSegments) > 0 {
		target = appendPath(target, leftoverSegments, d.cfg.TrailingSlash)
	}
	if visitCtx != nil && visitCtx.RawQuery != "" {
		target = appendQuery(target, visitCtx.RawQuery)
	}

	return RedirectDecision{
		TargetURL:  target,
		StatusCode: d.cfg.NormalizedRedirectStatus(),
		CacheTTL:   d.cfg.RedirectCacheTTL,
	}
}

func (d *RedirectDeciderImpl) deviceOverride(shortURL *models.ShortURL, device models.DeviceType) *string {
	if override := shortURL.DeviceLongURLFor(device); override != nil {
		return override
	}
	if device == models.DeviceTypeAndroid || device == models.DeviceTypeIOS {
		return shortURL.DeviceLongURLFor(models.DeviceTypeMobile)
	}
	return nil
}

// appendPath joins extra segments onto the target path, never producing a
// double slash at the seam. The trailing-slash toggle controls whether the
// result keeps a final slash.
func appendPath(target string, segments []string, trailingSlash bool) string {
	base, query, hasQuery := strings.Cut(target, "?")
	base = strings.TrimRight(base, "/")
	out := base + "/" + strings.Join(segments, "/")
	if trailingSlash {
		out += "/"
	}
	if hasQuery {
		out += "?" + query
	}
	return out
}

// appendQuery merges the visit's raw query onto the target, keeping any query
// the long URL already carries.
func appendQuery(target, rawQuery string) string {
	if strings.Contains(target, "?") {
		return target + "&" + rawQuery
	}
	return target + "?" + rawQuery
}
