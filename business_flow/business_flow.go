// Package businessflow contains the core business logic for short URL resolution and visit tracking
package businessflow

import (
	"strings"

	"github.com/kairoshi/tsubame/models"
	"github.com/kairoshi/tsubame/utils"
)

const RequestIDKey = "X-Request-ID"

// utcNow is swapped out in tests that pin the clock
var utcNow = utils.UTCNow

// VisitContext carries the request-side facts a redirect needs: where the
// visitor came from, what they are, and what they asked for beyond the code.
type VisitContext struct {
	RemoteAddr        string            `json:"remote_addr"`
	UserAgent         string            `json:"user_agent"`
	Referer           string            `json:"referer,omitempty"`
	VisitedURL        string            `json:"visited_url,omitempty"`
	ExtraPathSegments []string          `json:"extra_path_segments,omitempty"`
	RawQuery          string            `json:"raw_query,omitempty"`
	RequestID         string            `json:"request_id,omitempty"`
	Additional        map[string]string `json:"additional,omitempty"`
}

// NewVisitContext creates a VisitContext with the basic request information
func NewVisitContext(remoteAddr, userAgent string) *VisitContext {
	return &VisitContext{
		RemoteAddr: remoteAddr,
		UserAgent:  userAgent,
	}
}

// DeviceCategory classifies the visitor's device from the user agent.
// Android and iOS are detected explicitly; everything else that self-reports
// as mobile falls into the mobile bucket, the rest is desktop.
func (vc *VisitContext) DeviceCategory() models.DeviceType {
	ua := strings.ToLower(vc.UserAgent)
	switch {
	case strings.Contains(ua, "android"):
		return models.DeviceTypeAndroid
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ipod"):
		return models.DeviceTypeIOS
	case strings.Contains(ua, "mobile"):
		return models.DeviceTypeMobile
	default:
		return models.DeviceTypeDesktop
	}
}
