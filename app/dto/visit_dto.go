// Package dto contains request, response and webhook payload structures
package dto

import "time"

// VisitWebhookPayload is the body posted to visit webhook endpoints after a
// visit has been persisted
type VisitWebhookPayload struct {
	VisitUUID    string    `json:"visit_uuid"`
	ShortCode    string    `json:"short_code"`
	Domain       string    `json:"domain,omitempty"`
	LongURL      string    `json:"long_url"`
	Referer      string    `json:"referer,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	RemoteAddr   string    `json:"remote_addr,omitempty"`
	VisitedURL   string    `json:"visited_url,omitempty"`
	PotentialBot bool      `json:"potential_bot"`
	Date         time.Time `json:"date"`
}
