package models

// DeviceType identifies the device category of a visitor, derived from the user agent
type DeviceType string

const (
	DeviceTypeAndroid DeviceType = "android"
	DeviceTypeIOS     DeviceType = "ios"
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeDesktop DeviceType = "desktop"
)

// DeviceLongURL is a per-device redirect override owned by a ShortURL
// One row per (short URL, device type)
type DeviceLongURL struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ShortURLID uint       `gorm:"not null;uniqueIndex:uk_device_long_urls_short_url_device" json:"short_url_id"`
	DeviceType DeviceType `gorm:"size:16;not null;uniqueIndex:uk_device_long_urls_short_url_device" json:"device_type"`
	LongURL    string     `gorm:"type:text;not null" json:"long_url"`
}

// TableName returns the table name for DeviceLongURL
func (DeviceLongURL) TableName() string { return "device_long_urls" }
