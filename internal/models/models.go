package models

import "time"

// Device roles decide how an access event is classified.
const (
	RoleEntry     = "entry"
	RoleExit      = "exit"
	RoleUniversal = "universal"
)

// Site is an organizational location owning devices and people. Its
// AttendanceSheetID points at the external spreadsheet holding the site's
// daily ledgers.
type Site struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Name              string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	AttendanceSheetID string    `gorm:"size:128" json:"attendance_sheet_id"`
	CreatedAt         time.Time `json:"created_at"`

	Devices []Device `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Device is a biometric terminal. Credentials are for the terminal's
// digest-authenticated management API.
type Device struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SiteID    uint   `gorm:"index;not null" json:"site_id"`
	IPAddress string `gorm:"uniqueIndex;size:64;not null" json:"ip_address"`
	Username  string `gorm:"size:64;not null" json:"-"`
	Password  string `gorm:"size:64;not null" json:"-"`
	Role      string `gorm:"size:16;default:universal" json:"role"`

	Site Site `json:"-"`
}

// Person is an employee known to the system. AccountID is the external
// identifier reported by terminals; once assigned it never changes.
type Person struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	AccountID string `gorm:"uniqueIndex;size:32;not null" json:"account_id"`
	FullName  string `gorm:"size:255;not null" json:"full_name"`
	SiteID    uint   `gorm:"index" json:"site_id"`
	Phone     string `gorm:"size:32" json:"phone"`

	// PhotoStatus is set once a face template reached every terminal of the site.
	PhotoStatus bool `gorm:"default:false" json:"photo_status"`

	// NotificationChatID, when non-zero, receives attendance notifications.
	NotificationChatID int64 `json:"notification_chat_id"`

	Site Site `json:"-"`
}
