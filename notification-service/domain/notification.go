package domain

import "time"

// NotificationType classifies a notification.
type NotificationType string

const (
	NewInterpretation NotificationType = "NEW_INTERPRETATION"
	NewSpread         NotificationType = "NEW_SPREAD"
)

const newInterpretationTitle = "New interpretation"

// Notification is a message addressed to one user. SourceEventID is unique so a
// redelivered event cannot create a second row.
type Notification struct {
	ID               string           `gorm:"primaryKey;type:uuid"`
	UserID           string           `gorm:"type:uuid;not null;index:idx_notifications_user_created,priority:1"`
	Type             NotificationType `gorm:"type:varchar(32);not null"`
	Title            string           `gorm:"type:varchar(128);not null"`
	Message          string           `gorm:"type:text;not null"`
	SpreadID         *string          `gorm:"type:uuid"`
	InterpretationID *string          `gorm:"type:uuid"`
	IsRead           bool             `gorm:"not null;default:false"`
	SourceEventID    string           `gorm:"type:varchar(64);not null;uniqueIndex"`
	CreatedAt        time.Time        `gorm:"not null;index:idx_notifications_user_created,priority:2,sort:desc"`
}

// NotificationDTO is the representation pushed to live channels and returned
// by the pull API.
type NotificationDTO struct {
	ID               string           `json:"id"`
	Type             NotificationType `json:"type"`
	Title            string           `json:"title"`
	Message          string           `json:"message"`
	SpreadID         *string          `json:"spreadId,omitempty"`
	InterpretationID *string          `json:"interpretationId,omitempty"`
	IsRead           bool             `json:"isRead"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// ToDTO maps n to its transport form.
func (n Notification) ToDTO() NotificationDTO {
	return NotificationDTO{
		ID:               n.ID,
		Type:             n.Type,
		Title:            n.Title,
		Message:          n.Message,
		SpreadID:         n.SpreadID,
		InterpretationID: n.InterpretationID,
		IsRead:           n.IsRead,
		CreatedAt:        n.CreatedAt,
	}
}

func interpretationMessage(author, preview string) string {
	return author + " added an interpretation: \"" + preview + "...\""
}
