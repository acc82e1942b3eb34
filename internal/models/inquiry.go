package models

import "time"

// InquiryStatus represents the handling status of a contact inquiry
type InquiryStatus string

const (
	InquiryStatusNew       InquiryStatus = "new"
	InquiryStatusContacted InquiryStatus = "contacted"
	InquiryStatusResolved  InquiryStatus = "resolved"
	InquiryStatusArchived  InquiryStatus = "archived"
)

var InquiryStatuses = []InquiryStatus{
	InquiryStatusNew,
	InquiryStatusContacted,
	InquiryStatusResolved,
	InquiryStatusArchived,
}

func (s InquiryStatus) Valid() bool {
	for _, known := range InquiryStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// MilestoneColumn returns the timestamp column stamped when an inquiry enters s
func (s InquiryStatus) MilestoneColumn() (string, bool) {
	switch s {
	case InquiryStatusContacted:
		return "contacted_at", true
	case InquiryStatusResolved:
		return "resolved_at", true
	}
	return "", false
}

// ServiceType is the category of work requested in an inquiry
type ServiceType string

const (
	ServiceQuote        ServiceType = "quote"
	ServiceInstallation ServiceType = "installation"
	ServiceConsultation ServiceType = "consultation"
	ServiceOther        ServiceType = "other"
)

// Inquiry represents a contact-form submission
type Inquiry struct {
	ID          string        `db:"id" json:"id"`
	FirstName   string        `db:"first_name" json:"first_name"`
	LastName    string        `db:"last_name" json:"last_name"`
	Email       string        `db:"email" json:"email"`
	Phone       *string       `db:"phone" json:"phone"`
	Service     ServiceType   `db:"service" json:"service"`
	Message     string        `db:"message" json:"message"`
	Status      InquiryStatus `db:"status" json:"status"`
	AdminNotes  *string       `db:"admin_notes" json:"admin_notes"`
	ContactedAt *time.Time    `db:"contacted_at" json:"contacted_at"`
	ResolvedAt  *time.Time    `db:"resolved_at" json:"resolved_at"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// FullName joins the name fields
func (i *Inquiry) FullName() string {
	if i.LastName == "" {
		return i.FirstName
	}
	return i.FirstName + " " + i.LastName
}

// NewInquiry creates an inquiry in the "new" state
func NewInquiry(now time.Time) *Inquiry {
	return &Inquiry{
		ID:        GenerateID(),
		Status:    InquiryStatusNew,
		Service:   ServiceOther,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// InquiryStatusUpdate is the admin PATCH payload for an inquiry
type InquiryStatusUpdate struct {
	Status     *string          `json:"status"`
	AdminNotes Optional[string] `json:"adminNotes"`
}
