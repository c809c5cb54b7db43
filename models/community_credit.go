package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditType is the catalog entry a user redeemed credits for.
type CreditType string

const (
	CreditTypeParking      CreditType = "parking"
	CreditTypePermit       CreditType = "permit"
	CreditTypeRecreation   CreditType = "recreation"
	CreditTypeTransit      CreditType = "transit"
	CreditTypeEvent        CreditType = "event"
	CreditTypeConsultation CreditType = "consultation"
	CreditTypeRecognition  CreditType = "recognition"
)

// CreditTypes lists every redeemable type in catalog order.
var CreditTypes = []CreditType{
	CreditTypeParking,
	CreditTypePermit,
	CreditTypeRecreation,
	CreditTypeTransit,
	CreditTypeEvent,
	CreditTypeConsultation,
	CreditTypeRecognition,
}

var creditTypeLabels = map[CreditType]string{
	CreditTypeParking:      "Parking Fee Waiver",
	CreditTypePermit:       "Permit Processing Priority",
	CreditTypeRecreation:   "Recreation Center Pass",
	CreditTypeTransit:      "Public Transit Credit",
	CreditTypeEvent:        "Event Ticket",
	CreditTypeConsultation: "Paid Urban Planning Consultation",
	CreditTypeRecognition:  "Community Recognition Certificate",
}

// Valid reports whether t is one of the enumerated redemption types.
func (t CreditType) Valid() bool {
	_, ok := creditTypeLabels[t]
	return ok
}

// Label returns the human-readable name of the credit type.
func (t CreditType) Label() string {
	if l, ok := creditTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

// RedemptionStatus is derived from IsUsed, ExpiresAt and the current time. It is never stored.
type RedemptionStatus string

const (
	RedemptionActive   RedemptionStatus = "active"
	RedemptionExpired  RedemptionStatus = "expired"
	RedemptionRedeemed RedemptionStatus = "redeemed"
)

// CommunityCredit is one redemption: credits already debited from the profile balance in the
// same transaction that created this row.
type CommunityCredit struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID         string     `gorm:"index;not null" json:"user_id"`
	CreditType     CreditType `gorm:"size:50;not null" json:"credit_type"`
	CreditsSpent   int64      `gorm:"not null" json:"credits_spent"`
	RedeemedFor    string     `gorm:"type:text" json:"redeemed_for"`
	RedemptionCode string     `gorm:"size:20;uniqueIndex;not null" json:"redemption_code"`
	RedeemedAt     time.Time  `gorm:"not null;index" json:"redeemed_at"`
	ExpiresAt      time.Time  `gorm:"not null;index" json:"expires_at"`
	IsUsed         bool       `gorm:"not null;default:false" json:"is_used"`
	UsedAt         *time.Time `json:"used_at,omitempty"`

	// Proof of redemption
	ProofURL string `gorm:"type:text" json:"proof_url,omitempty"`
	Notes    string `gorm:"type:text" json:"notes,omitempty"`

	// Set when the expiry reminder has been sent
	ReminderSentAt *time.Time `json:"-"`
}

func (CommunityCredit) TableName() string {
	return "community_credits"
}

func (c *CommunityCredit) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// StatusAt derives the redemption status at the given instant.
func StatusAt(isUsed bool, expiresAt, now time.Time) RedemptionStatus {
	if isUsed {
		return RedemptionRedeemed
	}
	if now.After(expiresAt) {
		return RedemptionExpired
	}
	return RedemptionActive
}

func (c *CommunityCredit) Status(now time.Time) RedemptionStatus {
	return StatusAt(c.IsUsed, c.ExpiresAt, now)
}
