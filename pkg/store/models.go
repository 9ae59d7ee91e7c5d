package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           uint64 `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	FirstName    string `gorm:"not null"`
	LastName     string `gorm:"not null"`
	Phone        string
	Address      string
	City         string
	PostalCode   string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type PurchaseModel struct {
	ID                 uint64 `gorm:"primaryKey"`
	UserID             uint64 `gorm:"not null;index"`
	MasterHives        int    `gorm:"not null"`
	NormalHives        int    `gorm:"not null"`
	TotalAmount        float64
	ContactName        string
	ContactAddress     string
	ContactPhone       string
	PaymentMethod      string
	CardLastFour       string
	Status             string `gorm:"not null"`
	AccessGranted      bool   `gorm:"not null;default:false"`
	AccessGrantedAt    *time.Time
	ApprovedAt         *time.Time
	AssignedContainers datatypes.JSON `gorm:"type:jsonb"`
	AdminNotes         string
	PurchasedAt        time.Time `gorm:"not null;index"`
	UpdatedAt          time.Time
}

type LocationModel struct {
	ContainerID string  `gorm:"primaryKey"`
	Latitude    float64 `gorm:"not null"`
	Longitude   float64 `gorm:"not null"`
	Address     string
	UpdatedAt   time.Time `gorm:"not null"`
}
