package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type PurchaseStatus string

const (
	PurchasePending  PurchaseStatus = "pending"
	PurchaseApproved PurchaseStatus = "approved"
)

// User is an account created at registration. The email is stored lowercased
// and is unique across the system.
type User struct {
	ID           uint64    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	City         string    `json:"city,omitempty"`
	PostalCode   string    `json:"postalCode,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Purchase is one buying event. Contact fields are a snapshot taken at the
// time of purchase and do not follow later profile edits.
type Purchase struct {
	ID                 uint64         `json:"id"`
	UserID             uint64         `json:"userId"`
	MasterHives        int            `json:"masterHives"`
	NormalHives        int            `json:"normalHives"`
	TotalAmount        float64        `json:"totalAmount"`
	ContactName        string         `json:"contactName"`
	ContactAddress     string         `json:"contactAddress"`
	ContactPhone       string         `json:"contactPhone"`
	PaymentMethod      string         `json:"paymentMethod,omitempty"`
	CardLastFour       string         `json:"cardLastFour,omitempty"`
	Status             PurchaseStatus `json:"status"`
	AccessGranted      bool           `json:"accessGranted"`
	AccessGrantedAt    *time.Time     `json:"accessGrantedAt,omitempty"`
	ApprovedAt         *time.Time     `json:"approvedAt,omitempty"`
	AssignedContainers []string       `json:"assignedContainers"`
	AdminNotes         string         `json:"adminNotes,omitempty"`
	PurchasedAt        time.Time      `json:"purchasedAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// Location is a physical container placement keyed by container ID.
type Location struct {
	ContainerID string    `json:"containerId"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Address     string    `json:"address,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AccessStatus is the tiered result of resolving a user's purchase access.
// Exactly one tier applies:
//
//	hasPurchased=false                  -> never purchased
//	hasPurchased=true, hasAccess=false  -> pending purchase, PendingPurchase set
//	hasAccess=true, no containers       -> granted but not yet assigned
//	hasAccess=true, containers present  -> full access, Purchase set
type AccessStatus struct {
	HasPurchased    bool      `json:"hasPurchased"`
	HasAccess       bool      `json:"hasAccess"`
	Message         string    `json:"message,omitempty"`
	PendingPurchase *Purchase `json:"pendingPurchase,omitempty"`
	Purchase        *Purchase `json:"purchase,omitempty"`
}
