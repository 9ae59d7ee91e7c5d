package store

import "smarthive/pkg/domain"

// Store defines persistence operations for users, purchases, and locations.
type Store interface {
	// users
	CreateUserWithPurchase(user *domain.User, purchase *domain.Purchase) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id uint64) (domain.User, bool, error)

	// purchases
	GetPurchase(id uint64) (domain.Purchase, bool, error)
	SavePurchase(purchase domain.Purchase) error
	ListPurchases() ([]domain.Purchase, error)
	LatestPurchaseByUser(userID uint64) (domain.Purchase, bool, error)
	LatestGrantedPurchaseByUser(userID uint64) (domain.Purchase, bool, error)
	HasGrantedPurchase(userID uint64) (bool, error)

	// locations
	ListLocations() ([]domain.Location, error)
	UpsertLocation(location domain.Location) error
	DeleteLocation(containerID string) (bool, error)
}
