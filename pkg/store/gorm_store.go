package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"smarthive/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &PurchaseModel{}, &LocationModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateUserWithPurchase creates the user and their pending purchase in one
// transaction. Either both rows exist afterwards or neither does.
func (s *GormStore) CreateUserWithPurchase(user *domain.User, purchase *domain.Purchase) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		userModel := userToModel(*user)
		if err := tx.Create(&userModel).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		purchase.UserID = userModel.ID
		purchaseModel := purchaseToModel(*purchase)
		if err := tx.Create(&purchaseModel).Error; err != nil {
			return fmt.Errorf("create purchase: %w", err)
		}
		*user = userFromModel(userModel)
		*purchase = purchaseFromModel(purchaseModel)
		return nil
	})
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id uint64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetPurchase retrieves one purchase.
func (s *GormStore) GetPurchase(id uint64) (domain.Purchase, bool, error) {
	var model PurchaseModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Purchase{}, false, nil
		}
		return domain.Purchase{}, false, err
	}
	return purchaseFromModel(model), true, nil
}

// SavePurchase stores or updates a purchase.
func (s *GormStore) SavePurchase(purchase domain.Purchase) error {
	model := purchaseToModel(purchase)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "access_granted", "access_granted_at", "approved_at",
			"assigned_containers", "admin_notes", "updated_at",
		}),
	}).Create(&model).Error
}

// ListPurchases returns all purchases newest-first.
func (s *GormStore) ListPurchases() ([]domain.Purchase, error) {
	var models []PurchaseModel
	if err := s.db.Order("purchased_at DESC, id DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Purchase, 0, len(models))
	for _, m := range models {
		res = append(res, purchaseFromModel(m))
	}
	return res, nil
}

// LatestPurchaseByUser returns the user's most recent purchase.
func (s *GormStore) LatestPurchaseByUser(userID uint64) (domain.Purchase, bool, error) {
	return s.latestPurchase("user_id = ?", userID)
}

// LatestGrantedPurchaseByUser returns the user's most recent access-granted purchase.
func (s *GormStore) LatestGrantedPurchaseByUser(userID uint64) (domain.Purchase, bool, error) {
	return s.latestPurchase("user_id = ? AND access_granted = ?", userID, true)
}

func (s *GormStore) latestPurchase(query string, args ...any) (domain.Purchase, bool, error) {
	var model PurchaseModel
	err := s.db.Where(query, args...).
		Order("purchased_at DESC, id DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Purchase{}, false, nil
		}
		return domain.Purchase{}, false, err
	}
	return purchaseFromModel(model), true, nil
}

// HasGrantedPurchase reports whether the user has an approved, access-granted purchase.
func (s *GormStore) HasGrantedPurchase(userID uint64) (bool, error) {
	var count int64
	err := s.db.Model(&PurchaseModel{}).
		Where("user_id = ? AND status = ? AND access_granted = ?", userID, string(domain.PurchaseApproved), true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListLocations returns all stored locations.
func (s *GormStore) ListLocations() ([]domain.Location, error) {
	var models []LocationModel
	if err := s.db.Order("container_id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Location, 0, len(models))
	for _, m := range models {
		res = append(res, locationFromModel(m))
	}
	return res, nil
}

// UpsertLocation inserts or replaces a location keyed by container ID.
func (s *GormStore) UpsertLocation(location domain.Location) error {
	model := locationToModel(location)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "container_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "address", "updated_at"}),
	}).Create(&model).Error
}

// DeleteLocation removes a location, reporting whether it existed.
func (s *GormStore) DeleteLocation(containerID string) (bool, error) {
	res := s.db.Delete(&LocationModel{}, "container_id = ?", containerID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Phone:        u.Phone,
		Address:      u.Address,
		City:         u.City,
		PostalCode:   u.PostalCode,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		Phone:        m.Phone,
		Address:      m.Address,
		City:         m.City,
		PostalCode:   m.PostalCode,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func purchaseToModel(p domain.Purchase) PurchaseModel {
	containers := p.AssignedContainers
	if containers == nil {
		containers = []string{}
	}
	rawContainers, _ := json.Marshal(containers)
	return PurchaseModel{
		ID:                 p.ID,
		UserID:             p.UserID,
		MasterHives:        p.MasterHives,
		NormalHives:        p.NormalHives,
		TotalAmount:        p.TotalAmount,
		ContactName:        p.ContactName,
		ContactAddress:     p.ContactAddress,
		ContactPhone:       p.ContactPhone,
		PaymentMethod:      p.PaymentMethod,
		CardLastFour:       p.CardLastFour,
		Status:             string(p.Status),
		AccessGranted:      p.AccessGranted,
		AccessGrantedAt:    p.AccessGrantedAt,
		ApprovedAt:         p.ApprovedAt,
		AssignedContainers: rawContainers,
		AdminNotes:         p.AdminNotes,
		PurchasedAt:        p.PurchasedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func purchaseFromModel(m PurchaseModel) domain.Purchase {
	containers := []string{}
	if len(m.AssignedContainers) > 0 {
		_ = json.Unmarshal(m.AssignedContainers, &containers)
	}
	return domain.Purchase{
		ID:                 m.ID,
		UserID:             m.UserID,
		MasterHives:        m.MasterHives,
		NormalHives:        m.NormalHives,
		TotalAmount:        m.TotalAmount,
		ContactName:        m.ContactName,
		ContactAddress:     m.ContactAddress,
		ContactPhone:       m.ContactPhone,
		PaymentMethod:      m.PaymentMethod,
		CardLastFour:       m.CardLastFour,
		Status:             domain.PurchaseStatus(m.Status),
		AccessGranted:      m.AccessGranted,
		AccessGrantedAt:    m.AccessGrantedAt,
		ApprovedAt:         m.ApprovedAt,
		AssignedContainers: containers,
		AdminNotes:         m.AdminNotes,
		PurchasedAt:        m.PurchasedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func locationToModel(l domain.Location) LocationModel {
	return LocationModel{
		ContainerID: l.ContainerID,
		Latitude:    l.Latitude,
		Longitude:   l.Longitude,
		Address:     l.Address,
		UpdatedAt:   l.UpdatedAt,
	}
}

func locationFromModel(m LocationModel) domain.Location {
	return domain.Location{
		ContainerID: m.ContainerID,
		Latitude:    m.Latitude,
		Longitude:   m.Longitude,
		Address:     m.Address,
		UpdatedAt:   m.UpdatedAt,
	}
}
