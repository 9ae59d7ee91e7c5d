package store

import (
	"sort"
	"sync"

	"smarthive/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and local runs
// without Postgres, and mirrors the transactional behavior of GormStore:
// CreateUserWithPurchase commits both records or neither.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[uint64]domain.User
	emails     map[string]uint64
	purchases  map[uint64]domain.Purchase
	locations  map[string]domain.Location
	nextUser   uint64
	nextOrder  uint64
	failCreate error
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[uint64]domain.User),
		emails:    make(map[string]uint64),
		purchases: make(map[uint64]domain.Purchase),
		locations: make(map[string]domain.Location),
	}
}

// FailNextPurchaseCreate injects a failure between user and purchase creation
// on the next CreateUserWithPurchase call. Used to test atomicity.
func (m *MemoryStore) FailNextPurchaseCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreate = err
}

// CreateUserWithPurchase assigns IDs and stores both records atomically.
func (m *MemoryStore) CreateUserWithPurchase(user *domain.User, purchase *domain.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID := m.nextUser + 1
	if m.failCreate != nil {
		err := m.failCreate
		m.failCreate = nil
		return err
	}
	orderID := m.nextOrder + 1

	m.nextUser = userID
	m.nextOrder = orderID
	user.ID = userID
	purchase.ID = orderID
	purchase.UserID = userID
	m.users[userID] = *user
	m.emails[user.Email] = userID
	m.purchases[orderID] = *purchase
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.emails[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return domain.User{}, false, nil
	}
	user, ok := m.users[id]
	return user, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id uint64) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	return user, ok, nil
}

// GetPurchase retrieves one purchase.
func (m *MemoryStore) GetPurchase(id uint64) (domain.Purchase, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	purchase, ok := m.purchases[id]
	return purchase, ok, nil
}

// SavePurchase stores or replaces a purchase.
func (m *MemoryStore) SavePurchase(purchase domain.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if purchase.ID == 0 {
		m.nextOrder++
		purchase.ID = m.nextOrder
	}
	m.purchases[purchase.ID] = purchase
	return nil
}

// ListPurchases returns all purchases newest-first.
func (m *MemoryStore) ListPurchases() ([]domain.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Purchase, 0, len(m.purchases))
	for _, p := range m.purchases {
		res = append(res, p)
	}
	sortPurchasesNewestFirst(res)
	return res, nil
}

// LatestPurchaseByUser returns the user's most recent purchase.
func (m *MemoryStore) LatestPurchaseByUser(userID uint64) (domain.Purchase, bool, error) {
	return m.latest(func(p domain.Purchase) bool {
		return p.UserID == userID
	})
}

// LatestGrantedPurchaseByUser returns the user's most recent access-granted purchase.
func (m *MemoryStore) LatestGrantedPurchaseByUser(userID uint64) (domain.Purchase, bool, error) {
	return m.latest(func(p domain.Purchase) bool {
		return p.UserID == userID && p.AccessGranted
	})
}

func (m *MemoryStore) latest(match func(domain.Purchase) bool) (domain.Purchase, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]domain.Purchase, 0, 4)
	for _, p := range m.purchases {
		if match(p) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return domain.Purchase{}, false, nil
	}
	sortPurchasesNewestFirst(matched)
	return matched[0], true, nil
}

// HasGrantedPurchase reports whether the user has an approved, access-granted purchase.
func (m *MemoryStore) HasGrantedPurchase(userID uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.purchases {
		if p.UserID == userID && p.Status == domain.PurchaseApproved && p.AccessGranted {
			return true, nil
		}
	}
	return false, nil
}

// ListLocations returns all stored locations.
func (m *MemoryStore) ListLocations() ([]domain.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Location, 0, len(m.locations))
	for _, l := range m.locations {
		res = append(res, l)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ContainerID < res[j].ContainerID
	})
	return res, nil
}

// UpsertLocation inserts or replaces a location keyed by container ID.
func (m *MemoryStore) UpsertLocation(location domain.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[location.ContainerID] = location
	return nil
}

// DeleteLocation removes a location, reporting whether it existed.
func (m *MemoryStore) DeleteLocation(containerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locations[containerID]
	delete(m.locations, containerID)
	return ok, nil
}

// AddUser stores a user without a purchase, assigning an ID. Test helper.
func (m *MemoryStore) AddUser(user domain.User) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUser++
	user.ID = m.nextUser
	m.users[user.ID] = user
	m.emails[user.Email] = user.ID
	return user
}

// UserCount returns the number of stored users. Test helper.
func (m *MemoryStore) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// PurchaseCount returns the number of stored purchases. Test helper.
func (m *MemoryStore) PurchaseCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.purchases)
}

func sortPurchasesNewestFirst(purchases []domain.Purchase) {
	sort.Slice(purchases, func(i, j int) bool {
		if !purchases[i].PurchasedAt.Equal(purchases[j].PurchasedAt) {
			return purchases[i].PurchasedAt.After(purchases[j].PurchasedAt)
		}
		return purchases[i].ID > purchases[j].ID
	})
}
