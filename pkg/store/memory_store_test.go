package store

import (
	"errors"
	"testing"
	"time"

	"smarthive/pkg/domain"
)

func newUserAndPurchase(email string, at time.Time) (domain.User, domain.Purchase) {
	user := domain.User{
		Email:        email,
		PasswordHash: "hash",
		Role:         domain.RoleUser,
		FirstName:    "Test",
		LastName:     "Keeper",
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	purchase := domain.Purchase{
		MasterHives:        1,
		Status:             domain.PurchasePending,
		AssignedContainers: []string{},
		PurchasedAt:        at,
		UpdatedAt:          at,
	}
	return user, purchase
}

func TestCreateUserWithPurchaseAssignsIDs(t *testing.T) {
	m := NewMemoryStore()
	user, purchase := newUserAndPurchase("a@example.com", time.Now().UTC())
	if err := m.CreateUserWithPurchase(&user, &purchase); err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.ID == 0 || purchase.ID == 0 {
		t.Fatalf("expected assigned IDs, got user=%d purchase=%d", user.ID, purchase.ID)
	}
	if purchase.UserID != user.ID {
		t.Fatalf("purchase owner mismatch: %d != %d", purchase.UserID, user.ID)
	}
	got, ok, err := m.GetUserByEmail("a@example.com")
	if err != nil || !ok {
		t.Fatalf("get by email: ok=%v err=%v", ok, err)
	}
	if got.ID != user.ID {
		t.Fatalf("lookup mismatch: %d != %d", got.ID, user.ID)
	}
}

func TestCreateUserWithPurchaseIsAtomicUnderInjectedFailure(t *testing.T) {
	m := NewMemoryStore()
	m.FailNextPurchaseCreate(errors.New("disk full"))
	user, purchase := newUserAndPurchase("fail@example.com", time.Now().UTC())
	if err := m.CreateUserWithPurchase(&user, &purchase); err == nil {
		t.Fatal("expected injected failure")
	}
	if m.UserCount() != 0 || m.PurchaseCount() != 0 {
		t.Fatalf("partial state observed: users=%d purchases=%d", m.UserCount(), m.PurchaseCount())
	}
	// The store must recover for the next caller.
	user2, purchase2 := newUserAndPurchase("ok@example.com", time.Now().UTC())
	if err := m.CreateUserWithPurchase(&user2, &purchase2); err != nil {
		t.Fatalf("create after failure: %v", err)
	}
	if m.UserCount() != 1 || m.PurchaseCount() != 1 {
		t.Fatalf("expected one user and one purchase, got %d/%d", m.UserCount(), m.PurchaseCount())
	}
}

func TestLatestPurchaseOrdering(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user, first := newUserAndPurchase("multi@example.com", base)
	if err := m.CreateUserWithPurchase(&user, &first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := domain.Purchase{
		UserID:             user.ID,
		MasterHives:        2,
		Status:             domain.PurchasePending,
		AssignedContainers: []string{},
		PurchasedAt:        base.Add(48 * time.Hour),
	}
	if err := m.SavePurchase(second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	latest, ok, err := m.LatestPurchaseByUser(user.ID)
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if latest.MasterHives != 2 {
		t.Fatalf("expected newest purchase, got %+v", latest)
	}

	// Only the first purchase is granted; the granted query must find it even
	// though a newer ungranted purchase exists.
	first.AccessGranted = true
	first.Status = domain.PurchaseApproved
	if err := m.SavePurchase(first); err != nil {
		t.Fatalf("save granted: %v", err)
	}
	granted, ok, err := m.LatestGrantedPurchaseByUser(user.ID)
	if err != nil || !ok {
		t.Fatalf("latest granted: ok=%v err=%v", ok, err)
	}
	if granted.ID != first.ID {
		t.Fatalf("expected granted purchase %d, got %d", first.ID, granted.ID)
	}
}

func TestHasGrantedPurchaseRequiresApprovedStatus(t *testing.T) {
	m := NewMemoryStore()
	user, purchase := newUserAndPurchase("status@example.com", time.Now().UTC())
	if err := m.CreateUserWithPurchase(&user, &purchase); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Granted flag alone is not enough.
	purchase.AccessGranted = true
	if err := m.SavePurchase(purchase); err != nil {
		t.Fatalf("save: %v", err)
	}
	ok, err := m.HasGrantedPurchase(user.ID)
	if err != nil {
		t.Fatalf("has granted: %v", err)
	}
	if ok {
		t.Fatal("pending purchase must not count as granted")
	}
	purchase.Status = domain.PurchaseApproved
	if err := m.SavePurchase(purchase); err != nil {
		t.Fatalf("save: %v", err)
	}
	ok, err = m.HasGrantedPurchase(user.ID)
	if err != nil || !ok {
		t.Fatalf("expected granted purchase, ok=%v err=%v", ok, err)
	}
}

func TestLocationUpsertAndDelete(t *testing.T) {
	m := NewMemoryStore()
	loc := domain.Location{ContainerID: "C1", Latitude: 41.0, Longitude: 29.0, UpdatedAt: time.Now().UTC()}
	if err := m.UpsertLocation(loc); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	loc.Latitude = 42.5
	if err := m.UpsertLocation(loc); err != nil {
		t.Fatalf("upsert replace: %v", err)
	}
	locations, err := m.ListLocations()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(locations) != 1 || locations[0].Latitude != 42.5 {
		t.Fatalf("expected replaced record, got %+v", locations)
	}
	ok, err := m.DeleteLocation("C1")
	if err != nil || !ok {
		t.Fatalf("delete existing: ok=%v err=%v", ok, err)
	}
	ok, err = m.DeleteLocation("C1")
	if err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if ok {
		t.Fatal("second delete must report not found")
	}
}
