package app

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"smarthive/pkg/auth"
	"smarthive/pkg/domain"
	"smarthive/pkg/notify"
	"smarthive/pkg/session"
	"smarthive/pkg/store"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Tokens      *session.Manager
	Notifier    notify.Notifier
}

// App is the core application service wiring together storage, sessions, and
// the purchase workflows.
type App struct {
	store    store.Store
	tokens   *session.Manager
	notifier notify.Notifier
}

// New constructs the application with database storage and session management.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("session token manager required")
	}
	return &App{
		store:    dataStore,
		tokens:   cfg.Tokens,
		notifier: cfg.Notifier,
	}, nil
}

// Tokens exposes the session manager for the HTTP layer.
func (a *App) Tokens() *session.Manager {
	return a.tokens
}

// LoginResult is the outcome of a successful authentication.
type LoginResult struct {
	User                domain.User
	Token               string
	HasApprovedPurchase bool
}

// Login validates credentials and issues a session token. It also reports
// whether the caller has an approved, access-granted purchase; admins always
// do.
func (a *App) Login(email, password string) (LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}
	hasApproved := user.Role == domain.RoleAdmin
	if !hasApproved {
		hasApproved, err = a.store.HasGrantedPurchase(user.ID)
		if err != nil {
			return LoginResult{}, fmt.Errorf("check granted purchases: %w", err)
		}
	}
	token, err := a.tokens.Issue(user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	return LoginResult{User: user, Token: token, HasApprovedPurchase: hasApproved}, nil
}

// UserFromClaims resolves the authoritative user record for verified claims,
// falling back to the claimed email when the id lookup misses.
func (a *App) UserFromClaims(claims session.Claims) (domain.User, bool, error) {
	if claims.UserID != 0 {
		user, ok, err := a.store.GetUserByID(claims.UserID)
		if err != nil {
			return domain.User{}, false, fmt.Errorf("fetch user: %w", err)
		}
		if ok {
			return user, true, nil
		}
	}
	email := strings.TrimSpace(strings.ToLower(claims.Email))
	if email == "" {
		return domain.User{}, false, nil
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("fetch user by email: %w", err)
	}
	return user, ok, nil
}

// RegistrationInput carries account and purchase fields for registration.
type RegistrationInput struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Phone      string
	Address    string
	City       string
	PostalCode string

	MasterHives   int
	NormalHives   int
	TotalAmount   float64
	PaymentMethod string
	CardLastFour  string
}

// RegisterWithPurchase creates the account and its pending purchase in one
// transaction, then publishes the notification event best-effort. The
// registration's outcome is decided solely by the transaction.
func (a *App) RegisterWithPurchase(input RegistrationInput) (domain.User, domain.Purchase, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || input.Password == "" ||
		strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return domain.User{}, domain.Purchase{}, ValidationError("email, password, first name and last name are required")
	}
	if input.MasterHives < 1 {
		return domain.User{}, domain.Purchase{}, ValidationError("purchase requires at least one master hive")
	}
	if input.NormalHives < 0 {
		return domain.User{}, domain.Purchase{}, ValidationError("normal hive count cannot be negative")
	}
	if !emailPattern.MatchString(email) {
		return domain.User{}, domain.Purchase{}, ValidationError("invalid email address")
	}
	if err := auth.ValidatePassword(input.Password); err != nil {
		return domain.User{}, domain.Purchase{}, ValidationError(err.Error())
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, domain.Purchase{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, domain.Purchase{}, ErrEmailTaken
	}

	passwordHash, err := auth.HashPassword(input.Password)
	if err != nil {
		return domain.User{}, domain.Purchase{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := domain.User{
		Email:        email,
		PasswordHash: passwordHash,
		Role:         domain.RoleUser,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Phone:        strings.TrimSpace(input.Phone),
		Address:      strings.TrimSpace(input.Address),
		City:         strings.TrimSpace(input.City),
		PostalCode:   strings.TrimSpace(input.PostalCode),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	purchase := domain.Purchase{
		MasterHives:        input.MasterHives,
		NormalHives:        input.NormalHives,
		TotalAmount:        input.TotalAmount,
		ContactName:        user.FirstName + " " + user.LastName,
		ContactAddress:     joinAddress(user.Address, user.City, user.PostalCode),
		ContactPhone:       user.Phone,
		PaymentMethod:      strings.TrimSpace(input.PaymentMethod),
		CardLastFour:       strings.TrimSpace(input.CardLastFour),
		Status:             domain.PurchasePending,
		AccessGranted:      false,
		AssignedContainers: []string{},
		PurchasedAt:        now,
		UpdatedAt:          now,
	}
	if err := a.store.CreateUserWithPurchase(&user, &purchase); err != nil {
		return domain.User{}, domain.Purchase{}, fmt.Errorf("create user with purchase: %w", err)
	}

	a.publishRegistration(user, purchase)
	return user, purchase, nil
}

// publishRegistration sends the confirmation/notification event. Failures are
// logged and swallowed; the committed registration stands regardless.
func (a *App) publishRegistration(user domain.User, purchase domain.Purchase) {
	if a.notifier == nil {
		return
	}
	event := notify.RegistrationEvent{
		UserID:       user.ID,
		PurchaseID:   purchase.ID,
		Email:        user.Email,
		ContactName:  purchase.ContactName,
		MasterHives:  purchase.MasterHives,
		NormalHives:  purchase.NormalHives,
		TotalAmount:  purchase.TotalAmount,
		RegisteredAt: purchase.PurchasedAt,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.notifier.PurchaseRegistered(ctx, event); err != nil {
		slog.Warn("registration notification failed",
			"user_id", user.ID,
			"purchase_id", purchase.ID,
			"err", err,
		)
	}
}

// EmailAvailable reports whether the email is free to register.
func (a *App) EmailAvailable(email string) (bool, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return false, ValidationError("email is required")
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return !exists, nil
}

// ListPurchases returns all purchases newest-first with owner emails resolved.
// Admin use only.
func (a *App) ListPurchases() ([]PurchaseWithOwner, error) {
	purchases, err := a.store.ListPurchases()
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	emails := make(map[uint64]string, len(purchases))
	out := make([]PurchaseWithOwner, 0, len(purchases))
	for _, p := range purchases {
		email, seen := emails[p.UserID]
		if !seen {
			if owner, ok, err := a.store.GetUserByID(p.UserID); err != nil {
				return nil, fmt.Errorf("resolve owner: %w", err)
			} else if ok {
				email = owner.Email
			}
			emails[p.UserID] = email
		}
		out = append(out, PurchaseWithOwner{Purchase: p, OwnerEmail: email})
	}
	return out, nil
}

// PurchaseWithOwner pairs a purchase with its owner's email for admin views.
type PurchaseWithOwner struct {
	domain.Purchase
	OwnerEmail string `json:"ownerEmail"`
}

// GrantAccess transitions a pending purchase to approved with access granted.
// A purchase can be granted once; a repeat attempt fails with
// ErrAlreadyGranted and leaves the record untouched.
func (a *App) GrantAccess(purchaseID uint64) (domain.Purchase, error) {
	purchase, ok, err := a.store.GetPurchase(purchaseID)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("fetch purchase: %w", err)
	}
	if !ok {
		return domain.Purchase{}, ErrPurchaseNotFound
	}
	if purchase.AccessGranted {
		return domain.Purchase{}, ErrAlreadyGranted
	}
	now := time.Now().UTC()
	purchase.AccessGranted = true
	purchase.AccessGrantedAt = &now
	purchase.Status = domain.PurchaseApproved
	purchase.ApprovedAt = &now
	purchase.UpdatedAt = now
	if err := a.store.SavePurchase(purchase); err != nil {
		return domain.Purchase{}, fmt.Errorf("save purchase: %w", err)
	}
	return purchase, nil
}

// AssignContainers replaces the purchase's container list and notes wholesale.
// Assignment is independent of the access grant.
func (a *App) AssignContainers(purchaseID uint64, containers []string, notes string) (domain.Purchase, error) {
	if containers == nil {
		return domain.Purchase{}, ValidationError("assignedContainers must be a list")
	}
	cleaned := make([]string, 0, len(containers))
	for _, id := range containers {
		id = strings.TrimSpace(id)
		if id == "" {
			return domain.Purchase{}, ValidationError("container identifiers cannot be empty")
		}
		cleaned = append(cleaned, id)
	}
	purchase, ok, err := a.store.GetPurchase(purchaseID)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("fetch purchase: %w", err)
	}
	if !ok {
		return domain.Purchase{}, ErrPurchaseNotFound
	}
	purchase.AssignedContainers = cleaned
	purchase.AdminNotes = notes
	purchase.UpdatedAt = time.Now().UTC()
	if err := a.store.SavePurchase(purchase); err != nil {
		return domain.Purchase{}, fmt.Errorf("save purchase: %w", err)
	}
	return purchase, nil
}

// GetContainers returns the assigned containers and notes for a purchase.
func (a *App) GetContainers(purchaseID uint64) ([]string, string, error) {
	purchase, ok, err := a.store.GetPurchase(purchaseID)
	if err != nil {
		return nil, "", fmt.Errorf("fetch purchase: %w", err)
	}
	if !ok {
		return nil, "", ErrPurchaseNotFound
	}
	containers := purchase.AssignedContainers
	if containers == nil {
		containers = []string{}
	}
	return containers, purchase.AdminNotes, nil
}

// ResolveAccess produces the caller's access tier. Both the "any purchase"
// and "granted purchase" lookups use the same newest-first ordering.
func (a *App) ResolveAccess(claims session.Claims) (domain.AccessStatus, error) {
	user, ok, err := a.UserFromClaims(claims)
	if err != nil {
		return domain.AccessStatus{}, err
	}
	if !ok {
		return domain.AccessStatus{}, ErrUserNotFound
	}

	granted, ok, err := a.store.LatestGrantedPurchaseByUser(user.ID)
	if err != nil {
		return domain.AccessStatus{}, fmt.Errorf("fetch granted purchase: %w", err)
	}
	if ok {
		if len(granted.AssignedContainers) == 0 {
			return domain.AccessStatus{
				HasPurchased: true,
				HasAccess:    true,
				Message:      "Access granted. Container assignment is in progress.",
				Purchase:     &granted,
			}, nil
		}
		return domain.AccessStatus{
			HasPurchased: true,
			HasAccess:    true,
			Message:      "Access granted.",
			Purchase:     &granted,
		}, nil
	}

	latest, ok, err := a.store.LatestPurchaseByUser(user.ID)
	if err != nil {
		return domain.AccessStatus{}, fmt.Errorf("fetch latest purchase: %w", err)
	}
	if !ok {
		return domain.AccessStatus{
			HasPurchased: false,
			HasAccess:    false,
			Message:      "No purchase on record.",
		}, nil
	}
	return domain.AccessStatus{
		HasPurchased:    true,
		HasAccess:       false,
		Message:         "Purchase is awaiting approval.",
		PendingPurchase: &latest,
	}, nil
}

// ListLocations returns all container locations keyed by container ID.
func (a *App) ListLocations() (map[string]domain.Location, error) {
	locations, err := a.store.ListLocations()
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	out := make(map[string]domain.Location, len(locations))
	for _, l := range locations {
		out[l.ContainerID] = l
	}
	return out, nil
}

// UpsertLocation validates coordinates and inserts or replaces the record.
func (a *App) UpsertLocation(containerID string, lat, lon float64, address string) (domain.Location, error) {
	containerID = strings.TrimSpace(containerID)
	if containerID == "" {
		return domain.Location{}, ValidationError("container id is required")
	}
	if lat < -90 || lat > 90 {
		return domain.Location{}, ValidationError("latitude must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		return domain.Location{}, ValidationError("longitude must be between -180 and 180")
	}
	location := domain.Location{
		ContainerID: containerID,
		Latitude:    lat,
		Longitude:   lon,
		Address:     strings.TrimSpace(address),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := a.store.UpsertLocation(location); err != nil {
		return domain.Location{}, fmt.Errorf("upsert location: %w", err)
	}
	return location, nil
}

// RemoveLocation deletes a location by container ID.
func (a *App) RemoveLocation(containerID string) error {
	containerID = strings.TrimSpace(containerID)
	if containerID == "" {
		return ValidationError("container id is required")
	}
	found, err := a.store.DeleteLocation(containerID)
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	if !found {
		return ErrLocationNotFound
	}
	return nil
}

func joinAddress(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
