package service_test

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/gateway"
	"powerbank-rental-backend/internal/repository"
)

// MockStore hands out the mock repositories and runs ExecTx callbacks against
// itself, so a transactional unit under test sees the same mocks as direct
// calls do.
type MockStore struct {
	UserRepo    *MockUserRepo
	LedgerRepo  *MockLedgerRepo
	RentalRepo  *MockRentalRepo
	IntentRepo  *MockIntentRepo
	PackageRepo *MockPackageRepo
	NoteRepo    *MockNotificationRepo
}

func NewMockStore() *MockStore {
	return &MockStore{
		UserRepo:    new(MockUserRepo),
		LedgerRepo:  new(MockLedgerRepo),
		RentalRepo:  new(MockRentalRepo),
		IntentRepo:  new(MockIntentRepo),
		PackageRepo: new(MockPackageRepo),
		NoteRepo:    new(MockNotificationRepo),
	}
}

func (s *MockStore) Users() repository.UserRepository                 { return s.UserRepo }
func (s *MockStore) Ledger() repository.LedgerRepository              { return s.LedgerRepo }
func (s *MockStore) Rentals() repository.RentalRepository             { return s.RentalRepo }
func (s *MockStore) Intents() repository.IntentRepository             { return s.IntentRepo }
func (s *MockStore) Packages() repository.PackageRepository           { return s.PackageRepo }
func (s *MockStore) Notifications() repository.NotificationRepository { return s.NoteRepo }

func (s *MockStore) ExecTx(ctx context.Context, fn func(repository.Store) error) error {
	return fn(s)
}

// MockUserRepo
type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}
func (m *MockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// MockLedgerRepo
type MockLedgerRepo struct {
	mock.Mock
}

func (m *MockLedgerRepo) CreateAccount(ctx context.Context, userID int64) (*domain.LedgerAccount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerAccount), args.Error(1)
}
func (m *MockLedgerRepo) GetAccount(ctx context.Context, userID int64) (*domain.LedgerAccount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerAccount), args.Error(1)
}
func (m *MockLedgerRepo) ApplyDelta(ctx context.Context, userID int64, walletDelta decimal.Decimal, pointsDelta int64, expectedVersion int64, allowNegative bool) error {
	args := m.Called(ctx, userID, walletDelta, pointsDelta, expectedVersion, allowNegative)
	return args.Error(0)
}
func (m *MockLedgerRepo) SetBlocked(ctx context.Context, userID int64, blocked bool) error {
	args := m.Called(ctx, userID, blocked)
	return args.Error(0)
}
func (m *MockLedgerRepo) CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}
func (m *MockLedgerRepo) ListTransactions(ctx context.Context, userID int64, page, pageSize int32) ([]domain.LedgerTransaction, int32, error) {
	args := m.Called(ctx, userID, page, pageSize)
	return args.Get(0).([]domain.LedgerTransaction), args.Get(1).(int32), args.Error(2)
}
func (m *MockLedgerRepo) ListTransactionsByRental(ctx context.Context, rentalID string) ([]domain.LedgerTransaction, error) {
	args := m.Called(ctx, rentalID)
	return args.Get(0).([]domain.LedgerTransaction), args.Error(1)
}

// MockRentalRepo
type MockRentalRepo struct {
	mock.Mock
}

func (m *MockRentalRepo) Create(ctx context.Context, rental *domain.Rental) error {
	args := m.Called(ctx, rental)
	return args.Error(0)
}
func (m *MockRentalRepo) GetByID(ctx context.Context, id string) (*domain.Rental, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}
func (m *MockRentalRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Rental, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}
func (m *MockRentalRepo) Update(ctx context.Context, rental *domain.Rental) error {
	args := m.Called(ctx, rental)
	return args.Error(0)
}
func (m *MockRentalRepo) ListByUser(ctx context.Context, userID int64, status string, page, pageSize int32) ([]domain.Rental, int32, error) {
	args := m.Called(ctx, userID, status, page, pageSize)
	return args.Get(0).([]domain.Rental), args.Get(1).(int32), args.Error(2)
}
func (m *MockRentalRepo) ListActivePastDue(ctx context.Context, now time.Time, limit int32) ([]domain.Rental, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]domain.Rental), args.Error(1)
}
func (m *MockRentalRepo) CountWithUnpaidDues(ctx context.Context, userID int64) (int32, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int32), args.Error(1)
}

// MockIntentRepo
type MockIntentRepo struct {
	mock.Mock
}

func (m *MockIntentRepo) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}
func (m *MockIntentRepo) GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentIntent), args.Error(1)
}
func (m *MockIntentRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentIntent), args.Error(1)
}
func (m *MockIntentRepo) TransitionFromPending(ctx context.Context, id string, to domain.IntentStatus, gatewayReference *string) error {
	args := m.Called(ctx, id, to, gatewayReference)
	return args.Error(0)
}
func (m *MockIntentRepo) ExpireStale(ctx context.Context, now time.Time) (int32, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int32), args.Error(1)
}

// MockPackageRepo
type MockPackageRepo struct {
	mock.Mock
}

func (m *MockPackageRepo) GetByID(ctx context.Context, id string) (*domain.RentalPackage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RentalPackage), args.Error(1)
}
func (m *MockPackageRepo) List(ctx context.Context) ([]domain.RentalPackage, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.RentalPackage), args.Error(1)
}
func (m *MockPackageRepo) CheapestCovering(ctx context.Context, minutes int64) (*domain.RentalPackage, error) {
	args := m.Called(ctx, minutes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RentalPackage), args.Error(1)
}

// MockNotificationRepo
type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, note *domain.Notification) error {
	args := m.Called(ctx, note)
	return args.Error(0)
}
func (m *MockNotificationRepo) List(ctx context.Context, userID int64, page, pageSize int32) ([]domain.Notification, int32, error) {
	args := m.Called(ctx, userID, page, pageSize)
	return args.Get(0).([]domain.Notification), args.Get(1).(int32), args.Error(2)
}
func (m *MockNotificationRepo) MarkAsRead(ctx context.Context, id, userID int64) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

// MockStationClient
type MockStationClient struct {
	mock.Mock
}

func (m *MockStationClient) ReserveSlot(ctx context.Context, stationID string) (string, error) {
	args := m.Called(ctx, stationID)
	return args.String(0), args.Error(1)
}
func (m *MockStationClient) ReleaseSlot(ctx context.Context, stationID, slotID string) error {
	args := m.Called(ctx, stationID, slotID)
	return args.Error(0)
}
func (m *MockStationClient) EjectPowerBank(ctx context.Context, stationID, slotID, rentalID string) error {
	args := m.Called(ctx, stationID, slotID, rentalID)
	return args.Error(0)
}
func (m *MockStationClient) IsPowerBankPresent(ctx context.Context, stationID, slotID string) (bool, error) {
	args := m.Called(ctx, stationID, slotID)
	return args.Bool(0), args.Error(1)
}

// MockGatewayClient
type MockGatewayClient struct {
	mock.Mock
	name domain.Gateway
}

func (m *MockGatewayClient) Name() domain.Gateway { return m.name }
func (m *MockGatewayClient) Initiate(ctx context.Context, intentID string, amount decimal.Decimal, currency string) (*gateway.InitiateResult, error) {
	args := m.Called(ctx, intentID, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InitiateResult), args.Error(1)
}
func (m *MockGatewayClient) Verify(ctx context.Context, intentID string, callbackData map[string]string) (*gateway.VerifyResult, error) {
	args := m.Called(ctx, intentID, callbackData)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.VerifyResult), args.Error(1)
}

// NopNotifier drops every event; tests assert on state, not on copy.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, userID int64, eventKind string, payload map[string]string) {
}
