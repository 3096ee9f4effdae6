package auth

import (
	"context"
	"strings"
	"time"
)

// AuthObserver receives login and registration outcomes, typically for
// metrics.
type AuthObserver interface {
	ObserveAuth(operation, result string)
}

// Service implements password registration and login on top of the
// CredentialStore, PasswordHasher and TokenService collaborators.
type Service struct {
	store     CredentialStore
	hasher    PasswordHasher
	tokens    TokenService
	twoFactor TwoFactorVerifier
	sink      ActivitySink
	observer  AuthObserver
	logger    Logger
	now       func() time.Time
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithTwoFactorVerifier enables the second factor check for accounts that
// have it turned on.
func WithTwoFactorVerifier(v TwoFactorVerifier) ServiceOption {
	return func(s *Service) {
		s.twoFactor = v
	}
}

// WithActivitySink sets the activity sink.
func WithActivitySink(sink ActivitySink) ServiceOption {
	return func(s *Service) {
		s.sink = NormalizeActivitySink(sink)
	}
}

// WithAuthObserver sets the outcome observer.
func WithAuthObserver(o AuthObserver) ServiceOption {
	return func(s *Service) {
		s.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service.
func NewService(store CredentialStore, hasher PasswordHasher, tokens TokenService, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		sink:   noopActivitySink{},
		logger: defLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// TokenService returns the token service used to issue tokens.
func (s *Service) TokenService() TokenService {
	return s.tokens
}

// Register creates a USER account and logs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	user, err := s.createAccount(ctx, req, RoleUser)
	if err != nil {
		s.observe("register", "failure")
		return nil, err
	}

	s.observe("register", "success")
	RecordActivity(ctx, s.sink, s.logger, ActivityEvent{
		EventType: ActivityEventRegistered,
		Email:     user.Email,
		UserID:    user.ID.String(),
	})

	return s.respond(user, "User registered successfully")
}

// CreateFirstAdmin creates the first ADMIN account. It fails with
// ErrAdminExists once any admin exists.
func (s *Service) CreateFirstAdmin(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	admins, err := s.store.CountByRole(ctx, RoleAdmin)
	if err != nil {
		return nil, err
	}
	if admins > 0 {
		return nil, ErrAdminExists
	}

	user, err := s.createAccount(ctx, req, RoleAdmin)
	if err != nil {
		return nil, err
	}

	s.logger.Info("first admin created", "email", user.Email)
	RecordActivity(ctx, s.sink, s.logger, ActivityEvent{
		EventType: ActivityEventAdminCreated,
		Email:     user.Email,
		UserID:    user.ID.String(),
	})

	return s.respond(user, "Admin user created successfully")
}

// Login verifies the credentials and issues a token. An unknown email is
// ErrUserNotFound and a wrong password is ErrInvalidPassword.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	email := NormalizeEmail(req.Email)
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if IsUserNotFound(err) {
			s.loginFailed(ctx, email, "user_not_found")
			return nil, ErrUserNotFound
		}
		s.logger.Error("login lookup failed", "email", email, "error", err)
		return nil, err
	}

	if !s.hasher.Matches(req.Password, user.PasswordHash) {
		s.loginFailed(ctx, email, "invalid_password")
		return nil, ErrInvalidPassword
	}

	if user.TwoFactorEnabled && s.twoFactor != nil {
		code := strings.TrimSpace(req.Code)
		if code == "" {
			s.loginFailed(ctx, email, "two_factor_required")
			return nil, ErrTwoFactorRequired
		}
		if !s.twoFactor.Verify(user.TwoFactorSecret, code) {
			s.loginFailed(ctx, email, "invalid_two_factor_code")
			return nil, ErrInvalidTwoFactorCode
		}
	}

	resp, err := s.respond(user, "Login successful")
	if err != nil {
		return nil, err
	}

	s.trackLogin(ctx, user)
	s.observe("login", "success")
	RecordActivity(ctx, s.sink, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Email:     user.Email,
		UserID:    user.ID.String(),
	})

	return resp, nil
}

// Logout is a client side operation: tokens are stateless and are never
// revoked. It records the event and drops any cached identity for the user.
func (s *Service) Logout(ctx context.Context, identity *AuthenticatedIdentity) error {
	if identity == nil {
		return nil
	}
	if inv, ok := s.store.(identityInvalidator); ok {
		inv.Invalidate(identity.Email)
	}
	RecordActivity(ctx, s.sink, s.logger, ActivityEvent{
		EventType: ActivityEventLogout,
		Email:     identity.Email,
	})
	return nil
}

// CurrentUser returns the record for the authenticated identity.
func (s *Service) CurrentUser(ctx context.Context, identity *AuthenticatedIdentity) (*User, error) {
	if identity == nil {
		return nil, ErrAuthenticationRequired
	}
	return s.store.FindByEmail(ctx, identity.Email)
}

// ChangePassword verifies the current password and stores a new one that
// passes the policy.
func (s *Service) ChangePassword(ctx context.Context, identity *AuthenticatedIdentity, req ChangePasswordRequest) error {
	if identity == nil {
		return ErrAuthenticationRequired
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if err := ValidatePassword(req.NewPassword); err != nil {
		return err
	}

	user, err := s.store.FindByEmail(ctx, identity.Email)
	if err != nil {
		return err
	}
	if !s.hasher.Matches(req.CurrentPassword, user.PasswordHash) {
		return ErrInvalidPassword
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash

	if _, err := s.store.Save(ctx, user); err != nil {
		return err
	}

	RecordActivity(ctx, s.sink, s.logger, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Email:     user.Email,
		UserID:    user.ID.String(),
	})
	return nil
}

// UserCounts reports the number of accounts per role.
func (s *Service) UserCounts(ctx context.Context) (map[Role]int, int, error) {
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	counts := map[Role]int{}
	for _, role := range []Role{RoleUser, RoleAdmin} {
		n, err := s.store.CountByRole(ctx, role)
		if err != nil {
			return nil, 0, err
		}
		counts[role] = n
	}
	return counts, total, nil
}

func (s *Service) createAccount(ctx context.Context, req RegisterRequest, role Role) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	email := NormalizeEmail(req.Email)
	exists, err := s.store.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailAlreadyRegistered
	}

	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, toRequestError(err, "Validation failed")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	// The store unique constraint still decides concurrent registrations.
	return s.store.Save(ctx, &User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Role:         role,
	})
}

func (s *Service) respond(user *User, msg string) (*AuthResponse, error) {
	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		Token:   token,
		Email:   user.Email,
		Name:    user.Name,
		Role:    user.Role,
		Message: msg,
	}, nil
}

func (s *Service) trackLogin(ctx context.Context, user *User) {
	now := s.now().UTC()
	user.LoggedInAt = &now
	if _, err := s.store.Save(ctx, user); err != nil {
		s.logger.Warn("failed to track login time", "email", user.Email, "error", err)
	}
}

func (s *Service) loginFailed(ctx context.Context, email, reason string) {
	s.observe("login", reason)
	s.logger.Info("login failed", "email", email, "reason", reason)
	RecordActivity(ctx, s.sink, s.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Email:     email,
		Metadata:  map[string]any{"reason": reason},
	})
}

func (s *Service) observe(operation, result string) {
	if s.observer != nil {
		s.observer.ObserveAuth(operation, result)
	}
}
