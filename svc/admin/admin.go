// Package admin implements the operator surface: an email allow-list, a
// stats dashboard, and manual entitlement and account overrides.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/biogen/pkg/docstore"
	"github.com/dmitrymomot/biogen/pkg/identity"
	"github.com/dmitrymomot/biogen/svc/billing"
	"github.com/dmitrymomot/biogen/svc/entitlement"
)

// Config configures the admin surface.
type Config struct {
	// AdminEmails is the comma-separated allow-list. Empty means no one is
	// an admin: the surface fails closed.
	AdminEmails []string `env:"ADMIN_EMAILS" envSeparator:","`
}

// ErrNotAdmin is returned when an authenticated user is not on the
// allow-list.
var ErrNotAdmin = errors.New("admin: not an admin")

// Stats is the dashboard snapshot.
type Stats struct {
	UserCount   int                      `json:"userCount"`
	ProCount    int64                    `json:"proCount"`
	Failures    []billing.WebhookFailure `json:"failures"`
	SignupChart []SignupPoint            `json:"chartData"`
}

// SignupPoint is one day of the signup growth chart.
type SignupPoint struct {
	Date  string `json:"date"` // MM/DD
	Count int    `json:"count"`
}

// UserRow is a directory record joined with its entitlement flag.
type UserRow struct {
	identity.User
	IsPro bool `json:"isPro"`
}

// UserDetails is the drill-down view for a single user.
type UserDetails struct {
	User   identity.User       `json:"user"`
	Status *entitlement.Status `json:"status"`
}

// Service implements the admin operations.
type Service struct {
	cfg          Config
	directory    identity.Directory
	entitlements *entitlement.Store
	failures     *billing.FailureLog
	log          *slog.Logger
	now          func() time.Time
}

// NewService creates the admin service.
func NewService(cfg Config, directory identity.Directory, entitlements *entitlement.Store, failures *billing.FailureLog, log *slog.Logger) *Service {
	if directory == nil || entitlements == nil || failures == nil {
		panic("admin: directory, entitlement store, and failure log are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:          cfg,
		directory:    directory,
		entitlements: entitlements,
		failures:     failures,
		log:          log,
		now:          time.Now,
	}
}

// Authorize checks the allow-list. Comparison is case-insensitive; an empty
// list denies everyone.
func (s *Service) Authorize(email string) error {
	if email == "" {
		return ErrNotAdmin
	}
	for _, allowed := range s.cfg.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(allowed), email) {
			return nil
		}
	}
	return ErrNotAdmin
}

// GetStats assembles the dashboard snapshot: user and Pro counts, recent
// webhook failures, and a 7-day signup series.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	users, err := s.directory.ListUsers(ctx, 1000)
	if err != nil {
		return nil, fmt.Errorf("admin: listing users: %w", err)
	}

	proCount, err := s.entitlements.CountPro(ctx)
	if err != nil {
		return nil, err
	}

	failures, err := s.failures.Recent(ctx, 10)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to load webhook failures", slog.Any("error", err))
		failures = nil
	}

	return &Stats{
		UserCount:   len(users),
		ProCount:    proCount,
		Failures:    failures,
		SignupChart: signupChart(users, s.now().UTC()),
	}, nil
}

// ListUsers returns directory records joined with entitlement flags. A
// failed status read degrades that row to free rather than failing the list.
func (s *Service) ListUsers(ctx context.Context) ([]UserRow, error) {
	users, err := s.directory.ListUsers(ctx, 100)
	if err != nil {
		return nil, fmt.Errorf("admin: listing users: %w", err)
	}

	rows := make([]UserRow, 0, len(users))
	for _, u := range users {
		row := UserRow{User: u}
		status, err := s.entitlements.Get(ctx, u.UID)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
		case err != nil:
			s.log.ErrorContext(ctx, "status fetch failed",
				slog.String("uid", u.UID), slog.Any("error", err))
		default:
			row.IsPro = status.IsPro
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// GetUserDetails returns one user's directory record and entitlement status.
func (s *Service) GetUserDetails(ctx context.Context, uid string) (*UserDetails, error) {
	user, err := s.directory.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}

	details := &UserDetails{User: user}
	status, err := s.entitlements.Get(ctx, uid)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}
	details.Status = status
	return details, nil
}

// TogglePro flips a user's entitlement and returns the new value.
func (s *Service) TogglePro(ctx context.Context, uid string) (bool, error) {
	current := false
	status, err := s.entitlements.Get(ctx, uid)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return false, err
	}
	if status != nil {
		current = status.IsPro
	}

	if err := s.entitlements.SetPro(ctx, uid, !current); err != nil {
		return false, err
	}
	s.log.InfoContext(ctx, "entitlement toggled",
		slog.String("uid", uid), slog.Bool("is_pro", !current))
	return !current, nil
}

// ToggleDisableUser flips a user's disabled flag and returns the new value.
func (s *Service) ToggleDisableUser(ctx context.Context, uid string) (bool, error) {
	user, err := s.directory.GetUser(ctx, uid)
	if err != nil {
		return false, err
	}
	if err := s.directory.SetDisabled(ctx, uid, !user.Disabled); err != nil {
		return false, err
	}
	s.log.InfoContext(ctx, "account disabled flag toggled",
		slog.String("uid", uid), slog.Bool("disabled", !user.Disabled))
	return !user.Disabled, nil
}

// signupChart buckets user creation times into the trailing 7 days.
func signupChart(users []identity.User, now time.Time) []SignupPoint {
	counts := make(map[string]int, 7)
	days := make([]string, 0, 7)
	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		counts[day] = 0
		days = append(days, day)
	}

	for _, u := range users {
		if u.CreatedAt.IsZero() {
			continue
		}
		day := u.CreatedAt.UTC().Format("2006-01-02")
		if _, ok := counts[day]; ok {
			counts[day]++
		}
	}

	points := make([]SignupPoint, 0, 7)
	for _, day := range days {
		points = append(points, SignupPoint{
			Date:  day[5:7] + "/" + day[8:10],
			Count: counts[day],
		})
	}
	return points
}
