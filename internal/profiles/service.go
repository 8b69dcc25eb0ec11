package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/common"
	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
	"github.com/joseph-ayodele/ratecon-intake/internal/llm"
	"github.com/joseph-ayodele/ratecon-intake/internal/render"
	"github.com/joseph-ayodele/ratecon-intake/internal/repository"
)

// Service handles account business logic: quota, pro status and templates.
type Service struct {
	users     repository.UserRepository
	admins    common.AdminConfig
	generator llm.TemplateGenerator
	freeUses  int
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Service)

// WithTemplateGenerator enables AI conversion of template examples.
func WithTemplateGenerator(g llm.TemplateGenerator) Option {
	return func(s *Service) { s.generator = g }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFreeUses sets the allowance granted at registration.
func WithFreeUses(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.freeUses = n
		}
	}
}

// NewService creates a new profile service.
func NewService(users repository.UserRepository, admins common.AdminConfig, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		users:    users,
		admins:   admins,
		freeUses: constants.DefaultFreeUses,
		now:      time.Now,
		logger:   logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// IsAdmin reports whether tgID bypasses quota checks.
func (s *Service) IsAdmin(tgID int64) bool {
	return s.admins.IsAdmin(tgID)
}

// Register returns the account for tgID, creating it with the free allowance on first contact.
func (s *Service) Register(ctx context.Context, tgID int64, username string) (*entity.User, error) {
	if tgID == 0 {
		return nil, common.NewAppError("INVALID_USER", "telegram id is required", common.ErrInvalidInput)
	}
	u, err := s.users.GetOrCreate(ctx, tgID, strings.TrimSpace(username), s.freeUses)
	if err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}
	s.logger.Info("profiles.register.ok", "tg_id", tgID, "free_uses", u.FreeUses, "is_pro", u.IsPro)
	return u, nil
}

// Authorize decides whether tgID may submit a document. Admins always pass; unknown users
// and exhausted free accounts are rejected. A lapsed pro subscription is downgraded here.
func (s *Service) Authorize(ctx context.Context, tgID int64) (*entity.User, error) {
	if s.IsAdmin(tgID) {
		u, err := s.users.GetByTelegramID(ctx, tgID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return u, nil
	}

	u, err := s.users.GetByTelegramID(ctx, tgID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewAppError("UNREGISTERED", "register first", common.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	if u.ProExpired(s.now()) {
		if err := s.users.SetPro(ctx, tgID, false, u.ExpiryDate); err != nil {
			s.logger.Error("profiles.downgrade.failed", "tg_id", tgID, "error", err)
		} else {
			s.logger.Info("profiles.downgrade.ok", "tg_id", tgID, "expired", u.ExpiryDate)
		}
		u.IsPro = false
	}

	if !u.IsPro && u.FreeUses <= 0 {
		return u, common.NewAppError("QUOTA_EXCEEDED", "out of free uses", common.ErrQuotaExceeded)
	}
	return u, nil
}

// ConsumeUse charges one free use after a successful delivery. Admins and pro users are free.
func (s *Service) ConsumeUse(ctx context.Context, tgID int64) error {
	if s.IsAdmin(tgID) {
		return nil
	}
	u, err := s.users.GetByTelegramID(ctx, tgID)
	if err != nil {
		return err
	}
	if u.IsPro && !u.ProExpired(s.now()) {
		return nil
	}
	left, err := s.users.DecrementFreeUses(ctx, tgID)
	if err != nil {
		return err
	}
	s.logger.Info("profiles.use.consumed", "tg_id", tgID, "free_uses", left)
	return nil
}

// Template returns the stored template, or "" when the default layout applies.
func (s *Service) Template(ctx context.Context, tgID int64) (string, error) {
	u, err := s.users.GetByTelegramID(ctx, tgID)
	if errors.Is(err, common.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.Template(), nil
}

// SetTemplate stores a template built from a plain example message. The AI backend converts
// the example to template syntax; when it fails or yields something that does not compile,
// the example itself is stored.
func (s *Service) SetTemplate(ctx context.Context, tgID int64, example string) (string, error) {
	example = strings.TrimSpace(example)
	if example == "" {
		return "", common.NewAppError("EMPTY_TEMPLATE", "template example is empty", common.ErrInvalidInput)
	}

	tmpl := example
	if s.generator != nil {
		generated, err := s.generator.GenerateTemplate(ctx, example)
		switch {
		case err != nil:
			s.logger.Warn("profiles.template.ai_failed", "tg_id", tgID, "error", err)
		case render.Validate(generated) != nil:
			s.logger.Warn("profiles.template.ai_invalid", "tg_id", tgID, "error", render.Validate(generated))
		default:
			tmpl = generated
		}
	}

	if err := render.Validate(tmpl); err != nil {
		return "", common.NewAppError("INVALID_TEMPLATE", err.Error(), common.ErrValidation)
	}
	if err := s.users.SetTemplate(ctx, tgID, &tmpl); err != nil {
		return "", err
	}
	s.logger.Info("profiles.template.saved", "tg_id", tgID, "bytes", len(tmpl))
	return tmpl, nil
}

// ResetTemplate restores the default layout.
func (s *Service) ResetTemplate(ctx context.Context, tgID int64) error {
	if err := s.users.SetTemplate(ctx, tgID, nil); err != nil {
		return err
	}
	s.logger.Info("profiles.template.reset", "tg_id", tgID)
	return nil
}

// GrantPro activates a pro subscription for days from now.
func (s *Service) GrantPro(ctx context.Context, tgID int64, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, common.NewAppError("INVALID_DAYS", "days must be positive", common.ErrInvalidInput)
	}
	expiry := s.now().UTC().AddDate(0, 0, days)
	if err := s.users.SetPro(ctx, tgID, true, &expiry); err != nil {
		return time.Time{}, err
	}
	s.logger.Info("profiles.pro.granted", "tg_id", tgID, "days", days, "expiry", expiry)
	return expiry, nil
}

// Status summarizes an account.
type Status struct {
	TelegramID  int64      `json:"tg_id"`
	IsAdmin     bool       `json:"is_admin"`
	IsPro       bool       `json:"is_pro"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	FreeUses    int        `json:"free_uses"`
	HasTemplate bool       `json:"has_template"`
}

// Text renders the status line shown to the user.
func (st Status) Text() string {
	if st.IsPro && st.ExpiryDate != nil {
		return "✅ Pro (until " + st.ExpiryDate.Format("02.01.2006") + ")"
	}
	if st.IsPro {
		return "✅ Pro"
	}
	return fmt.Sprintf("🆓 Free (%d left)", st.FreeUses)
}

func (s *Service) Status(ctx context.Context, tgID int64) (Status, error) {
	u, err := s.users.GetByTelegramID(ctx, tgID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		TelegramID:  u.TelegramID,
		IsAdmin:     s.IsAdmin(tgID),
		IsPro:       u.IsPro && !u.ProExpired(s.now()),
		ExpiryDate:  u.ExpiryDate,
		FreeUses:    u.FreeUses,
		HasTemplate: u.HasTemplate(),
	}, nil
}
