package user

import (
	"context"
	"errors"
	"regexp"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/xiebiao/library/pkg/errors"
)

// HashCost bcrypt成本因子
var HashCost = 12

var (
	emailPattern  = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)
	letterPattern = regexp.MustCompile(`[a-zA-Z]`)
	digitPattern  = regexp.MustCompile(`[0-9]`)
)

// Service 用户领域服务
type Service interface {
	// Register 注册;邮箱在馆员名单中的用户角色为librarian
	Register(ctx context.Context, email, password, nickname, bio string) (*User, error)

	Login(ctx context.Context, email, password string) (*User, error)

	ValidatePassword(hashedPassword, plainPassword string) error

	// ChangePassword 校验原密码后设置新密码
	ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error
}

type service struct {
	repo       Repository
	librarians map[string]struct{}
}

// NewService 创建用户领域服务
func NewService(repo Repository, librarianEmails []string) Service {
	librarians := make(map[string]struct{}, len(librarianEmails))
	for _, e := range librarianEmails {
		librarians[NormalizeEmail(e)] = struct{}{}
	}
	return &service{repo: repo, librarians: librarians}
}

func (s *service) Register(ctx context.Context, email, password, nickname, bio string) (*User, error) {
	email = NormalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return nil, apperrors.New(apperrors.ErrCodeInvalidParams, "邮箱格式不正确")
	}

	if err := validatePasswordStrength(password); err != nil {
		return nil, err
	}

	if n := utf8.RuneCountInString(nickname); n < 2 || n > 50 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidParams, "昵称长度应为2-50个字符")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return nil, apperrors.Wrap(err, "密码加密失败")
	}

	role := RoleMember
	if _, ok := s.librarians[email]; ok {
		role = RoleLibrarian
	}

	u := NewUser(email, string(hashed), nickname, bio, role)
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		// 不区分"用户不存在"和"密码错误",避免枚举账号
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidPassword
		}
		return nil, err
	}

	if err := s.ValidatePassword(u.Password, password); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) ValidatePassword(hashedPassword, plainPassword string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return apperrors.ErrInvalidPassword
		}
		return apperrors.Wrap(err, "密码验证失败")
	}
	return nil
}

func (s *service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.ValidatePassword(u.Password, oldPassword); err != nil {
		if errors.Is(err, apperrors.ErrInvalidPassword) {
			return apperrors.ErrOldPasswordWrong
		}
		return err
	}

	if err := validatePasswordStrength(newPassword); err != nil {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), HashCost)
	if err != nil {
		return apperrors.Wrap(err, "密码加密失败")
	}
	u.SetPassword(string(hashed))
	return s.repo.Update(ctx, u)
}

// validatePasswordStrength 8-20位,同时包含字母和数字
func validatePasswordStrength(password string) error {
	if len(password) < 8 || len(password) > 20 {
		return apperrors.ErrWeakPassword
	}
	if !letterPattern.MatchString(password) || !digitPattern.MatchString(password) {
		return apperrors.ErrWeakPassword
	}
	return nil
}
