package user

import (
	"strings"
	"time"
)

// Role 读者角色
type Role string

const (
	RoleMember    Role = "member"    // 普通读者
	RoleLibrarian Role = "librarian" // 馆员,可管理馆藏和全部借阅
)

// User 用户实体
// Email和Bio统一小写保存
type User struct {
	ID        uint
	Email     string
	Password  string // bcrypt哈希值
	Nickname  string
	Bio       string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser 创建用户
func NewUser(email, hashedPassword, nickname, bio string, role Role) *User {
	now := time.Now()
	return &User{
		Email:     NormalizeEmail(email),
		Password:  hashedPassword,
		Nickname:  nickname,
		Bio:       strings.ToLower(strings.TrimSpace(bio)),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsLibrarian 馆员即管理员
func (u *User) IsLibrarian() bool {
	return u.Role == RoleLibrarian
}

// UpdateProfile 修改昵称和简介,空值不修改
func (u *User) UpdateProfile(nickname, bio string) {
	if nickname != "" {
		u.Nickname = nickname
	}
	if bio != "" {
		u.Bio = strings.ToLower(strings.TrimSpace(bio))
	}
	u.UpdatedAt = time.Now()
}

// SetPassword 替换密码哈希
func (u *User) SetPassword(hashedPassword string) {
	u.Password = hashedPassword
	u.UpdatedAt = time.Now()
}

// NormalizeEmail 邮箱去空白并转小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
