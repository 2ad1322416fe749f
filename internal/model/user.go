package model

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	LastLogin            *time.Time `json:"last_login"`
	Username             string     `gorm:"uniqueIndex;not null" json:"username"`
	Password             string     `gorm:"not null" json:"-"`
	TokenVersion         int64      `gorm:"default:1" json:"-"`
	Role                 Role       `gorm:"type:varchar(32);not null" json:"role"`
	IsActive             bool       `gorm:"not null" json:"is_active"`
	TermsAccepted        bool       `gorm:"not null" json:"terms_accepted"`
	TermsAcceptedAt      *time.Time `json:"terms_accepted_at"`
	ForumRulesAccepted   bool       `gorm:"not null" json:"forum_rules_accepted"`
	ForumRulesAcceptedAt *time.Time `json:"forum_rules_accepted_at"`

	Characters []Character `gorm:"foreignKey:UserID" json:"-"`
}

// AcceptedAllRules reports whether both the CGU and the forum rules were accepted.
func (u *User) AcceptedAllRules() bool {
	return u.TermsAccepted && u.ForumRulesAccepted
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.Password != "" {
		u.Password, err = HashPassword(u.Password)
	}
	return
}
