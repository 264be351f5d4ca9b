package models

import "time"

// User represents application user.
// 余额用分存储，避免浮点误差；所有交易金额隐含使用 Currency 币种。
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Email        string `gorm:"size:128;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Name         string `gorm:"size:64;not null"`
	BalanceCent  int64  `gorm:"not null;default:0"`
	Currency     string `gorm:"size:8;not null;default:USD"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	FailedLoginAttempts int        `gorm:"default:0"` // 连续登录失败次数
	LockedUntil         *time.Time `gorm:"index"`     // 账户锁定到期时间
	LastLoginAt         *time.Time                    // 最近登录时间
	LastLoginIP         string     `gorm:"size:64"`   // 最近登录 IP
}
