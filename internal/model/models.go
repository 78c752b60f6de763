package model

import "time"

// Task 表示用户的一条待办任务。
//
// 每条任务由且仅由一个用户拥有；owner 在创建时绑定，之后不可变更。
// 其余用户的任务对当前用户完全不可见（查询一律带 owner 条件）。
type Task struct {
	ID        uint      `gorm:"primaryKey" json:"id"` // 任务唯一标识
	CreatedAt time.Time `json:"created_at"`           // 创建时间
	UpdatedAt time.Time `json:"updated_at"`           // 更新时间

	UserID uint `gorm:"index;not null" json:"owner"` // 所属用户 ID
	User   User `gorm:"foreignKey:UserID" json:"-"`  // 所属用户

	Text        string `gorm:"not null" json:"text"`            // 任务内容（小写存储）
	Description string `json:"description"`                     // 补充描述（可选）
	Completed   bool   `gorm:"default:false" json:"completed"` // 是否已完成
}
