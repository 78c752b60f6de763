package model

import "time"

// User 表示系统用户。
//
// Password、Avatar 和持有的会话 token 永远不会出现在 JSON 输出里。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`                       // 用户 ID
	Name      string    `gorm:"type:varchar(64);not null" json:"name"`      // 显示名称
	Age       int       `gorm:"not null;default:0" json:"age"`              // 年龄（>= 0）
	Email     string    `gorm:"type:varchar(191);uniqueIndex" json:"email"` // 邮箱（唯一，小写存储）
	Password  string    `gorm:"not null" json:"-"`                          // bcrypt 哈希
	Avatar    []byte    `gorm:"type:mediumblob" json:"-"`                   // 头像 PNG 字节（250x250）
	CreatedAt time.Time `json:"created_at"`                                 // 创建时间
	UpdatedAt time.Time `json:"updated_at"`                                 // 更新时间

	Tokens []SessionToken `gorm:"foreignKey:UserID" json:"-"` // 当前有效的会话 token
	Tasks  []Task         `gorm:"foreignKey:UserID" json:"-"` // 用户拥有的任务
}

// SessionToken 是用户持有的一个有效会话凭证。
//
// 行存在即表示 token 未被吊销；登出删除对应行，登出全部删除该用户所有行。
// token 本身携带签名与过期时间，这里的持久化只为支持吊销。
type SessionToken struct {
	ID        uint      `gorm:"primaryKey"`                             // 记录 ID
	UserID    uint      `gorm:"index;not null"`                         // 所属用户 ID
	Token     string    `gorm:"type:varchar(512);uniqueIndex;not null"` // 签发的原始 JWT 字符串
	CreatedAt time.Time // 签发时间

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // 所属用户
}
