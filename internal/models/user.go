package models

import "time"

// User account owning a primary wallet
type User struct {
	ID                   string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DisplayName          string    `json:"displayName" gorm:"size:128"`
	PrimaryWalletAddress string    `json:"primaryWalletAddress" gorm:"size:66;index"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}
