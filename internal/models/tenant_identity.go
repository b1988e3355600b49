package models

import "time"

const DefaultIdentityGroup = "deployment-users"

// TenantIdentity 구조체는 GitHub 사용자 한 명에게 발급된 AWS 자격 증명입니다.
// 한 번 발급되면 변경하지 않습니다. (rotation 미지원)
type TenantIdentity struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	OwnerID         string    `gorm:"column:owner_id;uniqueIndex;not null" json:"owner_id"` // GitHub 사용자 ID
	CloudAccessKey  string    `gorm:"column:cloud_access_key;not null" json:"cloud_access_key"`
	CloudSecretKey  string    `gorm:"-" json:"-"`                                // 평문은 저장하지 않음
	SealedSecretKey []byte    `gorm:"column:sealed_secret_key;not null" json:"-"` // secretbox(nonce||box)
	CloudAccountID  string    `gorm:"column:cloud_account_id;not null" json:"cloud_account_id"`
	RoleARN         string    `gorm:"column:role_arn;not null" json:"role_arn"`
	Group           string    `gorm:"column:group_name;not null" json:"group"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
}

func (TenantIdentity) TableName() string { return "tenant_identities" }
