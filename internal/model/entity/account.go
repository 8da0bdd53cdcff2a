package entity

import "time"

// Account 交易账户及其券商子账户凭证
type Account struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name            string    `gorm:"type:varchar(64)" json:"name"`
	BrokerAccountNo string    `gorm:"type:varchar(32)" json:"broker_account_no"`
	AppKey          string    `gorm:"type:varchar(128)" json:"-"`
	AppSecret       string    `gorm:"type:varchar(256)" json:"-"`
	Simulated       bool      `json:"simulated"`
	InitialCash     float64   `gorm:"type:decimal(20,2)" json:"initial_cash"`
	Active          bool      `gorm:"default:true" json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
