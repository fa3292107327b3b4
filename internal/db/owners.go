package db

import (
	"context"
	"time"

	"gorm.io/gorm/clause"
)

// Owner is an account whose items are isolated from every other account.
// Its Telegram credentials are the transport credentials of its uploads.
type Owner struct {
	ID                string `gorm:"primaryKey;size:191"`
	TelegramBotToken  string `gorm:"size:255"`
	TelegramChannelID string `gorm:"size:255"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type OwnerClient ORMClient[Owner]

func (client *Client) Owner(ctx context.Context) *OwnerClient {
	return &OwnerClient{
		connection: client.session(ctx),
	}
}

func (client *OwnerClient) FindByID(id string) (Owner, error) {
	var owner Owner
	err := client.connection.Where("id = ?", id).Take(&owner).Error
	return owner, err
}

// Save inserts the owner or overwrites its credentials.
func (client *OwnerClient) Save(owner Owner) error {
	return client.connection.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"telegram_bot_token", "telegram_channel_id", "updated_at"}),
	}).Create(&owner).Error
}

// Ensure creates an owner without credentials unless it exists already.
func (client *OwnerClient) Ensure(id string) error {
	return client.connection.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&Owner{ID: id}).Error
}
