package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

// accountRepository implements AccountRepository.
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetAccount(ctx context.Context, id uint) (*entities.Account, error) {
	var account entities.Account
	err := r.db.WithContext(ctx).Preload("Subscriptions").First(&account, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) ListDigestSubscribers(ctx context.Context) ([]entities.Account, error) {
	var accounts []entities.Account
	subscribed := r.db.Model(&entities.CategorySubscription{}).
		Select("1").
		Where("category_subscriptions.account_id = accounts.id")

	err := r.db.WithContext(ctx).
		Preload("Subscriptions").
		Where("active = ? AND digest_opt_in = ?", true, true).
		Where("EXISTS (?)", subscribed).
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}
