package repository

import (
	"fmt"
	"time"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/internal/pkg/plans"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// CreateWithSubscription creates the user and their FREE subscription in one
// transaction. Registration must guarantee the exactly-one-subscription
// invariant; a user row without a subscription row is a data-integrity error
// everywhere else.
func (r *userRepository) CreateWithSubscription(user *models.User, sub *models.Subscription) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		if sub == nil {
			entry, err := plans.Lookup(models.PlanFree)
			if err != nil {
				return err
			}
			sub = &models.Subscription{
				Plan:           models.PlanFree,
				Status:         models.SubscriptionStatusActive,
				DocumentsLimit: entry.DocumentsLimit,
				QuestionsLimit: entry.QuestionsLimit,
				ValidUntil:     time.Now().Add(models.BillingPeriod),
			}
		}
		sub.UserID = user.ID
		return tx.Create(sub).Error
	})
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByActivationToken retrieves a user by their activation token
func (r *userRepository) GetByActivationToken(token string) (*models.User, error) {
	var user models.User
	err := r.db.Where("activation_token = ?", token).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update saves changes to an existing user
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// Delete soft-deletes a user by ID
func (r *userRepository) Delete(id uint) error {
	return r.db.Delete(&models.User{}, id).Error
}

// List returns users with pagination
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Offset(offset).Limit(limit).Order("created_at DESC").Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

// Search finds users matching the query in name or email
func (r *userRepository) Search(query string) ([]models.User, error) {
	var users []models.User
	pattern := "%" + query + "%"
	err := r.db.Where("name LIKE ? OR email LIKE ?", pattern, pattern).
		Order("created_at DESC").Find(&users).Error
	return users, err
}

// GetWithSubscriptions returns users joined with their subscription records
// for the admin user list.
func (r *userRepository) GetWithSubscriptions(offset, limit int) ([]UserWithSubscription, error) {
	var users []models.User
	if err := r.db.Offset(offset).Limit(limit).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if len(users) == 0 {
		return []UserWithSubscription{}, nil
	}

	ids := make([]uint, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}

	var subs []models.Subscription
	if err := r.db.Where("user_id IN ?", ids).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	byUser := make(map[uint]*models.Subscription, len(subs))
	for i := range subs {
		byUser[subs[i].UserID] = &subs[i]
	}

	result := make([]UserWithSubscription, len(users))
	for i, u := range users {
		result[i] = UserWithSubscription{User: u, Subscription: byUser[u.ID]}
	}
	return result, nil
}
