package repository

import (
	"github.com/docquery/docquery/app/models"
	"gorm.io/gorm"
)

// settingRepository implements the SettingRepository interface
type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new setting repository instance
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) Get(key string) (*models.Setting, error) {
	var setting models.Setting
	err := r.db.Where("setting_key = ?", key).First(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *settingRepository) Set(key, value, settingType string) error {
	var existing models.Setting
	err := r.db.Where("setting_key = ?", key).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return err
		}
		return r.db.Create(&models.Setting{Key: key, Value: value, Type: settingType}).Error
	}
	existing.Value = value
	existing.Type = settingType
	return r.db.Save(&existing).Error
}

func (r *settingRepository) All() ([]models.Setting, error) {
	var settings []models.Setting
	err := r.db.Order("setting_key").Find(&settings).Error
	return settings, err
}
