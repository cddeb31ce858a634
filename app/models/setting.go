package models

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer, float
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssistantConfig is the admin-managed configuration for the LLM assistant.
type AssistantConfig struct {
	Model        string  `json:"model" validate:"required,min=1,max=100"`
	SystemPrompt string  `json:"system_prompt" validate:"max=4000"`
	Temperature  float64 `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int     `json:"max_tokens" validate:"gte=0,lte=32768"`
	Enabled      bool    `json:"enabled"`
}

// Setting keys for the assistant configuration.
const (
	SettingAssistantModel        = "assistant_model"
	SettingAssistantSystemPrompt = "assistant_system_prompt"
	SettingAssistantTemperature  = "assistant_temperature"
	SettingAssistantMaxTokens    = "assistant_max_tokens"
	SettingAssistantEnabled      = "assistant_enabled"
)

var (
	assistantConfig   *AssistantConfig
	assistantConfigMu sync.RWMutex
)

// DefaultAssistantConfig returns the built-in assistant defaults.
func DefaultAssistantConfig() *AssistantConfig {
	return &AssistantConfig{
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are a document analysis assistant. Answer strictly from the provided document.",
		Temperature:  0.2,
		MaxTokens:    1024,
		Enabled:      true,
	}
}

// GetAssistantConfig returns the in-memory assistant configuration.
func GetAssistantConfig() *AssistantConfig {
	assistantConfigMu.RLock()
	defer assistantConfigMu.RUnlock()
	if assistantConfig == nil {
		return DefaultAssistantConfig()
	}
	cfg := *assistantConfig
	return &cfg
}

// LoadAssistantConfig loads the assistant configuration from the settings
// table into memory, falling back to defaults for missing keys.
func LoadAssistantConfig(db *gorm.DB) error {
	assistantConfigMu.Lock()
	defer assistantConfigMu.Unlock()

	cfg := DefaultAssistantConfig()

	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	for _, s := range settings {
		switch s.Key {
		case SettingAssistantModel:
			if s.Value != "" {
				cfg.Model = s.Value
			}
		case SettingAssistantSystemPrompt:
			cfg.SystemPrompt = s.Value
		case SettingAssistantTemperature:
			if v, err := strconv.ParseFloat(s.Value, 64); err == nil {
				cfg.Temperature = v
			}
		case SettingAssistantMaxTokens:
			if v, err := strconv.Atoi(s.Value); err == nil {
				cfg.MaxTokens = v
			}
		case SettingAssistantEnabled:
			if v, err := strconv.ParseBool(s.Value); err == nil {
				cfg.Enabled = v
			}
		}
	}

	assistantConfig = cfg
	return nil
}

// SaveAssistantConfig validates and persists the configuration, then swaps
// the in-memory copy.
func SaveAssistantConfig(db *gorm.DB, cfg *AssistantConfig) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}

	pairs := map[string]Setting{
		SettingAssistantModel:        {Key: SettingAssistantModel, Value: cfg.Model, Type: "string"},
		SettingAssistantSystemPrompt: {Key: SettingAssistantSystemPrompt, Value: cfg.SystemPrompt, Type: "string"},
		SettingAssistantTemperature:  {Key: SettingAssistantTemperature, Value: strconv.FormatFloat(cfg.Temperature, 'f', -1, 64), Type: "float"},
		SettingAssistantMaxTokens:    {Key: SettingAssistantMaxTokens, Value: strconv.Itoa(cfg.MaxTokens), Type: "integer"},
		SettingAssistantEnabled:      {Key: SettingAssistantEnabled, Value: strconv.FormatBool(cfg.Enabled), Type: "boolean"},
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for key, s := range pairs {
			var existing Setting
			if err := tx.Where("setting_key = ?", key).First(&existing).Error; err != nil {
				if err != gorm.ErrRecordNotFound {
					return err
				}
				if err := tx.Create(&s).Error; err != nil {
					return err
				}
				continue
			}
			existing.Value = s.Value
			existing.Type = s.Type
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	assistantConfigMu.Lock()
	c := *cfg
	assistantConfig = &c
	assistantConfigMu.Unlock()
	return nil
}
