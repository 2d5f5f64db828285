// Package gormstore persists consolidated turns through GORM.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/davidbz/hearth/internal/domain"
)

// Store implements domain.TurnStore.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema when enabled.
func Open(cfg *Config) (*Store, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	store := NewStore(db)
	if cfg.AutoMigrate {
		if migrateErr := store.AutoMigrate(); migrateErr != nil {
			_ = sqlDB.Close()
			return nil, migrateErr
		}
	}

	return store, nil
}

// NewStore wraps an existing connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate runs database migrations.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Commit creates or reuses the conversation and inserts the user and agent
// turns in one transaction. A turn already stored for the same conversation
// and request yields domain.ErrDuplicateCommit.
func (s *Store) Commit(ctx context.Context, user *domain.UserTurn, agent *domain.AgentTurn) error {
	if user == nil || agent == nil {
		return errors.New("user and agent turns are required")
	}

	if user.ConversationID == "" || user.ConversationID != agent.ConversationID {
		return errors.New("turns must share a conversation id")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Message
		err := tx.Where("conversation_id = ? AND request_id = ? AND role = ?",
			user.ConversationID, user.RequestID, domain.RoleUser).
			Limit(1).
			Find(&existing).Error
		if err != nil {
			return fmt.Errorf("failed to check for duplicate turn: %w", err)
		}

		if existing.ID != 0 {
			if existing.Content == user.Content {
				return domain.ErrDuplicateCommit
			}
			return fmt.Errorf("request %s already committed with different content", user.RequestID)
		}

		if err := s.upsertConversation(tx, user); err != nil {
			return err
		}

		if err := tx.Create(userMessage(user)).Error; err != nil {
			return fmt.Errorf("failed to insert user turn: %w", err)
		}

		if err := tx.Create(agentMessage(user, agent)).Error; err != nil {
			return fmt.Errorf("failed to insert agent turn: %w", err)
		}

		return nil
	})
}

func (s *Store) upsertConversation(tx *gorm.DB, user *domain.UserTurn) error {
	var conversation Conversation
	err := tx.Where("id = ?", user.ConversationID).Limit(1).Find(&conversation).Error
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	if conversation.ID != "" {
		err = tx.Model(&conversation).Update("updated_at", time.Now()).Error
		if err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		return nil
	}

	conversation = Conversation{
		ID:         user.ConversationID,
		MerchantID: user.MerchantID,
		UserID:     user.UserID,
		AgentID:    user.AgentID,
		Title:      domain.ConversationTitle(user.Content),
		Status:     ConversationStatusActive,
	}
	if err := tx.Create(&conversation).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	return nil
}

// Conversation loads a conversation with its turns in insertion order.
func (s *Store) Conversation(ctx context.Context, id string) (*Conversation, error) {
	var conversation Conversation
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).
		First(&conversation).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}

	return &conversation, nil
}
