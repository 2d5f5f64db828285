package gormstore

import (
	"time"

	"github.com/davidbz/hearth/internal/domain"
)

// ConversationStatusActive is the status of every conversation the relay creates.
const ConversationStatusActive = "active"

// Conversation represents the GORM model for conversations.
type Conversation struct {
	ID         string    `gorm:"primaryKey;type:text"`
	MerchantID int64     `gorm:"not null;index"`
	UserID     int64     `gorm:"not null;index"`
	AgentID    int64     `gorm:"not null;index"`
	Title      string    `gorm:"type:varchar(200);not null"`
	Status     string    `gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// Message represents the GORM model for one persisted turn.
type Message struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ConversationID string `gorm:"type:text;not null;uniqueIndex:idx_messages_turn"`
	RequestID      string `gorm:"type:text;not null;uniqueIndex:idx_messages_turn"`
	Role           string `gorm:"type:varchar(20);not null;uniqueIndex:idx_messages_turn"`
	MerchantID     int64  `gorm:"not null"`
	UserID         int64  `gorm:"not null"`
	AgentID        int64  `gorm:"not null"`
	Content        string `gorm:"type:text;not null"`

	Provider               string                  `gorm:"type:text"`
	UpstreamConversationID string                  `gorm:"type:text"`
	UpstreamMessageID      string                  `gorm:"type:text"`
	LifecycleEvents        []map[string]any        `gorm:"type:text;serializer:json"`
	ReasoningEvents        []domain.ReasoningEntry `gorm:"type:text;serializer:json"`
	OtherEvents            []map[string]any        `gorm:"type:text;serializer:json"`

	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ProviderTokens   int
	Estimated        bool
	Cost             float64
	Outcome          string `gorm:"type:varchar(20)"`
	Error            string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for Message.
func (Message) TableName() string {
	return "messages"
}

func userMessage(turn *domain.UserTurn) *Message {
	return &Message{
		ConversationID: turn.ConversationID,
		RequestID:      turn.RequestID,
		Role:           domain.RoleUser,
		MerchantID:     turn.MerchantID,
		UserID:         turn.UserID,
		AgentID:        turn.AgentID,
		Content:        turn.Content,
		CreatedAt:      turn.CreatedAt,
	}
}

func agentMessage(user *domain.UserTurn, turn *domain.AgentTurn) *Message {
	return &Message{
		ConversationID:         turn.ConversationID,
		RequestID:              user.RequestID,
		Role:                   domain.RoleAgent,
		MerchantID:             user.MerchantID,
		UserID:                 user.UserID,
		AgentID:                user.AgentID,
		Content:                turn.Content,
		Provider:               turn.Provider,
		UpstreamConversationID: turn.UpstreamConversationID,
		UpstreamMessageID:      turn.UpstreamMessageID,
		LifecycleEvents:        turn.LifecycleEvents,
		ReasoningEvents:        turn.ReasoningEvents,
		OtherEvents:            turn.OtherEvents,
		PromptTokens:           turn.Usage.PromptTokens,
		CompletionTokens:       turn.Usage.CompletionTokens,
		TotalTokens:            turn.Usage.TotalTokens,
		ProviderTokens:         turn.Usage.ProviderTokens,
		Estimated:              turn.Usage.Estimated,
		Cost:                   turn.Usage.Cost,
		Outcome:                turn.Outcome,
		Error:                  turn.Error,
		CreatedAt:              turn.CreatedAt,
	}
}
