package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
)

func TestValidateChatRequest(t *testing.T) {
	tests := []struct {
		name  string
		req   *domain.ChatRequest
		field string
	}{
		{
			name:  "nil request",
			req:   nil,
			field: "request",
		},
		{
			name:  "query and turns absent",
			req:   &domain.ChatRequest{UserID: 1, MerchantID: 1, AgentID: 1},
			field: "query",
		},
		{
			name:  "blank query",
			req:   &domain.ChatRequest{Query: query(" \n"), UserID: 1, MerchantID: 1, AgentID: 1},
			field: "query",
		},
		{
			name:  "empty turns",
			req:   &domain.ChatRequest{Turns: []domain.Turn{}, UserID: 1, MerchantID: 1, AgentID: 1},
			field: "turns",
		},
		{
			name:  "turns without content",
			req:   &domain.ChatRequest{Turns: []domain.Turn{{Role: domain.RoleUser, Content: " "}}, UserID: 1, MerchantID: 1, AgentID: 1},
			field: "turns",
		},
		{
			name:  "missing user",
			req:   &domain.ChatRequest{Query: query("hi"), MerchantID: 1, AgentID: 1},
			field: "user_id",
		},
		{
			name:  "missing merchant",
			req:   &domain.ChatRequest{Query: query("hi"), UserID: 1, AgentID: 1},
			field: "merchant_id",
		},
		{
			name:  "missing agent",
			req:   &domain.ChatRequest{Query: query("hi"), UserID: 1, MerchantID: 1},
			field: "agent_id",
		},
	}

	for _, tt := range tests {
		t.Run("should reject "+tt.name, func(t *testing.T) {
			err := domain.ValidateChatRequest(tt.req)

			var validationErr *domain.ValidationError
			require.ErrorAs(t, err, &validationErr)
			require.Equal(t, tt.field, validationErr.Field)
		})
	}

	t.Run("should accept a well-formed request", func(t *testing.T) {
		require.NoError(t, domain.ValidateChatRequest(validRequest()))
	})
}

func TestChatRequest_EffectiveQuery(t *testing.T) {
	t.Run("should return the query exactly when set", func(t *testing.T) {
		req := &domain.ChatRequest{
			Query: query("  exact query "),
			Turns: []domain.Turn{{Role: domain.RoleUser, Content: "ignored"}},
		}

		require.Equal(t, "  exact query ", req.EffectiveQuery())
	})

	t.Run("should return the last user turn", func(t *testing.T) {
		req := &domain.ChatRequest{Turns: []domain.Turn{
			{Role: domain.RoleUser, Content: "one"},
			{Role: domain.RoleUser, Content: "two"},
			{Role: domain.RoleAgent, Content: "three"},
		}}

		require.Equal(t, "two", req.EffectiveQuery())
	})

	t.Run("should return the last turn without user turns", func(t *testing.T) {
		req := &domain.ChatRequest{Turns: []domain.Turn{
			{Role: "system", Content: "one"},
			{Role: domain.RoleAgent, Content: "two"},
		}}

		require.Equal(t, "two", req.EffectiveQuery())
	})
}

func TestChatRequest_WantsStream(t *testing.T) {
	streaming := true
	blocking := false

	require.True(t, (&domain.ChatRequest{}).WantsStream(true))
	require.False(t, (&domain.ChatRequest{}).WantsStream(false))
	require.True(t, (&domain.ChatRequest{Stream: &streaming}).WantsStream(false))
	require.False(t, (&domain.ChatRequest{Stream: &blocking}).WantsStream(true))
}
