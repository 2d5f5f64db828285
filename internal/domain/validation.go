package domain

import "strings"

// ValidateChatRequest rejects malformed requests before any upstream contact.
func ValidateChatRequest(req *ChatRequest) error {
	if req == nil {
		return &ValidationError{Field: "request", Reason: "cannot be nil"}
	}

	if req.Query == nil && req.Turns == nil {
		return &ValidationError{Field: "query", Reason: "either query or turns is required"}
	}

	if req.Query != nil && strings.TrimSpace(*req.Query) == "" {
		return &ValidationError{Field: "query", Reason: "cannot be blank"}
	}

	if req.Turns != nil && len(req.Turns) == 0 {
		return &ValidationError{Field: "turns", Reason: "cannot be empty"}
	}

	if strings.TrimSpace(req.EffectiveQuery()) == "" {
		return &ValidationError{Field: "turns", Reason: "no non-blank turn content"}
	}

	if req.UserID <= 0 {
		return &ValidationError{Field: "user_id", Reason: "is required"}
	}

	if req.MerchantID <= 0 {
		return &ValidationError{Field: "merchant_id", Reason: "is required"}
	}

	if req.AgentID <= 0 {
		return &ValidationError{Field: "agent_id", Reason: "is required"}
	}

	return nil
}
