package domain

const (
	tokensPerMillion     = 1_000_000.0
	defaultCharsPerToken = 4
)

// UsageInput is everything the estimator needs from a finished stream.
type UsageInput struct {
	QueryChars     int
	ResponseChars  int
	LifecycleChars int
	// Declared is the last provider-declared usage, nil when the provider sent none.
	Declared *Usage
}

// UsageEstimator computes token totals and cost for a finished stream.
type UsageEstimator struct {
	ratePerMillion   float64
	charsPerToken    int
	includeLifecycle bool
}

// EstimatorOption customizes a UsageEstimator.
type EstimatorOption func(*UsageEstimator)

// WithCharsPerToken overrides the characters-per-token divisor.
func WithCharsPerToken(chars int) EstimatorOption {
	return func(e *UsageEstimator) {
		if chars > 0 {
			e.charsPerToken = chars
		}
	}
}

// WithLifecycleFolding adds lifecycle payload size to the completion estimate.
func WithLifecycleFolding(enabled bool) EstimatorOption {
	return func(e *UsageEstimator) {
		e.includeLifecycle = enabled
	}
}

// NewUsageEstimator creates an estimator billing ratePerMillion per million tokens.
func NewUsageEstimator(ratePerMillion float64, opts ...EstimatorOption) *UsageEstimator {
	e := &UsageEstimator{
		ratePerMillion: ratePerMillion,
		charsPerToken:  defaultCharsPerToken,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Estimate returns the usage of a stream. A provider-declared total is
// authoritative; otherwise query and response are estimated independently
// from their character counts and summed.
func (e *UsageEstimator) Estimate(in UsageInput) Usage {
	var usage Usage

	if in.Declared.Declared() {
		usage = e.fromDeclared(in)
	} else {
		usage = Usage{
			PromptTokens:     e.tokens(in.QueryChars),
			CompletionTokens: e.tokens(in.ResponseChars),
			Estimated:        true,
		}
		if e.includeLifecycle {
			usage.CompletionTokens += in.LifecycleChars / e.charsPerToken
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	usage.Cost = e.Cost(usage.TotalTokens)
	return usage
}

// Cost converts a token total into cost at the configured rate.
func (e *UsageEstimator) Cost(tokens int) float64 {
	return float64(tokens) / tokensPerMillion * e.ratePerMillion
}

func (e *UsageEstimator) fromDeclared(in UsageInput) Usage {
	declared := in.Declared
	usage := Usage{
		PromptTokens:     max(0, declared.PromptTokens),
		CompletionTokens: max(0, declared.CompletionTokens),
		TotalTokens:      max(0, declared.TotalTokens),
	}
	usage.ProviderTokens = usage.TotalTokens

	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		usage.ProviderTokens = usage.TotalTokens
	}

	// Providers that only report a total still get an input/output split.
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		usage.PromptTokens = min(e.tokens(in.QueryChars), usage.TotalTokens)
		usage.CompletionTokens = usage.TotalTokens - usage.PromptTokens
	}

	return usage
}

func (e *UsageEstimator) tokens(chars int) int {
	return max(1, chars/e.charsPerToken)
}
