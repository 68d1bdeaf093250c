package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"rev/internal/agent/ports"
)

// Caps bounds one request. Zero values fall back to defaults.
type Caps struct {
	Tokens    int
	Steps     int
	Wallclock time.Duration
}

const (
	defaultTokenCap = 400_000
	defaultStepCap  = 60
	defaultWallCap  = 30 * time.Minute
)

// Budget tracks resource consumption against Caps. Token counts come from
// provider usage when reported, otherwise from a local tiktoken estimate.
type Budget struct {
	caps Caps

	mu         sync.Mutex
	tokensUsed int
	steps      int
	startedAt  time.Time
}

// NewBudget starts the wallclock and applies defaults for zero caps.
func NewBudget(caps Caps) *Budget {
	if caps.Tokens <= 0 {
		caps.Tokens = defaultTokenCap
	}
	if caps.Steps <= 0 {
		caps.Steps = defaultStepCap
	}
	if caps.Wallclock <= 0 {
		caps.Wallclock = defaultWallCap
	}
	return &Budget{caps: caps, startedAt: time.Now()}
}

// Step increments the iteration counter and returns the new value.
func (b *Budget) Step() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps++
	return b.steps
}

// AddUsage accounts provider-reported token usage.
func (b *Budget) AddUsage(usage ports.TokenUsage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokensUsed += usage.TotalTokens
}

// AddText accounts an estimated token count for text without provider usage.
func (b *Budget) AddText(text string) {
	if text == "" {
		return
	}
	n := countTokens(text)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokensUsed += n
}

// Exceeded reports the first cap that has been passed. All three caps trip
// strictly over the limit: a run configured with cap N gets N.
func (b *Budget) Exceeded() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokensUsed > b.caps.Tokens {
		return fmt.Sprintf("token cap reached: %d/%d", b.tokensUsed, b.caps.Tokens), true
	}
	if b.steps > b.caps.Steps {
		return fmt.Sprintf("step cap reached: %d/%d", b.steps, b.caps.Steps), true
	}
	if elapsed := time.Since(b.startedAt); elapsed > b.caps.Wallclock {
		return fmt.Sprintf("wallclock cap reached: %s/%s", elapsed.Round(time.Second), b.caps.Wallclock), true
	}
	return "", false
}

// TokensUsed returns the tokens consumed so far.
func (b *Budget) TokensUsed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokensUsed
}

// Steps returns the iterations consumed so far.
func (b *Budget) Steps() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.steps
}

// StartedAt returns when the budget clock started.
func (b *Budget) StartedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startedAt
}

// Elapsed returns the wallclock time consumed so far.
func (b *Budget) Elapsed() time.Duration {
	return time.Since(b.StartedAt())
}

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// countTokens estimates tokens with cl100k_base. When the encoding cannot be
// loaded the chars/4 heuristic keeps accounting monotonic.
func countTokens(text string) int {
	encoderOnce.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			encoder = enc
		}
	})
	if encoder == nil {
		return (len(text) + 3) / 4
	}
	return len(encoder.Encode(text, nil, nil))
}
