package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"genproxy/internal/models"
	"genproxy/internal/storage"
)

// Factory resolves a proxy account to its capability family and a ready
// Target with the credential opened.
type Factory struct {
	mu       sync.RWMutex
	families map[string]Family
	cipher   *storage.CredentialCipher
}

// NewFactory creates a factory with the built-in families registered.
func NewFactory(cipher *storage.CredentialCipher) *Factory {
	f := &Factory{
		families: make(map[string]Family),
		cipher:   cipher,
	}

	f.Register(NewOpenAIFamily(nil))
	f.Register(NewAnthropicFamily(nil))

	return f
}

// Register adds or replaces the family for its tag.
func (f *Factory) Register(family Family) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.families[family.Tag()] = family
}

// SupportedTags returns the registered provider tags.
func (f *Factory) SupportedTags() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	tags := make([]string, 0, len(f.families))
	for t := range f.families {
		tags = append(tags, t)
	}
	return tags
}

// ProbeAccount resolves the account's family and issues one probe.
// Resolution failures (unknown tag, bad credential) are folded into a
// failed outcome, matching the probe contract.
func (f *Factory) ProbeAccount(ctx context.Context, account *models.ProxyAccount) ProbeOutcome {
	family, target, err := f.ForAccount(account)
	if err != nil {
		return ProbeOutcome{CheckedAt: time.Now(), Error: err.Error()}
	}
	return family.Probe(ctx, target)
}

// ExecuteAccount resolves the account's family and sends one generation
// request.
func (f *Factory) ExecuteAccount(ctx context.Context, account *models.ProxyAccount, model string, payload map[string]any) (*Result, error) {
	family, target, err := f.ForAccount(account)
	if err != nil {
		return nil, err
	}
	return family.Execute(ctx, target, model, payload)
}

// ForAccount resolves the family serving the account's provider tag and
// builds its Target, opening the stored credential.
func (f *Factory) ForAccount(account *models.ProxyAccount) (Family, Target, error) {
	f.mu.RLock()
	family, exists := f.families[account.ProviderTag]
	f.mu.RUnlock()

	if !exists {
		return nil, Target{}, fmt.Errorf("unsupported provider tag: %s", account.ProviderTag)
	}

	credential := ""
	if account.EncryptedCredential != "" {
		opened, err := f.cipher.Open(account.EncryptedCredential)
		if err != nil {
			return nil, Target{}, fmt.Errorf("failed to open credential for account %s: %w", account.Name, err)
		}
		credential = opened
	}

	return family, Target{
		AccountID:  account.ID.String(),
		BaseURL:    account.BaseURL,
		Credential: credential,
		Region:     account.Region,
	}, nil
}
