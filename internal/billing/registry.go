package billing

import (
	"context"
	"fmt"
	"sync"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
)

// Factory builds the provider for one account from its stored credentials.
type Factory func(account *domain.Account) (Provider, error)

// Registry maps an account's billing preference to a provider. Providers are
// built once per account and rebuilt when the account's provider settings
// change.
type Registry struct {
	factories map[domain.BillingProvider]Factory

	mu        sync.Mutex
	providers map[int64]cachedProvider
}

// settings is what a factory reads from the account; any change to it
// invalidates the cached provider.
type settings struct {
	kind      domain.BillingProvider
	name      string
	apiKey    string
	apiSecret string
	companyID string
}

type cachedProvider struct {
	settings settings
	provider Provider
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[domain.BillingProvider]Factory),
		providers: make(map[int64]cachedProvider),
	}
}

func (r *Registry) Register(kind domain.BillingProvider, f Factory) {
	r.factories[kind] = f
}

// ForAccount returns the account's provider, building it on first use and
// whenever the stored credentials differ from the ones it was built with.
func (r *Registry) ForAccount(ctx context.Context, account *domain.Account) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := account.BillingProvider
	if kind == "" {
		kind = domain.BillingProviderSelf
	}
	current := settings{
		kind:      kind,
		name:      account.Name,
		apiKey:    account.ProviderAPIKey,
		apiSecret: account.ProviderAPISecret,
		companyID: account.ProviderCompanyID,
	}
	if c, ok := r.providers[account.ID]; ok && c.settings == current {
		return c.provider, nil
	}

	f, ok := r.factories[kind]
	if !ok {
		return nil, &domain.ProviderError{Provider: string(kind), Op: "select", Err: fmt.Errorf("no provider registered")}
	}
	p, err := f(account)
	if err != nil {
		delete(r.providers, account.ID)
		return nil, &domain.ProviderError{Provider: string(kind), Op: "configure", Err: err}
	}
	logger.DebugContext(ctx, "Receipt provider selected", "accountID", account.ID, "provider", kind)
	r.providers[account.ID] = cachedProvider{settings: current, provider: p}
	return p, nil
}
