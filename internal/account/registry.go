package account

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrDuplicateAccount 表示同名账户已存在。
	ErrDuplicateAccount = errors.New("account: duplicate account")
	// ErrNotFound 表示账户不存在。
	ErrNotFound = errors.New("account: account not found")
)

// Account 是一组交易所凭证。记录只整体替换,从不原地修改。
type Account struct {
	Name      string
	APIKey    string
	APISecret string
	Testnet   bool
}

// storedAccount 是账户在磁盘上的形态,名字充当外层 map 的键。
type storedAccount struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Testnet   bool   `json:"testnet"`
}

// Store 是注册表依赖的保险库能力子集。
type Store interface {
	LoadAccounts(v interface{}) error
	SaveAccounts(v interface{}) error
}

// Registry 持有全部账户凭证,每次变更先落盘再提交内存,
// 保证成功返回后内存与磁盘视图一致。
type Registry struct {
	mu       sync.RWMutex
	store    Store
	accounts map[string]Account
	logger   *zap.Logger
}

// NewRegistry 通过保险库加载注册表。
func NewRegistry(store Store, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	stored := make(map[string]storedAccount)
	if err := store.LoadAccounts(&stored); err != nil {
		return nil, fmt.Errorf("account: 加载账户失败: %w", err)
	}

	accounts := make(map[string]Account, len(stored))
	for name, rec := range stored {
		accounts[name] = Account{
			Name:      name,
			APIKey:    rec.APIKey,
			APISecret: rec.APISecret,
			Testnet:   rec.Testnet,
		}
	}

	logger.Info("账户注册表已加载", zap.Int("count", len(accounts)))

	return &Registry{
		store:    store,
		accounts: accounts,
		logger:   logger,
	}, nil
}

// Add 注册新账户,名字重复时拒绝。
func (r *Registry) Add(name, apiKey, apiSecret string, testnet bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAccount, name)
	}

	next := r.copyAccounts()
	next[name] = Account{Name: name, APIKey: apiKey, APISecret: apiSecret, Testnet: testnet}

	if err := r.persist(next); err != nil {
		return err
	}

	r.accounts = next
	r.logger.Info("账户已添加", zap.String("name", name), zap.Bool("testnet", testnet))
	return nil
}

// Remove 删除账户,不存在时报错。
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	next := r.copyAccounts()
	delete(next, name)

	if err := r.persist(next); err != nil {
		return err
	}

	r.accounts = next
	r.logger.Info("账户已删除", zap.String("name", name))
	return nil
}

// Get 按名字取账户。
func (r *Registry) Get(name string) (Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[name]
	return acct, ok
}

// List 返回按名字排序的账户快照。
func (r *Registry) List() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Account, 0, len(r.accounts))
	for _, acct := range r.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve 把一组名字解析为账户,任何一个缺失都报错。
func (r *Registry) Resolve(names []string) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Account, 0, len(names))
	for _, name := range names {
		acct, ok := r.accounts[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		out = append(out, acct)
	}
	return out, nil
}

func (r *Registry) copyAccounts() map[string]Account {
	next := make(map[string]Account, len(r.accounts)+1)
	for name, acct := range r.accounts {
		next[name] = acct
	}
	return next
}

func (r *Registry) persist(accounts map[string]Account) error {
	stored := make(map[string]storedAccount, len(accounts))
	for name, acct := range accounts {
		stored[name] = storedAccount{
			APIKey:    acct.APIKey,
			APISecret: acct.APISecret,
			Testnet:   acct.Testnet,
		}
	}
	if err := r.store.SaveAccounts(stored); err != nil {
		return fmt.Errorf("account: 保存账户失败: %w", err)
	}
	return nil
}
