// Package registry holds the process-global records for trading accounts,
// agents, and paired devices. Each registry is single-writer, disk-backed
// (atomic rename on every mutation), and rebuilds identical in-memory
// state from its file on restart.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// CredentialSealer encrypts connector credentials before they reach disk.
type CredentialSealer interface {
	Seal(plaintext string) (string, error)
	Open(blob string) (string, error)
}

// Account is one connected trading account.
type Account struct {
	AccountID         string   `json:"accountId"`
	ConnectorID       string   `json:"connectorId"`
	ProviderAccountID string   `json:"providerAccountId"`
	Mode              string   `json:"mode"`
	Label             string   `json:"label"`
	AllowedSymbols    []string `json:"allowedSymbols"`
	Status            string   `json:"status"`
	ConnectedAt       *string  `json:"connectedAt"`
	DisconnectedAt    *string  `json:"disconnectedAt"`
	// SealedCredentials is the encrypted connector credential blob. It is
	// persisted but never included in public payloads.
	SealedCredentials string `json:"sealedCredentials,omitempty"`
}

// ConnectInput carries the fields for an account upsert.
type ConnectInput struct {
	AccountID         string
	ConnectorID       string
	ProviderAccountID string
	Mode              string
	Label             string
	AllowedSymbols    []string
	// Credentials, when non-empty, is sealed before persisting. Requires a
	// sealer on the registry.
	Credentials string
}

// AccountRegistry maps account ids to records.
type AccountRegistry struct {
	mu        sync.Mutex
	accounts  map[string]*Account
	statePath string
	sealer    CredentialSealer
	logger    *slog.Logger
	now       func() time.Time
}

type accountFile struct {
	Version  int       `json:"version"`
	Accounts []Account `json:"accounts"`
}

// NewAccountRegistry loads existing state from statePath. An empty
// statePath keeps the registry memory-only. sealer may be nil when no
// account carries credentials.
func NewAccountRegistry(statePath string, sealer CredentialSealer, logger *slog.Logger) (*AccountRegistry, error) {
	r := &AccountRegistry{
		accounts:  make(map[string]*Account),
		statePath: statePath,
		sealer:    sealer,
		logger:    logger.With(slog.String("component", "account_registry")),
		now:       time.Now,
	}
	if statePath != "" {
		if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
			return nil, fmt.Errorf("registry: create state dir: %w", err)
		}
		r.load()
	}
	return r, nil
}

// Connect upserts an account and marks it connected. Existing records are
// refreshed in place; connectedAt is stamped and disconnectedAt cleared.
func (r *AccountRegistry) Connect(input ConnectInput) (Account, error) {
	sealed := ""
	if input.Credentials != "" {
		if r.sealer == nil {
			return Account{}, fmt.Errorf("registry: credentials supplied but no sealer configured")
		}
		var err error
		sealed, err = r.sealer.Seal(input.Credentials)
		if err != nil {
			return Account{}, fmt.Errorf("registry: seal credentials: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC().Format(time.RFC3339Nano)
	account, ok := r.accounts[input.AccountID]
	if !ok {
		account = &Account{AccountID: input.AccountID}
		r.accounts[input.AccountID] = account
	}
	account.ConnectorID = input.ConnectorID
	account.ProviderAccountID = input.ProviderAccountID
	account.Mode = input.Mode
	account.Label = input.Label
	account.AllowedSymbols = append([]string(nil), input.AllowedSymbols...)
	account.Status = "connected"
	account.ConnectedAt = &now
	account.DisconnectedAt = nil
	if sealed != "" {
		account.SealedCredentials = sealed
	}

	r.saveLocked()
	return *account, nil
}

// Disconnect marks the account disconnected. Returns false when unknown.
func (r *AccountRegistry) Disconnect(accountID string) (Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return Account{}, false
	}
	now := r.now().UTC().Format(time.RFC3339Nano)
	account.Status = "disconnected"
	account.DisconnectedAt = &now
	r.saveLocked()
	return *account, true
}

// Get returns the account record for the given id.
func (r *AccountRegistry) Get(accountID string) (Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return Account{}, false
	}
	return *account, true
}

// List returns all accounts.
func (r *AccountRegistry) List() []Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		out = append(out, *account)
	}
	return out
}

// Credentials unseals and returns the connector credentials for an
// account, or empty when none are stored.
func (r *AccountRegistry) Credentials(accountID string) (string, error) {
	r.mu.Lock()
	account, ok := r.accounts[accountID]
	var sealed string
	if ok {
		sealed = account.SealedCredentials
	}
	r.mu.Unlock()

	if !ok || sealed == "" {
		return "", nil
	}
	if r.sealer == nil {
		return "", fmt.Errorf("registry: sealed credentials present but no sealer configured")
	}
	plaintext, err := r.sealer.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("registry: unseal credentials: %w", err)
	}
	return plaintext, nil
}

// PublicPayload is the wire shape of an account; credentials never appear.
func (a Account) PublicPayload() map[string]any {
	allowed := a.AllowedSymbols
	if allowed == nil {
		allowed = []string{}
	}
	return map[string]any{
		"accountId":         a.AccountID,
		"connectorId":       a.ConnectorID,
		"providerAccountId": a.ProviderAccountID,
		"mode":              a.Mode,
		"label":             a.Label,
		"allowedSymbols":    allowed,
		"status":            a.Status,
		"connectedAt":       a.ConnectedAt,
		"disconnectedAt":    a.DisconnectedAt,
	}
}

func (r *AccountRegistry) load() {
	data, err := os.ReadFile(r.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("registry: read accounts file failed", slog.String("error", err.Error()))
		}
		return
	}

	var file accountFile
	if err := json.Unmarshal(data, &file); err != nil {
		r.logger.Warn("registry: accounts file is not valid JSON", slog.String("error", err.Error()))
		return
	}
	for i := range file.Accounts {
		account := file.Accounts[i]
		if account.AccountID == "" {
			r.logger.Warn("registry: skipping account row without accountId")
			continue
		}
		r.accounts[account.AccountID] = &account
	}
}

func (r *AccountRegistry) saveLocked() {
	if r.statePath == "" {
		return
	}

	file := accountFile{Version: 1, Accounts: make([]Account, 0, len(r.accounts))}
	for _, account := range r.accounts {
		file.Accounts = append(file.Accounts, *account)
	}
	sort.Slice(file.Accounts, func(i, j int) bool {
		return file.Accounts[i].AccountID < file.Accounts[j].AccountID
	})

	payload, err := json.Marshal(file)
	if err != nil {
		r.logger.Error("registry: marshal accounts failed", slog.String("error", err.Error()))
		return
	}
	if err := writeAtomic(r.statePath, payload); err != nil {
		r.logger.Error("registry: write accounts failed", slog.String("error", err.Error()))
	}
}
