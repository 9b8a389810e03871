package entities

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/remote"
)

// CredentialClearer drops the bearer token after the API rejects it.
type CredentialClearer interface {
	Clear()
}

// Identity is the signed-in account of a terminal.
type Identity struct {
	session *remote.Session
	creds   CredentialClearer
	logger  *zap.Logger

	mu      sync.RWMutex
	account *domain.Account
	err     error

	inflight atomic.Int32
}

func NewIdentity(d Deps, creds CredentialClearer) *Identity {
	d = d.withDefaults()
	return &Identity{session: d.Session, creds: creds, logger: d.Logger}
}

// Me loads the signed-in account. An expired or rejected token clears the
// credentials and returns ErrAuthenticationExpired.
func (i *Identity) Me(ctx context.Context) (domain.Account, error) {
	i.inflight.Add(1)
	defer i.inflight.Add(-1)

	var acc domain.Account
	err := i.session.Post(ctx, "me", nil, &acc)
	if err != nil {
		if errors.Is(err, domain.ErrAuthenticationExpired) {
			i.clear()
			i.set(nil, err)
		} else {
			i.mu.Lock()
			i.err = err
			i.mu.Unlock()
		}
		return domain.Account{}, err
	}
	i.set(&acc, nil)
	return acc, nil
}

// Logout tells the API to revoke the token. Local credentials are cleared
// whatever the API answers.
func (i *Identity) Logout(ctx context.Context) error {
	i.inflight.Add(1)
	defer i.inflight.Add(-1)

	_, err := i.session.Do(ctx, http.MethodPost, "logout", nil)
	i.clear()
	i.set(nil, err)
	if err != nil {
		i.logger.Warn("logout request failed", zap.Error(err))
	}
	return err
}

func (i *Identity) Account() (domain.Account, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.account == nil {
		return domain.Account{}, false
	}
	return *i.account, true
}

// DisplayName prefers the full name, then the username.
func (i *Identity) DisplayName() string {
	acc, ok := i.Account()
	if !ok {
		return "Unknown User"
	}
	if name := strings.TrimSpace(acc.Name); name != "" {
		return name
	}
	if acc.Username != "" {
		return acc.Username
	}
	return "User"
}

func (i *Identity) Loading() bool {
	return i.inflight.Load() > 0
}

func (i *Identity) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.err
}

func (i *Identity) set(acc *domain.Account, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.account = acc
	i.err = err
}

func (i *Identity) clear() {
	if i.creds != nil {
		i.creds.Clear()
	}
}
