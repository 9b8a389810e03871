package entities

import (
	"context"
	"net/http"
	"strings"

	"udpadijaya/posagent/internal/domain"
)

// Accounts lists the users visible to the signed-in owner and registers new
// cashiers and branch owners.
type Accounts struct {
	*Collection[domain.Account]
}

func NewAccounts(d Deps) *Accounts {
	return &Accounts{newCollection(d, resourceSpec[domain.Account]{
		path:    "user",
		altKeys: []string{"users"},
		id:      func(a domain.Account) int64 { return a.ID },
	})}
}

func (a *Accounts) Cashiers() []domain.Account {
	return a.withRole(domain.RoleCashier)
}

func (a *Accounts) BranchOwners() []domain.Account {
	return a.withRole(domain.RoleBranchOwner)
}

func (a *Accounts) withRole(role int64) []domain.Account {
	out := []domain.Account{}
	for _, acc := range a.Items() {
		if acc.RoleID == role {
			out = append(out, acc)
		}
	}
	return out
}

// RegisterCashier registers a cashier in the branch of the first listed user,
// which the API returns as the signed-in owner.
func (a *Accounts) RegisterCashier(ctx context.Context, req domain.AccountRegisterRequest) (domain.RegisterResponse, error) {
	if len(a.Items()) == 0 {
		if _, err := a.FetchAll(ctx); err != nil {
			return domain.RegisterResponse{}, err
		}
	}
	items := a.Items()
	if len(items) == 0 || accountBranchID(items[0]) == 0 {
		return domain.RegisterResponse{}, domain.Validationf("cannot determine the branch for a new cashier")
	}

	req.RoleID = domain.RoleCashier
	req.BranchID = accountBranchID(items[0])
	return a.register(ctx, req)
}

func (a *Accounts) RegisterBranchOwner(ctx context.Context, req domain.AccountRegisterRequest) (domain.RegisterResponse, error) {
	if req.BranchID <= 0 {
		return domain.RegisterResponse{}, domain.Validationf("branch is required for a branch owner")
	}
	req.RoleID = domain.RoleBranchOwner
	return a.register(ctx, req)
}

func (a *Accounts) register(ctx context.Context, req domain.AccountRegisterRequest) (domain.RegisterResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Username == "" || req.Email == "" || req.Password == "" {
		return domain.RegisterResponse{}, domain.Validationf("name, username, email and password are required")
	}

	var resp domain.RegisterResponse
	if err := a.mutate(ctx, http.MethodPost, "register", req, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// AvailableBranches are the branches that have no owner yet.
func AvailableBranches(branches []domain.Branch, accounts []domain.Account) []domain.Branch {
	owned := map[int64]bool{}
	for _, acc := range accounts {
		if acc.RoleID == domain.RoleBranchOwner {
			owned[accountBranchID(acc)] = true
		}
	}
	out := []domain.Branch{}
	for _, b := range branches {
		if !owned[b.ID] {
			out = append(out, b)
		}
	}
	return out
}

func accountBranchID(acc domain.Account) int64 {
	if acc.BranchID != 0 {
		return acc.BranchID
	}
	if acc.Branch != nil {
		return acc.Branch.ID
	}
	return 0
}
