package check

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/compose-network/soulbound-harness/internal/chain"
	"github.com/compose-network/soulbound-harness/internal/token"
	"github.com/ethereum/go-ethereum/common"
)

const (
	ReasonNotOwner    = "Ownable: caller is not the owner"
	ReasonNotAdmin    = "Restricted: Caller of the function is not in the admin list."
	GreetingV2        = "Hi from V2"
	firstTokenURI     = "Token string URI"
	secondTokenURI    = "Token string URI 2"
	groupDeployment   = "Deployment"
	groupAddAdmin     = "Add admin"
	groupDisableAdmin = "Disable admin"
	groupMint         = "Mint"
	groupBurn         = "Burn"
	groupTransfer     = "Transfer"
	groupVersion2     = "Version 2"
)

var (
	ErrExpectedRevert = errors.New("expected transaction to revert")
	ErrWrongRevert    = errors.New("reverted with an unexpected reason")
	ErrMismatch       = errors.New("unexpected value")
)

var firstToken = big.NewInt(0)

// Env is what a case runs against: a freshly deployed V1 proxy and the three signers.
type Env struct {
	Token token.Token
	Owner chain.Account
	User1 chain.Account
	User2 chain.Account

	fixture Fixture
}

// UpgradeToV2 upgrades the case's proxy and returns the V2 binding.
func (e *Env) UpgradeToV2(ctx context.Context) (token.Token, error) {
	return e.fixture.UpgradeToV2(ctx, e.Token.Address())
}

// Case is one named behaviour of the token.
type Case struct {
	Group string
	Name  string
	Run   func(ctx context.Context, env *Env) error
}

func (c Case) FullName() string {
	return c.Group + "/" + c.Name
}

// Cases returns the behaviour suite in execution order.
func Cases() []Case {
	return []Case{
		{groupDeployment, "Contract deployed with proper address", func(ctx context.Context, env *Env) error {
			if env.Token.Address() == (common.Address{}) {
				return fmt.Errorf("%w: proxy address is the zero address", ErrMismatch)
			}
			return nil
		}},
		{groupDeployment, "Should set the right owner", func(ctx context.Context, env *Env) error {
			owner, err := env.Token.Owner(ctx)
			if err != nil {
				return err
			}
			return expectEqual("owner()", env.Owner.Address, owner)
		}},

		{groupAddAdmin, "Should set the contract owner as the first admin", func(ctx context.Context, env *Env) error {
			return expectAdmin(ctx, env.Token, env.Owner.Address, true)
		}},
		{groupAddAdmin, "Should be false if the connected user is not admin", func(ctx context.Context, env *Env) error {
			return expectAdmin(ctx, env.Token, env.User1.Address, false)
		}},
		{groupAddAdmin, "Contract owner can add a new Admin", func(ctx context.Context, env *Env) error {
			if err := env.Token.AddAdmin(ctx, env.Owner, env.User1.Address); err != nil {
				return err
			}
			return expectAdmin(ctx, env.Token, env.User1.Address, true)
		}},
		{groupAddAdmin, "User can't add a new Admin", func(ctx context.Context, env *Env) error {
			return ExpectRevert(env.Token.AddAdmin(ctx, env.User1, env.User1.Address), ReasonNotOwner)
		}},

		{groupDisableAdmin, "Contract owner can disable an Admin", func(ctx context.Context, env *Env) error {
			if err := env.Token.AddAdmin(ctx, env.Owner, env.User1.Address); err != nil {
				return err
			}
			if err := env.Token.DisableAdmin(ctx, env.Owner, env.User1.Address); err != nil {
				return err
			}
			return expectAdmin(ctx, env.Token, env.User1.Address, false)
		}},
		{groupDisableAdmin, "User can't disable an Admin", func(ctx context.Context, env *Env) error {
			if err := ExpectRevert(env.Token.DisableAdmin(ctx, env.User1, env.Owner.Address), ReasonNotOwner); err != nil {
				return err
			}
			return expectAdmin(ctx, env.Token, env.Owner.Address, true)
		}},

		{groupMint, "Contract owner can mint token", func(ctx context.Context, env *Env) error {
			if err := env.Token.Mint(ctx, env.Owner, env.User1.Address, firstTokenURI); err != nil {
				return err
			}
			return expectTokenURI(ctx, env.Token, firstTokenURI)
		}},
		{groupMint, "Admin can mint token", func(ctx context.Context, env *Env) error {
			if err := env.Token.AddAdmin(ctx, env.Owner, env.User1.Address); err != nil {
				return err
			}
			if err := expectAdmin(ctx, env.Token, env.User1.Address, true); err != nil {
				return err
			}
			if err := env.Token.Mint(ctx, env.User1, env.User2.Address, secondTokenURI); err != nil {
				return err
			}
			return expectTokenURI(ctx, env.Token, secondTokenURI)
		}},
		{groupMint, "User can't mint token", func(ctx context.Context, env *Env) error {
			return ExpectRevert(env.Token.Mint(ctx, env.User1, env.User2.Address, secondTokenURI), ReasonNotAdmin)
		}},
		{groupMint, "Should set the right token owner", func(ctx context.Context, env *Env) error {
			if err := env.Token.Mint(ctx, env.Owner, env.User1.Address, firstTokenURI); err != nil {
				return err
			}
			if err := expectTokenURI(ctx, env.Token, firstTokenURI); err != nil {
				return err
			}
			return expectTokenOwner(ctx, env.Token, env.User1.Address)
		}},

		{groupBurn, "Token owner should be able to burn it", func(ctx context.Context, env *Env) error {
			if err := env.Token.Mint(ctx, env.Owner, env.User1.Address, firstTokenURI); err != nil {
				return err
			}
			if err := env.Token.Burn(ctx, env.User1, firstToken); err != nil {
				return err
			}
			_, err := env.Token.OwnerOf(ctx, firstToken)
			return ExpectRevert(err, "")
		}},
		{groupBurn, "Not owner should NOT be able to burn it", func(ctx context.Context, env *Env) error {
			if err := env.Token.Mint(ctx, env.Owner, env.User1.Address, firstTokenURI); err != nil {
				return err
			}
			if err := ExpectRevert(env.Token.Burn(ctx, env.User2, firstToken), ""); err != nil {
				return err
			}
			return expectTokenOwner(ctx, env.Token, env.User1.Address)
		}},

		{groupTransfer, "No one can transfer the token once its minted", func(ctx context.Context, env *Env) error {
			if err := env.Token.Mint(ctx, env.Owner, env.User1.Address, firstTokenURI); err != nil {
				return err
			}
			if err := ExpectRevert(env.Token.TransferFrom(ctx, env.User1, env.User1.Address, env.User2.Address, firstToken), ""); err != nil {
				return err
			}
			return expectTokenOwner(ctx, env.Token, env.User1.Address)
		}},

		{groupVersion2, "New contract should call sayHi2 function", func(ctx context.Context, env *Env) error {
			upgraded, err := env.UpgradeToV2(ctx)
			if err != nil {
				return err
			}
			greeting, err := upgraded.SayHi2(ctx)
			if err != nil {
				return err
			}
			return expectEqual("sayHi2()", GreetingV2, greeting)
		}},
		{groupVersion2, "Old contract should NOT call sayHi2 function", func(ctx context.Context, env *Env) error {
			if _, err := env.UpgradeToV2(ctx); err != nil {
				return err
			}
			_, err := env.Token.SayHi2(ctx)
			if !errors.Is(err, token.ErrMethodNotFound) {
				return fmt.Errorf("%w: sayHi2 through the V1 binding returned %v", ErrMismatch, err)
			}
			return nil
		}},
	}
}

// ExpectRevert checks that err is a contract revert whose reason contains reason. An empty
// reason accepts any revert.
func ExpectRevert(err error, reason string) error {
	if err == nil {
		return ErrExpectedRevert
	}
	if !token.IsRevert(err) {
		return fmt.Errorf("%w: %w", ErrExpectedRevert, err)
	}
	if reason == "" {
		return nil
	}

	got, _ := token.RevertReason(err)
	if !strings.Contains(got, reason) {
		return fmt.Errorf("%w: want %q, got %q", ErrWrongRevert, reason, got)
	}

	return nil
}

func expectEqual[T comparable](what string, want, got T) error {
	if want != got {
		return fmt.Errorf("%w: %s want %v, got %v", ErrMismatch, what, want, got)
	}
	return nil
}

func expectAdmin(ctx context.Context, t token.Token, account common.Address, want bool) error {
	got, err := t.Admins(ctx, account)
	if err != nil {
		return err
	}
	return expectEqual(fmt.Sprintf("admins(%s)", account.Hex()), want, got)
}

func expectTokenURI(ctx context.Context, t token.Token, want string) error {
	got, err := t.TokenURI(ctx, firstToken)
	if err != nil {
		return err
	}
	return expectEqual("tokenURI(0)", want, got)
}

func expectTokenOwner(ctx context.Context, t token.Token, want common.Address) error {
	got, err := t.OwnerOf(ctx, firstToken)
	if err != nil {
		return err
	}
	return expectEqual("ownerOf(0)", want, got)
}
