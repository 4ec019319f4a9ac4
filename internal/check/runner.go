package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/compose-network/soulbound-harness/internal/chain"
	"github.com/compose-network/soulbound-harness/internal/logger"
	"github.com/compose-network/soulbound-harness/internal/token"
	"github.com/ethereum/go-ethereum/common"
)

var ErrNotEnoughAccounts = errors.New("the suite needs three accounts: owner and two users")

// Fixture provides fresh deployments for every case.
type Fixture interface {
	// Accounts returns owner, first user and second user.
	Accounts() []chain.Account
	DeployV1(ctx context.Context) (token.Token, error)
	UpgradeToV2(ctx context.Context, proxy common.Address) (token.Token, error)
}

type (
	Result struct {
		Case     string
		Err      error
		Duration time.Duration
	}

	Report struct {
		Results []Result
	}
)

func (r Result) Passed() bool {
	return r.Err == nil
}

// Failed returns the failed results in execution order.
func (r Report) Failed() []Result {
	var failed []Result
	for _, result := range r.Results {
		if !result.Passed() {
			failed = append(failed, result)
		}
	}
	return failed
}

// Err joins the failures of the report, or returns nil when every case passed.
func (r Report) Err() error {
	var errs []error
	for _, result := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", result.Case, result.Err))
	}
	return errors.Join(errs...)
}

// Runner executes cases one after another, each on its own deployment.
type Runner struct {
	fixture Fixture
	cases   []Case
	logger  *slog.Logger
}

func NewRunner(fixture Fixture, cases []Case) *Runner {
	return &Runner{
		fixture: fixture,
		cases:   cases,
		logger:  logger.Named("check"),
	}
}

// Select returns the cases whose "<group>/<name>" matches pattern. An empty pattern
// selects everything.
func Select(cases []Case, pattern string) ([]Case, error) {
	if pattern == "" {
		return cases, nil
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid case filter %q: %w", pattern, err)
	}

	var selected []Case
	for _, c := range cases {
		if re.MatchString(c.FullName()) {
			selected = append(selected, c)
		}
	}
	return selected, nil
}

// Run executes every case and reports all of them; a failing case does not stop the run.
// Only a cancelled context ends it early.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	accounts := r.fixture.Accounts()
	if len(accounts) < 3 {
		return Report{}, fmt.Errorf("%w, got %d", ErrNotEnoughAccounts, len(accounts))
	}

	var report Report
	for _, c := range r.cases {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		start := time.Now()
		err := r.runCase(ctx, c, accounts)
		result := Result{Case: c.FullName(), Err: err, Duration: time.Since(start)}
		report.Results = append(report.Results, result)

		log := r.logger.With("case", result.Case).With("duration", result.Duration.String())
		if err != nil {
			log.Error("case failed", "error", err)
		} else {
			log.Info("case passed")
		}
	}

	r.logger.
		With("passed", len(report.Results)-len(report.Failed())).
		With("failed", len(report.Failed())).
		Info("check suite finished")

	return report, nil
}

func (r *Runner) runCase(ctx context.Context, c Case, accounts []chain.Account) error {
	deployed, err := r.fixture.DeployV1(ctx)
	if err != nil {
		return fmt.Errorf("failed to deploy fixture: %w", err)
	}

	env := &Env{
		Token:   deployed,
		Owner:   accounts[0],
		User1:   accounts[1],
		User2:   accounts[2],
		fixture: r.fixture,
	}

	return c.Run(ctx, env)
}
