package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/compose-network/soulbound-harness/configs"
	"github.com/compose-network/soulbound-harness/internal/logger"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrTimeout = errors.New("verification still pending")

	errPending = errors.New("pending")
)

type (
	// Client talks to an Etherscan-compatible contract verification API
	Client struct {
		apiURL       string
		apiKey       string
		httpClient   *http.Client
		pollInterval time.Duration
		maxAttempts  int
		logger       *slog.Logger
	}

	// SourceRequest describes a contract to verify from its standard-JSON compiler input
	SourceRequest struct {
		Address common.Address
		// ContractName is the fully qualified name, e.g. contracts/TestTokenV1.sol:TestTokenV1.
		ContractName    string
		CompilerVersion string
		StandardJSON    []byte
		ConstructorArgs []byte
	}

	// APIError is a request the explorer answered with status 0
	APIError struct {
		Action  string
		Message string
		Result  string
	}

	response struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  string `json:"result"`
	}

	outcome int
)

const defaultPollInterval = 3 * time.Second

const (
	outcomeDone outcome = iota
	outcomeAlreadyVerified
	outcomePending
	outcomeNotIndexed
	outcomeFailed
)

func (e *APIError) Error() string {
	return fmt.Sprintf("explorer %s failed: %s: %s", e.Action, e.Message, e.Result)
}

// NewClient creates a client. A nil httpClient uses a client with a 30s timeout.
func NewClient(settings configs.Etherscan, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	pollInterval := settings.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &Client{
		apiURL:       settings.APIURL,
		apiKey:       settings.APIKey,
		httpClient:   httpClient,
		pollInterval: pollInterval,
		maxAttempts:  settings.MaxAttempts,
		logger:       logger.Named("explorer"),
	}
}

// VerifySource submits the source of a deployed contract and waits for the verdict.
func (c *Client) VerifySource(ctx context.Context, req SourceRequest) error {
	form := url.Values{
		"module":                {"contract"},
		"action":                {"verifysourcecode"},
		"contractaddress":       {req.Address.Hex()},
		"sourceCode":            {string(req.StandardJSON)},
		"codeformat":            {"solidity-standard-json-input"},
		"contractname":          {req.ContractName},
		"compilerversion":       {req.CompilerVersion},
		"constructorArguements": {common.Bytes2Hex(req.ConstructorArgs)},
	}

	log := c.logger.With("address", req.Address.Hex()).With("contract", req.ContractName)
	log.Info("submitting contract source for verification")

	guid, already, err := c.submit(ctx, form)
	if err != nil {
		return err
	}
	if already {
		log.Info("contract source already verified")
		return nil
	}

	if err := c.poll(ctx, "checkverifystatus", guid); err != nil {
		return err
	}

	log.Info("contract source verified")
	return nil
}

// VerifyProxy asks the explorer to link proxy to its implementation.
func (c *Client) VerifyProxy(ctx context.Context, proxy, expectedImplementation common.Address) error {
	form := url.Values{
		"module":                 {"contract"},
		"action":                 {"verifyproxycontract"},
		"address":                {proxy.Hex()},
		"expectedimplementation": {expectedImplementation.Hex()},
	}

	log := c.logger.With("proxy", proxy.Hex()).With("implementation", expectedImplementation.Hex())
	log.Info("linking proxy to implementation")

	guid, already, err := c.submit(ctx, form)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	if err := c.poll(ctx, "checkproxyverification", guid); err != nil {
		return err
	}

	log.Info("proxy linked")
	return nil
}

// submit posts form, retrying while the explorer has not indexed the bytecode yet. It returns
// the GUID to poll, or already=true when there is nothing left to do.
func (c *Client) submit(ctx context.Context, form url.Values) (guid string, already bool, err error) {
	action := form.Get("action")

	err = c.retry(ctx, action, func() error {
		resp, err := c.post(ctx, form)
		if err != nil {
			return backoff.Permanent(err)
		}

		switch classify(resp) {
		case outcomeAlreadyVerified:
			already = true
			return nil
		case outcomeNotIndexed:
			return errPending
		case outcomeFailed:
			return backoff.Permanent(&APIError{Action: action, Message: resp.Message, Result: resp.Result})
		default:
			guid = resp.Result
			return nil
		}
	})

	return guid, already, err
}

func (c *Client) poll(ctx context.Context, action, guid string) error {
	query := url.Values{
		"module": {"contract"},
		"action": {action},
		"guid":   {guid},
	}

	return c.retry(ctx, action, func() error {
		resp, err := c.get(ctx, query)
		if err != nil {
			return backoff.Permanent(err)
		}

		switch classify(resp) {
		case outcomeDone, outcomeAlreadyVerified:
			return nil
		case outcomePending, outcomeNotIndexed:
			c.logger.With("guid", guid).With("status", resp.Result).Debug("verification pending")
			return errPending
		default:
			return backoff.Permanent(&APIError{Action: action, Message: resp.Message, Result: resp.Result})
		}
	})
}

func (c *Client) retry(ctx context.Context, action string, operation func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.pollInterval
	policy.MaxInterval = 10 * c.pollInterval
	policy.MaxElapsedTime = 0

	attempts := max(c.maxAttempts, 1)
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))
	if errors.Is(err, errPending) {
		return fmt.Errorf("%w: %s after %d attempts", ErrTimeout, action, attempts)
	}

	return err
}

// classify maps the explorer's free-form answers onto what to do next.
func classify(resp response) outcome {
	result := strings.ToLower(resp.Result)

	switch {
	case strings.Contains(result, "already verified"):
		return outcomeAlreadyVerified
	case strings.Contains(result, "pending"), strings.Contains(result, "in queue"), strings.Contains(result, "in progress"):
		return outcomePending
	case strings.Contains(result, "unable to locate contractcode"), strings.Contains(result, "does not have bytecode"):
		return outcomeNotIndexed
	case resp.Status == "1":
		return outcomeDone
	default:
		return outcomeFailed
	}
}

func (c *Client) post(ctx context.Context, form url.Values) (response, error) {
	body := url.Values{"apikey": {c.apiKey}}
	for key, values := range form {
		body[key] = values
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(body.Encode()))
	if err != nil {
		return response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

func (c *Client) get(ctx context.Context, query url.Values) (response, error) {
	params := url.Values{"apikey": {c.apiKey}}
	for key, values := range query {
		params[key] = values
	}

	endpoint, err := url.Parse(c.apiURL)
	if err != nil {
		return response{}, fmt.Errorf("invalid explorer API URL %q: %w", c.apiURL, err)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return response{}, fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("explorer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("failed to read explorer response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return response{}, fmt.Errorf("explorer returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return response{}, fmt.Errorf("failed to decode explorer response: %w", err)
	}

	return decoded, nil
}
