// geobets-core-service/services/chain_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"geobets-core-service/utils"
)

const (
	InstructionCreateGame = "create_game"
	InstructionSettle     = "settle"
)

const (
	ConfirmationPending   = "pending"
	ConfirmationConfirmed = "confirmed"
	ConfirmationFailed    = "failed"
)

// ChainGateway is the narrow surface the core needs from the value ledger.
// The core never moves funds itself — it only submits instructions and waits
// (bounded) for confirmations.
type ChainGateway interface {
	Submit(ctx context.Context, instr ChainInstruction) (string, error)
	WaitConfirmed(ctx context.Context, txRef string, timeout time.Duration) (*ChainConfirmation, error)
}

// ChainInstruction is one request to the chain gateway. Kind decides which
// fields are meaningful.
type ChainInstruction struct {
	Kind string `json:"kind"`

	// create_game
	SolutionCommit string `json:"solution_commit,omitempty"`
	CommitDeadline int64  `json:"commit_deadline,omitempty"`
	RevealDeadline int64  `json:"reveal_deadline,omitempty"`

	// settle
	GameID  *int64   `json:"game_id,omitempty"`
	Players []string `json:"players,omitempty"`
	Shares  []int64  `json:"shares,omitempty"`
}

// ChainConfirmation is the gateway's view of a submitted transaction. For
// create_game, GameID carries the id the contract emitted in its GameCreated
// event — absent until the tx is mined.
type ChainConfirmation struct {
	TxRef  string `json:"tx"`
	Status string `json:"status"`
	GameID *int64 `json:"game_id,omitempty"`
}

type ChainClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewChainClient() *ChainClient {
	baseURL := os.Getenv("CHAIN_GATEWAY_URL")
	if baseURL == "" {
		log.Fatal("CHAIN_GATEWAY_URL environment variable is required")
	}
	token := os.Getenv("GEOBETS_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("GEOBETS_SERVICE_TOKEN environment variable is required for chain gateway calls")
	}

	return &ChainClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: utils.HTTPClient,
	}
}

// Submit posts an instruction and returns the gateway's transaction ref.
// The caller bounds the wait through ctx; a deadline surfaces as ErrLedgerTimeout.
func (c *ChainClient) Submit(ctx context.Context, instr ChainInstruction) (string, error) {
	jsonData, _ := json.Marshal(instr)

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/v1/transactions", c.BaseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", fmt.Errorf("%w: submit %s", ErrLedgerTimeout, instr.Kind)
		}
		return "", fmt.Errorf("failed to call chain gateway: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("chain gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Tx string `json:"tx"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode chain gateway response: %w", err)
	}
	if out.Tx == "" {
		return "", fmt.Errorf("chain gateway returned no tx ref")
	}
	return out.Tx, nil
}

// WaitConfirmed polls the gateway until the tx is confirmed or failed, or the
// timeout elapses (ErrLedgerTimeout). Pending keeps polling inside the window.
func (c *ChainClient) WaitConfirmed(ctx context.Context, txRef string, timeout time.Duration) (*ChainConfirmation, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		conf, err := c.getConfirmation(waitCtx, txRef)
		if err == nil && conf.Status != ConfirmationPending {
			return conf, nil
		}
		if err != nil && waitCtx.Err() == nil {
			log.Printf("chain gateway confirmation check failed for %s: %v", txRef, err)
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("%w: tx %s", ErrLedgerTimeout, txRef)
		case <-ticker.C:
		}
	}
}

func (c *ChainClient) getConfirmation(ctx context.Context, txRef string) (*ChainConfirmation, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/v1/transactions/%s", c.BaseURL, txRef), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chain gateway: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var conf ChainConfirmation
	if err := json.Unmarshal(body, &conf); err != nil {
		return nil, fmt.Errorf("failed to decode confirmation: %w", err)
	}
	return &conf, nil
}
