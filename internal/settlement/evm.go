package settlement

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/avask/arbot/internal/domain"
)

// contractABI covers the owner-gated surface of the settlement contract and
// the two events the orchestrator consumes.
const contractABI = `[
  {"type":"function","name":"executeArbitrage","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},
    {"name":"buyRouter","type":"address"},
    {"name":"sellRouter","type":"address"},
    {"name":"buyPayload","type":"bytes"},
    {"name":"sellPayload","type":"bytes"},
    {"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"setRouterApproval","stateMutability":"nonpayable","inputs":[
    {"name":"router","type":"address"},
    {"name":"approved","type":"bool"}],"outputs":[]},
  {"type":"function","name":"withdrawFunds","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},
    {"name":"to","type":"address"},
    {"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"approveToken","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},
    {"name":"spender","type":"address"},
    {"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"ArbitrageExecuted","inputs":[
    {"name":"token","type":"address","indexed":true},
    {"name":"profit","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"FundsWithdrawn","inputs":[
    {"name":"token","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}],"anonymous":false}
]`

// EVMSettler submits settlement transactions to the deployed contract over
// JSON-RPC. ExecuteArbitrage returns a pending receipt; the orchestrator
// resolves it through Confirm.
type EVMSettler struct {
	client   *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
}

// NewEVMSettler dials rpcURL and prepares a settler bound to the contract
// at contractAddr, signing with key on the given chain.
func NewEVMSettler(ctx context.Context, rpcURL, contractAddr string, key *ecdsa.PrivateKey, chainID int64, gasLimit uint64) (*EVMSettler, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("settlement: dial %s: %w", rpcURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("settlement: parse abi: %w", err)
	}

	return &EVMSettler{
		client:   client,
		abi:      parsed,
		contract: common.HexToAddress(contractAddr),
		key:      key,
		from:     ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(chainID),
		gasLimit: gasLimit,
	}, nil
}

// Close releases the underlying RPC connection.
func (s *EVMSettler) Close() {
	s.client.Close()
}

// From returns the transaction sender address.
func (s *EVMSettler) From() common.Address {
	return s.from
}

// ExecuteArbitrage packs and submits the executeArbitrage call. The
// returned receipt is pending. A send failure after signing is ambiguous
// when the transport timed out or dropped: the transaction may still have
// reached the network, so the pending receipt carries the hash alongside
// the error and the caller resolves it by polling Confirm.
func (s *EVMSettler) ExecuteArbitrage(ctx context.Context, trade Trade) (Receipt, error) {
	data, err := s.abi.Pack("executeArbitrage",
		common.HexToAddress(trade.Token),
		common.HexToAddress(trade.BuyRouter),
		common.HexToAddress(trade.SellRouter),
		trade.BuyCalldata,
		trade.SellCalldata,
		big.NewInt(trade.AmountUnits),
	)
	if err != nil {
		return Receipt{}, fmt.Errorf("settlement: pack executeArbitrage: %w", err)
	}

	tx, err := s.submit(ctx, data)
	if err != nil {
		if tx != nil && ambiguousSend(err) {
			return Receipt{TxHash: tx.Hash().Hex(), Pending: true}, err
		}
		return Receipt{}, err
	}
	return Receipt{TxHash: tx.Hash().Hex(), Pending: true}, nil
}

// Confirm polls for the transaction receipt. ok is false while the
// transaction is unmined. A mined-but-failed transaction maps to the
// profit-invariant revert class; the chain does not expose which
// precondition tripped.
func (s *EVMSettler) Confirm(ctx context.Context, txHash string) (Receipt, bool, error) {
	rcpt, err := s.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return Receipt{}, false, nil
		}
		return Receipt{}, false, fmt.Errorf("settlement: receipt %s: %w", txHash, err)
	}

	if rcpt.Status != types.ReceiptStatusSuccessful {
		return Receipt{}, true, fmt.Errorf("settlement: tx %s reverted: %w", txHash, domain.ErrProfitInvariant)
	}

	out := Receipt{TxHash: txHash}
	eventID := s.abi.Events["ArbitrageExecuted"].ID
	for _, lg := range rcpt.Logs {
		if lg.Address != s.contract || len(lg.Topics) == 0 || lg.Topics[0] != eventID {
			continue
		}
		vals, err := s.abi.Unpack("ArbitrageExecuted", lg.Data)
		if err != nil || len(vals) == 0 {
			continue
		}
		if profit, ok := vals[0].(*big.Int); ok {
			out.RealizedProfit = float64(profit.Int64()) / amountScale
		}
	}
	return out, true, nil
}

// SetRouterApproval submits the owner-only allow-list update.
func (s *EVMSettler) SetRouterApproval(ctx context.Context, router string, approved bool) (string, error) {
	data, err := s.abi.Pack("setRouterApproval", common.HexToAddress(router), approved)
	if err != nil {
		return "", fmt.Errorf("settlement: pack setRouterApproval: %w", err)
	}
	tx, err := s.submit(ctx, data)
	if err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// WithdrawFunds submits the owner-only withdrawal.
func (s *EVMSettler) WithdrawFunds(ctx context.Context, token, to string, amountUnits int64) (string, error) {
	data, err := s.abi.Pack("withdrawFunds",
		common.HexToAddress(token),
		common.HexToAddress(to),
		big.NewInt(amountUnits),
	)
	if err != nil {
		return "", fmt.Errorf("settlement: pack withdrawFunds: %w", err)
	}
	tx, err := s.submit(ctx, data)
	if err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// ApproveToken submits the owner-only allowance update.
func (s *EVMSettler) ApproveToken(ctx context.Context, token, spender string, amountUnits int64) (string, error) {
	data, err := s.abi.Pack("approveToken",
		common.HexToAddress(token),
		common.HexToAddress(spender),
		big.NewInt(amountUnits),
	)
	if err != nil {
		return "", fmt.Errorf("settlement: pack approveToken: %w", err)
	}
	tx, err := s.submit(ctx, data)
	if err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// ambiguousSend reports whether a SendTransaction failure leaves the
// broadcast outcome unknown. Timeouts and transport drops can occur after
// the node has accepted the transaction; a node rejection cannot.
func ambiguousSend(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// submit signs and broadcasts a contract call with the next account nonce.
// On a SendTransaction failure the signed transaction is returned with the
// error so callers can keep its hash.
func (s *EVMSettler) submit(ctx context.Context, data []byte) (*types.Transaction, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("settlement: nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("settlement: gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.contract,
		Value:    big.NewInt(0),
		Gas:      s.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("settlement: sign tx: %w", err)
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return signed, fmt.Errorf("settlement: send tx: %w", err)
	}
	return signed, nil
}
