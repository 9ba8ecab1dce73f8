package pancake

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"swapflow/connector"
	"swapflow/logger"
	"swapflow/models"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const routerABI = `[
	{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

const (
	// Swaps carry a 90s deadline: ~70s of expected inclusion time plus
	// buffer. MEV-protected swaps tighten it and pay a 20% gas premium
	// for faster inclusion.
	defaultDeadlineSeconds = 90
	mevDeadlineSeconds     = 60
	defaultGasLimit        = 300000
)

// mevGasPremium is the multiplier applied to the suggested gas price when
// MEV protection is requested.
var mevGasPremium = big.NewRat(120, 100)

// Config wires a client to one chain and one router.
type Config struct {
	RPCURL      string
	ChainID     int64
	Router      string
	ExplorerURL string            // tx hash appended, e.g. https://bscscan.com/tx/
	Tokens      map[string]string // symbol -> contract address
	Wallets     map[string]string // wallet name -> private key hex

	RequestsPerSecond float64
	Burst             int
}

// Client talks to a PancakeSwap v2 style router over JSON-RPC. Every
// external call passes the rate gate first and resolves its failure into a
// classified connector error, so callers never re-infer kinds.
type Client struct {
	cfg    Config
	eth    *ethclient.Client
	router common.Address

	erc20  abi.ABI
	rabi   abi.ABI
	signer types.Signer
	gate   *rate.Limiter
	log    *logger.Log

	keys map[string]*ecdsa.PrivateKey
	addr map[string]common.Address

	mu       sync.Mutex
	decimals map[string]uint8
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, connector.NewNetwork("dial", err)
	}

	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	rabi, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	c := &Client{
		cfg:      cfg,
		eth:      eth,
		router:   common.HexToAddress(cfg.Router),
		erc20:    erc20,
		rabi:     rabi,
		signer:   types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		gate:     rate.NewLimiter(rate.Limit(rps), burst),
		log:      logger.GetLogger(),
		keys:     make(map[string]*ecdsa.PrivateKey),
		addr:     make(map[string]common.Address),
		decimals: make(map[string]uint8),
	}

	for name, keyHex := range cfg.Wallets {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return nil, connector.NewValidation("load_wallet", fmt.Errorf("wallet %s: %w", name, err))
		}
		c.keys[name] = key
		c.addr[name] = crypto.PubkeyToAddress(key.PublicKey)
	}

	return c, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) tokenAddress(symbol string) (common.Address, error) {
	hex, ok := c.cfg.Tokens[symbol]
	if !ok {
		return common.Address{}, connector.NewValidation("token_address",
			fmt.Errorf("unknown token %q", symbol))
	}
	return common.HexToAddress(hex), nil
}

func (c *Client) walletAddress(wallet string) (common.Address, error) {
	addr, ok := c.addr[wallet]
	if !ok {
		return common.Address{}, connector.NewValidation("wallet_address",
			fmt.Errorf("unknown wallet %q", wallet))
	}
	return addr, nil
}

// call executes a read-only contract call through the rate gate.
func (c *Client) call(ctx context.Context, op string, to common.Address, data []byte) ([]byte, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return nil, connector.NewNetwork(op, err)
	}
	logger.RecordRPCCall(op)
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, connector.Classify(op, err)
	}
	return out, nil
}

// tokenDecimals fetches and caches the decimals of a token contract.
func (c *Client) tokenDecimals(ctx context.Context, symbol string) (uint8, error) {
	c.mu.Lock()
	if d, ok := c.decimals[symbol]; ok {
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	addr, err := c.tokenAddress(symbol)
	if err != nil {
		return 0, err
	}
	data, err := c.erc20.Pack("decimals")
	if err != nil {
		return 0, connector.NewLogic("decimals", err)
	}
	out, err := c.call(ctx, "decimals", addr, data)
	if err != nil {
		return 0, err
	}
	vals, err := c.erc20.Unpack("decimals", out)
	if err != nil {
		return 0, connector.NewLogic("decimals", err)
	}
	d := vals[0].(uint8)

	c.mu.Lock()
	c.decimals[symbol] = d
	c.mu.Unlock()
	return d, nil
}

// GetPrice quotes one base unit through the router and returns the
// quote-per-base price.
func (c *Client) GetPrice(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	baseAddr, err := c.tokenAddress(base)
	if err != nil {
		return decimal.Zero, err
	}
	quoteAddr, err := c.tokenAddress(quote)
	if err != nil {
		return decimal.Zero, err
	}
	baseDec, err := c.tokenDecimals(ctx, base)
	if err != nil {
		return decimal.Zero, err
	}
	quoteDec, err := c.tokenDecimals(ctx, quote)
	if err != nil {
		return decimal.Zero, err
	}

	oneUnit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(baseDec)), nil)
	amounts, err := c.amountsOut(ctx, oneUnit, []common.Address{baseAddr, quoteAddr})
	if err != nil {
		return decimal.Zero, err
	}
	return fromWei(amounts[len(amounts)-1], quoteDec), nil
}

func (c *Client) amountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := c.rabi.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, connector.NewLogic("get_amounts_out", err)
	}
	out, err := c.call(ctx, "get_amounts_out", c.router, data)
	if err != nil {
		return nil, err
	}
	vals, err := c.rabi.Unpack("getAmountsOut", out)
	if err != nil {
		return nil, connector.NewLogic("get_amounts_out", err)
	}
	amounts := vals[0].([]*big.Int)
	if len(amounts) < 2 {
		return nil, connector.NewLogic("get_amounts_out", fmt.Errorf("short amounts: %d", len(amounts)))
	}
	return amounts, nil
}

func (c *Client) GetBalance(ctx context.Context, wallet, token string) (decimal.Decimal, error) {
	owner, err := c.walletAddress(wallet)
	if err != nil {
		return decimal.Zero, err
	}
	addr, err := c.tokenAddress(token)
	if err != nil {
		return decimal.Zero, err
	}
	dec, err := c.tokenDecimals(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}

	data, err := c.erc20.Pack("balanceOf", owner)
	if err != nil {
		return decimal.Zero, connector.NewLogic("balance_of", err)
	}
	out, err := c.call(ctx, "balance_of", addr, data)
	if err != nil {
		return decimal.Zero, err
	}
	vals, err := c.erc20.Unpack("balanceOf", out)
	if err != nil {
		return decimal.Zero, connector.NewLogic("balance_of", err)
	}
	return fromWei(vals[0].(*big.Int), dec), nil
}

func (c *Client) CheckAllowance(ctx context.Context, wallet, token string) (decimal.Decimal, error) {
	owner, err := c.walletAddress(wallet)
	if err != nil {
		return decimal.Zero, err
	}
	addr, err := c.tokenAddress(token)
	if err != nil {
		return decimal.Zero, err
	}
	dec, err := c.tokenDecimals(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}

	data, err := c.erc20.Pack("allowance", owner, c.router)
	if err != nil {
		return decimal.Zero, connector.NewLogic("allowance", err)
	}
	out, err := c.call(ctx, "allowance", addr, data)
	if err != nil {
		return decimal.Zero, err
	}
	vals, err := c.erc20.Unpack("allowance", out)
	if err != nil {
		return decimal.Zero, connector.NewLogic("allowance", err)
	}
	return fromWei(vals[0].(*big.Int), dec), nil
}

// SubmitSwap executes swapExactTokensForTokens for the given params and
// waits for the transaction to mine. The minimum output is bounded by the
// slippage tolerance against the current quote.
func (c *Client) SubmitSwap(ctx context.Context, wallet string, params connector.SwapParams) (*models.Receipt, error) {
	key, ok := c.keys[wallet]
	if !ok {
		return nil, connector.NewValidation("submit_swap", fmt.Errorf("unknown wallet %q", wallet))
	}
	owner := c.addr[wallet]

	spend, receive := params.Base, params.Quote
	if params.Side == models.SideBuy {
		spend, receive = params.Quote, params.Base
	}
	spendAddr, err := c.tokenAddress(spend)
	if err != nil {
		return nil, err
	}
	receiveAddr, err := c.tokenAddress(receive)
	if err != nil {
		return nil, err
	}
	spendDec, err := c.tokenDecimals(ctx, spend)
	if err != nil {
		return nil, err
	}
	receiveDec, err := c.tokenDecimals(ctx, receive)
	if err != nil {
		return nil, err
	}

	amountIn := toWei(quantize(params.Amount, spendDec), spendDec)
	if amountIn.Sign() <= 0 {
		return nil, connector.NewValidation("submit_swap",
			fmt.Errorf("amount %s rounds to zero at %d decimals", params.Amount, spendDec))
	}

	path := []common.Address{spendAddr, receiveAddr}
	amounts, err := c.amountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}
	minOut := applySlippage(amounts[len(amounts)-1], params.SlippageBps)

	deadlineSeconds := params.DeadlineSeconds
	if deadlineSeconds <= 0 {
		deadlineSeconds = defaultDeadlineSeconds
		if params.UseMEVProtection {
			deadlineSeconds = mevDeadlineSeconds
		}
	}
	deadline := big.NewInt(time.Now().Unix() + int64(deadlineSeconds))

	data, err := c.rabi.Pack("swapExactTokensForTokens", amountIn, minOut, path, owner, deadline)
	if err != nil {
		return nil, connector.NewLogic("submit_swap", err)
	}

	if err := c.gate.Wait(ctx); err != nil {
		return nil, connector.NewNetwork("submit_swap", err)
	}
	nonce, err := c.eth.PendingNonceAt(ctx, owner)
	if err != nil {
		return nil, connector.Classify("pending_nonce", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, connector.Classify("suggest_gas_price", err)
	}
	if params.UseMEVProtection {
		gasPrice = mulRat(gasPrice, mevGasPremium)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.router,
		Gas:      defaultGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, c.signer, key)
	if err != nil {
		return nil, connector.NewLogic("sign_tx", err)
	}

	logger.RecordRPCCall("send_transaction")
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, connector.Classify("send_transaction", err)
	}

	c.log.WithComponent("pancake").WithFields(logger.Fields{
		"tx_hash": signed.Hash().Hex(),
		"spend":   spend,
		"receive": receive,
	}).Info("swap submitted, waiting for inclusion")

	mined, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return nil, connector.Classify("wait_mined", err)
	}
	if mined.Status != types.ReceiptStatusSuccessful {
		return nil, connector.NewLogic("submit_swap",
			fmt.Errorf("transaction reverted: %s", signed.Hash().Hex()))
	}

	return &models.Receipt{
		ID:          uuid.NewString(),
		TxHash:      signed.Hash().Hex(),
		ExplorerURL: c.cfg.ExplorerURL + signed.Hash().Hex(),
		AmountOut:   fromWei(amounts[len(amounts)-1], receiveDec),
		GasUsed:     mined.GasUsed,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// quantize truncates an amount to the token's decimal precision.
func quantize(amount decimal.Decimal, decimals uint8) decimal.Decimal {
	return amount.Truncate(int32(decimals))
}

// toWei converts a token amount to its integer representation.
func toWei(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}

// fromWei converts an integer token amount back to a decimal.
func fromWei(amount *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(amount, 0).Shift(-int32(decimals))
}

// applySlippage bounds an expected output: out * (10000 - bps) / 10000.
func applySlippage(out *big.Int, bps int) *big.Int {
	if bps <= 0 {
		return new(big.Int).Set(out)
	}
	bounded := new(big.Int).Mul(out, big.NewInt(int64(10000-bps)))
	return bounded.Div(bounded, big.NewInt(10000))
}

func mulRat(v *big.Int, r *big.Rat) *big.Int {
	out := new(big.Int).Mul(v, r.Num())
	return out.Div(out, r.Denom())
}
