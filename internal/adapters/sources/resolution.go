package sources

// resolution.go: sources de resolución de mercados.
//
// Dos implementaciones de ports.ResolutionSource:
//   - OnChainResolutionSource lee los payout vectors directo del contrato
//     CTF (la verdad de settlement).
//   - RESTResolutionSource los deriva de los winner flags del endpoint de
//     mercados del CLOB, para cuando no hay RPC configurado.
//
// Ambas devuelven el centinela sin resolver (denominador cero) para
// mercados abiertos: sin resolver es un estado, no un error.

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Contrato CTF: guarda los conditional tokens y el estado de settlement
const ctfAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

var ctfABI abi.ABI

func init() {
	var err error
	ctfABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "payoutDenominator",
			"type": "function",
			"inputs": [{"name": "", "type": "bytes32"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "payoutNumerators",
			"type": "function",
			"inputs": [{"name": "", "type": "bytes32"}, {"name": "", "type": "uint256"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "getOutcomeSlotCount",
			"type": "function",
			"inputs": [{"name": "conditionId", "type": "bytes32"}],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("ctf abi parse: " + err.Error())
	}
}

// OnChainResolutionSource lee el estado de settlement del contrato CTF.
type OnChainResolutionSource struct {
	client *ethclient.Client
	ctf    common.Address
}

func NewOnChainResolutionSource(rpcURL string) (*OnChainResolutionSource, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("resolution: dial rpc %s: %w", rpcURL, err)
	}
	return &OnChainResolutionSource{
		client: client,
		ctf:    common.HexToAddress(ctfAddress),
	}, nil
}

// FetchResolution lee el payout vector de un condition ID canónico.
func (s *OnChainResolutionSource) FetchResolution(ctx context.Context, conditionID string) (domain.Resolution, error) {
	res := domain.Resolution{ConditionID: conditionID, Source: domain.SourceOnChain}

	cond, err := conditionBytes32(conditionID)
	if err != nil {
		return res, fmt.Errorf("resolution.FetchResolution: %w", err)
	}

	denominator, err := s.callUint(ctx, "payoutDenominator", cond)
	if err != nil {
		return res, fmt.Errorf("resolution.FetchResolution: denominator: %w", err)
	}
	if denominator.Sign() == 0 {
		return res, nil // sin resolver
	}

	slots, err := s.callUint(ctx, "getOutcomeSlotCount", cond)
	if err != nil {
		return res, fmt.Errorf("resolution.FetchResolution: slot count: %w", err)
	}

	count := int(slots.Int64())
	numerators := make([]decimal.Decimal, 0, count)
	for i := 0; i < count; i++ {
		n, err := s.callUint(ctx, "payoutNumerators", cond, big.NewInt(int64(i)))
		if err != nil {
			return res, fmt.Errorf("resolution.FetchResolution: numerator %d: %w", i, err)
		}
		numerators = append(numerators, decimal.NewFromBigInt(n, 0))
	}

	res.PayoutNumerators = numerators
	res.PayoutDenominator = decimal.NewFromBigInt(denominator, 0)
	res.ResolvedAt = time.Now().UTC() // el contrato no expone la hora del evento en lecturas
	return res, nil
}

func (s *OnChainResolutionSource) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	callData, err := ctfABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	result, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &s.ctf, Data: callData}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := ctfABI.Unpack(method, result)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	out, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, vals[0])
	}
	return out, nil
}

// conditionBytes32 convierte un condition ID canónico de 64 hex a [32]byte.
func conditionBytes32(conditionID string) ([32]byte, error) {
	if !domain.IsCanonicalConditionID(conditionID) {
		return [32]byte{}, fmt.Errorf("condition id %q not canonical: %w", conditionID, domain.ErrUnresolvableID)
	}
	var arr [32]byte
	copy(arr[:], common.FromHex("0x"+conditionID))
	return arr, nil
}

// RESTResolutionSource deriva resoluciones del endpoint de mercados del
// CLOB. También cachea los token ids de cada mercado que toca, así que hace
// de token resolver para el feed de mark prices.
type RESTResolutionSource struct {
	client *httpClient

	mu     sync.Mutex
	tokens map[string][]string // condition id → token id por outcome index
}

func NewRESTResolutionSource(clobBase string) *RESTResolutionSource {
	return &RESTResolutionSource{
		client: newHTTPClient("", clobBase, ""),
		tokens: make(map[string][]string),
	}
}

type clobMarket struct {
	ConditionID string `json:"condition_id"`
	Closed      bool   `json:"closed"`
	EndDateISO  string `json:"end_date_iso"`
	Tokens      []struct {
		TokenID string      `json:"token_id"`
		Outcome string      `json:"outcome"`
		Price   json.Number `json:"price"`
		Winner  bool        `json:"winner"`
	} `json:"tokens"`
}

// FetchResolution construye un payout vector unitario con los winner flags
// del mercado. Un mercado sin ganador marcado aún está sin resolver.
func (s *RESTResolutionSource) FetchResolution(ctx context.Context, conditionID string) (domain.Resolution, error) {
	res := domain.Resolution{ConditionID: conditionID, Source: domain.SourceCLOB}

	url := fmt.Sprintf("%s/markets/0x%s", s.client.clobBase, conditionID)
	var m clobMarket
	if err := s.client.get(ctx, s.client.clobLimiter, url, &m); err != nil {
		return res, fmt.Errorf("resolution.FetchResolution: %w", err)
	}
	s.cacheTokens(conditionID, m)

	winner := -1
	for i, tok := range m.Tokens {
		if tok.Winner {
			winner = i
			break
		}
	}
	if winner < 0 {
		return res, nil // sin resolver
	}

	numerators := make([]decimal.Decimal, len(m.Tokens))
	numerators[winner] = decimal.NewFromInt(1)
	res.PayoutNumerators = numerators
	res.PayoutDenominator = decimal.NewFromInt(1)

	if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
		res.ResolvedAt = t.UTC()
	} else {
		res.ResolvedAt = time.Now().UTC()
	}
	return res, nil
}

// ResolveToken mapea (condition, outcome) al token id del CLOB, trayendo el
// mercado en cache miss. Satisface pricing.TokenResolver.
func (s *RESTResolutionSource) ResolveToken(conditionID string, outcomeIndex int) (string, bool) {
	s.mu.Lock()
	toks, ok := s.tokens[conditionID]
	s.mu.Unlock()

	if !ok {
		url := fmt.Sprintf("%s/markets/0x%s", s.client.clobBase, conditionID)
		var m clobMarket
		if err := s.client.get(context.Background(), s.client.clobLimiter, url, &m); err != nil {
			return "", false
		}
		s.cacheTokens(conditionID, m)

		s.mu.Lock()
		toks = s.tokens[conditionID]
		s.mu.Unlock()
	}

	if outcomeIndex < 0 || outcomeIndex >= len(toks) || toks[outcomeIndex] == "" {
		return "", false
	}
	return toks[outcomeIndex], true
}

func (s *RESTResolutionSource) cacheTokens(conditionID string, m clobMarket) {
	if len(m.Tokens) == 0 {
		return
	}
	ids := make([]string, len(m.Tokens))
	for i, tok := range m.Tokens {
		ids[i] = tok.TokenID
	}
	s.mu.Lock()
	s.tokens[conditionID] = ids
	s.mu.Unlock()
}
