package sources

// onchain.go: source de fills on-chain para Polymarket.
//
// Escanea eventos OrderFilled del CTF Exchange en Polygon por rango de
// bloques. Es el pipeline de mayor prioridad: lo que dice la chain, pasó.
//
// Los asset IDs del exchange son token IDs de posición ERC-1155, no
// condition IDs. Un registro de tokens (construido con metadata de mercado
// del CLOB) los mapea a (condition, outcome); los tokens desconocidos se
// emiten con el token ID crudo en el campo condition, y el normalizador los
// cuenta y excluye como placeholder en vez de hacer join con una key basura.

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const (
	// Contratos del exchange que emiten OrderFilled
	normalExchange  = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"

	// USDC tiene 6 decimales; los conditional tokens también.
	collateralDecimals = 6

	blockChunk      = 50_000
	onchainAttempts = 3
	onchainBackoff  = 2 * time.Second
)

var (
	exchangeABI    abi.ABI
	orderFilledSig common.Hash
)

func init() {
	var err error
	exchangeABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "OrderFilled",
			"type": "event",
			"inputs": [
				{"name": "orderHash", "type": "bytes32", "indexed": true},
				{"name": "maker", "type": "address", "indexed": true},
				{"name": "taker", "type": "address", "indexed": true},
				{"name": "makerAssetId", "type": "uint256", "indexed": false},
				{"name": "takerAssetId", "type": "uint256", "indexed": false},
				{"name": "makerAmountFilled", "type": "uint256", "indexed": false},
				{"name": "takerAmountFilled", "type": "uint256", "indexed": false},
				{"name": "fee", "type": "uint256", "indexed": false}
			]
		}
	]`))
	if err != nil {
		panic("exchange abi parse: " + err.Error())
	}
	orderFilledSig = exchangeABI.Events["OrderFilled"].ID
}

// TokenInfo mapea un token de posición ERC-1155 a sus coordenadas de mercado.
type TokenInfo struct {
	ConditionID  string
	OutcomeIndex int
}

// OnChainSource implementa ports.TradeSource escaneando eventos del exchange.
type OnChainSource struct {
	client     *ethclient.Client
	exchanges  []common.Address
	startBlock uint64

	mu         sync.RWMutex
	registry   map[string]TokenInfo // token id decimal en string → info
	blockTimes map[uint64]time.Time
}

// NewOnChainSource conecta al RPC de Polygon dado. startBlock es donde
// empieza a escanear una wallet sin checkpoint (en la práctica, el bloque de
// deploy del exchange).
func NewOnChainSource(rpcURL string, startBlock uint64) (*OnChainSource, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain: dial rpc %s: %w", rpcURL, err)
	}
	return &OnChainSource{
		client: client,
		exchanges: []common.Address{
			common.HexToAddress(normalExchange),
			common.HexToAddress(negRiskExchange),
		},
		startBlock: startBlock,
		registry:   make(map[string]TokenInfo),
		blockTimes: make(map[uint64]time.Time),
	}, nil
}

func (s *OnChainSource) Name() string          { return "onchain" }
func (s *OnChainSource) Source() domain.Source { return domain.SourceOnChain }

// RegisterToken registra las coordenadas de mercado de un token de posición.
func (s *OnChainSource) RegisterToken(tokenID string, info TokenInfo) {
	s.mu.Lock()
	s.registry[tokenID] = info
	s.mu.Unlock()
}

// FetchWalletRecords escanea logs OrderFilled donde la wallet es maker o
// taker, desde el bloque del checkpoint hasta el head actual, en chunks
// acotados.
func (s *OnChainSource) FetchWalletRecords(ctx context.Context, wallet string, cursor string) ([]domain.RawRecord, string, error) {
	from := s.startBlock
	if b := parseBlockCursor(cursor); b > 0 {
		from = b + 1
	}

	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, cursor, fmt.Errorf("onchain.FetchWalletRecords: head: %w", err)
	}
	if from > head {
		return nil, cursor, nil
	}

	walletTopic := common.HexToHash(common.HexToAddress(wallet).Hex())
	var all []domain.RawRecord

	for chunkFrom := from; chunkFrom <= head; chunkFrom += blockChunk {
		chunkTo := chunkFrom + blockChunk - 1
		if chunkTo > head {
			chunkTo = head
		}

		logs, err := s.filterChunk(ctx, walletTopic, chunkFrom, chunkTo)
		if err != nil {
			// Devuelve el progreso hecho hasta ahora; el cursor permite a
			// la próxima run reanudar en el chunk fallido.
			if chunkFrom > from {
				return all, fmt.Sprintf("block=%d", chunkFrom-1), fmt.Errorf("onchain.FetchWalletRecords: %w", err)
			}
			return nil, cursor, fmt.Errorf("onchain.FetchWalletRecords: %w", err)
		}

		for _, lg := range logs {
			rec, ok := s.mapOrderFilled(lg, wallet)
			if ok {
				rec.Timestamp = s.blockTime(ctx, lg.BlockNumber)
				all = append(all, rec)
			}
		}

		slog.Debug("onchain: scanned chunk",
			"wallet", wallet, "from", chunkFrom, "to", chunkTo, "fills", len(all))
	}

	return all, fmt.Sprintf("block=%d", head), nil
}

// filterChunk consulta logs OrderFilled con la wallet como maker y luego
// como taker, reintentando fallos transitorios del RPC con backoff.
func (s *OnChainSource) filterChunk(ctx context.Context, wallet common.Hash, from, to uint64) ([]types.Log, error) {
	queries := []ethereum.FilterQuery{
		{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: s.exchanges,
			Topics:    [][]common.Hash{{orderFilledSig}, nil, {wallet}},
		},
		{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: s.exchanges,
			Topics:    [][]common.Hash{{orderFilledSig}, nil, nil, {wallet}},
		},
	}

	var all []types.Log
	for _, q := range queries {
		logs, err := s.filterWithRetry(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, logs...)
	}
	return all, nil
}

func (s *OnChainSource) filterWithRetry(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var lastErr error
	for attempt := 0; attempt < onchainAttempts; attempt++ {
		logs, err := s.client.FilterLogs(ctx, q)
		if err == nil {
			return logs, nil
		}
		lastErr = err
		select {
		case <-time.After(time.Duration(attempt+1) * onchainBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("filter logs after %d attempts: %v: %w", onchainAttempts, lastErr, domain.ErrExternalFetch)
}

// mapOrderFilled decodifica un log OrderFilled en un registro crudo desde
// la perspectiva de la wallet. El asset id 0 es colateral: un maker que paga
// colateral compra tokens, un maker que paga tokens los vende.
func (s *OnChainSource) mapOrderFilled(lg types.Log, wallet string) (domain.RawRecord, bool) {
	if len(lg.Topics) < 4 {
		return domain.RawRecord{}, false
	}

	var ev struct {
		MakerAssetId      *big.Int
		TakerAssetId      *big.Int
		MakerAmountFilled *big.Int
		TakerAmountFilled *big.Int
		Fee               *big.Int
	}
	if err := exchangeABI.UnpackIntoInterface(&ev, "OrderFilled", lg.Data); err != nil {
		slog.Warn("onchain: undecodable OrderFilled", "tx", lg.TxHash.Hex(), "err", err)
		return domain.RawRecord{}, false
	}

	maker := common.BytesToAddress(lg.Topics[2].Bytes())
	walletAddr := common.HexToAddress(wallet)
	isMaker := maker == walletAddr

	// Las patas pagada/recibida de la wallet dependen de su lado.
	paidAsset, paidAmount := ev.MakerAssetId, ev.MakerAmountFilled
	recvAsset, recvAmount := ev.TakerAssetId, ev.TakerAmountFilled
	if !isMaker {
		paidAsset, paidAmount = ev.TakerAssetId, ev.TakerAmountFilled
		recvAsset, recvAmount = ev.MakerAssetId, ev.MakerAmountFilled
	}

	var side domain.TradeSide
	var tokenID *big.Int
	var shares, cash decimal.Decimal

	switch {
	case paidAsset.Sign() == 0: // pagó colateral, recibió tokens
		side = domain.SideBuy
		tokenID = recvAsset
		shares = decimal.NewFromBigInt(recvAmount, -collateralDecimals)
		cash = decimal.NewFromBigInt(paidAmount, -collateralDecimals)
	case recvAsset.Sign() == 0: // pagó tokens, recibió colateral
		side = domain.SideSell
		tokenID = paidAsset
		shares = decimal.NewFromBigInt(paidAmount, -collateralDecimals)
		cash = decimal.NewFromBigInt(recvAmount, -collateralDecimals)
	default:
		// Los fills token-por-token no llevan pata en USD; se omiten.
		return domain.RawRecord{}, false
	}

	if shares.IsZero() {
		return domain.RawRecord{}, false
	}
	price := cash.Div(shares)

	conditionID, outcome := s.lookupToken(tokenID)

	return domain.RawRecord{
		TxID:         lg.TxHash.Hex(),
		Wallet:       wallet,
		ConditionID:  conditionID,
		OutcomeIndex: outcome,
		Side:         side,
		Shares:       shares,
		Price:        price,
		Source:       domain.SourceOnChain,
	}, true
}

// lookupToken resuelve un token de posición a coordenadas de mercado. Los
// tokens desconocidos pasan el token id crudo como campo condition; la
// normalización aguas abajo lo clasifica y cuenta en vez de que este
// adapter adivine.
func (s *OnChainSource) lookupToken(tokenID *big.Int) (string, int) {
	key := tokenID.String()
	s.mu.RLock()
	info, ok := s.registry[key]
	s.mu.RUnlock()
	if ok {
		return info.ConditionID, info.OutcomeIndex
	}
	return tokenID.Text(16), 0
}

// blockTime resuelve un número de bloque a su timestamp, con cache por
// source. Si falla el fetch del header, el registro queda con timestamp cero
// en vez de fallar todo el chunk.
func (s *OnChainSource) blockTime(ctx context.Context, number uint64) time.Time {
	s.mu.RLock()
	t, ok := s.blockTimes[number]
	s.mu.RUnlock()
	if ok {
		return t
	}

	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		slog.Debug("onchain: header fetch failed", "block", number, "err", err)
		return time.Time{}
	}
	t = time.Unix(int64(header.Time), 0).UTC()

	s.mu.Lock()
	s.blockTimes[number] = t
	s.mu.Unlock()
	return t
}

func parseBlockCursor(cursor string) uint64 {
	var block uint64
	if _, err := fmt.Sscanf(cursor, "block=%d", &block); err != nil {
		return 0
	}
	return block
}
