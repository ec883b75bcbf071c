// internal/domain/types.go
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Protocol is a lending/AMM protocol tag.
type Protocol string

const (
	ProtocolAave     Protocol = "aave"
	ProtocolCurve    Protocol = "curve"
	ProtocolCompound Protocol = "compound"
)

// Chain is an EVM network tag.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
	ChainArbitrum Chain = "arbitrum"
	ChainBase     Chain = "base"
	ChainOptimism Chain = "optimism"
)

// Asset is a token symbol from the whitelisted set.
type Asset string

const (
	AssetUSDC Asset = "USDC"
	AssetUSDT Asset = "USDT"
	AssetDAI  Asset = "DAI"
)

// Provenance tells whether data came from a live source or a static fallback.
type Provenance string

const (
	SourceLive     Provenance = "live"
	SourceFallback Provenance = "fallback"
	SourceEstimate Provenance = "estimate"
)

// AllChains lists every known chain in display order.
var AllChains = []Chain{ChainEthereum, ChainPolygon, ChainArbitrum, ChainBase, ChainOptimism}

// AllAssets lists the whitelisted assets.
var AllAssets = []Asset{AssetUSDC, AssetUSDT, AssetDAI}

var chainIDs = map[Chain]int64{
	ChainEthereum: 1,
	ChainPolygon:  137,
	ChainArbitrum: 42161,
	ChainBase:     8453,
	ChainOptimism: 10,
}

var nativeSymbols = map[Chain]string{
	ChainEthereum: "ETH",
	ChainPolygon:  "MATIC",
	ChainArbitrum: "ETH",
	ChainBase:     "ETH",
	ChainOptimism: "ETH",
}

var assetDecimals = map[Asset]int32{
	AssetUSDC: 6,
	AssetUSDT: 6,
	AssetDAI:  18,
}

// ID returns the EVM chain id, or 0 for an unknown chain.
func (c Chain) ID() int64 {
	return chainIDs[c]
}

// NativeSymbol returns the gas token symbol of the chain.
func (c Chain) NativeSymbol() string {
	return nativeSymbols[c]
}

// Valid reports whether the chain is known.
func (c Chain) Valid() bool {
	_, ok := chainIDs[c]
	return ok
}

// Decimals returns the token decimals of the asset (18 when unknown).
func (a Asset) Decimals() int32 {
	if d, ok := assetDecimals[a]; ok {
		return d
	}
	return 18
}

// Valid reports whether the asset is whitelisted.
func (a Asset) Valid() bool {
	_, ok := assetDecimals[a]
	return ok
}

// ParseChain accepts a chain name ("polygon") or a numeric chain id ("137").
func ParseChain(s string) (Chain, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		for chain, cid := range chainIDs {
			if cid == id {
				return chain, nil
			}
		}
		return "", &UnsupportedChainError{Chain: Chain(s)}
	}
	switch s {
	case "mainnet", "eth":
		s = string(ChainEthereum)
	case "matic":
		s = string(ChainPolygon)
	}
	c := Chain(s)
	if !c.Valid() {
		return "", &UnsupportedChainError{Chain: c}
	}
	return c, nil
}

// ParseAsset normalizes a symbol into a whitelisted asset.
func ParseAsset(s string) (Asset, error) {
	a := Asset(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", &UnsupportedAssetError{Asset: a}
	}
	return a, nil
}

// ParseProtocol normalizes a protocol tag.
func ParseProtocol(s string) (Protocol, error) {
	p := Protocol(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProtocolAave, ProtocolCurve, ProtocolCompound:
		return p, nil
	default:
		return "", fmt.Errorf("unknown protocol: %q", s)
	}
}
