// internal/movecost/gastable.go
package movecost

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// GasTable holds static gas-unit estimates per protocol action.
type GasTable struct {
	Withdraw        map[domain.Protocol]uint64 `yaml:"withdraw"`
	Deposit         map[domain.Protocol]uint64 `yaml:"deposit"`
	DefaultWithdraw uint64                     `yaml:"default_withdraw"`
	DefaultDeposit  uint64                     `yaml:"default_deposit"`
	// SameChainSwap prices a swap between assets on one chain without a quote call.
	SameChainSwap uint64 `yaml:"same_chain_swap"`
	// SameChainSwapMinutes is the time attributed to that swap.
	SameChainSwapMinutes int `yaml:"same_chain_swap_minutes"`
}

// DefaultGasTable returns the built-in estimates.
func DefaultGasTable() GasTable {
	return GasTable{
		Withdraw: map[domain.Protocol]uint64{
			domain.ProtocolAave:     150_000,
			domain.ProtocolCurve:    200_000,
			domain.ProtocolCompound: 120_000,
		},
		Deposit: map[domain.Protocol]uint64{
			domain.ProtocolAave:     120_000,
			domain.ProtocolCurve:    180_000,
			domain.ProtocolCompound: 100_000,
		},
		DefaultWithdraw:      150_000,
		DefaultDeposit:       150_000,
		SameChainSwap:        180_000,
		SameChainSwapMinutes: 1,
	}
}

// LoadGasTable reads YAML overrides from path on top of the defaults.
func LoadGasTable(path string) (GasTable, error) {
	table := DefaultGasTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return table, fmt.Errorf("read gas table: %w", err)
	}

	var overrides GasTable
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return table, fmt.Errorf("parse gas table %s: %w", path, err)
	}
	table.merge(overrides)
	return table, nil
}

func (t *GasTable) merge(o GasTable) {
	for p, units := range o.Withdraw {
		t.Withdraw[p] = units
	}
	for p, units := range o.Deposit {
		t.Deposit[p] = units
	}
	if o.DefaultWithdraw > 0 {
		t.DefaultWithdraw = o.DefaultWithdraw
	}
	if o.DefaultDeposit > 0 {
		t.DefaultDeposit = o.DefaultDeposit
	}
	if o.SameChainSwap > 0 {
		t.SameChainSwap = o.SameChainSwap
	}
	if o.SameChainSwapMinutes > 0 {
		t.SameChainSwapMinutes = o.SameChainSwapMinutes
	}
}

// WithdrawUnits returns the withdraw estimate for protocol.
func (t GasTable) WithdrawUnits(p domain.Protocol) uint64 {
	if units, ok := t.Withdraw[p]; ok {
		return units
	}
	return t.DefaultWithdraw
}

// DepositUnits returns the deposit estimate for protocol.
func (t GasTable) DepositUnits(p domain.Protocol) uint64 {
	if units, ok := t.Deposit[p]; ok {
		return units
	}
	return t.DefaultDeposit
}
