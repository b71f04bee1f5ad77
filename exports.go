package tally

import (
	"github.com/xraph/tally/netting"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/settlement"
	"github.com/xraph/tally/simplify"
	"github.com/xraph/tally/types"
)

// Re-export common types for convenience so users don't have to import the
// subpackages for everyday calls.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Scope is re-exported from scope package.
type Scope = scope.Scope

// Balances is re-exported from netting package.
type Balances = netting.Balances

// Transfer is re-exported from simplify package.
type Transfer = simplify.Transfer

// Plan is re-exported from simplify package.
type Plan = simplify.Plan

// SettlementRequest is re-exported from settlement package.
type SettlementRequest = settlement.Request

// SettlementResult is re-exported from settlement package.
type SettlementResult = settlement.Result

// Re-export Money constructors
var (
	NewMoney  = types.New
	ZeroMoney = types.Zero
)

// Re-export scope constructors
var (
	PersonalScope = scope.Personal
	GroupScope    = scope.Group
)
