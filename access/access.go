// Package access is the capability gate consulted before every mutating
// operation. Grants map an account to a set of named capabilities.
package access

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnauthorized is returned when the caller lacks the required capability.
var ErrUnauthorized = errors.New("caller lacks required capability")

// Capability is a named permission grantable to an account.
type Capability string

const (
	CapabilityAdmin              Capability = "ADMIN"
	CapabilityValidatorManager   Capability = "VALIDATOR_MANAGER"
	CapabilityStakingNodeCreator Capability = "STAKING_NODE_CREATOR"
	CapabilityStakingNodesAdmin  Capability = "STAKING_NODES_ADMIN"
	CapabilityDelegator          Capability = "STAKING_NODES_DELEGATOR"
	CapabilityPauser             Capability = "PAUSER"
)

// Controller answers capability checks. It is injected into every component
// that gates operations, so tests can swap in a fake.
type Controller interface {
	HasCapability(account common.Address, capability Capability) bool
}
