package contract

import (
	"sync"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
)

// Implementation records which contract an implementing type serves. Embed it
// in handler types; binding the same value to a second contract fails.
type Implementation struct {
	mu       sync.Mutex
	contract Descriptor
}

// BindContract attaches c. Rebinding the same contract is a no-op.
func (i *Implementation) BindContract(c Descriptor) error {
	if c == nil {
		return errspkg.ErrComponentRequired
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.contract == nil {
		i.contract = c
		return nil
	}
	if i.contract == c {
		return nil
	}
	return &errspkg.DuplicateContractError{Existing: i.contract.Name(), Incoming: c.Name()}
}

// Contract returns the bound contract, nil when unbound.
func (i *Implementation) Contract() Descriptor {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.contract
}
