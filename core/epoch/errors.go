package epoch

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized              = errors.New("epoch: unauthorized")
	ErrNonPayable                = errors.New("epoch: this message does not accept funds")
	ErrEpochOverflow             = errors.New("epoch: the epoch id has overflowed")
	ErrCurrentEpochNotExpired    = errors.New("epoch: the current epoch has not expired yet")
	ErrGenesisEpochHasNotStarted = errors.New("epoch: the genesis epoch has not started yet")
	ErrInvalidStartTime          = errors.New("epoch: start_time must be in the future")
	ErrEpochConfigMismatch       = errors.New("epoch: genesis_epoch must be equal to start_epoch.start_time")
	ErrHookAlreadyRegistered     = errors.New("epoch: given address already registered as a hook")
	ErrHookNotRegistered         = errors.New("epoch: given address not registered as a hook")
	ErrNoEpochs                  = errors.New("epoch: no epochs stored")
	ErrNotInstantiated           = errors.New("epoch: manager not instantiated")
	ErrAlreadyInstantiated       = errors.New("epoch: manager already instantiated")
	ErrNoEpochFound              = errors.New("epoch: no epoch found")
)

func noEpochFound(id uint64) error {
	return fmt.Errorf("%w with id %d", ErrNoEpochFound, id)
}
