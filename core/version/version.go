// Package version records the name and semantic version of each module in
// state and guards migrations against downgrades and foreign state.
package version

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"whalehub/core/state"
)

var (
	// ErrContractNameMismatch is returned when the stored module name differs
	// from the module being migrated.
	ErrContractNameMismatch = errors.New("version: contract name mismatch")
	// ErrInvalidSemver is returned for malformed version strings.
	ErrInvalidSemver = errors.New("version: invalid semantic version")
	// ErrNotSet is returned when no version has been recorded.
	ErrNotSet = errors.New("version: contract version not set")
)

// MigrateInvalidVersionError reports an attempt to migrate to a version that
// is not newer than the stored one.
type MigrateInvalidVersionError struct {
	NewVersion     string
	CurrentVersion string
}

func (e *MigrateInvalidVersionError) Error() string {
	return fmt.Sprintf("version: attempt to migrate to version %s, but contract is on a higher version %s", e.NewVersion, e.CurrentVersion)
}

// ContractVersion identifies the code that owns a module's state.
type ContractVersion struct {
	Contract string
	Version  string
}

type kv interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

func versionKey(module string) []byte { return state.Key("version", module) }

func canonical(v string) (string, error) {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSemver, v)
	}
	return v, nil
}

// Set records the contract name and version of module.
func Set(store kv, module string, cv ContractVersion) error {
	if _, err := canonical(cv.Version); err != nil {
		return err
	}
	return store.KVPut(versionKey(module), &cv)
}

// Get returns the recorded contract version of module.
func Get(store kv, module string) (ContractVersion, error) {
	var cv ContractVersion
	ok, err := store.KVGet(versionKey(module), &cv)
	if err != nil {
		return ContractVersion{}, err
	}
	if !ok {
		return ContractVersion{}, ErrNotSet
	}
	return cv, nil
}

// Migrate validates that next may replace the stored version of module and
// records it. The stored name must match and the stored version must be
// strictly lower.
func Migrate(store kv, module string, next ContractVersion) error {
	current, err := Get(store, module)
	if err != nil {
		return err
	}
	if current.Contract != next.Contract {
		return fmt.Errorf("%w: stored %q, got %q", ErrContractNameMismatch, current.Contract, next.Contract)
	}
	stored, err := canonical(current.Version)
	if err != nil {
		return err
	}
	incoming, err := canonical(next.Version)
	if err != nil {
		return err
	}
	if semver.Compare(stored, incoming) >= 0 {
		return &MigrateInvalidVersionError{NewVersion: next.Version, CurrentVersion: current.Version}
	}
	return Set(store, module, next)
}
