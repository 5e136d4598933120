package ballots

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// CodeHash identifies a version of the logic running against the store.
type CodeHash [32]byte

// ParseCodeHash reads a 32-byte hex hash, with or without a 0x prefix.
func ParseCodeHash(s string) (CodeHash, error) {
	var hash CodeHash
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return hash, fmt.Errorf("invalid code hash %q: %w", s, err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("invalid code hash %q: want %d bytes, got %d", s, len(hash), len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

func (h CodeHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h CodeHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *CodeHash) UnmarshalText(text []byte) error {
	parsed, err := ParseCodeHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// CodeHost is the environment that accepts or refuses a switch to new logic.
type CodeHost interface {
	SetCodeHash(ctx context.Context, hash CodeHash) error
}

// ErrUnknownCode is returned by CodeRegistry for hashes it was never told about.
var ErrUnknownCode = errors.New("code hash not registered")

// CodeRegistry is a CodeHost that only accepts hashes registered with it.
type CodeRegistry struct {
	mu    sync.RWMutex
	known map[CodeHash]bool
}

// NewCodeRegistry returns a registry that accepts hashes.
func NewCodeRegistry(hashes ...CodeHash) *CodeRegistry {
	registry := &CodeRegistry{known: make(map[CodeHash]bool)}
	for _, hash := range hashes {
		registry.known[hash] = true
	}
	return registry
}

// Register adds hash to the accepted set.
func (r *CodeRegistry) Register(hash CodeHash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[hash] = true
}

// SetCodeHash accepts hash only if it was registered, and fails with ErrUnknownCode otherwise.
func (r *CodeRegistry) SetCodeHash(ctx context.Context, hash CodeHash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.known[hash] {
		return fmt.Errorf("%w: %s", ErrUnknownCode, hash)
	}
	return nil
}

// SwitchCode asks host to run hash. Stores call it before their own write
// becomes visible, so a refusal leaves them unchanged.
func SwitchCode(ctx context.Context, host CodeHost, hash CodeHash) error {
	if host == nil {
		return MigrationRejected(hash, errors.New("no code host configured"))
	}
	if err := host.SetCodeHash(ctx, hash); err != nil {
		return MigrationRejected(hash, err)
	}
	return nil
}
