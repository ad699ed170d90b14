// Package hasher hashes and verifies account passwords.
//
// New hashes are argon2id in PHC string format. Stored bcrypt hashes from
// accounts imported from the previous stack still verify, and NeedsRehash
// reports them so callers can upgrade on the next successful login.
package hasher

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	saltLen = 16
	keyLen  = 32

	argon2Prefix = "$argon2id$"

	// A stored hash may cost at most this many times the configured memory
	// and iterations. Anything above is refused without being computed.
	maxCostFactor = 4
)

var (
	ErrEmptyPassword = oops.Code("HASH_EMPTY_PASSWORD").Errorf("password cannot be empty")
	errInvalidHash   = oops.Code("HASH_INVALID").Errorf("invalid hash format")
)

// Params are the argon2id cost parameters used for new hashes.
type Params struct {
	MemoryKB   uint32
	Iterations uint32
	Threads    uint8
}

func DefaultParams() Params {
	return Params{
		MemoryKB:   64 * 1024,
		Iterations: 1,
		Threads:    4,
	}
}

type Hasher struct {
	params Params
}

func New(params Params) *Hasher {
	defaults := DefaultParams()
	if params.MemoryKB == 0 {
		params.MemoryKB = defaults.MemoryKB
	}
	if params.Iterations == 0 {
		params.Iterations = defaults.Iterations
	}
	if params.Threads == 0 {
		params.Threads = defaults.Threads
	}
	return &Hasher{params: params}
}

func (h *Hasher) Params() Params {
	return h.params
}

// Hash produces an argon2id hash encoded as
// $argon2id$v=19$m=<memory>,t=<iterations>,p=<threads>$<salt>$<key>.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("HASH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKB, h.params.Threads, keyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKB,
		h.params.Iterations,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches hashed. Malformed or unsupported
// hashes never match.
func (h *Hasher) Verify(hashed, password string) bool {
	if isBcrypt(hashed) {
		return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
	}

	decoded, err := decode(hashed)
	if err != nil || !h.affordable(decoded.params) {
		return false
	}

	computed := argon2.IDKey([]byte(password), decoded.salt, decoded.params.Iterations, decoded.params.MemoryKB, decoded.params.Threads, uint32(len(decoded.key)))
	return subtle.ConstantTimeCompare(computed, decoded.key) == 1
}

// NeedsRehash is true for non-argon2id hashes and for argon2id hashes
// created with weaker parameters than the current ones.
func (h *Hasher) NeedsRehash(hashed string) bool {
	decoded, err := decode(hashed)
	if err != nil {
		return true
	}
	p := decoded.params
	return p.MemoryKB < h.params.MemoryKB ||
		p.Iterations < h.params.Iterations ||
		p.Threads < h.params.Threads ||
		len(decoded.key) < keyLen
}

func (h *Hasher) affordable(p Params) bool {
	return uint64(p.MemoryKB) <= maxCostFactor*uint64(h.params.MemoryKB) &&
		uint64(p.Iterations) <= maxCostFactor*uint64(h.params.Iterations)
}

type decodedHash struct {
	params Params
	salt   []byte
	key    []byte
}

func decode(hashed string) (*decodedHash, error) {
	if !strings.HasPrefix(hashed, argon2Prefix) {
		return nil, errInvalidHash
	}

	parts := strings.Split(hashed, "$")
	if len(parts) != 6 {
		return nil, errInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, oops.Code("HASH_INVALID").Wrap(err)
	}
	if version != argon2.Version {
		return nil, oops.Code("HASH_INVALID").Errorf("unsupported argon2 version %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return nil, oops.Code("HASH_INVALID").Wrap(err)
	}
	if threads == 0 || threads > 255 || iterations == 0 || memory == 0 {
		return nil, oops.Code("HASH_INVALID").Errorf("invalid argon2 parameters m=%d,t=%d,p=%d", memory, iterations, threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, oops.Code("HASH_INVALID").Wrap(err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, oops.Code("HASH_INVALID").Wrap(err)
	}
	if len(key) == 0 || len(key) > 1024 {
		return nil, oops.Code("HASH_INVALID").Errorf("invalid key length %d", len(key))
	}

	return &decodedHash{
		params: Params{MemoryKB: memory, Iterations: iterations, Threads: uint8(threads)},
		salt:   salt,
		key:    key,
	}, nil
}

func isBcrypt(hashed string) bool {
	return strings.HasPrefix(hashed, "$2a$") ||
		strings.HasPrefix(hashed, "$2b$") ||
		strings.HasPrefix(hashed, "$2y$")
}
