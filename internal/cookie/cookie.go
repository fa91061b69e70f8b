// Package cookie mints short, URL-safe, unique job identifiers.
package cookie

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// bodyAlphabet is [0-9a-zA-Z] with the leading two digits ('0', '1')
// removed, so that a generated id never looks like it starts counting
// from zero and stays unambiguous when read aloud.
const bodyAlphabet = "23456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// leadAlphabet holds only letters: an id's first rune must never be a
// digit, so a cookie can always be told apart from a bare numeric id.
const leadAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// IsLiveFunc reports whether a candidate cookie already names a live job.
type IsLiveFunc func(cookie string) bool

// Minter generates cookies from the current wall-clock time plus a
// monotonic submission counter, so two cookies minted in the same second
// still differ. Safe for concurrent use.
type Minter struct {
	mu    sync.Mutex
	count uint64
	now   func() time.Time
}

// New returns a ready-to-use Minter.
func New() *Minter {
	return &Minter{now: time.Now}
}

// Mint returns preferred verbatim if it is non-empty and not live.
// Otherwise it generates a fresh cookie, regenerating on collision
// against isLive, and never returns an id equal to any live cookie.
func (m *Minter) Mint(preferred string, isLive IsLiveFunc) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if preferred != "" && (isLive == nil || !isLive(preferred)) {
		return preferred
	}

	for {
		m.count++
		candidate := m.generate(m.count)
		if isLive == nil || !isLive(candidate) {
			return candidate
		}
	}
}

func (m *Minter) generate(count uint64) string {
	ts := m.now().UTC().Format("20060102150405")
	raw := fmt.Sprintf("%s%06d", ts, count%1000000)

	n := new(big.Int)
	n.SetString(raw, 10)

	base := big.NewInt(int64(len(bodyAlphabet)))
	leadBase := big.NewInt(int64(len(leadAlphabet)))

	leadIdx := new(big.Int).Mod(n, leadBase)
	lead := leadAlphabet[leadIdx.Int64()]

	body := encode(n, base, bodyAlphabet)
	return string(lead) + body
}

func encode(n, base *big.Int, alphabet string) string {
	if n.Sign() == 0 {
		return string(alphabet[0])
	}
	n = new(big.Int).Set(n)
	mod := new(big.Int)
	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, alphabet[mod.Int64()])
	}
	// reverse
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
