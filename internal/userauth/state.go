package userauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"
)

// stateTtl bounds how long an issued state value remains redeemable: a user
// who has not completed the Twitch consent page within this window must
// restart the flow from /auth/init
const stateTtl = 15 * time.Minute

// stateBuffer records the anti-forgery state values we have issued and not
// yet seen echoed back. States are one-time use: a successful check consumes
// the matching value, so a replayed callback fails verification.
type stateBuffer struct {
	states []pendingState
	mu     sync.Mutex
	now    func() time.Time
}

type pendingState struct {
	value     string
	expiresAt time.Time
}

func newStateBuffer() *stateBuffer {
	return &stateBuffer{
		states: make([]pendingState, 0, 8),
		now:    time.Now,
	}
}

func (b *stateBuffer) generate() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	value := hex.EncodeToString(bytes)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.states = append(b.states, pendingState{
		value:     value,
		expiresAt: b.now().Add(stateTtl),
	})
	return value
}

func (b *stateBuffer) check(value string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	isValid := false
	retained := make([]pendingState, 0, 8)
	for _, state := range b.states {
		// Purge any state whose redemption window has closed
		if state.expiresAt.Before(b.now()) {
			continue
		}

		// A match consumes the state; the comparison is constant-time so
		// that response timing reveals nothing about issued values
		if subtle.ConstantTimeCompare([]byte(state.value), []byte(value)) == 1 {
			isValid = true
			continue
		}

		retained = append(retained, state)
	}
	b.states = retained

	return isValid
}
