package scriptpool

import (
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// TenantToken is a verified caller identity, parsed from a JWT the
// embedding host already obtained and handed to this in-process caller —
// this package never fetches, issues, or validates tokens over a network
// (spec.md §1 Non-goals: no network surface for the core). It exists purely
// as a local quota key for SubmitSourceAs (SPEC_FULL.md §10 supplemented
// feature).
type TenantToken struct {
	Claim string
}

// ParseTenantToken verifies tokenString with secret and extracts its
// "tenant" claim as a quota key.
func ParseTenantToken(tokenString string, secret []byte) (TenantToken, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return TenantToken{}, fmt.Errorf("scriptpool: invalid tenant token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return TenantToken{}, fmt.Errorf("scriptpool: invalid tenant token claims")
	}

	tenant, _ := claims["tenant"].(string)
	if tenant == "" {
		return TenantToken{}, fmt.Errorf("scriptpool: tenant token missing \"tenant\" claim")
	}

	return TenantToken{Claim: tenant}, nil
}

// tenantQuota tracks per-tenant in-flight context counts so one tenant
// can't starve the pool's shared capacity.
type tenantQuota struct {
	mu          sync.Mutex
	maxInFlight int
	inFlight    map[string]int
}

func newTenantQuota(maxInFlight int) *tenantQuota {
	return &tenantQuota{maxInFlight: maxInFlight, inFlight: make(map[string]int)}
}

func (q *tenantQuota) tryAcquire(tenant string) bool {
	if q.maxInFlight <= 0 {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight[tenant] >= q.maxInFlight {
		return false
	}
	q.inFlight[tenant]++
	return true
}

func (q *tenantQuota) release(tenant string) {
	if q.maxInFlight <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight[tenant] > 0 {
		q.inFlight[tenant]--
	}
}
