package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKey_Deterministic(t *testing.T) {
	g := NewGenerator()

	params := map[string]interface{}{
		"subscription_id": "subs_01HXYZ",
		"period":          "2026-08",
	}

	first := g.GenerateKey(ScopeRenewal, params)
	second := g.GenerateKey(ScopeRenewal, params)
	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "renewal-"))
}

func TestGenerateKey_OrderIndependent(t *testing.T) {
	g := NewGenerator()

	a := g.GenerateKey(ScopeRenewal, map[string]interface{}{
		"subscription_id": "subs_01HXYZ",
		"period":          "2026-08",
	})
	b := g.GenerateKey(ScopeRenewal, map[string]interface{}{
		"period":          "2026-08",
		"subscription_id": "subs_01HXYZ",
	})
	assert.Equal(t, a, b)
}

func TestGenerateKey_VariesByScopeAndParams(t *testing.T) {
	g := NewGenerator()

	params := map[string]interface{}{
		"subscription_id": "subs_01HXYZ",
		"period":          "2026-08",
	}

	renewal := g.GenerateKey(ScopeRenewal, params)
	initial := g.GenerateKey(ScopeInitialCharge, params)
	assert.NotEqual(t, renewal, initial)

	nextPeriod := g.GenerateKey(ScopeRenewal, map[string]interface{}{
		"subscription_id": "subs_01HXYZ",
		"period":          "2026-09",
	})
	assert.NotEqual(t, renewal, nextPeriod)
}

func TestValidateKey(t *testing.T) {
	g := NewGenerator()

	params := map[string]interface{}{"subscription_id": "subs_01HXYZ", "period": "2026-08"}
	key := g.GenerateKey(ScopeRenewal, params)

	assert.True(t, g.ValidateKey(ScopeRenewal, params, key))
	assert.False(t, g.ValidateKey(ScopeInitialCharge, params, key))
	assert.False(t, g.ValidateKey(ScopeRenewal, params, "renewal-deadbeef"))
}
