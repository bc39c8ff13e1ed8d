package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclaredProvider(t *testing.T) {
	p := DeclaredProvider{}

	db, ok := p.DatabaseForType(typeOf[Order]())
	require.True(t, ok)
	assert.Equal(t, DatabaseID("Sales"), db)

	// Pointer to a declaring type also matches.
	db, ok = p.DatabaseForType(typeOf[*Order]())
	require.True(t, ok)
	assert.Equal(t, DatabaseID("Sales"), db)

	_, ok = p.DatabaseForType(typeOf[Invoice]())
	assert.False(t, ok)

	_, ok = p.DatabaseForOperation("anything")
	assert.False(t, ok)
}

func TestStaticProviderNameMatching(t *testing.T) {
	p := NewStaticProvider(
		map[string]DatabaseID{"Invoice": "Billing", "routing.Order": "Sales"},
		map[string]DatabaseID{"InvoiceService.Close": "Billing"},
	)

	// Bare name match.
	db, ok := p.DatabaseForType(typeOf[Invoice]())
	require.True(t, ok)
	assert.Equal(t, DatabaseID("Billing"), db)

	// Qualified name match.
	db, ok = p.DatabaseForType(typeOf[Order]())
	require.True(t, ok)
	assert.Equal(t, DatabaseID("Sales"), db)

	db, ok = p.DatabaseForOperation("InvoiceService.Close")
	require.True(t, ok)
	assert.Equal(t, DatabaseID("Billing"), db)

	_, ok = p.DatabaseForOperation("unknown")
	assert.False(t, ok)

	db, ok = p.DatabaseForTypeName("Invoice")
	require.True(t, ok)
	assert.Equal(t, DatabaseID("Billing"), db)
}

func TestParseStaticRules(t *testing.T) {
	rules := []byte(`
entities:
  Order: Sales
  Invoice: Billing
operations:
  OrderService.Archive: Archive
`)
	p, err := ParseStaticRules(rules)
	require.NoError(t, err)

	db, ok := p.DatabaseForTypeName("Order")
	require.True(t, ok)
	assert.Equal(t, DatabaseID("Sales"), db)

	db, ok = p.DatabaseForOperation("OrderService.Archive")
	require.True(t, ok)
	assert.Equal(t, DatabaseID("Archive"), db)
}

func TestParseStaticRulesInvalidYAML(t *testing.T) {
	_, err := ParseStaticRules([]byte("entities: ["))
	assert.Error(t, err)
}

func TestChainProviderFirstMatchWins(t *testing.T) {
	first := NewStaticProvider(map[string]DatabaseID{"Order": "First"}, nil)
	second := NewStaticProvider(map[string]DatabaseID{"Order": "Second", "Invoice": "Billing"}, nil)
	chain := ChainProvider{first, second}

	db, ok := chain.DatabaseForType(typeOf[Order]())
	require.True(t, ok)
	assert.Equal(t, DatabaseID("First"), db)

	db, ok = chain.DatabaseForType(typeOf[Invoice]())
	require.True(t, ok)
	assert.Equal(t, DatabaseID("Billing"), db)
}
