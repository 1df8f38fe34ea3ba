package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccounts(t *testing.T) {
	accounts, err := parseAccounts("ACC-1:alice:5000, ACC-2:bob:12.50:eur ,")
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "ACC-1", accounts[0].Ref)
	assert.Equal(t, "alice", accounts[0].OwnerID)
	assert.Equal(t, "USD", accounts[0].Currency)
	assert.True(t, decimal.RequireFromString("12.5").Equal(accounts[1].Balance))
	assert.Equal(t, "EUR", accounts[1].Currency)

	for _, bad := range []string{"ACC-1:alice", "ACC-1:alice:lots", "ACC-1:alice:-5", "a:b:1:USD:x"} {
		_, err := parseAccounts(bad)
		assert.Error(t, err, bad)
	}
}
