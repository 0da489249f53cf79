package ton

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccountEvent(t *testing.T) {
	msg := []byte(`{"jsonrpc":"2.0","method":"account_transaction","params":{"account_id":"EQwallet","tx_hash":"abc123","lt":123}}`)

	hash, ok, err := parseAccountEvent(msg)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", hash)
}

func TestParseAccountEventIgnoresOtherMethods(t *testing.T) {
	msg := []byte(`{"jsonrpc":"2.0","id":1,"result":"success! EQwallet subscribed"}`)

	_, ok, err := parseAccountEvent(msg)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseAccountEventBadJSON(t *testing.T) {
	_, _, err := parseAccountEvent([]byte("not json"))
	assert.Error(t, err)
}
