package tracing

import (
	"context"
	"testing"

	"talent-match/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "A*", MaskPII("Al"))
	assert.Equal(t, "A*i", MaskPII("Ali"))
	assert.Equal(t, "ja************om", MaskPII("jane@example.com"))
}

func TestSafeAttributeValue(t *testing.T) {
	assert.Equal(t, "ja************om", SafeAttributeValue("candidate.email", "jane@example.com", 100), "敏感字段应被掩码")
	assert.Equal(t, "abc...xyz", SafeAttributeValue("query", "abcdefghijklmnopqrstuvwxyz", 9), "普通字段超长时应截断")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abc", TruncateString("abcdef", 3))
	assert.Equal(t, "ab...gh", TruncateString("abcdefgh", 7))
}

func TestInitProviderDisabled(t *testing.T) {
	shutdown, err := InitProvider(context.Background(), config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitProviderRequiresEndpoint(t *testing.T) {
	_, err := InitProvider(context.Background(), config.TracingConfig{Enabled: true})
	assert.Error(t, err)
}
