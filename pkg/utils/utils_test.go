package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGetPageOffset(t *testing.T) {
	p := Pagination{}
	offset, limit := p.GetPageOffset()
	assert.Equal(t, 0, offset)
	assert.Equal(t, 10, limit)

	p = Pagination{Page: 3, Limit: 500}
	offset, limit = p.GetPageOffset()
	assert.Equal(t, 200, offset)
	assert.Equal(t, 100, limit)
}

func TestToken(t *testing.T) {
	t.Run("Round trip", func(t *testing.T) {
		token, err := GenerateToken(testSecret, "u1", "expert", time.Hour)
		require.NoError(t, err)

		claims, err := ParseToken(testSecret, token)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
		assert.Equal(t, "expert", claims.Role)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		token, err := GenerateToken(testSecret, "u1", "farmer", time.Hour)
		require.NoError(t, err)

		_, err = ParseToken("another-secret-another-secret-123", token)
		assert.Error(t, err)
	})

	t.Run("Expired", func(t *testing.T) {
		token, err := GenerateToken(testSecret, "u1", "farmer", -time.Minute)
		require.NoError(t, err)

		_, err = ParseToken(testSecret, token)
		assert.Error(t, err)
	})
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "try neem oil", Sanitize("  try neem oil  "))
	assert.NotContains(t, Sanitize(`<script>alert(1)</script>rice`), "<script>")
	assert.Equal(t, "", Sanitize("<script>alert(1)</script>"))
	assert.Equal(t, "help please", Sanitize("help <b>please</b>"))

	// 纯文本中的标点原样保留
	assert.Equal(t, "Don't spray > 2L/acre", Sanitize("Don't spray > 2L/acre"))
	assert.Equal(t, "it's <5% loss & rising", Sanitize("it's <5% loss & rising"))
	assert.Equal(t, `"urea" vs. DAP`, Sanitize(`"urea" vs. DAP`))
}
