package lookup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/brojonat/nftex/service/config"
)

func TestConfigFrom(t *testing.T) {
	out := ConfigFrom(&config.Config{
		LookupURL:     "http://lookup.local",
		LookupPath:    "/v2/owners/{address}",
		LookupTimeout: 5 * time.Second,
	})
	assert.Equal(t, "http://lookup.local", out.BaseURL)
	assert.Equal(t, "/v2/owners/{address}", out.Path)
	assert.Equal(t, 5*time.Second, out.Timeout)
	assert.Equal(t, 3, out.RetryCount)

	out = ConfigFrom(&config.Config{LookupURL: "http://lookup.local"})
	assert.Equal(t, DefaultPath, out.Path)
	assert.Equal(t, 30*time.Second, out.Timeout)
}
