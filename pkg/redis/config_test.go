package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofetch/geofetch/internal/testutil"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantErr    error
		anyErr     bool
		wantPrefix string
	}{
		{name: "missing url", cfg: Config{}, wantErr: ErrURLRequired},
		{name: "bad scheme", cfg: Config{URL: "http://localhost:6379"}, anyErr: true},
		{name: "default prefix", cfg: Config{URL: "redis://localhost:6379/0"}, wantPrefix: "geofetch"},
		{name: "custom prefix", cfg: Config{URL: "redis://localhost:6379/2", Prefix: "ice"}, wantPrefix: "ice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				require.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantPrefix, tt.cfg.Prefix)
			}
		})
	}
}

func TestPrefixKey(t *testing.T) {
	cfg := Config{Prefix: "geofetch"}
	assert.Equal(t, "geofetch:watch:leader", cfg.PrefixKey("watch:leader"))

	cfg.Prefix = ""
	assert.Equal(t, "watch:leader", cfg.PrefixKey("watch:leader"))
}

func TestNewClient(t *testing.T) {
	mr := testutil.NewMiniredis(t)

	cfg := &Config{URL: "redis://" + mr.Addr()}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()).Err())
	assert.True(t, cfg.Enabled())

	_, err = NewClient(&Config{})
	require.ErrorIs(t, err, ErrURLRequired)
}
