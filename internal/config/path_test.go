package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermatch/ledgermatch/internal/config"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("LEDGERMATCH_TEST_DIR", "/srv/ledgermatch")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"absolute", "/var/lib/ledgermatch.db", "/var/lib/ledgermatch.db"},
		{"bare tilde", "~", home},
		{"tilde prefix", "~/ledgermatch/db.sqlite", filepath.Join(home, "ledgermatch", "db.sqlite")},
		{"env var", "$LEDGERMATCH_TEST_DIR/db.sqlite", "/srv/ledgermatch/db.sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, config.ExpandPath(tt.in))
		})
	}
}
