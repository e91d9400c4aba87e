package settings_test

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/ipvm-wg/homestar/settings"
)

func newViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	settings.BindFlags(flags, settings.Default())
	require.NoError(t, flags.Parse(args))

	v := viper.New()
	require.NoError(t, v.BindPFlags(flags))
	return v
}

func TestFromViperAppliesDefaults(t *testing.T) {
	cfg, err := settings.FromViper(newViper(t))
	require.NoError(t, err)
	require.Equal(t, settings.Default(), cfg)
}

func TestFromViperReadsFlagOverrides(t *testing.T) {
	cfg, err := settings.FromViper(newViper(t, "--quorum=3", "--mdns=false", "--db-path=/tmp/x.db"))
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Quorum)
	require.False(t, cfg.EnableMDNS)
	require.Equal(t, "/tmp/x.db", cfg.DBPath)
}

func TestFromViperRejectsInvalidQuorum(t *testing.T) {
	_, err := settings.FromViper(newViper(t, "--quorum=0"))
	require.Error(t, err)
}

func TestFromViperRejectsBothIdentitySources(t *testing.T) {
	_, err := settings.FromViper(newViper(t, "--identity-path=/tmp/id.pem", "--identity-seed=aa"))
	require.Error(t, err)
}
