package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runServer(t *testing.T, args ...string) (*Server, error) {
	t.Helper()
	cfg := &Server{}
	var got *Server
	cmd := NewServerCmd(cfg, "test", func(_ *cobra.Command, c *Server) error {
		got = c
		return nil
	})
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return got, err
}

func TestServerDefaults(t *testing.T) {
	cfg, err := runServer(t, "--listings-file", "items.json")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.VoteWindow)
	assert.Equal(t, 3, cfg.CandidateCount)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestServerEnvAndFlagPrecedence(t *testing.T) {
	t.Setenv("PRICECHECK_REDIS_ADDR", "redis:6379")
	t.Setenv("PRICECHECK_VOTE_WINDOW", "20s")
	t.Setenv("PRICECHECK_PORT", "9000")
	t.Setenv("PRICECHECK_ALLOWED_ORIGINS", "example.com,*.example.com")

	cfg, err := runServer(t, "--port", "9100")
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 20*time.Second, cfg.VoteWindow)
	assert.Equal(t, 9100, cfg.Port, "flags win over the environment")
	assert.Equal(t, []string{"example.com", "*.example.com"}, cfg.AllowedOrigins)
}

func TestServerValidate(t *testing.T) {
	_, err := runServer(t)
	assert.ErrorContains(t, err, "no listing source")

	_, err = runServer(t, "--listings-file", "x.json", "--port", "0")
	assert.ErrorContains(t, err, "invalid port")

	_, err = runServer(t, "--listings-file", "x.json", "--log-format", "xml")
	assert.ErrorContains(t, err, "log-format")

	_, err = runServer(t, "--listings-file", "x.json", "--candidate-count", "0")
	assert.Error(t, err)
}

func TestServerBadEnvValue(t *testing.T) {
	t.Setenv("PRICECHECK_PORT", "eighty")
	_, err := runServer(t, "--listings-file", "x.json")
	assert.ErrorContains(t, err, "PRICECHECK_PORT")
}

func TestHistorianValidate(t *testing.T) {
	cfg := &Historian{}
	cmd := NewHistorianCmd(cfg, "test", func(*cobra.Command, *Historian) error { return nil })
	cmd.SetArgs([]string{})
	assert.ErrorContains(t, cmd.Execute(), "database-url")

	t.Setenv("PRICECHECK_DATABASE_URL", "postgres://localhost/pricecheck")
	cfg = &Historian{}
	cmd = NewHistorianCmd(cfg, "test", func(*cobra.Command, *Historian) error { return nil })
	cmd.SetArgs([]string{"--batch-size", "50"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestNewLogger(t *testing.T) {
	l := NewLogger("json", true)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	_, ok := l.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)

	l = NewLogger("text", false)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}
