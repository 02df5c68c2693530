package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"SERVER_PORT", "MAX_PASSES", "TARGET_CONFIDENCE", "REFINERY_SEED", "RUN_TIMEOUT", "PERSONA_PROVIDER", "NATS_SUBJECT_PREFIX", "SESSION_RETENTION"} {
		t.Setenv(k, "")
	}
	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, 5, MaxPasses())
	assert.Equal(t, 0.95, TargetConfidence())
	assert.Zero(t, Seed())
	assert.Equal(t, 2*time.Minute, RunTimeout())
	assert.Equal(t, "catalog", PersonaProvider())
	assert.Empty(t, PersonaAPIKey())
	assert.Equal(t, "refinery", NATSSubjectPrefix())
	assert.Equal(t, time.Hour, SessionRetention())
}

func TestOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MAX_PASSES", "3")
	t.Setenv("TARGET_CONFIDENCE", "0.8")
	t.Setenv("REFINERY_SEED", "42")
	t.Setenv("RUN_TIMEOUT", "30s")
	t.Setenv("PERSONA_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	assert.Equal(t, ":9090", ServerAddr())
	assert.Equal(t, 3, MaxPasses())
	assert.Equal(t, 0.8, TargetConfidence())
	assert.Equal(t, uint64(42), Seed())
	assert.Equal(t, 30*time.Second, RunTimeout())
	assert.Equal(t, "sk-test", PersonaAPIKey())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_PASSES", "-1")
	t.Setenv("TARGET_CONFIDENCE", "1.5")
	t.Setenv("RUN_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_RPS", "0")

	assert.Equal(t, 5, MaxPasses())
	assert.Equal(t, 0.95, TargetConfidence())
	assert.Equal(t, 2*time.Minute, RunTimeout())
	assert.Equal(t, 100.0, RateLimitRPS())
}

func TestLoad_ReadsEnvAndSecret(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("REFINERY_TEST_PLAIN=plain\n"), 0o600))
	require.NoError(t, os.WriteFile(envFile+".secret", []byte("REFINERY_TEST_SECRET=hidden\n"), 0o600))

	t.Setenv("REFINERY_ENV", envFile)
	t.Setenv("REFINERY_TEST_PLAIN", "")
	t.Setenv("REFINERY_TEST_SECRET", "")
	require.NoError(t, os.Unsetenv("REFINERY_TEST_PLAIN"))
	require.NoError(t, os.Unsetenv("REFINERY_TEST_SECRET"))

	require.NoError(t, Load())
	assert.Equal(t, "plain", os.Getenv("REFINERY_TEST_PLAIN"))
	assert.Equal(t, "hidden", os.Getenv("REFINERY_TEST_SECRET"))
}
