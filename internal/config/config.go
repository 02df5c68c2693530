package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by REFINERY_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("REFINERY_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL is optional. Without it sessions, audit entries and anchors
// are kept in process.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// NATSURL is optional. Without it containment events are only logged.
func NATSURL() string {
	return os.Getenv("NATS_URL")
}

// NATSSubjectPrefix defaults to "refinery".
func NATSSubjectPrefix() string {
	p := os.Getenv("NATS_SUBJECT_PREFIX")
	if p == "" {
		return "refinery"
	}
	return p
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// PersonaProvider returns the configured persona provider.
// Defaults to "catalog" if not set.
// Valid values: catalog, openai, mock
func PersonaProvider() string {
	p := os.Getenv("PERSONA_PROVIDER")
	if p == "" {
		return "catalog"
	}
	return p
}

// PersonaAPIKey returns the API key for the configured persona provider.
func PersonaAPIKey() string {
	switch PersonaProvider() {
	case "openai":
		return OpenAIAPIKey()
	default:
		return ""
	}
}

// MaxPasses defaults to 5.
func MaxPasses() int {
	n, err := strconv.Atoi(os.Getenv("MAX_PASSES"))
	if err != nil || n <= 0 {
		return 5
	}
	return n
}

// TargetConfidence defaults to 0.95. Values outside (0, 1] are ignored.
func TargetConfidence() float64 {
	v, err := strconv.ParseFloat(os.Getenv("TARGET_CONFIDENCE"), 64)
	if err != nil || v <= 0 || v > 1 {
		return 0.95
	}
	return v
}

// Seed fixes the seed of every session when set. 0 derives the seed from
// the session id.
func Seed() uint64 {
	v, err := strconv.ParseUint(os.Getenv("REFINERY_SEED"), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// RunTimeout bounds one RunRefinement call. Defaults to 2 minutes.
func RunTimeout() time.Duration {
	return duration("RUN_TIMEOUT", 2*time.Minute)
}

// AnchorCapacity caps the process-wide anchor set. Defaults to 10000.
func AnchorCapacity() int {
	n, err := strconv.Atoi(os.Getenv("ANCHOR_CAPACITY"))
	if err != nil || n <= 0 {
		return 10000
	}
	return n
}

// AnchorFlushInterval defaults to 5 seconds.
func AnchorFlushInterval() time.Duration {
	return duration("ANCHOR_FLUSH_INTERVAL", 5*time.Second)
}

// GatekeeperPolicyPath points at a YAML threshold file. Empty uses the
// built-in thresholds.
func GatekeeperPolicyPath() string {
	return os.Getenv("GATEKEEPER_POLICY")
}

// ExpirerInterval defaults to 10 minutes.
func ExpirerInterval() time.Duration {
	return duration("EXPIRER_INTERVAL", 10*time.Minute)
}

// SessionRetention is how long finished sessions stay in the registry.
// Defaults to 1 hour.
func SessionRetention() time.Duration {
	return duration("SESSION_RETENTION", time.Hour)
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
