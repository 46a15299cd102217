package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"math"    // math bounds the key generation
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings" // strings splits the key list
	"time"    // time parses the chat durations
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Database fields are only required for the
// driver that is actually selected.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DBDriver  string // "mysql" or "sqlite"
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	DBPath    string // sqlite file path
	JWTSecret string // secret used to verify JWTs

	Chat ChatConfig
}

// ChatConfig groups the knobs of the check-in gated chat.
type ChatConfig struct {
	Keys            map[uint32]string // key generation -> secret
	ActiveKey       uint32            // generation used to encrypt new messages
	GeofenceRadiusM float64           // maximum check-in distance in meters
	GrantTTL        time.Duration     // access granted by one check-in
	PollTimeout     time.Duration     // long-poll wait window
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:       must("APP_ENV"),                        // environment (dev/test/prod)
		Port:      must("APP_PORT"),                       // port to bind the HTTP server
		DBDriver:  strings.ToLower(envStr("DB_DRIVER", "mysql")),
		JWTSecret: must("JWT_SECRET"),                     // secret used for verifying JWTs
		Chat:      loadChat(),
	}
	switch cfg.DBDriver {
	case "mysql":
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case "sqlite":
		cfg.DBPath = envStr("DB_PATH", "./data/venue-chat.db")
	default:
		log.Fatalf("unsupported DB_DRIVER: %q", cfg.DBDriver)
	}
	return cfg
}

func loadChat() ChatConfig {
	keys, err := ParseKeys(must("CHAT_KEYS"))
	if err != nil {
		log.Fatalf("invalid CHAT_KEYS: %v", err)
	}
	raw := must("CHAT_ACTIVE_KEY")
	active, err := ParseGeneration(raw)
	if err != nil {
		log.Fatalf("invalid CHAT_ACTIVE_KEY %q: must be a generation between 0 and %d", raw, uint32(math.MaxUint32))
	}
	if _, ok := keys[active]; !ok {
		log.Fatalf("CHAT_ACTIVE_KEY %d has no secret in CHAT_KEYS", active)
	}
	return ChatConfig{
		Keys:            keys,
		ActiveKey:       active,
		GeofenceRadiusM: envFloat("GEOFENCE_RADIUS_M", 50),
		GrantTTL:        envDur("GRANT_TTL", 24*time.Hour),
		PollTimeout:     envDur("POLL_TIMEOUT", 30*time.Second),
	}
}

// ParseKeys parses "1:secret-one,2:secret-two" into a generation map.
func ParseKeys(s string) (map[uint32]string, error) {
	out := make(map[uint32]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		gen, secret, ok := strings.Cut(part, ":")
		if !ok || secret == "" {
			return nil, &keyError{entry: part}
		}
		n, err := ParseGeneration(gen)
		if err != nil {
			return nil, &keyError{entry: part}
		}
		out[n] = secret
	}
	if len(out) == 0 {
		return nil, &keyError{}
	}
	return out, nil
}

// ParseGeneration parses a key generation number.  Negative and
// out-of-range values are rejected rather than wrapped.
func ParseGeneration(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

type keyError struct{ entry string }

func (e *keyError) Error() string {
	if e.entry == "" {
		return "no keys configured"
	}
	// never echo the secret itself
	gen, _, _ := strings.Cut(e.entry, ":")
	return "malformed key entry for generation " + strconv.Quote(gen)
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
