package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Opening and closing times are kept both as the
// raw HHMM integers used at the API boundary and as whole hours used by the
// slot grid.
type Config struct {
	Env    string // application environment (e.g. "dev", "prod")
	Port   string // HTTP port to listen on
	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret string // secret used to verify admin JWTs on maintenance routes

	Rooms            []int          // rooms that get a slot grid
	OpeningTime      int            // HHMM, e.g. 700
	ClosingTime      int            // HHMM, e.g. 1900
	OpeningHour      int            // OpeningTime / 100
	ClosingHour      int            // ClosingTime / 100
	FutureWindowSize int            // days ahead for which slots are generated and bookable
	MaxQueueLength   int            // waitlist capacity per slot, holder included
	PasskeyCost      int            // bcrypt cost for passkey hashes
	TxTimeout        time.Duration  // upper bound on a reservation transaction
	Location         *time.Location // zone in which "today" is computed

	LogLevel  string // zap level name
	LogFormat string // "json" or "console"

	RequireRedis     bool   // refuse to start without Redis
	RabbitURL        string // broker for promotion notifications; empty disables publishing
	GridAutoMaintain bool   // run the slot-grid maintainer daily inside the server
}

// Load reads an optional .env file and then the environment.  Missing or
// invalid required values cause the program to exit with a fatal log
// message.
func Load() Config {
	// A missing .env is fine; real deployments inject the environment.
	_ = godotenv.Load()
	cfg, err := Parse(os.LookupEnv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// Parse builds a Config from the given lookup function.  All problems are
// collected and returned together so a misconfigured deployment can be
// fixed in one pass.
func Parse(lookup func(string) (string, bool)) (Config, error) {
	p := parser{lookup: lookup}
	cfg := Config{
		Env:       p.must("APP_ENV"),
		Port:      p.must("APP_PORT"),
		DBUser:    p.must("DB_USER"),
		DBPass:    p.opt("DB_PASS", ""),
		DBHost:    p.must("DB_HOST"),
		DBPort:    p.must("DB_PORT"),
		DBName:    p.must("DB_NAME"),
		JWTSecret: p.must("JWT_SECRET"),

		Rooms:            p.rooms("ROOMS", "1,2,3"),
		OpeningTime:      p.hhmm("LIB_OPENING_TIME", "0700"),
		ClosingTime:      p.hhmm("LIB_CLOSING_TIME", "1900"),
		FutureWindowSize: p.intRange("FUTURE_WINDOW_SIZE", 3, 0, 365),
		MaxQueueLength:   p.intRange("MAX_QUEUE_LENGTH", 5, 1, 1000),
		PasskeyCost:      p.intRange("PASSKEY_COST", 10, 4, 31),
		TxTimeout:        p.duration("TX_TIMEOUT", 5*time.Second),
		Location:         p.location("APP_TZ", "UTC"),

		LogLevel:  p.opt("LOG_LEVEL", "info"),
		LogFormat: p.opt("LOG_FORMAT", "json"),

		RequireRedis:     p.boolean("REQUIRE_REDIS", false),
		RabbitURL:        p.opt("RABBITMQ_URL", p.opt("AMQP_URL", "")),
		GridAutoMaintain: p.boolean("GRID_AUTO_MAINTAIN", false),
	}
	cfg.OpeningHour = cfg.OpeningTime / 100
	cfg.ClosingHour = cfg.ClosingTime / 100
	if cfg.OpeningTime >= 0 && cfg.ClosingTime >= 0 && cfg.OpeningHour >= cfg.ClosingHour {
		p.errs = append(p.errs, errors.New("LIB_OPENING_TIME must be earlier than LIB_CLOSING_TIME"))
	}
	if cfg.TxTimeout <= 0 {
		p.errs = append(p.errs, errors.New("TX_TIMEOUT must be positive"))
	}
	return cfg, errors.Join(p.errs...)
}

// DSNTarget renders host:port/name for log lines; the password is never included.
func (c Config) DSNTarget() string {
	return fmt.Sprintf("%s:%s/%s", c.DBHost, c.DBPort, c.DBName)
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) must(key string) string {
	v, ok := p.get(key)
	if !ok {
		p.errs = append(p.errs, fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

func (p *parser) opt(key, def string) string {
	if v, ok := p.get(key); ok {
		return v
	}
	return def
}

func (p *parser) intRange(key string, def, lo, hi int) int {
	s, ok := p.get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		p.errs = append(p.errs, fmt.Errorf("invalid int for %s: %q (want %d..%d)", key, s, lo, hi))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	s, ok := p.get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid bool for %s: %q", key, s))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	s, ok := p.get(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid duration for %s: %q", key, s))
		return def
	}
	return d
}

func (p *parser) location(key, def string) *time.Location {
	name := p.opt(key, def)
	loc, err := time.LoadLocation(name)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid time zone for %s: %q", key, name))
		return time.UTC
	}
	return loc
}

// hhmm parses an opening/closing time such as "0700".  Only whole hours are
// meaningful to the slot grid; minutes must be zero.
func (p *parser) hhmm(key, def string) int {
	s := p.opt(key, def)
	n, err := strconv.Atoi(s)
	if err != nil || len(s) != 4 || n < 0 || n/100 > 23 || n%100 != 0 {
		p.errs = append(p.errs, fmt.Errorf("invalid time for %s: %q (want HHMM on the hour, e.g. 0700)", key, s))
		return -1
	}
	return n
}

func (p *parser) rooms(key, def string) []int {
	seen := map[int]bool{}
	var out []int
	for _, part := range strings.Split(p.opt(key, def), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 || n > 32767 {
			p.errs = append(p.errs, fmt.Errorf("invalid room id in %s: %q", key, part))
			continue
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		p.errs = append(p.errs, fmt.Errorf("%s must list at least one room", key))
	}
	sort.Ints(out)
	return out
}
