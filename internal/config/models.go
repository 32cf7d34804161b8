package config

import (
	"fmt"
	"time"
)

// EngineConfig represents the resource limits and policy source of the analysis engine
type EngineConfig struct {
	MaxHeaders int
	MaxParts   int
	MaxDepth   int
	MaxLinks   int
	PolicyFile string
}

// AnalysisConfig represents the verdict settings of the analysis service
type AnalysisConfig struct {
	Threshold      int
	MinInputChars  int
	MaxInputBytes  int
	TrustedDomains []string
}

// CacheConfig represents the configuration for the result cache
type CacheConfig struct {
	Type             string
	Enabled          bool
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
}

// HTTPConfig represents the configuration for the HTTP API
type HTTPConfig struct {
	ListenAddress string
	MaxBodyBytes  int64
}

// PostfixConfig represents the configuration for the Postfix content filter
type PostfixConfig struct {
	ListenAddress    string
	BlockThreats     bool
	ScoreHeader      string
	LevelHeader      string
	IndicatorsHeader string
	SubjectPrefix    string
	ModifySubject    bool
	RelayEnabled     bool
	RelayAddress     string
	RelayPort        int
}

// IMAPConfig represents the configuration for reading messages from an IMAP mailbox
type IMAPConfig struct {
	Address  string
	Username string
	Password string
	Mailbox  string
	Limit    int
	TLS      bool
}

// GetEngine returns the engine configuration
func (c *Config) GetEngine() EngineConfig {
	return EngineConfig{
		MaxHeaders: c.GetInt("engine.max_headers"),
		MaxParts:   c.GetInt("engine.max_parts"),
		MaxDepth:   c.GetInt("engine.max_depth"),
		MaxLinks:   c.GetInt("engine.max_links"),
		PolicyFile: c.GetString("engine.policy_file"),
	}
}

// GetAnalysis returns the analysis configuration
func (c *Config) GetAnalysis() AnalysisConfig {
	return AnalysisConfig{
		Threshold:      c.GetInt("analysis.threshold"),
		MinInputChars:  c.GetInt("analysis.min_input_chars"),
		MaxInputBytes:  c.GetInt("analysis.max_input_bytes"),
		TrustedDomains: c.GetStringSlice("analysis.trusted_domains"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		return CacheConfig{}, fmt.Errorf("invalid cache TTL: %w", err)
	}
	cleanup, err := c.GetDuration("cache.cleanup_frequency")
	if err != nil {
		return CacheConfig{}, fmt.Errorf("invalid cache cleanup frequency: %w", err)
	}

	return CacheConfig{
		Type:             c.GetString("cache.type"),
		Enabled:          c.GetBool("cache.enabled"),
		TTL:              ttl,
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
		RedisAddr:        c.GetString("cache.redis_addr"),
		RedisPassword:    c.GetString("cache.redis_password"),
		RedisDB:          c.GetInt("cache.redis_db"),
	}, nil
}

// GetHTTP returns the HTTP API configuration
func (c *Config) GetHTTP() HTTPConfig {
	return HTTPConfig{
		ListenAddress: c.GetString("http.listen_address"),
		MaxBodyBytes:  int64(c.GetInt("http.max_body_bytes")),
	}
}

// GetPostfix returns the Postfix content filter configuration
func (c *Config) GetPostfix() PostfixConfig {
	return PostfixConfig{
		ListenAddress:    c.GetString("server.listen_address"),
		BlockThreats:     c.GetBool("server.block_threats"),
		ScoreHeader:      c.GetString("server.headers.score"),
		LevelHeader:      c.GetString("server.headers.level"),
		IndicatorsHeader: c.GetString("server.headers.indicators"),
		SubjectPrefix:    c.GetString("server.subject_prefix"),
		ModifySubject:    c.GetBool("server.modify_subject"),
		RelayEnabled:     c.GetBool("server.postfix.enabled"),
		RelayAddress:     c.GetString("server.postfix.address"),
		RelayPort:        c.GetInt("server.postfix.port"),
	}
}

// GetIMAP returns the IMAP source configuration
func (c *Config) GetIMAP() IMAPConfig {
	return IMAPConfig{
		Address:  c.GetString("imap.address"),
		Username: c.GetString("imap.username"),
		Password: c.GetString("imap.password"),
		Mailbox:  c.GetString("imap.mailbox"),
		Limit:    c.GetInt("imap.limit"),
		TLS:      c.GetBool("imap.tls"),
	}
}
