package di

import (
	"flag"
	"os"
	"strings"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-threat-analyzer/internal/config"
	"github.com/mikey/mail-threat-analyzer/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Input flags
	InputFile string
	MboxFile  string

	// IMAP flags
	IMAPAddress  string
	IMAPUser     string
	IMAPPassword string
	IMAPMailbox  string
	IMAPLimit    int
	IMAPInsecure bool

	// Analysis flags
	Threshold      int
	PolicyFile     string
	TrustedDomains string

	// Output flags
	JSON       bool
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	return ParseFlagSet(flag.CommandLine, nil)
}

// ParseFlagSet registers the CLI flags on fs and parses args; nil args means os.Args[1:]
func ParseFlagSet(fs *flag.FlagSet, args []string) *CLIFlags {
	flags := &CLIFlags{}

	// Input flags
	fs.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	fs.StringVar(&flags.MboxFile, "mbox", "", "Analyze every message of an mbox file")

	// IMAP flags
	fs.StringVar(&flags.IMAPAddress, "imap-addr", "", "IMAP server address (host:port)")
	fs.StringVar(&flags.IMAPUser, "imap-user", "", "IMAP username")
	fs.StringVar(&flags.IMAPPassword, "imap-password", "", "IMAP password (or THREAT_ANALYZER_IMAP_PASSWORD)")
	fs.StringVar(&flags.IMAPMailbox, "imap-mailbox", "", "IMAP mailbox to read (default INBOX)")
	fs.IntVar(&flags.IMAPLimit, "imap-limit", 0, "Number of most recent IMAP messages to analyze")
	fs.BoolVar(&flags.IMAPInsecure, "imap-insecure", false, "Connect to IMAP without TLS")

	// Analysis flags
	fs.IntVar(&flags.Threshold, "threshold", -1, "Score at or above which a message is a threat (default from config)")
	fs.StringVar(&flags.PolicyFile, "policy", "", "YAML file extending the built-in detection policy")
	fs.StringVar(&flags.TrustedDomains, "whitelist", "", "Comma-separated list of trusted sender domains")

	// Output flags
	fs.BoolVar(&flags.JSON, "json", false, "Print assessments as JSON")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose output and logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file")

	if args == nil {
		args = os.Args[1:]
	}
	fs.Parse(args)
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		return createConfigFromFlags(flags, logger)
	}); err != nil {
		return nil, err
	}

	if err := provideServices(container); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags layers command line flags over the config file or defaults
func createConfigFromFlags(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	if flags.ConfigFile != "" {
		loaded, err := config.NewFromFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded configuration from file", zap.String("file", loaded.GetViper().ConfigFileUsed()))
		cfg = loaded
	} else {
		v := config.NewEmptyViper()
		// One-shot runs gain nothing from a cache
		v.Set("cache.type", "none")
		cfg = config.NewFromViper(v)
	}

	v := cfg.GetViper()
	v.Set("server.filter_type", "cli")
	v.Set("cli.json", flags.JSON)
	v.Set("cli.verbose", flags.Verbose)
	v.Set("input.file", flags.InputFile)
	v.Set("input.mbox", flags.MboxFile)

	if flags.Threshold >= 0 {
		v.Set("analysis.threshold", flags.Threshold)
	}
	if flags.PolicyFile != "" {
		v.Set("engine.policy_file", flags.PolicyFile)
	}

	if flags.TrustedDomains != "" {
		domains := strings.Split(flags.TrustedDomains, ",")
		for i, domain := range domains {
			domains[i] = strings.TrimSpace(domain)
		}
		v.Set("analysis.trusted_domains", domains)
	}

	if flags.IMAPAddress != "" {
		v.Set("imap.address", flags.IMAPAddress)
		v.Set("imap.tls", !flags.IMAPInsecure)
	}
	if flags.IMAPUser != "" {
		v.Set("imap.username", flags.IMAPUser)
	}
	if flags.IMAPPassword != "" {
		v.Set("imap.password", flags.IMAPPassword)
	}
	if flags.IMAPMailbox != "" {
		v.Set("imap.mailbox", flags.IMAPMailbox)
	}
	if flags.IMAPLimit > 0 {
		v.Set("imap.limit", flags.IMAPLimit)
	}

	return cfg, nil
}
