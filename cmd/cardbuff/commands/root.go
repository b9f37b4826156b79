package commands

import (
	"cardbuff/lib/configutil"
	"cardbuff/lib/serviceutil"
	"cardbuff/services/session"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type Config struct {
	// BaseURL is the card site's origin.
	BaseURL string `json:"base_url"`
	// ProfilePath points at the captured session profile.
	ProfilePath string `json:"profile_path"`
	// DataDir holds the caches and snapshots the bot writes.
	DataDir string `json:"data_dir"`
	// BoostURL is the club boost page, absolute or site-relative.
	// Falls back to the profile's boost url when empty.
	BoostURL string `json:"boost_url"`
	// TradeLogPath is the sqlite file attempts are recorded to.
	TradeLogPath string `json:"trade_log_path"`
}

var configPath *string

var rootCmd = &cobra.Command{
	Use:   "cardbuff",
	Short: "cardbuff automates collecting the club's boost card through trades.",
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "cardbuff.json5", "Path to the configuration file.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() Config {
	cfg, err := configutil.ReadConfig[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://mangabuff.ru"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.TradeLogPath == "" {
		cfg.TradeLogPath = cfg.DataDir + "/tradelog.db"
	}
	return cfg
}

func newClient(cfg Config) *session.Client {
	profile, err := session.LoadProfile(cfg.ProfilePath)
	if err != nil {
		serviceutil.Fatal("failed to load session profile", err)
	}
	client, err := session.NewClient(session.ClientOptions{
		BaseURL: cfg.BaseURL,
		Profile: profile,
	})
	if err != nil {
		serviceutil.Fatal("failed to build http client", err)
	}
	return client
}

func boostURL(cfg Config, client *session.Client) string {
	url := cfg.BoostURL
	if url == "" {
		url = client.Profile.BoostURL
	}
	if url == "" {
		serviceutil.Fatal("no boost url configured", fmt.Errorf("set boost_url in %s or the profile", *configPath))
	}
	return url
}
