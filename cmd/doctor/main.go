// Command doctor checks a deployment before the bot starts: config
// validity, notification and gateway environment, and symbol
// resolution against the paper catalog.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/config"
	"github.com/calebmo/candlebot/internal/universe"
)

// mt5EnvVars are required when an external MT5 gateway is attached.
var mt5EnvVars = []string{"MT5_LOGIN", "MT5_PASSWORD", "MT5_SERVER", "MT5_PATH"}

func main() {
	configPath := flag.String("config", "", "path to config YAML (required)")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: doctor --config config.yaml")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
		os.Exit(1)
	}
	ok(fmt.Sprintf("config valid: timeframe %s, provider %s, top_n %d",
		cfg.Runtime.Timeframe, cfg.Broker.Provider, cfg.Ranking.TopN))

	problems := 0
	problems += checkNotifications(cfg)
	problems += checkBrokerEnv(cfg)
	problems += checkSymbols(cfg)

	if problems > 0 {
		fmt.Printf("\n%d problem(s) found\n", problems)
		os.Exit(2)
	}
	fmt.Println("\nall checks passed")
}

func checkNotifications(cfg *config.Config) int {
	if !cfg.Notifications.TelegramEnabled {
		ok("telegram disabled, skipping env check")
		return 0
	}
	problems := 0
	if os.Getenv("TELEGRAM_BOT_TOKEN") == "" {
		problems++
		bad("TELEGRAM_BOT_TOKEN is not set")
	} else {
		ok("TELEGRAM_BOT_TOKEN set")
	}
	chats := 0
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "TELEGRAM_CHAT_ID") {
			chats++
		}
	}
	if chats == 0 {
		problems++
		bad("no TELEGRAM_CHAT_ID_* variables set")
	} else {
		ok(fmt.Sprintf("%d telegram chat id(s) configured", chats))
	}
	return problems
}

func checkBrokerEnv(cfg *config.Config) int {
	if cfg.Broker.Provider != "mt5" {
		ok("paper broker selected, no gateway env needed")
		return 0
	}
	problems := 0
	for _, name := range mt5EnvVars {
		if os.Getenv(name) == "" {
			problems++
			bad(name + " is not set")
		} else {
			ok(name + " set")
		}
	}
	return problems
}

// checkSymbols resolves the preferred list against the paper catalog.
// With an external gateway the live catalog can differ, but a list that
// resolves to nothing here is almost certainly a typo.
func checkSymbols(cfg *config.Config) int {
	aliases, err := universe.LoadAliases(cfg.Universe.SymbolsFile)
	if err != nil {
		bad(fmt.Sprintf("symbols file: %v", err))
		return 1
	}

	paper := broker.NewPaperBroker(broker.PaperConfig{})
	discovered, err := paper.DiscoverSymbols()
	if err != nil {
		bad(fmt.Sprintf("paper catalog: %v", err))
		return 1
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	u := universe.Build(discovered, cfg.Universe, aliases, log)
	if len(u.Symbols) == 0 {
		bad("no preferred symbol resolves against the catalog")
		return 1
	}
	ok(fmt.Sprintf("universe resolves to %d symbol(s), anchor %s", len(u.Symbols), u.Anchor))
	return 0
}

func ok(msg string)  { fmt.Println("  ok   " + msg) }
func bad(msg string) { fmt.Println("  FAIL " + msg) }
