package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/inhouse/internal/simulate"
)

// Default configuration constants.
const (
	defaultPlayers     = 40
	defaultRounds      = 20
	defaultTopN        = 20
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 10 * time.Second
	defaultSettle      = 3 * time.Minute
	defaultDeclineRate = 0.1
	defaultDisputeRate = 0.05
	defaultRunTimeout  = 2 * time.Hour
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		channel = flag.String("channel", "sim", "Channel every simulated player queues in")
		players = flag.Int("players", defaultPlayers, "Number of simulated players, at least 10")
		rounds  = flag.Int("rounds", defaultRounds, "Number of queue and play rounds")
		topN    = flag.Int("top", defaultTopN, "Leaderboard entries fetched per role")
		workers = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle  = flag.Duration("settle", defaultSettle, "Maximum wait for a session to confirm or score")
		decline = flag.Float64("decline", defaultDeclineRate, "Chance a proposed game is declined")
		dispute = flag.Float64("dispute", defaultDisputeRate, "Chance a game's first report is false")
		seed    = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
		logFile = flag.String("log", "", "Log file (default: simulate_TIMESTAMP.log)")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closeLog, err := simulate.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &simulate.Config{
		BaseURL:       *baseURL,
		Channel:       *channel,
		Players:       *players,
		Rounds:        *rounds,
		Workers:       *workers,
		Timeout:       *timeout,
		SettleTimeout: *settle,
		TopN:          *topN,
		DeclineRate:   *decline,
		DisputeRate:   *dispute,
		Seed:          *seed,
		Verbose:       *verbose,
	}

	if _, err := simulate.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		cancel()
		_ = closeLog()
		os.Exit(1)
	}
}
