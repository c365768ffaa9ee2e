package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/inhouse/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging sends log output to both stdout and a file. If logFile is
// empty, a timestamped filename is generated. The returned func closes the
// file.
func SetupLogging(logFile string) (func() error, error) {
	if logFile == "" {
		logFile = "simulate_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file.Close, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Inhouse Game Simulator
======================

Plays full in-house games against a running matchmaking service: players
queue, answer ready checks, report results and occasionally dispute them.
At the end every role leaderboard is checked against the hidden skill the
players were generated with.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -channel string
        Channel every simulated player queues in (default "sim")
  -players int
        Number of simulated players, at least 10 (default 40)
  -rounds int
        Number of queue and play rounds (default 20)
  -top int
        Leaderboard entries fetched per role (default 20)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 10s)
  -settle duration
        Maximum wait for a session to confirm or score (default 3m)
  -decline float
        Chance a proposed game is declined (default 0.1)
  -dispute float
        Chance a game's first report is false (default 0.05)
  -seed uint
        Random seed (default: current time)
  -log string
        Log file (default: simulate_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help

Scoring waits for the service's result grace period, so the settle timeout
must exceed it.
`)
}
