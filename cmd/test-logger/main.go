package main

import (
	"errors"
	"fmt"

	"github.com/courtdata/fastbreak/pkg/config"
	"github.com/courtdata/fastbreak/pkg/logger"
)

func main() {
	fmt.Println("=== fastbreak Logger Test ===")

	// Test 1: JSON Format (Production)
	fmt.Println("1. JSON Format (Production)")
	fmt.Println("--------------------------------")
	testJSONFormat()
	fmt.Println()

	// Test 2: Console Format (Development)
	fmt.Println("2. Console Format (Development)")
	fmt.Println("--------------------------------")
	testConsoleFormat()
	fmt.Println()

	// Test 3: Structured Logging
	fmt.Println("3. Structured Logging with Fields")
	fmt.Println("--------------------------------")
	testStructuredLogging()
	fmt.Println()

	// Test 4: Error Logging
	fmt.Println("4. Error Logging")
	fmt.Println("--------------------------------")
	testErrorLogging()
	fmt.Println()

	fmt.Println("✅ All logger tests completed!")
}

func testJSONFormat() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.New(cfg)
	log.Info("Service started")
	log.Warn("Feed latency above threshold")
	log.Error("Failed to reach the stats feed")
}

func testConsoleFormat() {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "debug",
		LogFormat: "console",
	}

	log := logger.New(cfg)
	log.Debug("Debugging pipeline flow")
	log.Info("Scoreboard fetched")
	log.Warn("Box score missing, retrying")
}

func testStructuredLogging() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.New(cfg)

	// Single field
	dateLog := log.WithField("business_date", "2024-01-15")
	dateLog.Info("Conformance pass started")

	// Multiple fields
	gameLog := log.WithFields(map[string]interface{}{
		"game_id":      "0022300567",
		"home_team_id": "1610612744",
		"away_team_id": "1610612747",
		"status":       "final",
	})
	gameLog.Info("Game conformed")

	// Chained fields
	log.WithField("stage", "gold").
		WithField("artifact_type", "player_daily").
		Info("Artifact rendered")
}

func testErrorLogging() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "error",
		LogFormat: "json",
	}

	log := logger.New(cfg)

	// Simple error
	err := errors.New("connection timeout")
	log.WithError(err).Error("Failed to fetch box score")

	// Error with context
	log.WithError(err).
		WithFields(map[string]interface{}{
			"retry_count": 3,
			"timeout_ms":  5000,
			"resource":    "scoreboard",
		}).
		Error("Fetch failed after retries")
}
