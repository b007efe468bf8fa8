package main

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/logging"
	"github.com/vthunder/focuswatch/internal/mcp"
	"github.com/vthunder/focuswatch/internal/state"
	"github.com/vthunder/focuswatch/internal/store"
)

var version = "dev"

func main() {
	// Load .env file - try executable's parent dir (repo root), then exe dir, then cwd
	envPaths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		envPaths = append([]string{
			filepath.Join(filepath.Dir(exeDir), ".env"), // parent of bin/ = repo root
			filepath.Join(exeDir, ".env"),
		}, envPaths...)
	}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}

	// stdout carries the protocol; logs go to stderr as JSON
	logging.Setup(logging.Config{Level: os.Getenv("FOCUSWATCH_LOG_LEVEL"), JSON: true, Out: os.Stderr})

	statePath := os.Getenv("FOCUSWATCH_STATE_PATH")
	if statePath == "" {
		statePath = "state"
	}

	db, err := store.Open(statePath)
	if err != nil {
		logging.Error("mcp", err, "failed to open state at %s", statePath)
		os.Exit(1)
	}
	defer db.Close()

	s := mcp.New(state.NewInspector(db, clock.System{}), version, logging.For("mcp"))
	logging.Debug("mcp", "serving focuswatch %s from %s", version, statePath)
	if err := s.ServeStdio(); err != nil {
		logging.Error("mcp", err, "stdio server stopped")
		os.Exit(1)
	}
}
