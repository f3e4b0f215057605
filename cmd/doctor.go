package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/dongshu2013/the-agent-bot/internal/config"
	"github.com/dongshu2013/the-agent-bot/internal/store/redisstore"
	"github.com/dongshu2013/the-agent-bot/internal/upgrade"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment, configuration and backend connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("agentbot doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.LoadUnvalidated(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid: %s\n", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Println()
	fmt.Println("  Batcher:")
	fmt.Printf("    %-18s %s\n", "Poll interval:", cfg.Batcher.PollInterval())
	fmt.Printf("    %-18s %d messages\n", "Volume threshold:", cfg.Batcher.VolumeThreshold)
	fmt.Printf("    %-18s %s\n", "Quiet threshold:", cfg.Batcher.QuietThreshold())

	fmt.Println()
	fmt.Println("  Stores:")
	if !cfg.IsManagedMode() {
		fmt.Printf("    %-12s standalone (%s)\n", "Mode:", storageLabel(cfg.Standalone.Storage))
	} else {
		fmt.Printf("    %-12s managed\n", "Mode:")
		checkPostgres(ctx, cfg.Database.PostgresDSN)
		checkRedis(ctx, cfg)
	}

	fmt.Println()
	fmt.Println("  Reply service:")
	checkReplyService(ctx, cfg)

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("Telegram", cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Token != "")

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func storageLabel(dir string) string {
	if dir == "" {
		return "in-memory"
	}
	return config.ExpandHome(dir)
}

func checkPostgres(ctx context.Context, dsn string) {
	if dsn == "" {
		fmt.Printf("    %-12s (DATABASE_URL not set)\n", "Postgres:")
		return
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Postgres:", err)
		return
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Postgres:", err)
		return
	}
	fmt.Printf("    %-12s OK\n", "Postgres:")

	s, err := upgrade.CheckSchema(ctx, db)
	switch {
	case err != nil:
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
	case s.Dirty:
		fmt.Printf("    %-12s v%d (DIRTY, run: agentbot migrate force %d)\n", "Schema:", s.CurrentVersion, s.CurrentVersion-1)
	case s.Compatible:
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Printf("    %-12s v%d (binary too old, requires v%d)\n", "Schema:", s.CurrentVersion, s.RequiredVersion)
	default:
		fmt.Printf("    %-12s v%d (run: agentbot migrate up)\n", "Schema:", s.CurrentVersion)
	}

	var pending int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_status WHERE pending_count > 0").Scan(&pending); err == nil {
		fmt.Printf("    %-12s %d conversation(s) with pending messages\n", "Backlog:", pending)
	}
}

func checkRedis(ctx context.Context, cfg *config.Config) {
	if cfg.Redis.URL == "" {
		fmt.Printf("    %-12s (REDIS_URL not set)\n", "Redis:")
		return
	}
	rdb, err := redisstore.NewClient(ctx, cfg.Redis.URL, redisstore.ClientOptions{PoolSize: 1})
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Redis:", err)
		return
	}
	defer rdb.Close()
	fmt.Printf("    %-12s OK\n", "Redis:")
}

func checkReplyService(ctx context.Context, cfg *config.Config) {
	if cfg.ReplyService.BaseURL == "" {
		fmt.Printf("    %-12s (SERVICE_URL not set)\n", "Endpoint:")
		return
	}
	fmt.Printf("    %-12s %s\n", "Endpoint:", cfg.ReplyService.BaseURL)
	if cfg.ReplyService.APIKey == "" {
		fmt.Printf("    %-12s (API_SECRET_KEY not set)\n", "API key:")
	}

	agent, err := newAgentClient(cfg).AgentInfo(ctx)
	if err != nil {
		fmt.Printf("    %-12s UNREACHABLE (%s)\n", "Agent:", err)
		return
	}
	fmt.Printf("    %-12s %s (id %d)\n", "Agent:", agent.Name, cfg.ReplyService.AgentID)
}

func checkChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	if enabled && hasCredentials {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing credentials)"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}
