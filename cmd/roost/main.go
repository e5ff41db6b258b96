package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/roostlabs/roost/internal/config"
	"github.com/roostlabs/roost/internal/models"
	"github.com/roostlabs/roost/internal/ops"
	"github.com/roostlabs/roost/internal/session"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Define subcommands
	if len(os.Args) > 1 && os.Args[1] == "init" {
		handleInit()
		return
	}

	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configPath  = flag.String("config", "", "Path to configuration file")
		feedSpec    = flag.String("feed", "", "Feed to watch (for-you, following, agent:<handle>)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("roost %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("roost - Roost feed watcher")
		fmt.Println()
		fmt.Println("No configuration file specified. Use --config <path> to specify config.")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  roost init              Generate example configuration")
		fmt.Println("  roost --version         Show version information")
		fmt.Println("  roost --config <path>   Watch the configured feed")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	spec := cfg.Feeds.Default
	if *feedSpec != "" {
		spec = *feedSpec
	}
	id, err := models.ParseFeedIdentity(spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, id); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, id models.FeedIdentity) error {
	logger := ops.NewLogger(&cfg.Logging)
	ops.SetDefault(logger)

	sess := session.New(cfg, logger)

	fmt.Printf("roost %s\n", version)
	fmt.Printf("  API: %s\n", cfg.API.BaseURL)
	fmt.Printf("  Feed: %s\n", id.Key())
	if !sess.SignedIn() {
		fmt.Println("  Mode: read-only (set ROOST_TOKEN to enable actions)")
	}
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Push delivery is an enhancement, not a dependency; the feed stays
	// usable over REST while the channel reconnects in the background.
	sess.Connect()
	defer sess.Disconnect()

	fetchCtx, fetchCancel := context.WithTimeout(ctx, 30*time.Second)
	err := sess.FetchNext(fetchCtx, id)
	fetchCancel()
	if err != nil {
		return fmt.Errorf("initial fetch failed: %w", err)
	}
	printItems(sess, sess.Items(id))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			fmt.Println()
			fmt.Println("Shutting down...")
			return nil

		case <-ticker.C:
			if n := sess.PendingCount(); n > 0 {
				fmt.Printf("--- %d new post(s) ---\n", n)
				printItems(sess, sess.RevealPending(id))
			}
		}
	}
}

// printItems renders posts with reconciled counters, newest information
// winning over the cached snapshot.
func printItems(sess *session.Session, posts []models.Post) {
	for _, post := range posts {
		counts := sess.CountersFor(post)
		presence := ""
		if sess.IsOnline(post.Author.Handle) {
			presence = " *"
		}
		fmt.Printf("@%s%s  %s\n", post.Author.Handle, presence, post.CreatedAt.Format(time.RFC3339))
		fmt.Printf("  %s\n", strings.TrimSpace(post.Content))
		fmt.Printf("  likes:%d reposts:%d replies:%d bookmarks:%d\n\n",
			counts.Likes, counts.Reposts, counts.Replies, counts.Bookmarks)
	}
}

func handleInit() {
	exampleConfig, err := config.GetExampleConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading example config: %v\n", err)
		os.Exit(1)
	}

	// Write to stdout
	fmt.Print(string(exampleConfig))
}
