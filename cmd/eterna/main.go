// Command eterna runs the memory engine interactively: it reads user
// messages from stdin, extracts and stores facts from each one, and prints
// the context block the companion would receive for the next turn.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/companio/eterna/internal/config"
	"github.com/companio/eterna/internal/conflict"
	"github.com/companio/eterna/internal/extraction"
	"github.com/companio/eterna/internal/llm"
	"github.com/companio/eterna/internal/memory"
	"github.com/companio/eterna/internal/storage"
	"github.com/companio/eterna/internal/storage/postgres"
	"github.com/companio/eterna/internal/storage/sqlite"
)

var (
	userFlag    = flag.String("user", "", "User ID to operate on (default: a fresh UUID)")
	listFlag    = flag.Bool("list", false, "List the user's active memories and exit")
	contextFlag = flag.String("context", "", "Print the context block for this message and exit")
	noLLMFlag   = flag.Bool("no-llm", false, "Disable extraction (store and retrieval only)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	resolver := conflict.NewResolver(store)
	if cfg.Conflict.FieldsFile != "" {
		watcher := conflict.NewFieldsWatcher(cfg.Conflict.FieldsFile, resolver)
		if err := watcher.Start(); err != nil {
			log.Fatalf("Failed to watch fields file: %v", err)
		}
		defer watcher.Stop()
	}

	var pipeline *extraction.Pipeline
	var embedder llm.EmbeddingGenerator
	if !*noLLMFlag {
		generator, err := llm.NewTextGenerator(providerConfig(cfg))
		if err != nil {
			log.Fatalf("Failed to create LLM client: %v", err)
		}
		pipeline = extraction.NewPipeline(generator, extraction.Config{
			ContextFactLimit: cfg.Extraction.ContextFactLimit,
			RatePerSecond:    cfg.Extraction.RatePerSecond,
			Burst:            cfg.Extraction.Burst,
		})
		if embedder, err = llm.NewEmbeddingGenerator(providerConfig(cfg)); err != nil {
			log.Fatalf("Failed to create embedding client: %v", err)
		}
	}

	engine := memory.NewEngine(store, resolver, pipeline, embedder)

	userID := *userFlag
	if userID == "" {
		userID = uuid.NewString()
		log.Printf("eterna: using fresh user %s", userID)
	}

	ctx := context.Background()

	if *listFlag {
		listMemories(ctx, engine, userID)
		return
	}
	if *contextFlag != "" {
		block, err := engine.ContextBlock(ctx, userID, *contextFlag, cfg.Retrieval.TopK)
		if err != nil {
			log.Fatalf("Failed to build context block: %v", err)
		}
		fmt.Print(block)
		return
	}

	runLoop(ctx, engine, userID, cfg.Retrieval.TopK)
}

func openStore(cfg *config.Config) (storage.RecordStore, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewRecordStore(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, err
		}
		return sqlite.NewRecordStore(filepath.Join(cfg.Storage.DataPath, "eterna.db"))
	}
}

func providerConfig(cfg *config.Config) llm.ProviderConfig {
	pc := llm.ProviderConfig{
		Provider:       cfg.LLM.LLMProvider,
		BaseURL:        cfg.LLM.OllamaURL,
		Model:          cfg.LLM.OllamaModel,
		EmbeddingModel: cfg.LLM.OllamaEmbeddingModel,
	}
	if cfg.LLM.LLMProvider == "anthropic" {
		pc.APIKey = cfg.LLM.AnthropicAPIKey
		pc.Model = cfg.LLM.AnthropicModel
	}
	return pc
}

func listMemories(ctx context.Context, engine *memory.Engine, userID string) {
	records, err := engine.ListActive(ctx, userID, "", 0)
	if err != nil {
		log.Fatalf("Failed to list memories: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("(no active memories)")
		return
	}
	for _, rec := range records {
		fmt.Printf("%s  [%s] %s (importancia %d, mencoes %d, %s)\n",
			rec.ID, rec.Category, rec.Fact, rec.Importance, rec.Mentions,
			rec.LastMentionedAt.Format(time.DateOnly))
	}
}

func runLoop(ctx context.Context, engine *memory.Engine, userID string, topK int) {
	conversationID := uuid.NewString()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Type messages; Ctrl-D to quit.")
	for scanner.Scan() {
		message := scanner.Text()
		if message == "" {
			continue
		}

		results, err := engine.ExtractAndStore(ctx, userID, message, conversationID)
		if err != nil {
			log.Printf("eterna: extraction failed: %v", err)
		}
		for _, res := range results {
			switch {
			case res.Created:
				fmt.Printf("  + created %s\n", res.ID)
			case res.Updated:
				fmt.Printf("  ~ reinforced %s (mencoes %d)\n", res.ID, res.Mentions)
			case res.Deactivated:
				fmt.Printf("  - deactivated %s\n", res.ID)
			}
			for _, id := range res.SupersededIDs {
				fmt.Printf("  - superseded %s\n", id)
			}
		}

		block, err := engine.ContextBlock(ctx, userID, message, topK)
		if err != nil {
			log.Printf("eterna: failed to build context block: %v", err)
			continue
		}
		if block != "" {
			fmt.Println()
			fmt.Print(block)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("eterna: stdin read failed: %v", err)
	}
}
