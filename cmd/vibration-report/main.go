// vibration-report runs the incremental vibration ETL: bronze loading from
// the object store, per-axis feature extraction, and training dataset export.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/banshee-data/vibration.report/internal/config"
	"github.com/banshee-data/vibration.report/internal/db"
	"github.com/banshee-data/vibration.report/internal/etl"
	"github.com/banshee-data/vibration.report/internal/objstore"
	"github.com/banshee-data/vibration.report/internal/trainset"
	"github.com/banshee-data/vibration.report/internal/version"
)

var (
	dbPath     = flag.String("db", "", "Path to database file (overrides config)")
	configPath = flag.String("config", "", "Path to JSON config file")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg := loadConfig()
	path := cfg.GetDBPath()
	if *dbPath != "" {
		path = *dbPath
	}

	command := args[0]

	if command == "version" {
		fmt.Printf("vibration-report %s\n", version.String())
		return
	}

	// migrate manages the schema itself; everything else migrates on open.
	if command == "migrate" {
		db.RunMigrateCommand(args[1:], path)
		return
	}

	database, err := db.NewDB(path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "bronze":
		batch := newBatch(database, cfg)
		results, err := batch.RunBronze(ctx)
		if err != nil {
			log.Fatalf("Bronze stage failed: %v", err)
		}
		reportResults(results)

	case "features":
		batch := newBatch(database, cfg)
		results, err := batch.RunFeatures(ctx)
		if err != nil {
			log.Fatalf("Feature stage failed: %v", err)
		}
		reportResults(results)

	case "run":
		batch := newBatch(database, cfg)
		results, err := batch.Run(ctx)
		if err != nil {
			log.Fatalf("Pipeline run failed: %v", err)
		}
		reportResults(results)

	case "trainset":
		runTrainset(database, args[1:])

	case "help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func loadConfig() *config.PipelineConfig {
	if *configPath == "" {
		return config.DefaultPipelineConfig()
	}
	cfg, err := config.LoadPipelineConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}
	return cfg
}

func newBatch(database *db.DB, cfg *config.PipelineConfig) *etl.Batch {
	store, err := objstore.NewMinioStore(
		cfg.GetObjectEndpoint(),
		cfg.GetObjectAccessKey(),
		cfg.GetObjectSecretKey(),
		cfg.GetObjectSecure(),
	)
	if err != nil {
		log.Fatalf("Failed to connect to object store: %v", err)
	}

	batch := etl.NewBatch(database, store)
	batch.ChunkSize = cfg.GetFeatureChunkSize()
	batch.MaxRecordsPerObject = cfg.GetMaxRecordsPerObject()
	return batch
}

func reportResults(results []etl.SessionResult) {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			log.Printf("session %d %s: FAILED: %v", r.SessionID, r.Stage, r.Err)
			continue
		}
		log.Printf("session %d %s: %d rows", r.SessionID, r.Stage, r.RowsWritten)
	}
	log.Printf("%d sessions processed, %d failed", len(results), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func runTrainset(database *db.DB, args []string) {
	fs := flag.NewFlagSet("trainset", flag.ExitOnError)
	tasks := fs.String("tasks", "fault_diag", "Comma-separated task types to include")
	seed := fs.Int64("seed", trainset.DefaultSeed, "Seed for the stratified fallback split")
	mark := fs.Bool("mark", false, "Stamp train_done_at on contributing sessions")
	fs.Parse(args)

	taskTypes := strings.Split(*tasks, ",")
	for i := range taskTypes {
		taskTypes[i] = strings.TrimSpace(taskTypes[i])
	}

	builder := trainset.NewBuilder(database)
	builder.Seed = *seed

	ds, err := builder.Build(taskTypes)
	if err != nil {
		log.Fatalf("Failed to build training dataset: %v", err)
	}

	all := make([]trainset.Vector, 0, len(ds.Train)+len(ds.Val)+len(ds.Test))
	all = append(all, ds.Train...)
	all = append(all, ds.Val...)
	all = append(all, ds.Test...)

	fmt.Println("=== Training Dataset ===")
	fmt.Printf("Tasks: %s\n", strings.Join(taskTypes, ", "))
	fmt.Printf("Vectors: %d (train=%d val=%d test=%d)\n",
		len(all), len(ds.Train), len(ds.Val), len(ds.Test))
	fmt.Printf("Dimensions: %d (%s)\n", trainset.Dims, strings.Join(trainset.FeatureNames(), ", "))
	fmt.Printf("Sessions: %v\n", trainset.SessionIDs(all))
	fmt.Printf("Labels: %s\n", strings.Join(trainset.ClassLabels(all), ", "))

	if *mark {
		if err := builder.MarkTrained(ds); err != nil {
			log.Fatalf("Failed to mark sessions trained: %v", err)
		}
	}
}

func printUsage() {
	fmt.Println("vibration-report - incremental vibration feature pipeline")
	fmt.Println()
	fmt.Println("Usage: vibration-report [options] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  migrate <action>   Manage the database schema (up, down, status, force)")
	fmt.Println("  bronze             Load pending raw recordings into the frame store")
	fmt.Println("  features           Extract per-axis features for pending sessions")
	fmt.Println("  run                Backfill sync, then bronze, then features")
	fmt.Println("  trainset           Summarize the training dataset (-tasks, -seed, -mark)")
	fmt.Println("  version            Print build identification")
	fmt.Println("  help               Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -db <path>         Path to database file (default: vibration.db)")
	fmt.Println("  -config <path>     Path to JSON config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  OBJECT_ENDPOINT, OBJECT_ACCESS_KEY, OBJECT_SECRET_KEY override config values")
}
