// =============================================================================
// ragflow 主入口
// =============================================================================
// 检索增强问答管线的命令行入口
//
// 使用方法:
//
//	ragflow ask --dir ./docs --question "..."   # 摄取目录并回答问题
//	ragflow ingest --dir ./docs                 # 摄取目录（qdrant 存储时持久化）
//	ragflow version                             # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/grounding"
	"github.com/BaSui01/ragflow/ingest/loader"
	"github.com/BaSui01/ragflow/pipeline"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ask":
		runAsk(os.Args[2:])
	case "ingest":
		runIngest(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 💬 ask 命令
// =============================================================================

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dir := fs.String("dir", "", "Directory of documents to ingest before asking")
	question := fs.String("question", "", "Question to answer")
	topK := fs.Int("top-k", 5, "Number of context chunks to retrieve")
	promptType := fs.String("prompt", "", "Prompt strategy: strict, citation, contradiction, confidence, structured")
	fs.Parse(args)

	if *question == "" {
		fmt.Fprintln(os.Stderr, "ask: --question is required")
		os.Exit(1)
	}

	cfg, logger := mustSetup(*configPath)
	defer logger.Sync()

	p, err := pipeline.NewFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}

	ctx := context.Background()
	if *dir != "" {
		ingestDir(ctx, p, *dir, logger)
	}

	resp, err := p.Query(ctx, pipeline.QueryRequest{
		Question:       *question,
		TopK:           *topK,
		IncludeSources: true,
		PromptType:     pipeline.PromptType(*promptType),
	})
	if err != nil {
		logger.Fatal("Query failed", zap.Error(err))
	}

	fmt.Println(resp.Answer)

	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, src := range resp.Sources {
			fmt.Printf("  [%d] %s (score %.3f)\n", i+1, src.Source, src.Score)
		}
	}

	if resp.CitationCheck != nil {
		fmt.Println()
		fmt.Println(grounding.FormatReport(resp.CitationCheck))
	}
}

// =============================================================================
// 📥 ingest 命令
// =============================================================================

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dir := fs.String("dir", "", "Directory of documents to ingest")
	fs.Parse(args)

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "ingest: --dir is required")
		os.Exit(1)
	}

	cfg, logger := mustSetup(*configPath)
	defer logger.Sync()

	if cfg.Index.Store != "qdrant" {
		logger.Warn("Index store is not persistent, ingested chunks are lost on exit",
			zap.String("store", cfg.Index.Store))
	}

	p, err := pipeline.NewFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}

	ids := ingestDir(context.Background(), p, *dir, logger)
	fmt.Printf("Ingested %d chunks\n", len(ids))
}

func ingestDir(ctx context.Context, p *pipeline.Pipeline, dir string, logger *zap.Logger) []string {
	docs, err := loader.NewRegistry().LoadDir(ctx, dir)
	if err != nil {
		logger.Fatal("Failed to load documents", zap.Error(err))
	}
	if len(docs) == 0 {
		logger.Fatal("No loadable documents found", zap.String("dir", dir))
	}

	ids, err := p.Ingest(ctx, docs)
	if err != nil {
		logger.Fatal("Failed to ingest documents", zap.Error(err))
	}
	return ids
}

// mustSetup 加载配置并初始化日志，失败时直接退出。
func mustSetup(configPath string) (*config.Config, *zap.Logger) {
	cfgLoader := config.NewLoader()
	if configPath != "" {
		cfgLoader = cfgLoader.WithConfigPath(configPath)
	}

	cfg, err := cfgLoader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	logger.Info("Starting ragflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)
	return cfg, logger
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("ragflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`ragflow - Retrieval-augmented question answering pipeline

Usage:
  ragflow <command> [options]

Commands:
  ask       Ingest documents (optional) and answer a question
  ingest    Load and index documents from a directory
  version   Show version information
  help      Show this help message

Options for 'ask':
  --config <path>     Path to configuration file (YAML)
  --dir <path>        Directory of documents to ingest before asking
  --question <text>   Question to answer (required)
  --top-k <n>         Number of context chunks to retrieve (default 5)
  --prompt <type>     Prompt strategy: strict, citation, contradiction, confidence, structured

Options for 'ingest':
  --config <path>     Path to configuration file (YAML)
  --dir <path>        Directory of documents to ingest (required)

Examples:
  ragflow ask --dir ./docs --question "What is the refund policy?"
  ragflow ask --config config.yaml --question "..." --prompt citation
  ragflow ingest --config config.yaml --dir ./docs
  ragflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
