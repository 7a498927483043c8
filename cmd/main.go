package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"learning-assistant/internal/app"
	"learning-assistant/internal/config"
	"learning-assistant/internal/helper"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	serve := flag.Bool("serve", false, "Start the HTTP API")
	filePath := flag.String("file", "", "Path to a document to ingest")
	pageURL := flag.String("url", "", "URL of a page to ingest")
	documentID := flag.String("document-id", "", "Document id for -file or -url")
	query := flag.String("query", "", "Question to be answered")
	age := flag.Int("age", 0, "Age of the learner asking -query")
	deleteID := flag.String("delete", "", "Delete every chunk of this document id")
	stats := flag.Bool("stats", false, "Print collection statistics")
	export := flag.Bool("export", false, "Export an encrypted snapshot of the collection")
	importPath := flag.String("import", "", "Import a snapshot written by -export")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing services")
	}
	defer func() {
		if err := a.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	switch {
	case *serve:
		if err := a.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Server stopped")
		}
	case *filePath != "" || *pageURL != "":
		if *filePath != "" && *pageURL != "" {
			log.Fatal().Msg("Please provide either -file or -url, but not both")
		}
		if *documentID == "" {
			log.Fatal().Msg("Please provide a document id using the -document-id flag")
		}
		ingest(ctx, a, *filePath, *pageURL, *documentID)
	case *query != "":
		var userAge *int
		if *age > 0 {
			userAge = age
		}
		ask(ctx, a, *query, userAge)
	case *deleteID != "":
		if !a.Engine.DeleteByDocument(ctx, *deleteID) {
			log.Error().Str("document_id", *deleteID).Msg("Error deleting document")
			return
		}
		log.Info().Str("document_id", *deleteID).Msg("Document deleted")
	case *stats:
		if err := helper.WriteJSON(os.Stdout, a.Engine.CollectionStats(ctx)); err != nil {
			log.Error().Err(err).Msg("Error printing stats")
		}
	case *export:
		path, err := a.Export(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Error exporting collection")
			return
		}
		log.Info().Str("file", path).Msg("Collection exported")
	case *importPath != "":
		if err := a.Import(ctx, *importPath); err != nil {
			log.Error().Err(err).Msg("Error importing collection")
			return
		}
		log.Info().Str("file", *importPath).Msg("Collection imported")
	default:
		flag.Usage()
	}
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	}
	zerolog.DefaultContextLogger = &log.Logger
}

func ingest(ctx context.Context, a *app.App, filePath, pageURL, documentID string) {
	var n int
	var err error
	if filePath != "" {
		n, err = a.IngestFile(ctx, filePath, documentID)
	} else {
		n, err = a.IngestURL(ctx, pageURL, documentID)
	}
	if err != nil {
		log.Error().Err(err).Msg("Error ingesting document")
		return
	}
	log.Info().Str("document_id", documentID).Int("chunks", n).Msg("Document ingested")
}

func ask(ctx context.Context, a *app.App, query string, userAge *int) {
	answer := a.Ask(ctx, query, userAge)

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Str("route", string(answer.Route)).Bool("fallback", answer.Fallback).Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, s := range answer.Sources {
		fmt.Printf("- %s\n", s)
	}
	fmt.Println()

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", answer.Content)
}
