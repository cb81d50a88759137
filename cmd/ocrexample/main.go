package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"diva-ocr/internal/config"
	"diva-ocr/internal/db"
	"diva-ocr/internal/services"
	"diva-ocr/pkg/diva"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var conn *sql.DB
	var journal *services.JournalService
	if cfg.Database != "" {
		conn, err = db.Open(cfg.Database)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		journal = services.NewJournalService(conn)
	}

	client := diva.NewService(diva.Config{
		BaseURL:           cfg.BaseURL,
		TrainEndpoint:     cfg.TrainEndpoint,
		RecognizeEndpoint: cfg.RecognizeEndpoint,
		PollInterval:      cfg.PollInterval,
		PollTimeout:       cfg.PollTimeout,
		Timeout:           cfg.HTTPTimeout,
	})
	workflow := services.NewWorkflowService(client, services.NewTracker(), journal, services.OutputLayout{
		ModelPath:         cfg.ModelPath,
		VisualizationPath: cfg.VisualizationPath,
		RecognizedDir:     cfg.RecognizedDir,
	}, cfg.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("using DIVAServices at %s", cfg.BaseURL)
	result, err := workflow.RunDemo(ctx, services.Demo{
		TrainDataDir:    cfg.TrainDataDir,
		TrainCollection: cfg.TrainCollection,
		Params: diva.TrainingParams{
			LineHeight:      cfg.LineHeight,
			TrainIterations: cfg.TrainIterations,
			SaveFrequency:   cfg.SaveFrequency,
		},
		Model: services.ModelRegistration{
			ModelPath:  cfg.ModelPath,
			Collection: cfg.ModelCollection,
			Name:       cfg.ModelName,
		},
		RecoDataDir:    cfg.RecoDataDir,
		RecoCollection: cfg.RecoCollection,
		RecoModel:      cfg.RecoModel,
		SkipUpload:     cfg.SkipUpload,
	}, nil)

	for _, job := range workflow.Tracker().List() {
		log.Printf("%s job %s: %s (%d polls, %d files)", job.Operation, job.ResultLink, job.State, job.Polls, len(job.Files))
	}
	if conn != nil {
		if result.RunID != "" {
			log.Printf("run %s recorded in %s", result.RunID, cfg.Database)
		}
		conn.Close()
	}

	if err != nil {
		var stepErr *services.StepError
		if errors.As(err, &stepErr) {
			log.Printf("failed at step %q: %v", stepErr.Step, stepErr.Err)
		} else {
			log.Printf("demo failed: %v", err)
		}
		os.Exit(diva.ExitCode(err))
	}
	log.Printf("done: %d training files, %d recognized files", len(result.TrainingFiles), len(result.RecognizedFiles))
}
