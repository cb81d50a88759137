package diva_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff"

	"diva-ocr/pkg/diva"
)

func ExampleService_SubmitTraining() {
	// Configure the client
	svc := diva.NewService(diva.Config{
		BaseURL:      "http://divaservices.unifr.ch/api/v2",
		PollInterval: 5 * time.Second,
	})
	ctx := context.Background()

	// Upload training data
	collection, err := diva.BuildCollection("ocr_train_example", "trainData")
	if err != nil {
		log.Fatal(err)
	}
	if err := svc.UploadCollection(ctx, collection); err != nil {
		log.Fatal(err)
	}

	// Start training
	submission, err := svc.SubmitTraining(ctx, diva.TrainingRequest{
		Collection: "ocr_train_example",
		Params:     diva.TrainingParams{LineHeight: 46, TrainIterations: 500, SaveFrequency: 100},
	})
	if err != nil {
		log.Fatal(err)
	}

	// Wait for each unit of work and download the trained model
	for _, link := range submission.Links() {
		doc, err := svc.ResolveResult(ctx, link)
		if err != nil {
			log.Fatal(err)
		}
		if err := doc.Err(); err != nil {
			log.Fatal(err)
		}
		for artifact := range diva.CollectOutputs(doc, diva.NameContains("minModel")) {
			if _, err := svc.Download(ctx, artifact.URL, "outputs/models/minModel.pyrnn.gz"); err != nil {
				log.Fatal(err)
			}
		}
	}
}

func ExampleService_ResolveResult() {
	svc := diva.NewService(diva.Config{})

	// Give up after ten minutes, backing off exponentially between polls
	doc, err := svc.ResolveResult(
		context.Background(),
		"http://divaservices.unifr.ch/api/v2/results/ocropusrecognize/1",
		diva.WithWaitStrategy(diva.NewBackOffWait(backoff.NewExponentialBackOff())),
		diva.WithPollTimeout(10*time.Minute),
	)
	if err != nil {
		log.Fatalf("resolve failed (exit %d): %v", diva.ExitCode(err), err)
	}

	for artifact := range diva.CollectOutputs(doc, diva.All) {
		fmt.Printf("%s -> %s\n", artifact.Name, artifact.URL)
	}
}
