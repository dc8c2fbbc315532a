package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/iotloader/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// RunLedger keeps one Firestore document per generation run.
type RunLedger struct {
	client     *firestore.Client
	collection string
}

func NewRunLedger(ctx context.Context, projectID, collection string) (*RunLedger, error) {
	client, err := NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		collection = "loader_runs"
	}
	return &RunLedger{client: client, collection: collection}, nil
}

// Start adds the run document with status STARTED and returns its ID.
func (l *RunLedger) Start(ctx context.Context, rec models.RunRecord) (string, error) {
	rec.Status = models.RunStatusStarted
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	docRef, _, err := l.client.Collection(l.collection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create run document: %w", err)
	}
	return docRef.ID, nil
}

func (l *RunLedger) Complete(ctx context.Context, docID, outputDir string, excelFileCount int) error {
	return l.update(ctx, docID, []firestore.Update{
		{Path: "status", Value: models.RunStatusCompleted},
		{Path: "outputDir", Value: outputDir},
		{Path: "excelFileCount", Value: excelFileCount},
	})
}

func (l *RunLedger) Fail(ctx context.Context, docID, errDetails string) error {
	updates := []firestore.Update{
		{Path: "status", Value: models.RunStatusFailed},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	return l.update(ctx, docID, updates)
}

func (l *RunLedger) update(ctx context.Context, docID string, updates []firestore.Update) error {
	if _, err := l.client.Collection(l.collection).Doc(docID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update run document %s: %w", docID, err)
	}
	return nil
}

func (l *RunLedger) Close() error { return l.client.Close() }
