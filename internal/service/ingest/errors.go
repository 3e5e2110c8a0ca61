package ingest

import "errors"

// Sentinel errors for the ingestion service layer.
var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrEmptyBatch       = errors.New("batch contains no customers")
)
