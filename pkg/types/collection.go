package types

import "time"

// Collection is a named group of chunks sharing one embedding model and dimension
type Collection struct {
	ID        int64     `json:"-"`
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	CreatedAt time.Time `json:"created_at"`
}

// Fingerprint records the content hash of a file as of its last successful ingestion
type Fingerprint struct {
	FilePath    string    `json:"file_path"`
	ContentHash string    `json:"content_hash"`
	ModTime     time.Time `json:"mod_time"`
	SizeBytes   int64     `json:"size_bytes"`
	ChunkCount  int       `json:"chunk_count"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// IngestRun summarizes one pipeline run over a directory tree
type IngestRun struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Pruned     int       `json:"pruned"`
	Chunks     int       `json:"chunks"`
}

// IngestFailure records one file that could not be ingested during a run
type IngestFailure struct {
	RunID    string `json:"run_id"`
	FilePath string `json:"file_path"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}
