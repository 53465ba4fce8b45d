/*
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

// Package progress_check writes a liveness heartbeat file. A Kubernetes exec
// probe compares the timestamp in the file against the current time.
package progress_check

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProgressWriter reports progress by writing the current timestamp to a file.
// It is safe for concurrent use from multiple goroutines.
type ProgressWriter struct {
	filename string
	mu       sync.Mutex
	now      func() time.Time
}

// NewProgressWriter creates a new ProgressWriter that writes to the specified file.
// The directory will be created if it doesn't exist.
func NewProgressWriter(filename string) (*ProgressWriter, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create progress directory %s: %w", dir, err)
	}

	return &ProgressWriter{
		filename: filename,
		now:      time.Now,
	}, nil
}

// ReportProgress writes the current Unix timestamp, in seconds with
// microsecond precision, to the progress file. The file is replaced
// atomically so readers never see a partial write.
func (pw *ProgressWriter) ReportProgress() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	tempFile := fmt.Sprintf("%s-%s.tmp", pw.filename, uuid.New().String())
	timestamp := float64(pw.now().UnixNano()) / 1e9
	content := strconv.FormatFloat(timestamp, 'f', 6, 64)

	if err := os.WriteFile(tempFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write progress to temp file %s: %w", tempFile, err)
	}

	if err := os.Rename(tempFile, pw.filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file %s to %s: %w", tempFile, pw.filename, err)
	}

	return nil
}

// ReadProgress returns the timestamp last written to filename.
func ReadProgress(filename string) (time.Time, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read progress file %s: %w", filename, err)
	}
	seconds, err := strconv.ParseFloat(string(content), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed progress file %s: %w", filename, err)
	}
	return time.Unix(0, int64(seconds*1e9)), nil
}

// Run reports progress every interval for as long as probe succeeds, until
// ctx is done. A failing probe skips the report so the heartbeat goes stale
// and the liveness probe eventually restarts the process.
func (pw *ProgressWriter) Run(ctx context.Context, interval time.Duration, probe func(context.Context) error, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pw.beat(ctx, interval, probe, logger)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (pw *ProgressWriter) beat(ctx context.Context, timeout time.Duration, probe func(context.Context) error, logger *slog.Logger) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := probe(probeCtx); err != nil {
		logger.WarnContext(ctx, "health probe failed, skipping progress report",
			slog.String("error", err.Error()))
		return
	}
	if err := pw.ReportProgress(); err != nil {
		logger.WarnContext(ctx, "failed to report progress", slog.String("error", err.Error()))
	}
}
