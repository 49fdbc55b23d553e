// Command cidb-runner downloads the original CI logs for a list of failed
// jobs. Job IDs are read from a file, one per line; downloads run on a
// bounded worker pool.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reprobench/cidb-client/pkg/batch"
	"github.com/reprobench/cidb-client/pkg/logfetch"
	"github.com/reprobench/cidb-client/pkg/logging"
)

func main() {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", string(logging.LevelInfo))),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	})

	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <job-id-file>\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	primaryURL := getEnv("LOG_PRIMARY_URL", "")
	if primaryURL == "" {
		log.Fatal().Msg("LOG_PRIMARY_URL is required")
	}
	secondaryURL := getEnv("LOG_SECONDARY_URL", "")
	outputDir := getEnv("OUTPUT_DIR", "logs")

	workers := 4
	if w := getEnv("WORKERS", ""); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil || n <= 0 {
			log.Fatal().Str("workers", w).Msg("WORKERS must be a positive integer")
		}
		workers = n
	}

	jobIDs, err := readJobIDs(os.Args[1])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read job ID file")
	}
	if len(jobIDs) == 0 {
		log.Warn().Msg("No job IDs to process")
		return
	}

	downloader, err := logfetch.New(logfetch.DefaultConfig(primaryURL, secondaryURL))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create log downloader")
	}

	runner, err := batch.New(jobIDs, batch.Config{
		MaxWorkers: workers,
		Process: func(ctx context.Context, item string) error {
			jobID, err := strconv.ParseInt(item, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", item, err)
			}

			destination := filepath.Join(outputDir, item+".log")
			ok, err := downloader.Download(ctx, jobID, destination, false)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("log for job %d unavailable", jobID)
			}
			return nil
		},
		PreRun: func(ctx context.Context) error {
			return os.MkdirAll(outputDir, 0o755)
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create batch runner")
	}

	outcome, err := runner.Run(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Batch run failed")
	}

	log.Info().
		Int("attempted", outcome.Attempted).
		Int("succeeded", outcome.Succeeded).
		Int("errored", outcome.Errored).
		Msg("Log download run complete")

	if outcome.Errored > 0 {
		os.Exit(1)
	}
}

// readJobIDs reads one job ID per line, skipping blanks and # comments.
func readJobIDs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
