// Package main implements the salvage CLI tool for recovering timelapse
// buckets that never finalized (process crash mid-bucket, encoder outage,
// disk pressure during encode).
//
// This tool is intended for operational debugging and manual recovery. It
// works directly against the on-disk timelapse tree and does not require the
// server to be running.
//
// Usage:
//
//	go run ./cmd/tools/salvage --list
//	go run ./cmd/tools/salvage --finalize=lot_a_1756600000000 --camera=cam-01
//	go run ./cmd/tools/salvage --archive=lot_a_1756600000000
//
// --list prints orphaned job directories (frames present, no video).
// --finalize re-runs the encode pipeline for one orphan, producing the video
// artifact the crashed process never wrote. --archive compresses an orphan
// into a tar.zst and removes the directory, for frames not worth encoding.
//
// The tool reads TIMELAPSE_ROOT and FFMPEG_PATH from environment variables
// (or .env file via godotenv). When DATABASE_URL is set, camera display
// names are resolved from the registry; otherwise the raw camera ID is used.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"lotwatch/internal/db"
	"lotwatch/internal/timelapse"
)

func main() {
	var (
		list       = flag.Bool("list", false, "list orphaned job directories and exit")
		finalizeID = flag.String("finalize", "", "job ID to re-finalize into a video artifact")
		cameraID   = flag.String("camera", "", "camera ID owning the job (required with --finalize)")
		archiveID  = flag.String("archive", "", "job ID to compress into a tar.zst and remove")
		encodeWait = flag.Duration("encode-timeout", 15*time.Minute, "maximum duration for the encode")
	)
	flag.Parse()

	if err := run(*list, *finalizeID, *cameraID, *archiveID, *encodeWait); err != nil {
		fmt.Fprintf(os.Stderr, "salvage: %v\n", err)
		os.Exit(1)
	}
}

func run(list bool, finalizeID, cameraID, archiveID string, encodeWait time.Duration) error {
	_ = godotenv.Load()

	root := os.Getenv("TIMELAPSE_ROOT")
	if root == "" {
		root = "storage/timelapse"
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case list:
		return runList(root)
	case archiveID != "":
		return runArchive(root, archiveID)
	case finalizeID != "":
		if cameraID == "" {
			return fmt.Errorf("--finalize requires --camera")
		}
		return runFinalize(ctx, root, finalizeID, cameraID, encodeWait, logger)
	default:
		flag.Usage()
		return fmt.Errorf("one of --list, --finalize, or --archive is required")
	}
}

// runList prints orphaned job directories, one per line.
func runList(root string) error {
	orphans, err := timelapse.ListOrphans(root)
	if err != nil {
		return fmt.Errorf("listing orphans: %w", err)
	}
	if len(orphans) == 0 {
		fmt.Println("no orphaned jobs")
		return nil
	}
	for _, jobID := range orphans {
		fmt.Println(jobID)
	}
	return nil
}

// runArchive compresses the job directory and removes it.
func runArchive(root, jobID string) error {
	path, err := timelapse.ArchiveJob(root, jobID)
	if err != nil {
		return fmt.Errorf("archiving %s: %w", jobID, err)
	}
	fmt.Printf("archived %s -> %s\n", jobID, path)
	return nil
}

// runFinalize re-runs the encode pipeline for one orphaned job. The camera
// registry is consulted for the display name only when DATABASE_URL is set.
func runFinalize(ctx context.Context, root, jobID, cameraID string, encodeWait time.Duration, logger *slog.Logger) error {
	ffmpegPath := os.Getenv("FFMPEG_PATH")
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	var directory timelapse.CameraDirectory
	if url := os.Getenv("DATABASE_URL"); url != "" {
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return fmt.Errorf("connecting database: %w", err)
		}
		defer pool.Close()
		directory = db.NewCameraRepository(pool)
	}

	finalizer := timelapse.NewFinalizer(timelapse.FinalizerConfig{
		Root:          root,
		FFmpegPath:    ffmpegPath,
		EncodeTimeout: encodeWait,
		Directory:     directory,
		Runner:        timelapse.NewExecRunner(logger),
		Logger:        logger,
	})

	// The orphan's name embeds the bucket's true start; re-finalizing must
	// preserve it so the artifact name covers the window actually captured.
	startedAt, ok := timelapse.JobStartTime(jobID)
	if !ok {
		startedAt = time.Now().UTC()
	}

	if err := finalizer.Finalize(ctx, cameraID, jobID, startedAt); err != nil {
		return fmt.Errorf("finalizing %s: %w", jobID, err)
	}
	fmt.Printf("finalized %s\n", jobID)
	return nil
}
