package timelapse

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"lotwatch/internal/types"
)

// ListArtifacts enumerates finalized timelapse videos under root. A job
// directory counts as an artifact only when it contains its {jobID}.mp4;
// in-progress capture directories and stray files are skipped.
func ListArtifacts(root string) ([]types.TimelapseArtifact, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return []types.TimelapseArtifact{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading timelapse root: %w", err)
	}

	artifacts := []types.TimelapseArtifact{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobID := entry.Name()
		videoName := jobID + ".mp4"
		info, err := os.Stat(filepath.Join(root, jobID, videoName))
		if err != nil {
			continue
		}
		artifacts = append(artifacts, types.TimelapseArtifact{
			JobID:      jobID,
			FileName:   videoName,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ModifiedAt.After(artifacts[j].ModifiedAt)
	})
	return artifacts, nil
}
