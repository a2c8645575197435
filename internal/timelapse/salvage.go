package timelapse

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// ListOrphans returns job directories under root that hold captured frames
// but no finalized video: the residue of failed or interrupted
// finalizations. Orphans are left for operator inspection; this function is
// the inspection entry point.
func ListOrphans(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading timelapse root: %w", err)
	}

	var orphans []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobID := entry.Name()
		if _, err := os.Stat(filepath.Join(root, jobID, jobID+".mp4")); err == nil {
			continue
		}
		count, err := countFrames(filepath.Join(root, jobID, framesDirName))
		if err != nil || count == 0 {
			continue
		}
		orphans = append(orphans, jobID)
	}
	sort.Strings(orphans)
	return orphans, nil
}

// ArchiveJob packs an orphaned job directory into {root}/{jobID}.tar.zst and
// removes the directory on success. The archive preserves the frames for
// later inspection or manual re-assembly while reclaiming the directory
// tree.
func ArchiveJob(root, jobID string) (string, error) {
	jobDir := filepath.Join(root, jobID)
	if _, err := os.Stat(jobDir); err != nil {
		return "", fmt.Errorf("job directory %s: %w", jobID, err)
	}

	archivePath := filepath.Join(root, jobID+".tar.zst")
	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}

	if err := writeJobArchive(out, jobDir, jobID); err != nil {
		out.Close()
		os.Remove(archivePath)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("closing archive: %w", err)
	}

	if err := os.RemoveAll(jobDir); err != nil {
		return archivePath, fmt.Errorf("archive written but job directory not removed: %w", err)
	}
	return archivePath, nil
}

// writeJobArchive streams jobDir into w as a zstd-compressed tarball with
// entries rooted at jobID/.
func writeJobArchive(w io.Writer, jobDir, jobID string) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	walkErr := filepath.WalkDir(jobDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(jobDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(jobID, rel))
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	})
	if walkErr != nil {
		tw.Close()
		zw.Close()
		return fmt.Errorf("archiving %s: %w", jobID, walkErr)
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
