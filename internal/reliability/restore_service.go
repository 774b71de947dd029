package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// RestoreService restores databases from cloud backups on startup.
type RestoreService struct {
	r2Client *R2Client
	dataDir  string
	log      zerolog.Logger
}

// NewRestoreService creates a new restore service.
func NewRestoreService(r2Client *R2Client, dataDir string, log zerolog.Logger) *RestoreService {
	return &RestoreService{
		r2Client: r2Client,
		dataDir:  dataDir,
		log:      log.With().Str("service", "restore").Logger(),
	}
}

// RestoreIfEmpty restores the most recent cloud backup when none of the
// named databases exist on disk. A fresh install on a replacement machine
// picks up where the old one left off; any existing database file means
// this is not a fresh install and nothing is touched.
// Returns true if a restore was performed.
func (s *RestoreService) RestoreIfEmpty(ctx context.Context, dbNames []string) (bool, error) {
	for _, name := range dbNames {
		if _, err := os.Stat(filepath.Join(s.dataDir, name+".db")); err == nil {
			s.log.Debug().Str("database", name).Msg("Existing database found, skipping restore")
			return false, nil
		}
	}

	archiveName, found, err := s.latestBackup(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to find latest backup: %w", err)
	}
	if !found {
		s.log.Info().Msg("No cloud backups found, starting fresh")
		return false, nil
	}

	s.log.Info().Str("archive", archiveName).Msg("Restoring databases from cloud backup")

	if err := s.restoreArchive(ctx, archiveName, dbNames); err != nil {
		return false, fmt.Errorf("failed to restore %s: %w", archiveName, err)
	}

	s.log.Info().Str("archive", archiveName).Msg("Restore completed successfully")
	return true, nil
}

// latestBackup returns the name of the most recent backup archive in R2.
func (s *RestoreService) latestBackup(ctx context.Context) (string, bool, error) {
	objects, err := s.r2Client.List(ctx, backupPrefix)
	if err != nil {
		return "", false, err
	}

	var latestName string
	var latestTime time.Time
	var found bool
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}

		timestamp, ok := parseBackupTimestamp(*obj.Key)
		if !ok {
			continue
		}

		if !found || timestamp.After(latestTime) {
			latestName = *obj.Key
			latestTime = timestamp
			found = true
		}
	}

	return latestName, found, nil
}

// restoreArchive downloads an archive, verifies the checksums recorded in
// its metadata file and moves the database files into the data directory.
func (s *RestoreService) restoreArchive(ctx context.Context, archiveName string, dbNames []string) error {
	stagingDir := filepath.Join(s.dataDir, "restore-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	body, err := s.r2Client.Download(ctx, archiveName)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := extractArchive(body, stagingDir); err != nil {
		return fmt.Errorf("failed to extract archive: %w", err)
	}

	metadata, err := readMetadata(filepath.Join(stagingDir, "backup-metadata.json"))
	if err != nil {
		return fmt.Errorf("failed to read backup metadata: %w", err)
	}

	restored := make(map[string]bool, len(metadata.Databases))
	for _, dbMeta := range metadata.Databases {
		dbPath := filepath.Join(stagingDir, dbMeta.Filename)

		checksum, err := calculateChecksum(dbPath)
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", dbMeta.Filename, err)
		}
		if checksum != dbMeta.Checksum {
			return fmt.Errorf("checksum mismatch for %s: expected %s, got %s",
				dbMeta.Filename, dbMeta.Checksum, checksum)
		}

		if err := verifyDatabaseFile(dbPath); err != nil {
			return fmt.Errorf("restored %s failed verification: %w", dbMeta.Filename, err)
		}

		restored[dbMeta.Name] = true
	}

	// Only move files into place once every database has been verified.
	for _, name := range dbNames {
		if !restored[name] {
			return fmt.Errorf("backup archive is missing database %q", name)
		}
	}

	for _, dbMeta := range metadata.Databases {
		src := filepath.Join(stagingDir, dbMeta.Filename)
		dst := filepath.Join(s.dataDir, dbMeta.Filename)

		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to move %s into place: %w", dbMeta.Filename, err)
		}

		s.log.Info().Str("database", dbMeta.Name).Str("path", dst).Msg("Database restored")
	}

	return nil
}

// readMetadata reads a backup metadata file.
func readMetadata(path string) (BackupMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BackupMetadata{}, err
	}

	var metadata BackupMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return BackupMetadata{}, err
	}

	return metadata, nil
}

// extractArchive unpacks a tar.gz stream into destDir. Archives are created
// flat, so any entry with a path separator is rejected.
func extractArchive(r io.Reader, destDir string) error {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}
		if header.Name != filepath.Base(header.Name) {
			return fmt.Errorf("unexpected path in archive: %s", header.Name)
		}

		destPath := filepath.Join(destDir, header.Name)
		file, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", header.Name, err)
		}

		if _, err := io.Copy(file, tarReader); err != nil {
			file.Close()
			return fmt.Errorf("failed to write %s: %w", header.Name, err)
		}

		if err := file.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", header.Name, err)
		}
	}

	return nil
}
