// Package cleanup retires aged and duplicate files from the working
// directories on a fixed schedule.
package cleanup

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
)

// Config for the sweeper.
type Config struct {
	// Directories swept for aged files.
	Directories []string
	// DuplicateDirectories additionally get heuristic duplicate removal.
	DuplicateDirectories []string
	Interval             time.Duration
	MaxAge               time.Duration
}

// Sweeper deletes files older than MaxAge and heuristic duplicates. It is
// an explicitly constructed service with a start/stop lifecycle; nothing
// here is a singleton.
type Sweeper struct {
	logger logger.Logger
	config Config
	cron   *cron.Cron
}

func NewSweeper(log logger.Logger, cfg Config) *Sweeper {
	return &Sweeper{
		logger: log,
		config: cfg,
	}
}

// Start schedules the periodic sweep. The first run happens after one full
// interval, not immediately.
func (s *Sweeper) Start() error {
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.config.Interval), s.Sweep); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("cleanup service started",
		logger.Duration("interval", s.config.Interval),
		logger.Duration("maxAge", s.config.MaxAge),
	)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("cleanup service stopped")
}

// Sweep runs one full pass over all configured directories.
func (s *Sweeper) Sweep() {
	s.logger.Debug("starting cleanup pass")

	for _, dir := range s.config.Directories {
		s.removeOldFiles(dir)
	}
	for _, dir := range s.config.DuplicateDirectories {
		s.removeDuplicates(dir)
	}

	s.logger.Debug("cleanup pass completed")
}

func (s *Sweeper) removeOldFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("cannot read directory for cleanup",
				logger.String("dir", dir),
				logger.Error(err),
			)
		}
		return
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= s.config.MaxAge {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Error("failed to remove old file",
				logger.String("path", path),
				logger.Error(err),
			)
			continue
		}
		s.logger.Info("removed old file", logger.String("path", path))
	}
}

// removeDuplicates groups PDFs by a size+mtime fingerprint and keeps only
// the newest file of each group. This is a heuristic, not a content hash:
// distinct files that happen to share size and mtime are treated as
// duplicates, and byte-identical files with different mtimes are not.
func (s *Sweeper) removeDuplicates(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("cannot read directory for duplicate scan",
				logger.String("dir", dir),
				logger.Error(err),
			)
		}
		return
	}

	groups := make(map[string][]string)
	modTimes := make(map[string]time.Time)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		fp := fingerprint(info)
		groups[fp] = append(groups[fp], path)
		modTimes[path] = info.ModTime()
	}

	for _, paths := range groups {
		if len(paths) < 2 {
			continue
		}
		// Newest first; everything after it goes.
		sort.Slice(paths, func(i, j int) bool {
			return modTimes[paths[i]].After(modTimes[paths[j]])
		})
		for _, path := range paths[1:] {
			if err := os.Remove(path); err != nil {
				s.logger.Error("failed to remove duplicate file",
					logger.String("path", path),
					logger.Error(err),
				)
				continue
			}
			s.logger.Info("removed duplicate file", logger.String("path", path))
		}
	}
}

func fingerprint(info os.FileInfo) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixMilli())))
	return fmt.Sprintf("%x", sum)
}
