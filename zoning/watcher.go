package zoning

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses bursts of writes (editors, copies) into one reload.
const reloadDebounce = 500 * time.Millisecond

// Watch reloads the dataset whenever a file matching its pattern changes.
// It blocks until ctx is cancelled. Reload failures are logged and the
// previous snapshot keeps serving.
func (d *Dataset) Watch(ctx context.Context) error {
	if d.pattern == "" {
		return fmt.Errorf("dataset was not opened from files")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	base, _ := doublestar.SplitPattern(filepath.ToSlash(d.pattern))
	root := filepath.FromSlash(base)
	if err := addDirs(fsw, root); err != nil {
		return err
	}
	d.logger.Info("Watching zoning dataset", "root", root, "pattern", d.pattern)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = fsw.Add(event.Name)
					continue
				}
			}
			if !d.matches(event.Name) {
				continue
			}
			d.logger.Debug("Zoning file changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(reloadDebounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			d.logger.Error("Zoning watcher error", "error", err)

		case <-timer.C:
			if err := d.Reload(); err != nil {
				d.logger.Warn("Zoning reload failed, keeping previous dataset", "error", err)
			}
		}
	}
}

func (d *Dataset) matches(path string) bool {
	ok, err := doublestar.PathMatch(d.pattern, path)
	return err == nil && ok
}

func addDirs(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
