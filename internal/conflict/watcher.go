package conflict

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FieldsWatcher reloads the semantic field table when its YAML file changes,
// so field keywords can be tuned without restarting the service.
type FieldsWatcher struct {
	path     string
	resolver *Resolver
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewFieldsWatcher creates a watcher for the given fields file. The file does
// not need to exist yet; the watcher picks it up once written.
func NewFieldsWatcher(path string, resolver *Resolver) *FieldsWatcher {
	return &FieldsWatcher{
		path:     path,
		resolver: resolver,
		done:     make(chan struct{}),
	}
}

// Start loads the file if present, then begins watching its directory.
// Call Stop() to clean up.
func (fw *FieldsWatcher) Start() error {
	fw.reload()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory rather than the file: editors replace files on
	// save, which would silently detach a file-level watch.
	if err := w.Add(filepath.Dir(fw.path)); err != nil {
		_ = w.Close()
		return err
	}
	fw.watcher = w

	go fw.loop()
	log.Printf("conflict: watching %s for field table changes", fw.path)
	return nil
}

// Stop shuts down the watcher. Safe to call when Start failed or never ran.
func (fw *FieldsWatcher) Stop() {
	if fw.watcher == nil {
		return
	}
	_ = fw.watcher.Close()
	<-fw.done
}

func (fw *FieldsWatcher) loop() {
	defer close(fw.done)
	for {
		select {
		case evt, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) != 0 && filepath.Clean(evt.Name) == filepath.Clean(fw.path) {
				fw.reload()
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("conflict: watcher error: %v", err)
		}
	}
}

// reload swaps in the file's field table; on any error the current table
// stays in effect.
func (fw *FieldsWatcher) reload() {
	fields, err := LoadFields(fw.path)
	if err != nil {
		log.Printf("conflict: keeping current field table: %v", err)
		return
	}
	fw.resolver.SetFields(fields)
	log.Printf("conflict: loaded %d semantic fields from %s", len(fields), fw.path)
}
