// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package policy

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads the table whenever the route file changes on disk. A failed
// reload keeps the previous table. The returned function stops the watcher.
func (t *Table) Watch(path string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace files on save, which would drop a
	// watch on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := t.Load(path); err != nil {
					log.Errorf("route table reload failed, keeping previous table: %v", err)
					continue
				}
				log.WithField("routes", len(t.Endpoints())).Info("route table reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("route table watcher error: %v", err)
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
