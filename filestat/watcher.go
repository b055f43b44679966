// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package filestat

import (
	"path"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/bitmark-inc/compilerproxy/fault"
)

// Watcher pushes a "might have changed" signal for one local compiler
// path. It never replaces the Stat/CanBeStale contract; a caller still
// validates through compilercache.Lookup, it only lets a long-running
// driver invalidate a cached entry proactively instead of waiting for
// the next build to notice.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	Changed chan struct{}
	Removed chan struct{}
}

// NewWatcher starts watching targetPath. Changed fires on write/chmod
// events against that exact file; Removed fires once, after which the
// watcher is dead and should be discarded.
func NewWatcher(targetPath string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if nil != err {
		return nil, err
	}

	absPath, err := filepath.Abs(filepath.Clean(targetPath))
	if nil != err {
		w.Close()
		return nil, err
	}

	if Get(absPath).Invalid() {
		w.Close()
		return nil, fault.ErrCacheMiss
	}

	if err := w.Add(filepath.Dir(absPath)); nil != err {
		w.Close()
		return nil, err
	}

	watcher := &Watcher{
		watcher: w,
		path:    absPath,
		Changed: make(chan struct{}, 1),
		Removed: make(chan struct{}, 1),
	}
	go watcher.run()
	return watcher, nil
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) run() {
	base := path.Base(w.path)
	for event := range w.watcher.Events {
		if path.Base(filepath.Clean(event.Name)) != base {
			continue
		}

		if event.Op&fsnotify.Remove == fsnotify.Remove || event.Op&fsnotify.Rename == fsnotify.Rename {
			w.send(w.Removed)
			return
		}

		if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Chmod == fsnotify.Chmod {
			w.send(w.Changed)
		}
	}
}

func (w *Watcher) send(ch chan struct{}) {
	if len(ch) < cap(ch) {
		ch <- struct{}{}
	}
}
