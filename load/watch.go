package load

import (
	"io"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/syssam/veil/registry"
)

// Watcher reloads a policy file into a fresh registry on every change.
type Watcher struct {
	fw   *fsnotify.Watcher
	done chan struct{}
}

// Watch loads the policy file at path into a fresh registry now and again
// on each write, invoking handler with the result. handler receives either
// a fully loaded registry or the load error; a registry is never delivered
// half-loaded, so hosts can swap it in atomically. opts configure each
// registry the watcher creates.
//
// Intended for development hosts; production hosts should load once at
// startup. Close releases the underlying file watcher.
func Watch(path string, funcs FuncMap, handler func(*registry.Registry, error), opts ...registry.Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files by rename, which drops a
	// watch on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{fw: fw, done: make(chan struct{})}
	load := func() {
		reg := registry.New(opts...)
		if err := LoadFile(path, reg, funcs); err != nil {
			handler(nil, err)
			return
		}
		handler(reg, nil)
	}
	load()
	go w.run(filepath.Clean(path), load, handler)
	return w, nil
}

func (w *Watcher) run(path string, load func(), handler func(*registry.Registry, error)) {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				load()
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			handler(nil, err)
		}
	}
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}

var _ io.Closer = (*Watcher)(nil)
