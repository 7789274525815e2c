// Package filetoken provides a change token that fires when a file is
// written, created, removed or renamed.
package filetoken

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/IvanBrykalov/memorycache/token"
)

// Token is an active token bound to one file. It fires at most once and
// releases its watcher when it does; call Close to release it earlier.
type Token struct {
	src  *token.Source
	w    *fsnotify.Watcher
	name string

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	mu  sync.Mutex
	err error
}

// Watch starts watching path. The parent directory is watched so that
// editors that replace the file by rename are seen too. The file itself
// need not exist yet.
func Watch(path string) (*Token, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("filetoken: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("filetoken: new watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("filetoken: watch %s: %w", filepath.Dir(abs), err)
	}
	t := &Token{
		src:  token.NewSource(),
		w:    w,
		name: filepath.Clean(abs),
		done: make(chan struct{}),
	}
	go t.loop()
	return t, nil
}

const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

func (t *Token) loop() {
	defer close(t.done)
	for {
		select {
		case ev, ok := <-t.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == t.name && ev.Op&relevant != 0 {
				t.src.Signal()
				go func() { _ = t.Close() }()
				return
			}
		case err, ok := <-t.w.Errors:
			if !ok {
				return
			}
			// A watcher error means changes may be missed: fail safe.
			t.mu.Lock()
			t.err = err
			t.mu.Unlock()
			t.src.Signal()
			go func() { _ = t.Close() }()
			return
		}
	}
}

// HasChanged reports whether the file changed (or watching failed).
func (t *Token) HasChanged() bool { return t.src.Signalled() }

// RegisterChangeCallback implements token.ChangeToken.
func (t *Token) RegisterChangeCallback(fn func()) (func(), bool) {
	return t.src.Token().RegisterChangeCallback(fn)
}

// Err returns the watcher error that fired the token, if any.
func (t *Token) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close stops watching without firing the token.
func (t *Token) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.w.Close()
		<-t.done
	})
	return t.closeErr
}

var _ token.ChangeToken = (*Token)(nil)
