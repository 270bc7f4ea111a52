// Package pipeline keeps the per-phase dataset collections of a running
// loader up to date with the data directories they were built from.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"segloader/config"
	"segloader/datasets"
	"segloader/logging"
)

type LoaderConfig struct {
	Watch    bool
	Debounce time.Duration
}

// Event reports a freshly built collection.
type Event struct {
	Phase    datasets.Phase `json:"phase"`
	Datasets int            `json:"datasets"`
	Samples  int            `json:"samples"`
	Reload   bool           `json:"reload"`
	Time     time.Time      `json:"time"`
}

type LoaderStats struct {
	Builds     int64     `json:"builds"`
	Failures   int64     `json:"failures"`
	LastReload time.Time `json:"last_reload"`
}

// Loader builds one collection per configured phase and, with watching
// enabled, rebuilds a phase when data files appear in or vanish from its
// directories. Collections returned by Current are closed when replaced.
type Loader struct {
	config  LoaderConfig
	loaders config.Loaders
	opts    []datasets.Option
	logger  *zap.Logger

	listenersLock sync.RWMutex
	listeners     []func(Event)

	mu      sync.RWMutex
	current map[datasets.Phase]*datasets.Collection

	watcher  *fsnotify.Watcher
	watched  map[string][]datasets.Phase // directory -> phases reading it
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	stats     LoaderStats
	statsLock sync.RWMutex
}

func NewLoader(cfg LoaderConfig, loaders config.Loaders, logger *zap.Logger, opts ...datasets.Option) *Loader {
	if cfg.Debounce == 0 {
		cfg.Debounce = time.Duration(config.DefaultDebounceMs) * time.Millisecond
	}
	logger = logging.OrNop(logger)
	return &Loader{
		config:   cfg,
		loaders:  loaders,
		opts:     append([]datasets.Option{datasets.WithLogger(logger)}, opts...),
		logger:   logger,
		current:  make(map[datasets.Phase]*datasets.Collection),
		watched:  make(map[string][]datasets.Phase),
		stopChan: make(chan struct{}),
	}
}

// OnBuild registers fn to be called after every collection build.
func (l *Loader) OnBuild(fn func(Event)) {
	l.listenersLock.Lock()
	defer l.listenersLock.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Phases lists the phases present in the configuration.
func (l *Loader) Phases() []datasets.Phase {
	var phases []datasets.Phase
	for _, p := range datasets.Phases() {
		if l.loaders.Phase(string(p)) != nil {
			phases = append(phases, p)
		}
	}
	return phases
}

// Start builds every configured phase and starts the watch loop when enabled.
func (l *Loader) Start() error {
	phases := l.Phases()
	if len(phases) == 0 {
		return fmt.Errorf("no phase configured")
	}
	for _, p := range phases {
		if err := l.build(p, false); err != nil {
			return err
		}
	}
	if !l.config.Watch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	l.watcher = watcher
	for _, p := range phases {
		for _, dir := range watchDirs(l.loaders.Phase(string(p)).FilePaths) {
			if _, seen := l.watched[dir]; !seen {
				if err := watcher.Add(dir); err != nil {
					l.logger.Warn("cannot watch directory", zap.String("dir", dir), zap.Error(err))
					continue
				}
				l.logger.Info("Watching data directory", zap.String("dir", dir))
			}
			l.watched[dir] = append(l.watched[dir], p)
		}
	}

	l.wg.Add(1)
	go l.runWatchLoop()
	return nil
}

// watchDirs maps configured paths to the directories holding their files.
func watchDirs(paths []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		dir := p
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			dir = filepath.Dir(p)
		}
		dir = filepath.Clean(dir)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func (l *Loader) runWatchLoop() {
	defer l.wg.Done()

	timer := time.NewTimer(l.config.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	dirty := make(map[datasets.Phase]bool)

	for {
		select {
		case <-l.stopChan:
			timer.Stop()
			return

		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !datasets.IsDataFile(ev.Name) || ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			l.logger.Debug("data file changed", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			for _, p := range l.watched[filepath.Dir(ev.Name)] {
				dirty[p] = true
			}
			timer.Reset(l.config.Debounce)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("watcher error", zap.Error(err))

		case <-timer.C:
			for p := range dirty {
				if err := l.build(p, true); err != nil {
					l.logger.Error("Reload failed", zap.String("phase", string(p)), zap.Error(err))
				}
				delete(dirty, p)
			}
		}
	}
}

// Reload rebuilds phase immediately.
func (l *Loader) Reload(phase datasets.Phase) error {
	return l.build(phase, true)
}

func (l *Loader) build(phase datasets.Phase, reload bool) error {
	coll, err := datasets.Load(l.loaders, phase, l.opts...)
	if err != nil {
		l.statsLock.Lock()
		l.stats.Failures++
		l.statsLock.Unlock()
		return fmt.Errorf("build %s collection: %w", phase, err)
	}

	l.mu.Lock()
	old := l.current[phase]
	l.current[phase] = coll
	l.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			l.logger.Warn("closing replaced collection failed", zap.String("phase", string(phase)), zap.Error(err))
		}
	}

	now := time.Now()
	l.statsLock.Lock()
	l.stats.Builds++
	if reload {
		l.stats.LastReload = now
	}
	l.statsLock.Unlock()

	ev := Event{
		Phase:    phase,
		Datasets: len(coll.Datasets()),
		Samples:  coll.Len(),
		Reload:   reload,
		Time:     now,
	}
	l.logger.Info("Collection ready",
		zap.String("phase", string(phase)),
		zap.Int("datasets", ev.Datasets),
		zap.Int("samples", ev.Samples),
		zap.Bool("reload", reload))

	l.listenersLock.RLock()
	listeners := append([]func(Event){}, l.listeners...)
	l.listenersLock.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
	return nil
}

// Current returns the latest collection for phase, or nil.
func (l *Loader) Current(phase datasets.Phase) *datasets.Collection {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current[phase]
}

func (l *Loader) Stats() LoaderStats {
	l.statsLock.RLock()
	defer l.statsLock.RUnlock()
	return l.stats
}

// Stop ends the watch loop and closes every collection.
func (l *Loader) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
		if l.watcher != nil {
			err = multierr.Append(err, l.watcher.Close())
		}

		l.mu.Lock()
		for p, coll := range l.current {
			err = multierr.Append(err, coll.Close())
			delete(l.current, p)
		}
		l.mu.Unlock()
		l.logger.Info("Loader stopped")
	})
	return err
}
