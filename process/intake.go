// Command intake bulk-seals a drop folder of evidence files: every file in
// the directory is run through the same digest/store/anchor workflow the API
// uses, then moved to a processed/ sibling so re-runs only pick up new
// arrivals. --watch keeps the tool running on fsnotify create events.
package main

import (
	"context"
	"errors"
	"flag"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/models"
	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/custody"
	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/hashing"
	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/ipfs"
	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/ledger"
)

type intake struct {
	db      *gorm.DB
	svc     *custody.Service
	logger  *zap.Logger
	officer *models.User
	dir     string
	dryRun  bool
}

func main() {
	dirFlag := flag.String("dir", "intake", "directory to scan for evidence files")
	collector := flag.String("collector", "admin", "username the sealed evidence is attributed to")
	dryRun := flag.Bool("dry-run", false, "list candidate files without sealing anything")
	watch := flag.Bool("watch", false, "watch the directory for new files")
	workers := flag.Int("workers", 0, "worker pool size (default NumCPU)")
	flag.Parse()

	_ = godotenv.Load()
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if *dryRun {
		files := listFiles(*dirFlag)
		logger.Info("dry-run scan complete", zap.String("dir", *dirFlag), zap.Int("candidates", len(files)))
		for _, f := range files {
			logger.Info("candidate", zap.String("file", f))
		}
		return
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("LEDGER_URL", "http://localhost:8545")
	v.SetDefault("LEDGER_CONFIRM_WAIT", 2*time.Minute)
	v.SetDefault("LEDGER_POLL_INTERVAL", 3*time.Second)
	v.SetDefault("IPFS_URL", "http://localhost:5001")
	v.SetDefault("IPFS_GATEWAY_URL", "http://localhost:8080")
	v.SetDefault("IPFS_TIMEOUT", 30*time.Second)

	dsn := v.GetString("DB_DSN")
	if dsn == "" {
		logger.Fatal("DB_DSN must be set in the environment to run this tool")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	var officer models.User
	if err := gdb.Where("username = ?", *collector).First(&officer).Error; err != nil {
		logger.Fatal("collector user not found", zap.String("username", *collector), zap.Error(err))
	}

	store := ipfs.NewClient(v.GetString("IPFS_URL"), v.GetString("IPFS_GATEWAY_URL"), v.GetDuration("IPFS_TIMEOUT"), logger)
	chain := ledger.NewClient(v.GetString("LEDGER_URL"), v.GetDuration("LEDGER_CONFIRM_WAIT"), v.GetDuration("LEDGER_POLL_INTERVAL"), logger)
	svc := custody.NewService(gdb, store, chain, logger, v.GetString("DEFAULT_COLLECTOR_ADDRESS"))

	in := &intake{db: gdb, svc: svc, logger: logger, officer: &officer, dir: *dirFlag}

	files := listFiles(*dirFlag)
	logger.Info("scanning intake directory",
		zap.String("dir", *dirFlag), zap.Int("files", len(files)), zap.Int("workers", effectiveWorkers(*workers)))
	in.sealAll(files, effectiveWorkers(*workers))

	if *watch {
		if err := in.watchDirectory(effectiveWorkers(*workers)); err != nil {
			logger.Fatal("watch failed", zap.Error(err))
		}
	}
}

func effectiveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}

func listFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

// runWorkerPool drains fileCh with a fixed pool; each file is an independent
// workflow run, so the only shared resource is the database.
func (in *intake) runWorkerPool(fileCh <-chan string, workers int) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				in.processFile(name)
			}
		}()
	}
	wg.Wait()
}

func (in *intake) sealAll(files []string, workers int) {
	fileCh := make(chan string, len(files)+1)
	for _, f := range files {
		fileCh <- f
	}
	close(fileCh)
	in.runWorkerPool(fileCh, workers)
}

// watchDirectory feeds debounced create events into the worker pool; files
// still being written settle for 300ms before they are picked up.
func (in *intake) watchDirectory(workers int) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(in.dir); err != nil {
		return err
	}
	in.logger.Info("watching intake directory", zap.String("dir", in.dir))

	fileCh := make(chan string, 256)
	go func() {
		pending := map[string]time.Time{}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					close(fileCh)
					return
				}
				if ev.Op&fsnotify.Create == fsnotify.Create {
					name := filepath.Base(ev.Name)
					if strings.HasPrefix(name, ".") {
						continue
					}
					pending[name] = time.Now()
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > 300*time.Millisecond { // stable
						fileCh <- name
						delete(pending, name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					close(fileCh)
					return
				}
				in.logger.Warn("watch error", zap.Error(err))
			}
		}
	}()

	in.runWorkerPool(fileCh, workers)
	return nil
}

// processFile seals one file idempotently: content already sealed (matched
// by digest) is skipped, and a successfully sealed file is moved aside so a
// rescan does not resubmit it.
func (in *intake) processFile(name string) {
	path := filepath.Join(in.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		in.logger.Warn("unreadable file", zap.String("file", name), zap.Error(err))
		return
	}
	digest := hashing.Digest(data)
	var existing models.Evidence
	if err := in.db.Where("file_digest = ?", digest).First(&existing).Error; err == nil {
		in.logger.Info("skip: content already sealed",
			zap.String("file", name), zap.Int64("evidence_id", existing.EvidenceID))
		if err := in.moveToProcessed(path, name); err != nil {
			in.logger.Warn("failed to move already-sealed file", zap.String("file", name), zap.Error(err))
		}
		return
	}

	rec, err := in.svc.Seal(context.Background(), custody.SealRequest{
		Data:       data,
		FileName:   name,
		FileType:   mimeFromExt(name),
		CapturedAt: time.Now(),
		Collector:  in.officer,
	})
	if err != nil {
		var ce *custody.Error
		if errors.As(err, &ce) && ce.Kind == custody.KindConflict {
			in.logger.Error("identifier conflict; leaving file for manual review",
				zap.String("file", name), zap.Error(err))
			return
		}
		in.logger.Error("seal failed", zap.String("file", name), zap.Error(err))
		return
	}
	in.logger.Info("sealed",
		zap.String("file", name),
		zap.Int64("evidence_id", rec.EvidenceID),
		zap.String("cid", rec.ContentID),
		zap.String("tx", rec.LedgerReference))

	if err := in.moveToProcessed(path, name); err != nil {
		in.logger.Warn("sealed but failed to move file; rescans will skip it by digest",
			zap.String("file", name), zap.Error(err))
	}
}

func mimeFromExt(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// moveToProcessed relocates a handled file into <dir>/processed, attempting
// an atomic rename and falling back to copy+remove across filesystems.
func (in *intake) moveToProcessed(srcFullPath, name string) error {
	processedDir := filepath.Join(in.dir, "processed")
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(processedDir, name)
	if err := os.Rename(srcFullPath, dst); err == nil {
		return nil
	}
	return copyRemove(srcFullPath, dst)
}

func copyRemove(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
