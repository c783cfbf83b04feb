package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultLocalSlots = 2
	localJobPrefix    = "local-"
)

// Файлы каталога job.
const (
	stateFile   = "state"
	specFile    = "spec.json"
	claimedFile = "spec.claimed"
	scriptFile  = "job.sh"
	pidFile     = "pid"
)

// wrapperScript запускает job.sh и записывает итоговое состояние.
// Выполняется в рабочем каталоге task, каталог job приходит в BOURREAU_JOB_DIR.
const wrapperScript = `
job_state() {
	printf '%s' "$1" > "$BOURREAU_JOB_DIR/state.tmp" && mv "$BOURREAU_JOB_DIR/state.tmp" "$BOURREAU_JOB_DIR/state"
}
printf '%s' "$$" > "$BOURREAU_JOB_DIR/pid"
job_state running
if /bin/sh "$BOURREAU_JOB_DIR/job.sh" > job.stdout 2> job.stderr; then
	job_state done
else
	job_state failed
fi
`

// LocalBackend выполняет jobs как процессы на этой машине.
//
// Состояние job лежит на диске в JobsDir/<job id>/state, его пишет
// сам процесс job. Поэтому State видит jobs, запущенные другим
// воркером или до рестарта, а процессы jobs переживают воркер.
//
// Одновременно выполняется не больше Slots jobs одного LocalBackend,
// остальные ждут в состоянии JobQueued. Job в очереди может забрать
// любой LocalBackend с тем же JobsDir: запуск начинается с атомарного
// переименования spec.json, так что job стартует ровно один раз.
type LocalBackend struct {
	logger  *zap.Logger
	jobsDir string
	slots   *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	pending map[string]struct{}
	wg      sync.WaitGroup
}

// LocalConfig — конфигурация LocalBackend.
type LocalConfig struct {
	// JobsDir — общий каталог состояния jobs (default: $TMPDIR/bourreau-jobs).
	JobsDir string

	// Slots — сколько jobs выполняется одновременно (default: 2).
	Slots  int64
	Logger *zap.Logger
}

// NewLocalBackend создаёт LocalBackend.
func NewLocalBackend(cfg LocalConfig) *LocalBackend {
	slots := cfg.Slots
	if slots <= 0 {
		slots = defaultLocalSlots
	}
	jobsDir := cfg.JobsDir
	if jobsDir == "" {
		jobsDir = filepath.Join(os.TempDir(), "bourreau-jobs")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &LocalBackend{
		logger:  logger,
		jobsDir: jobsDir,
		slots:   semaphore.NewWeighted(slots),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]struct{}),
	}
}

// Submit записывает job на диск, ставит в очередь и сразу возвращает его ID.
func (b *LocalBackend) Submit(_ context.Context, spec JobSpec) (string, error) {
	if len(spec.Commands) == 0 {
		return "", fmt.Errorf("%w: no commands", ErrSubmitFailed)
	}
	if spec.WorkDir == "" {
		return "", fmt.Errorf("%w: work dir is required", ErrSubmitFailed)
	}
	if err := os.MkdirAll(spec.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create work dir: %v", ErrSubmitFailed, err)
	}

	jobID := localJobPrefix + uuid.New().String()
	if err := b.writeJob(jobID, spec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	b.schedule(jobID)
	return jobID, nil
}

// writeJob создаёт каталог job: скрипт, описание и состояние queued.
func (b *LocalBackend) writeJob(jobID string, spec JobSpec) error {
	dir := filepath.Join(b.jobsDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	script := "set -e\n" + strings.Join(spec.Commands, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, scriptFile), []byte(script), 0o644); err != nil {
		return fmt.Errorf("write job script: %w", err)
	}

	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal job spec: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, specFile), data); err != nil {
		return fmt.Errorf("write job spec: %w", err)
	}
	return writeState(dir, JobQueued)
}

// State читает состояние job с диска.
//
// Job в очереди, которую никто не запустил, этот backend забирает себе.
// Job, чей процесс исчез, не записав итог, считается упавшей.
func (b *LocalBackend) State(_ context.Context, jobID string) (JobState, error) {
	dir, ok := b.jobDir(jobID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	state, err := readState(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendRequest, err)
	}

	switch state {
	case JobQueued, JobRunning:
		if pid, ok := readPID(dir); ok && !processAlive(pid) {
			// Процесс пишет итог перед выходом: перечитываем.
			if again, err := readState(dir); err == nil && again != JobQueued && again != JobRunning {
				return again, nil
			}
			b.logger.Warn("local job process vanished", zap.String("job_id", jobID), zap.Int("pid", pid))
			if err := writeState(dir, JobFailed); err != nil {
				return "", fmt.Errorf("%w: %v", ErrBackendRequest, err)
			}
			return JobFailed, nil
		}
		if state == JobQueued {
			b.schedule(jobID)
		}
	}
	return state, nil
}

// Close перестаёт запускать jobs из очереди. Выполняющиеся процессы
// продолжают работать, их итог будет виден через State.
func (b *LocalBackend) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}

// jobDir возвращает каталог job; чужие и битые ID отбрасываются.
func (b *LocalBackend) jobDir(jobID string) (string, bool) {
	raw, ok := strings.CutPrefix(jobID, localJobPrefix)
	if !ok {
		return "", false
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", false
	}
	return filepath.Join(b.jobsDir, jobID), true
}

// schedule ждёт слот и запускает job, если этот backend ещё не ждёт её.
func (b *LocalBackend) schedule(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if _, ok := b.pending[jobID]; ok {
		return
	}
	b.pending[jobID] = struct{}{}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			b.mu.Lock()
			delete(b.pending, jobID)
			b.mu.Unlock()
		}()
		b.start(jobID)
	}()
}

// start занимает слот, забирает job и запускает её процесс.
// Слот освобождается, когда процесс завершится.
func (b *LocalBackend) start(jobID string) {
	if err := b.slots.Acquire(b.ctx, 1); err != nil {
		return
	}
	if b.ctx.Err() != nil {
		b.slots.Release(1)
		return
	}

	dir := filepath.Join(b.jobsDir, jobID)
	log := b.logger.With(zap.String("job_id", jobID))

	claimed := filepath.Join(dir, claimedFile)
	if err := os.Rename(filepath.Join(dir, specFile), claimed); err != nil {
		b.slots.Release(1)
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("failed to claim local job", zap.Error(err))
		}
		return
	}

	cmd, err := b.command(dir, claimed)
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		b.slots.Release(1)
		log.Warn("failed to start local job", zap.Error(err))
		if err := writeState(dir, JobFailed); err != nil {
			log.Warn("failed to record local job state", zap.Error(err))
		}
		return
	}

	log.Debug("local job started", zap.Int("pid", cmd.Process.Pid))
	go func() {
		defer b.slots.Release(1)
		_ = cmd.Wait()
	}()
}

// command собирает процесс job. Процесс уходит в свою сессию,
// чтобы сигналы воркера до него не доходили.
func (b *LocalBackend) command(dir, specPath string) (*exec.Cmd, error) {
	data, err := os.ReadFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("read job spec: %w", err)
	}
	var spec JobSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("decode job spec: %w", err)
	}

	cmd := exec.Command("/bin/sh", "-c", wrapperScript)
	cmd.Dir = spec.WorkDir
	cmd.Env = append(os.Environ(),
		"BOURREAU_TASK_ID="+spec.TaskID.String(),
		"BOURREAU_JOB_DIR="+dir,
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd, nil
}

func readState(dir string) (JobState, error) {
	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if err != nil {
		return "", err
	}
	return JobState(strings.TrimSpace(string(data))), nil
}

func writeState(dir string, state JobState) error {
	return writeFileAtomic(filepath.Join(dir, stateFile), []byte(state))
}

func readPID(dir string) (int, bool) {
	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive проверяет процесс сигналом 0.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// writeFileAtomic пишет файл через временный и rename,
// чтобы читатель никогда не увидел его наполовину.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
