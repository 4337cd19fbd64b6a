//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/model"
	"prompt-job-runner/internal/domain/ports/adapter"
	"prompt-job-runner/internal/domain/ports/repository"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

//
// -------------------- Job repository --------------------
//

type mockJobRepo struct {
	mu    sync.Mutex
	queue []*model.Job // claimed front to back

	SuccessCalls []completeCall
	FailureCalls []failureCall
	ReleaseCalls []completeCall

	// set to force CompleteFailure to report the job as disabled
	DisableOnFailure bool
}

type completeCall struct {
	JobID     string
	LockToken time.Time
	NextRunAt time.Time
}

type failureCall struct {
	completeCall
	CountFailure bool
	Threshold    int
}

var _ repository.JobRepository = (*mockJobRepo)(nil)

func (m *mockJobRepo) ClaimNextDue(ctx context.Context, staleAfter time.Duration) (*model.Job, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}
	job := m.queue[0]
	m.queue = m.queue[1:]
	token := time.Now().Truncate(time.Millisecond)
	job.LockedAt = &token
	return job, token, nil
}

func (m *mockJobRepo) CompleteSuccess(ctx context.Context, tx repository.Tx, jobID string, lockToken, nextRunAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SuccessCalls = append(m.SuccessCalls, completeCall{jobID, lockToken, nextRunAt})
	return true, nil
}

func (m *mockJobRepo) CompleteFailure(ctx context.Context, tx repository.Tx, jobID string, lockToken, nextRunAt time.Time, countFailure bool, threshold int) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailureCalls = append(m.FailureCalls, failureCall{completeCall{jobID, lockToken, nextRunAt}, countFailure, threshold})
	return true, m.DisableOnFailure && countFailure, nil
}

func (m *mockJobRepo) ReleaseLock(ctx context.Context, jobID string, lockToken, nextRunAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls = append(m.ReleaseCalls, completeCall{jobID, lockToken, nextRunAt})
	return true, nil
}

func (m *mockJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	return nil, domain.ErrNotFound
}

//
// -------------------- Prompt version repository --------------------
//

type mockVersionRepo struct {
	versions map[string]*model.PromptVersion
}

var _ repository.PromptVersionRepository = (*mockVersionRepo)(nil)

func (m *mockVersionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PromptVersion, error) {
	if v, ok := m.versions[id]; ok {
		return v, nil
	}
	return nil, domain.ErrNotFound
}

//
// -------------------- Run history repository --------------------
//

type mockRunRepo struct {
	mu sync.Mutex

	Created   []*model.RunHistory
	Outputs   map[string][2]string // runID -> {text, preview}
	Records   map[string]model.GenerationRecord
	Delivered map[string]int // runID -> attempts
	Finalized map[string]finalizedRun
	Receipts  []*model.DeliveryAttempt

	CreateRunningFunc func(run *model.RunHistory) error
}

type finalizedRun struct {
	Status model.RunStatus
	Error  string
}

var _ repository.RunHistoryRepository = (*mockRunRepo)(nil)

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{
		Outputs:   map[string][2]string{},
		Records:   map[string]model.GenerationRecord{},
		Delivered: map[string]int{},
		Finalized: map[string]finalizedRun{},
	}
}

func (m *mockRunRepo) CreateRunning(ctx context.Context, tx repository.Tx, run *model.RunHistory) error {
	if m.CreateRunningFunc != nil {
		if err := m.CreateRunningFunc(run); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	m.Created = append(m.Created, run)
	return nil
}

func (m *mockRunRepo) SaveOutput(ctx context.Context, tx repository.Tx, runID, text, preview string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outputs[runID] = [2]string{text, preview}
	return nil
}

func (m *mockRunRepo) SaveGeneration(ctx context.Context, tx repository.Tx, runID string, rec model.GenerationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records[runID] = rec
	return nil
}

func (m *mockRunRepo) MarkDelivered(ctx context.Context, tx repository.Tx, runID string, at time.Time, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Delivered[runID] = attempts
	return nil
}

func (m *mockRunRepo) Finalize(ctx context.Context, tx repository.Tx, runID string, status model.RunStatus, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Finalized[runID] = finalizedRun{status, errorMessage}
	return nil
}

func (m *mockRunRepo) RecordDeliveryAttempt(ctx context.Context, tx repository.Tx, att *model.DeliveryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Receipts = append(m.Receipts, att)
	return nil
}

//
// -------------------- Transaction manager --------------------
//

type mockTxManager struct{}

var _ repository.TransactionManager = (*mockTxManager)(nil)

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, struct{}{})
}

//
// -------------------- Quota guard --------------------
//

type mockQuota struct {
	Err   error
	Calls []string
}

var _ adapter.QuotaGuard = (*mockQuota)(nil)

func (m *mockQuota) CheckDailyRunBudget(ctx context.Context, ownerID string) error {
	m.Calls = append(m.Calls, ownerID)
	return m.Err
}

//
// -------------------- Generation service --------------------
//

type mockGen struct {
	mu           sync.Mutex
	Prompts      []string
	Opts         []adapter.GenerateOptions
	GenerateFunc func(prompt string, opts adapter.GenerateOptions) (*adapter.GenerateResult, error)
}

var _ adapter.GenerationService = (*mockGen)(nil)

func okResult(text string) *adapter.GenerateResult {
	return &adapter.GenerateResult{
		Text:  text,
		Model: "gpt-5-mini",
		Usage: adapter.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func (m *mockGen) Generate(ctx context.Context, prompt string, opts adapter.GenerateOptions) (*adapter.GenerateResult, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.Opts = append(m.Opts, opts)
	fn := m.GenerateFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(prompt, opts)
	}
	return okResult("generated output"), nil
}

//
// -------------------- Transports --------------------
//

type mockTransport struct {
	mu       sync.Mutex
	kind     model.ChannelType
	Sent     []adapter.DeliveryMessage
	SendFunc func(msg adapter.DeliveryMessage) error
}

var _ adapter.Transport = (*mockTransport)(nil)

func (m *mockTransport) Kind() model.ChannelType { return m.kind }

func (m *mockTransport) Send(ctx context.Context, msg adapter.DeliveryMessage) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, msg)
	fn := m.SendFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(msg)
	}
	return nil
}

type mockResolver struct {
	transport adapter.Transport
	err       error
}

var _ adapter.TransportResolver = (*mockResolver)(nil)

func (m *mockResolver) Resolve(job *model.Job) (adapter.Transport, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.transport == nil {
		return nil, domain.ErrNoRunnableChannel
	}
	return m.transport, nil
}
