package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pixelmint/services/credits/internal/entity"
	"pixelmint/services/credits/internal/gateway"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for the persistent repositories with the
// same conditional-update semantics: saves fail with ErrVersionConflict when
// the stored version moved, and purchase references are unique.
type memStore struct {
	mu              sync.Mutex
	startingBalance decimal.Decimal
	accounts        map[string]*memAccountRow
	transactions    []*entity.Transaction
	jobs            map[string]*entity.GenerationJob

	conflictsBeforeSave int
	failCommit          error
	failJobUpdates      int
	saveAttempts        int
}

type memAccountRow struct {
	balance     decimal.Decimal
	version     int64
	createdAt   time.Time
	lastUpdated time.Time
}

func newMemStore(startingBalance string) *memStore {
	return &memStore{
		startingBalance: decimal.RequireFromString(startingBalance),
		accounts:        make(map[string]*memAccountRow),
		jobs:            make(map[string]*entity.GenerationJob),
	}
}

func (s *memStore) GetOrCreateAccount(userID string) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.accounts[userID]
	if !ok {
		now := time.Now()
		row = &memAccountRow{balance: s.startingBalance, createdAt: now, lastUpdated: now}
		s.accounts[userID] = row
	}
	return entity.RestoreAccount(userID, row.balance, row.version, row.createdAt, row.lastUpdated)
}

func (s *memStore) SaveAccount(account *entity.Account, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveLocked(account, expectedVersion); err != nil {
		return err
	}
	account.Version = expectedVersion + 1
	return nil
}

func (s *memStore) AppendTransaction(transaction *entity.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(transaction)
}

func (s *memStore) SaveWithTransaction(account *entity.Account, expectedVersion int64, transaction *entity.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCommit != nil {
		return s.failCommit
	}
	if err := s.duplicateLocked(transaction); err != nil {
		return err
	}
	if err := s.saveLocked(account, expectedVersion); err != nil {
		return err
	}
	if err := s.appendLocked(transaction); err != nil {
		return err
	}
	account.Version = expectedVersion + 1
	return nil
}

func (s *memStore) SaveSpend(account *entity.Account, expectedVersion int64, transaction *entity.Transaction, job *entity.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCommit != nil {
		return s.failCommit
	}
	if err := s.saveLocked(account, expectedVersion); err != nil {
		return err
	}
	if err := s.appendLocked(transaction); err != nil {
		return err
	}
	jobCopy := *job
	s.jobs[job.ID] = &jobCopy
	account.Version = expectedVersion + 1
	return nil
}

func (s *memStore) SaveRefund(account *entity.Account, expectedVersion int64, transaction *entity.Transaction, jobID, failureReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCommit != nil {
		return s.failCommit
	}
	job, ok := s.jobs[jobID]
	if !ok || job.Status != entity.JobStatusReserved {
		return fmt.Errorf("%w: %s", entity.ErrJobNotReserved, jobID)
	}
	for _, existing := range s.transactions {
		if existing.Type == entity.TransactionTypeRefund && existing.Metadata[entity.MetaGenerationJobID] == jobID {
			return fmt.Errorf("%w: refund already recorded", entity.ErrJobNotReserved)
		}
	}
	if err := s.saveLocked(account, expectedVersion); err != nil {
		return err
	}
	if err := s.appendLocked(transaction); err != nil {
		return err
	}
	job.Status = entity.JobStatusCompensated
	job.FailureReason = failureReason
	job.UpdatedAt = time.Now()
	account.Version = expectedVersion + 1
	return nil
}

func (s *memStore) saveLocked(account *entity.Account, expectedVersion int64) error {
	s.saveAttempts++
	if s.conflictsBeforeSave > 0 {
		s.conflictsBeforeSave--
		return entity.ErrVersionConflict
	}

	row, ok := s.accounts[account.UserID]
	if !ok || row.version != expectedVersion {
		return entity.ErrVersionConflict
	}
	row.balance = account.Balance()
	row.version = expectedVersion + 1
	row.lastUpdated = time.Now()
	return nil
}

func (s *memStore) duplicateLocked(transaction *entity.Transaction) error {
	if transaction.Type != entity.TransactionTypePurchase {
		return nil
	}
	ref := transaction.PaymentReference()
	if ref == "" {
		return nil
	}
	for _, existing := range s.transactions {
		if existing.Type == entity.TransactionTypePurchase && existing.PaymentReference() == ref {
			return entity.ErrDuplicatePayment
		}
	}
	return nil
}

func (s *memStore) appendLocked(transaction *entity.Transaction) error {
	if err := s.duplicateLocked(transaction); err != nil {
		return err
	}
	if transaction.ID == "" {
		transaction.ID = uuid.New().String()
	}
	txCopy := *transaction
	s.transactions = append(s.transactions, &txCopy)
	return nil
}

func (s *memStore) RecentTransactions(userID string, limit, offset int) ([]*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*entity.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID == userID {
			matched = append(matched, s.transactions[i])
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *memStore) FindPurchaseByReference(reference string) (*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, transaction := range s.transactions {
		if transaction.Type == entity.TransactionTypePurchase && transaction.PaymentReference() == reference {
			return transaction, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindRefundForJob(jobID string) (*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, transaction := range s.transactions {
		if transaction.Type == entity.TransactionTypeRefund && transaction.Metadata[entity.MetaGenerationJobID] == jobID {
			return transaction, nil
		}
	}
	return nil, nil
}

func (s *memStore) Create(job *entity.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobCopy := *job
	s.jobs[job.ID] = &jobCopy
	return nil
}

func (s *memStore) RecordArtifacts(jobID string, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failJobUpdates > 0 {
		s.failJobUpdates--
		return fmt.Errorf("connection reset")
	}
	job, ok := s.jobs[jobID]
	if !ok || job.Status != entity.JobStatusReserved {
		return fmt.Errorf("%w: %s", entity.ErrJobNotReserved, jobID)
	}
	job.ArtifactURLs = append([]string(nil), urls...)
	job.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) MarkSettled(jobID string) error {
	return s.setJobStatus(jobID, entity.JobStatusSettled, "")
}

func (s *memStore) MarkCompensated(jobID, failureReason string) error {
	return s.setJobStatus(jobID, entity.JobStatusCompensated, failureReason)
}

func (s *memStore) setJobStatus(jobID string, status entity.JobStatus, failureReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failJobUpdates > 0 {
		s.failJobUpdates--
		return fmt.Errorf("connection reset")
	}
	job, ok := s.jobs[jobID]
	if !ok || job.Status != entity.JobStatusReserved {
		return fmt.Errorf("%w: %s", entity.ErrJobNotReserved, jobID)
	}
	job.Status = status
	if failureReason != "" {
		job.FailureReason = failureReason
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) ListStaleReserved(olderThan time.Time, limit int) ([]*entity.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*entity.GenerationJob
	for _, job := range s.jobs {
		if job.Status == entity.JobStatusReserved && job.UpdatedAt.Before(olderThan) {
			jobCopy := *job
			stale = append(stale, &jobCopy)
			if limit > 0 && len(stale) == limit {
				break
			}
		}
	}
	return stale, nil
}

func (s *memStore) balanceOf(userID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.accounts[userID]; ok {
		return row.balance
	}
	// An account that was never written reads at the starting balance, the
	// same first-access semantics GetOrCreateAccount has.
	return s.startingBalance
}

func (s *memStore) jobByID(jobID string) *entity.GenerationJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		jobCopy := *job
		return &jobCopy
	}
	return nil
}

func (s *memStore) transactionsOfType(userID string, transactionType entity.TransactionType) []*entity.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*entity.Transaction
	for _, transaction := range s.transactions {
		if transaction.UserID == userID && transaction.Type == transactionType {
			matched = append(matched, transaction)
		}
	}
	return matched
}

type stubGenerator struct {
	mu     sync.Mutex
	images [][]byte
	err    error
	delay  time.Duration
	calls  int
}

func (g *stubGenerator) Generate(ctx context.Context, req entity.GenerationRequest) ([][]byte, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.delay):
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	if g.images != nil {
		return g.images, nil
	}
	images := make([][]byte, req.Count)
	for i := range images {
		images[i] = []byte("png")
	}
	return images, nil
}

type stubArtifacts struct {
	err error
}

func (a *stubArtifacts) Store(userID, jobID string, images [][]byte) ([]string, error) {
	if a.err != nil {
		return nil, a.err
	}
	urls := make([]string, len(images))
	for i := range images {
		urls[i] = fmt.Sprintf("https://cdn.test/%s/%s/%d.png", userID, jobID, i)
	}
	return urls, nil
}

type stubPayments struct {
	verification *gateway.PaymentVerification
	err          error
}

func (p *stubPayments) VerifyPayment(ctx context.Context, reference string, expectedAmount decimal.Decimal) (*gateway.PaymentVerification, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.verification, nil
}

type memPackages struct {
	packages map[string]*entity.CreditPackage
}

func (p *memPackages) GetByID(id string) (*entity.CreditPackage, error) {
	if pkg, ok := p.packages[id]; ok && pkg.Active {
		return pkg, nil
	}
	return nil, entity.ErrPackageNotFound
}

func (p *memPackages) ListActive() ([]*entity.CreditPackage, error) {
	var active []*entity.CreditPackage
	for _, pkg := range p.packages {
		if pkg.Active {
			active = append(active, pkg)
		}
	}
	return active, nil
}

type stubPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *stubPublisher) PublishCreditEvent(event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
