package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/resonatefm/resonate/internal/database"
	"github.com/resonatefm/resonate/pkg/mail"
)

// openServiceTestDB opens an isolated in-memory SQLite database with the full
// schema migrated.
func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

// fakeMailer records sends and fails a scripted number of times before
// succeeding, mimicking a flaky SMTP transport.
type fakeMailer struct {
	mu        sync.Mutex
	sent      []mail.Message
	failures  int
	verifyErr error
	enteredCh chan struct{} // closed on first Send entry when set
	blockCh   chan struct{} // when set, Send blocks until the channel closes

	enteredOnce sync.Once
}

func (m *fakeMailer) Send(ctx context.Context, msg mail.Message) (mail.Receipt, error) {
	if m.enteredCh != nil {
		m.enteredOnce.Do(func() { close(m.enteredCh) })
	}
	if m.blockCh != nil {
		<-m.blockCh
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures > 0 {
		m.failures--
		return mail.Receipt{}, errors.New("smtp: connection refused")
	}

	m.sent = append(m.sent, msg)
	return mail.Receipt{MessageID: fmt.Sprintf("<%d@test>", len(m.sent))}, nil
}

func (m *fakeMailer) Verify(ctx context.Context) error {
	return m.verifyErr
}

func (m *fakeMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// testClock is a manually advanced time source shared between a test and the
// service under test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(at time.Time) *testClock {
	return &testClock{t: at}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
