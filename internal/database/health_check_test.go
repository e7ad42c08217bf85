package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPingMock(t *testing.T) (*HealthChecker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewHealthChecker(db, logger), mock
}

func TestHealthChecker_Basic(t *testing.T) {
	checker, mock := newPingMock(t)
	mock.ExpectPing()

	err := checker.Check(context.Background())
	assert.NoError(t, err)
	assert.True(t, checker.IsHealthy())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_FailureAndRecovery(t *testing.T) {
	checker, mock := newPingMock(t)

	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)
	err := checker.Check(context.Background())
	assert.Error(t, err)
	assert.False(t, checker.IsHealthy())

	mock.ExpectPing()
	err = checker.Check(context.Background())
	assert.NoError(t, err)
	assert.True(t, checker.IsHealthy())

	result := checker.Result()
	assert.True(t, result.Healthy)
	assert.Empty(t, result.LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_BackgroundMonitoring(t *testing.T) {
	checker, mock := newPingMock(t)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 10; i++ {
		mock.ExpectPing()
	}

	checker.SetCheckInterval(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go checker.Start(ctx)
	time.Sleep(35 * time.Millisecond)
	checker.Stop()

	assert.True(t, checker.IsHealthy())
}
