package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/proxymail/internal/model"
	"github.com/mcoot/proxymail/internal/services/mail"
	boltstorage "github.com/mcoot/proxymail/internal/storage/bolt"
	filestorage "github.com/mcoot/proxymail/internal/storage/file"
	redisstorage "github.com/mcoot/proxymail/internal/storage/redis"
	"github.com/mcoot/proxymail/internal/testutil"
)

type IntegrationSuite struct {
	suite.Suite
	dir string
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.app = NewTestApp(s.dir)
	s.ctx = context.Background()
}

func (s *IntegrationSuite) sender(id model.Identity, name string) mail.Sender {
	return mail.Sender{Name: name, Identity: id}
}

// Test: mail sent, snapshotted, and read back after a restart
func (s *IntegrationSuite) TestMailSurvivesRestart() {
	ids, err := s.app.RegisterPlayers("Alice", "Bob")
	s.Require().NoError(err)
	alice, bob := ids[0], ids[1]

	// Step 1: Alice writes to Bob by name, in any case
	_, err = s.app.MailService.Send(s.ctx, s.sender(alice, "Alice"), "BOB", "see you at spawn")
	s.Require().NoError(err)

	// Step 2: The snapshot job persists it
	jobs := s.app.Jobs(Schedule{SnapshotInterval: time.Minute})
	s.Require().Len(jobs, 1)
	s.Equal(JobSnapshot, jobs[0].Name)
	s.Require().NoError(jobs[0].Run(s.ctx))
	s.False(s.app.FileStorage.Dirty())

	// Step 3: A new process loads the snapshot
	restarted := NewTestApp(s.dir)
	s.Require().NoError(restarted.FileStorage.Load())

	unread, err := restarted.MailService.PlayerJoined(s.ctx, bob, "Bob")
	s.Require().NoError(err)
	s.Equal(1, unread)

	page, err := restarted.MailService.List(s.ctx, bob, mail.ListOptions{})
	s.Require().NoError(err)
	s.Require().Len(page.Messages, 1)
	s.Equal("see you at spawn", page.Messages[0].Body)
	s.Equal("Alice", page.Messages[0].SenderName)

	// Step 4: Bob deletes by the id he was shown
	s.Require().NoError(restarted.MailService.DeleteByID(s.ctx, page.Messages[0].ID, bob))
}

// Test: broadcast reaches every known player and the console
func (s *IntegrationSuite) TestBroadcastFlow() {
	ids, err := s.app.RegisterPlayers("Alice", "Bob", "Carol")
	s.Require().NoError(err)

	count, err := s.app.MailService.SendToAll(s.ctx, mail.ConsoleSender(), "restart in 5 minutes")
	s.Require().NoError(err)
	s.Equal(4, count)

	for _, id := range append(ids, model.ConsoleIdentity) {
		unread, err := s.app.MailService.UnreadCount(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(1, unread)
	}
}

// Test: the cleanup job removes old read mail
func (s *IntegrationSuite) TestCleanupJob() {
	ids, err := s.app.RegisterPlayers("Alice", "Bob")
	s.Require().NoError(err)

	_, err = s.app.MailService.Send(s.ctx, s.sender(ids[0], "Alice"), "Bob", "old news")
	s.Require().NoError(err)
	_, err = s.app.MailService.List(s.ctx, ids[1], mail.ListOptions{})
	s.Require().NoError(err)

	s.app.MockClock.Advance(8 * 24 * time.Hour)

	jobs := s.app.Jobs(Schedule{SnapshotInterval: time.Minute, CleanupInterval: time.Hour, CleanupDelay: time.Minute})
	s.Require().Len(jobs, 2)
	s.Equal(JobCleanup, jobs[1].Name)
	s.Equal(time.Minute, jobs[1].Delay)
	s.Require().NoError(jobs[1].Run(s.ctx))

	page, err := s.app.MailService.List(s.ctx, ids[1], mail.ListOptions{IncludeRead: true})
	s.Require().NoError(err)
	s.Zero(page.Total)
}

// Test: Close writes pending changes
func (s *IntegrationSuite) TestCloseSaves() {
	_, err := s.app.RegisterPlayers("Alice")
	s.Require().NoError(err)

	s.Require().NoError(s.app.Close())
	_, err = os.Stat(filepath.Join(s.dir, "data.json"))
	s.NoError(err)
}

// Backend selection

func (s *IntegrationSuite) TestNewFileBackend() {
	app, err := New(Config{
		Logger:     testutil.NopLogger(),
		FileConfig: filestorage.Config{Dir: s.T().TempDir(), FileName: "data.json"},
	})
	s.Require().NoError(err)
	defer app.Close()

	s.NotNil(app.Snapshotter)
	s.Len(app.Jobs(Schedule{SnapshotInterval: time.Minute, CleanupInterval: time.Hour}), 2)
}

func (s *IntegrationSuite) TestNewRedisBackend() {
	mr := miniredis.RunT(s.T())
	redisCfg := redisstorage.DefaultConfig()
	redisCfg.URL = "redis://" + mr.Addr()

	app, err := New(Config{StorageType: StorageTypeRedis, RedisConfig: &redisCfg})
	s.Require().NoError(err)
	defer app.Close()

	s.Nil(app.Snapshotter)
	jobs := app.Jobs(Schedule{SnapshotInterval: time.Minute, CleanupInterval: time.Hour})
	s.Require().Len(jobs, 1)
	s.Equal(JobCleanup, jobs[0].Name)

	ids := []model.Identity{model.NewIdentity()}
	_, err = app.MailService.PlayerJoined(s.ctx, ids[0], "Alice")
	s.Require().NoError(err)
	_, err = app.MailService.Send(s.ctx, mail.ConsoleSender(), "alice", "welcome")
	s.Require().NoError(err)
}

func (s *IntegrationSuite) TestNewBoltBackend() {
	boltCfg := boltstorage.DefaultConfig()
	boltCfg.Path = filepath.Join(s.T().TempDir(), "mail.db")

	app, err := New(Config{StorageType: StorageTypeBolt, BoltConfig: &boltCfg})
	s.Require().NoError(err)
	defer app.Close()

	s.Nil(app.Snapshotter)
	count, err := app.MailService.SendToAll(s.ctx, mail.ConsoleSender(), "hello")
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *IntegrationSuite) TestNewRejectsUnknownBackend() {
	_, err := New(Config{StorageType: "memory"})
	s.Error(err)

	_, err = New(Config{StorageType: StorageTypeRedis})
	s.Error(err)
}
