// Package storagetest holds the conformance suite every storage backend runs.
package storagetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/proxymail/internal/model"
	"github.com/mcoot/proxymail/internal/storage"
)

// ContractSuite checks the semantics of storage.Storage. Backend packages
// embed it and set NewStorage.
type ContractSuite struct {
	suite.Suite

	// NewStorage returns a fresh, empty backend for each test
	NewStorage func() storage.Storage

	Storage storage.Storage
	Ctx     context.Context
}

func (s *ContractSuite) SetupTest() {
	s.Require().NotNil(s.NewStorage, "NewStorage must be set")
	s.Storage = s.NewStorage()
	s.Ctx = context.Background()
}

func draft(body string, read bool, at int64) model.Draft {
	return model.Draft{
		SenderName: "Sender",
		Sender:     model.NewIdentity(),
		Body:       body,
		Read:       read,
		Time:       at,
	}
}

func (s *ContractSuite) save(recipient model.Identity, body string, read bool, at int64) model.Message {
	msg, err := s.Storage.SaveMessage(s.Ctx, recipient, draft(body, read, at))
	s.Require().NoError(err)
	return msg
}

func bodies(messages []model.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Body)
	}
	return out
}

// Message tests

func (s *ContractSuite) TestSaveAndGetMessages() {
	recipient := model.NewIdentity()
	d := draft("hello", false, 1000)

	msg, err := s.Storage.SaveMessage(s.Ctx, recipient, d)
	s.Require().NoError(err)
	s.NotZero(msg.ID)
	s.Equal(recipient, msg.Recipient)
	s.Equal(d.Sender, msg.Sender)
	s.Equal("Sender", msg.SenderName)
	s.Equal("hello", msg.Body)
	s.Equal(int64(1000), msg.Time)
	s.False(msg.Read)

	messages, err := s.Storage.GetMessagesFor(s.Ctx, recipient, false)
	s.Require().NoError(err)
	s.Require().Len(messages, 1)
	s.Equal(msg.ID, messages[0].ID)
}

func (s *ContractSuite) TestMessagesOnlyVisibleToRecipient() {
	alice := model.NewIdentity()
	bob := model.NewIdentity()
	s.save(alice, "for alice", false, 1)

	messages, err := s.Storage.GetMessagesFor(s.Ctx, bob, false)
	s.Require().NoError(err)
	s.Empty(messages)
}

func (s *ContractSuite) TestMessagesOldestFirst() {
	recipient := model.NewIdentity()
	s.save(recipient, "first", false, 30)
	s.save(recipient, "second", false, 10)
	s.save(recipient, "third", false, 20)

	messages, err := s.Storage.GetMessagesFor(s.Ctx, recipient, false)
	s.Require().NoError(err)
	s.Equal([]string{"first", "second", "third"}, bodies(messages))
}

func (s *ContractSuite) TestIDsAreUniqueAndIncreasing() {
	recipient := model.NewIdentity()
	first := s.save(recipient, "a", false, 1)
	second := s.save(recipient, "b", false, 1)
	third := s.save(model.NewIdentity(), "c", false, 1)

	s.Less(first.ID, second.ID)
	s.Less(second.ID, third.ID)
}

func (s *ContractSuite) TestMarkRead() {
	recipient := model.NewIdentity()
	msg := s.save(recipient, "hello", false, 1)

	s.Require().NoError(s.Storage.MarkRead(s.Ctx, msg))

	unread, err := s.Storage.GetMessagesFor(s.Ctx, recipient, true)
	s.Require().NoError(err)
	s.Empty(unread)

	all, err := s.Storage.GetMessagesFor(s.Ctx, recipient, false)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.True(all[0].Read)
}

func (s *ContractSuite) TestMarkReadIsIdempotent() {
	recipient := model.NewIdentity()
	msg := s.save(recipient, "hello", false, 1)

	s.Require().NoError(s.Storage.MarkRead(s.Ctx, msg))
	s.Require().NoError(s.Storage.MarkRead(s.Ctx, msg))

	all, err := s.Storage.GetMessagesFor(s.Ctx, recipient, false)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.True(all[0].Read)
}

func (s *ContractSuite) TestMarkReadRejectsForeignMessage() {
	msg := model.Message{ID: 1, Recipient: model.NewIdentity(), Origin: "elsewhere"}

	err := s.Storage.MarkRead(s.Ctx, msg)
	s.ErrorIs(err, model.ErrForeignMessage)
	s.True(model.IsKind(err, model.KindBackend))
}

func (s *ContractSuite) TestDeleteMessage() {
	recipient := model.NewIdentity()
	keep := s.save(recipient, "keep", false, 1)
	drop := s.save(recipient, "drop", false, 2)

	s.Require().NoError(s.Storage.DeleteMessage(s.Ctx, drop))

	messages, err := s.Storage.GetMessagesFor(s.Ctx, recipient, false)
	s.Require().NoError(err)
	s.Require().Len(messages, 1)
	s.Equal(keep.ID, messages[0].ID)
}

func (s *ContractSuite) TestDeleteMessageRejectsForeignMessage() {
	err := s.Storage.DeleteMessage(s.Ctx, model.Message{ID: 1, Origin: "elsewhere"})
	s.ErrorIs(err, model.ErrForeignMessage)
}

func (s *ContractSuite) TestDeleteByIDAndRecipient() {
	recipient := model.NewIdentity()
	msg := s.save(recipient, "hello", false, 1)

	deleted, err := s.Storage.Delete(s.Ctx, msg.ID, recipient)
	s.Require().NoError(err)
	s.True(deleted)

	messages, err := s.Storage.GetMessagesFor(s.Ctx, recipient, false)
	s.Require().NoError(err)
	s.Empty(messages)

	deleted, err = s.Storage.Delete(s.Ctx, msg.ID, recipient)
	s.Require().NoError(err)
	s.False(deleted)
}

func (s *ContractSuite) TestDeleteWithWrongRecipientKeepsMessage() {
	recipient := model.NewIdentity()
	msg := s.save(recipient, "hello", false, 1)

	deleted, err := s.Storage.Delete(s.Ctx, msg.ID, model.NewIdentity())
	s.Require().NoError(err)
	s.False(deleted)

	messages, err := s.Storage.GetMessagesFor(s.Ctx, recipient, false)
	s.Require().NoError(err)
	s.Len(messages, 1)
}

func (s *ContractSuite) TestDeleteOlderKeepsUnread() {
	recipient := model.NewIdentity()
	oldRead := s.save(recipient, "old read", true, 100)
	s.save(recipient, "old unread", false, 100)
	s.save(recipient, "new read", true, 500)
	s.save(recipient, "new unread", false, 500)

	removed, err := s.Storage.DeleteOlder(s.Ctx, 200, false)
	s.Require().NoError(err)
	s.Equal(1, removed)

	messages, err := s.Storage.GetMessagesFor(s.Ctx, recipient, false)
	s.Require().NoError(err)
	s.Equal([]string{"old unread", "new read", "new unread"}, bodies(messages))
	for _, m := range messages {
		s.NotEqual(oldRead.ID, m.ID)
	}
}

func (s *ContractSuite) TestDeleteOlderIncludingUnread() {
	recipient := model.NewIdentity()
	s.save(recipient, "old read", true, 100)
	s.save(recipient, "old unread", false, 100)
	s.save(recipient, "boundary", false, 200)

	removed, err := s.Storage.DeleteOlder(s.Ctx, 200, true)
	s.Require().NoError(err)
	s.Equal(2, removed)

	messages, err := s.Storage.GetMessagesFor(s.Ctx, recipient, false)
	s.Require().NoError(err)
	s.Equal([]string{"boundary"}, bodies(messages))
}

// Broadcast tests

func (s *ContractSuite) TestSaveMessageToAll() {
	alice := model.NewIdentity()
	bob := model.NewIdentity()
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, alice, "Alice"))
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, bob, "Bob"))
	// A rename leaves two names pointing at one identity
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, bob, "Robert"))

	count, err := s.Storage.SaveMessageToAll(s.Ctx, draft("news", false, 1))
	s.Require().NoError(err)
	s.Equal(2, count)

	for _, id := range []model.Identity{alice, bob} {
		messages, err := s.Storage.GetMessagesFor(s.Ctx, id, false)
		s.Require().NoError(err)
		s.Equal([]string{"news"}, bodies(messages))
	}

	console, err := s.Storage.GetMessagesFor(s.Ctx, model.ConsoleIdentity, false)
	s.Require().NoError(err)
	s.Empty(console)
}

func (s *ContractSuite) TestSaveMessageToAllEmptyDirectory() {
	count, err := s.Storage.SaveMessageToAll(s.Ctx, draft("news", false, 1))
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *ContractSuite) TestBroadcastCopiesAreIndependent() {
	alice := model.NewIdentity()
	bob := model.NewIdentity()
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, alice, "Alice"))
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, bob, "Bob"))
	_, err := s.Storage.SaveMessageToAll(s.Ctx, draft("news", false, 1))
	s.Require().NoError(err)

	aliceMail, err := s.Storage.GetMessagesFor(s.Ctx, alice, false)
	s.Require().NoError(err)
	s.Require().Len(aliceMail, 1)
	s.Require().NoError(s.Storage.MarkRead(s.Ctx, aliceMail[0]))

	bobUnread, err := s.Storage.GetMessagesFor(s.Ctx, bob, true)
	s.Require().NoError(err)
	s.Len(bobUnread, 1)
}

// Directory tests

func (s *ContractSuite) TestGetIdentityForNameExact() {
	id := model.NewIdentity()
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, id, "Alice"))

	got, ok, err := s.Storage.GetIdentityForName(s.Ctx, "Alice")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(id, got)
}

func (s *ContractSuite) TestGetIdentityForNameCaseInsensitive() {
	id := model.NewIdentity()
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, id, "Alice"))

	for _, name := range []string{"alice", "ALICE", "aLiCe"} {
		got, ok, err := s.Storage.GetIdentityForName(s.Ctx, name)
		s.Require().NoError(err)
		s.True(ok, name)
		s.Equal(id, got, name)
	}
}

func (s *ContractSuite) TestGetIdentityForNameExactWinsOverFold() {
	upper := model.NewIdentity()
	lower := model.NewIdentity()
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, upper, "Alice"))
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, lower, "alice"))

	got, ok, err := s.Storage.GetIdentityForName(s.Ctx, "alice")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(lower, got)
}

func (s *ContractSuite) TestGetIdentityForNameUnknown() {
	_, ok, err := s.Storage.GetIdentityForName(s.Ctx, "nobody")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ContractSuite) TestGetIdentityForConsole() {
	got, ok, err := s.Storage.GetIdentityForName(s.Ctx, model.ConsoleName)
	s.Require().NoError(err)
	s.True(ok)
	s.True(got.IsConsole())

	names, err := s.Storage.GetKnownUsernames(s.Ctx)
	s.Require().NoError(err)
	s.NotContains(names, model.ConsoleName)
}

func (s *ContractSuite) TestUpdateUserEntryLastWriteWins() {
	first := model.NewIdentity()
	second := model.NewIdentity()
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, first, "Alice"))
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, second, "Alice"))

	got, ok, err := s.Storage.GetIdentityForName(s.Ctx, "Alice")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(second, got)

	ids, err := s.Storage.GetAllKnownIdentities(s.Ctx)
	s.Require().NoError(err)
	s.Equal([]model.Identity{second}, ids)
}

func (s *ContractSuite) TestUpdateUserEntryRejectsEmptyName() {
	err := s.Storage.UpdateUserEntry(s.Ctx, model.NewIdentity(), "")
	s.Require().Error(err)
	s.ErrorIs(err, model.ErrEmptyUsername)
	s.True(model.IsKind(err, model.KindBackend))

	names, err := s.Storage.GetKnownUsernames(s.Ctx)
	s.Require().NoError(err)
	s.Empty(names)
}

func (s *ContractSuite) TestKnownUsernamesAndIdentities() {
	alice := model.NewIdentity()
	bob := model.NewIdentity()
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, bob, "Bob"))
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, alice, "Alice"))
	s.Require().NoError(s.Storage.UpdateUserEntry(s.Ctx, alice, "Alicia"))

	names, err := s.Storage.GetKnownUsernames(s.Ctx)
	s.Require().NoError(err)
	s.Equal([]string{"Alice", "Alicia", "Bob"}, names)

	ids, err := s.Storage.GetAllKnownIdentities(s.Ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]model.Identity{alice, bob}, ids)
}

// Concurrency tests

func (s *ContractSuite) TestConcurrentSaves() {
	const n = 50

	recipients := make([]model.Identity, n)
	for i := range recipients {
		recipients[i] = model.NewIdentity()
	}

	var wg sync.WaitGroup
	ids := make([]model.MessageID, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := s.Storage.SaveMessage(s.Ctx, recipients[i], draft(fmt.Sprintf("msg-%d", i), false, int64(i)))
			ids[i] = msg.ID
			errs[i] = err
		}()
	}
	wg.Wait()

	seen := make(map[model.MessageID]struct{}, n)
	for i := range n {
		s.Require().NoError(errs[i])
		seen[ids[i]] = struct{}{}

		messages, err := s.Storage.GetMessagesFor(s.Ctx, recipients[i], false)
		s.Require().NoError(err)
		s.Equal([]string{fmt.Sprintf("msg-%d", i)}, bodies(messages))
	}
	s.Len(seen, n)
}
