package reconcile

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/karthikraju391/go-nats-chat-sync/models"
)

var (
	self = models.Identity{UserID: "u1", DisplayName: "Ada"}
	t0   = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

func local(cid, content string) models.Message {
	return models.Message{
		ClientCorrelationID: cid,
		SenderID:            self.UserID,
		Content:             content,
		Timestamp:           t0,
	}
}

func remote(id, sender, content string) models.Message {
	return models.Message{
		ID:        id,
		SenderID:  sender,
		Content:   content,
		Timestamp: t0,
	}
}

func TestSeedBackfillsLocalSender(t *testing.T) {
	snapshot := []models.Message{
		remote("1", "u1", "mine"),
		remote("2", "u2", "theirs"),
		{ID: "3", SenderID: "u1", SenderDisplayName: "Ada L.", Content: "named"},
	}
	s := Seed(self, snapshot)

	assert.Equal(t, s.Len(), 3)
	assert.Equal(t, s.Messages[0].SenderDisplayName, "Ada")
	assert.Equal(t, s.Messages[1].SenderDisplayName, "")
	assert.Equal(t, s.Messages[2].SenderDisplayName, "Ada L.")
	// the snapshot itself is untouched
	assert.Equal(t, snapshot[0].SenderDisplayName, "")
}

func TestLocalSendIsPending(t *testing.T) {
	s := Seed(self, nil)
	s = Reduce(s, LocalSent{Message: local("c1", "hi")})

	assert.Equal(t, s.Len(), 1)
	assert.Equal(t, s.Messages[0].Pending, true)
	assert.Equal(t, s.Messages[0].ID, "")
	assert.Equal(t, s.Messages[0].SenderDisplayName, "Ada")
}

func TestConfirmationReplacesInPlace(t *testing.T) {
	s := Seed(self, []models.Message{remote("1", "u2", "before")})
	s = Reduce(s, LocalSent{Message: local("c1", "hi")})
	s = Reduce(s, MessageReceived{Message: remote("7", "u3", "other")})

	confirm := remote("42", "u1", "hi")
	confirm.ClientCorrelationID = "c1"
	s = Reduce(s, MessageReceived{Message: confirm})

	assert.Equal(t, s.Len(), 3)
	assert.Equal(t, s.Messages[1].ID, "42")
	assert.Equal(t, s.Messages[1].ClientCorrelationID, "c1")
	assert.Equal(t, s.Messages[1].Pending, false)
	assert.Equal(t, s.Messages[1].SenderDisplayName, "Ada")
	assert.Equal(t, s.Messages[2].ID, "7")
}

func TestRepeatedConfirmationNeverDuplicates(t *testing.T) {
	s := Seed(self, nil)
	s = Reduce(s, LocalSent{Message: local("c1", "hi")})
	s = Reduce(s, LocalSent{Message: local("c1", "hi again")})

	confirm := remote("42", "u1", "hi")
	confirm.ClientCorrelationID = "c1"
	for range 3 {
		s = Reduce(s, MessageReceived{Message: confirm})
	}

	assert.Equal(t, s.Len(), 1)
	assert.Equal(t, s.Messages[0].ID, "42")
	assert.Equal(t, s.Messages[0].Content, "hi")
}

func TestConfirmationDropsStaleDuplicateID(t *testing.T) {
	s := Seed(self, []models.Message{remote("42", "u1", "hi")})
	s = Reduce(s, LocalSent{Message: local("c1", "hi")})

	confirm := remote("42", "u1", "hi")
	confirm.ClientCorrelationID = "c1"
	s = Reduce(s, MessageReceived{Message: confirm})

	assert.Equal(t, s.Len(), 1)
	assert.Equal(t, s.Messages[0].ClientCorrelationID, "c1")
}

func TestMergeKeepsLocalFieldsTheEventOmits(t *testing.T) {
	s := Seed(self, nil)
	m := local("c1", "see file")
	m.Attachment = &models.Attachment{URL: "https://files/x.pdf", Kind: "pdf"}
	s = Reduce(s, LocalSent{Message: m})

	s = Reduce(s, MessageReceived{Message: models.Message{
		ID:                  "9",
		ClientCorrelationID: "c1",
		SenderID:            "u1",
		Content:             "see file",
	}})

	assert.Equal(t, s.Messages[0].Attachment.URL, "https://files/x.pdf")
	assert.Equal(t, s.Messages[0].Timestamp, t0)
}

func TestUnknownMessageIsAppended(t *testing.T) {
	s := Seed(self, []models.Message{remote("1", "u2", "a")})
	s = Reduce(s, MessageReceived{Message: remote("7", "u2", "b")})

	assert.Equal(t, s.Len(), 2)
	assert.Equal(t, s.Messages[1].ID, "7")
}

func TestEditReplacesAndIsIdempotent(t *testing.T) {
	s := Seed(self, []models.Message{remote("1", "u2", "a"), remote("2", "u2", "b")})

	edit := remote("1", "u2", "a (fixed)")
	edit.Edited = true
	once := Reduce(s, MessageReceived{Message: edit})
	twice := Reduce(once, MessageReceived{Message: edit})

	assert.Equal(t, once.Messages[0].Content, "a (fixed)")
	assert.Equal(t, once.Messages[0].Edited, true)
	assert.Equal(t, twice, once)
	// earlier state is not mutated
	assert.Equal(t, s.Messages[0].Content, "a")
}

func TestEditOfUnknownMessageIsAppended(t *testing.T) {
	s := Seed(self, []models.Message{remote("1", "u2", "a")})
	edit := remote("99", "u2", "late edit")
	edit.Edited = true
	s = Reduce(s, MessageReceived{Message: edit})

	assert.Equal(t, s.Len(), 2)
	assert.Equal(t, s.Messages[1].ID, "99")
}

func TestDeletion(t *testing.T) {
	s := Seed(self, []models.Message{remote("1", "u2", "a"), remote("42", "u1", "hi"), remote("3", "u2", "c")})

	after := Reduce(s, DeletionReceived{ID: "42"})
	assert.Equal(t, after.Len(), 2)
	assert.Equal(t, after.Messages[0].ID, "1")
	assert.Equal(t, after.Messages[1].ID, "3")

	again := Reduce(after, DeletionReceived{ID: "42"})
	assert.Equal(t, again, after)

	assert.Equal(t, Reduce(after, DeletionReceived{ID: ""}), after)
	assert.Equal(t, s.Len(), 3)
}

func TestPendingMessageIsNotDeletedByID(t *testing.T) {
	s := Seed(self, nil)
	s = Reduce(s, LocalSent{Message: local("c1", "hi")})
	s = Reduce(s, DeletionReceived{ID: ""})

	assert.Equal(t, s.Len(), 1)
}

func TestInboundIsNeverPending(t *testing.T) {
	s := Seed(self, nil)
	m := remote("5", "u2", "x")
	m.Pending = true
	s = Reduce(s, MessageReceived{Message: m})

	assert.Equal(t, s.Messages[0].Pending, false)
}

func TestFind(t *testing.T) {
	s := Seed(self, []models.Message{remote("1", "u2", "a")})

	m, ok := s.Find("1")
	assert.Equal(t, ok, true)
	assert.Equal(t, m.Content, "a")

	_, ok = s.Find("2")
	assert.Equal(t, ok, false)
	_, ok = s.Find("")
	assert.Equal(t, ok, false)
}
