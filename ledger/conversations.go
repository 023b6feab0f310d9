package ledger

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"chuckafile/apperr"
	"chuckafile/metrics"
	"chuckafile/models"
	"chuckafile/storage"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Conversations is the conversation ledger: messages and file records
// between accepted friends.
type Conversations struct {
	store   ConversationStore
	blobs   storage.BlobStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewConversations(store ConversationStore, blobs storage.BlobStore, logger *slog.Logger, m *metrics.Metrics) *Conversations {
	return &Conversations{
		store:   store,
		blobs:   blobs,
		logger:  logger.With("component", "ledger.conversations"),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (c *Conversations) requireFriends(ctx context.Context, a, b int64, denied error) error {
	ok, err := c.store.AreFriends(ctx, a, b)
	if err != nil {
		return err
	}
	if !ok {
		return denied
	}
	return nil
}

// PostMessage appends a message from sender to recipient. An empty type
// means text.
func (c *Conversations) PostMessage(ctx context.Context, senderID, recipientID int64, text string, msgType models.MessageType) (msg *models.Message, err error) {
	defer func() { observe(c.metrics, "conversations.post_message", err) }()

	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, apperr.ErrInvalidMessageType
	}
	if err := c.requireFriends(ctx, senderID, recipientID, apperr.ErrNotFriendsMessage); err != nil {
		return nil, err
	}

	return c.store.CreateMessage(ctx, senderID, recipientID, &text, msgType)
}

// AttachFile stores the upload and records it. The blob is written first;
// if either relational write fails afterwards the blob is deleted again.
// A message written before a failed file record is left in place.
func (c *Conversations) AttachFile(ctx context.Context, senderID, recipientID int64, upload models.FileUpload, text string) (rec *models.FileRecord, err error) {
	defer func() { observe(c.metrics, "conversations.attach_file", err) }()

	if err := c.requireFriends(ctx, senderID, recipientID, apperr.ErrNotFriendsFile); err != nil {
		return nil, err
	}

	key, size, err := c.blobs.Put(ctx, upload.OriginalName, upload.Content)
	if err != nil {
		return nil, apperr.Internal("Failed to upload file", err)
	}

	var linked *int64
	if strings.TrimSpace(text) != "" {
		msg, err := c.store.CreateMessage(ctx, senderID, recipientID, &text, models.MessageTypeFile)
		if err != nil {
			c.compensate(ctx, key, err)
			return nil, apperr.Internal("Failed to upload file", err)
		}
		linked = &msg.ID
	}

	rec, err = c.store.CreateFileRecord(ctx, &models.FileRecord{
		StorageKey:      key,
		OriginalName:    upload.OriginalName,
		Size:            size,
		MimeType:        upload.MimeType,
		SenderID:        senderID,
		RecipientID:     recipientID,
		LinkedMessageID: linked,
	})
	if err != nil {
		c.compensate(ctx, key, err)
		return nil, apperr.Internal("Failed to upload file", err)
	}

	c.logger.Info("file attached", "file", rec.ID, "sender", senderID, "recipient", recipientID, "size", size)
	return rec, nil
}

// compensate deletes a blob whose record could not be written. A failure
// here leaves an orphan that is only logged.
func (c *Conversations) compensate(ctx context.Context, key string, cause error) {
	if err := c.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		c.logger.Error("orphaned blob after failed upload", "key", key, "cause", cause, "error", err)
		if c.metrics != nil {
			c.metrics.OrphanBlobs.Inc()
		}
		return
	}
	c.logger.Warn("upload rolled back", "key", key, "cause", cause)
}

// authorizeFile loads the record and checks requester is a participant and
// the blob still exists.
func (c *Conversations) authorizeFile(ctx context.Context, fileID, requesterID int64) (*models.FileRecord, error) {
	rec, err := c.store.GetFileByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrFileNotFound
		}
		return nil, err
	}
	if rec.SenderID != requesterID && rec.RecipientID != requesterID {
		return nil, apperr.ErrFileAccessDenied
	}
	return rec, nil
}

func (c *Conversations) markIfRecipient(ctx context.Context, rec *models.FileRecord, requesterID int64) error {
	if rec.RecipientID != requesterID || rec.DownloadedAt != nil {
		return nil
	}
	at := c.now()
	set, err := c.store.MarkFileDownloaded(ctx, rec.ID, at)
	if err != nil {
		return err
	}
	if set {
		rec.DownloadedAt = &at
	}
	return nil
}

// MarkDownloaded stamps the first retrieval by the recipient. Later calls
// and calls by the sender leave the record unchanged.
func (c *Conversations) MarkDownloaded(ctx context.Context, fileID, requesterID int64) (rec *models.FileRecord, err error) {
	defer func() { observe(c.metrics, "conversations.mark_downloaded", err) }()

	rec, err = c.authorizeFile(ctx, fileID, requesterID)
	if err != nil {
		return nil, err
	}
	exists, err := c.blobs.Exists(ctx, rec.StorageKey)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.ErrFileGone
	}
	if err := c.markIfRecipient(ctx, rec, requesterID); err != nil {
		return nil, err
	}
	return rec, nil
}

// Download opens the blob and marks the record. The caller closes the
// returned stream.
func (c *Conversations) Download(ctx context.Context, fileID, requesterID int64) (rec *models.FileRecord, body io.ReadCloser, err error) {
	defer func() { observe(c.metrics, "conversations.download", err) }()

	rec, err = c.authorizeFile(ctx, fileID, requesterID)
	if err != nil {
		return nil, nil, err
	}
	body, err = c.blobs.Open(ctx, rec.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, apperr.ErrFileGone
		}
		return nil, nil, err
	}
	if err := c.markIfRecipient(ctx, rec, requesterID); err != nil {
		body.Close()
		return nil, nil, err
	}
	return rec, body, nil
}

// GetConversation returns one page of the pair's history oldest first.
// HasMore is true whenever the page came back full, so the last page may
// report more when exactly limit messages remain.
func (c *Conversations) GetConversation(ctx context.Context, userID, friendID int64, limit, offset int) ([]models.Message, models.Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	page := models.Page{Limit: limit, Offset: offset}

	if err := c.requireFriends(ctx, userID, friendID, apperr.ErrNotFriendsView); err != nil {
		return nil, page, err
	}

	messages, err := c.store.GetMessagesBetweenUsers(ctx, userID, friendID, limit, offset)
	if err != nil {
		return nil, page, err
	}
	if messages == nil {
		messages = []models.Message{}
	}
	page.HasMore = len(messages) == limit
	return messages, page, nil
}

// ListConversations returns every accepted friend with the last message.
func (c *Conversations) ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	return c.store.GetConversations(ctx, userID)
}

// ListFiles returns the files exchanged with a friend, newest first.
func (c *Conversations) ListFiles(ctx context.Context, userID, friendID int64) ([]models.FileRecord, error) {
	if err := c.requireFriends(ctx, userID, friendID, apperr.ErrFileAccessDenied); err != nil {
		return nil, err
	}
	files, err := c.store.GetFilesBetweenUsers(ctx, userID, friendID)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []models.FileRecord{}
	}
	return files, nil
}
