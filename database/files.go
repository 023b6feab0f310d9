package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"chuckafile/models"
)

const fileSelect = `SELECT f.id, f.filename, f.original_filename, f.file_size, f.file_type,
		f.sender_id, f.recipient_id, f.message_id, f.uploaded_at, f.downloaded_at, u.username
	FROM files f
	JOIN users u ON f.sender_id = u.id`

func scanFile(row interface{ Scan(...any) error }) (*models.FileRecord, error) {
	rec := &models.FileRecord{}
	var (
		mimeType     sql.NullString
		messageID    sql.NullInt64
		downloadedAt sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.StorageKey, &rec.OriginalName, &rec.Size, &mimeType,
		&rec.SenderID, &rec.RecipientID, &messageID, &rec.UploadedAt, &downloadedAt, &rec.SenderUsername)
	if err != nil {
		return nil, err
	}
	rec.MimeType = mimeType.String
	if messageID.Valid {
		id := messageID.Int64
		rec.LinkedMessageID = &id
	}
	if downloadedAt.Valid {
		t := downloadedAt.Time
		rec.DownloadedAt = &t
	}
	return rec, nil
}

// CreateFileRecord saves the metadata row for a stored blob
func (db *DB) CreateFileRecord(ctx context.Context, rec *models.FileRecord) (*models.FileRecord, error) {
	var id int64
	err := db.queryRow(ctx,
		`INSERT INTO files (
			filename, original_filename, file_size, file_type,
			sender_id, recipient_id, message_id, uploaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		rec.StorageKey, rec.OriginalName, rec.Size, rec.MimeType,
		rec.SenderID, rec.RecipientID, rec.LinkedMessageID, now(),
	).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "database.CreateFileRecord")
	}
	return db.GetFileByID(ctx, id)
}

// GetFileByID retrieves a file record by its ID
func (db *DB) GetFileByID(ctx context.Context, id int64) (*models.FileRecord, error) {
	rec, err := scanFile(db.queryRow(ctx, fileSelect+` WHERE f.id = ?`, id))
	if err != nil {
		return nil, errors.Wrap(err, "database.GetFileByID")
	}
	return rec, nil
}

// MarkFileDownloaded stamps downloaded_at unless it is already set. It
// reports whether this call was the one that set it.
func (db *DB) MarkFileDownloaded(ctx context.Context, id int64, at time.Time) (bool, error) {
	result, err := db.exec(ctx,
		`UPDATE files SET downloaded_at = ? WHERE id = ? AND downloaded_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return false, errors.Wrap(err, "database.MarkFileDownloaded")
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetFilesBetweenUsers lists files exchanged by two users, newest first
func (db *DB) GetFilesBetweenUsers(ctx context.Context, userID1, userID2 int64) ([]models.FileRecord, error) {
	rows, err := db.query(ctx,
		fileSelect+`
		WHERE (f.sender_id = ? AND f.recipient_id = ?) OR (f.sender_id = ? AND f.recipient_id = ?)
		ORDER BY f.uploaded_at DESC, f.id DESC`,
		userID1, userID2, userID2, userID1,
	)
	if err != nil {
		return nil, errors.Wrap(err, "database.GetFilesBetweenUsers")
	}
	defer rows.Close()

	var files []models.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, errors.Wrap(err, "database.GetFilesBetweenUsers.Scan")
		}
		files = append(files, *rec)
	}
	return files, rows.Err()
}
