package handlers

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"chuckafile/apperr"
	"chuckafile/models"
)

// blockedExtensions are refused outright.
var blockedExtensions = map[string]bool{
	".exe": true,
	".bat": true,
	".cmd": true,
	".scr": true,
	".pif": true,
	".msi": true,
}

// multipartMemory is how much of a form is held in memory before spilling
// to temp files.
const multipartMemory = 32 << 20

// UploadFile accepts a multipart upload for a friend
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	// Leave room for the other form fields around the file part.
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.resp.Error(w, r, apperr.BadRequest("File too large"))
			return
		}
		h.resp.Error(w, r, apperr.Wrap(apperr.CodeBadRequest, "Invalid upload", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.resp.Error(w, r, apperr.BadRequest("No file uploaded"))
		return
	}
	defer file.Close()

	recipientID, err := strconv.ParseInt(r.FormValue("recipientId"), 10, 64)
	if err != nil || recipientID <= 0 {
		h.resp.Error(w, r, apperr.BadRequest("Recipient ID is required"))
		return
	}

	if header.Size > h.opts.MaxUploadBytes {
		h.resp.Error(w, r, apperr.BadRequest("File too large"))
		return
	}
	if blockedExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		h.resp.Error(w, r, apperr.BadRequest("File type not allowed for security reasons"))
		return
	}

	mimeType, err := detectMimeType(file, header)
	if err != nil {
		h.resp.Error(w, r, apperr.Internal("Failed to upload file", err))
		return
	}

	rec, err := h.convs.AttachFile(r.Context(), user.ID, recipientID, models.FileUpload{
		OriginalName: header.Filename,
		MimeType:     mimeType,
		Content:      file,
	}, r.FormValue("message"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.resp.OK(w, http.StatusCreated, map[string]interface{}{
		"message": "File uploaded successfully",
		"file":    rec.Summary(),
	})
}

// detectMimeType trusts the part's declared type unless it is missing or
// generic, in which case the content is sniffed and the file rewound.
func detectMimeType(file multipart.File, header *multipart.FileHeader) (string, error) {
	declared := header.Header.Get("Content-Type")
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}

	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return detected.String(), nil
}

// DownloadFile streams a file to a participant
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	fileID, err := pathID(r, "fileId")
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	rec, body, err := h.convs.Download(r.Context(), fileID, user.ID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	defer body.Close()

	contentType := rec.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": rec.OriginalName,
	}))

	if rs, ok := body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, rec.OriginalName, rec.UploadedAt, rs)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("download interrupted", "file", rec.ID, "error", err)
	}
}

// ConversationFiles lists files exchanged with a friend
func (h *Handler) ConversationFiles(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	friendID, err := pathID(r, "friendId")
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	files, err := h.convs.ListFiles(r.Context(), user.ID, friendID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, http.StatusOK, map[string]interface{}{"files": files})
}
