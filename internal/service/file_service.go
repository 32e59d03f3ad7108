package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/models"
	"github.com/fathima-sithara/chat-relay/internal/storage"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

const genericMime = "application/octet-stream"

var allowedMimeTypes = map[string]struct{}{
	"image/jpeg": {}, "image/png": {}, "image/gif": {}, "image/webp": {}, "image/bmp": {}, "image/svg+xml": {},

	"video/mp4": {}, "video/mpeg": {}, "video/quicktime": {}, "video/x-msvideo": {}, "video/webm": {},

	"audio/mpeg": {}, "audio/wav": {}, "audio/ogg": {}, "audio/mp4": {}, "audio/x-m4a": {}, "audio/m4a": {},
	"audio/aac": {}, "audio/webm": {},

	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.ms-excel":                                                  {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.ms-powerpoint":                                             {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"text/plain":       {},
	"text/csv":         {},
	"application/json": {},
	"application/xml":  {},

	"application/zip":              {},
	"application/x-rar-compressed": {},
	"application/x-7z-compressed":  {},
}

// extension fallbacks for platforms whose mime tables miss common media types
var extMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".pdf":  "application/pdf",
}

// Upload is one file received from a client.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

type UploadMeta struct {
	ConversationID string
	MessageID      string
	UploadedBy     string
	Tags           []string
	Description    string
}

type FileService struct {
	repo       FileRepository
	blobs      BlobStore
	maxSize    int64
	presignTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewFileService(repo FileRepository, blobs BlobStore, maxSize int64, presignTTL time.Duration, logger *zap.Logger) *FileService {
	return &FileService{
		repo:       repo,
		blobs:      blobs,
		maxSize:    maxSize,
		presignTTL: presignTTL,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Upload validates the file, stores it (plus a thumbnail for images) and
// records its metadata.
func (s *FileService) Upload(ctx context.Context, f Upload, meta UploadMeta) (*models.FileMetadata, error) {
	mimeType, err := s.validate(f)
	if err != nil {
		return nil, err
	}

	id := utils.NewID()
	fileType := ClassifyMime(mimeType)
	ext := strings.ToLower(filepath.Ext(f.Name))
	if ext == "" {
		ext = extensionFor(mimeType)
	}
	key := keyPrefix(fileType) + "/" + id + ext

	url, err := s.blobs.Upload(ctx, key, mimeType, f.Data)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", f.Name, err)
	}

	now := s.now()
	fm := &models.FileMetadata{
		ID:             id,
		OriginalName:   f.Name,
		Key:            key,
		URL:            url,
		MimeType:       mimeType,
		Size:           int64(len(f.Data)),
		FileType:       fileType,
		ConversationID: meta.ConversationID,
		MessageID:      meta.MessageID,
		UploadedBy:     meta.UploadedBy,
		Tags:           meta.Tags,
		Description:    meta.Description,
		UploadedAt:     now,
		UpdatedAt:      now,
	}

	if fileType == models.FileImage {
		s.attachThumbnail(ctx, fm, f.Data)
	}

	if err := s.repo.Insert(ctx, fm); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Warn("orphaned upload", zap.String("key", key), zap.Error(derr))
		}
		return nil, err
	}
	return s.resolve(ctx, fm), nil
}

// UploadMany stores every file it can; a rejected file is logged and skipped.
func (s *FileService) UploadMany(ctx context.Context, files []Upload, meta UploadMeta) []models.FileMetadata {
	out := make([]models.FileMetadata, 0, len(files))
	for _, f := range files {
		fm, err := s.Upload(ctx, f, meta)
		if err != nil {
			s.logger.Warn("upload skipped", zap.String("file", f.Name), zap.Error(err))
			continue
		}
		out = append(out, *fm)
	}
	return out
}

func (s *FileService) GetFileMetadata(ctx context.Context, id string) (*models.FileMetadata, error) {
	fm, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, fm), nil
}

// UpdateFileMetadata attaches the file to a message.
func (s *FileService) UpdateFileMetadata(ctx context.Context, id, messageID string) (*models.FileMetadata, error) {
	if messageID == "" {
		return nil, fmt.Errorf("%w: messageId is required", utils.ErrBadRequest)
	}
	if err := s.repo.SetMessageID(ctx, id, messageID, s.now()); err != nil {
		return nil, err
	}
	return s.GetFileMetadata(ctx, id)
}

func (s *FileService) FilesByMessage(ctx context.Context, messageID string) ([]models.FileMetadata, error) {
	if messageID == "" {
		return []models.FileMetadata{}, nil
	}
	files, err := s.repo.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return s.resolveAll(ctx, files), nil
}

func (s *FileService) FilesByConversation(ctx context.Context, conversationID string) ([]models.FileMetadata, error) {
	files, err := s.repo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.resolveAll(ctx, files), nil
}

// DeleteFile removes the blobs and the metadata record. Blob removal failures
// are logged; the record is still deleted.
func (s *FileService) DeleteFile(ctx context.Context, id string) error {
	fm, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	for _, key := range []string{fm.Key, fm.ThumbnailKey} {
		if key == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("blob delete failed", zap.String("key", key), zap.Error(err))
		}
	}
	return s.repo.Delete(ctx, id)
}

func (s *FileService) validate(f Upload) (string, error) {
	if len(f.Data) == 0 {
		return "", fmt.Errorf("%w: no file content", utils.ErrInvalidFile)
	}
	if s.maxSize > 0 && int64(len(f.Data)) > s.maxSize {
		return "", fmt.Errorf("%w: exceeds limit of %dMB", utils.ErrFileTooLarge, s.maxSize/1024/1024)
	}
	mimeType := DetectMime(f.Name, f.ContentType, f.Data)
	if mimeType == "" {
		return "", fmt.Errorf("%w: could not determine type of %s", utils.ErrInvalidFile, f.Name)
	}
	if _, ok := allowedMimeTypes[mimeType]; !ok {
		return "", fmt.Errorf("%w: %s", utils.ErrUnsupportedType, mimeType)
	}
	return mimeType, nil
}

func (s *FileService) attachThumbnail(ctx context.Context, fm *models.FileMetadata, data []byte) {
	thumb, w, h, err := storage.Thumbnail(data)
	if err != nil {
		s.logger.Debug("thumbnail skipped", zap.String("file_id", fm.ID), zap.Error(err))
		return
	}
	fm.Width, fm.Height = w, h
	key := "thumbnails/" + fm.ID + ".jpg"
	url, err := s.blobs.Upload(ctx, key, "image/jpeg", thumb)
	if err != nil {
		s.logger.Warn("thumbnail upload failed", zap.String("file_id", fm.ID), zap.Error(err))
		return
	}
	fm.ThumbnailKey = key
	fm.ThumbnailURL = url
}

// resolve fills URLs that are not public with presigned ones.
func (s *FileService) resolve(ctx context.Context, fm *models.FileMetadata) *models.FileMetadata {
	if fm.URL == "" {
		if u, err := s.blobs.PresignURL(ctx, fm.Key, s.presignTTL); err == nil {
			fm.URL = u
		} else {
			s.logger.Warn("presign failed", zap.String("key", fm.Key), zap.Error(err))
		}
	}
	if fm.ThumbnailURL == "" && fm.ThumbnailKey != "" {
		if u, err := s.blobs.PresignURL(ctx, fm.ThumbnailKey, s.presignTTL); err == nil {
			fm.ThumbnailURL = u
		}
	}
	return fm
}

func (s *FileService) resolveAll(ctx context.Context, files []models.FileMetadata) []models.FileMetadata {
	for i := range files {
		s.resolve(ctx, &files[i])
	}
	return files
}

// mediaURLs returns the URLs of the files attached to a message.
func (s *FileService) mediaURLs(ctx context.Context, messageID string) []string {
	files, err := s.FilesByMessage(ctx, messageID)
	if err != nil {
		if !errors.Is(err, utils.ErrNotFound) {
			s.logger.Debug("media lookup failed", zap.String("message_id", messageID), zap.Error(err))
		}
		return nil
	}
	urls := make([]string, 0, len(files))
	for _, f := range files {
		if f.URL != "" {
			urls = append(urls, f.URL)
		}
	}
	return urls
}

// DetectMime trusts a specific declared type. For empty or generic declarations
// it falls back to the file extension, then to sniffing the content.
func DetectMime(name, declared string, data []byte) string {
	declared = baseMime(declared)
	if declared != "" && declared != genericMime {
		return declared
	}
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := extMimeTypes[ext]; ok {
		return t
	}
	if ext != "" {
		if t := baseMime(mime.TypeByExtension(ext)); t != "" && t != genericMime {
			return t
		}
	}
	if len(data) > 0 {
		if t := baseMime(mimetype.Detect(data).String()); t != genericMime {
			return t
		}
	}
	return ""
}

// ClassifyMime maps a mime type to the file type buckets used for storage keys.
func ClassifyMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.FileImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.FileVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.FileAudio
	case strings.Contains(mimeType, "pdf"),
		strings.Contains(mimeType, "document"),
		strings.Contains(mimeType, "sheet"),
		strings.Contains(mimeType, "presentation"),
		strings.HasPrefix(mimeType, "text/"):
		return models.FileDocument
	default:
		return models.FileOther
	}
}

func keyPrefix(fileType string) string {
	switch fileType {
	case models.FileImage:
		return "images"
	case models.FileVideo:
		return "videos"
	case models.FileAudio:
		return "audio"
	case models.FileDocument:
		return "documents"
	default:
		return "others"
	}
}

func extensionFor(mimeType string) string {
	for ext, t := range extMimeTypes {
		if t == mimeType && ext != ".jpeg" {
			return ext
		}
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func baseMime(t string) string {
	base, _, _ := strings.Cut(t, ";")
	return strings.TrimSpace(strings.ToLower(base))
}
