package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/preplay-ai/preplay/internal/domain"
	"github.com/preplay-ai/preplay/internal/store"
)

// MaxFileSize is the upload cap, enforced before any network call.
const MaxFileSize = 5 << 20 // 5 MiB

const listPageSize = 100

// allowedTypes is the upload extension allow-list.
var allowedTypes = map[string]bool{
	"txt":  true,
	"docx": true,
}

// Remote is the subset of the document endpoints the service needs.
type Remote interface {
	Upload(ctx context.Context, fileName string, file io.Reader) (string, error)
	Delete(ctx context.Context, fileIDs []string) error
	List(ctx context.Context, currentPage, pageSize int, fileName, extName string) (int, []RemoteFile, error)
}

var _ Remote = (*DocClient)(nil)

// Service manages knowledge documents: validation gates, the remote
// registration, and the local registry kept alongside it.
type Service struct {
	remote Remote
	store  store.Store
}

// NewService creates a knowledge-document service.
func NewService(remote Remote, st store.Store) *Service {
	return &Service{remote: remote, store: st}
}

// ValidateUpload applies the type and size gates and returns the file
// extension. It never touches the network.
func ValidateUpload(fileName string, size int64) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if !allowedTypes[ext] {
		return "", fmt.Errorf("%w: unsupported file type .%s (allowed: txt, docx)", domain.ErrValidation, ext)
	}
	if size > MaxFileSize {
		return "", fmt.Errorf("%w: file %.2f MiB exceeds the 5 MiB limit",
			domain.ErrValidation, float64(size)/(1<<20))
	}
	return ext, nil
}

// Upload validates the file, registers it with the remote knowledge base
// and records it locally. The raw file is not retained beyond this call;
// for plain-text files a text extract is cached on the registry row.
func (s *Service) Upload(ctx context.Context, fileName string, size int64, file io.Reader) (*domain.KnowledgeFile, error) {
	ext, err := ValidateUpload(fileName, size)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, fmt.Errorf("%w: file exceeds the 5 MiB limit", domain.ErrValidation)
	}

	fileID, err := s.remote.Upload(ctx, fileName, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	f := &domain.KnowledgeFile{
		FileID:   fileID,
		FileName: fileName,
		FileType: ext,
		FileSize: int64(len(data)),
		Content:  extractText(ext, data),
	}
	if _, err := s.store.AddKnowledgeFile(ctx, f); err != nil {
		// The remote upload already succeeded; the row will be
		// recreated from the remote list on the next reconcile.
		log.Printf("WARN: failed to record knowledge file %s locally: %v", fileID, err)
	}
	return f, nil
}

// Delete removes a document remotely, then locally. The local row is
// only removed after the remote delete succeeds; a remote failure aborts
// the whole operation.
func (s *Service) Delete(ctx context.Context, fileID string) error {
	if err := s.remote.Delete(ctx, []string{fileID}); err != nil {
		return err
	}

	ok, err := s.store.DeleteKnowledgeFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("remote delete succeeded but local delete failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("knowledge file %s: %w", fileID, domain.ErrNotFound)
	}
	return nil
}

// List fetches the authoritative document list from the remote service
// and reconciles the local registry against it: rows for documents gone
// remotely are pruned, rows missing locally are recreated. A crash
// between the two delete phases, or a lost local insert after upload,
// is healed here.
func (s *Service) List(ctx context.Context) ([]RemoteFile, error) {
	rows, err := s.listRemote(ctx)
	if err != nil {
		return nil, err
	}

	remote := make(map[string]bool, len(rows))
	for _, r := range rows {
		remote[r.FileID] = true
	}

	local, err := s.store.ListKnowledgeFiles(ctx)
	if err != nil {
		log.Printf("WARN: failed to list local knowledge files, skipping reconcile: %v", err)
		return rows, nil
	}
	localSet := make(map[string]bool, len(local))
	for _, f := range local {
		localSet[f.FileID] = true
		if !remote[f.FileID] {
			if _, err := s.store.DeleteKnowledgeFile(ctx, f.FileID); err != nil {
				log.Printf("WARN: failed to prune stale knowledge file %s: %v", f.FileID, err)
			}
		}
	}
	for _, r := range rows {
		if localSet[r.FileID] {
			continue
		}
		f := &domain.KnowledgeFile{FileID: r.FileID, FileName: r.FileName, FileType: r.ExtName}
		if _, err := s.store.AddKnowledgeFile(ctx, f); err != nil {
			log.Printf("WARN: failed to recreate knowledge file %s: %v", r.FileID, err)
		}
	}

	return rows, nil
}

// DeleteAll removes every document, remotely first. The local registry
// is only cleared after the remote delete succeeds. It returns the
// number of remote documents removed.
func (s *Service) DeleteAll(ctx context.Context) (int, error) {
	rows, err := s.listRemote(ctx)
	if err != nil {
		return 0, err
	}
	if len(rows) > 0 {
		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.FileID
		}
		if err := s.remote.Delete(ctx, ids); err != nil {
			return 0, err
		}
	}
	if _, err := s.store.DeleteAllKnowledgeFiles(ctx); err != nil {
		return len(rows), fmt.Errorf("remote delete succeeded but local clear failed: %w", err)
	}
	return len(rows), nil
}

// listRemote pages through the full remote document list. The prune set
// must never be computed from a partial list, so any page failure
// aborts the whole fetch.
func (s *Service) listRemote(ctx context.Context) ([]RemoteFile, error) {
	var rows []RemoteFile
	for page := 1; ; page++ {
		total, batch, err := s.remote.List(ctx, page, listPageSize, "", "")
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
		if len(rows) >= total || len(batch) == 0 {
			return rows, nil
		}
	}
}

// extractText returns a cached text extract for formats trivially
// decodable locally. Anything else is left to the remote service.
func extractText(ext string, data []byte) string {
	if ext != "txt" {
		return ""
	}
	if !utf8.Valid(data) {
		return ""
	}
	return string(data)
}
