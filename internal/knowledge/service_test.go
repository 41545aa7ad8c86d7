package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/preplay-ai/preplay/internal/domain"
	"github.com/preplay-ai/preplay/internal/store"
)

// fakeRemote records calls; any unexpected network call fails the test
// via the calls counter assertions.
type fakeRemote struct {
	uploadID  string
	uploadErr error
	deleteErr error
	listRows  []RemoteFile
	listErr   error

	uploads    int
	deletes    int
	lists      int
	deletedIDs []string
}

func (f *fakeRemote) Upload(ctx context.Context, fileName string, file io.Reader) (string, error) {
	f.uploads++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return f.uploadID, nil
}

func (f *fakeRemote) Delete(ctx context.Context, fileIDs []string) error {
	f.deletes++
	f.deletedIDs = fileIDs
	return f.deleteErr
}

// List honors paging the way the real endpoint does.
func (f *fakeRemote) List(ctx context.Context, currentPage, pageSize int, fileName, extName string) (int, []RemoteFile, error) {
	f.lists++
	if f.listErr != nil {
		return 0, nil, f.listErr
	}
	start := (currentPage - 1) * pageSize
	if start > len(f.listRows) {
		start = len(f.listRows)
	}
	end := start + pageSize
	if end > len(f.listRows) {
		end = len(f.listRows)
	}
	return len(f.listRows), f.listRows[start:end], nil
}

func newTestService(t *testing.T, remote *fakeRemote) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewService(remote, st), st
}

func TestValidateUpload(t *testing.T) {
	// A 3 MiB txt passes.
	ext, err := ValidateUpload("deck.txt", 3<<20)
	assert.NoError(t, err)
	assert.Equal(t, "txt", ext)

	ext, err = ValidateUpload("Notes.DOCX", 100)
	assert.NoError(t, err)
	assert.Equal(t, "docx", ext)

	// A 6 MiB txt fails the size gate.
	_, err = ValidateUpload("deck.txt", 6<<20)
	assert.True(t, errors.Is(err, domain.ErrValidation), "want validation error, got %v", err)
	assert.Contains(t, err.Error(), "5 MiB")

	// A pdf fails the type gate.
	_, err = ValidateUpload("deck.pdf", 100)
	assert.True(t, errors.Is(err, domain.ErrValidation), "want validation error, got %v", err)
	assert.Contains(t, err.Error(), ".pdf")
}

func TestUploadRejectedBeforeNetworkCall(t *testing.T) {
	remote := &fakeRemote{}
	svc, _ := newTestService(t, remote)

	_, err := svc.Upload(context.Background(), "deck.pdf", 100, strings.NewReader("x"))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = svc.Upload(context.Background(), "deck.txt", 6<<20, strings.NewReader("x"))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	assert.Zero(t, remote.uploads, "validation failures must not reach the network")
}

func TestUploadRecordsRegistryRow(t *testing.T) {
	remote := &fakeRemote{uploadID: "fid-1"}
	svc, st := newTestService(t, remote)

	f, err := svc.Upload(context.Background(), "deck.txt", 10, strings.NewReader("slide text"))
	assert.NoError(t, err)
	assert.Equal(t, "fid-1", f.FileID)
	assert.Equal(t, "slide text", f.Content)

	row, err := st.GetKnowledgeFile(context.Background(), "fid-1")
	assert.NoError(t, err)
	if assert.NotNil(t, row) {
		assert.Equal(t, "deck.txt", row.FileName)
		assert.Equal(t, "txt", row.FileType)
	}
}

func TestDeleteIsRemoteFirst(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{deleteErr: domain.ErrTransport}
	svc, st := newTestService(t, remote)

	st.AddKnowledgeFile(ctx, &domain.KnowledgeFile{FileID: "fid-1", FileName: "a.txt", FileType: "txt"})

	// Remote failure aborts: no local mutation.
	err := svc.Delete(ctx, "fid-1")
	assert.Error(t, err)
	row, _ := st.GetKnowledgeFile(ctx, "fid-1")
	assert.NotNil(t, row, "local row must survive a failed remote delete")

	// Remote success completes the saga.
	remote.deleteErr = nil
	assert.NoError(t, svc.Delete(ctx, "fid-1"))
	row, _ = st.GetKnowledgeFile(ctx, "fid-1")
	assert.Nil(t, row)
}

func TestListPrunesStaleRows(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{listRows: []RemoteFile{{FileID: "fid-1", FileName: "a.txt"}}}
	svc, st := newTestService(t, remote)

	st.AddKnowledgeFile(ctx, &domain.KnowledgeFile{FileID: "fid-1", FileName: "a.txt", FileType: "txt"})
	st.AddKnowledgeFile(ctx, &domain.KnowledgeFile{FileID: "fid-stale", FileName: "gone.txt", FileType: "txt"})

	rows, err := svc.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, rows, 1)

	// The row missing remotely was reconciled away.
	stale, _ := st.GetKnowledgeFile(ctx, "fid-stale")
	assert.Nil(t, stale)
	kept, _ := st.GetKnowledgeFile(ctx, "fid-1")
	assert.NotNil(t, kept)
}

func TestListKeepsRowsBeyondFirstPage(t *testing.T) {
	ctx := context.Background()

	// More remote documents than one page holds.
	var remoteRows []RemoteFile
	for i := 1; i <= listPageSize+1; i++ {
		remoteRows = append(remoteRows, RemoteFile{
			FileID:   fmt.Sprintf("fid-%d", i),
			FileName: fmt.Sprintf("doc-%d.txt", i),
			ExtName:  "txt",
		})
	}
	remote := &fakeRemote{listRows: remoteRows}
	svc, st := newTestService(t, remote)

	// The local row corresponds to a remote document on page 2.
	lastID := fmt.Sprintf("fid-%d", listPageSize+1)
	st.AddKnowledgeFile(ctx, &domain.KnowledgeFile{
		FileID: lastID, FileName: "doc.txt", FileType: "txt", Content: "cached extract",
	})

	rows, err := svc.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, rows, listPageSize+1)
	assert.GreaterOrEqual(t, remote.lists, 2, "listing must page past the first page")

	// Its document still exists remotely, so the cached row survives.
	kept, err := st.GetKnowledgeFile(ctx, lastID)
	assert.NoError(t, err)
	if assert.NotNil(t, kept) {
		assert.Equal(t, "cached extract", kept.Content)
	}
}

func TestListRecreatesMissingRows(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{listRows: []RemoteFile{{FileID: "fid-1", FileName: "a.docx", ExtName: "docx"}}}
	svc, st := newTestService(t, remote)

	_, err := svc.List(ctx)
	assert.NoError(t, err)

	row, err := st.GetKnowledgeFile(ctx, "fid-1")
	assert.NoError(t, err)
	if assert.NotNil(t, row) {
		assert.Equal(t, "a.docx", row.FileName)
		assert.Equal(t, "docx", row.FileType)
	}
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{listRows: []RemoteFile{
		{FileID: "fid-1", FileName: "a.txt", ExtName: "txt"},
		{FileID: "fid-2", FileName: "b.txt", ExtName: "txt"},
	}}
	svc, st := newTestService(t, remote)

	st.AddKnowledgeFile(ctx, &domain.KnowledgeFile{FileID: "fid-1", FileName: "a.txt", FileType: "txt"})
	st.AddKnowledgeFile(ctx, &domain.KnowledgeFile{FileID: "fid-2", FileName: "b.txt", FileType: "txt"})

	n, err := svc.DeleteAll(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"fid-1", "fid-2"}, remote.deletedIDs)

	local, err := st.ListKnowledgeFiles(ctx)
	assert.NoError(t, err)
	assert.Empty(t, local)
}

func TestDeleteAllRemoteFailureKeepsLocalRows(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		listRows:  []RemoteFile{{FileID: "fid-1", FileName: "a.txt", ExtName: "txt"}},
		deleteErr: domain.ErrTransport,
	}
	svc, st := newTestService(t, remote)

	st.AddKnowledgeFile(ctx, &domain.KnowledgeFile{FileID: "fid-1", FileName: "a.txt", FileType: "txt"})

	_, err := svc.DeleteAll(ctx)
	assert.Error(t, err)

	row, _ := st.GetKnowledgeFile(ctx, "fid-1")
	assert.NotNil(t, row, "local rows must survive a failed remote delete")
}
