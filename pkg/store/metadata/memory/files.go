package memory

import (
	"context"
	"sort"
	"time"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

func (s *MemoryMetadataStore) CreateFile(ctx context.Context, file *metadata.FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := fileKey{owner: file.Owner, filename: file.Filename}
	if _, ok := s.byOwnerName[key]; ok {
		return metadata.NewAlreadyExistsError(metadata.FieldFilename)
	}

	s.nextFileID++
	file.ID = s.nextFileID

	s.files[file.ID] = file.Clone()
	s.byOwnerName[key] = file.ID
	return nil
}

func (s *MemoryMetadataStore) GetFile(ctx context.Context, id int64) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, ok := s.files[id]
	if !ok {
		return nil, metadata.NewNotFoundError("file")
	}
	return file.Clone(), nil
}

func (s *MemoryMetadataStore) GetFileByName(ctx context.Context, owner, filename string) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOwnerName[fileKey{owner: owner, filename: filename}]
	if !ok {
		return nil, metadata.NewNotFoundError("file")
	}
	return s.files[id].Clone(), nil
}

func (s *MemoryMetadataStore) ListFiles(ctx context.Context, owner, query string) ([]*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	result := make([]*metadata.FileRecord, 0)
	for _, file := range s.files {
		if file.Owner == owner && metadata.MatchesQuery(file.Filename, query) {
			result = append(result, file.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Filename < result[j].Filename })
	return result, nil
}

func (s *MemoryMetadataStore) RenameFile(ctx context.Context, id int64, expectedRef blob.Ref, newName string, newRef blob.Ref) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.files[id]
	if !ok {
		return nil, metadata.NewNotFoundError("file")
	}
	if file.ContentRef != expectedRef {
		return nil, metadata.NewConflictError("file content changed concurrently")
	}

	newKey := fileKey{owner: file.Owner, filename: newName}
	if other, taken := s.byOwnerName[newKey]; taken && other != id {
		return nil, metadata.NewAlreadyExistsError(metadata.FieldFilename)
	}

	delete(s.byOwnerName, fileKey{owner: file.Owner, filename: file.Filename})
	s.byOwnerName[newKey] = id

	file.Filename = newName
	file.ContentRef = newRef
	file.UpdatedAt = time.Now().UTC()
	return file.Clone(), nil
}

func (s *MemoryMetadataStore) ReplaceFileContent(ctx context.Context, id int64, expectedRef blob.Ref, content metadata.FileContent) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.files[id]
	if !ok {
		return nil, metadata.NewNotFoundError("file")
	}
	if file.ContentRef != expectedRef {
		return nil, metadata.NewConflictError("file content changed concurrently")
	}

	file.ContentRef = content.ContentRef
	file.Size = content.Size
	file.Checksum = content.Checksum
	file.ContentType = content.ContentType
	file.UpdatedAt = time.Now().UTC()
	return file.Clone(), nil
}

func (s *MemoryMetadataStore) ToggleFilePrivacy(ctx context.Context, id int64) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.files[id]
	if !ok {
		return nil, metadata.NewNotFoundError("file")
	}

	file.IsPrivate = !file.IsPrivate
	file.UpdatedAt = time.Now().UTC()
	return file.Clone(), nil
}

func (s *MemoryMetadataStore) DeleteFile(ctx context.Context, id int64) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.files[id]
	if !ok {
		return nil, metadata.NewNotFoundError("file")
	}

	delete(s.files, id)
	delete(s.byOwnerName, fileKey{owner: file.Owner, filename: file.Filename})
	return file, nil
}

func (s *MemoryMetadataStore) ListContentRefs(ctx context.Context) ([]blob.Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]blob.Ref, 0, len(s.files))
	for _, file := range s.files {
		refs = append(refs, file.ContentRef)
	}
	return refs, nil
}
