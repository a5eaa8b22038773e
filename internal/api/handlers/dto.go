// dto.go — JSON-представления доменных моделей в ответах API.
package handlers

import (
	"encoding/json"
	"time"

	"github.com/preetgupta-32/folder-manager-iudx/internal/domain/model"
	"github.com/preetgupta-32/folder-manager-iudx/internal/service"
	"github.com/preetgupta-32/folder-manager-iudx/internal/storage/artifact"
)

type snapshotResponse struct {
	Digest       string `json:"digest"`
	DigestBound  bool   `json:"digest_bound"`
	State        string `json:"state"`
	ChunkCount   int    `json:"chunk_count"`
	HasChunks    bool   `json:"has_chunks"`
	HasInference bool   `json:"has_inference"`
	HasConfig    bool   `json:"has_config"`
}

func toSnapshot(s model.Snapshot) snapshotResponse {
	return snapshotResponse{
		Digest:       s.Digest,
		DigestBound:  s.DigestBound,
		State:        string(s.State),
		ChunkCount:   s.ChunkCount,
		HasChunks:    s.HasChunks,
		HasInference: s.HasInference,
		HasConfig:    s.HasConfig,
	}
}

// fileResponse — метаданные файла. Processing — кэш снимка из записи,
// актуальный снимок отдаёт /processing-status.
type fileResponse struct {
	ID           string           `json:"id"`
	OriginalName string           `json:"original_name"`
	Size         int64            `json:"size"`
	Checksum     string           `json:"checksum"`
	FolderID     *string          `json:"folder_id"`
	UploadedBy   *string          `json:"uploaded_by"`
	UploadedAt   time.Time        `json:"uploaded_at"`
	Description  *string          `json:"description,omitempty"`
	IsPublic     bool             `json:"is_public"`
	ConfigAdded  bool             `json:"config_added"`
	Processing   snapshotResponse `json:"processing"`
}

func toFile(f *model.FileRecord) fileResponse {
	return fileResponse{
		ID:           f.ID,
		OriginalName: f.OriginalName,
		Size:         f.Size,
		Checksum:     f.Checksum,
		FolderID:     f.FolderID,
		UploadedBy:   f.UploadedBy,
		UploadedAt:   f.UploadedAt,
		Description:  f.Description,
		IsPublic:     f.IsPublic,
		ConfigAdded:  f.ConfigAdded,
		Processing:   toSnapshot(f.CachedSnapshot()),
	}
}

func toFiles(files []*model.FileRecord) []fileResponse {
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toFile(f))
	}
	return out
}

type folderResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ParentID    *string   `json:"parent_id"`
	AllowedType string    `json:"allowed_type"`
	CreatedBy   *string   `json:"created_by"`
	Description *string   `json:"description,omitempty"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toFolder(f *model.Folder) folderResponse {
	return folderResponse{
		ID:          f.ID,
		Name:        f.Name,
		ParentID:    f.ParentID,
		AllowedType: string(f.AllowedType),
		CreatedBy:   f.CreatedBy,
		Description: f.Description,
		IsPublic:    f.IsPublic,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

func toFolders(folders []*model.Folder) []folderResponse {
	out := make([]folderResponse, 0, len(folders))
	for _, f := range folders {
		out = append(out, toFolder(f))
	}
	return out
}

type summaryResponse struct {
	FileCount          int     `json:"file_count"`
	TotalBytes         int64   `json:"total_bytes"`
	TotalMB            float64 `json:"total_mb"`
	FilesWithChunks    int     `json:"files_with_chunks"`
	TotalChunks        int     `json:"total_chunks"`
	FilesWithInference int     `json:"files_with_inference"`
	FilesWithConfig    int     `json:"files_with_config"`
}

func toSummary(s model.Summary) summaryResponse {
	return summaryResponse{
		FileCount:          s.FileCount,
		TotalBytes:         s.TotalBytes,
		TotalMB:            service.BytesToMB(s.TotalBytes),
		FilesWithChunks:    s.FilesWithChunks,
		TotalChunks:        s.TotalChunks,
		FilesWithInference: s.FilesWithInference,
		FilesWithConfig:    s.FilesWithConfig,
	}
}

type inferenceResponse struct {
	Name         string     `json:"name"`
	Timestamp    *time.Time `json:"timestamp"`
	RawTimestamp string     `json:"raw_timestamp,omitempty"`
	HasConfig    bool       `json:"has_config"`
	HasInference bool       `json:"has_inference"`
	SizeBytes    int64      `json:"size_bytes"`
}

func toInferences(records []model.InferenceRecord) []inferenceResponse {
	out := make([]inferenceResponse, 0, len(records))
	for _, r := range records {
		out = append(out, inferenceResponse{
			Name:         r.Name,
			Timestamp:    r.Timestamp,
			RawTimestamp: r.RawTimestamp,
			HasConfig:    r.HasConfig,
			HasInference: r.HasInference,
			SizeBytes:    r.SizeBytes,
		})
	}
	return out
}

type diagnosticResponse struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func toDiagnostics(diags []artifact.Diagnostic) []diagnosticResponse {
	out := make([]diagnosticResponse, 0, len(diags))
	for _, d := range diags {
		out = append(out, diagnosticResponse{Name: d.Name, Reason: d.Reason})
	}
	return out
}

type previewResponse struct {
	File            fileResponse         `json:"file"`
	Snapshot        snapshotResponse     `json:"snapshot"`
	Config          json.RawMessage      `json:"config"`
	FirstChunkIndex int                  `json:"first_chunk_index,omitempty"`
	FirstChunk      json.RawMessage      `json:"first_chunk"`
	Inferences      []inferenceResponse  `json:"inferences"`
	Skipped         []diagnosticResponse `json:"skipped"`
}

func toPreview(p *service.Preview) previewResponse {
	return previewResponse{
		File:            toFile(p.File),
		Snapshot:        toSnapshot(p.Snapshot),
		Config:          p.Config,
		FirstChunkIndex: p.FirstChunkIndex,
		FirstChunk:      p.FirstChunk,
		Inferences:      toInferences(p.Inferences),
		Skipped:         toDiagnostics(p.Skipped),
	}
}
