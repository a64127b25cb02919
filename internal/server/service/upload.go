package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"qrdrop/internal/core"
	"qrdrop/internal/server/config"
	"qrdrop/internal/server/scancode"
	"qrdrop/internal/server/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrNoFile means the request carried no usable file. Callers render the
// empty form again instead of reporting an error.
var ErrNoFile = errors.New("no file selected")

// Result kinds.
const (
	KindFile    = "file"
	KindArchive = "archive"
)

// Route prefixes the static handlers are mounted on.
const (
	UploadsPath = "/uploads/"
	ZipsPath    = "/zips/"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrdrop_uploads_total",
		Help: "Completed uploads by result kind.",
	}, []string{"kind"})

	storedBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrdrop_stored_bytes_total",
		Help: "Bytes written to disk by store.",
	}, []string{"store"})

	supersededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrdrop_superseded_total",
		Help: "Existing files moved aside to a timestamped name.",
	}, []string{"store"})

	emptySubmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrdrop_empty_submissions_total",
		Help: "Form submissions without a selected file.",
	})
)

// UploadFile is one entry of the repeatable "files" form field.
// Name is empty when the field was submitted without a file.
type UploadFile struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// UploadResult is returned after a successful upload.
type UploadResult struct {
	Kind     string   `json:"kind"`
	Filename string   `json:"filename"`
	URL      string   `json:"url"`
	QRCode   string   `json:"qr_code"`
	Size     int64    `json:"size"`
	Checksum string   `json:"checksum"`
	Files    []string `json:"files,omitempty"`
}

// UploadService stores uploads and builds their share links.
type UploadService struct {
	uploads  storage.Store
	archives storage.Store
	cfg      *config.Config
}

// NewUploadService creates a new upload service.
func NewUploadService(uploads, archives storage.Store, cfg *config.Config) *UploadService {
	return &UploadService{
		uploads:  uploads,
		archives: archives,
		cfg:      cfg,
	}
}

// ProcessUpload handles one form submission. A single file is stored as
// is; more than one entry is stored individually and bundled into a zip,
// even when only one of them names a file. Submissions without any named
// file return ErrNoFile.
// baseURL is the scheme and host the links are built on.
func (s *UploadService) ProcessUpload(ctx context.Context, baseName string, files []UploadFile, baseURL string) (*UploadResult, error) {
	if countNamed(files) == 0 {
		emptySubmissionsTotal.Inc()
		return nil, ErrNoFile
	}

	if len(files) == 1 {
		return s.storeSingle(ctx, baseName, files[0], baseURL)
	}
	return s.storeArchive(ctx, baseName, files, baseURL)
}

func countNamed(files []UploadFile) int {
	var n int
	for _, f := range files {
		if f.Name != "" {
			n++
		}
	}
	return n
}

func (s *UploadService) storeSingle(ctx context.Context, baseName string, file UploadFile, baseURL string) (*UploadResult, error) {
	name := storage.ResolveName(baseName, file.Name)

	saved, err := s.saveUpload(name, file)
	if err != nil {
		return nil, err
	}

	result, err := s.buildResult(KindFile, saved, baseURL+UploadsPath+url.PathEscape(saved.Name))
	if err != nil {
		return nil, err
	}

	uploadsTotal.WithLabelValues(KindFile).Inc()
	slog.InfoContext(ctx, "file uploaded",
		"filename", saved.Name,
		"original", file.Name,
		"size", saved.Size,
		"checksum", saved.Checksum,
		"superseded", saved.Superseded,
	)

	return result, nil
}

// storeArchive saves every named entry under its original filename and
// writes the same bytes into the zip while they are being stored.
func (s *UploadService) storeArchive(ctx context.Context, baseName string, files []UploadFile, baseURL string) (*UploadResult, error) {
	name := storage.ArchiveName(baseName, s.cfg.DefaultArchiveName)

	var members []string
	saved, err := s.archives.Create(name, func(w io.Writer) error {
		zw := core.NewZipWriter(w)
		for _, f := range files {
			if f.Name == "" {
				continue
			}

			entry, err := zw.Create(f.Name)
			if err != nil {
				return err
			}
			if _, err := s.saveUpload(f.Name, f, entry); err != nil {
				return err
			}
		}
		members = zw.Entries()
		return zw.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build archive %s: %w", name, err)
	}
	s.recordWrite("zips", saved)

	result, err := s.buildResult(KindArchive, saved, baseURL+ZipsPath+url.PathEscape(saved.Name))
	if err != nil {
		return nil, err
	}
	result.Files = members

	uploadsTotal.WithLabelValues(KindArchive).Inc()
	slog.InfoContext(ctx, "archive created",
		"filename", saved.Name,
		"files", len(members),
		"size", saved.Size,
		"checksum", saved.Checksum,
		"superseded", saved.Superseded,
	)

	return result, nil
}

// saveUpload copies one form file into the uploads store under name,
// mirroring the bytes into any extra writers.
func (s *UploadService) saveUpload(name string, file UploadFile, mirrors ...io.Writer) (*storage.SavedFile, error) {
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file %s: %w", file.Name, err)
	}
	defer src.Close()

	saved, err := s.uploads.Create(name, func(w io.Writer) error {
		_, err := io.Copy(io.MultiWriter(append([]io.Writer{w}, mirrors...)...), src)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store file %s: %w", name, err)
	}
	s.recordWrite("uploads", saved)

	return saved, nil
}

func (s *UploadService) recordWrite(store string, saved *storage.SavedFile) {
	storedBytesTotal.WithLabelValues(store).Add(float64(saved.Size))
	if saved.Superseded != "" {
		supersededTotal.WithLabelValues(store).Inc()
		slog.Info("existing file moved aside",
			"store", store,
			"filename", saved.Name,
			"superseded", saved.Superseded,
		)
	}
}

func (s *UploadService) buildResult(kind string, saved *storage.SavedFile, link string) (*UploadResult, error) {
	code, err := scancode.Encode(link)
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		Kind:     kind,
		Filename: saved.Name,
		URL:      link,
		QRCode:   code,
		Size:     saved.Size,
		Checksum: saved.Checksum,
	}, nil
}

// PublicBaseURL returns the configured base URL, or scheme://host of the
// current request when none is configured.
func (s *UploadService) PublicBaseURL(scheme, host string) string {
	if s.cfg.BaseURL != "" {
		return s.cfg.BaseURL
	}
	return strings.TrimRight(scheme+"://"+host, "/")
}
