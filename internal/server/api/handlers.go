package api

import (
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"qrdrop/internal/server/scancode"
	"qrdrop/internal/server/service"
	"qrdrop/internal/server/storage"

	"github.com/labstack/echo/v4"
	"github.com/munnerz/goautoneg"
)

// Handler contains the HTTP handlers for the upload page and file routes.
type Handler struct {
	svc      *service.UploadService
	uploads  storage.Store
	archives storage.Store
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(svc *service.UploadService, uploads, archives storage.Store) *Handler {
	return &Handler{svc: svc, uploads: uploads, archives: archives}
}

// shareLink is one (url, code) pair on the success page.
type shareLink struct {
	URL      string
	QRCode   template.URL
	Filename string
	Size     string
	Checksum string
	Files    []string
}

type successView struct {
	Links []shareLink
}

// HandleIndex handles GET /.
func (h *Handler) HandleIndex(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", nil)
}

// HandleUpload handles POST /.
// Accepts a multipart form with a repeatable "files" field and an optional
// "filename" field. Anything that is not a usable submission gets the
// empty form back.
func (h *Handler) HandleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		slog.Debug("upload without multipart form", "error", err)
		return mapServiceError(c, service.ErrNoFile)
	}

	baseName := ""
	if v := form.Value["filename"]; len(v) > 0 {
		baseName = strings.TrimSpace(v[0])
	}

	req := c.Request()
	result, err := h.svc.ProcessUpload(
		req.Context(),
		baseName,
		collectFiles(form),
		h.svc.PublicBaseURL(c.Scheme(), req.Host),
	)
	if err != nil {
		return mapServiceError(c, err)
	}

	if wantsJSON(c) {
		return c.JSON(http.StatusCreated, result)
	}

	return c.Render(http.StatusOK, "success.html", successView{
		Links: []shareLink{{
			URL:      result.URL,
			QRCode:   template.URL(scancode.DataURI(result.QRCode)),
			Filename: result.Filename,
			Size:     humanizeBytes(result.Size),
			Checksum: result.Checksum,
			Files:    result.Files,
		}},
	})
}

// HandleUploaded handles GET /uploads/:filename.
func (h *Handler) HandleUploaded(c echo.Context) error {
	return serveStored(c, h.uploads)
}

// HandleArchive handles GET /zips/:filename.
func (h *Handler) HandleArchive(c echo.Context) error {
	return serveStored(c, h.archives)
}

// HandleHealth handles GET /health.
// Reports whether both storage directories accept writes; 503 when not.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	code := http.StatusOK
	checks := echo.Map{"status": status}

	for name, store := range map[string]storage.Store{"uploads": h.uploads, "zips": h.archives} {
		if err := store.HealthCheck(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
			checks[name] = "error: " + err.Error()
			continue
		}
		checks[name] = "ok"
	}
	checks["status"] = status

	return c.JSON(code, checks)
}

func serveStored(c echo.Context, store storage.Store) error {
	// echo routes on RawPath when the request has one, and params are then
	// still escaped. Otherwise they come from the decoded Path.
	name := c.Param("filename")
	if c.Request().URL.RawPath != "" {
		unescaped, err := url.PathUnescape(name)
		if err != nil {
			return respondError(c, http.StatusNotFound, "file not found")
		}
		name = unescaped
	}

	path, err := store.GetPath(name)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.File(path)
}

// collectFiles turns the "files" field into an ordered list. Parts sent
// without a filename land in form.Value; they are kept as empty entries
// so the single/multi decision sees every submitted field.
func collectFiles(form *multipart.Form) []service.UploadFile {
	var files []service.UploadFile
	for _, fh := range form.File["files"] {
		fh := fh
		files = append(files, service.UploadFile{
			Name: fh.Filename,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	for range form.Value["files"] {
		files = append(files, service.UploadFile{
			Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("")), nil },
		})
	}
	return files
}

// wantsJSON reports whether the Accept header ranks JSON above HTML.
// Browsers and empty headers get HTML.
func wantsJSON(c echo.Context) bool {
	accept := c.Request().Header.Get(echo.HeaderAccept)
	if accept == "" {
		return false
	}
	return goautoneg.Negotiate(accept, offeredTypes) == echo.MIMEApplicationJSON
}

var offeredTypes = []string{echo.MIMETextHTML, echo.MIMEApplicationJSON}

// mapServiceError translates service and storage errors into HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNoFile):
		slog.Warn("upload without a selected file", "ip", c.RealIP())
		if wantsJSON(c) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return c.Render(http.StatusOK, "index.html", nil)
	case errors.Is(err, storage.ErrInvalidName) && c.Request().Method == http.MethodPost:
		return respondError(c, http.StatusBadRequest, "invalid file name")
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidName):
		return respondError(c, http.StatusNotFound, "file not found")
	default:
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"error", err,
		)
		return respondError(c, http.StatusInternalServerError, "internal server error")
	}
}

func respondError(c echo.Context, status int, msg string) error {
	if wantsJSON(c) {
		return c.JSON(status, echo.Map{"error": msg})
	}
	return c.String(status, msg)
}
