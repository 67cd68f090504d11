package fileserver

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
)

var (
	ErrBadToken     = errors.New("upload token is invalid or expired")
	ErrAlreadyTaken = errors.New("upload slot already used")
	ErrNotImage     = errors.New("file content is not a supported image")
	ErrNoObject     = errors.New("file not found")
)

// refPattern — допустимая ссылка на объект (uuid). Защищает от путей вида ../../etc.
var refPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Local — хранилище картинок на диске: файлы лежат сжатыми (<ref>.gz), загрузка идёт по
// одноразовому подписанному адресу, при отдаче файл распаковывается.
type Local struct {
	UploadDir     string
	MaxUploadSize int64
	BaseURL       string
	TokenTTL      time.Duration
	secret        []byte
	now           func() time.Time
}

// NewLocal создаёт сервис с заданным каталогом, лимитом размера (в байтах) и секретом подписи токенов.
// baseURL — внешний адрес API ("" — относительные ссылки).
func NewLocal(uploadDir string, maxUploadSize int64, baseURL, secret string, tokenTTL time.Duration) *Local {
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}
	return &Local{
		UploadDir:     uploadDir,
		MaxUploadSize: maxUploadSize,
		BaseURL:       strings.TrimSuffix(baseURL, "/"),
		TokenTTL:      tokenTTL,
		secret:        []byte(secret),
		now:           time.Now,
	}
}

func (s *Local) path(ref string) string {
	return filepath.Join(s.UploadDir, ref+".gz")
}

func (s *Local) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// token: base64url("<ref>:<unix-exp>") + "." + hmac.
func (s *Local) token(ref string, exp time.Time) string {
	payload := ref + ":" + strconv.FormatInt(exp.Unix(), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + s.sign(payload)
}

func (s *Local) checkToken(tok string) (string, error) {
	enc, sig, ok := strings.Cut(tok, ".")
	if !ok {
		return "", ErrBadToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", ErrBadToken
	}
	payload := string(raw)
	if !hmac.Equal([]byte(sig), []byte(s.sign(payload))) {
		return "", ErrBadToken
	}
	ref, expStr, ok := strings.Cut(payload, ":")
	if !ok || !refPattern.MatchString(ref) {
		return "", ErrBadToken
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return "", ErrBadToken
	}
	return ref, nil
}

// NewUpload выдаёт одноразовый адрес загрузки: POST multipart с полем "file".
func (s *Local) NewUpload(_ context.Context) (*model.UploadTarget, error) {
	ref := uuid.NewString()
	exp := s.now().Add(s.TokenTTL)
	return &model.UploadTarget{
		URL:       s.BaseURL + "/api/files/upload?token=" + s.token(ref, exp),
		Method:    http.MethodPost,
		StorageID: ref,
		ExpiresAt: exp,
	}, nil
}

// URL — адрес для чтения загруженного файла.
func (s *Local) URL(_ context.Context, ref string) (string, error) {
	if !refPattern.MatchString(ref) {
		return "", fmt.Errorf("%w: %q", ErrNoObject, ref)
	}
	return s.BaseURL + "/api/files/" + ref, nil
}

// Save проверяет токен и записывает картинку из r в сжатом виде. Токен действует на один файл.
func (s *Local) Save(ctx context.Context, tok string, r io.Reader) (string, int64, error) {
	ref, err := s.checkToken(tok)
	if err != nil {
		return "", 0, err
	}
	head := make([]byte, 512)
	n, _ := io.ReadAtLeast(r, head, len(head))
	head = head[:n]
	if imageType(head) == "" {
		return "", 0, ErrNotImage
	}
	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create upload dir: %w", err)
	}
	dstPath := s.path(ref)
	// O_EXCL: повторная загрузка по тому же токену отклоняется
	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return "", 0, ErrAlreadyTaken
	}
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", ref, err)
	}
	cw := &countingWriter{w: dst}
	gz := gzip.NewWriter(cw)
	fail := func(err error) (string, int64, error) {
		gz.Close()
		dst.Close()
		os.Remove(dstPath)
		return "", 0, err
	}
	if _, err := gz.Write(head); err != nil {
		return fail(fmt.Errorf("write: %w", err))
	}
	written, err := copyWithContext(ctx, gz, r)
	if err != nil {
		return fail(err)
	}
	if err := gz.Close(); err != nil {
		return fail(fmt.Errorf("gzip close: %w", err))
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return "", 0, fmt.Errorf("close: %w", err)
	}
	logger.Debugf("fileserver: stored %s (%d bytes, %d on disk)", ref, int64(len(head))+written, cw.n)
	return ref, int64(len(head)) + written, nil
}

type uploadResponse struct {
	StorageID string `json:"storage_id"`
	Size      int64  `json:"size"`
}

// Upload — HTTP-обработчик одноразовой загрузки (?token=..., multipart с полем "file").
func (s *Local) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadSize)
	if err := r.ParseMultipartForm(s.MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ref, size, err := s.Save(r.Context(), r.URL.Query().Get("token"), file)
	switch {
	case errors.Is(err, ErrBadToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrAlreadyTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotImage):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		if r.Context().Err() != nil {
			return
		}
		logger.Errorf("fileserver upload: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save file")
	default:
		writeJSON(w, http.StatusOK, uploadResponse{StorageID: ref, Size: size})
	}
}

// Serve отдаёт файл по ссылке, распаковывая на лету.
func (s *Local) Serve(w http.ResponseWriter, r *http.Request, ref string) {
	if !refPattern.MatchString(ref) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	f, err := os.Open(s.path(ref))
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer gz.Close()
	head := make([]byte, 512)
	n, _ := io.ReadAtLeast(gz, head, len(head))
	head = head[:n]
	if ct := imageType(head); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(head); err != nil {
		return
	}
	if _, err := io.Copy(w, gz); err != nil {
		logger.Debugf("fileserver serve %s: %v", ref, err)
	}
}

// List перечисляет сохранённые файлы (для janitor).
func (s *Local) List(_ context.Context) ([]model.StoredObject, error) {
	entries, err := os.ReadDir(s.UploadDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	var out []model.StoredObject
	for _, e := range entries {
		ref, ok := strings.CutSuffix(e.Name(), ".gz")
		if e.IsDir() || !ok || !refPattern.MatchString(ref) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, model.StoredObject{Ref: ref, Size: info.Size(), CreatedAt: info.ModTime()})
	}
	return out, nil
}

// Exists сообщает, сохранён ли файл ref. Недопустимая ссылка — просто отсутствующий файл.
func (s *Local) Exists(_ context.Context, ref string) (bool, error) {
	if !refPattern.MatchString(ref) {
		return false, nil
	}
	_, err := os.Stat(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", ref, err)
	}
	return true, nil
}

// Delete удаляет файл. Отсутствующий файл не считается ошибкой.
func (s *Local) Delete(_ context.Context, ref string) error {
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("%w: %q", ErrNoObject, ref)
	}
	if err := os.Remove(s.path(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", ref, err)
	}
	return nil
}

// imageType определяет картинку по сигнатуре; для не-картинки возвращает "".
func imageType(head []byte) string {
	switch {
	case len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF:
		return "image/jpeg"
	case len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a"))):
		return "image/gif"
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return "image/webp"
	case len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp")) && (bytes.Equal(head[8:12], []byte("heic")) || bytes.Equal(head[8:12], []byte("heix")) || bytes.Equal(head[8:12], []byte("mif1"))):
		return "image/heic"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("fileserver writeJSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		select {
		case <-ctx.Done():
			return total, fmt.Errorf("upload cancelled: %w", ctx.Err())
		default:
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, fmt.Errorf("write: %w", err)
			}
			total += int64(n)
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, fmt.Errorf("read: %w", readErr)
		}
	}
}
