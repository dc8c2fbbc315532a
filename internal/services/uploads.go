package services

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Lllllllleong/iotloader/internal/models"
)

const (
	DefaultMaxUploadBytes = 15 * 1024 * 1024
	maxStoredNameLen      = 180
	idSeparator           = "__"
)

var (
	ErrNotFound = errors.New("not found")

	allowedUploadExts = map[string]bool{".pdf": true, ".docx": true, ".txt": true, ".xlsx": true}
	uploadNameStrip   = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// UploadError rejects a file offered to the upload store.
type UploadError struct {
	Name   string
	Reason string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("rejected upload %q: %s", e.Name, e.Reason)
}

// UploadStore keeps agreements and standard batches on the local filesystem:
//
//	<root>/agreements/<id>__<name>
//	<root>/standards/<batchId>/<prefix>__<name>
type UploadStore struct {
	root     string
	maxBytes int64
}

func NewUploadStore(root string, maxBytes int64) *UploadStore {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &UploadStore{root: root, maxBytes: maxBytes}
}

func (s *UploadStore) AgreementsDir() string { return filepath.Join(s.root, "agreements") }
func (s *UploadStore) StandardsDir() string  { return filepath.Join(s.root, "standards") }

// CheckLayout reports whether the store layout already exists. Readers that
// must see uploads made by another process use it instead of EnsureDirs.
func (s *UploadStore) CheckLayout() error {
	for _, dir := range []string{s.AgreementsDir(), s.StandardsDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("upload store %s is not initialised: %w", s.root, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("upload store %s is not initialised: %s is not a directory", s.root, dir)
		}
	}
	return nil
}

// EnsureDirs creates the store layout.
func (s *UploadStore) EnsureDirs() error {
	for _, dir := range []string{s.AgreementsDir(), s.StandardsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// StoreAgreement copies a local agreement file into the store under a new id.
func (s *UploadStore) StoreAgreement(srcPath string) (id, storedName string, err error) {
	id = newUploadID()
	storedName, err = s.store(srcPath, s.AgreementsDir(), id)
	if err != nil {
		return "", "", err
	}
	slog.Info("Stored agreement upload.", "agreementId", id, "storedFilename", storedName)
	return id, storedName, nil
}

// StoreStandards copies a batch of standard files into a new batch directory.
func (s *UploadStore) StoreStandards(srcPaths []string) (batchID string, storedNames []string, err error) {
	if len(srcPaths) == 0 {
		return "", nil, &UploadError{Reason: "no standard files provided"}
	}
	batchID = newUploadID()
	batchDir := filepath.Join(s.StandardsDir(), batchID)
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create batch dir: %w", err)
	}
	for _, src := range srcPaths {
		name, err := s.store(src, batchDir, newUploadID()[:10])
		if err != nil {
			return "", nil, err
		}
		storedNames = append(storedNames, name)
	}
	slog.Info("Stored standard batch.", "batchId", batchID, "count", len(storedNames))
	return batchID, storedNames, nil
}

func (s *UploadStore) store(srcPath, destDir, prefix string) (string, error) {
	original := filepath.Base(srcPath)
	if !allowedUploadExts[strings.ToLower(filepath.Ext(original))] {
		return "", &UploadError{Name: original, Reason: fmt.Sprintf("unsupported file type %q, allowed: .docx, .pdf, .txt, .xlsx", filepath.Ext(original))}
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer in.Close()

	storedName := prefix + idSeparator + SanitizeUploadName(original)
	destPath := filepath.Join(destDir, storedName)
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", destPath, err)
	}

	n, err := io.Copy(out, io.LimitReader(in, s.maxBytes+1))
	closeErr := out.Close()
	switch {
	case err != nil:
		_ = os.Remove(destPath)
		return "", fmt.Errorf("failed to store upload: %w", err)
	case closeErr != nil:
		_ = os.Remove(destPath)
		return "", fmt.Errorf("failed to store upload: %w", closeErr)
	case n > s.maxBytes:
		_ = os.Remove(destPath)
		return "", &UploadError{Name: original, Reason: fmt.Sprintf("file too large, max allowed is %d bytes", s.maxBytes)}
	case n == 0:
		_ = os.Remove(destPath)
		return "", &UploadError{Name: original, Reason: "file is empty"}
	}
	return storedName, nil
}

// ResolveAgreement finds the stored agreement for id.
func (s *UploadStore) ResolveAgreement(id string) (string, error) {
	if !validUploadID(id) {
		return "", fmt.Errorf("unknown agreement id %q: %w", id, ErrNotFound)
	}
	matches, err := filepath.Glob(filepath.Join(s.AgreementsDir(), id+idSeparator+"*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("unknown agreement id %q: %w", id, ErrNotFound)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// ResolveStandards lists the regular files of a batch in name order.
func (s *UploadStore) ResolveStandards(batchID string) ([]string, error) {
	if !validUploadID(batchID) {
		return nil, fmt.Errorf("unknown batch id %q: %w", batchID, ErrNotFound)
	}
	dir := filepath.Join(s.StandardsDir(), batchID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unknown batch id %q: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch %s: %w", batchID, err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// SanitizeUploadName keeps a safe subset of the original file name.
func SanitizeUploadName(filename string) string {
	name := filepath.Base(filename)
	name = strings.ReplaceAll(name, " ", "_")
	name = uploadNameStrip.ReplaceAllString(name, "")
	if name == "" || name == "." || name == ".." {
		return "file_" + newUploadID() + ".bin"
	}
	if len(name) > maxStoredNameLen {
		name = name[:maxStoredNameLen]
	}
	return name
}

func newUploadID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// validUploadID rejects ids that could escape the store directories.
func validUploadID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\*?[`) && id != "." && id != ".."
}

// Request resolves stored ids into a generation request.
func (s *UploadStore) Request(agreementID, batchID, model string) (*models.GenerateLoaderRequest, error) {
	agreementPath, err := s.ResolveAgreement(agreementID)
	if err != nil {
		return nil, err
	}
	standardPaths, err := s.ResolveStandards(batchID)
	if err != nil {
		return nil, err
	}
	if len(standardPaths) == 0 {
		return nil, fmt.Errorf("batch %q has no standard files: %w", batchID, ErrNoTemplate)
	}
	return &models.GenerateLoaderRequest{
		AgreementID:   agreementID,
		BatchID:       batchID,
		AgreementPath: agreementPath,
		StandardPaths: standardPaths,
		Model:         model,
	}, nil
}
