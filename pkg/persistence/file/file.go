// Package file provides the file-based persistence implementation. Every record is one JSON
// document under the artifacts directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/handoff/pkg/persistence"
)

const (
	claimsDir    = "claims"
	handoffDir   = "handoff"
	gatesDir     = "gates"
	scheduleDir  = "schedule"
	workItemsDir = "work-items"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root         string
	claimRepo    *ClaimRepository
	handoffRepo  *HandoffRepository
	workItemRepo *WorkItemRepository
	gateRepo     *GateRepository
	scheduleRepo *ScheduleRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		claimRepo:    NewClaimRepository(cleanRoot),
		handoffRepo:  NewHandoffRepository(cleanRoot),
		workItemRepo: NewWorkItemRepository(cleanRoot),
		gateRepo:     NewGateRepository(cleanRoot),
		scheduleRepo: NewScheduleRepository(cleanRoot),
	}
}

// Root returns the artifacts directory.
func (fp *Persistence) Root() string {
	return fp.root
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) ClaimRepository() persistence.ClaimRepository {
	return fp.claimRepo
}

func (fp *Persistence) HandoffRepository() persistence.HandoffRepository {
	return fp.handoffRepo
}

func (fp *Persistence) WorkItemRepository() persistence.WorkItemRepository {
	return fp.workItemRepo
}

func (fp *Persistence) GateRepository() persistence.GateRepository {
	return fp.gateRepo
}

func (fp *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return fp.scheduleRepo
}

// validateID validates that an identifier is safe to embed in a file name.
func validateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s cannot be empty", persistence.ErrInvalidID, kind)
	}

	// Check for path traversal attempts
	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %s %q contains invalid characters", persistence.ErrInvalidID, kind, id)
	}

	return nil
}

func marshalDocument(document any) ([]byte, error) {
	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}

// writeDocument writes (or overwrites) a JSON document.
func writeDocument(filePath string, document any) error {
	err := os.MkdirAll(filepath.Dir(filePath), 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filePath, err)
	}

	data, err := marshalDocument(document)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filePath, err)
	}

	tmpPath := filePath + ".tmp"

	err = os.WriteFile(tmpPath, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}

	err = os.Rename(tmpPath, filePath)
	if err != nil {
		return fmt.Errorf("failed to replace %s: %w", filePath, err)
	}

	return nil
}

// createDocument writes a JSON document only if the file does not exist yet. The
// existence check and the creation are a single O_EXCL open.
func createDocument(filePath string, document any) error {
	err := os.MkdirAll(filepath.Dir(filePath), 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filePath, err)
	}

	data, err := marshalDocument(document)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filePath, err)
	}

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600) // #nosec G304 -- path built from validated ids
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return persistence.ErrAlreadyExists
		}

		return fmt.Errorf("failed to create %s: %w", filePath, err)
	}

	_, err = file.Write(data)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(filePath)

		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}

	return file.Close()
}

// readDocument decodes a JSON document, returning persistence.ErrNotFound if it is absent.
func readDocument(filePath string, document any) error {
	data, err := os.ReadFile(filePath) // #nosec G304 -- path built from validated ids
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrNotFound
		}

		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	err = json.Unmarshal(data, document)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filePath, err)
	}

	return nil
}

// jsonFiles lists the *.json files of dir. A missing directory yields no files.
func jsonFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		files = append(files, filepath.Join(dir, entry.Name()))
	}

	return files, nil
}
