// Package persistence implements the bundle descriptor store (spec.md §6
// "Bundle persistence (collaborator)"). The format is deliberately opaque
// to the registry and the bundle entity; this package is the only place
// that knows it is XML, grounded in the original C++ implementation's
// SimpleXML-backed Bundle::save(). The standard library's encoding/xml is
// used because no third-party XML library appears anywhere in the
// retrieval pack (see DESIGN.md).
package persistence

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/example/bundlequeue/internal/queue/bundle"
)

// ErrPersistenceFailed wraps any error encountered while writing or
// deleting a descriptor (spec.md §7).
var ErrPersistenceFailed = errors.New("persistence: operation failed")

// descriptor is the on-disk XML shape for one bundle. Item paths are
// flattened lists; priority is stored by name for readability.
type descriptor struct {
	XMLName      xml.Name `xml:"Bundle"`
	Token        string   `xml:"Token,attr"`
	Target       string   `xml:"Target"`
	IsFileBundle bool     `xml:"IsFileBundle"`
	Priority     string   `xml:"Priority"`
	Downloaded   int64    `xml:"Downloaded"`
	Queued       []item   `xml:"Queued>Item"`
	Finished     []item   `xml:"Finished>Item"`
}

type item struct {
	Token    string `xml:"Token,attr"`
	FilePath string `xml:",chardata"`
}

// XMLStore writes one descriptor file per bundle token under Dir. It
// satisfies bundle.PersistenceBackend.
type XMLStore struct {
	Dir string
	log *zap.Logger
}

func NewXMLStore(dir string, log *zap.Logger) *XMLStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &XMLStore{Dir: dir, log: log}
}

func (s *XMLStore) path(token string) string {
	return filepath.Join(s.Dir, token+".xml")
}

// Save writes b's descriptor. The caller (bundle.Bundle.Save) clears the
// dirty bit only on a nil return.
func (s *XMLStore) Save(b *bundle.Bundle) error {
	d := descriptor{
		Token:        b.Token(),
		Target:       b.Target(),
		IsFileBundle: b.IsFileBundle(),
		Priority:     b.Priority().String(),
		Downloaded:   b.DownloadedBytes(),
	}
	for _, qi := range b.QueuedItems() {
		d.Queued = append(d.Queued, item{Token: qi.Token, FilePath: qi.FilePath})
	}
	for _, qi := range b.FinishedItems() {
		d.Finished = append(d.Finished, item{Token: qi.Token, FilePath: qi.FilePath})
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	data, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	tmp := s.path(d.Token) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if err := os.Rename(tmp, s.path(d.Token)); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return nil
}

// Delete unlinks the descriptor file, tolerating one that was never
// written (matches the registry's "no-op for a NEW bundle" semantics).
func (s *XMLStore) Delete(token string) error {
	if err := os.Remove(s.path(token)); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to delete bundle descriptor", zap.String("token", token), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return nil
}
