// Package filelayout implements the deterministic per-ticket filesystem
// layout:
//
//	<cache>/<ticket-hex>/
//	  input/<param-name>/<filename>
//	  output/<generated-zip-name>
package filelayout

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/metakeggweb/mekeweserver/internal/model"
)

// Layout resolves the on-disk paths for one ticket rooted at cacheDir.
type Layout struct {
	cacheDir string
	ticket   model.Ticket
}

func New(cacheDir string, ticket model.Ticket) Layout {
	return Layout{cacheDir: cacheDir, ticket: ticket}
}

func (l Layout) BaseDir() string {
	return filepath.Join(l.cacheDir, l.ticket.String())
}

func (l Layout) InputDir(param string) string {
	return filepath.Join(l.BaseDir(), "input", param)
}

func (l Layout) InputFilePath(param, filename string) string {
	return filepath.Join(l.InputDir(param), filename)
}

func (l Layout) OutputDir() string {
	return filepath.Join(l.BaseDir(), "output")
}

func (l Layout) OutputZipPath(zipName string) string {
	return filepath.Join(l.OutputDir(), zipName)
}

// SanitizeFilename keeps alphanumerics plus ". _ -" and strips everything
// else, including spaces. An empty result is replaced with a generated
// name so every upload has a usable filename.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" || clean == "." || clean == ".." {
		return generatedFilename()
	}
	return clean
}

func generatedFilename() string {
	return "upload-" + time.Now().UTC().Format("20060102-150405.000000000")
}

// GenerateOutputZipFileName returns a name of the form
// output-metakegg-<method>_<YYYY-MM-DD-HH-MM-SS>.zip.
func GenerateOutputZipFileName(method string, now time.Time) string {
	return "output-metakegg-" + method + "_" + now.Format("2006-01-02-15-04-05") + ".zip"
}
