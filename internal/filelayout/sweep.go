package filelayout

import (
	"os"

	"github.com/bmatcuk/doublestar/v4"
)

// ZombieCandidates lists the top-level entries directly under cacheDir
// that the maintenance worker's zombie sweep should consider: directories
// only, skipping dotfiles/hidden entries (editor swap files, ".DS_Store",
// etc.) that are never ticket directories and would otherwise spam the
// "non-standard directory" warning on every tick.
func ZombieCandidates(cacheDir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if hidden, _ := doublestar.Match(".*", e.Name()); hidden {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// OutputFilesForZip lists the regular, non-hidden files directly under
// outputDir that are eligible to be packed into the result zip —
// excludes dotfiles and any leftover ".tmp"/".spool" write-in-progress
// artifacts from WriteFileAtomic.
func OutputFilesForZip(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if excluded, _ := doublestar.Match(".*", name); excluded {
			continue
		}
		if excluded, _ := doublestar.Match("*.{tmp,spool}", name); excluded {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}
