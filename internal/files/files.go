// Package files implements workspace file management: organizing,
// searching, deduplicating, renaming, and converting files.
package files

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aide-agent/aide/internal/actions"
)

// extension buckets used by organize_files and clean_downloads.
var buckets = map[string]string{
	".jpg": "Images", ".jpeg": "Images", ".png": "Images", ".gif": "Images",
	".webp": "Images", ".svg": "Images", ".bmp": "Images",
	".pdf": "Documents", ".doc": "Documents", ".docx": "Documents",
	".txt": "Documents", ".md": "Documents", ".odt": "Documents",
	".xls": "Documents", ".xlsx": "Documents", ".ppt": "Documents",
	".pptx": "Documents", ".csv": "Documents",
	".mp4": "Videos", ".mkv": "Videos", ".avi": "Videos", ".mov": "Videos",
	".webm": "Videos",
	".mp3": "Music", ".wav": "Music", ".flac": "Music", ".ogg": "Music",
	".zip": "Archives", ".tar": "Archives", ".gz": "Archives",
	".rar": "Archives", ".7z": "Archives", ".xz": "Archives",
	".go": "Code", ".py": "Code", ".js": "Code", ".ts": "Code",
	".c": "Code", ".h": "Code", ".rs": "Code", ".java": "Code",
	".sh": "Code", ".html": "Code", ".css": "Code", ".json": "Code",
	".yaml": "Code", ".yml": "Code",
}

// maxSearchFileSize caps how much of a file search_file_content reads.
const maxSearchFileSize = 4 << 20

// Files manages the workspace and downloads directories.
type Files struct {
	workspace string
	downloads string
	logger    *slog.Logger
	run       func(ctx context.Context, name string, args ...string) error
}

func New(workspace, downloads string, logger *slog.Logger) *Files {
	if workspace == "" {
		if home, err := os.UserHomeDir(); err == nil {
			workspace = filepath.Join(home, "aide-workspace")
		} else {
			workspace = "aide-workspace"
		}
	}
	if downloads == "" {
		if home, err := os.UserHomeDir(); err == nil {
			downloads = filepath.Join(home, "Downloads")
		}
	}
	return &Files{
		workspace: workspace,
		downloads: downloads,
		logger:    logger,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// resolve maps a user-supplied path into the workspace unless it is
// already absolute.
func (f *Files) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(f.workspace, path)
}

func (f *Files) createFolder(ctx context.Context, p actions.Params) (string, error) {
	name, err := p.String("name")
	if err != nil {
		return "", err
	}
	dir := f.resolve(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	return "Created folder " + dir, nil
}

// organizeDir moves every regular file in dir into an extension bucket
// subfolder and returns the number moved.
func organizeDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read dir: %w", err)
	}

	moved := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		bucket, ok := buckets[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			bucket = "Other"
		}
		dest := filepath.Join(dir, bucket)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return moved, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		if err := os.Rename(filepath.Join(dir, entry.Name()), filepath.Join(dest, entry.Name())); err != nil {
			return moved, fmt.Errorf("move %s: %w", entry.Name(), err)
		}
		moved++
	}
	return moved, nil
}

func (f *Files) organizeFiles(ctx context.Context, p actions.Params) (string, error) {
	dir := f.resolve(p.StringOr("path", "."))
	moved, err := organizeDir(dir)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Organized %d files in %s by type", moved, dir), nil
}

func (f *Files) cleanDownloads(ctx context.Context, p actions.Params) (string, error) {
	if f.downloads == "" {
		return "", fmt.Errorf("downloads directory not configured")
	}
	moved, err := organizeDir(f.downloads)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Cleaned downloads: %d files sorted into folders", moved), nil
}

func (f *Files) searchFileContent(ctx context.Context, p actions.Params) (string, error) {
	query, err := p.String("query")
	if err != nil {
		return "", err
	}
	root := f.resolve(p.StringOr("path", "."))

	var matches []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxSearchFileSize {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			if strings.Contains(scanner.Text(), query) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", path, line, strings.TrimSpace(scanner.Text())))
				if len(matches) >= 50 {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search %s: %w", root, err)
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No files under %s contain %q.", root, query), nil
	}
	return strings.Join(matches, "\n"), nil
}

func (f *Files) findDuplicates(ctx context.Context, p actions.Params) (string, error) {
	root := f.resolve(p.StringOr("path", "."))

	byHash := map[string][]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sum, err := hashFile(path)
		if err != nil {
			return nil
		}
		byHash[sum] = append(byHash[sum], path)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", root, err)
	}

	var groups []string
	for _, paths := range byHash {
		if len(paths) > 1 {
			sort.Strings(paths)
			groups = append(groups, strings.Join(paths, " == "))
		}
	}
	if len(groups) == 0 {
		return "No duplicate files found under " + root + ".", nil
	}
	sort.Strings(groups)
	return fmt.Sprintf("%d duplicate groups:\n%s", len(groups), strings.Join(groups, "\n")), nil
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (f *Files) batchRename(ctx context.Context, p actions.Params) (string, error) {
	prefix, err := p.String("prefix")
	if err != nil {
		return "", err
	}
	dir := f.resolve(p.StringOr("path", "."))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read dir: %w", err)
	}

	renamed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		renamed++
		newName := fmt.Sprintf("%s_%03d%s", prefix, renamed, filepath.Ext(entry.Name()))
		if err := os.Rename(filepath.Join(dir, entry.Name()), filepath.Join(dir, newName)); err != nil {
			return "", fmt.Errorf("rename %s: %w", entry.Name(), err)
		}
	}
	return fmt.Sprintf("Renamed %d files in %s with prefix %q", renamed, dir, prefix), nil
}

func (f *Files) compressImage(ctx context.Context, p actions.Params) (string, error) {
	src, err := p.String("path")
	if err != nil {
		return "", err
	}
	quality := p.IntOr("quality", 60)
	srcPath := f.resolve(src)

	in, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	ext := filepath.Ext(srcPath)
	outPath := strings.TrimSuffix(srcPath, ext) + "_compressed.jpg"
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "Compressed image written to " + outPath, nil
}

func (f *Files) mergePDFs(ctx context.Context, p actions.Params) (string, error) {
	inputs, err := p.StringSlice("files")
	if err != nil {
		return "", err
	}
	if len(inputs) < 2 {
		return "", fmt.Errorf("merge needs at least two input files")
	}
	output := f.resolve(p.StringOr("output", "merged.pdf"))

	args := make([]string, 0, len(inputs)+1)
	for _, in := range inputs {
		args = append(args, f.resolve(in))
	}
	args = append(args, output)

	if err := f.run(ctx, "pdfunite", args...); err != nil {
		return "", fmt.Errorf("pdfunite: %w", err)
	}
	return "Merged " + fmt.Sprint(len(inputs)) + " PDFs into " + output, nil
}

// Actions returns the file management action set.
func (f *Files) Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "create_folder", Description: "Create a folder in the workspace", Handler: f.createFolder},
		{Name: "organize_files", Description: "Sort files in a directory into folders by type", Handler: f.organizeFiles},
		{Name: "clean_downloads", Description: "Organize the downloads folder by file type", Handler: f.cleanDownloads},
		{Name: "search_file_content", Description: "Search files under a directory for text", Handler: f.searchFileContent},
		{Name: "find_duplicates", Description: "Find duplicate files under a directory by content hash", Handler: f.findDuplicates},
		{Name: "batch_rename", Description: "Rename all files in a directory with a numbered prefix", Handler: f.batchRename},
		{Name: "compress_image", Description: "Re-encode an image as a smaller JPEG", Handler: f.compressImage},
		{Name: "merge_pdfs", Description: "Merge multiple PDF files into one", Handler: f.mergePDFs},
	}
}
