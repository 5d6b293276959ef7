package drive

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"schedule_bot/internal/cache"
)

// EducationType is one top-level branch of the Drive folder tree.
type EducationType struct {
	Key         string
	Name        string
	FolderLabel string
}

// EducationTypes mirror the university's Drive layout: each entry's
// FolderLabel is a substring of the matching subfolder name.
var EducationTypes = []EducationType{
	{Key: "daytime", Name: "🏫 Full-time", FolderLabel: "1. Кундузги таълим"},
	{Key: "evening", Name: "🌙 Evening", FolderLabel: "2. Кечки таълим"},
	{Key: "correspondence", Name: "📮 Extramural", FolderLabel: "3. Сиртқи таълим"},
	{Key: "masters", Name: "🎓 Masters", FolderLabel: "4. Магистратура"},
}

// Courses are the valid course numbers; the course folder is named
// "<n>-LEVEL".
var Courses = []string{"1", "2", "3", "4", "5"}

// EducationByKey looks up an education type by its key.
func EducationByKey(key string) (EducationType, bool) {
	for _, e := range EducationTypes {
		if e.Key == key {
			return e, true
		}
	}
	return EducationType{}, false
}

// ValidCourse reports whether course is a known course number.
func ValidCourse(course string) bool {
	for _, c := range Courses {
		if c == course {
			return true
		}
	}
	return false
}

// CourseFolderLabel is the substring identifying a course folder.
func CourseFolderLabel(course string) string {
	return course + "-LEVEL"
}

// FolderCacheTTL is how long a folder listing stays usable.
const FolderCacheTTL = time.Hour

// Locator resolves (education type, course) pairs to Drive folders and
// schedule files, caching folder listings.
type Locator struct {
	client  *Client
	rootID  string
	folders *cache.TTL[[]Folder]
	log     *slog.Logger
}

// NewLocator creates a Locator rooted at the given folder ID.
func NewLocator(client *Client, rootID string, log *slog.Logger) *Locator {
	return &Locator{
		client:  client,
		rootID:  rootID,
		folders: cache.New[[]Folder](FolderCacheTTL),
		log:     log,
	}
}

// subfolders lists parentID's subfolders through the TTL cache.
func (l *Locator) subfolders(ctx context.Context, parentID string) ([]Folder, error) {
	if folders, ok := l.folders.Get(parentID); ok {
		return folders, nil
	}
	folders, err := l.client.ListSubfolders(ctx, parentID)
	if err != nil {
		return nil, err
	}
	l.folders.Put(parentID, folders)
	return folders, nil
}

// FindEducationFolder resolves the folder for an education type. An
// unknown key is ErrNotFound; a listing failure or a missing subfolder
// degrades to the root folder ID rather than failing the lookup.
func (l *Locator) FindEducationFolder(ctx context.Context, educationType string) (string, error) {
	edu, ok := EducationByKey(educationType)
	if !ok {
		return "", fmt.Errorf("education type %q: %w", educationType, ErrNotFound)
	}

	folders, err := l.subfolders(ctx, l.rootID)
	if err != nil {
		l.log.Warn("list education folders", "error", err)
		return l.rootID, nil
	}
	for _, f := range folders {
		if strings.Contains(f.Name, edu.FolderLabel) {
			return f.ID, nil
		}
	}
	return l.rootID, nil
}

// FindCourseFolder resolves the course folder under an education
// folder. There is no reasonable fallback here: failure is ErrNotFound.
func (l *Locator) FindCourseFolder(ctx context.Context, educationFolderID, course string) (string, error) {
	if !ValidCourse(course) {
		return "", fmt.Errorf("course %q: %w", course, ErrNotFound)
	}

	folders, err := l.subfolders(ctx, educationFolderID)
	if err != nil {
		return "", fmt.Errorf("list course folders: %w", err)
	}
	label := CourseFolderLabel(course)
	for _, f := range folders {
		if strings.Contains(f.Name, label) {
			return f.ID, nil
		}
	}
	return "", fmt.Errorf("course folder %q under %s: %w", label, educationFolderID, ErrNotFound)
}

// FileInfo locates a schedule file by education type, file name, and
// course. With a course it searches the course folder first, then falls
// back to the education folder for trees that keep files one level up.
func (l *Locator) FileInfo(ctx context.Context, educationType, fileName, course string) (*FileInfo, error) {
	eduFolderID, err := l.FindEducationFolder(ctx, educationType)
	if err != nil {
		return nil, err
	}

	if course != "" {
		courseFolderID, err := l.FindCourseFolder(ctx, eduFolderID, course)
		if err == nil {
			info, err := l.client.FindFile(ctx, courseFolderID, fileName)
			if err == nil {
				return info, nil
			}
			l.log.Warn("file not in course folder", "file", fileName, "course", course, "error", err)
		}
	}

	return l.client.FindFile(ctx, eduFolderID, fileName)
}

// DownloadSchedule fetches the schedule file to a temp path in the
// working directory. The caller removes the file when done.
func (l *Locator) DownloadSchedule(ctx context.Context, educationType, fileName, course string) (string, *FileInfo, error) {
	info, err := l.FileInfo(ctx, educationType, fileName, course)
	if err != nil {
		return "", nil, err
	}

	path := "temp_" + fileName
	if err := l.client.Download(ctx, info.ID, path); err != nil {
		return "", nil, err
	}
	return path, info, nil
}

// ListGroups returns the sorted schedule file names for a course,
// implementing the group lister the fuzzy matcher builds on.
func (l *Locator) ListGroups(ctx context.Context, educationType, course string) ([]string, error) {
	eduFolderID, err := l.FindEducationFolder(ctx, educationType)
	if err != nil {
		return nil, err
	}
	courseFolderID, err := l.FindCourseFolder(ctx, eduFolderID, course)
	if err != nil {
		return nil, err
	}

	files, err := l.client.ListPDFs(ctx, courseFolderID)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, f := range files {
		if strings.HasSuffix(f.Name, ".pdf") {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ClearCache drops cached folder listings and reports how many there were.
func (l *Locator) ClearCache() int {
	return l.folders.Clear()
}
