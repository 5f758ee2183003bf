package channel

import (
	"bytes"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/teranos/sentinel/errors"
)

const dateLayout = "2006-01-02"

// HourlyPath is the layout of channels exported several times a day:
// {category}/{name}/{date}/{hour}.md
func HourlyPath(category, name string, t time.Time) string {
	return path.Join(category, SafeSegment(name), t.Format(dateLayout), t.Format("15")+".md")
}

// RangePath is the layout of date-ranged exports:
// {category}/{name}/{date}.md for a single day,
// {category}/{name}/{since}_to_{until}.md otherwise.
func RangePath(category, name string, since, until time.Time) string {
	s, u := since.Format(dateLayout), until.Format(dateLayout)
	file := s + ".md"
	if s != u {
		file = s + "_to_" + u + ".md"
	}
	return path.Join(category, SafeSegment(name), file)
}

// SafeSegment turns a channel or repo name into one path segment:
// "acme/widgets" becomes "acme_widgets".
func SafeSegment(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_", "..", "_")
	s := r.Replace(strings.TrimSpace(name))
	if s == "" {
		return "_"
	}
	return s
}

// FrontMatter heads every artifact so downstream readers can tell what
// produced it without parsing the path.
type FrontMatter struct {
	Channel     string             `yaml:"channel"`
	Type        string             `yaml:"type"`
	GeneratedAt time.Time          `yaml:"generated_at"`
	Since       string             `yaml:"since,omitempty"`
	Until       string             `yaml:"until,omitempty"`
	Records     int                `yaml:"records"`
	Counts      map[RecordKind]int `yaml:"counts,omitempty"`
}

// ArtifactWriter persists artifacts under a root directory.
type ArtifactWriter struct {
	fs   afero.Fs
	root string
}

// NewArtifactWriter writes under root on fs. A nil fs means the OS filesystem.
func NewArtifactWriter(fs afero.Fs, root string) *ArtifactWriter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &ArtifactWriter{fs: fs, root: root}
}

// Fs returns the filesystem artifacts are written to.
func (w *ArtifactWriter) Fs() afero.Fs {
	return w.fs
}

// Root returns the artifact root directory.
func (w *ArtifactWriter) Root() string {
	return w.root
}

// Write renders front matter plus body to rel (a path from HourlyPath or
// RangePath) and returns the artifact. I/O failures are ExportErrors.
func (w *ArtifactWriter) Write(rel string, fm FrontMatter, body string) (ExportArtifact, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return ExportArtifact{}, errors.WrapExport(err, "encode front matter for %s", rel)
	}
	if err := enc.Close(); err != nil {
		return ExportArtifact{}, errors.WrapExport(err, "encode front matter for %s", rel)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(body)

	full := path.Join(w.root, rel)
	if err := w.fs.MkdirAll(path.Dir(full), 0755); err != nil {
		return ExportArtifact{}, errors.WrapExport(err, "create directory for %s", full)
	}
	if err := afero.WriteFile(w.fs, full, buf.Bytes(), 0644); err != nil {
		return ExportArtifact{}, errors.WrapExport(err, "write %s", full)
	}

	return ExportArtifact{
		Path:        full,
		Channel:     fm.Channel,
		GeneratedAt: fm.GeneratedAt,
		Records:     fm.Records,
	}, nil
}

// ReadArtifact returns the artifact body with its front matter split off.
func ReadArtifact(fs afero.Fs, p string) (FrontMatter, string, error) {
	var fm FrontMatter
	raw, err := afero.ReadFile(fs, p)
	if err != nil {
		return fm, "", errors.Wrapf(err, "read artifact %s", p)
	}
	content := string(raw)
	if !strings.HasPrefix(content, "---\n") {
		return fm, content, nil
	}
	head, body, ok := strings.Cut(content[4:], "\n---\n")
	if !ok {
		return fm, content, nil
	}
	if err := yaml.Unmarshal([]byte(head), &fm); err != nil {
		return fm, "", errors.Wrapf(err, "parse front matter of %s", p)
	}
	return fm, strings.TrimPrefix(body, "\n"), nil
}

// NewFrontMatter fills the common front matter fields for an export.
func NewFrontMatter(d Descriptor, records []RawRecord, opts ExportOptions, now time.Time) FrontMatter {
	fm := FrontMatter{
		Channel:     d.Name,
		Type:        d.Type,
		GeneratedAt: now,
		Records:     len(records),
		Counts:      CountByKind(records),
	}
	if !opts.Request.Since.IsZero() {
		fm.Since = opts.Request.Since.Format(dateLayout)
	}
	if !opts.Request.Until.IsZero() {
		fm.Until = opts.Request.Until.Format(dateLayout)
	}
	return fm
}

// ExportTime resolves the generation time of an export.
func (o ExportOptions) ExportTime() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}
