package ingest

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainerrors "cprqa/internal/core/errors"
	"cprqa/internal/shared/observability"
	"cprqa/internal/shared/util"
)

const (
	SummaryFile          = "Case Statistics.csv"
	IntervalFile         = "MinuteByMinuteReport.csv"
	PausesFile           = "IndividualPauses.csv"
	CompressionsFile     = "IndividualCompressions.csv"
	AlternateMinuteFile  = "CanRocMinuteByMinuteReport.csv"
	AlternateSegmentFile = "CanRocCPRSegmentsReport.csv"

	// alternatePrefix marks entries already laid out in report field codes.
	alternatePrefix = "canroc"
)

// Options tunes the parser. Zero values are replaced by DefaultOptions.
type Options struct {
	LongPauseThreshold float64
	MinuteWindow       int
	RejectMarker       string
	MaxSegments        int
	PayloadSegments    int
}

func DefaultOptions() Options {
	return Options{
		LongPauseThreshold: 10.0,
		MinuteWindow:       10,
		RejectMarker:       "canroc",
		MaxSegments:        26,
		PayloadSegments:    6,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.LongPauseThreshold <= 0 {
		o.LongPauseThreshold = def.LongPauseThreshold
	}
	if o.MinuteWindow <= 0 {
		o.MinuteWindow = def.MinuteWindow
	}
	if o.RejectMarker == "" {
		o.RejectMarker = def.RejectMarker
	}
	if o.MaxSegments <= 0 {
		o.MaxSegments = def.MaxSegments
	}
	if o.PayloadSegments <= 0 {
		o.PayloadSegments = def.PayloadSegments
	}
	if o.PayloadSegments > o.MaxSegments {
		o.PayloadSegments = o.MaxSegments
	}
	o.RejectMarker = strings.ToLower(o.RejectMarker)
	return o
}

// Parser turns a device export bundle into NormalizedMetrics and a minute
// payload. It holds no per-bundle state and is safe for concurrent use.
type Parser struct {
	opts     Options
	matchers map[string]glob.Glob
}

func NewParser(opts Options) *Parser {
	p := &Parser{
		opts:     opts.withDefaults(),
		matchers: make(map[string]glob.Glob),
	}
	for _, name := range []string{SummaryFile, IntervalFile, PausesFile, CompressionsFile} {
		quoted := glob.QuoteMeta(strings.ToLower(name))
		p.matchers[name] = glob.MustCompile(fmt.Sprintf("{%s,**/%s}", quoted, quoted), '/')
	}
	return p
}

func (p *Parser) Options() Options { return p.opts }

// Rejected reports whether the bundle name carries the reject marker.
func (p *Parser) Rejected(bundlePath string) bool {
	return strings.Contains(strings.ToLower(filepath.Base(bundlePath)), p.opts.RejectMarker)
}

// Parse reads the bundle at bundlePath. All failures are INGESTION_ERROR
// domain errors; nothing partial is returned.
func (p *Parser) Parse(ctx context.Context, bundlePath string) (res *Result, err error) {
	_, span := observability.Tracer.Start(ctx, "ingest.Parse",
		trace.WithAttributes(attribute.String("bundle", filepath.Base(bundlePath))))
	start := time.Now()
	defer func() {
		observability.IngestDuration.Observe(time.Since(start).Seconds())
		outcome := "ok"
		switch {
		case err != nil && p.Rejected(bundlePath):
			outcome = "rejected"
		case err != nil:
			outcome = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, domainerrors.Message(err))
		}
		observability.IngestTotal.WithLabelValues(outcome).Inc()
		span.End()
	}()

	if p.Rejected(bundlePath) {
		return nil, RejectedError(bundlePath)
	}
	if _, statErr := os.Stat(bundlePath); statErr != nil {
		return nil, ingestionError("ZIP file not found: %s", bundlePath)
	}

	zr, openErr := zip.OpenReader(bundlePath)
	if openErr != nil {
		return nil, ingestionError("Invalid ZIP file format").WithContext(domainerrors.CtxPath, bundlePath)
	}
	defer zr.Close()

	res, err = p.parseArchive(&zr.Reader)
	if err != nil {
		var de *domainerrors.DomainError
		if !errors.As(err, &de) {
			err = unexpectedError(err)
		}
		return nil, domainerrors.AddContext(err, domainerrors.CtxPath, bundlePath)
	}
	slog.Debug("bundle parsed", "path", bundlePath, "payload_fields", len(res.Payload),
		"segments", res.Metrics.SegmentCount)
	return res, nil
}

func (p *Parser) parseArchive(zr *zip.Reader) (*Result, error) {
	for _, required := range []string{SummaryFile, IntervalFile} {
		if p.authoritative(zr, required) == nil {
			return nil, ingestionError("Required file '%s' not found in ZIP", required)
		}
	}

	summaryText, err := readEntry(p.authoritative(zr, SummaryFile))
	if err != nil {
		return nil, err
	}
	summaryTable, err := readTable(summaryText)
	if err != nil {
		return nil, err
	}
	if len(summaryTable.rows) == 0 {
		return nil, ingestionError("No data row found in Case Statistics.csv")
	}

	intervalText, err := readEntry(p.authoritative(zr, IntervalFile))
	if err != nil {
		return nil, err
	}
	intervalTable, err := readTable(intervalText)
	if err != nil {
		return nil, err
	}
	if len(intervalTable.rows) == 0 {
		return nil, ingestionError("No data rows found in MinuteByMinuteReport.csv")
	}

	metrics := NormalizedMetrics{Summary: parseSummary(summaryTable)}
	var absent int
	metrics.Intervals, absent = parseIntervals(intervalTable)
	if absent > 0 {
		observability.IngestAbsentCellsTotal.Add(float64(absent))
	}
	metrics.Minutes = buildSlots(metrics.Intervals, p.opts.MinuteWindow)

	if f := p.authoritative(zr, PausesFile); f != nil {
		text, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		metrics.Pauses = parsePauses(text, p.opts.LongPauseThreshold)
	}

	payload := slotPayload(metrics.Minutes)

	if f := p.alternate(zr, AlternateMinuteFile); f != nil {
		text, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		payload.fill(parseAlternateMinutes(text, p.opts.MinuteWindow))
	}

	if f := p.alternate(zr, AlternateSegmentFile); f != nil {
		text, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		fields, segments := parseAlternateSegments(text, p.opts.MaxSegments)
		metrics.Segments = segments
		metrics.SegmentCount = len(segments)
		payload.fill(segmentPayload(fields, p.opts.PayloadSegments))
	}

	return &Result{Metrics: metrics, Payload: payload}, nil
}

// authoritative finds the vendor-format entry, ignoring alternate-format
// entries that share the logical name.
func (p *Parser) authoritative(zr *zip.Reader, name string) *zip.File {
	matcher := p.matchers[name]
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		lower := strings.ToLower(util.NormalizePatternPath(f.Name))
		if !matcher.Match(lower) {
			continue
		}
		if strings.HasPrefix(path.Base(lower), alternatePrefix) {
			continue
		}
		return f
	}
	return nil
}

func (p *Parser) alternate(zr *zip.Reader, name string) *zip.File {
	want := strings.ToLower(name)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if path.Base(strings.ToLower(util.NormalizePatternPath(f.Name))) == want {
			return f
		}
	}
	return nil
}

// fill copies values into keys that are not already set.
func (p Payload) fill(values Payload) {
	for k, v := range values {
		if v.IsAbsent() {
			continue
		}
		if existing, ok := p[k]; ok && !existing.IsAbsent() {
			continue
		}
		p[k] = v
	}
}

// RejectedError is what Parse returns for a bundle carrying the reject marker.
func RejectedError(bundlePath string) error {
	return ingestionError("ZIP file ignored: contains 'CanRoc' in filename").
		WithContext(domainerrors.CtxPath, bundlePath)
}

func ingestionError(format string, args ...any) *domainerrors.DomainError {
	return domainerrors.Newf(domainerrors.CodeIngestion, format, args...)
}

func unexpectedError(err error) *domainerrors.DomainError {
	return domainerrors.Newf(domainerrors.CodeIngestion, "Unexpected error during ingestion: %v", err)
}
