package implementations

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"whatisyourcolor/internal/domain/color"
	"whatisyourcolor/internal/observability"
)

const (
	pngContentType = "image/png"

	// DefaultShareExpiry is how long a share URL stays valid
	DefaultShareExpiry = 24 * time.Hour
)

// Export capability settings accepted by NewDeviceDetector
const (
	CapabilityAuto = "auto"
)

// DeviceDetector resolves the export capability of the requesting device
type DeviceDetector interface {
	Detect(userAgent string) color.Capability
}

// UserAgentDetector treats phones and tablets as share-capable
type UserAgentDetector struct {
	mobile *regexp.Regexp
}

// NewUserAgentDetector creates the default detector
func NewUserAgentDetector() *UserAgentDetector {
	return &UserAgentDetector{
		mobile: regexp.MustCompile(`(?i)iphone|ipad|ipod|android`),
	}
}

// Detect returns CapabilityShare for iPhone, iPad, iPod and Android agents
func (d *UserAgentDetector) Detect(userAgent string) color.Capability {
	if d.mobile.MatchString(userAgent) {
		return color.CapabilityShare
	}
	return color.CapabilityDownload
}

// FixedDetector reports the same capability for every device
type FixedDetector color.Capability

// Detect ignores the user agent
func (d FixedDetector) Detect(string) color.Capability {
	return color.Capability(d)
}

// NewDeviceDetector maps the EXPORT_CAPABILITY setting to a detector
func NewDeviceDetector(setting string) (DeviceDetector, error) {
	switch strings.ToLower(setting) {
	case "", CapabilityAuto:
		return NewUserAgentDetector(), nil
	case string(color.CapabilityDownload):
		return FixedDetector(color.CapabilityDownload), nil
	case string(color.CapabilityShare):
		return FixedDetector(color.CapabilityShare), nil
	default:
		return nil, fmt.Errorf("%w: export capability %q", color.ErrUnknownPolicy, setting)
	}
}

// DownloadExporter returns the rendered card as an attachment
type DownloadExporter struct {
	renderer color.CardRenderer
}

// NewDownloadExporter creates a new download exporter
func NewDownloadExporter(renderer color.CardRenderer) *DownloadExporter {
	return &DownloadExporter{renderer: renderer}
}

// Export renders candidate as color_image.png
func (e *DownloadExporter) Export(ctx context.Context, candidate color.Candidate) (*color.Export, error) {
	data, err := e.renderer.Render(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", color.ErrExportFailed, err)
	}

	return &color.Export{
		Capability:  color.CapabilityDownload,
		Filename:    color.ExportFilename,
		ContentType: pngContentType,
		Data:        data,
	}, nil
}

// ShareExporter uploads the card to object storage and returns a
// time-limited URL for the platform share sheet. Without storage it falls
// back to a download.
type ShareExporter struct {
	renderer color.CardRenderer
	storage  color.ShareStorage
	expiry   time.Duration
	fallback *DownloadExporter
	newID    func() (string, error)
}

// NewShareExporter creates a new share exporter; storage can be nil
func NewShareExporter(renderer color.CardRenderer, storage color.ShareStorage, expiry time.Duration) *ShareExporter {
	if expiry <= 0 {
		expiry = DefaultShareExpiry
	}
	return &ShareExporter{
		renderer: renderer,
		storage:  storage,
		expiry:   expiry,
		fallback: NewDownloadExporter(renderer),
		newID:    func() (string, error) { return gonanoid.New() },
	}
}

// Enabled reports whether shares are backed by object storage
func (e *ShareExporter) Enabled() bool {
	if e.storage == nil {
		return false
	}
	if s, ok := e.storage.(interface{ Enabled() bool }); ok {
		return s.Enabled()
	}
	return true
}

// Export uploads the card under cards/<hex>/<id>.png and returns its URL
func (e *ShareExporter) Export(ctx context.Context, candidate color.Candidate) (*color.Export, error) {
	if !e.Enabled() {
		return e.fallback.Export(ctx, candidate)
	}

	data, err := e.renderer.Render(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", color.ErrExportFailed, err)
	}

	id, err := e.newID()
	if err != nil {
		return nil, fmt.Errorf("%w: generate key: %v", color.ErrExportFailed, err)
	}
	key := ShareKey(candidate.Color, id)

	if err := e.storage.Put(ctx, key, pngContentType, data); err != nil {
		return nil, fmt.Errorf("%w: %w", color.ErrExportFailed, err)
	}

	url, err := e.storage.URL(ctx, key, e.expiry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", color.ErrExportFailed, err)
	}

	return &color.Export{
		Capability:  color.CapabilityShare,
		Filename:    color.ExportFilename,
		ContentType: pngContentType,
		URL:         url,
	}, nil
}

// ShareKey builds the object key for a shared card
func ShareKey(code, id string) string {
	return fmt.Sprintf("cards/%s/%s.png", strings.TrimPrefix(strings.ToLower(code), "#"), id)
}

// ExportService picks the export variant for a request and instruments it
type ExportService struct {
	detector DeviceDetector
	download *DownloadExporter
	share    *ShareExporter
	namer    color.Namer
	logger   *observability.Logger

	// Observability
	tracer        trace.Tracer
	exportCounter metric.Int64Counter
}

// NewExportService creates a new export service
func NewExportService(
	detector DeviceDetector,
	download *DownloadExporter,
	share *ShareExporter,
	namer color.Namer,
	logger *observability.Logger,
) *ExportService {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if detector == nil {
		detector = NewUserAgentDetector()
	}

	tracer := otel.Tracer("whatisyourcolor/service/export")
	meter := otel.Meter("whatisyourcolor/service/export")

	exportCounter, err := meter.Int64Counter(
		"export.total",
		metric.WithDescription("Total number of card exports by capability and outcome"),
		metric.WithUnit("{export}"),
	)
	if err != nil {
		exportCounter = nil
	}

	return &ExportService{
		detector:      detector,
		download:      download,
		share:         share,
		namer:         namer,
		logger:        logger.Component("export"),
		tracer:        tracer,
		exportCounter: exportCounter,
	}
}

// Capability resolves the export mechanism for userAgent
func (s *ExportService) Capability(userAgent string) color.Capability {
	capability := s.detector.Detect(userAgent)
	if capability == color.CapabilityShare && !s.share.Enabled() {
		return color.CapabilityDownload
	}
	return capability
}

// Candidate builds a named candidate from a colour code. The label is kept
// only when it hashes to code, so a card never pairs a name with another
// name's colour; it is clipped to color.MaxLabelRunes.
func (s *ExportService) Candidate(label, code string) (color.Candidate, error) {
	parsed, err := color.ParseCode(code)
	if err != nil {
		return color.Candidate{}, err
	}

	if label != "" && color.FromText(label) != parsed.String() {
		label = ""
	}

	candidate := color.Candidate{Label: color.ClipLabel(label), Color: parsed.String()}
	if s.namer != nil {
		candidate.Name = s.namer.Name(candidate.Color)
	}
	return candidate, nil
}

// Export runs the exporter for capability
func (s *ExportService) Export(ctx context.Context, capability color.Capability, candidate color.Candidate) (*color.Export, error) {
	ctx, span := s.tracer.Start(ctx, "Export",
		trace.WithAttributes(
			attribute.String("export.capability", string(capability)),
			attribute.String("color.code", candidate.Color),
		),
	)
	defer span.End()

	var exporter color.Exporter = s.download
	if capability == color.CapabilityShare {
		exporter = s.share
	}

	export, err := exporter.Export(ctx, candidate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "export failed")
		s.recordExport(ctx, capability, "failure")
		s.logger.Error(ctx).Err(err).
			Str("capability", string(capability)).
			Str("color", candidate.Color).
			Msg("Card export failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("export.result", string(export.Capability)))
	span.SetStatus(codes.Ok, "")
	s.recordExport(ctx, export.Capability, "success")

	return export, nil
}

func (s *ExportService) recordExport(ctx context.Context, capability color.Capability, outcome string) {
	if s.exportCounter != nil {
		s.exportCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("capability", string(capability)),
			attribute.String("outcome", outcome),
		))
	}
}
